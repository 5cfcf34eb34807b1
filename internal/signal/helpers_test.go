package signal

import (
	"math"
	"math/rand"
	"time"

	"marketvision/internal/market"
)

func ptr(v float64) *float64 { return &v }

// buildSignal returns a pending long with sane levels for outcome tests.
func buildSignal(direction Direction) *Signal {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sig := &Signal{
		ID:         1,
		Symbol:     "XAUUSD",
		Timeframe:  market.TF5m,
		Direction:  direction,
		Status:     StatusPending,
		Confidence: 0.7,
		Reasons: Reasons{
			Direction:        string(direction),
			ConfluenceCount:  5,
			RegimeCompatible: true,
			ATRValue:         1.8,
		},
		Snapshot:    map[string]IndicatorSnapshot{},
		GeneratedAt: now,
		ExpiresAt:   now.Add(time.Hour),
	}
	if direction == DirectionLong {
		sig.EntryPrice = 2650.30
		sig.StopLoss = 2645.80
		sig.TakeProfit = 2658.00
	} else {
		sig.EntryPrice = 2650.30
		sig.StopLoss = 2654.80
		sig.TakeProfit = 2642.60
	}
	sig.RiskRewardRatio = math.Abs(sig.TakeProfit-sig.EntryPrice) / math.Abs(sig.EntryPrice-sig.StopLoss)
	return sig
}

func bar(high, low, close float64) market.Candle {
	return market.Candle{
		Timestamp: time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC),
		Open:      close, High: high, Low: low, Close: close,
		Volume: 1000,
	}
}

// closedLoss returns a long loss with a controllable snapshot for the
// loss-learning tests.
func closedLoss(confluence int, rsiAtEntry float64, regimeAt string) *Signal {
	sig := buildSignal(DirectionLong)
	sig.Status = StatusLoss
	sig.RegimeAtSignal = regimeAt
	sig.Reasons.ConfluenceCount = confluence
	sig.Snapshot["rsi"] = IndicatorSnapshot{Value: rsiAtEntry, Classification: "neutral", Signal: "neutral"}
	sig.ExitPrice = ptr(sig.StopLoss)
	sig.PnL = ptr(sig.StopLoss - sig.EntryPrice)
	sig.PnLPct = ptr((sig.StopLoss - sig.EntryPrice) / sig.EntryPrice * 100)
	closedAt := sig.GeneratedAt.Add(30 * time.Minute)
	sig.ClosedAt = &closedAt
	return sig
}

func closedWin() *Signal {
	sig := buildSignal(DirectionLong)
	sig.Status = StatusWin
	sig.ExitPrice = ptr(sig.TakeProfit)
	sig.PnL = ptr(sig.TakeProfit - sig.EntryPrice)
	sig.PnLPct = ptr((sig.TakeProfit - sig.EntryPrice) / sig.EntryPrice * 100)
	closedAt := sig.GeneratedAt.Add(30 * time.Minute)
	sig.ClosedAt = &closedAt
	return sig
}

// trendingTestSeries is a steady climb with growing volume.
func trendingTestSeries(symbol string, tf market.Timeframe, n int) *market.Series {
	rng := rand.New(rand.NewSource(7))
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		move := 0.8 + rng.Float64()*0.4
		open := price
		price += move
		candles = append(candles, market.Candle{
			Timestamp: start.Add(time.Duration(i) * tf.Duration()),
			Open:      open,
			High:      price + 0.3,
			Low:       open - 0.3,
			Close:     price,
			Volume:    1000 + float64(i)*10,
		})
	}
	return market.NewSeries(symbol, tf, candles)
}
