package signal

import (
	"marketvision/internal/market"
)

// OutcomeStats aggregates win/loss performance for one slice of signals.
type OutcomeStats struct {
	Total   int     `json:"total"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`
	PnLPct  float64 `json:"pnl_pct"`
}

// Analytics summarizes signal performance for one symbol.
type Analytics struct {
	Symbol       string  `json:"symbol"`
	TotalSignals int     `json:"total_signals"`
	Open         int     `json:"open"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Expired      int     `json:"expired"`
	WinRate      float64 `json:"win_rate"`
	TotalPnLPct  float64 `json:"total_pnl_pct"`
	AvgPnLPct    float64 `json:"avg_pnl_pct"`
	ProfitFactor float64 `json:"profit_factor"`
	BestPnLPct   float64 `json:"best_pnl_pct"`
	WorstPnLPct  float64 `json:"worst_pnl_pct"`

	ByTimeframe map[market.Timeframe]OutcomeStats `json:"by_timeframe"`
	ByDirection map[Direction]OutcomeStats        `json:"by_direction"`
	EquityCurve []float64                         `json:"equity_curve"`
}

// ComputeAnalytics aggregates performance over signals already filtered to
// one symbol, in save order.
func ComputeAnalytics(symbol string, signals []*Signal) Analytics {
	a := Analytics{
		Symbol:      market.CanonicalSymbol(symbol),
		ByTimeframe: make(map[market.Timeframe]OutcomeStats),
		ByDirection: make(map[Direction]OutcomeStats),
	}

	grossProfit, grossLoss := 0.0, 0.0
	closedCount := 0
	equity := 0.0

	for _, sig := range signals {
		a.TotalSignals++
		switch sig.Status {
		case StatusPending, StatusActive:
			a.Open++
			continue
		case StatusExpired:
			a.Expired++
			continue
		case StatusWin:
			a.Wins++
		case StatusLoss:
			a.Losses++
		}

		closedCount++
		pct := 0.0
		if sig.PnLPct != nil {
			pct = *sig.PnLPct
		}
		a.TotalPnLPct += pct
		equity += pct
		a.EquityCurve = append(a.EquityCurve, equity)
		if pct > a.BestPnLPct {
			a.BestPnLPct = pct
		}
		if pct < a.WorstPnLPct {
			a.WorstPnLPct = pct
		}
		if pct >= 0 {
			grossProfit += pct
		} else {
			grossLoss += -pct
		}

		bumpStats(a.ByTimeframe, sig.Timeframe, sig.Status, pct)
		bumpStats(a.ByDirection, sig.Direction, sig.Status, pct)
	}

	if closedCount > 0 {
		a.WinRate = float64(a.Wins) / float64(closedCount)
		a.AvgPnLPct = a.TotalPnLPct / float64(closedCount)
	}
	if grossLoss > 1e-10 {
		a.ProfitFactor = grossProfit / grossLoss
	} else {
		// no losing trades; report gross profit so the value stays JSON-safe
		a.ProfitFactor = grossProfit
	}
	return a
}

func bumpStats[K comparable](m map[K]OutcomeStats, key K, status Status, pct float64) {
	s := m[key]
	s.Total++
	if status == StatusWin {
		s.Wins++
	} else {
		s.Losses++
	}
	s.PnLPct += pct
	if s.Total > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Total)
	}
	m[key] = s
}
