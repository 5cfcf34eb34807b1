package ml

import (
	"math"
	"testing"
	"time"

	"marketvision/internal/market"
)

func buildSeries(n int, closeFn func(i int) float64, volFn func(i int) float64) *market.Series {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 0, n)
	prev := closeFn(0)
	for i := 0; i < n; i++ {
		close := closeFn(i)
		open := prev
		candles = append(candles, market.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      open,
			High:      math.Max(open, close) + 0.2,
			Low:       math.Min(open, close) - 0.2,
			Close:     close,
			Volume:    volFn(i),
		})
		prev = close
	}
	return market.NewSeries("BTCUSDT", market.TF1h, candles)
}

func TestPredictShortSeriesNeutral(t *testing.T) {
	s := buildSeries(20, func(i int) float64 { return 100 }, func(int) float64 { return 1000 })
	p := NewFeaturePredictor(DefaultConfig())
	pred, err := p.Predict(s, "BTCUSDT", market.TF1h)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred.Direction != DirectionNeutral || pred.Confidence != 0 {
		t.Errorf("expected neutral zero-confidence on short series, got %s %.2f", pred.Direction, pred.Confidence)
	}
}

func TestPredictBullishOnUptrend(t *testing.T) {
	s := buildSeries(80,
		func(i int) float64 { return 100 + float64(i)*0.8 },
		func(i int) float64 { return 1000 + float64(i)*20 },
	)
	p := NewFeaturePredictor(DefaultConfig())
	pred, err := p.Predict(s, "BTCUSDT", market.TF1h)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred.Direction != DirectionBullish {
		t.Errorf("expected bullish on steady uptrend, got %s (signals %v)", pred.Direction, pred.Signals)
	}
	if pred.Confidence <= 0 || pred.Confidence > 1 {
		t.Errorf("confidence out of bounds: %.3f", pred.Confidence)
	}
}

func TestPredictBearishOnDowntrend(t *testing.T) {
	s := buildSeries(80,
		func(i int) float64 { return 200 - float64(i)*0.8 },
		func(int) float64 { return 1000 },
	)
	p := NewFeaturePredictor(DefaultConfig())
	pred, err := p.Predict(s, "EURUSD", market.TF15m)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	// Mean reversion pulls against the trend; the combined signal must
	// still not flip to bullish on a persistent decline.
	if pred.Direction == DirectionBullish {
		t.Errorf("downtrend must not predict bullish (signals %v)", pred.Signals)
	}
}

func TestPredictDeterministic(t *testing.T) {
	s := buildSeries(90,
		func(i int) float64 { return 100 + 3*math.Sin(float64(i)/5) + float64(i)*0.1 },
		func(i int) float64 { return 1000 + float64(i%7)*150 },
	)
	p := NewFeaturePredictor(DefaultConfig())
	a, _ := p.Predict(s, "BTCUSDT", market.TF1h)
	b, _ := p.Predict(s, "BTCUSDT", market.TF1h)
	if a.Direction != b.Direction || a.Confidence != b.Confidence {
		t.Error("prediction must be deterministic for identical input")
	}
	for k, v := range a.Signals {
		if b.Signals[k] != v {
			t.Errorf("signal %s differs between runs", k)
		}
	}
}

func TestRecordOutcomeAccuracy(t *testing.T) {
	p := NewFeaturePredictor(DefaultConfig())
	p.RecordOutcome(DirectionBullish, 1.5)
	p.RecordOutcome(DirectionBullish, -0.5)
	p.RecordOutcome(DirectionBearish, -2.0)
	acc, n := p.Accuracy()
	if n != 3 {
		t.Fatalf("expected 3 recorded outcomes, got %d", n)
	}
	if math.Abs(acc-2.0/3.0) > 1e-9 {
		t.Errorf("expected accuracy 2/3, got %.3f", acc)
	}
}
