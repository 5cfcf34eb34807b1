package regime

import (
	"math"
	"testing"
	"time"

	"marketvision/internal/market"
)

func seriesFrom(closeFn func(i int) float64, volFn func(i int) float64, n int) *market.Series {
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 0, n)
	prev := closeFn(0)
	for i := 0; i < n; i++ {
		close := closeFn(i)
		open := prev
		high := math.Max(open, close) + 0.3
		low := math.Min(open, close) - 0.3
		candles = append(candles, market.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      open, High: high, Low: low, Close: close,
			Volume: volFn(i),
		})
		prev = close
	}
	return market.NewSeries("BTCUSDT", market.TF1h, candles)
}

func TestDetectShortSeriesUnknown(t *testing.T) {
	s := seriesFrom(func(i int) float64 { return 100 }, func(int) float64 { return 1000 }, 20)
	d := Detect(s)
	if d.Regime != Unknown {
		t.Errorf("expected unknown on 20 bars, got %s", d.Regime)
	}
	if d.Confidence != 0 {
		t.Errorf("expected zero confidence, got %.2f", d.Confidence)
	}
}

func TestDetectNilSeriesUnknown(t *testing.T) {
	if d := Detect(nil); d.Regime != Unknown {
		t.Errorf("expected unknown on nil series, got %s", d.Regime)
	}
}

func TestDetectTrendingUp(t *testing.T) {
	s := seriesFrom(
		func(i int) float64 { return 100 + float64(i)*1.5 },
		func(int) float64 { return 1000 },
		80,
	)
	d := Detect(s)
	if d.Regime != TrendingUp {
		t.Fatalf("expected trending_up on a steady climb, got %s (features %+v)", d.Regime, d.Features)
	}
	if d.Confidence <= 0.5 || d.Confidence > 0.95 {
		t.Errorf("confidence out of expected range: %.3f", d.Confidence)
	}
	if d.Stability < 0.8 {
		t.Errorf("a persistent trend should be stable, got %.2f", d.Stability)
	}
}

func TestDetectTrendingDown(t *testing.T) {
	s := seriesFrom(
		func(i int) float64 { return 300 - float64(i)*1.5 },
		func(int) float64 { return 1000 },
		80,
	)
	d := Detect(s)
	if d.Regime != TrendingDown {
		t.Fatalf("expected trending_down on a steady decline, got %s", d.Regime)
	}
}

func TestDetectRangingOnFlatMarket(t *testing.T) {
	s := seriesFrom(
		func(i int) float64 { return 100 + 0.4*math.Sin(float64(i)/3) },
		func(int) float64 { return 1000 },
		80,
	)
	d := Detect(s)
	if d.Regime != Ranging {
		t.Fatalf("expected ranging on an oscillating market, got %s", d.Regime)
	}
	if d.Confidence > 0.9 {
		t.Errorf("ranging confidence capped at 0.9, got %.3f", d.Confidence)
	}
}

func TestDetectVolatileBreakout(t *testing.T) {
	// Quiet market then a violent high-volume expansion on the final bars
	s := seriesFrom(
		func(i int) float64 {
			if i < 70 {
				return 100 + 0.2*math.Sin(float64(i)/4)
			}
			return 100 + float64(i-69)*6
		},
		func(i int) float64 {
			if i < 70 {
				return 1000
			}
			return 6000
		},
		80,
	)
	d := Detect(s)
	if d.Regime != VolatileBreakout && d.Regime != TrendingUp {
		t.Fatalf("expected volatile_breakout or trending_up after expansion, got %s (features %+v)", d.Regime, d.Features)
	}
	if d.Regime == VolatileBreakout && d.Confidence < 0.6 {
		t.Errorf("breakout confidence should start at 0.6, got %.3f", d.Confidence)
	}
}

func TestStabilityBounds(t *testing.T) {
	s := seriesFrom(
		func(i int) float64 { return 100 + float64(i) },
		func(int) float64 { return 1000 },
		60,
	)
	d := Detect(s)
	if d.Stability < 0 || d.Stability > 1 {
		t.Errorf("stability out of [0,1]: %.2f", d.Stability)
	}
	if len(d.RegimeHistory) == 0 || len(d.RegimeHistory) > 10 {
		t.Errorf("regime history should hold up to 10 labels, got %d", len(d.RegimeHistory))
	}
}

func TestDetectDeterministic(t *testing.T) {
	s := seriesFrom(
		func(i int) float64 { return 100 + float64(i%7) + float64(i)*0.3 },
		func(i int) float64 { return 1000 + float64(i%5)*100 },
		90,
	)
	a := Detect(s)
	b := Detect(s)
	if a.Regime != b.Regime || a.Confidence != b.Confidence || a.Stability != b.Stability {
		t.Error("detection must be deterministic for identical input")
	}
}
