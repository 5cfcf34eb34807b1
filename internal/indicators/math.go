package indicators

import (
	"math"

	"marketvision/internal/market"
)

// Guard against division by zero in ratio computations.
const epsilon = 1e-10

// sma returns the simple moving average series. Entries before the window
// fills are NaN.
func sma(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// ema returns the exponential moving average with alpha = 2/(span+1),
// seeded from the first value.
func ema(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// rollingStd returns the rolling sample standard deviation. Entries before
// the window fills are NaN.
func rollingStd(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		start := i - window + 1
		var mean float64
		for j := start; j <= i; j++ {
			mean += values[j]
		}
		mean /= float64(window)
		var variance float64
		for j := start; j <= i; j++ {
			d := values[j] - mean
			variance += d * d
		}
		out[i] = math.Sqrt(variance / float64(window-1))
	}
	return out
}

// rollingMean is like sma but skips NaN inputs inside the window.
func rollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		var n int
		for j := start; j <= i; j++ {
			if !math.IsNaN(values[j]) {
				sum += values[j]
				n++
			}
		}
		if n == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// trueRange returns the per-bar true range: max(high-low, |high-prevClose|,
// |low-prevClose|). The first bar uses high-low.
func trueRange(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			if d := math.Abs(c.High - prev); d > tr {
				tr = d
			}
			if d := math.Abs(c.Low - prev); d > tr {
				tr = d
			}
		}
		out[i] = tr
	}
	return out
}

// wilder applies Wilder's smoothing (alpha = 1/period): a simple average of
// the first `period` values, then avg = (prev*(period-1) + cur) / period.
// Entries before index period-1 are NaN.
func wilder(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(values) < period {
		return out
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < len(values); i++ {
		out[i] = (out[i-1]*float64(period-1) + values[i]) / float64(period)
	}
	return out
}

// rsiSeries computes the Wilder RSI over closes. Entries before index
// `period` are NaN.
func rsiSeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(closes) < period+1 {
		return out
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	avgGain := wilder(gains[1:], period)
	avgLoss := wilder(losses[1:], period)
	for i := period; i < len(closes); i++ {
		ag := avgGain[i-1]
		al := avgLoss[i-1]
		if math.IsNaN(ag) || math.IsNaN(al) {
			continue
		}
		if al < epsilon {
			al = epsilon
		}
		rs := ag / al
		out[i] = 100 - (100 / (1 + rs))
	}
	return out
}

// atrSeries computes the Wilder ATR. Entries before the period fills are NaN.
func atrSeries(candles []market.Candle, period int) []float64 {
	return wilder(trueRange(candles), period)
}
