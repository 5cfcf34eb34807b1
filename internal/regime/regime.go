// Package regime labels the current market state from volatility and trend
// features. The signal engine dampens signals that fight the regime.
package regime

import (
	"math"

	"marketvision/internal/market"
)

// Regime labels.
const (
	TrendingUp       = "trending_up"
	TrendingDown     = "trending_down"
	Ranging          = "ranging"
	VolatileBreakout = "volatile_breakout"
	Unknown          = "unknown"
)

// Features are the per-bar inputs to the rule set.
type Features struct {
	ATRPct      float64 `json:"atr_pct"`
	TrendSlope  float64 `json:"trend_slope"`
	RSI         float64 `json:"rsi"`
	BBWidth     float64 `json:"bb_width"`
	VolumeRatio float64 `json:"volume_ratio"`
	ROC10       float64 `json:"roc10"`
	ADXProxy    float64 `json:"adx_proxy"`
}

// Detection is the classifier output for a series.
type Detection struct {
	Regime        string   `json:"regime"`
	Confidence    float64  `json:"confidence"`
	Stability     float64  `json:"stability"`
	Features      Features `json:"features"`
	RegimeHistory []string `json:"regime_history"`
}

// Detect classifies the latest bar of the series. Fewer than 30 candles
// yields the unknown regime with zero confidence.
func Detect(s *market.Series) Detection {
	if s == nil || s.Len() < 30 {
		return Detection{Regime: Unknown}
	}

	feats := computeFeatures(s.Candles)
	n := len(feats)
	if n == 0 {
		return Detection{Regime: Unknown}
	}

	latest := feats[n-1]
	regime, confidence := classify(latest)

	// Stability: fraction of the last 20 feature rows labelled the same
	start := n - 20
	if start < 0 {
		start = 0
	}
	recent := make([]string, 0, n-start)
	same := 0
	for _, f := range feats[start:] {
		r, _ := classify(f)
		recent = append(recent, r)
		if r == regime {
			same++
		}
	}
	stability := float64(same) / float64(len(recent))

	history := recent
	if len(history) > 10 {
		history = history[len(history)-10:]
	}

	return Detection{
		Regime:        regime,
		Confidence:    confidence,
		Stability:     stability,
		Features:      latest,
		RegimeHistory: history,
	}
}

// classify maps one feature row to a regime label with a confidence.
func classify(f Features) (string, float64) {
	switch {
	case f.ATRPct > 1.5 && f.VolumeRatio > 1.5 && f.BBWidth > 4:
		c := 0.6 + (f.ATRPct-1.5)*0.1 + (f.VolumeRatio-1.5)*0.1
		return VolatileBreakout, math.Min(0.95, c)
	case f.TrendSlope > 0.5 && f.RSI > 55 && f.ADXProxy > 0.3:
		c := 0.5 + f.TrendSlope*0.15 + (f.RSI-55)*0.005
		return TrendingUp, math.Min(0.95, c)
	case f.TrendSlope < -0.5 && f.RSI < 45 && f.ADXProxy > 0.3:
		c := 0.5 + math.Abs(f.TrendSlope)*0.15 + (45-f.RSI)*0.005
		return TrendingDown, math.Min(0.95, c)
	default:
		c := 0.4 + (1-f.ADXProxy)*0.3
		return Ranging, math.Min(0.9, c)
	}
}

// computeFeatures builds the feature rows, skipping leading bars where any
// rolling window has not filled yet.
func computeFeatures(candles []market.Candle) []Features {
	n := len(candles)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	tr := trueRange(candles)
	atr14 := rollingMean(tr, 14)

	ema20 := ema(closes, 20)
	trendSlope := make([]float64, n)
	for i := range trendSlope {
		trendSlope[i] = math.NaN()
		if i >= 5 && !math.IsNaN(atr14[i]) && atr14[i] > 1e-10 {
			trendSlope[i] = (ema20[i] - ema20[i-5]) / atr14[i]
		}
	}

	rsi := wilderRSI(closes, 14)
	sma20 := rollingMean(closes, 20)
	std20 := rollingStd(closes, 20)
	volSMA := rollingMean(volumes, 20)

	absSlope := make([]float64, n)
	for i, v := range trendSlope {
		absSlope[i] = math.Abs(v)
	}
	adxProxy := rollingMean(absSlope, 14)

	var out []Features
	for i := 0; i < n; i++ {
		atrPct := math.NaN()
		if !math.IsNaN(atr14[i]) && closes[i] > 1e-10 {
			atrPct = atr14[i] / closes[i] * 100
		}
		bbWidth := math.NaN()
		if !math.IsNaN(sma20[i]) && !math.IsNaN(std20[i]) && sma20[i] > 1e-10 {
			bbWidth = std20[i] * 2 / sma20[i] * 100
		}
		volumeRatio := math.NaN()
		if !math.IsNaN(volSMA[i]) {
			denom := volSMA[i]
			if denom < 1e-10 {
				denom = 1
			}
			volumeRatio = volumes[i] / denom
		}
		roc10 := math.NaN()
		if i >= 10 && closes[i-10] > 1e-10 {
			roc10 = (closes[i] - closes[i-10]) / closes[i-10] * 100
		}

		row := Features{
			ATRPct:      atrPct,
			TrendSlope:  trendSlope[i],
			RSI:         rsi[i],
			BBWidth:     bbWidth,
			VolumeRatio: volumeRatio,
			ROC10:       roc10,
			ADXProxy:    adxProxy[i],
		}
		if anyNaN(row) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func anyNaN(f Features) bool {
	for _, v := range []float64{f.ATRPct, f.TrendSlope, f.RSI, f.BBWidth, f.VolumeRatio, f.ROC10, f.ADXProxy} {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

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

func rollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		var sum float64
		n := 0
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				continue
			}
			sum += values[j]
			n++
		}
		if n == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(n)
		}
	}
	return out
}

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

// wilderRSI is the classic Wilder RSI with alpha = 1/period smoothing.
func wilderRSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(closes) < period+1 {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFrom(avgGain, avgLoss)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss < 1e-10 {
		avgLoss = 1e-10
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
