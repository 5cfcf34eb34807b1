package indicators

import (
	"math"

	"marketvision/internal/market"
)

// BollingerBands are SMA ± (std dev * multiplier) volatility bands.
// Price near the upper band marks a strong uptrend or overbought state,
// near the lower band the reverse; a band squeeze (bandwidth well below its
// rolling average) flags an imminent breakout.
type BollingerBands struct {
	period int
	stdDev float64
}

// NewBollingerBands creates a Bollinger Bands indicator.
func NewBollingerBands(period int, stdDev float64) *BollingerBands {
	return &BollingerBands{period: period, stdDev: stdDev}
}

func (b *BollingerBands) Name() string { return "bollinger_bands" }

func (b *BollingerBands) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	if len(candles) <= b.period {
		return nil, nil
	}

	closes := s.Closes()
	mid := sma(closes, b.period)
	std := rollingStd(closes, b.period)

	bandwidth := make([]float64, len(closes))
	for i := range closes {
		if math.IsNaN(mid[i]) || math.IsNaN(std[i]) || mid[i] < epsilon {
			bandwidth[i] = math.NaN()
			continue
		}
		bandwidth[i] = (2 * std[i] * b.stdDev) / mid[i] * 100
	}

	var results []Result
	for i := b.period; i < len(candles); i++ {
		if math.IsNaN(mid[i]) || math.IsNaN(std[i]) {
			continue
		}
		close := closes[i]
		upper := mid[i] + std[i]*b.stdDev
		lower := mid[i] - std[i]*b.stdDev
		bw := bandwidth[i]

		// %B: position of price within the bands (0 = lower, 1 = upper)
		pctB := 0.5
		if bandRange := upper - lower; bandRange > epsilon {
			pctB = (close - lower) / bandRange
		}

		// Squeeze: bandwidth well below its recent average
		start := i - b.period
		if start < 0 {
			start = 0
		}
		avgBW := meanSkipNaN(bandwidth[start : i+1])
		isSqueeze := !math.IsNaN(avgBW) && bw < avgBW*0.75

		var classification string
		switch {
		case pctB > 1.0:
			classification = "above_upper_band"
		case pctB > 0.8:
			classification = "near_upper_band"
		case pctB < 0.0:
			classification = "below_lower_band"
		case pctB < 0.2:
			classification = "near_lower_band"
		default:
			classification = "within_bands"
		}
		if isSqueeze {
			classification = "squeeze"
		}

		results = append(results, Result{
			Name:      b.Name(),
			Value:     mid[i],
			Secondary: secondary(bw),
			Timestamp: candles[i].Timestamp,
			Meta: Metadata{
				Classification: classification,
				Extra: map[string]interface{}{
					"upper_band":  upper,
					"lower_band":  lower,
					"middle_band": mid[i],
					"bandwidth":   bw,
					"percent_b":   pctB,
					"is_squeeze":  isSqueeze,
				},
			},
		})
	}
	return results, nil
}

func meanSkipNaN(values []float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
