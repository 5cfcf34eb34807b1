package indicators

import (
	"math"

	"marketvision/internal/market"
)

// ATR is the Average True Range with Wilder smoothing. It feeds stop-loss
// and target distances and classifies the current volatility regime by
// comparing the latest ATR against its own recent average.
type ATR struct {
	period int
}

// NewATR creates an ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string { return "atr" }

func (a *ATR) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	if len(candles) <= a.period {
		return nil, nil
	}

	atr := atrSeries(candles, a.period)

	var results []Result
	for i := a.period; i < len(candles); i++ {
		val := atr[i]
		if math.IsNaN(val) {
			continue
		}
		price := candles[i].Close
		atrPct := 0.0
		if price > epsilon {
			atrPct = val / price * 100
		}

		start := i - a.period
		if start < 0 {
			start = 0
		}
		avgATR := meanSkipNaN(atr[start : i+1])
		ratio := 1.0
		if !math.IsNaN(avgATR) && avgATR > epsilon {
			ratio = val / avgATR
		}

		var classification string
		switch {
		case ratio > 1.5:
			classification = "high_volatility"
		case ratio > 1.15:
			classification = "rising_volatility"
		case ratio < 0.65:
			classification = "low_volatility"
		case ratio < 0.85:
			classification = "falling_volatility"
		default:
			classification = "normal_volatility"
		}

		results = append(results, Result{
			Name:      a.Name(),
			Value:     val,
			Secondary: secondary(atrPct),
			Timestamp: candles[i].Timestamp,
			Meta: Metadata{
				Classification: classification,
				Extra: map[string]interface{}{
					"atr_percent":        atrPct,
					"atr_ratio":          ratio,
					"stop_loss_distance": 2 * val,
					"price":              price,
				},
			},
		})
	}
	return results, nil
}
