package indicators

import (
	"math"

	"marketvision/internal/market"
)

// RSI measures momentum on a 0-100 scale using Wilder's smoothing.
// Above 70 is overbought territory, below 30 oversold; divergences between
// RSI and price signal potential reversals.
type RSI struct {
	period int
}

// NewRSI creates an RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string { return "rsi" }

func (r *RSI) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	if len(candles) <= r.period {
		return nil, nil
	}

	closes := s.Closes()
	rsi := rsiSeries(closes, r.period)

	var results []Result
	for i := r.period; i < len(candles); i++ {
		val := rsi[i]
		if math.IsNaN(val) {
			continue
		}

		var classification string
		switch {
		case val >= 70:
			classification = "overbought"
		case val >= 60:
			classification = "bullish_momentum"
		case val <= 30:
			classification = "oversold"
		case val <= 40:
			classification = "bearish_momentum"
		default:
			classification = "neutral"
		}

		lb := r.period
		if lb > i {
			lb = i
		}
		priceSlope := closes[i] - closes[i-lb]
		rsiSlope := rsi[i] - rsi[i-lb]

		divergence := ""
		if !math.IsNaN(rsiSlope) {
			if priceSlope > 0 && rsiSlope < -5 {
				divergence = "bearish_divergence"
			} else if priceSlope < 0 && rsiSlope > 5 {
				divergence = "bullish_divergence"
			}
		}

		results = append(results, Result{
			Name:      r.Name(),
			Value:     val,
			Timestamp: candles[i].Timestamp,
			Meta: Metadata{
				Classification: classification,
				Divergence:     divergence,
			},
		})
	}
	return results, nil
}
