package indicators

import (
	"marketvision/internal/market"
)

// OBV calculates On-Balance Volume and flags divergences between the OBV
// trend and the price trend. Divergences signal potential reversals.
type OBV struct {
	divergenceLookback int
}

// NewOBV creates an OBV indicator with the given divergence lookback.
func NewOBV(divergenceLookback int) *OBV {
	return &OBV{divergenceLookback: divergenceLookback}
}

func (o *OBV) Name() string { return "obv" }

func (o *OBV) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	if len(candles) <= o.divergenceLookback {
		return nil, nil
	}

	obv := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			obv[i] = obv[i-1] + candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			obv[i] = obv[i-1] - candles[i].Volume
		default:
			obv[i] = obv[i-1]
		}
	}

	lb := o.divergenceLookback
	var results []Result
	for i := lb; i < len(candles); i++ {
		divergence := detectVolumeDivergence(
			closesWindow(candles, i-lb, i),
			obv[i-lb:i+1],
		)
		results = append(results, Result{
			Name:      o.Name(),
			Value:     obv[i],
			Timestamp: candles[i].Timestamp,
			Meta:      Metadata{Divergence: divergence},
		})
	}
	return results, nil
}

func closesWindow(candles []market.Candle, from, to int) []float64 {
	out := make([]float64, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, candles[i].Close)
	}
	return out
}

// detectVolumeDivergence compares price extremes against the cumulative
// volume line over the window. Price making a higher high while the line
// makes a lower high is bearish; the mirror is bullish.
func detectVolumeDivergence(prices, line []float64) string {
	if len(prices) < 3 || len(line) < 3 {
		return ""
	}
	interiorMax := func(v []float64) float64 {
		m := v[1]
		for _, x := range v[1 : len(v)-1] {
			if x > m {
				m = x
			}
		}
		return m
	}
	interiorMin := func(v []float64) float64 {
		m := v[1]
		for _, x := range v[1 : len(v)-1] {
			if x < m {
				m = x
			}
		}
		return m
	}

	priceHigherHigh := prices[len(prices)-1] > interiorMax(prices)
	lineLowerHigh := line[len(line)-1] < interiorMax(line)
	priceLowerLow := prices[len(prices)-1] < interiorMin(prices)
	lineHigherLow := line[len(line)-1] > interiorMin(line)

	if priceHigherHigh && lineLowerHigh {
		return "bearish_divergence"
	}
	if priceLowerLow && lineHigherLow {
		return "bullish_divergence"
	}
	return ""
}
