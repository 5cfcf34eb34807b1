package indicators

import (
	"marketvision/internal/market"
)

// ADLine is the Accumulation/Distribution line: the cumulative sum of
// Money Flow Volume. Divergences between A/D and price indicate smart
// money activity.
type ADLine struct {
	divergenceLookback int
}

// NewADLine creates an A/D line indicator with the given divergence lookback.
func NewADLine(divergenceLookback int) *ADLine {
	return &ADLine{divergenceLookback: divergenceLookback}
}

func (a *ADLine) Name() string { return "ad_line" }

func (a *ADLine) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	if len(candles) <= a.divergenceLookback {
		return nil, nil
	}

	// Money Flow Volume per bar, accumulated into the A/D line
	mfv := make([]float64, len(candles))
	ad := make([]float64, len(candles))
	for i, c := range candles {
		rng := c.Range()
		if rng < epsilon {
			rng = epsilon
		}
		mfm := ((c.Close - c.Low) - (c.High - c.Close)) / rng
		mfv[i] = mfm * c.Volume
		if i == 0 {
			ad[i] = mfv[i]
		} else {
			ad[i] = ad[i-1] + mfv[i]
		}
	}

	lb := a.divergenceLookback
	var results []Result
	for i := lb; i < len(candles); i++ {
		priceSlope := candles[i].Close - candles[i-lb].Close
		adSlope := ad[i] - ad[i-lb]

		divergence := ""
		if priceSlope > 0 && adSlope < 0 {
			divergence = "bearish_divergence"
		} else if priceSlope < 0 && adSlope > 0 {
			divergence = "bullish_divergence"
		}

		results = append(results, Result{
			Name:      a.Name(),
			Value:     ad[i],
			Secondary: secondary(mfv[i]),
			Timestamp: candles[i].Timestamp,
			Meta:      Metadata{Divergence: divergence},
		})
	}
	return results, nil
}
