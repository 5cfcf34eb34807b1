package indicators

import (
	"math"

	"marketvision/internal/market"
)

// VolumeSpike detects volume spikes relative to a rolling SMA and classifies
// them as accumulation (price up + high volume) or distribution (price
// flat/down + high volume). Emits only on bars where the spike threshold
// is reached.
type VolumeSpike struct {
	lookback  int
	threshold float64
}

// NewVolumeSpike creates a volume spike detector.
func NewVolumeSpike(lookback int, threshold float64) *VolumeSpike {
	return &VolumeSpike{lookback: lookback, threshold: threshold}
}

func (v *VolumeSpike) Name() string { return "volume_spike" }

func (v *VolumeSpike) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	if len(candles) <= v.lookback {
		return nil, nil
	}

	volSMA := sma(s.Volumes(), v.lookback)

	var results []Result
	for i := v.lookback; i < len(candles); i++ {
		avg := volSMA[i]
		if math.IsNaN(avg) || avg < epsilon {
			continue
		}
		ratio := candles[i].Volume / avg
		if ratio < v.threshold {
			continue
		}

		prevClose := candles[i-1].Close
		var pchange float64
		if prevClose > epsilon {
			pchange = (candles[i].Close - prevClose) / prevClose
		}

		classification := "neutral_high_volume"
		if pchange > 0.001 {
			classification = "accumulation"
		} else if pchange < -0.001 {
			classification = "distribution"
		}

		results = append(results, Result{
			Name:      v.Name(),
			Value:     ratio,
			Secondary: secondary(pchange),
			Timestamp: candles[i].Timestamp,
			Meta: Metadata{
				Classification: classification,
				Extra: map[string]interface{}{
					"volume":     candles[i].Volume,
					"sma_volume": avg,
					"threshold":  v.threshold,
				},
			},
		})
	}
	return results, nil
}
