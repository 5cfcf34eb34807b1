package indicators

import (
	"math"

	"marketvision/internal/market"
)

// MovingAverages tracks SMA 20/50/200 and EMA 9/21. Classification is a
// trend ladder built from how many averages price sits above, with EMA
// crossovers overriding and golden/death crosses tagged separately.
type MovingAverages struct{}

// NewMovingAverages creates the moving-average suite indicator.
func NewMovingAverages() *MovingAverages {
	return &MovingAverages{}
}

func (m *MovingAverages) Name() string { return "moving_averages" }

func (m *MovingAverages) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	const start = 50
	if len(candles) <= start {
		return nil, nil
	}

	closes := s.Closes()
	sma20 := sma(closes, 20)
	sma50 := sma(closes, 50)
	ema9 := ema(closes, 9)
	ema21 := ema(closes, 21)

	var sma200 []float64
	if len(closes) >= 200 {
		sma200 = sma(closes, 200)
	}

	var results []Result
	for i := start; i < len(candles); i++ {
		if math.IsNaN(sma20[i]) || math.IsNaN(sma50[i]) {
			continue
		}
		close := closes[i]

		above20 := close > sma20[i]
		above50 := close > sma50[i]
		trend2050 := sma20[i] > sma50[i]

		bullish := 0
		total := 3
		if above20 {
			bullish++
		}
		if above50 {
			bullish++
		}
		if trend2050 {
			bullish++
		}

		var above200 *bool
		if sma200 != nil && !math.IsNaN(sma200[i]) {
			v := close > sma200[i]
			above200 = &v
			total++
			if v {
				bullish++
			}
		}

		ratio := float64(bullish) / float64(total)
		var classification string
		switch {
		case ratio >= 0.75:
			classification = "strong_uptrend"
		case ratio >= 0.5:
			classification = "uptrend"
		case ratio <= 0.25:
			classification = "strong_downtrend"
		case ratio <= 0.5:
			classification = "downtrend"
		default:
			classification = "neutral"
		}

		// EMA 9/21 crossover takes precedence over the trend ladder
		if ema9[i-1] <= ema21[i-1] && ema9[i] > ema21[i] {
			classification = "bullish_ema_crossover"
		} else if ema9[i-1] >= ema21[i-1] && ema9[i] < ema21[i] {
			classification = "bearish_ema_crossover"
		}

		crossover := ""
		if sma200 != nil && i > 0 && !math.IsNaN(sma200[i]) && !math.IsNaN(sma200[i-1]) {
			if sma50[i-1] <= sma200[i-1] && sma50[i] > sma200[i] {
				crossover = "golden_cross"
			} else if sma50[i-1] >= sma200[i-1] && sma50[i] < sma200[i] {
				crossover = "death_cross"
			}
		}

		extra := map[string]interface{}{
			"sma20":       sma20[i],
			"sma50":       sma50[i],
			"ema9":        ema9[i],
			"ema21":       ema21[i],
			"above_sma20": above20,
			"above_sma50": above50,
		}
		if above200 != nil {
			extra["sma200"] = sma200[i]
			extra["above_sma200"] = *above200
		}

		results = append(results, Result{
			Name:      m.Name(),
			Value:     sma20[i],
			Secondary: secondary(sma50[i]),
			Timestamp: candles[i].Timestamp,
			Meta: Metadata{
				Classification: classification,
				Crossover:      crossover,
				Extra:          extra,
			},
		})
	}
	return results, nil
}
