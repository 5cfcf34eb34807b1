package indicators

import (
	"marketvision/internal/market"
)

// MACD is EMA(fast) - EMA(slow) with a signal line (EMA of the MACD line).
// A growing positive histogram is bullish momentum, a shrinking one bullish
// weakening; crossovers of the MACD and signal lines are tagged on the bar
// where they occur.
type MACD struct {
	fast         int
	slow         int
	signalPeriod int
}

// NewMACD creates a MACD indicator with the standard 12/26/9 defaults.
func NewMACD(fast, slow, signalPeriod int) *MACD {
	return &MACD{fast: fast, slow: slow, signalPeriod: signalPeriod}
}

func (m *MACD) Name() string { return "macd" }

func (m *MACD) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	start := m.slow + m.signalPeriod
	if len(candles) <= start {
		return nil, nil
	}

	closes := s.Closes()
	emaFast := ema(closes, m.fast)
	emaSlow := ema(closes, m.slow)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = emaFast[i] - emaSlow[i]
	}
	signalLine := ema(macdLine, m.signalPeriod)

	var results []Result
	for i := start; i < len(candles); i++ {
		macdVal := macdLine[i]
		sigVal := signalLine[i]
		hist := macdVal - sigVal
		prevHist := macdLine[i-1] - signalLine[i-1]

		crossover := ""
		if macdLine[i-1] <= signalLine[i-1] && macdVal > sigVal {
			crossover = "bullish_crossover"
		} else if macdLine[i-1] >= signalLine[i-1] && macdVal < sigVal {
			crossover = "bearish_crossover"
		}

		var classification string
		switch {
		case hist > 0 && hist > prevHist:
			classification = "bullish_momentum"
		case hist > 0:
			classification = "bullish_weakening"
		case hist < 0 && hist < prevHist:
			classification = "bearish_momentum"
		case hist < 0:
			classification = "bearish_weakening"
		default:
			classification = "neutral"
		}

		results = append(results, Result{
			Name:      m.Name(),
			Value:     macdVal,
			Secondary: secondary(sigVal),
			Timestamp: candles[i].Timestamp,
			Meta: Metadata{
				Classification: classification,
				Crossover:      crossover,
				Extra: map[string]interface{}{
					"signal_line": sigVal,
					"histogram":   hist,
				},
			},
		})
	}
	return results, nil
}
