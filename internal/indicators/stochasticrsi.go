package indicators

import (
	"math"

	"marketvision/internal/market"
)

// StochasticRSI applies the stochastic oscillator to the RSI series,
// producing faster overbought/oversold readings than raw RSI. %K is the
// smoothed stochastic, %D the signal line of %K.
type StochasticRSI struct {
	rsiPeriod   int
	stochPeriod int
	kSmooth     int
	dSmooth     int
}

// NewStochasticRSI creates a Stochastic RSI indicator.
func NewStochasticRSI(rsiPeriod, stochPeriod, kSmooth, dSmooth int) *StochasticRSI {
	return &StochasticRSI{
		rsiPeriod:   rsiPeriod,
		stochPeriod: stochPeriod,
		kSmooth:     kSmooth,
		dSmooth:     dSmooth,
	}
}

func (sr *StochasticRSI) Name() string { return "stochastic_rsi" }

func (sr *StochasticRSI) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	start := sr.rsiPeriod + sr.stochPeriod + sr.dSmooth
	if len(candles) <= start {
		return nil, nil
	}

	rsi := rsiSeries(s.Closes(), sr.rsiPeriod)

	stoch := make([]float64, len(rsi))
	for i := range rsi {
		stoch[i] = math.NaN()
		if i < sr.stochPeriod-1 {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		valid := true
		for j := i - sr.stochPeriod + 1; j <= i; j++ {
			if math.IsNaN(rsi[j]) {
				valid = false
				break
			}
			if rsi[j] < lo {
				lo = rsi[j]
			}
			if rsi[j] > hi {
				hi = rsi[j]
			}
		}
		if !valid {
			continue
		}
		if hi-lo < epsilon {
			stoch[i] = 50
		} else {
			stoch[i] = (rsi[i] - lo) / (hi - lo) * 100
		}
	}

	k := smoothSkipNaN(stoch, sr.kSmooth)
	d := smoothSkipNaN(k, sr.dSmooth)

	var results []Result
	for i := start; i < len(candles); i++ {
		kVal := k[i]
		dVal := d[i]
		if math.IsNaN(kVal) || math.IsNaN(dVal) {
			continue
		}

		crossover := ""
		if !math.IsNaN(k[i-1]) && !math.IsNaN(d[i-1]) {
			if k[i-1] <= d[i-1] && kVal > dVal {
				crossover = "bullish_crossover"
			} else if k[i-1] >= d[i-1] && kVal < dVal {
				crossover = "bearish_crossover"
			}
		}

		var classification string
		switch {
		case kVal >= 80:
			classification = "overbought"
		case kVal <= 20:
			classification = "oversold"
		case crossover == "bullish_crossover" && kVal < 50:
			classification = "bullish_reversal"
		case crossover == "bearish_crossover" && kVal > 50:
			classification = "bearish_reversal"
		default:
			classification = "neutral"
		}

		results = append(results, Result{
			Name:      sr.Name(),
			Value:     kVal,
			Secondary: secondary(dVal),
			Timestamp: candles[i].Timestamp,
			Meta: Metadata{
				Classification: classification,
				Crossover:      crossover,
			},
		})
	}
	return results, nil
}

// smoothSkipNaN is a simple moving average that yields NaN until the window
// holds no NaN inputs.
func smoothSkipNaN(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		out[i] = math.NaN()
		if i < window-1 {
			continue
		}
		var sum float64
		valid := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if valid {
			out[i] = sum / float64(window)
		}
	}
	return out
}
