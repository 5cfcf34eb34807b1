package indicators

import (
	"math"

	"marketvision/internal/market"
)

// CandlePatterns detects classic single and multi-candle reversal and
// continuation patterns. Each bar gets a result; when several patterns
// overlap the strongest one names the bar and the classification follows
// the majority bias.
type CandlePatterns struct{}

// NewCandlePatterns creates a candlestick pattern detector.
func NewCandlePatterns() *CandlePatterns {
	return &CandlePatterns{}
}

func (cp *CandlePatterns) Name() string { return "candle_patterns" }

type patternHit struct {
	name     string
	kind     string
	bias     string
	strength float64
}

func (cp *CandlePatterns) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	if len(candles) < 5 {
		return nil, nil
	}

	bodies := make([]float64, len(candles))
	for i, c := range candles {
		bodies[i] = c.Body()
	}
	avgBodies := rollingMean(bodies, 20)

	var results []Result
	for i := 2; i < len(candles); i++ {
		c := candles[i]
		avgB := avgBodies[i]
		if math.IsNaN(avgB) {
			avgB = c.Body()
		}

		hits := detectPatterns(candles, i, avgB)

		best := patternHit{name: "none", bias: "neutral"}
		bull, bear := 0, 0
		names := make([]string, 0, len(hits))
		for _, h := range hits {
			names = append(names, h.name)
			if h.strength > best.strength {
				best = h
			}
			switch h.bias {
			case "bullish":
				bull++
			case "bearish":
				bear++
			}
		}

		classification := "neutral"
		if bull > bear {
			classification = "bullish"
		} else if bear > bull {
			classification = "bearish"
		}

		results = append(results, Result{
			Name:      cp.Name(),
			Value:     best.strength,
			Secondary: secondary(float64(len(hits))),
			Timestamp: c.Timestamp,
			Meta: Metadata{
				Classification: classification,
				Extra: map[string]interface{}{
					"pattern":      best.name,
					"pattern_type": best.kind,
					"all_patterns": names,
					"strength":     best.strength,
				},
			},
		})
	}
	return results, nil
}

func detectPatterns(candles []market.Candle, i int, avgBody float64) []patternHit {
	c := candles[i]
	prev := candles[i-1]
	prev2 := candles[i-2]

	rng := c.Range()
	body := c.Body()
	if rng < 1e-10 || avgBody < 1e-10 {
		return nil
	}

	var hits []patternHit
	add := func(name, kind, bias string, strength float64) {
		hits = append(hits, patternHit{name: name, kind: kind, bias: bias, strength: strength})
	}

	bodyRatio := body / rng
	upperW := c.UpperWick()
	lowerW := c.LowerWick()

	// Single-candle patterns
	if bodyRatio < 0.1 {
		add("doji", "reversal", "neutral", 0.5)
	}
	if lowerW > 2*body && upperW < 0.5*body && bodyRatio < 0.35 {
		add("hammer", "reversal", "bullish", 0.7)
	}
	if upperW > 2*body && lowerW < 0.5*body && bodyRatio < 0.35 {
		add("shooting_star", "reversal", "bearish", 0.7)
	}
	if bodyRatio > 0.85 && body > 1.2*avgBody {
		bias := "bearish"
		if c.IsBullish() {
			bias = "bullish"
		}
		add("marubozu", "continuation", bias, 0.6)
	}

	// Two-candle patterns
	if prev.IsBearish() && c.IsBullish() && c.Open <= prev.Close && c.Close >= prev.Open {
		add("bullish_engulfing", "reversal", "bullish", 0.85)
	}
	if prev.IsBullish() && c.IsBearish() && c.Open >= prev.Close && c.Close <= prev.Open {
		add("bearish_engulfing", "reversal", "bearish", 0.85)
	}
	if prev.IsBearish() && c.IsBullish() &&
		c.Open < prev.Close && c.Close > (prev.Open+prev.Close)/2 && c.Close < prev.Open {
		add("piercing_line", "reversal", "bullish", 0.7)
	}
	if prev.IsBullish() && c.IsBearish() &&
		c.Open > prev.Close && c.Close < (prev.Open+prev.Close)/2 && c.Close > prev.Open {
		add("dark_cloud_cover", "reversal", "bearish", 0.7)
	}

	// Three-candle patterns
	smallMiddle := prev.Body() < 0.5*avgBody
	if prev2.IsBearish() && smallMiddle && c.IsBullish() &&
		c.Close > (prev2.Open+prev2.Close)/2 {
		add("morning_star", "reversal", "bullish", 0.9)
	}
	if prev2.IsBullish() && smallMiddle && c.IsBearish() &&
		c.Close < (prev2.Open+prev2.Close)/2 {
		add("evening_star", "reversal", "bearish", 0.9)
	}
	if prev2.IsBullish() && prev.IsBullish() && c.IsBullish() &&
		prev.Close > prev2.Close && c.Close > prev.Close &&
		prev.Body() > 0.5*avgBody && c.Body() > 0.5*avgBody {
		add("three_white_soldiers", "continuation", "bullish", 0.85)
	}
	if prev2.IsBearish() && prev.IsBearish() && c.IsBearish() &&
		prev.Close < prev2.Close && c.Close < prev.Close &&
		prev.Body() > 0.5*avgBody && c.Body() > 0.5*avgBody {
		add("three_black_crows", "continuation", "bearish", 0.85)
	}

	return hits
}
