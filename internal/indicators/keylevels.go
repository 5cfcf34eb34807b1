package indicators

import (
	"fmt"
	"math"
	"sort"

	"marketvision/internal/market"
)

// KeyLevels builds a support/resistance map from classic pivots, clustered
// swing levels and Fibonacci retracements of the latest major swing, then
// scores the current price location against the nearest levels.
type KeyLevels struct {
	swingLookback    int
	clusterThreshold float64
}

// NewKeyLevels creates a key-levels indicator. clusterThreshold is the
// relative distance within which swing levels merge into one level.
func NewKeyLevels(swingLookback int, clusterThreshold float64) *KeyLevels {
	return &KeyLevels{swingLookback: swingLookback, clusterThreshold: clusterThreshold}
}

func (k *KeyLevels) Name() string { return "key_levels" }

type srLevel struct {
	price   float64
	touches int
}

func (k *KeyLevels) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	if len(candles) < 30 {
		return nil, nil
	}

	last := candles[len(candles)-1]
	close := last.Close

	// Classic pivots from the last 20 bars
	window := candles[len(candles)-20:]
	hi, lo := window[0].High, window[0].Low
	for _, c := range window {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}
	pp := round2((hi + lo + close) / 3)
	r1 := round2(2*pp - lo)
	r2 := round2(pp + (hi - lo))
	r3 := round2(hi + 2*(pp-lo))
	s1 := round2(2*pp - hi)
	s2 := round2(pp - (hi - lo))
	s3 := round2(lo - 2*(hi-pp))

	srLevels := k.clusterSwingLevels(candles)
	fibLevels := k.fibonacciLevels(candles)

	// Collect candidate levels above and below price
	var levels []float64
	levels = append(levels, pp, r1, r2, r3, s1, s2, s3)
	for _, l := range srLevels {
		levels = append(levels, l.price)
	}
	for _, p := range fibLevels {
		levels = append(levels, p)
	}

	var supports, resistances []float64
	for _, l := range levels {
		if l < close {
			supports = append(supports, l)
		} else if l > close {
			resistances = append(resistances, l)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(supports)))
	sort.Float64s(resistances)

	supportDist := math.Inf(1)
	resistDist := math.Inf(1)
	var nearestSupport, nearestResistance float64
	if len(supports) > 0 {
		nearestSupport = supports[0]
		supportDist = (close - nearestSupport) / close * 100
	}
	if len(resistances) > 0 {
		nearestResistance = resistances[0]
		resistDist = (nearestResistance - close) / close * 100
	}

	var classification string
	switch {
	case supportDist < 0.3:
		classification = "at_support"
	case resistDist < 0.3:
		classification = "at_resistance"
	case resistDist > 2*supportDist:
		classification = "bullish_room"
	case supportDist > 2*resistDist:
		classification = "bearish_room"
	default:
		classification = "between_levels"
	}

	rr := resistDist / math.Max(supportDist, 0.01)

	fibDescs := make([]string, 0, len(fibLevels))
	for _, ratio := range fibRatios {
		fibDescs = append(fibDescs, fmt.Sprintf("%.3f: %.2f", ratio, fibLevels[ratio]))
	}

	srDescs := make([]string, 0, 10)
	for i, l := range srLevels {
		if i >= 10 {
			break
		}
		srDescs = append(srDescs, fmt.Sprintf("%.2f (x%d)", l.price, l.touches))
	}

	return []Result{{
		Name:      k.Name(),
		Value:     rr,
		Secondary: secondary(close),
		Timestamp: last.Timestamp,
		Meta: Metadata{
			Classification: classification,
			Extra: map[string]interface{}{
				"pivot":               pp,
				"r1":                  r1,
				"r2":                  r2,
				"r3":                  r3,
				"s1":                  s1,
				"s2":                  s2,
				"s3":                  s3,
				"nearest_support":     nearestSupport,
				"nearest_resistance":  nearestResistance,
				"support_distance":    supportDist,
				"resistance_distance": resistDist,
				"risk_reward_ratio":   rr,
				"fibonacci_levels":    fibDescs,
				"sr_levels":           srDescs,
			},
		},
	}}, nil
}

// clusterSwingLevels merges swing highs and lows within the cluster
// threshold into levels ranked by touch count.
func (k *KeyLevels) clusterSwingLevels(candles []market.Candle) []srLevel {
	lb := k.swingLookback
	var points []float64
	for i := lb; i < len(candles)-lb; i++ {
		isHigh, isLow := true, true
		for j := i - lb; j <= i+lb; j++ {
			if j == i {
				continue
			}
			if candles[j].High > candles[i].High {
				isHigh = false
			}
			if candles[j].Low < candles[i].Low {
				isLow = false
			}
		}
		if isHigh {
			points = append(points, candles[i].High)
		}
		if isLow {
			points = append(points, candles[i].Low)
		}
	}

	var levels []srLevel
	for _, p := range points {
		merged := false
		for i := range levels {
			if p > epsilon && math.Abs(levels[i].price-p)/p < k.clusterThreshold {
				levels[i].price = (levels[i].price*float64(levels[i].touches) + p) / float64(levels[i].touches+1)
				levels[i].touches++
				merged = true
				break
			}
		}
		if !merged {
			levels = append(levels, srLevel{price: p, touches: 1})
		}
	}
	sort.Slice(levels, func(a, b int) bool { return levels[a].touches > levels[b].touches })
	if len(levels) > 15 {
		levels = levels[:15]
	}
	return levels
}

var fibRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

// fibonacciLevels computes retracement prices of the major swing within
// the last 100 bars.
func (k *KeyLevels) fibonacciLevels(candles []market.Candle) map[float64]float64 {
	start := len(candles) - 100
	if start < 0 {
		start = 0
	}
	window := candles[start:]

	hiIdx, loIdx := 0, 0
	for i, c := range window {
		if c.High > window[hiIdx].High {
			hiIdx = i
		}
		if c.Low < window[loIdx].Low {
			loIdx = i
		}
	}
	high := window[hiIdx].High
	low := window[loIdx].Low
	diff := high - low
	upswing := loIdx < hiIdx

	levels := make(map[float64]float64, len(fibRatios))
	for _, ratio := range fibRatios {
		if upswing {
			levels[ratio] = round2(high - diff*ratio)
		} else {
			levels[ratio] = round2(low + diff*ratio)
		}
	}
	return levels
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
