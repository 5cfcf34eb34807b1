package indicators

import (
	"fmt"
	"math"

	"marketvision/internal/market"
)

// SmartMoney reads market structure the way institutional flow is assumed
// to move: swing highs/lows, break of structure (BOS), change of character
// (CHoCH), order blocks and fair value gaps. It emits a single result for
// the latest bar summarizing the current structure.
type SmartMoney struct {
	swingLookback int
	zoneThreshold float64
}

// NewSmartMoney creates a smart-money structure indicator. zoneThreshold is
// the minimum relative body/gap size for order blocks and fair value gaps.
func NewSmartMoney(swingLookback int, zoneThreshold float64) *SmartMoney {
	return &SmartMoney{swingLookback: swingLookback, zoneThreshold: zoneThreshold}
}

func (sm *SmartMoney) Name() string { return "smart_money" }

type swingPoint struct {
	index int
	price float64
	high  bool
}

type priceZone struct {
	kind     string
	low      float64
	high     float64
	midpoint float64
	index    int
	bullish  bool
	active   bool
}

func (sm *SmartMoney) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	if len(candles) < 30 {
		return nil, nil
	}

	last := candles[len(candles)-1]
	close := last.Close

	swings := sm.findSwings(candles)
	trend := sm.classifyTrend(swings)
	lastBOS, lastCHoCH := sm.structureBreaks(candles, swings)

	orderBlocks := sm.findOrderBlocks(candles)
	fvgs := sm.findFairValueGaps(candles)

	nearBullishZone, nearBearishZone := false, false
	var activeZones []priceZone
	for _, z := range orderBlocks {
		if !z.active {
			continue
		}
		activeZones = append(activeZones, z)
		if math.Abs(close-z.midpoint)/close < 0.005 {
			if z.bullish {
				nearBullishZone = true
			} else {
				nearBearishZone = true
			}
		}
	}
	for _, z := range fvgs {
		if !z.active {
			continue
		}
		activeZones = append(activeZones, z)
		if close >= z.low && close <= z.high {
			if z.bullish {
				nearBullishZone = true
			} else {
				nearBearishZone = true
			}
		}
	}

	bullSignals, bearSignals := 0, 0
	total := 0
	for _, cond := range []struct {
		bull, bear bool
	}{
		{trend == "bullish", trend == "bearish"},
		{lastBOS == "bullish_bos", lastBOS == "bearish_bos"},
		{lastCHoCH == "bullish_choch", lastCHoCH == "bearish_choch"},
		{nearBullishZone, nearBearishZone},
	} {
		total++
		if cond.bull {
			bullSignals++
		}
		if cond.bear {
			bearSignals++
		}
	}

	var classification string
	switch {
	case lastCHoCH == "bullish_choch" && nearBullishZone:
		classification = "strong_bullish_reversal"
	case lastCHoCH == "bearish_choch" && nearBearishZone:
		classification = "strong_bearish_reversal"
	case lastBOS == "bullish_bos" && nearBullishZone:
		classification = "bullish_continuation"
	case lastBOS == "bearish_bos" && nearBearishZone:
		classification = "bearish_continuation"
	case trend == "bullish":
		classification = "bullish_structure"
	case trend == "bearish":
		classification = "bearish_structure"
	default:
		classification = "neutral"
	}

	strongest := bullSignals
	if bearSignals > strongest {
		strongest = bearSignals
	}
	confidence := float64(strongest) / float64(total) * 100

	zoneDescs := make([]string, 0, 5)
	for i := len(activeZones) - 1; i >= 0 && len(zoneDescs) < 5; i-- {
		z := activeZones[i]
		side := "bearish"
		if z.bullish {
			side = "bullish"
		}
		zoneDescs = append(zoneDescs, fmt.Sprintf("%s_%s %.2f-%.2f", side, z.kind, z.low, z.high))
	}

	obCount, fvgCount := 0, 0
	for _, z := range orderBlocks {
		if z.active {
			obCount++
		}
	}
	for _, z := range fvgs {
		if z.active {
			fvgCount++
		}
	}

	return []Result{{
		Name:      sm.Name(),
		Value:     confidence,
		Secondary: secondary(float64(bullSignals - bearSignals)),
		Timestamp: last.Timestamp,
		Meta: Metadata{
			Classification: classification,
			Extra: map[string]interface{}{
				"trend":             trend,
				"order_blocks":      obCount,
				"fair_value_gaps":   fvgCount,
				"near_bullish_zone": nearBullishZone,
				"near_bearish_zone": nearBearishZone,
				"active_zones":      zoneDescs,
				"confidence":        confidence,
				"last_bos":          lastBOS,
				"last_choch":        lastCHoCH,
			},
		},
	}}, nil
}

// findSwings returns swing highs and lows where a bar's extreme dominates
// all neighbors within the lookback on both sides.
func (sm *SmartMoney) findSwings(candles []market.Candle) []swingPoint {
	lb := sm.swingLookback
	var swings []swingPoint
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
			swings = append(swings, swingPoint{index: i, price: candles[i].High, high: true})
		}
		if isLow {
			swings = append(swings, swingPoint{index: i, price: candles[i].Low, high: false})
		}
	}
	return swings
}

// classifyTrend looks at the last four swings: two higher highs plus at
// least one higher low is bullish, the mirror bearish.
func (sm *SmartMoney) classifyTrend(swings []swingPoint) string {
	if len(swings) < 4 {
		return "neutral"
	}
	recent := swings[len(swings)-4:]

	var highs, lows []float64
	for _, sw := range recent {
		if sw.high {
			highs = append(highs, sw.price)
		} else {
			lows = append(lows, sw.price)
		}
	}

	hhCount, hlCount, llCount, lhCount := 0, 0, 0, 0
	for i := 1; i < len(highs); i++ {
		if highs[i] > highs[i-1] {
			hhCount++
		} else if highs[i] < highs[i-1] {
			lhCount++
		}
	}
	for i := 1; i < len(lows); i++ {
		if lows[i] > lows[i-1] {
			hlCount++
		} else if lows[i] < lows[i-1] {
			llCount++
		}
	}
	if len(highs) >= 2 && len(lows) >= 2 {
		if highs[len(highs)-1] > highs[0] {
			hhCount++
		}
		if lows[len(lows)-1] > lows[0] {
			hlCount++
		}
		if lows[len(lows)-1] < lows[0] {
			llCount++
		}
		if highs[len(highs)-1] < highs[0] {
			lhCount++
		}
	}

	if hhCount >= 2 && hlCount >= 1 {
		return "bullish"
	}
	if llCount >= 2 && lhCount >= 1 {
		return "bearish"
	}
	return "neutral"
}

// structureBreaks scans for the most recent break of structure and change
// of character relative to prior swing extremes.
func (sm *SmartMoney) structureBreaks(candles []market.Candle, swings []swingPoint) (bos, choch string) {
	if len(swings) < 2 {
		return "", ""
	}
	var lastHigh, lastLow *swingPoint
	prevTrend := ""
	for i := range swings {
		sw := swings[i]
		if sw.high {
			if lastHigh != nil {
				for j := sw.index + 1; j < len(candles); j++ {
					if candles[j].Close > sw.price {
						if prevTrend == "bearish" {
							choch = "bullish_choch"
						} else {
							bos = "bullish_bos"
						}
						prevTrend = "bullish"
						break
					}
				}
			}
			lastHigh = &swings[i]
		} else {
			if lastLow != nil {
				for j := sw.index + 1; j < len(candles); j++ {
					if candles[j].Close < sw.price {
						if prevTrend == "bullish" {
							choch = "bearish_choch"
						} else {
							bos = "bearish_bos"
						}
						prevTrend = "bearish"
						break
					}
				}
			}
			lastLow = &swings[i]
		}
	}
	return bos, choch
}

// findOrderBlocks marks the last opposing candle before an impulsive move.
// A block stays active until price closes through it.
func (sm *SmartMoney) findOrderBlocks(candles []market.Candle) []priceZone {
	close := candles[len(candles)-1].Close
	var blocks []priceZone
	for i := 1; i < len(candles)-1; i++ {
		c := candles[i]
		next := candles[i+1]
		if c.Open < epsilon {
			continue
		}
		impulse := math.Abs(next.Close-next.Open) / c.Open
		if impulse < sm.zoneThreshold {
			continue
		}
		if c.IsBearish() && next.IsBullish() {
			blocks = append(blocks, priceZone{
				kind:     "order_block",
				low:      c.Low,
				high:     c.High,
				midpoint: (c.Low + c.High) / 2,
				index:    i,
				bullish:  true,
				active:   close > c.Low,
			})
		} else if c.IsBullish() && next.IsBearish() {
			blocks = append(blocks, priceZone{
				kind:     "order_block",
				low:      c.Low,
				high:     c.High,
				midpoint: (c.Low + c.High) / 2,
				index:    i,
				bullish:  false,
				active:   close < c.High,
			})
		}
	}
	if len(blocks) > 10 {
		blocks = blocks[len(blocks)-10:]
	}
	return blocks
}

// findFairValueGaps finds three-candle imbalances where the outer candles
// leave a gap the middle candle did not fill.
func (sm *SmartMoney) findFairValueGaps(candles []market.Candle) []priceZone {
	close := candles[len(candles)-1].Close
	var gaps []priceZone
	for i := 2; i < len(candles); i++ {
		c0 := candles[i-2]
		c2 := candles[i]
		if c0.High < epsilon {
			continue
		}
		if c2.Low > c0.High {
			gap := (c2.Low - c0.High) / c0.High
			if gap > sm.zoneThreshold/3 {
				gaps = append(gaps, priceZone{
					kind:     "fvg",
					low:      c0.High,
					high:     c2.Low,
					midpoint: (c0.High + c2.Low) / 2,
					index:    i,
					bullish:  true,
					active:   close >= c0.High,
				})
			}
		} else if c0.Low > c2.High {
			gap := (c0.Low - c2.High) / c0.High
			if gap > sm.zoneThreshold/3 {
				gaps = append(gaps, priceZone{
					kind:     "fvg",
					low:      c2.High,
					high:     c0.Low,
					midpoint: (c2.High + c0.Low) / 2,
					index:    i,
					bullish:  false,
					active:   close <= c0.Low,
				})
			}
		}
	}
	if len(gaps) > 10 {
		gaps = gaps[len(gaps)-10:]
	}
	return gaps
}
