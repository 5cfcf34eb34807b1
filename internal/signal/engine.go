package signal

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"marketvision/internal/indicators"
	"marketvision/internal/logging"
	"marketvision/internal/market"
	"marketvision/internal/ml"
	"marketvision/internal/regime"
)

// Scalper weight profile. Unlisted indicators count at 1.0.
var indicatorWeights = map[string]float64{
	"smart_money":      2.5,
	"moving_averages":  2.0,
	"macd":             2.0,
	"volume_spike":     2.0,
	"key_levels":       2.0,
	"rsi":              1.5,
	"stochastic_rsi":   1.5,
	"candle_patterns":  1.5,
	"bollinger_bands":  1.0,
	"obv":              1.0,
	"session_analysis": 0.75,
	"ad_line":          0.75,
	"atr":              0.5,
}

const (
	divergenceBoost = 1.3
	crossoverBoost  = 1.2
	mtfBoost        = 1.15
)

var bullishKeywords = []string{"bullish", "uptrend", "accumulation", "oversold", "at_support", "golden"}
var bearishKeywords = []string{"bearish", "downtrend", "distribution", "overbought", "at_resistance", "death"}

func keywordSignal(label string) string {
	for _, kw := range bullishKeywords {
		if strings.Contains(label, kw) {
			return "bullish"
		}
	}
	for _, kw := range bearishKeywords {
		if strings.Contains(label, kw) {
			return "bearish"
		}
	}
	return "neutral"
}

// deriveTriState maps an indicator's metadata to bullish/bearish/neutral.
// Classification decides first; divergence and crossover break a neutral
// classification.
func deriveTriState(meta indicators.Metadata) string {
	for _, label := range []string{meta.Classification, meta.Divergence, meta.Crossover} {
		if label == "" {
			continue
		}
		if sig := keywordSignal(label); sig != "neutral" {
			return sig
		}
	}
	return "neutral"
}

// scanThresholds gate signal emission per (asset class, timeframe).
type scanThresholds struct {
	MinScore      float64
	MinConfidence float64
	MinConfluence int
}

var thresholdTable = map[string]map[market.Timeframe]scanThresholds{
	"crypto": {
		market.TF5m:  {72, 0.70, 7},
		market.TF15m: {68, 0.65, 6},
		market.TF1h:  {65, 0.60, 5},
		market.TF1d:  {58, 0.55, 4},
	},
	"forex": {
		market.TF5m:  {70, 0.68, 7},
		market.TF15m: {66, 0.62, 6},
		market.TF1h:  {62, 0.58, 5},
		market.TF1d:  {56, 0.52, 4},
	},
	"other": {
		market.TF5m:  {68, 0.65, 6},
		market.TF15m: {64, 0.60, 5},
		market.TF1h:  {60, 0.55, 5},
		market.TF1d:  {55, 0.50, 4},
	},
}

var defaultThresholds = map[string]scanThresholds{
	"crypto": {65, 0.60, 5},
	"forex":  {62, 0.58, 5},
	"other":  {60, 0.55, 4},
}

func thresholdsFor(class string, tf market.Timeframe) scanThresholds {
	if byTF, ok := thresholdTable[class]; ok {
		if th, ok := byTF[tf]; ok {
			return th
		}
	}
	if th, ok := defaultThresholds[class]; ok {
		return th
	}
	return defaultThresholds["other"]
}

func assetClassOf(symbol string) string {
	switch market.ClassifySymbol(symbol) {
	case market.MarketCrypto:
		return "crypto"
	case market.MarketForex:
		return "forex"
	default:
		return "other"
	}
}

// levelMultipliers scale ATR into stop and target distances.
type levelMultipliers struct {
	SL float64
	TP float64
}

var levelTable = map[string]map[market.Timeframe]levelMultipliers{
	"crypto": {
		market.TF5m:  {3.0, 5.0},
		market.TF15m: {2.5, 4.0},
		market.TF1h:  {2.0, 3.5},
		market.TF1d:  {1.5, 2.5},
	},
	"forex": {
		market.TF5m:  {2.5, 4.0},
		market.TF15m: {2.2, 3.5},
		market.TF1h:  {2.0, 3.0},
		market.TF1d:  {1.5, 2.5},
	},
	"other": {
		market.TF5m:  {2.5, 4.0},
		market.TF15m: {2.2, 3.5},
		market.TF1h:  {2.0, 3.0},
		market.TF1d:  {1.5, 2.5},
	},
}

var defaultMultipliers = levelMultipliers{2.0, 3.0}

func multipliersFor(class string, tf market.Timeframe) levelMultipliers {
	if byTF, ok := levelTable[class]; ok {
		if m, ok := byTF[tf]; ok {
			return m
		}
	}
	return defaultMultipliers
}

// scoreBoard accumulates per-indicator tri-state votes and their weights.
type scoreBoard struct {
	snapshot      map[string]IndicatorSnapshot
	bullishWeight float64
	bearishWeight float64
	neutralWeight float64
	bullish       []string
	bearish       []string
}

func scoreResults(results map[string][]indicators.Result) scoreBoard {
	sb := scoreBoard{snapshot: make(map[string]IndicatorSnapshot)}
	for name, rs := range results {
		if len(rs) == 0 {
			continue
		}
		last := rs[len(rs)-1]
		weight, ok := indicatorWeights[name]
		if !ok {
			weight = 1.0
		}
		if last.Meta.Divergence != "" {
			weight *= divergenceBoost
		}
		if last.Meta.Crossover != "" {
			weight *= crossoverBoost
		}
		sig := deriveTriState(last.Meta)
		sb.snapshot[name] = IndicatorSnapshot{
			Value:          last.Value,
			Secondary:      last.Secondary,
			Classification: last.Meta.Classification,
			Signal:         sig,
		}
		switch sig {
		case "bullish":
			sb.bullishWeight += weight
			sb.bullish = append(sb.bullish, name)
		case "bearish":
			sb.bearishWeight += weight
			sb.bearish = append(sb.bearish, name)
		default:
			sb.neutralWeight += weight
		}
	}
	sort.Strings(sb.bullish)
	sort.Strings(sb.bearish)
	return sb
}

func compositeScore(sb scoreBoard) float64 {
	total := sb.bullishWeight + sb.bearishWeight + sb.neutralWeight
	if total < 1e-10 {
		return 50
	}
	score := 50 + 50*(sb.bullishWeight-sb.bearishWeight)/total
	return math.Max(0, math.Min(100, score))
}

// Engine scores indicator output into trade signals.
type Engine struct {
	registry  *indicators.Registry
	predictor ml.Predictor
	log       zerolog.Logger
}

// NewEngine creates a signal engine. The predictor may be nil, in which
// case no ML blending happens.
func NewEngine(registry *indicators.Registry, predictor ml.Predictor) *Engine {
	return &Engine{
		registry:  registry,
		predictor: predictor,
		log:       logging.Component("signal"),
	}
}

// Scan evaluates one series and returns at most one signal. A nil signal
// with a nil error means no setup qualified; errors are reserved for
// indicator contract violations.
func (e *Engine) Scan(s *market.Series, lossPatterns []LossPattern) (*Signal, error) {
	if s == nil || s.Empty() {
		return nil, nil
	}

	results, err := e.registry.CalculateAll(s)
	if err != nil {
		return nil, fmt.Errorf("scanning %s %s: %w", s.Symbol, s.Timeframe, err)
	}

	det := regime.Detect(s)
	sb := scoreResults(results)
	score := compositeScore(sb)

	class := assetClassOf(s.Symbol)
	th := thresholdsFor(class, s.Timeframe)

	var direction Direction
	var winningWeight float64
	var winning []string
	switch {
	case score >= th.MinScore:
		direction = DirectionLong
		winningWeight = sb.bullishWeight
		winning = sb.bullish
	case score <= 100-th.MinScore:
		direction = DirectionShort
		winningWeight = sb.bearishWeight
		winning = sb.bearish
	default:
		return nil, nil
	}

	totalWeight := sb.bullishWeight + sb.bearishWeight + sb.neutralWeight
	if totalWeight < 1e-10 {
		return nil, nil
	}
	confidence := winningWeight / totalWeight
	confluence := len(winning)

	reasons := Reasons{
		Direction:         string(direction),
		BullishIndicators: sb.bullish,
		BearishIndicators: sb.bearish,
		ConfluenceCount:   confluence,
		RegimeCompatible:  true,
	}

	var mlConfidence *float64
	if e.predictor != nil {
		pred, perr := e.predictor.Predict(s, s.Symbol, s.Timeframe)
		if perr != nil {
			pred = ml.Neutral(s.Symbol, s.Timeframe)
		}
		c := pred.Confidence
		mlConfidence = &c
		agrees := pred.Direction == ml.DirectionNeutral ||
			(direction == DirectionLong && pred.Direction == ml.DirectionBullish) ||
			(direction == DirectionShort && pred.Direction == ml.DirectionBearish)
		reasons.MLAgrees = agrees
		if agrees && pred.Confidence > 0.5 {
			confidence = 0.7*confidence + 0.3*pred.Confidence
		}
	}

	if (direction == DirectionLong && det.Regime == regime.TrendingDown) ||
		(direction == DirectionShort && det.Regime == regime.TrendingUp) {
		reasons.RegimeCompatible = false
		confidence *= 0.4
	}

	if confluence < th.MinConfluence {
		confidence *= 0.7
	}

	if matchesActivePattern(lossPatterns, det.Regime, direction) {
		reasons.LossFilterApplied = true
		confidence *= 0.5
	}

	rsiSnap, hasRSI := sb.snapshot["rsi"]
	if hasRSI {
		if direction == DirectionLong && rsiSnap.Value > 72 {
			return nil, nil
		}
		if direction == DirectionShort && rsiSnap.Value < 28 {
			return nil, nil
		}
		if hasOverextendedPattern(lossPatterns) {
			if (direction == DirectionLong && rsiSnap.Value > 65) ||
				(direction == DirectionShort && rsiSnap.Value < 35) {
				return nil, nil
			}
		}
	}

	if confidence < th.MinConfidence {
		return nil, nil
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	entry := s.Last().Close
	atrValue := atrFrom(results, s, entry)
	reasons.ATRValue = atrValue

	mult := multipliersFor(class, s.Timeframe)
	var stop, target float64
	if direction == DirectionLong {
		stop = entry - mult.SL*atrValue
		target = entry + mult.TP*atrValue
	} else {
		stop = entry + mult.SL*atrValue
		target = entry - mult.TP*atrValue
	}
	rr := math.Abs(target-entry) / math.Abs(entry-stop)

	now := time.Now().UTC()
	sig := &Signal{
		Symbol:          s.Symbol,
		Timeframe:       s.Timeframe,
		Direction:       direction,
		Status:          StatusPending,
		EntryPrice:      entry,
		StopLoss:        stop,
		TakeProfit:      target,
		RiskRewardRatio: rr,
		Confidence:      confidence,
		CompositeScore:  score,
		MLConfidence:    mlConfidence,
		RegimeAtSignal:  det.Regime,
		Reasons:         reasons,
		Snapshot:        sb.snapshot,
		GeneratedAt:     now,
		ExpiresAt:       now.Add(ExpiryWindow(s.Timeframe)),
	}

	e.log.Info().Str("symbol", s.Symbol).Str("timeframe", string(s.Timeframe)).
		Str("direction", string(direction)).Float64("score", score).
		Float64("confidence", confidence).Msg("signal generated")
	return sig, nil
}

// ScanMultiTimeframe runs Scan per frame, then boosts and flags signals
// whose direction agrees across two or more timeframes.
func (e *Engine) ScanMultiTimeframe(frames map[market.Timeframe]*market.Series, lossPatterns []LossPattern) ([]*Signal, error) {
	var signals []*Signal
	for _, tf := range market.AllTimeframes() {
		s, ok := frames[tf]
		if !ok {
			continue
		}
		sig, err := e.Scan(s, lossPatterns)
		if err != nil {
			return nil, err
		}
		if sig != nil {
			signals = append(signals, sig)
		}
	}
	applyMTFConfluence(signals)
	return signals, nil
}

// applyMTFConfluence marks and boosts signals agreeing across timeframes.
func applyMTFConfluence(signals []*Signal) {
	byDirection := make(map[Direction][]*Signal)
	for _, sig := range signals {
		byDirection[sig.Direction] = append(byDirection[sig.Direction], sig)
	}
	for _, group := range byDirection {
		if len(group) < 2 {
			continue
		}
		tfs := make([]market.Timeframe, 0, len(group))
		for _, sig := range group {
			tfs = append(tfs, sig.Timeframe)
		}
		for _, sig := range group {
			sig.MTFConfluence = true
			sig.AgreeingTimeframes = tfs
			sig.Confidence = math.Min(1.0, sig.Confidence*mtfBoost)
		}
	}
}

func matchesActivePattern(patterns []LossPattern, currentRegime string, direction Direction) bool {
	for _, p := range patterns {
		if !p.IsActive {
			continue
		}
		if p.Conditions["regime"] == currentRegime && p.Conditions["direction"] == string(direction) {
			return true
		}
	}
	return false
}

func hasOverextendedPattern(patterns []LossPattern) bool {
	for _, p := range patterns {
		if p.IsActive && p.Category == CategoryOverextended {
			return true
		}
	}
	return false
}

// atrFrom prefers the ATR indicator's latest value, falls back to an
// inline 14-bar mean true range, then to 0.2% of price.
func atrFrom(results map[string][]indicators.Result, s *market.Series, price float64) float64 {
	if rs, ok := results["atr"]; ok && len(rs) > 0 {
		if v := rs[len(rs)-1].Value; v > 0 {
			return v
		}
	}
	candles := s.Candles
	n := len(candles)
	if n >= 2 {
		start := n - 14
		if start < 1 {
			start = 1
		}
		sum, count := 0.0, 0
		for i := start; i < n; i++ {
			hl := candles[i].High - candles[i].Low
			hc := math.Abs(candles[i].High - candles[i-1].Close)
			lc := math.Abs(candles[i].Low - candles[i-1].Close)
			sum += math.Max(hl, math.Max(hc, lc))
			count++
		}
		if count > 0 && sum > 0 {
			return sum / float64(count)
		}
	}
	return 0.002 * price
}
