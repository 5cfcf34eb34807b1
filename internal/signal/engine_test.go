package signal

import (
	"math"
	"testing"

	"marketvision/internal/indicators"
	"marketvision/internal/market"
	"marketvision/internal/regime"
)

func TestDeriveTriState(t *testing.T) {
	cases := []struct {
		meta indicators.Metadata
		want string
	}{
		{indicators.Metadata{Classification: "strong_uptrend"}, "bullish"},
		{indicators.Metadata{Classification: "bearish_momentum"}, "bearish"},
		{indicators.Metadata{Classification: "oversold"}, "bullish"},
		{indicators.Metadata{Classification: "overbought"}, "bearish"},
		{indicators.Metadata{Classification: "at_support"}, "bullish"},
		{indicators.Metadata{Classification: "at_resistance"}, "bearish"},
		{indicators.Metadata{Classification: "accumulation"}, "bullish"},
		{indicators.Metadata{Classification: "distribution"}, "bearish"},
		{indicators.Metadata{Classification: "neutral", Crossover: "golden_cross"}, "bullish"},
		{indicators.Metadata{Classification: "neutral", Crossover: "death_cross"}, "bearish"},
		{indicators.Metadata{Classification: "neutral", Divergence: "bullish_divergence"}, "bullish"},
		{indicators.Metadata{Classification: "neutral"}, "neutral"},
		{indicators.Metadata{}, "neutral"},
	}
	for _, tc := range cases {
		if got := deriveTriState(tc.meta); got != tc.want {
			t.Errorf("deriveTriState(%+v) = %s, want %s", tc.meta, got, tc.want)
		}
	}
}

func TestScoreResultsWeightsAndBoosts(t *testing.T) {
	results := map[string][]indicators.Result{
		"macd": {{Name: "macd", Value: 1.2, Meta: indicators.Metadata{
			Classification: "bullish_momentum", Crossover: "bullish_crossover",
		}}},
		"rsi": {{Name: "rsi", Value: 35, Meta: indicators.Metadata{
			Classification: "neutral", Divergence: "bullish_divergence",
		}}},
		"atr": {{Name: "atr", Value: 2.0, Meta: indicators.Metadata{
			Classification: "normal_volatility",
		}}},
	}
	sb := scoreResults(results)

	wantBull := 2.0*crossoverBoost + 1.5*divergenceBoost
	if math.Abs(sb.bullishWeight-wantBull) > 1e-9 {
		t.Errorf("bullish weight = %.4f, want %.4f", sb.bullishWeight, wantBull)
	}
	if sb.neutralWeight != 0.5 {
		t.Errorf("neutral weight = %.4f, want 0.5", sb.neutralWeight)
	}
	if sb.bearishWeight != 0 {
		t.Errorf("bearish weight = %.4f, want 0", sb.bearishWeight)
	}
	if len(sb.bullish) != 2 || sb.bullish[0] != "macd" || sb.bullish[1] != "rsi" {
		t.Errorf("bullish indicators = %v", sb.bullish)
	}
	if sb.snapshot["rsi"].Signal != "bullish" {
		t.Errorf("rsi snapshot signal = %s", sb.snapshot["rsi"].Signal)
	}
}

func TestCompositeScore(t *testing.T) {
	if got := compositeScore(scoreBoard{}); got != 50 {
		t.Errorf("empty board score = %.2f, want 50", got)
	}
	allBull := scoreBoard{bullishWeight: 10}
	if got := compositeScore(allBull); got != 100 {
		t.Errorf("all-bullish score = %.2f, want 100", got)
	}
	allBear := scoreBoard{bearishWeight: 10}
	if got := compositeScore(allBear); got != 0 {
		t.Errorf("all-bearish score = %.2f, want 0", got)
	}
	mixed := scoreBoard{bullishWeight: 6, bearishWeight: 2, neutralWeight: 2}
	want := 50 + 50*(6.0-2.0)/10.0
	if got := compositeScore(mixed); math.Abs(got-want) > 1e-9 {
		t.Errorf("mixed score = %.2f, want %.2f", got, want)
	}
}

func TestThresholdLookup(t *testing.T) {
	th := thresholdsFor("crypto", market.TF5m)
	if th.MinScore != 72 || th.MinConfidence != 0.70 || th.MinConfluence != 7 {
		t.Errorf("crypto 5m thresholds = %+v", th)
	}
	th = thresholdsFor("other", market.TF1d)
	if th.MinScore != 55 || th.MinConfidence != 0.50 || th.MinConfluence != 4 {
		t.Errorf("other 1d thresholds = %+v", th)
	}
	// unlisted timeframe falls back to the class default
	th = thresholdsFor("crypto", market.TF4h)
	if th != defaultThresholds["crypto"] {
		t.Errorf("crypto 4h should use class default, got %+v", th)
	}
}

func TestLevelMultiplierLookup(t *testing.T) {
	m := multipliersFor("crypto", market.TF5m)
	if m.SL != 3.0 || m.TP != 5.0 {
		t.Errorf("crypto 5m multipliers = %+v", m)
	}
	m = multipliersFor("other", market.TF5m)
	if m.SL != 2.5 || m.TP != 4.0 {
		t.Errorf("other 5m multipliers = %+v", m)
	}
	m = multipliersFor("forex", market.TF1w)
	if m != defaultMultipliers {
		t.Errorf("unlisted timeframe should use defaults, got %+v", m)
	}
}

func TestAssetClassOf(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT": "crypto",
		"EURUSD":  "forex",
		"XAUUSD":  "other",
		"SPX500":  "other",
	}
	for sym, want := range cases {
		if got := assetClassOf(sym); got != want {
			t.Errorf("assetClassOf(%s) = %s, want %s", sym, got, want)
		}
	}
}

func TestMTFConfluenceBoost(t *testing.T) {
	a := buildSignal(DirectionLong)
	a.Timeframe = market.TF5m
	a.Confidence = 0.62
	b := buildSignal(DirectionLong)
	b.Timeframe = market.TF15m
	b.Confidence = 0.60
	c := buildSignal(DirectionShort)
	c.Timeframe = market.TF1h
	c.Confidence = 0.80

	applyMTFConfluence([]*Signal{a, b, c})

	if !a.MTFConfluence || !b.MTFConfluence {
		t.Error("agreeing signals must be flagged")
	}
	if c.MTFConfluence {
		t.Error("lone short must not be flagged")
	}
	if math.Abs(a.Confidence-0.713) > 1e-9 {
		t.Errorf("boosted confidence = %.4f, want 0.713", a.Confidence)
	}
	if math.Abs(b.Confidence-0.690) > 1e-9 {
		t.Errorf("boosted confidence = %.4f, want 0.690", b.Confidence)
	}
	if len(a.AgreeingTimeframes) != 2 {
		t.Errorf("agreeing timeframes = %v", a.AgreeingTimeframes)
	}
}

func TestMTFConfluenceClampsAtOne(t *testing.T) {
	a := buildSignal(DirectionLong)
	a.Confidence = 0.95
	b := buildSignal(DirectionLong)
	b.Timeframe = market.TF15m
	b.Confidence = 0.95
	applyMTFConfluence([]*Signal{a, b})
	if a.Confidence > 1.0 || b.Confidence > 1.0 {
		t.Errorf("confidence exceeded 1.0: %.4f %.4f", a.Confidence, b.Confidence)
	}
}

func TestScanEmptySeries(t *testing.T) {
	e := NewEngine(indicators.DefaultRegistry(), nil)
	sig, err := e.Scan(nil, nil)
	if err != nil || sig != nil {
		t.Errorf("nil series: sig=%v err=%v", sig, err)
	}
	sig, err = e.Scan(market.NewSeries("BTCUSDT", market.TF1h, nil), nil)
	if err != nil || sig != nil {
		t.Errorf("empty series: sig=%v err=%v", sig, err)
	}
}

// Any signal the engine emits must satisfy the level and overextension
// invariants regardless of input.
func TestScanEmittedSignalInvariants(t *testing.T) {
	e := NewEngine(indicators.DefaultRegistry(), nil)
	series := []*market.Series{
		trendingTestSeries("BTCUSDT", market.TF1h, 250),
		trendingTestSeries("XAUUSD", market.TF1d, 250),
		trendingTestSeries("EURUSD", market.TF15m, 250),
	}
	for _, s := range series {
		sig, err := e.Scan(s, nil)
		if err != nil {
			t.Fatalf("scan %s: %v", s.Symbol, err)
		}
		if sig == nil {
			continue
		}
		if sig.Direction == DirectionLong {
			if !(sig.StopLoss < sig.EntryPrice && sig.EntryPrice < sig.TakeProfit) {
				t.Errorf("%s long levels incoherent: sl=%.2f entry=%.2f tp=%.2f",
					s.Symbol, sig.StopLoss, sig.EntryPrice, sig.TakeProfit)
			}
			if rsi, ok := sig.Snapshot["rsi"]; ok && rsi.Value > 72 {
				t.Errorf("%s long emitted with RSI %.1f", s.Symbol, rsi.Value)
			}
		} else {
			if !(sig.TakeProfit < sig.EntryPrice && sig.EntryPrice < sig.StopLoss) {
				t.Errorf("%s short levels incoherent: sl=%.2f entry=%.2f tp=%.2f",
					s.Symbol, sig.StopLoss, sig.EntryPrice, sig.TakeProfit)
			}
			if rsi, ok := sig.Snapshot["rsi"]; ok && rsi.Value < 28 {
				t.Errorf("%s short emitted with RSI %.1f", s.Symbol, rsi.Value)
			}
		}
		wantRR := math.Abs(sig.TakeProfit-sig.EntryPrice) / math.Abs(sig.EntryPrice-sig.StopLoss)
		if math.Abs(sig.RiskRewardRatio-wantRR) > 1e-9 {
			t.Errorf("%s risk reward mismatch: %.4f vs %.4f", s.Symbol, sig.RiskRewardRatio, wantRR)
		}
		if sig.Confidence < 0 || sig.Confidence > 1 {
			t.Errorf("%s confidence out of range: %.4f", s.Symbol, sig.Confidence)
		}
		if !sig.ExpiresAt.After(sig.GeneratedAt) {
			t.Errorf("%s expiry not after generation", s.Symbol)
		}
	}
}

// A matching active loss pattern may only lower confidence.
func TestLossFilterMonotonePenalty(t *testing.T) {
	e := NewEngine(indicators.DefaultRegistry(), nil)
	s := trendingTestSeries("BTCUSDT", market.TF1h, 250)

	base, err := e.Scan(s, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if base == nil {
		t.Skip("no baseline signal emitted for this fixture")
	}

	pattern := LossPattern{
		PatternID: "test",
		Category:  CategoryRegimeMismatch,
		Conditions: map[string]interface{}{
			"regime":    base.RegimeAtSignal,
			"direction": string(base.Direction),
		},
		Frequency: 3,
		IsActive:  true,
	}
	filtered, err := e.Scan(s, []LossPattern{pattern})
	if err != nil {
		t.Fatalf("scan with pattern: %v", err)
	}
	if filtered != nil && filtered.Confidence > base.Confidence {
		t.Errorf("pattern must not raise confidence: %.4f > %.4f", filtered.Confidence, base.Confidence)
	}
	if filtered != nil && !filtered.Reasons.LossFilterApplied {
		t.Error("loss filter flag not set")
	}
}

func TestActivePatternMatching(t *testing.T) {
	patterns := []LossPattern{
		{
			Category:   CategoryRegimeMismatch,
			IsActive:   true,
			Conditions: map[string]interface{}{"regime": regime.Ranging, "direction": "long"},
		},
		{
			Category:   CategoryOverextended,
			IsActive:   false,
			Conditions: map[string]interface{}{"category": CategoryOverextended},
		},
	}
	if !matchesActivePattern(patterns, regime.Ranging, DirectionLong) {
		t.Error("expected a match for ranging/long")
	}
	if matchesActivePattern(patterns, regime.TrendingUp, DirectionLong) {
		t.Error("unexpected match for trending_up/long")
	}
	if hasOverextendedPattern(patterns) {
		t.Error("inactive overextended pattern must not count")
	}
	patterns[1].IsActive = true
	if !hasOverextendedPattern(patterns) {
		t.Error("active overextended pattern not detected")
	}
}
