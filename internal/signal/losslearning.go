package signal

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"marketvision/internal/regime"
)

// Loss categories, in trigger-precedence order.
const (
	CategoryRegimeMismatch = "regime_mismatch"
	CategoryOverextended   = "overextended"
	CategoryLowConfluence  = "low_confluence"
	CategoryWeakVolume     = "weak_volume"
	CategoryAgainstTrend   = "against_trend"
	CategoryFalseBreakout  = "false_breakout"
	CategoryNewsEvent      = "news_event"
)

// LossPattern is a recurring loss profile mined from recent history.
type LossPattern struct {
	PatternID      string                 `json:"pattern_id"`
	Category       string                 `json:"category"`
	Conditions     map[string]interface{} `json:"conditions"`
	Frequency      int                    `json:"frequency"`
	TotalWindow    int                    `json:"total_window"`
	AvgLossPct     float64                `json:"avg_loss_pct"`
	Recommendation string                 `json:"recommendation"`
	IsActive       bool                   `json:"is_active"`
}

// PatternReport is the output of one loss-pattern analysis run.
type PatternReport struct {
	Patterns        []LossPattern `json:"patterns"`
	WinRate         float64       `json:"win_rate"`
	AdjustedWinRate float64       `json:"adjusted_win_rate"`
	Uplift          float64       `json:"uplift"`
}

var recommendations = map[string]string{
	CategoryRegimeMismatch: "skip signals that trade against the detected regime",
	CategoryOverextended:   "avoid entries when RSI is already extended in the trade direction",
	CategoryLowConfluence:  "require more agreeing indicators before entering",
	CategoryWeakVolume:     "require volume confirmation before entering",
	CategoryAgainstTrend:   "align entries with the moving-average trend",
	CategoryFalseBreakout:  "wait for a retest before entering breakout setups",
	CategoryNewsEvent:      "reduce size or stand aside around volatility spikes",
}

// CategorizeLoss assigns loss categories to a closed losing signal. The
// first triggered category is primary; all triggers are returned in
// precedence order. The result is cached on the signal.
func CategorizeLoss(sig *Signal) (string, []string) {
	if sig.LossCategory != "" {
		return sig.LossCategory, sig.LossCategories
	}

	var triggered []string
	if regimeMismatch(sig) {
		triggered = append(triggered, CategoryRegimeMismatch)
	}
	if overextendedAtEntry(sig) {
		triggered = append(triggered, CategoryOverextended)
	}
	if sig.Reasons.ConfluenceCount < 4 {
		triggered = append(triggered, CategoryLowConfluence)
	}
	if weakVolume(sig) {
		triggered = append(triggered, CategoryWeakVolume)
	}
	if againstTrend(sig) {
		triggered = append(triggered, CategoryAgainstTrend)
	}
	if falseBreakout(sig) {
		triggered = append(triggered, CategoryFalseBreakout)
	}
	if newsEvent(sig) {
		triggered = append(triggered, CategoryNewsEvent)
	}

	if len(triggered) == 0 {
		return "", nil
	}
	sig.LossCategory = triggered[0]
	sig.LossCategories = triggered
	return triggered[0], triggered
}

// LossAnalysis explains why a losing signal failed.
type LossAnalysis struct {
	Category   string                 `json:"category"`
	Categories []string               `json:"all_categories"`
	Detail     string                 `json:"detail"`
	Factors    map[string]interface{} `json:"factors,omitempty"`
}

// AnalyzeLoss categorizes a losing signal and attaches the full analysis
// to it. A prior analysis is returned unchanged.
func AnalyzeLoss(sig *Signal) *LossAnalysis {
	if sig.LossAnalysis != nil {
		return sig.LossAnalysis
	}
	primary, categories := CategorizeLoss(sig)
	if primary == "" {
		return nil
	}

	factors := make(map[string]interface{})
	var details []string
	for _, cat := range categories {
		switch cat {
		case CategoryRegimeMismatch:
			details = append(details, fmt.Sprintf("%s signal in %s regime, trading against the dominant trend",
				strings.ToUpper(string(sig.Direction)), sig.RegimeAtSignal))
			factors["regime"] = sig.RegimeAtSignal
			factors["direction"] = string(sig.Direction)
		case CategoryOverextended:
			if rsi, ok := sig.Snapshot["rsi"]; ok {
				factors["rsi"] = rsi.Value
			}
			if stoch, ok := sig.Snapshot["stochastic_rsi"]; ok {
				factors["stochastic"] = stoch.Value
			}
			details = append(details, "entered at already extended momentum levels")
		case CategoryLowConfluence:
			factors["confluence_count"] = sig.Reasons.ConfluenceCount
			details = append(details, fmt.Sprintf("only %d indicators agreed at entry", sig.Reasons.ConfluenceCount))
		case CategoryWeakVolume:
			if vs, ok := sig.Snapshot["volume_spike"]; ok {
				factors["volume_ratio"] = vs.Value
			}
			details = append(details, "no volume confirmation behind the move")
		case CategoryAgainstTrend:
			if ma, ok := sig.Snapshot["moving_averages"]; ok {
				factors["ma_classification"] = ma.Classification
			}
			details = append(details, "entry traded against the moving-average trend")
		case CategoryFalseBreakout:
			if sig.MFE != nil {
				factors["max_favorable"] = *sig.MFE
			}
			details = append(details, "price moved favorably before reversing into the stop")
		case CategoryNewsEvent:
			if sig.MAE != nil {
				factors["max_adverse"] = *sig.MAE
			}
			details = append(details, "adverse excursion far beyond normal volatility")
		}
	}

	analysis := &LossAnalysis{
		Category:   primary,
		Categories: categories,
		Detail:     strings.Join(details, "; "),
		Factors:    factors,
	}
	sig.LossAnalysis = analysis
	return analysis
}

// The explicit regime_compatible flag decides; the direction/regime table
// is secondary confirmation.
func regimeMismatch(sig *Signal) bool {
	if !sig.Reasons.RegimeCompatible {
		return true
	}
	return (sig.Direction == DirectionLong && sig.RegimeAtSignal == regime.TrendingDown) ||
		(sig.Direction == DirectionShort && sig.RegimeAtSignal == regime.TrendingUp)
}

func overextendedAtEntry(sig *Signal) bool {
	if rsi, ok := sig.Snapshot["rsi"]; ok {
		if sig.Direction == DirectionLong && rsi.Value > 75 {
			return true
		}
		if sig.Direction == DirectionShort && rsi.Value < 25 {
			return true
		}
	}
	if stoch, ok := sig.Snapshot["stochastic_rsi"]; ok {
		if sig.Direction == DirectionLong && stoch.Value > 80 {
			return true
		}
		if sig.Direction == DirectionShort && stoch.Value < 20 {
			return true
		}
	}
	return false
}

func weakVolume(sig *Signal) bool {
	vs, ok := sig.Snapshot["volume_spike"]
	if !ok {
		return false
	}
	return vs.Value < 0.8 || strings.Contains(vs.Classification, "low")
}

func againstTrend(sig *Signal) bool {
	ma, ok := sig.Snapshot["moving_averages"]
	if !ok {
		return false
	}
	if sig.Direction == DirectionLong {
		return strings.Contains(ma.Classification, "downtrend")
	}
	return strings.Contains(ma.Classification, "uptrend")
}

// Price ran our way before reversing into the stop.
func falseBreakout(sig *Signal) bool {
	if sig.MFE == nil {
		return false
	}
	risk := sig.Risk()
	return risk > 0 && *sig.MFE > 0.3*risk
}

func newsEvent(sig *Signal) bool {
	if sig.MAE == nil || sig.Reasons.ATRValue <= 0 {
		return false
	}
	return *sig.MAE > 2*sig.Reasons.ATRValue
}

// AnalyzeLossPatterns mines the last window completed signals for recurring
// loss categories. A category triggered by three or more losses becomes an
// active pattern. Each loss counts once per category it triggers.
func AnalyzeLossPatterns(signals []*Signal, window int) PatternReport {
	if window <= 0 {
		window = 50
	}

	var completed []*Signal
	for _, sig := range signals {
		if sig.Status == StatusWin || sig.Status == StatusLoss {
			completed = append(completed, sig)
		}
	}
	if len(completed) > window {
		completed = completed[len(completed)-window:]
	}

	wins := 0
	counts := make(map[string]int)
	lossPct := make(map[string]float64)
	regimeDir := make(map[string]map[string]int)
	rsiSum := make(map[string]float64)
	rsiCount := make(map[string]int)
	patternLosses := make(map[*Signal]bool)
	lossesByCategory := make(map[string][]*Signal)

	for _, sig := range completed {
		if sig.Status == StatusWin {
			wins++
			continue
		}
		_, categories := CategorizeLoss(sig)
		for _, cat := range categories {
			counts[cat]++
			lossesByCategory[cat] = append(lossesByCategory[cat], sig)
			if sig.PnLPct != nil {
				lossPct[cat] += *sig.PnLPct
			}
			switch cat {
			case CategoryRegimeMismatch:
				key := sig.RegimeAtSignal + "/" + string(sig.Direction)
				if regimeDir[cat] == nil {
					regimeDir[cat] = make(map[string]int)
				}
				regimeDir[cat][key]++
			case CategoryOverextended:
				if rsi, ok := sig.Snapshot["rsi"]; ok {
					rsiSum[cat] += rsi.Value
					rsiCount[cat]++
				}
			}
		}
	}

	report := PatternReport{}
	for _, cat := range []string{
		CategoryRegimeMismatch, CategoryOverextended, CategoryLowConfluence,
		CategoryWeakVolume, CategoryAgainstTrend, CategoryFalseBreakout, CategoryNewsEvent,
	} {
		freq := counts[cat]
		if freq < 3 {
			continue
		}
		p := LossPattern{
			PatternID:      uuid.NewString(),
			Category:       cat,
			Conditions:     conditionsFor(cat, regimeDir[cat], rsiSum[cat], rsiCount[cat]),
			Frequency:      freq,
			TotalWindow:    len(completed),
			AvgLossPct:     lossPct[cat] / float64(freq),
			Recommendation: recommendations[cat],
			IsActive:       true,
		}
		report.Patterns = append(report.Patterns, p)
		for _, sig := range lossesByCategory[cat] {
			patternLosses[sig] = true
		}
	}

	if len(completed) > 0 {
		report.WinRate = float64(wins) / float64(len(completed))
		remaining := len(completed) - len(patternLosses)
		if remaining > 0 {
			report.AdjustedWinRate = float64(wins) / float64(remaining)
		} else {
			report.AdjustedWinRate = report.WinRate
		}
		if report.AdjustedWinRate > 1 {
			report.AdjustedWinRate = 1
		}
		report.Uplift = report.AdjustedWinRate - report.WinRate
	}
	return report
}

func conditionsFor(category string, regimeDir map[string]int, rsiSum float64, rsiCount int) map[string]interface{} {
	switch category {
	case CategoryRegimeMismatch:
		modalKey, modalCount := "", 0
		for key, n := range regimeDir {
			if n > modalCount || (n == modalCount && key < modalKey) {
				modalKey, modalCount = key, n
			}
		}
		parts := strings.SplitN(modalKey, "/", 2)
		cond := map[string]interface{}{"category": category}
		if len(parts) == 2 {
			cond["regime"] = parts[0]
			cond["direction"] = parts[1]
		}
		return cond
	case CategoryOverextended:
		cond := map[string]interface{}{"category": category}
		if rsiCount > 0 {
			cond["avg_rsi_at_entry"] = rsiSum / float64(rsiCount)
		}
		return cond
	default:
		return map[string]interface{}{"category": category}
	}
}

// GetActiveLossFilters returns the active patterns from a fresh analysis;
// the signal engine consumes this list.
func GetActiveLossFilters(signals []*Signal) []LossPattern {
	report := AnalyzeLossPatterns(signals, 50)
	var active []LossPattern
	for _, p := range report.Patterns {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active
}
