// Package signal implements the weighted signal engine, the signal store,
// the outcome tracker and the loss-learning analyzer.
package signal

import (
	"time"

	"marketvision/internal/market"
)

// Direction of a trade signal.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Status of a signal through its lifecycle. Only the outcome tracker
// transitions status; valid paths are pending->active->{win,loss} and
// pending->expired.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusWin     Status = "win"
	StatusLoss    Status = "loss"
	StatusExpired Status = "expired"
)

// Closed reports whether a status is terminal.
func (s Status) Closed() bool {
	return s == StatusWin || s == StatusLoss || s == StatusExpired
}

// IndicatorSnapshot captures one indicator's latest reading at signal time.
type IndicatorSnapshot struct {
	Value          float64  `json:"value"`
	Secondary      *float64 `json:"secondary,omitempty"`
	Classification string   `json:"classification"`
	Signal         string   `json:"signal"`
}

// Reasons explains why a signal was emitted and which adjustments applied.
type Reasons struct {
	Direction         string   `json:"direction"`
	BullishIndicators []string `json:"bullish_indicators"`
	BearishIndicators []string `json:"bearish_indicators"`
	ConfluenceCount   int      `json:"confluence_count"`
	MLAgrees          bool     `json:"ml_agrees"`
	RegimeCompatible  bool     `json:"regime_compatible"`
	LossFilterApplied bool     `json:"loss_filter_applied"`
	ATRValue          float64  `json:"atr_value"`
}

// Signal is one emitted trade idea with its full decision context.
type Signal struct {
	ID        int64            `json:"id"`
	Symbol    string           `json:"symbol"`
	Timeframe market.Timeframe `json:"timeframe"`
	Direction Direction        `json:"direction"`
	Status    Status           `json:"status"`

	EntryPrice      float64 `json:"entry_price"`
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`

	Confidence     float64  `json:"confidence"`
	CompositeScore float64  `json:"composite_score"`
	MLConfidence   *float64 `json:"ml_confidence,omitempty"`
	RegimeAtSignal string   `json:"regime_at_signal"`

	Reasons  Reasons                      `json:"reasons"`
	Snapshot map[string]IndicatorSnapshot `json:"snapshot"`

	MTFConfluence      bool               `json:"mtf_confluence"`
	AgreeingTimeframes []market.Timeframe `json:"agreeing_timeframes,omitempty"`

	ExitPrice *float64 `json:"exit_price,omitempty"`
	PnL       *float64 `json:"pnl,omitempty"`
	PnLPct    *float64 `json:"pnl_pct,omitempty"`
	MFE       *float64 `json:"mfe,omitempty"`
	MAE       *float64 `json:"mae,omitempty"`

	LossCategory   string        `json:"loss_category,omitempty"`
	LossCategories []string      `json:"loss_categories,omitempty"`
	LossAnalysis   *LossAnalysis `json:"loss_analysis,omitempty"`

	GeneratedAt time.Time  `json:"generated_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// Risk returns the per-unit distance between entry and stop.
func (s *Signal) Risk() float64 {
	r := s.EntryPrice - s.StopLoss
	if r < 0 {
		r = -r
	}
	return r
}

// expiryWindows maps a timeframe to how long a pending signal stays valid.
var expiryWindows = map[market.Timeframe]time.Duration{
	market.TF1m:  15 * time.Minute,
	market.TF5m:  60 * time.Minute,
	market.TF15m: 180 * time.Minute,
	market.TF30m: 360 * time.Minute,
	market.TF1h:  600 * time.Minute,
	market.TF4h:  1440 * time.Minute,
	market.TF1d:  2880 * time.Minute,
}

// ExpiryWindow returns the pending-signal validity window for a timeframe.
func ExpiryWindow(tf market.Timeframe) time.Duration {
	if w, ok := expiryWindows[tf]; ok {
		return w
	}
	return 12 * time.Hour
}
