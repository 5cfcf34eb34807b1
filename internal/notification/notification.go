// Package notification delivers signal and outcome alerts through Telegram
// and Discord. Delivery is best-effort: failures are logged and never
// propagate into the scan path.
package notification

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"marketvision/internal/logging"
	"marketvision/internal/signal"
)

// Kind tags what a message is about.
type Kind string

const (
	KindSignal  Kind = "signal"
	KindOutcome Kind = "outcome"
	KindSummary Kind = "summary"
	KindError   Kind = "error"
)

// Message is the provider-independent notification payload.
type Message struct {
	Kind      Kind
	Title     string
	Body      string
	Symbol    string
	PnLPct    float64
	Timestamp time.Time
}

// Notifier delivers one message to one provider.
type Notifier interface {
	Send(msg *Message) error
	Name() string
	Enabled() bool
}

// Manager fans messages out to every enabled provider.
type Manager struct {
	notifiers []Notifier
	log       zerolog.Logger
}

// NewManager creates an empty notification manager.
func NewManager() *Manager {
	return &Manager{log: logging.Component("notification")}
}

// Add registers a provider.
func (m *Manager) Add(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// send delivers to all enabled providers, logging failures.
func (m *Manager) send(msg *Message) {
	for _, n := range m.notifiers {
		if !n.Enabled() {
			continue
		}
		if err := n.Send(msg); err != nil {
			m.log.Warn().Err(err).Str("provider", n.Name()).Str("kind", string(msg.Kind)).
				Msg("notification delivery failed")
		}
	}
}

// NotifySignal announces a freshly emitted signal.
func (m *Manager) NotifySignal(sig *signal.Signal) {
	arrow := "LONG"
	if sig.Direction == signal.DirectionShort {
		arrow = "SHORT"
	}
	body := fmt.Sprintf(
		"%s %s %s\nEntry: %.4f\nSL: %.4f | TP: %.4f (RR %.2f)\nScore: %.1f | Confidence: %.0f%%\nRegime: %s",
		arrow, sig.Symbol, sig.Timeframe,
		sig.EntryPrice, sig.StopLoss, sig.TakeProfit, sig.RiskRewardRatio,
		sig.CompositeScore, sig.Confidence*100, sig.RegimeAtSignal,
	)
	if sig.MTFConfluence {
		body += fmt.Sprintf("\nMTF confluence: %v", sig.AgreeingTimeframes)
	}
	m.send(&Message{
		Kind:      KindSignal,
		Title:     fmt.Sprintf("Signal #%d: %s %s", sig.ID, sig.Symbol, arrow),
		Body:      body,
		Symbol:    sig.Symbol,
		Timestamp: sig.GeneratedAt,
	})
}

// NotifyOutcome announces a status transition on an existing signal.
func (m *Manager) NotifyOutcome(sig *signal.Signal) {
	var body string
	pct := 0.0
	switch sig.Status {
	case signal.StatusActive:
		body = fmt.Sprintf("%s %s entry filled at %.4f", sig.Symbol, sig.Timeframe, sig.EntryPrice)
	case signal.StatusWin, signal.StatusLoss:
		exit := 0.0
		if sig.ExitPrice != nil {
			exit = *sig.ExitPrice
		}
		if sig.PnLPct != nil {
			pct = *sig.PnLPct
		}
		body = fmt.Sprintf("%s %s closed %s\nEntry: %.4f Exit: %.4f\nPnL: %+.2f%%",
			sig.Symbol, sig.Timeframe, sig.Status, sig.EntryPrice, exit, pct)
	case signal.StatusExpired:
		body = fmt.Sprintf("%s %s expired without fill", sig.Symbol, sig.Timeframe)
	default:
		return
	}
	m.send(&Message{
		Kind:      KindOutcome,
		Title:     fmt.Sprintf("Outcome #%d: %s %s", sig.ID, sig.Symbol, sig.Status),
		Body:      body,
		Symbol:    sig.Symbol,
		PnLPct:    pct,
		Timestamp: time.Now().UTC(),
	})
}

// NotifySummary sends the daily per-symbol performance digest.
func (m *Manager) NotifySummary(a signal.Analytics) {
	body := fmt.Sprintf(
		"Signals: %d (open %d)\nWins: %d | Losses: %d | Expired: %d\nWin rate: %.0f%%\nTotal PnL: %+.2f%%\nProfit factor: %.2f",
		a.TotalSignals, a.Open, a.Wins, a.Losses, a.Expired,
		a.WinRate*100, a.TotalPnLPct, a.ProfitFactor,
	)
	m.send(&Message{
		Kind:      KindSummary,
		Title:     fmt.Sprintf("Daily summary: %s", a.Symbol),
		Body:      body,
		Symbol:    a.Symbol,
		PnLPct:    a.TotalPnLPct,
		Timestamp: time.Now().UTC(),
	})
}

// NotifyError reports an operational problem.
func (m *Manager) NotifyError(title, body string) {
	m.send(&Message{
		Kind:      KindError,
		Title:     title,
		Body:      body,
		Timestamp: time.Now().UTC(),
	})
}
