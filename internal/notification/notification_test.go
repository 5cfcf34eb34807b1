package notification

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketvision/internal/market"
	"marketvision/internal/signal"
)

type stubNotifier struct {
	name    string
	enabled bool
	err     error
	sent    []*Message
}

func (s *stubNotifier) Name() string  { return s.name }
func (s *stubNotifier) Enabled() bool { return s.enabled }
func (s *stubNotifier) Send(msg *Message) error {
	s.sent = append(s.sent, msg)
	return s.err
}

func sampleSignal() *signal.Signal {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &signal.Signal{
		ID:              7,
		Symbol:          "XAUUSD",
		Timeframe:       market.TF5m,
		Direction:       signal.DirectionLong,
		Status:          signal.StatusPending,
		EntryPrice:      2650.30,
		StopLoss:        2645.80,
		TakeProfit:      2658.00,
		RiskRewardRatio: 1.71,
		Confidence:      0.72,
		CompositeScore:  74.5,
		RegimeAtSignal:  "trending_up",
		GeneratedAt:     now,
		ExpiresAt:       now.Add(time.Hour),
	}
}

func TestManagerFansOutToEnabledProviders(t *testing.T) {
	m := NewManager()
	on := &stubNotifier{name: "on", enabled: true}
	off := &stubNotifier{name: "off", enabled: false}
	m.Add(on)
	m.Add(off)

	m.NotifySignal(sampleSignal())

	if len(on.sent) != 1 {
		t.Errorf("enabled provider got %d messages", len(on.sent))
	}
	if len(off.sent) != 0 {
		t.Error("disabled provider must not receive messages")
	}
	msg := on.sent[0]
	if msg.Kind != KindSignal || msg.Symbol != "XAUUSD" {
		t.Errorf("message: %+v", msg)
	}
	if !strings.Contains(msg.Body, "LONG") || !strings.Contains(msg.Body, "2650.3000") {
		t.Errorf("body: %s", msg.Body)
	}
}

func TestManagerSwallowsProviderErrors(t *testing.T) {
	m := NewManager()
	failing := &stubNotifier{name: "failing", enabled: true, err: errors.New("boom")}
	healthy := &stubNotifier{name: "healthy", enabled: true}
	m.Add(failing)
	m.Add(healthy)

	// must not panic or abort the fan-out
	m.NotifyError("scan failed", "details")
	if len(healthy.sent) != 1 {
		t.Error("a failing provider must not block the others")
	}
}

func TestNotifyOutcomeWin(t *testing.T) {
	m := NewManager()
	stub := &stubNotifier{name: "stub", enabled: true}
	m.Add(stub)

	sig := sampleSignal()
	sig.Status = signal.StatusWin
	exit := 2658.00
	pct := 0.29
	sig.ExitPrice = &exit
	sig.PnLPct = &pct

	m.NotifyOutcome(sig)
	if len(stub.sent) != 1 {
		t.Fatal("no outcome message sent")
	}
	if !strings.Contains(stub.sent[0].Body, "win") {
		t.Errorf("body: %s", stub.sent[0].Body)
	}
	if stub.sent[0].PnLPct != pct {
		t.Errorf("pnl pct = %.2f", stub.sent[0].PnLPct)
	}
}

func TestTelegramNotifierPayload(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/bottoken") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTelegramNotifier(TelegramConfig{BotToken: "token", ChatID: "chat", Enabled: true})
	n.baseURL = srv.URL

	err := n.Send(&Message{Kind: KindSignal, Title: "Signal", Body: "body", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["chat_id"] != "chat" {
		t.Errorf("chat_id = %v", got["chat_id"])
	}
	if text, _ := got["text"].(string); !strings.Contains(text, "Signal") {
		t.Errorf("text = %v", got["text"])
	}
}

func TestTelegramDisabledWithoutCredentials(t *testing.T) {
	n := NewTelegramNotifier(TelegramConfig{Enabled: true})
	if n.Enabled() {
		t.Error("notifier must disable itself without credentials")
	}
	if err := n.Send(&Message{}); err != nil {
		t.Errorf("disabled send must be a no-op, got %v", err)
	}
}

func TestDiscordNotifierStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(DiscordConfig{WebhookURL: srv.URL, Enabled: true})
	err := n.Send(&Message{Kind: KindOutcome, Title: "t", Body: "b", Symbol: "XAUUSD", PnLPct: -1.2, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
}
