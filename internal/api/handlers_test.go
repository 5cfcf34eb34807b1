package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"marketvision/internal/adapters"
	"marketvision/internal/market"
	"marketvision/internal/signal"
)

type stubTrigger struct {
	scanned []string
	err     error
}

func (s *stubTrigger) ScanSymbol(ctx context.Context, symbol string) error {
	s.scanned = append(s.scanned, symbol)
	return s.err
}

func testServer(store signal.Store, trigger ScanTrigger) *Server {
	return NewServer(ServerConfig{ProductionMode: true}, store, nil, trigger, nil, nil, nil)
}

func seedSignal(t *testing.T, store signal.Store, symbol string, status signal.Status) *signal.Signal {
	t.Helper()
	now := time.Now().UTC()
	sig := &signal.Signal{
		Symbol:     symbol,
		Timeframe:  market.TF15m,
		Direction:  signal.DirectionLong,
		Status:     status,
		EntryPrice: 100, StopLoss: 95, TakeProfit: 110,
		Confidence:  0.7,
		GeneratedAt: now,
		ExpiresAt:   now.Add(time.Hour),
	}
	if err := store.Save(context.Background(), sig); err != nil {
		t.Fatal(err)
	}
	return sig
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(signal.NewMemoryStore(), nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body: %s", w.Body.String())
	}
}

func TestListSignalsWithFilter(t *testing.T) {
	store := signal.NewMemoryStore()
	seedSignal(t, store, "BTCUSDT", signal.StatusPending)
	seedSignal(t, store, "XAUUSD", signal.StatusWin)
	s := testServer(store, nil)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/signals?symbol=BTCUSDT", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Signals []signal.Signal `json:"signals"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Signals[0].Symbol != "BTCUSDT" {
		t.Errorf("resp: %+v", resp)
	}
}

func TestGetSignalNotFound(t *testing.T) {
	s := testServer(signal.NewMemoryStore(), nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/signals/99", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetSignalByID(t *testing.T) {
	store := signal.NewMemoryStore()
	sig := seedSignal(t, store, "BTCUSDT", signal.StatusPending)
	s := testServer(store, nil)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/signals/1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got signal.Signal
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != sig.ID || got.Symbol != "BTCUSDT" {
		t.Errorf("got: %+v", got)
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	store := signal.NewMemoryStore()
	win := seedSignal(t, store, "BTCUSDT", signal.StatusWin)
	pct := 2.5
	win.PnLPct = &pct
	if err := store.Update(context.Background(), win); err != nil {
		t.Fatal(err)
	}
	s := testServer(store, nil)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/BTCUSDT", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var a signal.Analytics
	if err := json.Unmarshal(w.Body.Bytes(), &a); err != nil {
		t.Fatal(err)
	}
	if a.Wins != 1 || a.WinRate != 1.0 {
		t.Errorf("analytics: %+v", a)
	}
}

func TestLossPatternsEndpoint(t *testing.T) {
	s := testServer(signal.NewMemoryStore(), nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/loss-patterns", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var report signal.PatternReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if len(report.Patterns) != 0 {
		t.Errorf("patterns from empty store: %v", report.Patterns)
	}
}

func TestScanTriggerEndpoint(t *testing.T) {
	trigger := &stubTrigger{}
	s := testServer(signal.NewMemoryStore(), trigger)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/scan/btcusdt", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	if len(trigger.scanned) != 1 || trigger.scanned[0] != "BTCUSDT" {
		t.Errorf("scanned: %v", trigger.scanned)
	}
}

func TestScanTriggerFailure(t *testing.T) {
	trigger := &stubTrigger{err: errors.New("no data")}
	s := testServer(signal.NewMemoryStore(), trigger)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/scan/BTCUSDT", nil))
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestAdaptersUnavailable(t *testing.T) {
	s := testServer(signal.NewMemoryStore(), nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/adapters", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

type tickerAdapter struct{}

func (tickerAdapter) Name() string                         { return "stub" }
func (tickerAdapter) MarketType() market.MarketType        { return market.MarketCrypto }
func (tickerAdapter) Connect(ctx context.Context) error    { return nil }
func (tickerAdapter) Disconnect(ctx context.Context) error { return nil }
func (tickerAdapter) SupportedSymbols(ctx context.Context) ([]string, error) {
	return []string{"BTCUSDT"}, nil
}
func (tickerAdapter) FetchOHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int, since *time.Time) ([]market.Candle, error) {
	return nil, nil
}
func (tickerAdapter) FetchTicker(ctx context.Context, symbol string) (adapters.Ticker, error) {
	return adapters.Ticker{Symbol: symbol, Price: 65000, Timestamp: time.Now().UTC()}, nil
}

func TestTickerEndpoint(t *testing.T) {
	registry := adapters.NewRegistry()
	registry.Register(tickerAdapter{})
	s := NewServer(ServerConfig{ProductionMode: true}, signal.NewMemoryStore(), registry, nil, nil, nil, nil)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ticker/BTCUSDT", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var ticker adapters.Ticker
	if err := json.Unmarshal(w.Body.Bytes(), &ticker); err != nil {
		t.Fatal(err)
	}
	if ticker.Symbol != "BTCUSDT" || ticker.Price != 65000 {
		t.Errorf("ticker: %+v", ticker)
	}
}

func TestOrderBookNotImplemented(t *testing.T) {
	registry := adapters.NewRegistry()
	registry.Register(tickerAdapter{})
	s := NewServer(ServerConfig{ProductionMode: true}, signal.NewMemoryStore(), registry, nil, nil, nil, nil)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orderbook/BTCUSDT", nil))
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}

func TestWebSocketSignalStream(t *testing.T) {
	store := signal.NewMemoryStore()
	s := testServer(store, nil)
	go s.hub.Run()

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signals"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	sig := seedSignal(t, store, "BTCUSDT", signal.StatusPending)
	s.hub.BroadcastSignal(sig)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev WSEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "signal" {
		t.Errorf("event type = %s", ev.Type)
	}
}
