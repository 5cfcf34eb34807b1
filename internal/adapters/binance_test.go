package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketvision/internal/market"
)

func klineRow(openTime time.Time, o, h, l, c, v float64) []interface{} {
	return []interface{}{
		float64(openTime.UnixMilli()),
		formatF(o), formatF(h), formatF(l), formatF(c), formatF(v),
		float64(openTime.Add(time.Hour).UnixMilli() - 1),
		"0", 0.0, "0", "0", "0",
	}
}

func formatF(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func TestBinanceFetchOHLCV(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/klines" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("unexpected symbol %s", got)
		}
		rows := [][]interface{}{
			klineRow(base, 100, 110, 95, 105, 1000),
			klineRow(base.Add(time.Hour), 105, 115, 100, 110, 1200),
			klineRow(base.Add(2*time.Hour), 110, 120, 105, 118, 900),
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	adapter := NewBinanceAdapter()
	adapter.baseURL = srv.URL

	candles, err := adapter.FetchOHLCV(context.Background(), "BTCUSD", market.TF1h, 10, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(candles) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(candles))
	}
	if !candles[0].Timestamp.Equal(base) {
		t.Errorf("candles must be oldest first, got %s", candles[0].Timestamp)
	}
	if candles[2].Close != 118 {
		t.Errorf("unexpected close %.2f", candles[2].Close)
	}
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			t.Errorf("invalid candle: %v", err)
		}
	}
}

func TestBinanceRateLimitMapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	adapter := NewBinanceAdapter()
	adapter.baseURL = srv.URL

	_, err := adapter.FetchOHLCV(context.Background(), "BTCUSDT", market.TF1h, 10, nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestBinanceBadSymbolMapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	adapter := NewBinanceAdapter()
	adapter.baseURL = srv.URL

	_, err := adapter.FetchOHLCV(context.Background(), "NOPEUSD", market.TF1h, 10, nil)
	if !errors.Is(err, ErrUnsupportedSymbol) {
		t.Errorf("expected ErrUnsupportedSymbol, got %v", err)
	}
}

func TestBinanceInvalidTimeframe(t *testing.T) {
	adapter := NewBinanceAdapter()
	_, err := adapter.FetchOHLCV(context.Background(), "BTCUSDT", market.Timeframe("7h"), 10, nil)
	if !errors.Is(err, ErrUnsupportedTimeframe) {
		t.Errorf("expected ErrUnsupportedTimeframe, got %v", err)
	}
}

func TestBinanceMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	adapter := NewBinanceAdapter()
	adapter.baseURL = srv.URL

	_, err := adapter.FetchOHLCV(context.Background(), "BTCUSDT", market.TF1h, 10, nil)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}
