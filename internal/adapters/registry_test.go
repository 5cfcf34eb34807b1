package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketvision/internal/market"
)

type stubAdapter struct {
	name       string
	marketType market.MarketType
}

func (s *stubAdapter) Name() string                         { return s.name }
func (s *stubAdapter) MarketType() market.MarketType        { return s.marketType }
func (s *stubAdapter) Connect(ctx context.Context) error    { return nil }
func (s *stubAdapter) Disconnect(ctx context.Context) error { return nil }
func (s *stubAdapter) SupportedSymbols(ctx context.Context) ([]string, error) {
	return nil, nil
}
func (s *stubAdapter) FetchOHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int, since *time.Time) ([]market.Candle, error) {
	return nil, nil
}

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(&stubAdapter{name: "binance", marketType: market.MarketCrypto})
	r.Register(&stubAdapter{name: "alpha_vantage", marketType: market.MarketForex})
	r.Register(&stubAdapter{name: "cryptocompare", marketType: market.MarketCrypto})
	return r
}

func TestRouteExplicitOverride(t *testing.T) {
	r := newTestRegistry()
	r.SetOverride("BTCUSDT", "cryptocompare")
	a, err := r.Route("BTCUSDT")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if a.Name() != "cryptocompare" {
		t.Errorf("override ignored, routed to %s", a.Name())
	}
}

func TestRouteOverrideToMissingAdapter(t *testing.T) {
	r := newTestRegistry()
	r.SetOverride("BTCUSDT", "nonexistent")
	if _, err := r.Route("BTCUSDT"); !errors.Is(err, ErrNoRoute) {
		t.Errorf("expected ErrNoRoute for dangling override, got %v", err)
	}
}

func TestRouteCommodityPrefersForexAdapter(t *testing.T) {
	r := newTestRegistry()
	a, err := r.Route("XAUUSD")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	// No commodity adapter registered; forex serves metals
	if a.Name() != "alpha_vantage" {
		t.Errorf("expected alpha_vantage for gold, got %s", a.Name())
	}
}

func TestRouteCryptoByBase(t *testing.T) {
	r := newTestRegistry()
	for _, sym := range []string{"BTCUSDT", "ETHUSD", "SOLUSDT"} {
		a, err := r.Route(sym)
		if err != nil {
			t.Fatalf("route %s: %v", sym, err)
		}
		if a.MarketType() != market.MarketCrypto {
			t.Errorf("%s routed to %s adapter", sym, a.MarketType())
		}
		// First registered crypto adapter wins
		if a.Name() != "binance" {
			t.Errorf("%s: expected binance, got %s", sym, a.Name())
		}
	}
}

func TestRouteForexPair(t *testing.T) {
	r := newTestRegistry()
	a, err := r.Route("EURUSD")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if a.Name() != "alpha_vantage" {
		t.Errorf("expected alpha_vantage for EURUSD, got %s", a.Name())
	}
}

func TestRouteUnknownSymbolFails(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.Route("SPX500"); !errors.Is(err, ErrNoRoute) {
		t.Errorf("expected ErrNoRoute for index symbol, got %v", err)
	}
}

func TestFallbackChainSkipsPrimaryAndPrefersSameMarket(t *testing.T) {
	r := newTestRegistry()
	primary, _ := r.Get("binance")
	chain := r.FallbackChain(primary)
	if len(chain) != 2 {
		t.Fatalf("expected 2 fallbacks, got %d", len(chain))
	}
	for _, a := range chain {
		if a.Name() == "binance" {
			t.Error("fallback chain must not contain the primary")
		}
	}
	if chain[0].Name() != "cryptocompare" {
		t.Errorf("same-market fallback should come first, got %s", chain[0].Name())
	}
}

func TestBinanceSymbolMapping(t *testing.T) {
	cases := map[string]string{
		"XAUUSD":  "PAXGUSDT",
		"XAGUSD":  "PAXGUSDT",
		"BTCUSD":  "BTCUSDT",
		"BTCUSDT": "BTCUSDT",
		"ETHBTC":  "ETHBTC",
	}
	for in, want := range cases {
		if got := toBinanceSymbol(in); got != want {
			t.Errorf("toBinanceSymbol(%s) = %s, want %s", in, got, want)
		}
	}
}
