package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"marketvision/internal/adapters"
	"marketvision/internal/market"
)

type fakeAdapter struct {
	name       string
	marketType market.MarketType
	candles    []market.Candle
	err        error
	calls      int
}

func (f *fakeAdapter) Name() string                         { return f.name }
func (f *fakeAdapter) MarketType() market.MarketType        { return f.marketType }
func (f *fakeAdapter) Connect(ctx context.Context) error    { return nil }
func (f *fakeAdapter) Disconnect(ctx context.Context) error { return nil }
func (f *fakeAdapter) SupportedSymbols(ctx context.Context) ([]string, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchOHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int, since *time.Time) ([]market.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := f.candles
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type memStore struct {
	assets  map[string]*market.Asset
	nextID  int64
	candles map[string][]market.Candle
}

func newMemStore() *memStore {
	return &memStore{
		assets:  make(map[string]*market.Asset),
		candles: make(map[string][]market.Candle),
		nextID:  1,
	}
}

func (m *memStore) EnsureAsset(ctx context.Context, symbol string) (*market.Asset, error) {
	sym := market.CanonicalSymbol(symbol)
	if a, ok := m.assets[sym]; ok {
		return a, nil
	}
	a := &market.Asset{ID: m.nextID, Symbol: sym, MarketType: market.ClassifySymbol(sym)}
	m.nextID++
	m.assets[sym] = a
	return a, nil
}

func (m *memStore) key(assetID int64, tf market.Timeframe) string {
	return fmt.Sprintf("%d/%s", assetID, tf)
}

func (m *memStore) UpsertCandles(ctx context.Context, assetID int64, tf market.Timeframe, candles []market.Candle) (int, error) {
	k := m.key(assetID, tf)
	m.candles[k] = market.Merge(m.candles[k], candles, 0)
	return len(candles), nil
}

func (m *memStore) QueryCandles(ctx context.Context, assetID int64, tf market.Timeframe, limit int, since *time.Time) ([]market.Candle, error) {
	out := m.candles[m.key(assetID, tf)]
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func makeCandles(n int, start time.Time) []market.Candle {
	out := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		price := 100 + float64(i)
		out = append(out, market.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      price, High: price + 1, Low: price - 1, Close: price + 0.5,
			Volume: 1000,
		})
	}
	return out
}

func setup(primaryCandles, fallbackCandles []market.Candle, primaryErr error) (*Pipeline, *fakeAdapter, *fakeAdapter, *memStore) {
	primary := &fakeAdapter{name: "binance", marketType: market.MarketCrypto, candles: primaryCandles, err: primaryErr}
	fallback := &fakeAdapter{name: "cryptocompare", marketType: market.MarketCrypto, candles: fallbackCandles}
	reg := adapters.NewRegistry()
	reg.Register(primary)
	reg.Register(fallback)
	store := newMemStore()
	return NewPipeline(reg, store), primary, fallback, store
}

func TestIngestPrimarySufficient(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p, primary, fallback, _ := setup(makeCandles(100, start), makeCandles(100, start), nil)

	res, err := p.Ingest(context.Background(), "BTCUSDT", market.TF1h, 100, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.RowsWritten != 100 {
		t.Errorf("expected 100 rows written, got %d", res.RowsWritten)
	}
	if res.Source != "binance" {
		t.Errorf("expected primary source, got %s", res.Source)
	}
	if primary.calls != 1 || fallback.calls != 0 {
		t.Errorf("fallback must not be called when primary suffices (primary=%d fallback=%d)", primary.calls, fallback.calls)
	}
}

func TestIngestFallbackOnPrimaryError(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p, _, fallback, _ := setup(nil, makeCandles(100, start), adapters.ErrSourceUnavailable)

	res, err := p.Ingest(context.Background(), "BTCUSDT", market.TF1h, 100, nil)
	if err != nil {
		t.Fatalf("ingest must swallow primary errors, got %v", err)
	}
	if res.Source != "cryptocompare" {
		t.Errorf("expected fallback source, got %s", res.Source)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback not consulted")
	}
	if res.RowsWritten != 100 {
		t.Errorf("expected 100 rows, got %d", res.RowsWritten)
	}
}

func TestIngestMergesShortPrimaryWithFallback(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// Primary returns only the newest 10 candles; fallback has full history
	full := makeCandles(100, start)
	short := full[90:]
	p, _, _, _ := setup(short, full, nil)

	res, err := p.Ingest(context.Background(), "BTCUSDT", market.TF1h, 100, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.RowsWritten != 100 {
		t.Errorf("merged result should reach 100 rows, got %d", res.RowsWritten)
	}
	if res.Source != "binance+cryptocompare" {
		t.Errorf("expected merged source tag, got %s", res.Source)
	}
}

func TestIngestDailyRetryWhenIntradayEmpty(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// Adapter serves only the daily timeframe
	reg := adapters.NewRegistry()
	reg.Register(&tfAwareAdapter{daily: makeCandles(60, start)})
	p := NewPipeline(reg, newMemStore())

	res, err := p.Ingest(context.Background(), "BTCUSDT", market.TF15m, 100, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.UsedDaily || res.Timeframe != market.TF1d {
		t.Errorf("expected daily fallback, got tf=%s usedDaily=%v", res.Timeframe, res.UsedDaily)
	}
	if res.RowsWritten != 60 {
		t.Errorf("expected 60 daily rows, got %d", res.RowsWritten)
	}
}

type tfAwareAdapter struct {
	daily []market.Candle
}

func (a *tfAwareAdapter) Name() string                         { return "binance" }
func (a *tfAwareAdapter) MarketType() market.MarketType        { return market.MarketCrypto }
func (a *tfAwareAdapter) Connect(ctx context.Context) error    { return nil }
func (a *tfAwareAdapter) Disconnect(ctx context.Context) error { return nil }
func (a *tfAwareAdapter) SupportedSymbols(ctx context.Context) ([]string, error) {
	return nil, nil
}
func (a *tfAwareAdapter) FetchOHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int, since *time.Time) ([]market.Candle, error) {
	if tf == market.TF1d {
		return a.daily, nil
	}
	return nil, adapters.ErrSourceUnavailable
}

func TestIngestAllSourcesFail(t *testing.T) {
	p, _, _, _ := setup(nil, nil, adapters.ErrSourceUnavailable)
	_, err := p.Ingest(context.Background(), "BTCUSDT", market.TF1d, 100, nil)
	if err == nil {
		t.Error("expected error when every source is empty")
	}
}

func TestIngestNoRoute(t *testing.T) {
	reg := adapters.NewRegistry()
	p := NewPipeline(reg, newMemStore())
	_, err := p.Ingest(context.Background(), "BTCUSDT", market.TF1h, 100, nil)
	if err == nil {
		t.Error("expected error with no adapters registered")
	}
}

func TestLoadSeriesRoundTrip(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p, _, _, _ := setup(makeCandles(100, start), nil, nil)

	if _, err := p.Ingest(context.Background(), "BTCUSDT", market.TF1h, 100, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	s, err := p.LoadSeries(context.Background(), "BTCUSDT", market.TF1h, 100)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Len() != 100 {
		t.Errorf("expected 100 candles back, got %d", s.Len())
	}
	if err := s.CheckMonotonic(); err != nil {
		t.Errorf("stored series not monotonic: %v", err)
	}
}
