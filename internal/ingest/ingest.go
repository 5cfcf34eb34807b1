// Package ingest implements the OHLCV ingestion pipeline: route a symbol
// to its primary adapter, fall back across the remaining adapters when the
// primary comes up short, and upsert the result into the candle store.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"marketvision/internal/adapters"
	"marketvision/internal/logging"
	"marketvision/internal/market"
)

// A fallback chain stops as soon as the merged result reaches
// min(limit, fallbackThreshold) candles.
const fallbackThreshold = 50

// CandleStore persists candles keyed by (asset, timeframe, timestamp).
type CandleStore interface {
	EnsureAsset(ctx context.Context, symbol string) (*market.Asset, error)
	UpsertCandles(ctx context.Context, assetID int64, tf market.Timeframe, candles []market.Candle) (int, error)
	QueryCandles(ctx context.Context, assetID int64, tf market.Timeframe, limit int, since *time.Time) ([]market.Candle, error)
}

// Pipeline fetches candles through the adapter registry and writes them to
// the store. Individual provider failures are logged and swallowed; the
// pipeline fails only when no adapter returns anything usable.
type Pipeline struct {
	registry *adapters.Registry
	store    CandleStore
	log      zerolog.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(registry *adapters.Registry, store CandleStore) *Pipeline {
	return &Pipeline{
		registry: registry,
		store:    store,
		log:      logging.Component("ingest"),
	}
}

// Result reports what one ingestion run did.
type Result struct {
	Symbol      string           `json:"symbol"`
	Timeframe   market.Timeframe `json:"timeframe"`
	RowsWritten int              `json:"rows_written"`
	Source      string           `json:"source"`
	UsedDaily   bool             `json:"used_daily_fallback"`
}

// Ingest fetches up to limit candles for (symbol, timeframe) and upserts
// them. When every adapter fails for an intraday timeframe, it retries once
// with the daily timeframe and persists under 1d.
func (p *Pipeline) Ingest(ctx context.Context, symbol string, tf market.Timeframe, limit int, since *time.Time) (Result, error) {
	res := Result{Symbol: market.CanonicalSymbol(symbol), Timeframe: tf}

	candles, source := p.fetchWithFallback(ctx, res.Symbol, tf, limit, since)

	// Daily retry: intraday request that produced nothing at all
	if len(candles) == 0 && tf.IsIntraday() {
		p.log.Warn().Str("symbol", res.Symbol).Str("timeframe", string(tf)).
			Msg("all sources empty for intraday, retrying with daily")
		candles, source = p.fetchWithFallback(ctx, res.Symbol, market.TF1d, limit, since)
		if len(candles) > 0 {
			res.Timeframe = market.TF1d
			res.UsedDaily = true
		}
	}

	if len(candles) == 0 {
		return res, fmt.Errorf("ingest %s %s: no adapter returned data", res.Symbol, tf)
	}

	asset, err := p.store.EnsureAsset(ctx, res.Symbol)
	if err != nil {
		return res, fmt.Errorf("ingest %s: %w", res.Symbol, err)
	}
	written, err := p.store.UpsertCandles(ctx, asset.ID, res.Timeframe, candles)
	if err != nil {
		return res, fmt.Errorf("ingest %s: %w", res.Symbol, err)
	}

	res.RowsWritten = written
	res.Source = source
	p.log.Info().Str("symbol", res.Symbol).Str("timeframe", string(res.Timeframe)).
		Str("source", source).Int("rows", written).Msg("ingested")
	return res, nil
}

// fetchWithFallback tries the primary route, then merges fallback adapters
// until the merged series reaches the threshold.
func (p *Pipeline) fetchWithFallback(ctx context.Context, symbol string, tf market.Timeframe, limit int, since *time.Time) ([]market.Candle, string) {
	threshold := limit
	if threshold > fallbackThreshold {
		threshold = fallbackThreshold
	}

	primary, err := p.registry.Route(symbol)
	if err != nil {
		p.log.Warn().Err(err).Str("symbol", symbol).Msg("no primary route")
		return nil, ""
	}

	best := p.tryFetch(ctx, primary, symbol, tf, limit, since)
	source := primary.Name()
	if len(best) >= threshold {
		return best, source
	}

	for _, fallback := range p.registry.FallbackChain(primary) {
		got := p.tryFetch(ctx, fallback, symbol, tf, limit, since)
		if len(got) == 0 {
			continue
		}
		if len(best) == 0 {
			source = fallback.Name()
		} else {
			source = source + "+" + fallback.Name()
		}
		best = market.Merge(best, got, limit)
		if len(best) >= threshold {
			break
		}
	}
	return best, source
}

// tryFetch runs one adapter, translating any failure into an empty result.
func (p *Pipeline) tryFetch(ctx context.Context, a adapters.SourceAdapter, symbol string, tf market.Timeframe, limit int, since *time.Time) []market.Candle {
	candles, err := a.FetchOHLCV(ctx, symbol, tf, limit, since)
	if err != nil {
		p.log.Warn().Err(err).Str("adapter", a.Name()).Str("symbol", symbol).
			Str("timeframe", string(tf)).Msg("fetch failed")
		return nil
	}
	return candles
}

// LoadSeries reads the stored candles for a symbol back out as a series.
func (p *Pipeline) LoadSeries(ctx context.Context, symbol string, tf market.Timeframe, limit int) (*market.Series, error) {
	asset, err := p.store.EnsureAsset(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("loading series %s: %w", symbol, err)
	}
	candles, err := p.store.QueryCandles(ctx, asset.ID, tf, limit, nil)
	if err != nil {
		return nil, fmt.Errorf("loading series %s: %w", symbol, err)
	}
	return market.NewSeries(market.CanonicalSymbol(symbol), tf, candles), nil
}
