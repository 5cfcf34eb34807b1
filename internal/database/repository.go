package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"marketvision/internal/market"
)

// ErrAssetNotFound is returned when a symbol has no asset record.
var ErrAssetNotFound = errors.New("asset not found")

// Repository provides data access for assets and candles.
type Repository struct {
	db *DB
}

// NewRepository creates a repository over the pool.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the database.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// GetAssetBySymbol looks up an asset by its canonical symbol.
func (r *Repository) GetAssetBySymbol(ctx context.Context, symbol string) (*market.Asset, error) {
	query := `
		SELECT id, symbol, name, market_type, exchange, base_currency, quote_currency
		FROM assets
		WHERE symbol = $1
	`
	asset := &market.Asset{}
	err := r.db.Pool.QueryRow(ctx, query, market.CanonicalSymbol(symbol)).Scan(
		&asset.ID, &asset.Symbol, &asset.Name, &asset.MarketType,
		&asset.Exchange, &asset.BaseCurrency, &asset.QuoteCurrency,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", symbol, ErrAssetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying asset %s: %w", symbol, err)
	}
	return asset, nil
}

// EnsureAsset returns the asset for a symbol, creating it with an inferred
// market type if missing.
func (r *Repository) EnsureAsset(ctx context.Context, symbol string) (*market.Asset, error) {
	asset, err := r.GetAssetBySymbol(ctx, symbol)
	if err == nil {
		return asset, nil
	}
	if !errors.Is(err, ErrAssetNotFound) {
		return nil, err
	}

	sym := market.CanonicalSymbol(symbol)
	asset = &market.Asset{
		Symbol:     sym,
		Name:       sym,
		MarketType: market.ClassifySymbol(sym),
	}
	query := `
		INSERT INTO assets (symbol, name, market_type, base_currency, quote_currency)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`
	err = r.db.Pool.QueryRow(ctx, query,
		asset.Symbol, asset.Name, asset.MarketType, asset.BaseCurrency, asset.QuoteCurrency,
	).Scan(&asset.ID)
	if err != nil {
		return nil, fmt.Errorf("creating asset %s: %w", sym, err)
	}
	return asset, nil
}

// ListAssets returns all assets ordered by symbol.
func (r *Repository) ListAssets(ctx context.Context) ([]market.Asset, error) {
	query := `
		SELECT id, symbol, name, market_type, exchange, base_currency, quote_currency
		FROM assets
		ORDER BY symbol
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	var assets []market.Asset
	for rows.Next() {
		var a market.Asset
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &a.MarketType,
			&a.Exchange, &a.BaseCurrency, &a.QuoteCurrency); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// UpsertCandles writes candles idempotently on (asset_id, timeframe,
// timestamp), overwriting OHLCV on conflict. Returns rows written.
func (r *Repository) UpsertCandles(ctx context.Context, assetID int64, tf market.Timeframe, candles []market.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	query := `
		INSERT INTO ohlcv_data (asset_id, timeframe, timestamp, open, high, low, close, volume, tick_volume, spread, open_interest)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (asset_id, timeframe, timestamp) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			tick_volume = EXCLUDED.tick_volume,
			spread = EXCLUDED.spread,
			open_interest = EXCLUDED.open_interest
	`

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(query, assetID, tf, c.Timestamp.UTC(),
			c.Open, c.High, c.Low, c.Close, c.Volume,
			c.TickVolume, c.Spread, c.OpenInterest)
	}

	results := r.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	written := 0
	for range candles {
		if _, err := results.Exec(); err != nil {
			return written, fmt.Errorf("upserting candle batch: %w", err)
		}
		written++
	}
	return written, nil
}

// QueryCandles returns up to limit candles for (asset, timeframe) in
// ascending timestamp order, optionally bounded below by since.
func (r *Repository) QueryCandles(ctx context.Context, assetID int64, tf market.Timeframe, limit int, since *time.Time) ([]market.Candle, error) {
	query := `
		SELECT timestamp, open, high, low, close, volume, tick_volume, spread, open_interest
		FROM (
			SELECT timestamp, open, high, low, close, volume, tick_volume, spread, open_interest
			FROM ohlcv_data
			WHERE asset_id = $1 AND timeframe = $2 AND ($3::timestamptz IS NULL OR timestamp >= $3)
			ORDER BY timestamp DESC
			LIMIT $4
		) recent
		ORDER BY timestamp ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, assetID, tf, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying candles: %w", err)
	}
	defer rows.Close()

	var candles []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close,
			&c.Volume, &c.TickVolume, &c.Spread, &c.OpenInterest); err != nil {
			return nil, fmt.Errorf("scanning candle: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// LatestCandleTime returns the newest stored timestamp for (asset,
// timeframe), or the zero time when no rows exist.
func (r *Repository) LatestCandleTime(ctx context.Context, assetID int64, tf market.Timeframe) (time.Time, error) {
	var ts *time.Time
	query := `SELECT MAX(timestamp) FROM ohlcv_data WHERE asset_id = $1 AND timeframe = $2`
	if err := r.db.Pool.QueryRow(ctx, query, assetID, tf).Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("querying latest candle time: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return ts.UTC(), nil
}

// CountCandles returns the stored row count for (asset, timeframe).
func (r *Repository) CountCandles(ctx context.Context, assetID int64, tf market.Timeframe) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM ohlcv_data WHERE asset_id = $1 AND timeframe = $2`
	if err := r.db.Pool.QueryRow(ctx, query, assetID, tf).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting candles: %w", err)
	}
	return n, nil
}
