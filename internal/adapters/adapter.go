// Package adapters implements market data source adapters and the routing
// registry that picks an adapter for a symbol.
package adapters

import (
	"context"
	"time"

	"marketvision/internal/market"
)

// Ticker is a point-in-time price snapshot.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume24h float64   `json:"volume_24h"`
	ChangePct float64   `json:"change_pct"`
	High24h   float64   `json:"high_24h"`
	Low24h    float64   `json:"low_24h"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderBookLevel is one price level of an order book.
type OrderBookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is a depth snapshot.
type OrderBook struct {
	Symbol    string           `json:"symbol"`
	Timestamp time.Time        `json:"timestamp"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
}

// SourceAdapter is the contract every market data provider implements.
// FetchOHLCV returns candles oldest to newest, deduplicated by timestamp
// and trimmed to limit. Failures map to the structured errors in errors.go.
type SourceAdapter interface {
	Name() string
	MarketType() market.MarketType
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SupportedSymbols(ctx context.Context) ([]string, error)
	FetchOHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int, since *time.Time) ([]market.Candle, error)
}

// TickerProvider is implemented by adapters that can serve live tickers.
type TickerProvider interface {
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
}

// OrderBookProvider is implemented by adapters that can serve depth
// snapshots.
type OrderBookProvider interface {
	FetchOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error)
}
