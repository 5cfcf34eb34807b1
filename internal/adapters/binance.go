package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"marketvision/internal/logging"
	"marketvision/internal/market"
)

const binanceBaseURL = "https://api.binance.com/api/v3"

// Candles per request cap imposed by the klines endpoint.
const binanceMaxBatch = 1000

// Special symbol mappings (canonical symbol -> Binance symbol). Gold routes
// through the PAX Gold token, which tracks spot 1:1.
var binanceSymbolMap = map[string]string{
	"XAUUSD": "PAXGUSDT",
	"XAGUSD": "PAXGUSDT",
}

// BinanceAdapter serves crypto OHLCV from the public Binance REST API.
// No API key is required for market data.
type BinanceAdapter struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewBinanceAdapter creates a Binance adapter against the public API.
func NewBinanceAdapter() *BinanceAdapter {
	return &BinanceAdapter{
		baseURL:    binanceBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        logging.Component("binance"),
	}
}

func (b *BinanceAdapter) Name() string                  { return "binance" }
func (b *BinanceAdapter) MarketType() market.MarketType { return market.MarketCrypto }

func (b *BinanceAdapter) Connect(ctx context.Context) error {
	b.log.Info().Msg("connected")
	return nil
}

func (b *BinanceAdapter) Disconnect(ctx context.Context) error { return nil }

// toBinanceSymbol maps canonical symbols to Binance pairs (BTCUSD -> BTCUSDT).
func toBinanceSymbol(symbol string) string {
	sym := market.CanonicalSymbol(symbol)
	if mapped, ok := binanceSymbolMap[sym]; ok {
		return mapped
	}
	if len(sym) > 4 && sym[len(sym)-3:] == "USD" {
		return sym + "T"
	}
	return sym
}

// SupportedSymbols lists all actively trading pairs.
func (b *BinanceAdapter) SupportedSymbols(ctx context.Context) ([]string, error) {
	var info struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
			Status string `json:"status"`
		} `json:"symbols"`
	}
	if err := b.getJSON(ctx, "/exchangeInfo", nil, &info); err != nil {
		return nil, err
	}
	var out []string
	for _, s := range info.Symbols {
		if s.Status == "TRADING" {
			out = append(out, s.Symbol)
		}
	}
	return out, nil
}

// FetchOHLCV pages backwards through /klines until limit candles are
// collected or history runs out.
func (b *BinanceAdapter) FetchOHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int, since *time.Time) ([]market.Candle, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("binance: %s: %w", tf, ErrUnsupportedTimeframe)
	}

	binanceSymbol := toBinanceSymbol(symbol)
	var all []market.Candle
	remaining := limit
	var endTime int64

	for remaining > 0 {
		batch := remaining
		if batch > binanceMaxBatch {
			batch = binanceMaxBatch
		}
		params := url.Values{}
		params.Set("symbol", binanceSymbol)
		params.Set("interval", string(tf))
		params.Set("limit", strconv.Itoa(batch))
		if since != nil && endTime == 0 {
			params.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
		}
		if endTime > 0 {
			params.Set("endTime", strconv.FormatInt(endTime, 10))
		}

		var raw [][]interface{}
		if err := b.getJSON(ctx, "/klines", params, &raw); err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			break
		}

		page := make([]market.Candle, 0, len(raw))
		for _, k := range raw {
			if len(k) < 6 {
				return nil, fmt.Errorf("binance: kline row too short: %w", ErrMalformedResponse)
			}
			openMs, ok := k[0].(float64)
			if !ok {
				return nil, fmt.Errorf("binance: bad open time: %w", ErrMalformedResponse)
			}
			c := market.Candle{
				Timestamp: time.UnixMilli(int64(openMs)).UTC(),
				Open:      parseKlineFloat(k[1]),
				High:      parseKlineFloat(k[2]),
				Low:       parseKlineFloat(k[3]),
				Close:     parseKlineFloat(k[4]),
				Volume:    parseKlineFloat(k[5]),
			}
			page = append(page, c)
		}

		all = append(page, all...)
		remaining -= len(page)
		if len(raw) < batch {
			break
		}
		endTime = page[0].Timestamp.UnixMilli() - 1
	}

	candles := market.SortDedupe(all)
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// FetchTicker returns the 24h ticker for a symbol.
func (b *BinanceAdapter) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	params := url.Values{}
	params.Set("symbol", toBinanceSymbol(symbol))

	var data struct {
		LastPrice          string `json:"lastPrice"`
		Volume             string `json:"volume"`
		PriceChangePercent string `json:"priceChangePercent"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
	}
	if err := b.getJSON(ctx, "/ticker/24hr", params, &data); err != nil {
		return Ticker{}, err
	}
	return Ticker{
		Symbol:    market.CanonicalSymbol(symbol),
		Price:     parseStringFloat(data.LastPrice),
		Volume24h: parseStringFloat(data.Volume),
		ChangePct: parseStringFloat(data.PriceChangePercent),
		High24h:   parseStringFloat(data.HighPrice),
		Low24h:    parseStringFloat(data.LowPrice),
		Timestamp: time.Now().UTC(),
	}, nil
}

// FetchOrderBook returns a depth snapshot.
func (b *BinanceAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error) {
	if depth > 1000 {
		depth = 1000
	}
	params := url.Values{}
	params.Set("symbol", toBinanceSymbol(symbol))
	params.Set("limit", strconv.Itoa(depth))

	var data struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := b.getJSON(ctx, "/depth", params, &data); err != nil {
		return OrderBook{}, err
	}

	book := OrderBook{
		Symbol:    market.CanonicalSymbol(symbol),
		Timestamp: time.Now().UTC(),
	}
	for _, lvl := range data.Bids {
		if len(lvl) >= 2 {
			book.Bids = append(book.Bids, OrderBookLevel{Price: parseStringFloat(lvl[0]), Quantity: parseStringFloat(lvl[1])})
		}
	}
	for _, lvl := range data.Asks {
		if len(lvl) >= 2 {
			book.Asks = append(book.Asks, OrderBookLevel{Price: parseStringFloat(lvl[0]), Quantity: parseStringFloat(lvl[1])})
		}
	}
	return book, nil
}

func (b *BinanceAdapter) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := b.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("binance: building request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("binance: %v: %w", err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("binance: reading response: %w", ErrSourceUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418:
		return fmt.Errorf("binance: status %d: %w", resp.StatusCode, ErrRateLimited)
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("binance: %s: %w", string(body), ErrUnsupportedSymbol)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("binance: status %d: %w", resp.StatusCode, ErrSourceUnavailable)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("binance: %v: %w", err, ErrMalformedResponse)
	}
	return nil
}

func parseKlineFloat(v interface{}) float64 {
	switch x := v.(type) {
	case string:
		return parseStringFloat(x)
	case float64:
		return x
	default:
		return 0
	}
}

func parseStringFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
