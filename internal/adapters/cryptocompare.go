package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"marketvision/internal/logging"
	"marketvision/internal/market"
)

const cryptoCompareBaseURL = "https://min-api.cryptocompare.com/data/v2"

// Candles per request cap on the histo endpoints.
const ccMaxBatch = 2000

// Symbols CryptoCompare serves, as (fsym, tsym) pairs.
var ccSymbolMap = map[string][2]string{
	"BTCUSD":  {"BTC", "USD"},
	"BTCUSDT": {"BTC", "USDT"},
	"ETHUSD":  {"ETH", "USD"},
	"ETHUSDT": {"ETH", "USDT"},
	"SOLUSD":  {"SOL", "USD"},
	"SOLUSDT": {"SOL", "USDT"},
	"XRPUSD":  {"XRP", "USD"},
	"ETHBTC":  {"ETH", "BTC"},
}

// Timeframe -> (endpoint, aggregation factor). Factor > 1 fetches finer
// candles and aggregates them locally.
var ccTimeframes = map[market.Timeframe]struct {
	endpoint string
	factor   int
}{
	market.TF1m:  {"histominute", 1},
	market.TF5m:  {"histominute", 5},
	market.TF15m: {"histominute", 15},
	market.TF30m: {"histominute", 30},
	market.TF1h:  {"histohour", 1},
	market.TF4h:  {"histohour", 4},
	market.TF1d:  {"histoday", 1},
	market.TF1w:  {"histoday", 7},
	market.TF1M:  {"histoday", 30},
}

// CryptoCompareAdapter is the crypto fallback source. It is reachable from
// regions where the Binance API is geo-blocked.
type CryptoCompareAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewCryptoCompareAdapter creates a CryptoCompare adapter. The API key is
// optional; without it the free anonymous quota applies.
func NewCryptoCompareAdapter(apiKey string) *CryptoCompareAdapter {
	return &CryptoCompareAdapter{
		apiKey:     apiKey,
		baseURL:    cryptoCompareBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logging.Component("cryptocompare"),
	}
}

func (c *CryptoCompareAdapter) Name() string                  { return "cryptocompare" }
func (c *CryptoCompareAdapter) MarketType() market.MarketType { return market.MarketCrypto }

func (c *CryptoCompareAdapter) Connect(ctx context.Context) error {
	c.log.Info().Bool("keyed", c.apiKey != "").Msg("connected")
	return nil
}

func (c *CryptoCompareAdapter) Disconnect(ctx context.Context) error { return nil }

func (c *CryptoCompareAdapter) SupportedSymbols(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(ccSymbolMap))
	for sym := range ccSymbolMap {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

func (c *CryptoCompareAdapter) FetchOHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int, since *time.Time) ([]market.Candle, error) {
	sym := market.CanonicalSymbol(symbol)
	pair, ok := ccSymbolMap[sym]
	if !ok {
		return nil, fmt.Errorf("cryptocompare: %s: %w", sym, ErrUnsupportedSymbol)
	}
	cfg, ok := ccTimeframes[tf]
	if !ok {
		return nil, fmt.Errorf("cryptocompare: %s: %w", tf, ErrUnsupportedTimeframe)
	}

	raw, err := c.fetchRaw(ctx, cfg.endpoint, pair[0], pair[1], limit*cfg.factor)
	if err != nil {
		return nil, err
	}
	if cfg.factor > 1 {
		raw = market.Aggregate(raw, tf)
	}
	if since != nil {
		trimmed := raw[:0]
		for _, candle := range raw {
			if !candle.Timestamp.Before(*since) {
				trimmed = append(trimmed, candle)
			}
		}
		raw = trimmed
	}
	if len(raw) > limit {
		raw = raw[len(raw)-limit:]
	}
	return raw, nil
}

type ccCandle struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	VolumeFrom float64 `json:"volumefrom"`
}

// fetchRaw pages backwards via toTs until limit candles are collected.
func (c *CryptoCompareAdapter) fetchRaw(ctx context.Context, endpoint, fsym, tsym string, limit int) ([]market.Candle, error) {
	var all []market.Candle
	remaining := limit
	var toTs int64

	for remaining > 0 {
		batch := remaining
		if batch > ccMaxBatch {
			batch = ccMaxBatch
		}
		params := url.Values{}
		params.Set("fsym", fsym)
		params.Set("tsym", tsym)
		params.Set("limit", strconv.Itoa(batch))
		if toTs > 0 {
			params.Set("toTs", strconv.FormatInt(toTs, 10))
		}

		rows, err := c.getCandles(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		page := make([]market.Candle, 0, len(rows))
		for _, row := range rows {
			// Zeroed candles pad the response beyond available history
			if row.Open == 0 && row.Close == 0 {
				continue
			}
			page = append(page, market.Candle{
				Timestamp: time.Unix(row.Time, 0).UTC(),
				Open:      row.Open,
				High:      row.High,
				Low:       row.Low,
				Close:     row.Close,
				Volume:    row.VolumeFrom,
			})
		}
		if len(page) == 0 {
			break
		}

		all = append(page, all...)
		remaining -= len(page)
		if len(rows) < batch {
			break
		}
		toTs = rows[0].Time - 1
	}

	return market.SortDedupe(all), nil
}

func (c *CryptoCompareAdapter) getCandles(ctx context.Context, endpoint string, params url.Values) ([]ccCandle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare: building request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("authorization", "Apikey "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare: %v: %w", err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare: reading response: %w", ErrSourceUnavailable)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("cryptocompare: status 429: %w", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cryptocompare: status %d: %w", resp.StatusCode, ErrSourceUnavailable)
	}

	var envelope struct {
		Response string `json:"Response"`
		Message  string `json:"Message"`
		Data     struct {
			Data []ccCandle `json:"Data"`
		} `json:"Data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("cryptocompare: %v: %w", err, ErrMalformedResponse)
	}
	if envelope.Response != "Success" {
		return nil, fmt.Errorf("cryptocompare: %s: %w", envelope.Message, ErrSourceUnavailable)
	}
	return envelope.Data.Data, nil
}

// FetchTicker returns the latest traded price.
func (c *CryptoCompareAdapter) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	sym := market.CanonicalSymbol(symbol)
	pair, ok := ccSymbolMap[sym]
	if !ok {
		return Ticker{}, fmt.Errorf("cryptocompare: %s: %w", sym, ErrUnsupportedSymbol)
	}

	params := url.Values{}
	params.Set("fsym", pair[0])
	params.Set("tsyms", pair[1])

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://min-api.cryptocompare.com/data/price?"+params.Encode(), nil)
	if err != nil {
		return Ticker{}, fmt.Errorf("cryptocompare: building request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Ticker{}, fmt.Errorf("cryptocompare: %v: %w", err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	var prices map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return Ticker{}, fmt.Errorf("cryptocompare: %v: %w", err, ErrMalformedResponse)
	}
	return Ticker{
		Symbol:    sym,
		Price:     prices[pair[1]],
		Timestamp: time.Now().UTC(),
	}, nil
}
