package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"marketvision/internal/logging"
	"marketvision/internal/market"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// Alpha Vantage intraday interval names by timeframe. Daily and coarser go
// through the FX_DAILY function instead.
var avIntervals = map[market.Timeframe]string{
	market.TF1m:  "1min",
	market.TF5m:  "5min",
	market.TF15m: "15min",
	market.TF30m: "30min",
	market.TF1h:  "60min",
}

// Forex pairs Alpha Vantage serves, as (from, to) currency codes. Gold and
// silver spot ride the same FX endpoints with metal codes.
var avForexSymbols = map[string][2]string{
	"EURUSD": {"EUR", "USD"},
	"GBPUSD": {"GBP", "USD"},
	"USDJPY": {"USD", "JPY"},
	"USDCHF": {"USD", "CHF"},
	"AUDUSD": {"AUD", "USD"},
	"USDCAD": {"USD", "CAD"},
	"NZDUSD": {"NZD", "USD"},
	"EURGBP": {"EUR", "GBP"},
	"EURJPY": {"EUR", "JPY"},
	"GBPJPY": {"GBP", "JPY"},
	"XAUUSD": {"XAU", "USD"},
	"XAGUSD": {"XAG", "USD"},
}

// AlphaVantageAdapter serves forex and metals OHLCV. The free tier allows
// roughly five calls per minute, so requests pace through a limiter.
type AlphaVantageAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// NewAlphaVantageAdapter creates an Alpha Vantage adapter.
func NewAlphaVantageAdapter(apiKey string) *AlphaVantageAdapter {
	return &AlphaVantageAdapter{
		apiKey:     apiKey,
		baseURL:    alphaVantageBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(13*time.Second), 1),
		log:        logging.Component("alpha_vantage"),
	}
}

func (a *AlphaVantageAdapter) Name() string                  { return "alpha_vantage" }
func (a *AlphaVantageAdapter) MarketType() market.MarketType { return market.MarketForex }

func (a *AlphaVantageAdapter) Connect(ctx context.Context) error {
	if a.apiKey == "" {
		return fmt.Errorf("alpha_vantage: missing API key: %w", ErrAuthFailed)
	}
	a.log.Info().Msg("connected")
	return nil
}

func (a *AlphaVantageAdapter) Disconnect(ctx context.Context) error { return nil }

func (a *AlphaVantageAdapter) SupportedSymbols(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(avForexSymbols))
	for sym := range avForexSymbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

func (a *AlphaVantageAdapter) FetchOHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int, since *time.Time) ([]market.Candle, error) {
	sym := market.CanonicalSymbol(symbol)
	pair, ok := avForexSymbols[sym]
	if !ok {
		return nil, fmt.Errorf("alpha_vantage: %s: %w", sym, ErrUnsupportedSymbol)
	}

	var series map[string]avBar
	var err error
	if interval, intraday := avIntervals[tf]; intraday {
		series, err = a.fetchFX(ctx, "FX_INTRADAY", pair[0], pair[1], interval)
	} else if tf == market.TF1d {
		series, err = a.fetchFX(ctx, "FX_DAILY", pair[0], pair[1], "")
	} else {
		return nil, fmt.Errorf("alpha_vantage: %s: %w", tf, ErrUnsupportedTimeframe)
	}
	if err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(series))
	for dateStr, bar := range series {
		ts, perr := parseAVTimestamp(dateStr)
		if perr != nil {
			return nil, fmt.Errorf("alpha_vantage: bad timestamp %q: %w", dateStr, ErrMalformedResponse)
		}
		if since != nil && ts.Before(*since) {
			continue
		}
		candles = append(candles, market.Candle{
			Timestamp: ts,
			Open:      parseStringFloat(bar.Open),
			High:      parseStringFloat(bar.High),
			Low:       parseStringFloat(bar.Low),
			Close:     parseStringFloat(bar.Close),
		})
	}

	candles = market.SortDedupe(candles)
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

type avBar struct {
	Open  string `json:"1. open"`
	High  string `json:"2. high"`
	Low   string `json:"3. low"`
	Close string `json:"4. close"`
}

func (a *AlphaVantageAdapter) fetchFX(ctx context.Context, function, from, to, interval string) (map[string]avBar, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("alpha_vantage: %v: %w", err, ErrSourceUnavailable)
	}

	params := url.Values{}
	params.Set("function", function)
	params.Set("from_symbol", from)
	params.Set("to_symbol", to)
	params.Set("outputsize", "full")
	params.Set("apikey", a.apiKey)
	if interval != "" {
		params.Set("interval", interval)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("alpha_vantage: building request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alpha_vantage: %v: %w", err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("alpha_vantage: reading response: %w", ErrSourceUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alpha_vantage: status %d: %w", resp.StatusCode, ErrSourceUnavailable)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("alpha_vantage: %v: %w", err, ErrMalformedResponse)
	}

	if raw, ok := envelope["Error Message"]; ok {
		return nil, fmt.Errorf("alpha_vantage: %s: %w", string(raw), ErrUnsupportedSymbol)
	}
	if raw, ok := envelope["Note"]; ok {
		a.log.Warn().RawJSON("note", raw).Msg("rate limited")
		return nil, fmt.Errorf("alpha_vantage: throttled: %w", ErrRateLimited)
	}
	if raw, ok := envelope["Information"]; ok {
		return nil, fmt.Errorf("alpha_vantage: %s: %w", string(raw), ErrRateLimited)
	}

	// The time series key name varies between functions
	for key, raw := range envelope {
		if !containsTimeSeries(key) {
			continue
		}
		var series map[string]avBar
		if err := json.Unmarshal(raw, &series); err != nil {
			return nil, fmt.Errorf("alpha_vantage: %v: %w", err, ErrMalformedResponse)
		}
		return series, nil
	}
	return nil, fmt.Errorf("alpha_vantage: no time series in response: %w", ErrMalformedResponse)
}

func containsTimeSeries(key string) bool {
	return len(key) >= 11 && (key[:11] == "Time Series" || key[:11] == "Time Serie")
}

func parseAVTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
