// Package macro fetches macroeconomic context (Treasury yields, Fed rate,
// CPI, inflation) and CFTC positioning, summarized as directional signals
// for the composite scorer. All reads go through a stale-preferred cache.
package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"marketvision/internal/logging"
)

const avQueryURL = "https://www.alphavantage.co/query"

// IndicatorPoint is one dated reading of an economic series.
type IndicatorPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Factor is one macro input with its derived gold-relevant signal.
type Factor struct {
	Value       float64 `json:"value"`
	Change      float64 `json:"change"`
	Trend       string  `json:"trend,omitempty"`
	GoldSignal  string  `json:"gold_signal"`
	Explanation string  `json:"explanation"`
}

// Score aggregates the per-factor signals into one 0-100 reading.
type Score struct {
	Score        int    `json:"score"`
	BullishCount int    `json:"bullish_count"`
	BearishCount int    `json:"bearish_count"`
	NeutralCount int    `json:"neutral_count"`
	Total        int    `json:"total"`
	Direction    string `json:"direction"`
}

// Summary is the full macro picture consumed by the signal layer.
type Summary struct {
	Treasury10Y *Factor   `json:"treasury_10y,omitempty"`
	YieldCurve  *Factor   `json:"yield_curve,omitempty"`
	FedRate     *Factor   `json:"fed_rate,omitempty"`
	CPI         *Factor   `json:"cpi,omitempty"`
	Inflation   *Factor   `json:"inflation,omitempty"`
	MacroScore  Score     `json:"macro_score"`
	CachedAt    time.Time `json:"cached_at"`
}

// Client fetches economic series from the Alpha Vantage economic
// endpoints. Calls are paced for the free tier (5 requests per minute).
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a macro data client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: avQueryURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(13*time.Second), 1),
		log:     logging.Component("macro"),
	}
}

type economicEnvelope struct {
	Data []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"data"`
	ErrorMessage string `json:"Error Message"`
	Note         string `json:"Note"`
}

func (c *Client) fetchSeries(ctx context.Context, params url.Values, maxPoints int) ([]IndicatorPoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("macro request: %w", err)
	}
	defer resp.Body.Close()

	var env economicEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding macro response: %w", err)
	}
	if env.ErrorMessage != "" {
		return nil, fmt.Errorf("macro api error: %s", env.ErrorMessage)
	}
	if env.Note != "" {
		return nil, fmt.Errorf("macro api rate limited")
	}

	points := make([]IndicatorPoint, 0, len(env.Data))
	for _, item := range env.Data {
		if item.Value == "." {
			continue
		}
		v, err := strconv.ParseFloat(item.Value, 64)
		if err != nil {
			continue
		}
		points = append(points, IndicatorPoint{Date: item.Date, Value: v})
		if len(points) >= maxPoints {
			break
		}
	}
	return points, nil
}

// TreasuryYield fetches the daily US Treasury yield for a maturity
// (3month, 2year, 5year, 7year, 10year, 30year), newest first.
func (c *Client) TreasuryYield(ctx context.Context, maturity string) ([]IndicatorPoint, error) {
	params := url.Values{}
	params.Set("function", "TREASURY_YIELD")
	params.Set("interval", "daily")
	params.Set("maturity", maturity)
	return c.fetchSeries(ctx, params, 365)
}

// FederalFundsRate fetches the daily effective federal funds rate.
func (c *Client) FederalFundsRate(ctx context.Context) ([]IndicatorPoint, error) {
	params := url.Values{}
	params.Set("function", "FEDERAL_FUNDS_RATE")
	params.Set("interval", "daily")
	return c.fetchSeries(ctx, params, 365)
}

// CPI fetches the monthly Consumer Price Index.
func (c *Client) CPI(ctx context.Context) ([]IndicatorPoint, error) {
	params := url.Values{}
	params.Set("function", "CPI")
	params.Set("interval", "monthly")
	return c.fetchSeries(ctx, params, 60)
}

// Inflation fetches the annual inflation rate.
func (c *Client) Inflation(ctx context.Context) ([]IndicatorPoint, error) {
	params := url.Values{}
	params.Set("function", "INFLATION")
	return c.fetchSeries(ctx, params, 20)
}

// FetchSummary pulls every series and condenses them. Slow by design: the
// free-tier pacing makes a full refresh take about a minute, which is why
// callers always go through the cache.
func (c *Client) FetchSummary(ctx context.Context) (*Summary, error) {
	yields10y, err := c.TreasuryYield(ctx, "10year")
	if err != nil {
		return nil, err
	}
	yields2y, err := c.TreasuryYield(ctx, "2year")
	if err != nil {
		c.log.Warn().Err(err).Msg("2y yield unavailable")
	}
	fedRate, err := c.FederalFundsRate(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("fed rate unavailable")
	}
	cpi, err := c.CPI(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("cpi unavailable")
	}
	inflation, err := c.Inflation(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("inflation unavailable")
	}

	return BuildSummary(yields10y, yields2y, fedRate, cpi, inflation), nil
}

// BuildSummary condenses raw series (newest first) into factor signals.
func BuildSummary(yields10y, yields2y, fedRate, cpi, inflation []IndicatorPoint) *Summary {
	s := &Summary{CachedAt: time.Now().UTC()}

	if len(yields10y) > 0 {
		current := yields10y[0].Value
		prev := current
		if len(yields10y) > 5 {
			prev = yields10y[5].Value
		}
		change := current - prev
		trend, signal := "stable", "neutral"
		explanation := fmt.Sprintf("10Y yield at %.2f%%, stable", current)
		switch {
		case change < -0.05:
			trend, signal = "falling", "bullish"
			explanation = fmt.Sprintf("10Y yield at %.2f%%, falling %.2fpp: lower opportunity cost of holding gold", current, math.Abs(change))
		case change > 0.05:
			trend, signal = "rising", "bearish"
			explanation = fmt.Sprintf("10Y yield at %.2f%%, rising %.2fpp: higher opportunity cost of holding gold", current, change)
		}
		s.Treasury10Y = &Factor{
			Value: current, Change: round3(change), Trend: trend,
			GoldSignal: signal, Explanation: explanation,
		}
	}

	if len(yields10y) > 0 && len(yields2y) > 0 {
		spread := yields10y[0].Value - yields2y[0].Value
		signal := "neutral"
		explanation := fmt.Sprintf("2Y-10Y spread %.3f%%, normal curve", spread)
		if spread < 0 {
			signal = "bullish"
			explanation = fmt.Sprintf("2Y-10Y spread %.3f%%, inverted curve signals recession risk", spread)
		}
		s.YieldCurve = &Factor{
			Value: round3(spread), Change: 0,
			GoldSignal: signal, Explanation: explanation,
		}
	}

	if len(fedRate) > 0 {
		current := fedRate[0].Value
		prev := current
		if len(fedRate) > 22 {
			prev = fedRate[22].Value
		}
		change := current - prev
		signal := "neutral"
		explanation := fmt.Sprintf("fed funds rate unchanged at %.2f%%", current)
		switch {
		case change < 0:
			signal = "bullish"
			explanation = fmt.Sprintf("fed funds rate at %.2f%%, cutting cycle favors gold", current)
		case change > 0:
			signal = "bearish"
			explanation = fmt.Sprintf("fed funds rate at %.2f%%, hiking cycle pressures gold", current)
		}
		s.FedRate = &Factor{
			Value: current, Change: round3(change),
			GoldSignal: signal, Explanation: explanation,
		}
	}

	if len(cpi) >= 2 {
		current, prev := cpi[0].Value, cpi[1].Value
		momPct := 0.0
		if prev != 0 {
			momPct = (current - prev) / prev * 100
		}
		signal := "neutral"
		explanation := fmt.Sprintf("CPI at %.1f, contained", current)
		if momPct > 0.3 {
			signal = "bullish"
			explanation = fmt.Sprintf("CPI at %.1f, rising %.2f%% MoM drives inflation-hedge demand", current, momPct)
		}
		s.CPI = &Factor{
			Value: current, Change: round2(momPct),
			GoldSignal: signal, Explanation: explanation,
		}
	}

	if len(inflation) > 0 {
		current := inflation[0].Value
		signal := "neutral"
		explanation := fmt.Sprintf("annual inflation %.1f%%, moderate", current)
		if current > 3.0 {
			signal = "bullish"
			explanation = fmt.Sprintf("annual inflation %.1f%%, above 3%% is a gold tailwind", current)
		}
		s.Inflation = &Factor{
			Value: current, GoldSignal: signal, Explanation: explanation,
		}
	}

	s.MacroScore = scoreFactors(s.Treasury10Y, s.YieldCurve, s.FedRate, s.CPI, s.Inflation)
	return s
}

func scoreFactors(factors ...*Factor) Score {
	bull, bear, total := 0, 0, 0
	for _, f := range factors {
		if f == nil {
			continue
		}
		total++
		switch f.GoldSignal {
		case "bullish":
			bull++
		case "bearish":
			bear++
		}
	}

	denom := total
	if denom == 0 {
		denom = 1
	}
	score := int(math.Round((float64(bull) + float64(total-bull-bear)*0.5) / float64(denom) * 100))

	direction := "neutral"
	switch {
	case score >= 65:
		direction = "bullish"
	case score <= 35:
		direction = "bearish"
	}
	return Score{
		Score:        score,
		BullishCount: bull,
		BearishCount: bear,
		NeutralCount: total - bull - bear,
		Total:        total,
		Direction:    direction,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
