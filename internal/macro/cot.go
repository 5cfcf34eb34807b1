package macro

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketvision/internal/logging"
)

// CFTC disaggregated futures-only report, current year.
const cftcDisaggURL = "https://www.cftc.gov/dea/newcot/f_disagg.txt"

// Positional column indices in the disaggregated report. The row layout is
// Market Name, YYMMDD, YYYY-MM-DD, CFTC Code, Exchange, ... with weekly
// changes from column 55.
const (
	colMarket       = 0
	colDate         = 2
	colOI           = 7
	colProdLong     = 8
	colProdShort    = 9
	colSwapLong     = 10
	colMMLong       = 11
	colMMShort      = 12
	colOtherLong    = 13
	colOtherShort   = 14
	colNonRepLong   = 21
	colNonRepShort  = 22
	colChgProdLong  = 56
	colChgProdShort = 57
	colChgMMLong    = 59
	colChgMMShort   = 60
)

// Positioning is one trader group's futures exposure.
type Positioning struct {
	Long        int `json:"long"`
	Short       int `json:"short"`
	Net         int `json:"net"`
	ChangeLong  int `json:"change_long,omitempty"`
	ChangeShort int `json:"change_short,omitempty"`
}

// COTReport summarizes institutional positioning for one commodity.
type COTReport struct {
	ReportDate      string      `json:"report_date"`
	OpenInterest    int         `json:"open_interest"`
	ManagedMoney    Positioning `json:"managed_money"`
	Producers       Positioning `json:"producers"`
	SwapDealers     Positioning `json:"swap_dealers"`
	OtherReportable Positioning `json:"other_reportable"`
	NonReportable   Positioning `json:"non_reportable"`
	Signals         []string    `json:"signals"`
	GoldSignal      string      `json:"gold_signal"`
}

// EmptyCOTReport is the neutral fallback when CFTC data is unavailable.
func EmptyCOTReport() *COTReport {
	return &COTReport{
		Signals:    []string{"data unavailable"},
		GoldSignal: "neutral",
	}
}

// COTClient fetches and parses CFTC Commitment of Traders reports. The
// report updates weekly, so results are cached for 12 hours.
type COTClient struct {
	url  string
	http *http.Client
	log  zerolog.Logger

	mu       sync.Mutex
	cached   *COTReport
	cachedAt time.Time
}

// NewCOTClient creates a COT client.
func NewCOTClient() *COTClient {
	return &COTClient{
		url:  cftcDisaggURL,
		http: &http.Client{Timeout: 60 * time.Second},
		log:  logging.Component("cot"),
	}
}

// GoldReport returns gold futures positioning. Failures degrade to the
// neutral empty report; they never propagate.
func (c *COTClient) GoldReport(ctx context.Context) *COTReport {
	c.mu.Lock()
	if c.cached != nil && time.Since(c.cachedAt) < 12*time.Hour {
		report := c.cached
		c.mu.Unlock()
		return report
	}
	c.mu.Unlock()

	report, err := c.fetch(ctx, "GOLD")
	if err != nil {
		c.log.Warn().Err(err).Msg("cot fetch failed")
		return EmptyCOTReport()
	}

	c.mu.Lock()
	c.cached = report
	c.cachedAt = time.Now().UTC()
	c.mu.Unlock()
	return report
}

func (c *COTClient) fetch(ctx context.Context, commodity string) (*COTReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching cot report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cot report: status %d", resp.StatusCode)
	}
	return parseDisaggregated(resp.Body, commodity)
}

// parseDisaggregated finds the newest row for a commodity in the
// positional CSV report and extracts its positioning.
func parseDisaggregated(r io.Reader, commodity string) (*COTReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	commodity = strings.ToUpper(commodity)
	var newest []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(row) <= colDate {
			continue
		}
		if !strings.Contains(strings.ToUpper(row[colMarket]), commodity) {
			continue
		}
		if newest == nil || row[colDate] > newest[colDate] {
			newest = row
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("%s not found in cot report", commodity)
	}
	return parseRow(newest), nil
}

func parseRow(row []string) *COTReport {
	val := func(idx int) int {
		if idx >= len(row) {
			return 0
		}
		n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(row[idx]), ",", ""))
		if err != nil {
			return 0
		}
		return n
	}

	mm := Positioning{
		Long:        val(colMMLong),
		Short:       val(colMMShort),
		ChangeLong:  val(colChgMMLong),
		ChangeShort: val(colChgMMShort),
	}
	mm.Net = mm.Long - mm.Short

	prod := Positioning{
		Long:        val(colProdLong),
		Short:       val(colProdShort),
		ChangeLong:  val(colChgProdLong),
		ChangeShort: val(colChgProdShort),
	}
	prod.Net = prod.Long - prod.Short

	report := &COTReport{
		ReportDate:   strings.TrimSpace(row[colDate]),
		OpenInterest: val(colOI),
		ManagedMoney: mm,
		Producers:    prod,
		SwapDealers: Positioning{
			Long: val(colSwapLong),
			Net:  val(colSwapLong),
		},
		OtherReportable: Positioning{
			Long:  val(colOtherLong),
			Short: val(colOtherShort),
			Net:   val(colOtherLong) - val(colOtherShort),
		},
		NonReportable: Positioning{
			Long:  val(colNonRepLong),
			Short: val(colNonRepShort),
			Net:   val(colNonRepLong) - val(colNonRepShort),
		},
	}

	switch {
	case mm.Net > 0 && mm.ChangeLong > 0:
		report.Signals = append(report.Signals,
			fmt.Sprintf("hedge funds net long %d contracts, adding %d longs this week", mm.Net, mm.ChangeLong))
	case mm.Net > 0 && mm.ChangeLong < 0:
		report.Signals = append(report.Signals,
			fmt.Sprintf("hedge funds net long %d but reduced by %d, momentum fading", mm.Net, -mm.ChangeLong))
	case mm.Net > 0:
		report.Signals = append(report.Signals,
			fmt.Sprintf("hedge funds net long %d contracts", mm.Net))
	default:
		report.Signals = append(report.Signals,
			fmt.Sprintf("hedge funds net short %d contracts", -mm.Net))
	}
	if prod.Net < -50000 {
		report.Signals = append(report.Signals,
			fmt.Sprintf("producers hedging heavily (%d net), expecting higher prices", prod.Net))
	}
	if mm.ChangeShort < -1000 {
		report.Signals = append(report.Signals,
			fmt.Sprintf("short covering: %d shorts closed", -mm.ChangeShort))
	}

	switch {
	case mm.Net > 0 && mm.ChangeLong >= 0:
		report.GoldSignal = "bullish"
	case mm.Net < 0:
		report.GoldSignal = "bearish"
	default:
		report.GoldSignal = "neutral"
	}
	return report
}
