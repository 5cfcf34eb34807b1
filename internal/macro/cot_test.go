package macro

import (
	"strings"
	"testing"
)

func cotRow(market, date string, fields map[int]string) string {
	row := make([]string, 64)
	for i := range row {
		row[i] = "0"
	}
	row[colMarket] = market
	row[1] = "250610"
	row[colDate] = date
	for idx, v := range fields {
		row[idx] = v
	}
	return strings.Join(row, ",")
}

func TestParseDisaggregatedPicksNewestGoldRow(t *testing.T) {
	report := cotRow("GOLD - COMMODITY EXCHANGE INC.", "2025-06-03", map[int]string{
		colMMLong: "100000", colMMShort: "90000",
	}) + "\n" + cotRow("GOLD - COMMODITY EXCHANGE INC.", "2025-06-10", map[int]string{
		colOI:        "400000",
		colMMLong:    "250000",
		colMMShort:   "100000",
		colProdLong:  "50000",
		colProdShort: "160000",
		colChgMMLong: "5000", colChgMMShort: "-2000",
	}) + "\n" + cotRow("SILVER - COMMODITY EXCHANGE INC.", "2025-06-10", map[int]string{
		colMMLong: "999999",
	})

	got, err := parseDisaggregated(strings.NewReader(report), "GOLD")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.ReportDate != "2025-06-10" {
		t.Errorf("report date = %s, want newest row", got.ReportDate)
	}
	if got.OpenInterest != 400000 {
		t.Errorf("open interest = %d", got.OpenInterest)
	}
	if got.ManagedMoney.Net != 150000 {
		t.Errorf("managed money net = %d, want 150000", got.ManagedMoney.Net)
	}
	if got.Producers.Net != -110000 {
		t.Errorf("producers net = %d, want -110000", got.Producers.Net)
	}
	if got.GoldSignal != "bullish" {
		t.Errorf("gold signal = %s", got.GoldSignal)
	}
	// net long + adding longs, heavy producer hedging, short covering
	if len(got.Signals) != 3 {
		t.Errorf("signals = %v", got.Signals)
	}
}

func TestParseDisaggregatedNetShortBearish(t *testing.T) {
	report := cotRow("GOLD - COMMODITY EXCHANGE INC.", "2025-06-10", map[int]string{
		colMMLong: "80000", colMMShort: "120000",
	})
	got, err := parseDisaggregated(strings.NewReader(report), "GOLD")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.ManagedMoney.Net != -40000 || got.GoldSignal != "bearish" {
		t.Errorf("net = %d signal = %s", got.ManagedMoney.Net, got.GoldSignal)
	}
}

func TestParseDisaggregatedMissingCommodity(t *testing.T) {
	report := cotRow("SILVER - COMMODITY EXCHANGE INC.", "2025-06-10", nil)
	if _, err := parseDisaggregated(strings.NewReader(report), "GOLD"); err == nil {
		t.Error("expected an error when the commodity is absent")
	}
}

func TestEmptyCOTReportNeutral(t *testing.T) {
	r := EmptyCOTReport()
	if r.GoldSignal != "neutral" || len(r.Signals) == 0 {
		t.Errorf("empty report: %+v", r)
	}
}
