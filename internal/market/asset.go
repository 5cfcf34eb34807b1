package market

import "strings"

// MarketType classifies what kind of instrument an asset is.
type MarketType string

const (
	MarketForex     MarketType = "forex"
	MarketCrypto    MarketType = "crypto"
	MarketCommodity MarketType = "commodity"
	MarketIndex     MarketType = "index"
	MarketEquity    MarketType = "equity"
)

// Asset is a tradable instrument. Symbol is canonical upper-case and is the
// sole lookup key.
type Asset struct {
	ID            int64             `json:"id"`
	Symbol        string            `json:"symbol"`
	Name          string            `json:"name"`
	MarketType    MarketType        `json:"market_type"`
	Exchange      *string           `json:"exchange,omitempty"`
	BaseCurrency  string            `json:"base_currency"`
	QuoteCurrency string            `json:"quote_currency"`
	Config        map[string]string `json:"config,omitempty"`
}

// Known crypto base currencies for symbol auto-detection
var CryptoBases = map[string]bool{
	"BTC": true, "ETH": true, "SOL": true, "XRP": true, "BNB": true,
	"ADA": true, "DOGE": true, "DOT": true, "AVAX": true, "MATIC": true,
	"LINK": true, "UNI": true,
}

// Known fiat base currencies for forex pair detection
var ForexBases = map[string]bool{
	"EUR": true, "GBP": true, "USD": true, "JPY": true,
	"AUD": true, "CAD": true, "NZD": true, "CHF": true,
}

// Commodity symbols routed to commodity-or-forex providers
var CommoditySymbols = map[string]bool{
	"XAUUSD": true, "XAGUSD": true, "GC": true, "SI": true, "GLD": true,
}

// CanonicalSymbol normalizes a symbol to its canonical upper-case form.
func CanonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ClassifySymbol infers the market type of a symbol from its shape. Used
// for routing and for picking threshold tables when no asset record exists.
func ClassifySymbol(symbol string) MarketType {
	sym := CanonicalSymbol(symbol)
	if CommoditySymbols[sym] {
		return MarketCommodity
	}
	if len(sym) >= 5 && CryptoBases[sym[:3]] {
		return MarketCrypto
	}
	for base := range CryptoBases {
		if len(base) >= 4 && strings.HasPrefix(sym, base) {
			return MarketCrypto
		}
	}
	if len(sym) == 6 && isAlpha(sym) && ForexBases[sym[:3]] {
		return MarketForex
	}
	return MarketIndex
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
