// Package market defines the canonical OHLCV data model shared by the
// ingestion pipeline, the indicator engine, and the signal engine.
package market

import (
	"fmt"
	"sort"
	"time"
)

// Candle is one canonical OHLCV bar. Timestamps are UTC and aligned to the
// timeframe boundary.
type Candle struct {
	Timestamp    time.Time `json:"timestamp"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	TickVolume   *float64  `json:"tick_volume,omitempty"`
	Spread       *float64  `json:"spread,omitempty"`
	OpenInterest *float64  `json:"open_interest,omitempty"`
}

// Validate checks the OHLCV invariants: low <= min(open, close),
// max(open, close) <= high, volume >= 0.
func (c Candle) Validate() error {
	lo, hi := c.Open, c.Open
	if c.Close < lo {
		lo = c.Close
	}
	if c.Close > hi {
		hi = c.Close
	}
	if c.Low > lo {
		return fmt.Errorf("candle at %s: low %.8f above min(open, close) %.8f", c.Timestamp, c.Low, lo)
	}
	if c.High < hi {
		return fmt.Errorf("candle at %s: high %.8f below max(open, close) %.8f", c.Timestamp, c.High, hi)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle at %s: negative volume %.8f", c.Timestamp, c.Volume)
	}
	return nil
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool { return c.Close > c.Open }

// IsBearish reports whether the candle closed below its open.
func (c Candle) IsBearish() bool { return c.Close < c.Open }

// Body returns the absolute open-to-close distance.
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-to-low distance.
func (c Candle) Range() float64 { return c.High - c.Low }

// UpperWick returns the distance from the body top to the high.
func (c Candle) UpperWick() float64 {
	top := c.Open
	if c.Close > top {
		top = c.Close
	}
	return c.High - top
}

// LowerWick returns the distance from the low to the body bottom.
func (c Candle) LowerWick() float64 {
	bottom := c.Open
	if c.Close < bottom {
		bottom = c.Close
	}
	return bottom - c.Low
}

// Series is an ordered run of candles for one (symbol, timeframe),
// strictly ascending in timestamp.
type Series struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Candles   []Candle  `json:"candles"`
}

// NewSeries builds a series, sorting and deduplicating the input by
// timestamp (latest duplicate wins).
func NewSeries(symbol string, tf Timeframe, candles []Candle) *Series {
	return &Series{
		Symbol:    symbol,
		Timeframe: tf,
		Candles:   SortDedupe(candles),
	}
}

// Len returns the number of candles.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Candles)
}

// Empty reports whether the series has no candles.
func (s *Series) Empty() bool { return s.Len() == 0 }

// Last returns the most recent candle. Callers must check Empty first.
func (s *Series) Last() Candle { return s.Candles[len(s.Candles)-1] }

// At returns the candle at index i.
func (s *Series) At(i int) Candle { return s.Candles[i] }

// Prefix returns a new series holding the first n candles.
func (s *Series) Prefix(n int) *Series {
	if n > len(s.Candles) {
		n = len(s.Candles)
	}
	return &Series{Symbol: s.Symbol, Timeframe: s.Timeframe, Candles: s.Candles[:n]}
}

// Tail returns a new series holding the last n candles.
func (s *Series) Tail(n int) *Series {
	if n >= len(s.Candles) {
		return s
	}
	return &Series{Symbol: s.Symbol, Timeframe: s.Timeframe, Candles: s.Candles[len(s.Candles)-n:]}
}

// Closes returns the close prices in order.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Volumes returns the volumes in order.
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Volume
	}
	return out
}

// CheckMonotonic returns an error if the series is not strictly ascending
// in timestamp. A violation is a programmer error, not a data condition.
func (s *Series) CheckMonotonic() error {
	for i := 1; i < len(s.Candles); i++ {
		if !s.Candles[i].Timestamp.After(s.Candles[i-1].Timestamp) {
			return fmt.Errorf("series %s %s: timestamp at index %d (%s) not after previous (%s)",
				s.Symbol, s.Timeframe, i, s.Candles[i].Timestamp, s.Candles[i-1].Timestamp)
		}
	}
	return nil
}

// SortDedupe sorts candles ascending by timestamp and drops duplicate
// timestamps, keeping the last occurrence.
func SortDedupe(candles []Candle) []Candle {
	if len(candles) == 0 {
		return candles
	}
	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	out := sorted[:0]
	for _, c := range sorted {
		if len(out) > 0 && out[len(out)-1].Timestamp.Equal(c.Timestamp) {
			out[len(out)-1] = c // keep latest duplicate
			continue
		}
		out = append(out, c)
	}
	return out
}

// Merge combines two candle sets by timestamp, preferring candles from
// `primary` on conflicts, and trims the result to the newest `limit` bars.
func Merge(base, primary []Candle, limit int) []Candle {
	combined := make([]Candle, 0, len(base)+len(primary))
	combined = append(combined, base...)
	combined = append(combined, primary...)
	merged := SortDedupe(combined)
	if limit > 0 && len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}

// Aggregate rolls finer candles up into coarser bars: open = first,
// close = last, high = max, low = min, volume = sum. Used by adapters whose
// provider serves only finer granularity than requested.
func Aggregate(candles []Candle, target Timeframe) []Candle {
	if len(candles) == 0 || !target.Valid() {
		return nil
	}
	width := target.Duration()
	var out []Candle
	var bucket time.Time
	for _, c := range SortDedupe(candles) {
		start := c.Timestamp.Truncate(width)
		if len(out) == 0 || !start.Equal(bucket) {
			bucket = start
			nc := c
			nc.Timestamp = start
			out = append(out, nc)
			continue
		}
		last := &out[len(out)-1]
		if c.High > last.High {
			last.High = c.High
		}
		if c.Low < last.Low {
			last.Low = c.Low
		}
		last.Close = c.Close
		last.Volume += c.Volume
	}
	return out
}
