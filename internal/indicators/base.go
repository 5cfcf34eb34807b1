// Package indicators implements the deterministic indicator suite and the
// registry the signal engine runs over candle series.
package indicators

import (
	"fmt"
	"time"

	"marketvision/internal/market"
)

// Metadata carries an indicator's structured classification output. The
// signal engine derives a tri-state signal from Classification, Divergence
// and Crossover; indicator-specific detail goes in Extra.
type Metadata struct {
	Classification string                 `json:"classification,omitempty"`
	Divergence     string                 `json:"divergence,omitempty"`
	Crossover      string                 `json:"crossover,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// Result is the standard output of an indicator calculation for one bar.
type Result struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Secondary *float64  `json:"secondary_value,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Meta      Metadata  `json:"metadata"`
}

// Indicator is the contract every indicator implements. Calculate is
// deterministic: the same series always yields the same results, and no
// state is carried across calls. Insufficient history returns an empty
// slice, never an error; errors are reserved for contract violations
// (for example a non-monotonic series).
type Indicator interface {
	Name() string
	Calculate(s *market.Series) ([]Result, error)
}

// validateSeries enforces the input contract shared by all indicators.
func validateSeries(s *market.Series) error {
	if s == nil {
		return fmt.Errorf("indicator input: nil series")
	}
	return s.CheckMonotonic()
}

// Registry maps indicator names to instances. Populated explicitly at init;
// no runtime discovery.
type Registry struct {
	order  []string
	byName map[string]Indicator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Indicator)}
}

// DefaultRegistry returns a registry with the full indicator suite using
// standard parameters.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewVolumeSpike(20, 2.0))
	r.Register(NewOBV(14))
	r.Register(NewADLine(14))
	r.Register(NewRSI(14))
	r.Register(NewMACD(12, 26, 9))
	r.Register(NewBollingerBands(20, 2.0))
	r.Register(NewMovingAverages())
	r.Register(NewATR(14))
	r.Register(NewStochasticRSI(14, 14, 3, 3))
	r.Register(NewSmartMoney(5, 0.003))
	r.Register(NewKeyLevels(5, 0.003))
	r.Register(NewSessionAnalysis())
	r.Register(NewCandlePatterns())
	return r
}

// Register adds an indicator, replacing any previous one with the same name.
func (r *Registry) Register(ind Indicator) {
	if _, exists := r.byName[ind.Name()]; !exists {
		r.order = append(r.order, ind.Name())
	}
	r.byName[ind.Name()] = ind
}

// Get looks up an indicator by name.
func (r *Registry) Get(name string) (Indicator, bool) {
	ind, ok := r.byName[name]
	return ind, ok
}

// Names returns registered indicator names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// CalculateAll runs every registered indicator over the series.
func (r *Registry) CalculateAll(s *market.Series) (map[string][]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	results := make(map[string][]Result, len(r.order))
	for _, name := range r.order {
		res, err := r.byName[name].Calculate(s)
		if err != nil {
			return nil, fmt.Errorf("indicator %s: %w", name, err)
		}
		results[name] = res
	}
	return results, nil
}

func secondary(v float64) *float64 { return &v }
