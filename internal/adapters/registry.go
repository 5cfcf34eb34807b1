package adapters

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"marketvision/internal/logging"
	"marketvision/internal/market"
)

// Registry holds the registered adapters and routes symbols to them.
// Routing order: explicit per-symbol override, then commodity, crypto and
// forex heuristics from the symbol's shape.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]SourceAdapter
	order     []string
	overrides map[string]string
	log       zerolog.Logger
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[string]SourceAdapter),
		overrides: make(map[string]string),
		log:       logging.Component("adapter_registry"),
	}
}

// Register adds an adapter under its name, replacing any previous one.
func (r *Registry) Register(a SourceAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Name()]; !exists {
		r.order = append(r.order, a.Name())
	}
	r.adapters[a.Name()] = a
	r.log.Info().Str("adapter", a.Name()).Str("market_type", string(a.MarketType())).Msg("adapter registered")
}

// SetOverride pins a symbol to a specific adapter by name.
func (r *Registry) SetOverride(symbol, adapterName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[market.CanonicalSymbol(symbol)] = adapterName
}

// Get looks up an adapter by name.
func (r *Registry) Get(name string) (SourceAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns registered adapter names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the registered adapters in registration order.
func (r *Registry) All() []SourceAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SourceAdapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}

// Route picks the adapter for a symbol.
func (r *Registry) Route(symbol string) (SourceAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sym := market.CanonicalSymbol(symbol)

	if name, ok := r.overrides[sym]; ok {
		if a, exists := r.adapters[name]; exists {
			return a, nil
		}
		return nil, fmt.Errorf("override %s -> %s not registered: %w", sym, name, ErrNoRoute)
	}

	var want []market.MarketType
	switch market.ClassifySymbol(sym) {
	case market.MarketCommodity:
		want = []market.MarketType{market.MarketCommodity, market.MarketForex}
	case market.MarketCrypto:
		want = []market.MarketType{market.MarketCrypto}
	case market.MarketForex:
		want = []market.MarketType{market.MarketForex}
	default:
		return nil, fmt.Errorf("symbol %s: %w", sym, ErrNoRoute)
	}

	for _, mt := range want {
		for _, name := range r.order {
			if r.adapters[name].MarketType() == mt {
				return r.adapters[name], nil
			}
		}
	}
	return nil, fmt.Errorf("symbol %s: no %v adapter registered: %w", sym, want, ErrNoRoute)
}

// FallbackChain returns the adapters to try after the primary failed, in
// registration order with same-market-type adapters first, skipping the
// primary itself.
func (r *Registry) FallbackChain(primary SourceAdapter) []SourceAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var chain []SourceAdapter
	for _, name := range r.order {
		a := r.adapters[name]
		if a.Name() == primary.Name() {
			continue
		}
		chain = append(chain, a)
	}
	sort.SliceStable(chain, func(i, j int) bool {
		im := chain[i].MarketType() == primary.MarketType()
		jm := chain[j].MarketType() == primary.MarketType()
		return im && !jm
	})
	return chain
}
