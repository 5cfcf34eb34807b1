package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"marketvision/internal/market"
)

// ErrSignalNotFound is returned when an id has no stored signal.
var ErrSignalNotFound = errors.New("signal not found")

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Symbol    string
	Status    Status
	Timeframe market.Timeframe
}

func (f Filter) matches(sig *Signal) bool {
	if f.Symbol != "" && sig.Symbol != market.CanonicalSymbol(f.Symbol) {
		return false
	}
	if f.Status != "" && sig.Status != f.Status {
		return false
	}
	if f.Timeframe != "" && sig.Timeframe != f.Timeframe {
		return false
	}
	return true
}

// Store persists signals partitioned by symbol. Save assigns a globally
// monotonic id; Update overwrites by id.
type Store interface {
	Save(ctx context.Context, sig *Signal) error
	Get(ctx context.Context, id int64) (*Signal, error)
	List(ctx context.Context, f Filter) ([]*Signal, error)
	Update(ctx context.Context, sig *Signal) error
}

// MemoryStore is the in-process store used in tests and when Redis is not
// configured.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*Signal
	ordered []int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[int64]*Signal)}
}

func (m *MemoryStore) Save(ctx context.Context, sig *Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sig.ID = m.nextID
	cp := *sig
	m.byID[sig.ID] = &cp
	m.ordered = append(m.ordered, sig.ID)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (*Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("id %d: %w", id, ErrSignalNotFound)
	}
	cp := *sig
	return &cp, nil
}

func (m *MemoryStore) List(ctx context.Context, f Filter) ([]*Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Signal
	for _, id := range m.ordered {
		sig := m.byID[id]
		if f.matches(sig) {
			cp := *sig
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, sig *Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[sig.ID]; !ok {
		return fmt.Errorf("id %d: %w", sig.ID, ErrSignalNotFound)
	}
	cp := *sig
	m.byID[sig.ID] = &cp
	return nil
}

// RedisStore persists signals in Redis: one JSON value per signal, a
// global INCR counter for ids and per-symbol id lists for partitioned
// listing.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store over an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

const (
	redisIDCounter = "signals:next_id"
	redisAllKey    = "signals:all"
)

func redisSignalKey(id int64) string   { return fmt.Sprintf("signals:id:%d", id) }
func redisSymbolKey(sym string) string { return fmt.Sprintf("signals:sym:%s", sym) }

func (r *RedisStore) Save(ctx context.Context, sig *Signal) error {
	id, err := r.client.Incr(ctx, redisIDCounter).Result()
	if err != nil {
		return fmt.Errorf("allocating signal id: %w", err)
	}
	sig.ID = id

	if err := r.write(ctx, sig); err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.RPush(ctx, redisAllKey, id)
	pipe.RPush(ctx, redisSymbolKey(sig.Symbol), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("indexing signal %d: %w", id, err)
	}
	return nil
}

func (r *RedisStore) write(ctx context.Context, sig *Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encoding signal %d: %w", sig.ID, err)
	}
	if err := r.client.Set(ctx, redisSignalKey(sig.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("storing signal %d: %w", sig.ID, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id int64) (*Signal, error) {
	payload, err := r.client.Get(ctx, redisSignalKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("id %d: %w", id, ErrSignalNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading signal %d: %w", id, err)
	}
	var sig Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return nil, fmt.Errorf("decoding signal %d: %w", id, err)
	}
	return &sig, nil
}

func (r *RedisStore) List(ctx context.Context, f Filter) ([]*Signal, error) {
	key := redisAllKey
	if f.Symbol != "" {
		key = redisSymbolKey(market.CanonicalSymbol(f.Symbol))
	}
	ids, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing signal ids: %w", err)
	}

	var out []*Signal
	for _, raw := range ids {
		var id int64
		if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
			continue
		}
		sig, err := r.Get(ctx, id)
		if errors.Is(err, ErrSignalNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if f.matches(sig) {
			out = append(out, sig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *RedisStore) Update(ctx context.Context, sig *Signal) error {
	exists, err := r.client.Exists(ctx, redisSignalKey(sig.ID)).Result()
	if err != nil {
		return fmt.Errorf("checking signal %d: %w", sig.ID, err)
	}
	if exists == 0 {
		return fmt.Errorf("id %d: %w", sig.ID, ErrSignalNotFound)
	}
	return r.write(ctx, sig)
}
