package macro

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketvision/internal/logging"
)

// Stale data is better than no data: reads always prefer whatever is
// cached and a background refresh replaces it once the TTL lapses.
const defaultTTL = 6 * time.Hour

// FetchFunc produces a fresh summary. The cache coalesces concurrent
// refreshes so at most one runs at a time.
type FetchFunc func(ctx context.Context) (*Summary, error)

// Cache is the single-writer many-reader macro summary cache, backed by a
// JSON file so data survives restarts.
type Cache struct {
	mu         sync.RWMutex
	summary    *Summary
	fetchedAt  time.Time
	refreshing bool

	ttl   time.Duration
	path  string
	fetch FetchFunc
	log   zerolog.Logger
}

// NewCache creates a cache persisting to path. A missing or unreadable
// file simply means a cold start.
func NewCache(path string, fetch FetchFunc) *Cache {
	c := &Cache{
		ttl:   defaultTTL,
		path:  path,
		fetch: fetch,
		log:   logging.Component("macro"),
	}
	c.loadFile()
	return c
}

// Get returns the cached summary, refreshing in the background when it is
// stale. Only a completely cold cache blocks on a fetch.
func (c *Cache) Get(ctx context.Context) (*Summary, error) {
	c.mu.RLock()
	summary := c.summary
	age := time.Since(c.fetchedAt)
	c.mu.RUnlock()

	if summary != nil {
		if age > c.ttl {
			c.refreshInBackground()
		}
		return summary, nil
	}

	// cold start: fetch synchronously
	fresh, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.store(fresh)
	return fresh, nil
}

// refreshInBackground starts one refresh task; concurrent callers while a
// refresh is in flight are no-ops.
func (c *Cache) refreshInBackground() {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return
	}
	c.refreshing = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.refreshing = false
			c.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		c.log.Info().Msg("macro cache stale, refreshing in background")
		fresh, err := c.fetch(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("macro refresh failed, keeping stale data")
			return
		}
		c.store(fresh)
		c.log.Info().Msg("macro cache refreshed")
	}()
}

func (c *Cache) store(summary *Summary) {
	c.mu.Lock()
	c.summary = summary
	c.fetchedAt = time.Now().UTC()
	c.mu.Unlock()
	c.saveFile(summary)
}

func (c *Cache) loadFile() {
	if c.path == "" {
		return
	}
	payload, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.log.Warn().Err(err).Str("path", c.path).Msg("macro cache file unreadable")
		}
		return
	}
	var summary Summary
	if err := json.Unmarshal(payload, &summary); err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("macro cache file corrupt")
		return
	}
	c.mu.Lock()
	c.summary = &summary
	c.fetchedAt = summary.CachedAt
	c.mu.Unlock()
	c.log.Info().Str("path", c.path).Time("cached_at", summary.CachedAt).Msg("macro cache loaded from file")
}

func (c *Cache) saveFile(summary *Summary) {
	if c.path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		c.log.Warn().Err(err).Msg("macro cache dir")
		return
	}
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		c.log.Warn().Err(err).Msg("macro cache encode")
		return
	}
	if err := os.WriteFile(c.path, payload, 0o644); err != nil {
		c.log.Warn().Err(err).Msg("macro cache write")
	}
}
