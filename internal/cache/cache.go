// Package cache stores fused search responses so a repeated request is
// answered without running retrieval or fusion again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/fusion"
	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
)

// Backend is a byte store with expiry. Get returns apperrors.ErrCacheMiss
// for absent keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Flush(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Entry is the cached value: the full fused list and the AI answer, which
// may be nil.
type Entry struct {
	Results    []fusion.Output `json:"search_results"`
	AIResponse *string         `json:"ai_response"`
}

type ResultCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration) *ResultCache {
	return &ResultCache{
		backend: backend,
		ttl:     ttl,
		logger:  slog.Default().With("component", "result-cache"),
	}
}

// Get returns the cached entry for k. Backend and decoding failures are
// logged and reported as misses.
func (c *ResultCache) Get(ctx context.Context, k Key) (*Entry, bool) {
	entry, ok := c.lookup(ctx, k)
	if ok {
		c.hits.Add(1)
		c.logger.Debug("cache hit", "query", k.Query)
	} else {
		c.misses.Add(1)
	}
	return entry, ok
}

func (c *ResultCache) lookup(ctx context.Context, k Key) (*Entry, bool) {
	key := k.storageKey()
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, apperrors.ErrCacheMiss) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &entry, true
}

// Set stores entry under k. Failures are logged only.
func (c *ResultCache) Set(ctx context.Context, k Key, entry *Entry) {
	key := k.storageKey()
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute serves k from the cache or runs computeFn once for all
// concurrent callers asking for the same key, storing its result. Each call
// counts as exactly one hit or one miss.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	k Key,
	computeFn func() (*Entry, error),
) (*Entry, bool, error) {
	if entry, ok := c.Get(ctx, k); ok {
		return entry, true, nil
	}
	val, err, _ := c.group.Do(k.storageKey(), func() (any, error) {
		if entry, ok := c.lookup(ctx, k); ok {
			return entry, nil
		}
		entry, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, k, entry)
		return entry, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Entry), false, nil
}

func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.Flush(ctx)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Ping(ctx context.Context) error {
	return c.backend.Ping(ctx)
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
