package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/fusion"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
)

func newTestCache(t *testing.T) (*ResultCache, *BadgerBackend) {
	t.Helper()
	backend, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return New(backend, time.Hour), backend
}

func sampleEntry() *Entry {
	answer := "cats are pets"
	return &Entry{
		Results: []fusion.Output{{
			Result: retrieval.Result{
				Path:           "docs/cats.txt",
				Name:           "cats",
				ContentSnippet: "cats are <mark>great</mark> pets",
				Score:          87.5,
				Chunks:         []retrieval.Chunk{{Content: "cats are great", Score: 0.91}},
			},
			Breakdown: map[string]fusion.Contribution{
				"bm25": {Rank: 1, PositionScore: 2, Relevance: 0.875, Weight: 0.4, Contribution: 0.7},
			},
		}},
		AIResponse: &answer,
	}
}

func TestKeyIgnoresMethodAndOptionOrder(t *testing.T) {
	a := Key{Query: "cats", Aggregation: "linear", Methods: []string{"bm25", "fulltext"}, Options: []string{"caching", "ai_assist"}}
	b := Key{Query: "cats", Aggregation: "linear", Methods: []string{"fulltext", "bm25"}, Options: []string{"ai_assist", "caching"}}

	assert.Equal(t, "cats|linear|bm25,fulltext|ai_assist,caching", a.String())
	assert.Equal(t, a.storageKey(), b.storageKey())
	assert.Equal(t, []string{"bm25", "fulltext"}, a.Methods, "sorting must not touch the caller's slice")
}

func TestKeyDistinguishesQueryAndAggregation(t *testing.T) {
	base := Key{Query: "cats", Aggregation: "linear", Methods: []string{"bm25"}}

	other := base
	other.Query = "Cats"
	assert.NotEqual(t, base.storageKey(), other.storageKey())

	other = base
	other.Aggregation = "cascade"
	assert.NotEqual(t, base.storageKey(), other.storageKey())
}

func TestStorageKeyPrefix(t *testing.T) {
	key := Key{Query: "q"}.storageKey()

	assert.Equal(t, keyPrefix, key[:len(keyPrefix)])
	assert.Len(t, key, len(keyPrefix)+32)
}

func TestHitReturnsIdenticalEntry(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	key := Key{Query: "great", Aggregation: "linear", Methods: []string{"bm25"}}
	want := sampleEntry()

	c.Set(ctx, key, want)
	got, ok := c.Get(ctx, key)

	require.True(t, ok)
	wantJSON, err := json.Marshal(want)
	require.NoError(t, err)
	gotJSON, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(wantJSON), string(gotJSON))
	assert.Equal(t, string(wantJSON), string(gotJSON))
}

func TestMissCountsStats(t *testing.T) {
	c, _ := newTestCache(t)

	_, ok := c.Get(context.Background(), Key{Query: "absent"})

	assert.False(t, ok)
	hits, misses := c.Stats()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetOrComputeRunsOnce(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	key := Key{Query: "great", Aggregation: "rank_fusion", Methods: []string{"bm25"}}
	var calls atomic.Int32

	compute := func() (*Entry, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return sampleEntry(), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, _, err := c.GetOrCompute(ctx, key, compute)
			assert.NoError(t, err)
			assert.Len(t, entry.Results, 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	_, hit, err := c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrComputeCountsOncePerCall(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	compute := func() (*Entry, error) { return sampleEntry(), nil }

	_, hit, err := c.GetOrCompute(ctx, Key{Query: "once"}, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, err = c.GetOrCompute(ctx, Key{Query: "once"}, compute)
	require.NoError(t, err)
	assert.True(t, hit)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	key := Key{Query: "boom"}
	boom := errors.New("boom")

	_, _, err := c.GetOrCompute(ctx, key, func() (*Entry, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}

func TestInvalidateDropsEntries(t *testing.T) {
	c, backend := newTestCache(t)
	ctx := context.Background()
	key := Key{Query: "great"}
	c.Set(ctx, key, sampleEntry())

	require.NoError(t, c.Invalidate(ctx))

	_, err := backend.Get(ctx, key.storageKey())
	assert.ErrorIs(t, err, apperrors.ErrCacheMiss)
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (failingBackend) Flush(context.Context) (int64, error) { return 0, errors.New("connection refused") }
func (failingBackend) Ping(context.Context) error           { return errors.New("connection refused") }

func TestBackendFailureDegradesToMiss(t *testing.T) {
	c := New(failingBackend{}, time.Minute)
	ctx := context.Background()

	entry, hit, err := c.GetOrCompute(ctx, Key{Query: "q"}, func() (*Entry, error) {
		return sampleEntry(), nil
	})

	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, entry.Results, 1)
	assert.Error(t, c.Invalidate(ctx))
}
