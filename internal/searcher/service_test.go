package searcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/answer"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/fusion"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/logger"
)

type fakeProvider struct {
	name    string
	results []retrieval.Result
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Search(ctx context.Context, _ string, k int) ([]retrieval.Result, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	if len(p.results) > k {
		return p.results[:k], nil
	}
	return p.results, nil
}

type fakeAnswerer struct {
	err   error
	query string
	seen  int
}

func (a *fakeAnswerer) Generate(_ context.Context, query string, results []fusion.Output) (*answer.Response, error) {
	a.query = query
	a.seen = len(results)
	if a.err != nil {
		return nil, a.err
	}
	return &answer.Response{Name: "AI Response", FullContent: "cats are great pets"}, nil
}

type fakeClicks struct {
	mu      sync.Mutex
	phrases []string
}

func (c *fakeClicks) RecordClick(_ context.Context, phrase string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phrases = append(c.phrases, phrase)
	return true, nil
}

func result(path string, score float64) retrieval.Result {
	return retrieval.Result{Path: path, Name: path, Score: score}
}

func paths(out []fusion.Output) []string {
	ps := make([]string, len(out))
	for i, o := range out {
		ps[i] = o.Path
	}
	return ps
}

func newService(t *testing.T, opts ...Option) (*Service, *fakeProvider, *fakeProvider) {
	t.Helper()
	a := &fakeProvider{name: "a", results: []retrieval.Result{result("A", 90), result("B", 50)}}
	b := &fakeProvider{name: "b", results: []retrieval.Result{result("B", 80), result("C", 40)}}
	reg := retrieval.NewRegistry()
	reg.Register(retrieval.Syntactic, a)
	reg.Register(retrieval.Semantic, b)
	cfg := Config{
		Fusion:          fusion.Config{Weights: map[string]float64{}, RRFK: 60, CascadeThreshold: 0.65, CascadeFallback: 5},
		K:               5,
		MaxResults:      10,
		ProviderTimeout: time.Second,
	}
	return New(reg, cfg, opts...), a, b
}

// --- validation ---

func TestSearchRejectsBadRequests(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"empty query", Request{Query: "  ", Syntactic: []string{"a"}}, apperrors.ErrEmptyQuery},
		{"no methods", Request{Query: "cats"}, apperrors.ErrNoMethods},
		{"unknown method", Request{Query: "cats", Syntactic: []string{"nope"}}, apperrors.ErrUnknownMethod},
		{"unknown aggregation", Request{Query: "cats", Aggregation: "median", Syntactic: []string{"a"}}, apperrors.ErrUnknownStrategy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Search(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, apperrors.IsClientError(err))
		})
	}
}

// --- fusion ---

func TestSearchSinglePassesListThrough(t *testing.T) {
	svc, a, _ := newService(t)

	resp, err := svc.Search(context.Background(), Request{Query: "cats", Aggregation: "single", Syntactic: []string{"a"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, paths(resp.Results))
	assert.Equal(t, 90.0, resp.Results[0].Score)
	assert.Nil(t, resp.AIResponse)
	assert.EqualValues(t, 1, a.calls.Load())
}

func TestSearchLinearCombinesMethods(t *testing.T) {
	svc, _, _ := newService(t)

	resp, err := svc.Search(context.Background(), Request{
		Query:       "cats",
		Aggregation: "linear",
		Syntactic:   []string{"a"},
		Semantic:    []string{"b"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, paths(resp.Results))
	assert.Contains(t, resp.Results[0].Breakdown, "a")
	assert.Contains(t, resp.Results[0].Breakdown, "b")
}

func TestSearchDefaultsToLinear(t *testing.T) {
	svc, _, _ := newService(t)

	resp, err := svc.Search(context.Background(), Request{Query: "cats", Syntactic: []string{"a"}, Semantic: []string{"b"}})

	require.NoError(t, err)
	assert.Equal(t, "B", resp.Results[0].Path)
}

func TestSearchDeduplicatesMethods(t *testing.T) {
	svc, a, _ := newService(t)

	_, err := svc.Search(context.Background(), Request{Query: "cats", Syntactic: []string{"a", "a"}, Semantic: []string{"a"}})

	require.NoError(t, err)
	assert.EqualValues(t, 1, a.calls.Load())
}

func TestSearchTruncatesToMaxResults(t *testing.T) {
	many := &fakeProvider{name: "many"}
	for i := 0; i < 15; i++ {
		many.results = append(many.results, result(fmt.Sprintf("doc-%02d", i), float64(100-i)))
	}
	reg := retrieval.NewRegistry()
	reg.Register(retrieval.Syntactic, many)
	svc := New(reg, Config{K: 20, MaxResults: 10})

	resp, err := svc.Search(context.Background(), Request{Query: "cats", Aggregation: "single", Syntactic: []string{"many"}})

	require.NoError(t, err)
	assert.Len(t, resp.Results, 10)
	assert.Equal(t, "doc-00", resp.Results[0].Path)
}

// --- provider failures ---

func TestSearchToleratesPartialFailure(t *testing.T) {
	svc, _, b := newService(t)
	b.err = errors.New("embedding service down")

	resp, err := svc.Search(context.Background(), Request{Query: "cats", Syntactic: []string{"a"}, Semantic: []string{"b"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, paths(resp.Results))
}

func TestSearchFailsWhenEveryProviderFails(t *testing.T) {
	svc, a, b := newService(t)
	a.err = errors.New("index corrupt")
	b.err = errors.New("embedding service down")

	_, err := svc.Search(context.Background(), Request{Query: "cats", Syntactic: []string{"a"}, Semantic: []string{"b"}})

	assert.ErrorIs(t, err, apperrors.ErrProviderFailed)
	assert.False(t, apperrors.IsClientError(err))
}

func TestSearchTimesOutSlowProvider(t *testing.T) {
	svc, _, b := newService(t)
	svc.cfg.ProviderTimeout = 20 * time.Millisecond
	b.delay = time.Second

	start := time.Now()
	resp, err := svc.Search(context.Background(), Request{Query: "cats", Syntactic: []string{"a"}, Semantic: []string{"b"}})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []string{"A", "B"}, paths(resp.Results))

	lists, err := svc.fanOut(context.Background(), []retrieval.Provider{b}, "cats")
	assert.Nil(t, lists)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

// --- cache ---

func TestSearchCachingServesRepeatFromCache(t *testing.T) {
	backend, err := cache.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	rc := cache.New(backend, time.Hour)
	svc, a, _ := newService(t, WithCache(rc))
	req := Request{Query: "cats", Aggregation: "single", Syntactic: []string{"a"}, Options: []string{OptionCaching}}

	first, err := svc.Search(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), req)
	require.NoError(t, err)

	assert.EqualValues(t, 1, a.calls.Load())
	assert.Equal(t, paths(first.Results), paths(second.Results))
	hits, misses := rc.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestSearchWithoutCachingOptionSkipsCache(t *testing.T) {
	backend, err := cache.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	svc, a, _ := newService(t, WithCache(cache.New(backend, time.Hour)))
	req := Request{Query: "cats", Syntactic: []string{"a"}}

	_, err = svc.Search(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), req)
	require.NoError(t, err)

	assert.EqualValues(t, 2, a.calls.Load())
}

func TestSearchCachesTheServedList(t *testing.T) {
	backend, err := cache.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	rc := cache.New(backend, time.Hour)
	svc, _, _ := newService(t, WithCache(rc))
	svc.cfg.MaxResults = 2
	req := Request{Query: "cats", Aggregation: "linear", Syntactic: []string{"a"}, Semantic: []string{"b"}, Options: []string{OptionCaching}}

	resp, err := svc.Search(context.Background(), req)
	require.NoError(t, err)

	entry, ok := rc.Get(context.Background(), cache.Key{
		Query:       "cats",
		Aggregation: "linear",
		Methods:     []string{"a", "b"},
		Options:     []string{OptionCaching},
	})
	require.True(t, ok)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, paths(resp.Results), paths(entry.Results))
}

// --- answers and clicks ---

func TestSearchAIAssistUsesTopResults(t *testing.T) {
	ans := &fakeAnswerer{}
	svc, _, _ := newService(t, WithAnswerer(ans))

	resp, err := svc.Search(context.Background(), Request{
		Query:     "cats",
		Syntactic: []string{"a"},
		Semantic:  []string{"b"},
		Options:   []string{OptionAIAssist},
	})

	require.NoError(t, err)
	require.NotNil(t, resp.AIResponse)
	assert.Equal(t, "cats are great pets", *resp.AIResponse)
	assert.Equal(t, "cats", ans.query)
	assert.Equal(t, 3, ans.seen)
}

func TestSearchAIFailureKeepsResults(t *testing.T) {
	svc, _, _ := newService(t, WithAnswerer(&fakeAnswerer{err: apperrors.ErrProviderFailed}))

	resp, err := svc.Search(context.Background(), Request{Query: "cats", Syntactic: []string{"a"}, Options: []string{OptionAIAssist}})

	require.NoError(t, err)
	assert.Nil(t, resp.AIResponse)
	assert.NotEmpty(t, resp.Results)
}

func TestSearchRecordsQueryAsClick(t *testing.T) {
	clicks := &fakeClicks{}
	svc, _, _ := newService(t, WithClickRecorder(clicks))

	_, err := svc.Search(context.Background(), Request{Query: "Redis Caching", Syntactic: []string{"a"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"Redis Caching"}, clicks.phrases)
}

func TestSearchLogsSpanTree(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logger.New(&buf, "debug", "text"))
	t.Cleanup(func() { slog.SetDefault(prev) })
	svc, _, _ := newService(t)
	ctx := logger.WithRequestID(context.Background(), "req-42")

	_, err := svc.Search(ctx, Request{Query: "cats", Syntactic: []string{"a"}, Semantic: []string{"b"}})

	require.NoError(t, err)
	var spans []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "msg=span") {
			assert.Contains(t, line, "trace_id=req-42")
			spans = append(spans, line)
		}
	}
	require.Len(t, spans, 4)
	assert.Contains(t, spans[0], "span=search ")
	joined := strings.Join(spans, "\n")
	assert.Contains(t, joined, "span=search/method:a ")
	assert.Contains(t, joined, "span=search/method:b ")
	assert.Contains(t, joined, "span=search/fuse ")
}
