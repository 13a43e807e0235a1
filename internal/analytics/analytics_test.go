package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/kafka"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestCollectorFlushesFullBatch(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.TrackSearch(SearchEvent{Query: "a"})
	c.TrackClick(ClickEvent{Phrase: "b", Matched: true})

	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	c.Close()

	first := pub.batches[0][0].Value.(SearchEvent)
	assert.Equal(t, EventSearch, first.Type)
	assert.False(t, first.Timestamp.IsZero())
}

func TestCollectorFlushesOnShutdown(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.TrackSearch(SearchEvent{Query: "late"})
	cancel()
	c.Close()

	assert.Equal(t, 1, pub.count())
	assert.Equal(t, 0, c.Buffered())
}

func TestCollectorRequeuesOnFailure(t *testing.T) {
	pub := &recordingPublisher{fail: errors.New("broker down")}
	c := NewCollector(pub, 100, time.Hour)

	c.TrackSearch(SearchEvent{Query: "q"})
	c.flush(context.Background())

	assert.Equal(t, 1, c.Buffered())
}

func TestAggregatorStats(t *testing.T) {
	a := NewAggregator()
	a.TrackSearch(SearchEvent{Query: "Kafka", Aggregation: "linear", Methods: []string{"bm25", "openai"}, Results: 3, LatencyMs: 10})
	a.TrackSearch(SearchEvent{Query: "kafka ", Aggregation: "linear", Methods: []string{"bm25"}, Results: 2, LatencyMs: 30, CacheHit: true})
	a.TrackSearch(SearchEvent{Query: "nothing", Aggregation: "cascade", Methods: []string{"fulltext"}, Results: 0, LatencyMs: 20})
	a.TrackSearch(SearchEvent{Query: "broken", Aggregation: "linear", Methods: []string{"openai"}, Error: "timeout", LatencyMs: 40})
	a.TrackClick(ClickEvent{Phrase: "kafka topics", Matched: true})
	a.TrackClick(ClickEvent{Phrase: "unknown", Matched: false})

	s := a.Stats()

	assert.Equal(t, int64(4), s.TotalSearches)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.InDelta(t, 0.25, s.CacheHitRate, 1e-9)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, int64(1), s.ErrorCount)
	assert.Equal(t, int64(2), s.TotalClicks)
	assert.Equal(t, int64(1), s.UnmatchedClicks)
	assert.Equal(t, map[string]int64{"linear": 3, "cascade": 1}, s.ByAggregation)
	assert.Equal(t, int64(2), s.ByMethod["bm25"])
	assert.Equal(t, Count{Key: "kafka", Count: 2}, s.TopQueries[0])
	assert.Equal(t, []Count{{Key: "nothing", Count: 1}}, s.ZeroResultQueries)
	assert.InDelta(t, 25.0, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(30), s.P50LatencyMs)
	assert.Equal(t, int64(40), s.P99LatencyMs)
}

func TestHandleMessageDecodesByType(t *testing.T) {
	a := NewAggregator()
	search, err := json.Marshal(SearchEvent{Type: EventSearch, Query: "q", Results: 1})
	require.NoError(t, err)
	click, err := json.Marshal(ClickEvent{Type: EventClick, Phrase: "p", Matched: true})
	require.NoError(t, err)

	require.NoError(t, a.HandleMessage(context.Background(), nil, search))
	require.NoError(t, a.HandleMessage(context.Background(), nil, click))
	require.NoError(t, a.HandleMessage(context.Background(), nil, []byte(`{"type":"mystery"}`)))
	require.NoError(t, a.HandleMessage(context.Background(), nil, []byte(`not json`)))

	s := a.Stats()
	assert.Equal(t, int64(1), s.TotalSearches)
	assert.Equal(t, int64(1), s.TotalClicks)
}

func TestStatsHandler(t *testing.T) {
	a := NewAggregator()
	a.TrackSearch(SearchEvent{Query: "q", Aggregation: "linear", Results: 1})
	mux := http.NewServeMux()
	NewHandler(a, nil).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.TotalSearches)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
