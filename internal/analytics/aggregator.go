package analytics

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/kafka"
)

const (
	maxLatencySamples = 10000
	topLimit          = 10
)

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	TotalClicks       int64            `json:"total_clicks"`
	UnmatchedClicks   int64            `json:"unmatched_clicks"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	CacheHitRate      float64          `json:"cache_hit_rate"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	ErrorCount        int64            `json:"error_count"`
	AIAnswers         int64            `json:"ai_answers"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	ByAggregation     map[string]int64 `json:"by_aggregation"`
	ByMethod          map[string]int64 `json:"by_method"`
	TopQueries        []Count          `json:"top_queries"`
	ZeroResultQueries []Count          `json:"zero_result_queries"`
	TopClicks         []Count          `json:"top_clicks"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

type Count struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Aggregator folds search and click events into running totals. Latency
// percentiles cover the most recent samples only.
type Aggregator struct {
	mu          sync.RWMutex
	stats       AggregatedStats
	latencies   []int64
	next        int
	queries     map[string]int64
	zeroQueries map[string]int64
	clicks      map[string]int64
	startTime   time.Time
	consumer    *kafka.Consumer
	logger      *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		stats: AggregatedStats{
			ByAggregation: make(map[string]int64),
			ByMethod:      make(map[string]int64),
		},
		latencies:   make([]int64, 0, 1024),
		queries:     make(map[string]int64),
		zeroQueries: make(map[string]int64),
		clicks:      make(map[string]int64),
		startTime:   time.Now(),
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
}

// Consume attaches a Kafka consumer; Start then blocks on it.
func (a *Aggregator) Consume(consumer *kafka.Consumer) {
	a.consumer = consumer
}

func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("analytics aggregator starting")
	if a.consumer == nil {
		<-ctx.Done()
		return nil
	}
	return a.consumer.Start(ctx)
}

// HandleMessage decodes and records one Kafka message. Undecodable
// messages are logged and acknowledged.
func (a *Aggregator) HandleMessage(_ context.Context, _ []byte, value []byte) error {
	event, err := decodeEvent(value)
	if err != nil {
		a.logger.Error("failed to decode analytics event", "error", err)
		return nil
	}
	switch e := event.(type) {
	case SearchEvent:
		a.TrackSearch(e)
	case ClickEvent:
		a.TrackClick(e)
	}
	return nil
}

func (a *Aggregator) TrackSearch(e SearchEvent) {
	query := strings.ToLower(strings.TrimSpace(e.Query))

	a.mu.Lock()
	defer a.mu.Unlock()
	s := &a.stats
	s.TotalSearches++
	if e.CacheHit {
		s.CacheHits++
	} else {
		s.CacheMisses++
	}
	if e.Error != "" {
		s.ErrorCount++
	} else if e.Results == 0 {
		s.ZeroResultCount++
		a.zeroQueries[query]++
	}
	if e.AIAnswered {
		s.AIAnswers++
	}
	s.ByAggregation[e.Aggregation]++
	for _, m := range e.Methods {
		s.ByMethod[m]++
	}
	a.queries[query]++

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

func (a *Aggregator) TrackClick(e ClickEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.TotalClicks++
	if !e.Matched {
		a.stats.UnmatchedClicks++
	}
	a.clicks[strings.ToLower(strings.TrimSpace(e.Phrase))]++
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	stats.ByAggregation = copyCounts(a.stats.ByAggregation)
	stats.ByMethod = copyCounts(a.stats.ByMethod)
	if total := stats.CacheHits + stats.CacheMisses; total > 0 {
		stats.CacheHitRate = float64(stats.CacheHits) / float64(total)
	}
	if len(a.latencies) > 0 {
		sorted := append([]int64(nil), a.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queries, topLimit)
	stats.ZeroResultQueries = topN(a.zeroQueries, topLimit)
	stats.TopClicks = topN(a.clicks, topLimit)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts, ties broken by key.
func topN(counts map[string]int64, n int) []Count {
	result := make([]Count, 0, len(counts))
	for key, count := range counts {
		result = append(result, Count{Key: key, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Key < result[j].Key
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
