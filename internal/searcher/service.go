// Package searcher runs a search request end to end: validation, provider
// fan-out, fusion, optional AI answer and the response cache.
package searcher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/answer"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/fusion"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/tracing"
)

// Request options.
const (
	OptionCaching  = "caching"
	OptionAIAssist = "ai_assist"
)

type Request struct {
	Query       string
	Aggregation string
	Syntactic   []string
	Semantic    []string
	Options     []string
}

// Response is the search payload. AIResponse is null unless an answer was
// requested and produced.
type Response struct {
	Results    []fusion.Output `json:"search_results"`
	AIResponse *string         `json:"ai_response"`
}

type Answerer interface {
	Generate(ctx context.Context, query string, results []fusion.Output) (*answer.Response, error)
}

// ClickRecorder counts a phrase use; searched queries are recorded too.
type ClickRecorder interface {
	RecordClick(ctx context.Context, phrase string) (bool, error)
}

type Config struct {
	Fusion             fusion.Config
	DefaultAggregation fusion.Strategy
	// K is how many results each provider is asked for.
	K               int
	MaxResults      int
	ProviderTimeout time.Duration
}

type Service struct {
	registry *retrieval.Registry
	cfg      Config
	cache    *cache.ResultCache
	answerer Answerer
	clicks   ClickRecorder
	tracker  analytics.Tracker
	metrics  *metrics.Metrics
}

// Option configures optional collaborators of a Service.
type Option func(*Service)

func WithCache(c *cache.ResultCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithAnswerer(a Answerer) Option {
	return func(s *Service) { s.answerer = a }
}

func WithClickRecorder(c ClickRecorder) Option {
	return func(s *Service) { s.clicks = c }
}

func WithTracker(t analytics.Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(registry *retrieval.Registry, cfg Config, opts ...Option) *Service {
	if cfg.K <= 0 {
		cfg.K = 5
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	if cfg.DefaultAggregation == "" {
		cfg.DefaultAggregation = fusion.Linear
	}
	s := &Service{
		registry: registry,
		cfg:      cfg,
		tracker:  analytics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the response cache, or nil when caching is not configured.
func (s *Service) Cache() *cache.ResultCache {
	return s.cache
}

// Search validates req, then serves it from the cache when the caching
// option is set and an entry exists, or computes it.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	if strings.TrimSpace(req.Query) == "" {
		return nil, apperrors.ErrEmptyQuery
	}
	aggregation := s.cfg.DefaultAggregation
	if req.Aggregation != "" {
		parsed, err := fusion.ParseStrategy(req.Aggregation)
		if err != nil {
			return nil, err
		}
		aggregation = parsed
	}
	methods := dedupe(append(append([]string(nil), req.Syntactic...), req.Semantic...))
	if len(methods) == 0 {
		return nil, apperrors.ErrNoMethods
	}
	providers, err := s.registry.Resolve(methods)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "search", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(ctx, log, slog.LevelDebug)
	}()
	span.Set("aggregation", string(aggregation))

	if s.clicks != nil {
		if _, err := s.clicks.RecordClick(ctx, req.Query); err != nil {
			log.Warn("failed to record query click", "error", err)
		}
	}

	compute := func() (*cache.Entry, error) {
		return s.compute(ctx, req.Query, aggregation, providers, has(req.Options, OptionAIAssist))
	}

	var (
		entry    *cache.Entry
		cacheHit bool
	)
	if s.cache != nil && has(req.Options, OptionCaching) {
		key := cache.Key{
			Query:       req.Query,
			Aggregation: string(aggregation),
			Methods:     methods,
			Options:     req.Options,
		}
		entry, cacheHit, err = s.cache.GetOrCompute(ctx, key, compute)
		if s.metrics != nil {
			if cacheHit {
				s.metrics.CacheHitsTotal.Inc()
			} else {
				s.metrics.CacheMissesTotal.Inc()
			}
		}
	} else {
		entry, err = compute()
	}

	span.Set("cache_hit", cacheHit)
	latency := time.Since(start)
	event := analytics.SearchEvent{
		Query:       req.Query,
		Aggregation: string(aggregation),
		Methods:     methods,
		Options:     req.Options,
		LatencyMs:   latency.Milliseconds(),
		CacheHit:    cacheHit,
		RequestID:   logger.RequestID(ctx),
	}
	if err != nil {
		event.Error = err.Error()
		s.tracker.TrackSearch(event)
		s.observe(aggregation, "error", cacheHit, latency, 0)
		return nil, err
	}

	event.Results = len(entry.Results)
	event.AIAnswered = entry.AIResponse != nil
	s.tracker.TrackSearch(event)
	outcome := "ok"
	if len(entry.Results) == 0 {
		outcome = "zero_result"
	}
	s.observe(aggregation, outcome, cacheHit, latency, len(entry.Results))

	log.Info("search completed",
		"query", req.Query,
		"aggregation", aggregation,
		"methods", methods,
		"results", len(entry.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	return &Response{Results: entry.Results, AIResponse: entry.AIResponse}, nil
}

func (s *Service) compute(
	ctx context.Context,
	query string,
	aggregation fusion.Strategy,
	providers []retrieval.Provider,
	aiAssist bool,
) (*cache.Entry, error) {
	lists, err := s.fanOut(ctx, providers, query)
	if err != nil {
		return nil, err
	}
	_, fuseSpan := tracing.StartChild(ctx, "fuse")
	fused, err := fusion.Fuse(aggregation, lists, s.cfg.Fusion)
	fuseSpan.Set("results", len(fused))
	fuseSpan.End()
	if err != nil {
		return nil, err
	}
	if len(fused) > s.cfg.MaxResults {
		fused = fused[:s.cfg.MaxResults]
	}

	entry := &cache.Entry{Results: fused}
	if aiAssist {
		entry.AIResponse = s.answer(ctx, query, fused)
	}
	return entry, nil
}

// answer returns the synthesized answer text, or nil when answering is not
// configured or fails; search results are returned either way.
func (s *Service) answer(ctx context.Context, query string, fused []fusion.Output) *string {
	if s.answerer == nil {
		s.countAnswer("disabled")
		return nil
	}
	actx, span := tracing.StartChild(ctx, "answer")
	defer span.End()
	resp, err := s.answerer.Generate(actx, query, fused)
	if err != nil {
		logger.FromContext(ctx).Warn("ai answer failed", "query", query, "error", err)
		s.countAnswer("error")
		return nil
	}
	s.countAnswer("ok")
	text := resp.FullContent
	return &text
}

func (s *Service) countAnswer(status string) {
	if s.metrics != nil {
		s.metrics.AIAnswersTotal.WithLabelValues(status).Inc()
	}
}

func (s *Service) observe(aggregation fusion.Strategy, outcome string, cacheHit bool, latency time.Duration, results int) {
	if s.metrics == nil {
		return
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	s.metrics.SearchRequestsTotal.WithLabelValues(string(aggregation), outcome).Inc()
	s.metrics.SearchLatency.WithLabelValues(string(aggregation), cacheStatus).Observe(latency.Seconds())
	if outcome != "error" {
		s.metrics.SearchResultsCount.Observe(float64(results))
	}
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

func has(items []string, want string) bool {
	for _, it := range items {
		if it == want {
			return true
		}
	}
	return false
}
