package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/resilience"
)

const defaultEmbedCacheSize = 1024

// NewOpenAIEmbedder returns an embedder for any OpenAI-compatible
// embeddings endpoint.
func NewOpenAIEmbedder(cfg config.SemanticConfig) (embeddings.Embedder, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating embeddings client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(cfg.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return embedder, nil
}

// EmbedderOptions tune the query-vector cache and the guards around the
// embeddings endpoint. Timeout bounds a single query embedding.
type EmbedderOptions struct {
	CacheSize int
	Timeout   time.Duration
	Breaker   resilience.CircuitBreakerConfig
}

// guardedEmbedder keeps an LRU of query vectors and routes remote calls
// through a circuit breaker.
type guardedEmbedder struct {
	inner   embeddings.Embedder
	cache   *lru.Cache[string, []float32]
	breaker *resilience.CircuitBreaker
	timeout time.Duration
	logger  *slog.Logger
}

func newGuardedEmbedder(inner embeddings.Embedder, opts EmbedderOptions) *guardedEmbedder {
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultEmbedCacheSize
	}
	cache, _ := lru.New[string, []float32](opts.CacheSize)
	return &guardedEmbedder{
		inner:   inner,
		cache:   cache,
		breaker: resilience.NewCircuitBreaker("embeddings", opts.Breaker),
		timeout: opts.Timeout,
		logger:  slog.Default().With("component", "embedder"),
	}
}

func (e *guardedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.Get(text); ok {
		return vec, nil
	}
	var vec []float32
	err := e.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, e.timeout, "embed-query", func(ctx context.Context) error {
			v, err := e.inner.EmbedQuery(ctx, text)
			if err != nil {
				return err
			}
			vec = v
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	e.cache.Add(text, vec)
	return vec, nil
}

// EmbedDocuments retries transient failures; document batches are only
// embedded while building an index.
func (e *guardedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := resilience.Retry(ctx, "embed-documents", resilience.RetryConfig{}, func() error {
		return e.breaker.Execute(func() error {
			var err error
			vecs, err = e.inner.EmbedDocuments(ctx, texts)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
