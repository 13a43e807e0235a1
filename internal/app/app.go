// Package app assembles the storage layer, retrieval providers and
// autocomplete service from configuration. The search server, the indexer
// and the CLI share it so they agree on where every index lives.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/autocomplete"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/fusion"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/lexical"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval/bm25"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval/fulltext"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval/semantic"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/sqlite"
)

// Components are the long-lived pieces behind a search process.
type Components struct {
	Config       *config.Config
	SQLite       *sqlite.Client
	Postgres     *postgres.Client
	Corpus       *corpus.Store
	Registry     *retrieval.Registry
	BM25         *bm25.Provider
	Fulltext     *fulltext.Provider
	Semantic     *semantic.Provider
	Autocomplete *autocomplete.Service

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Open connects the stores and registers every enabled provider. Providers
// are empty until LoadProviders runs. m may be nil.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Components, error) {
	c := &Components{
		Config:   cfg,
		Registry: retrieval.NewRegistry(),
		metrics:  m,
		logger:   logger.WithComponent("app"),
	}

	db, err := sqlite.Open(cfg.SQLite.Path, cfg.SQLite.BusyTimeout)
	if err != nil {
		return nil, err
	}
	c.SQLite = db
	if c.Corpus, err = corpus.NewStore(ctx, db); err != nil {
		c.Close()
		return nil, err
	}

	store, err := c.openSuggestionStore(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Autocomplete = autocomplete.NewService(store, suggestionWeights(cfg.Autocomplete), suggestionBuild(cfg.Autocomplete), cfg.Autocomplete.Limit)

	c.BM25 = bm25.New(lexical.NewScorer(lexical.Params{K1: cfg.Lexical.K1, B: cfg.Lexical.B}, cfg.Lexical.IndexPath))
	c.Registry.Register(retrieval.Syntactic, c.BM25)

	if cfg.Fulltext.Enabled {
		c.Fulltext = fulltext.New(cfg.Fulltext.IndexPath)
		c.Registry.Register(retrieval.Syntactic, c.Fulltext)
	}

	if cfg.Semantic.Enabled {
		embedder, err := semantic.NewOpenAIEmbedder(cfg.Semantic)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Semantic = semantic.New(embedder, semantic.ParamsFromConfig(cfg.Semantic), cfg.Semantic.IndexPath, semantic.EmbedderOptions{
			CacheSize: cfg.Semantic.EmbedCacheSize,
			Timeout:   cfg.Semantic.Timeout,
			Breaker:   BreakerConfig(m),
		})
		c.Registry.Register(retrieval.Semantic, c.Semantic)
	}

	c.logger.Info("components opened",
		"sqlite", db.Path(),
		"autocomplete_backend", cfg.Autocomplete.Backend,
		"methods", c.Registry.Methods(""),
	)
	return c, nil
}

func (c *Components) openSuggestionStore(ctx context.Context) (autocomplete.Store, error) {
	if c.Config.Autocomplete.Backend != "postgres" {
		return autocomplete.NewSQLiteStore(ctx, c.SQLite)
	}
	pg, err := postgres.New(c.Config.Postgres)
	if err != nil {
		return nil, err
	}
	c.Postgres = pg
	return autocomplete.NewPostgresStore(ctx, pg)
}

// Documents returns the stored corpus. When the store is empty the corpus
// directory is loaded and stored first.
func (c *Components) Documents(ctx context.Context) ([]corpus.Document, error) {
	docs, err := c.Corpus.Documents(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) > 0 {
		return docs, nil
	}
	c.logger.Info("corpus store empty, loading directory", "dir", c.Config.Corpus.DataDir)
	return c.ImportDir(ctx)
}

// ImportDir replaces the stored corpus with the configured directory.
func (c *Components) ImportDir(ctx context.Context) ([]corpus.Document, error) {
	docs, err := corpus.LoadDir(c.Config.Corpus.DataDir, c.Config.Corpus.Extensions)
	if err != nil {
		return nil, err
	}
	if err := c.Corpus.Replace(ctx, docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// LoadProviders builds or restores every registered index for docs. The
// lexical index must load; full-text and semantic failures leave those
// methods unready and are returned joined for the caller to log.
func (c *Components) LoadProviders(ctx context.Context, docs []corpus.Document) error {
	c.BM25.Load(docs)
	c.indexed(bm25.MethodName, len(docs))

	var errs []error
	if c.Fulltext != nil {
		if err := c.Fulltext.Load(ctx, docs); err != nil {
			errs = append(errs, fmt.Errorf("fulltext: %w", err))
		} else {
			c.indexed(fulltext.MethodName, len(docs))
		}
	}
	if c.Semantic != nil {
		if err := c.Semantic.Load(ctx, docs); err != nil {
			errs = append(errs, fmt.Errorf("semantic: %w", err))
		} else {
			c.indexed(semantic.MethodName, len(docs))
		}
	}
	return errors.Join(errs...)
}

func (c *Components) indexed(method string, n int) {
	if c.metrics != nil {
		c.metrics.IndexedDocuments.WithLabelValues(method).Set(float64(n))
	}
}

// SearchConfig maps the search section onto the service configuration.
func (c *Components) SearchConfig() searcher.Config {
	s := c.Config.Search
	return searcher.Config{
		Fusion: fusion.Config{
			Weights:          s.MethodWeights,
			RRFK:             s.RRFK,
			CascadeThreshold: s.CascadeThreshold,
			CascadeFallback:  s.CascadeFallback,
		},
		DefaultAggregation: fusion.Strategy(s.DefaultAggregation),
		K:                  s.DefaultK,
		MaxResults:         s.MaxResults,
		ProviderTimeout:    s.ProviderTimeout,
	}
}

func (c *Components) Close() {
	if c.Fulltext != nil {
		if err := c.Fulltext.Close(); err != nil {
			c.logger.Warn("closing fulltext index", "error", err)
		}
	}
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.SQLite != nil {
		c.SQLite.Close()
	}
}

// BreakerConfig reports breaker transitions to m when it is non-nil.
func BreakerConfig(m *metrics.Metrics) resilience.CircuitBreakerConfig {
	if m == nil {
		return resilience.CircuitBreakerConfig{}
	}
	return resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	}
}

func suggestionWeights(cfg config.AutocompleteConfig) autocomplete.Weights {
	return autocomplete.Weights{
		Salience: cfg.SalienceWeight,
		Click:    cfg.ClickWeight,
		DocName:  cfg.DocNameWeight,
	}
}

func suggestionBuild(cfg config.AutocompleteConfig) autocomplete.BuildConfig {
	return autocomplete.BuildConfig{
		MaxPhraseLength:  cfg.MaxPhraseLength,
		TopWords:         cfg.TopWords,
		WordThreshold:    cfg.WordThreshold,
		PhraseThreshold:  cfg.PhraseThreshold,
		DocNameThreshold: cfg.DocNameThreshold,
	}
}
