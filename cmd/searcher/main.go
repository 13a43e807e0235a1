package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/answer"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/app"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	components, err := app.Open(ctx, cfg, m)
	if err != nil {
		slog.Error("failed to open components", "error", err)
		os.Exit(1)
	}
	defer components.Close()

	resultCache, closeCache := openCache(cfg)
	defer closeCache()

	aggregator := analytics.NewAggregator()
	var tracker analytics.Tracker = aggregator
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 100, 5*time.Second)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	} else {
		slog.Info("kafka disabled, analytics aggregated in process")
	}

	opts := []searcher.Option{
		searcher.WithClickRecorder(components.Autocomplete),
		searcher.WithTracker(tracker),
		searcher.WithMetrics(m),
	}
	if resultCache != nil {
		opts = append(opts, searcher.WithCache(resultCache))
	}
	if cfg.LLM.Enabled {
		model, err := answer.NewOpenAIModel(cfg.LLM)
		if err != nil {
			slog.Error("failed to create chat model", "error", err)
			os.Exit(1)
		}
		answerOpts := answer.OptionsFromConfig(cfg.LLM)
		answerOpts.Breaker = app.BreakerConfig(m)
		opts = append(opts, searcher.WithAnswerer(answer.NewGenerator(model, answerOpts)))
		slog.Info("ai answers enabled", "model", cfg.LLM.Model)
	}
	svc := searcher.New(components.Registry, components.SearchConfig(), opts...)

	go func() {
		docs, err := components.Documents(ctx)
		if err != nil {
			slog.Error("failed to load corpus", "error", err)
			return
		}
		if err := components.LoadProviders(ctx, docs); err != nil {
			slog.Warn("some retrieval methods are unavailable", "error", err)
		}
		slog.Info("retrieval providers loaded", "documents", len(docs))
	}()

	checker := health.NewChecker()
	checker.Register("bm25", health.Loaded(components.BM25.Ready))
	if components.Fulltext != nil {
		checker.Register("fulltext", health.Loaded(components.Fulltext.Ready))
	}
	if components.Semantic != nil {
		checker.Register("openai", health.Loaded(components.Semantic.Ready))
	}
	checker.Register("sqlite", health.Ping(components.SQLite.Ping, true))
	if components.Postgres != nil {
		checker.Register("postgres", health.Ping(components.Postgres.Ping, true))
	}
	if resultCache != nil {
		checker.Register("cache", health.Ping(resultCache.Ping, false))
	}

	h := handler.New(svc, components.Autocomplete, resultCache, tracker, m)
	analyticsH := analytics.NewHandler(aggregator, nil)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	analyticsH.RegisterRoutes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", m.Handler())

	chain := middleware.Chain(mux,
		middleware.Recover,
		middleware.RequestID,
		middleware.CORS(middleware.DefaultCORSConfig(cfg.CORS.AllowOrigins)),
		middleware.Metrics(m),
		middleware.Timeout(cfg.Server.RequestTimeout),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		shutdownMetrics = m.StartServer(cfg.Metrics.Port)
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

// openCache builds the configured response cache. A backend that cannot be
// reached disables caching rather than failing startup.
func openCache(cfg *config.Config) (*cache.ResultCache, func()) {
	switch cfg.Cache.Backend {
	case "redis":
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
			return nil, func() {}
		}
		slog.Info("search cache enabled", "backend", "redis", "addr", cfg.Redis.Addr, "ttl", cfg.Cache.TTL)
		return cache.New(cache.NewRedisBackend(client), cfg.Cache.TTL), func() { client.Close() }
	case "badger":
		backend, err := cache.OpenBadger(cfg.Cache.BadgerPath)
		if err != nil {
			slog.Warn("badger unavailable, search caching disabled", "path", cfg.Cache.BadgerPath, "error", err)
			return nil, func() {}
		}
		slog.Info("search cache enabled", "backend", "badger", "path", cfg.Cache.BadgerPath, "ttl", cfg.Cache.TTL)
		return cache.New(backend, cfg.Cache.TTL), func() { backend.Close() }
	default:
		slog.Info("search caching disabled")
		return nil, func() {}
	}
}
