// Command indexer loads the corpus directory into the document store and
// builds every index the search service reads: the lexical snapshot, the
// full-text index, the semantic vector index and the autocomplete items.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml] [-dir data/documents]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/app"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	dataDir := flag.String("dir", "", "corpus directory (overrides corpus.dataDir)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Corpus.DataDir = *dataDir
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	start := time.Now()

	lockPath := filepath.Join(filepath.Dir(cfg.SQLite.Path), "indexer.lock")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring indexer lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another indexer holds %s", lockPath)
	}
	defer lock.Unlock()

	components, err := app.Open(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer components.Close()

	slog.Info("loading corpus", "dir", cfg.Corpus.DataDir, "extensions", cfg.Corpus.Extensions)
	docs, err := components.ImportDir(ctx)
	if err != nil {
		return err
	}
	slog.Info("corpus stored", "documents", len(docs), "sqlite", cfg.SQLite.Path)

	if err := components.LoadProviders(ctx, docs); err != nil {
		return err
	}

	phrases, err := components.Autocomplete.Populate(ctx, docs)
	if err != nil {
		return fmt.Errorf("populating autocomplete: %w", err)
	}

	slog.Info("indexing complete",
		"documents", len(docs),
		"methods", components.Registry.Methods(""),
		"suggestions", phrases,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
