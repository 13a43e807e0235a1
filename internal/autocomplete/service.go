package autocomplete

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/corpus"
)

const DefaultLimit = 10

type Service struct {
	store   Store
	weights Weights
	build   BuildConfig
	limit   int
	logger  *slog.Logger
}

func NewService(store Store, weights Weights, build BuildConfig, limit int) *Service {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Service{
		store:   store,
		weights: weights,
		build:   build,
		limit:   limit,
		logger:  slog.Default().With("component", "autocomplete"),
	}
}

// Populate replaces the stored suggestions with those extracted from docs.
// Click counts do not survive a reindex. A failed replace keeps the previous
// suggestions.
func (s *Service) Populate(ctx context.Context, docs []corpus.Document) (int, error) {
	cands := Build(docs, s.build)
	if err := s.store.Replace(ctx, cands); err != nil {
		return 0, fmt.Errorf("storing suggestions: %w", err)
	}
	s.logger.Info("autocomplete populated", "documents", len(docs), "items", len(cands))
	return len(cands), nil
}

// Suggest returns up to the configured number of phrases starting with
// prefix, best first. An empty prefix yields no suggestions.
func (s *Service) Suggest(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.ToLower(prefix)
	if strings.TrimSpace(prefix) == "" {
		return []string{}, nil
	}
	items, maxClicks, err := s.store.Prefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("loading suggestions: %w", err)
	}
	ranked := s.weights.Rank(items, maxClicks, s.limit)
	out := make([]string, len(ranked))
	for i, it := range ranked {
		out[i] = it.Phrase
	}
	return out, nil
}

// RecordClick counts one use of phrase. Matching is exact after lowercasing;
// an unknown phrase is not an error.
func (s *Service) RecordClick(ctx context.Context, phrase string) (bool, error) {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return false, nil
	}
	found, err := s.store.IncrementClick(ctx, phrase)
	if err != nil {
		return false, fmt.Errorf("recording click: %w", err)
	}
	return found, nil
}
