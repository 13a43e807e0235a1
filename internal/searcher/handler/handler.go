// Package handler exposes search, autocomplete and cache administration
// over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/searcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/metrics"
)

type Searcher interface {
	Search(ctx context.Context, req searcher.Request) (*searcher.Response, error)
}

type Suggester interface {
	Suggest(ctx context.Context, prefix string) ([]string, error)
	RecordClick(ctx context.Context, phrase string) (bool, error)
}

type Handler struct {
	searcher  Searcher
	suggester Suggester
	cache     *cache.ResultCache
	tracker   analytics.Tracker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds a Handler. queryCache, tracker and m may be nil.
func New(s Searcher, suggester Suggester, queryCache *cache.ResultCache, tracker analytics.Tracker, m *metrics.Metrics) *Handler {
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	return &Handler{
		searcher:  s,
		suggester: suggester,
		cache:     queryCache,
		tracker:   tracker,
		metrics:   m,
		logger:    logger.WithComponent("search-handler"),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/autocomplete", h.Autocomplete)
	mux.HandleFunc("POST /api/v1/autocomplete/click", h.Click)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()

	req := searcher.Request{
		Query:       params.Get("q"),
		Aggregation: params.Get("aggregationMethod"),
	}
	var err error
	for _, f := range []struct {
		name string
		dst  *[]string
	}{
		{"syntacticMethods", &req.Syntactic},
		{"semanticMethods", &req.Semantic},
		{"options", &req.Options},
	} {
		if *f.dst, err = parseList(params.Get(f.name)); err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %v", f.name, err))
			return
		}
	}

	resp, err := h.searcher.Search(ctx, req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(ctx).Error("search failed", "query", req.Query, "error", err)
		}
		h.writeError(w, status, errorMessage(err))
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("q")
	if prefix == "" || h.suggester == nil {
		h.writeJSON(w, http.StatusOK, []string{})
		return
	}
	suggestions, err := h.suggester.Suggest(r.Context(), prefix)
	if err != nil {
		logger.FromContext(r.Context()).Error("autocomplete failed", "prefix", prefix, "error", err)
		h.writeError(w, http.StatusInternalServerError, "autocomplete failed")
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	if h.metrics != nil {
		h.metrics.SuggestionsTotal.Inc()
	}
	h.writeJSON(w, http.StatusOK, suggestions)
}

type clickRequest struct {
	Phrase string `json:"phrase"`
}

func (h *Handler) Click(w http.ResponseWriter, r *http.Request) {
	var body clickRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Phrase) == "" {
		h.writeError(w, http.StatusBadRequest, "No phrase provided")
		return
	}
	if h.suggester == nil {
		h.writeError(w, http.StatusServiceUnavailable, "autocomplete is disabled")
		return
	}

	matched, err := h.suggester.RecordClick(r.Context(), body.Phrase)
	if err != nil {
		logger.FromContext(r.Context()).Error("click update failed", "phrase", body.Phrase, "error", err)
		h.writeError(w, http.StatusInternalServerError, "click update failed")
		return
	}
	h.tracker.TrackClick(analytics.ClickEvent{Phrase: body.Phrase, Matched: matched})
	if h.metrics != nil {
		h.metrics.SuggestionClicks.WithLabelValues(strconv.FormatBool(matched)).Inc()
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Click count updated",
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// parseList accepts a JSON array (["bm25","openai"]) or a comma-separated
// list. Blank entries are dropped.
func parseList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var items []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, err
		}
	} else {
		items = strings.Split(raw, ",")
	}
	out := items[:0]
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out, nil
}

// errorMessage keeps client errors descriptive and hides server internals.
func errorMessage(err error) string {
	if apperrors.IsClientError(err) {
		if errors.Is(err, apperrors.ErrEmptyQuery) {
			return "No query provided"
		}
		return err.Error()
	}
	return "search failed"
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
