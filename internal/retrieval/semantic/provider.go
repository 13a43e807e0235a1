// Package semantic retrieves documents by embedding similarity. Documents
// are split into overlapping chunks, embedded and stored in an HNSW graph;
// a document scores as its best chunk.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/snippet"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
)

const MethodName = "openai"

// candidateFactor widens the chunk search so that enough distinct
// documents survive grouping.
const candidateFactor = 3

var ErrNotInitialized = fmt.Errorf("semantic search: %w", apperrors.ErrNotInitialized)

type Provider struct {
	embedder  *guardedEmbedder
	params    IndexParams
	indexPath string
	index     atomic.Pointer[Index]
	catalog   atomic.Pointer[corpus.Catalog]
	logger    *slog.Logger
}

func ParamsFromConfig(cfg config.SemanticConfig) IndexParams {
	return IndexParams{
		Model:        cfg.Model,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		M:            cfg.M,
		EfSearch:     cfg.EfSearch,
		BatchSize:    cfg.BatchSize,
		Workers:      cfg.Workers,
	}
}

// New wraps embedder with a query-vector cache. indexPath may be empty to
// keep the graph in memory only.
func New(embedder embeddings.Embedder, params IndexParams, indexPath string, opts EmbedderOptions) *Provider {
	return &Provider{
		embedder:  newGuardedEmbedder(embedder, opts),
		params:    params,
		indexPath: indexPath,
		logger:    slog.Default().With("component", "semantic"),
	}
}

func (p *Provider) Name() string { return MethodName }

// Load restores the persisted graph when its fingerprint matches docs and
// otherwise embeds the corpus again.
func (p *Provider) Load(ctx context.Context, docs []corpus.Document) error {
	want := Fingerprint(docs, p.params)
	if p.indexPath != "" {
		ix, err := LoadIndex(p.indexPath, p.params)
		switch {
		case err != nil:
			p.logger.Info("semantic index unavailable, rebuilding", "path", p.indexPath, "error", err)
		case ix.Fingerprint() != want:
			p.logger.Info("semantic index stale, rebuilding", "path", p.indexPath)
		default:
			p.install(ix, docs)
			p.logger.Info("semantic index restored", "chunks", ix.Len())
			return nil
		}
	}

	start := time.Now()
	ix, err := BuildIndex(ctx, docs, p.embedder, p.params)
	if err != nil {
		return fmt.Errorf("building semantic index: %w", err)
	}
	p.install(ix, docs)
	p.logger.Info("semantic index built",
		"documents", len(docs),
		"chunks", ix.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if p.indexPath != "" && ix.Len() > 0 {
		if err := ix.Save(p.indexPath); err != nil {
			p.logger.Warn("failed to persist semantic index", "path", p.indexPath, "error", err)
		}
	}
	return nil
}

func (p *Provider) install(ix *Index, docs []corpus.Document) {
	p.catalog.Store(corpus.NewCatalog(docs))
	p.index.Store(ix)
}

func (p *Provider) Ready() bool {
	return p.index.Load() != nil
}

// Search embeds query, fetches 3k nearest chunks and groups them by
// document. Document score is the best chunk similarity on a 0 to 100
// scale; chunks keep their raw similarity, best first.
func (p *Provider) Search(ctx context.Context, query string, k int) ([]retrieval.Result, error) {
	ix := p.index.Load()
	if ix == nil {
		return nil, ErrNotInitialized
	}
	vec, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrProviderFailed, err)
	}
	matches := ix.nearest(vec, k*candidateFactor)
	catalog := p.catalog.Load()

	type group struct {
		best   float64
		chunks []retrieval.Chunk
	}
	var order []string
	groups := make(map[string]*group)
	for _, m := range matches {
		g, ok := groups[m.Path]
		if !ok {
			g = &group{best: m.Similarity}
			groups[m.Path] = g
			order = append(order, m.Path)
		}
		g.best = max(g.best, m.Similarity)
		g.chunks = append(g.chunks, retrieval.Chunk{Content: m.Content, Score: m.Similarity})
	}

	results := make([]retrieval.Result, 0, len(order))
	for _, path := range order {
		doc, ok := catalog.Get(path)
		if !ok {
			continue
		}
		g := groups[path]
		sort.SliceStable(g.chunks, func(i, j int) bool { return g.chunks[i].Score > g.chunks[j].Score })
		r := retrieval.Render(doc, query, g.best*100)
		r.ContentSnippet = snippet.Find(g.chunks[0].Content, query, snippet.DefaultLength)
		r.Chunks = g.chunks
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
