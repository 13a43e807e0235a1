// Package bm25 exposes the lexical scorer as the "bm25" retrieval method.
package bm25

import (
	"context"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/lexical"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
)

const MethodName = "bm25"

type Provider struct {
	scorer *lexical.Scorer
	active atomic.Pointer[snapshot]
}

// snapshot pairs an index with the catalog its hit IDs resolve against.
type snapshot struct {
	ix      *lexical.Index
	catalog *corpus.Catalog
}

func New(scorer *lexical.Scorer) *Provider {
	return &Provider{scorer: scorer}
}

func (p *Provider) Name() string { return MethodName }

// Load initializes the scorer for docs, reusing a persisted snapshot when it
// matches, and publishes the catalog used to render results.
func (p *Provider) Load(docs []corpus.Document) {
	catalog := corpus.NewCatalog(docs)
	ix := p.scorer.Init(corpus.LexicalEntries(docs))
	p.active.Store(&snapshot{ix: ix, catalog: catalog})
}

// Ready reports whether Load has completed.
func (p *Provider) Ready() bool {
	return p.active.Load() != nil
}

// Search scores query lexically. Inner products are reported on a 0 to 100
// scale.
func (p *Provider) Search(_ context.Context, query string, k int) ([]retrieval.Result, error) {
	snap := p.active.Load()
	if snap == nil {
		return nil, lexical.ErrNotInitialized
	}
	hits := snap.ix.Search(query, k)
	results := make([]retrieval.Result, 0, len(hits))
	for _, h := range hits {
		doc, ok := snap.catalog.Get(h.ID)
		if !ok {
			continue
		}
		results = append(results, retrieval.Render(doc, query, h.Score*100))
	}
	return results, nil
}
