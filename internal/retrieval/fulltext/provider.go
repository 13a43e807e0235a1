// Package fulltext serves the "fulltext" retrieval method from a bleve
// index over document names and bodies.
package fulltext

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
)

const (
	MethodName = "fulltext"

	fingerprintKey = "fusion.fingerprint"
	nameBoost      = 2.0
	indexBatchSize = 500
)

var ErrNotInitialized = fmt.Errorf("fulltext search: %w", apperrors.ErrNotInitialized)

type indexedDoc struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type Provider struct {
	mu      sync.RWMutex
	index   bleve.Index
	catalog *corpus.Catalog
	path    string
	logger  *slog.Logger
}

// New returns an unloaded provider. An empty path keeps the index in
// memory.
func New(path string) *Provider {
	return &Provider{
		path:   path,
		logger: slog.Default().With("component", "fulltext"),
	}
}

func (p *Provider) Name() string { return MethodName }

func newMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName
	text.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("name", text)
	doc.AddFieldMappingsAt("content", text)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = keyword.Name
	return m
}

func fingerprint(docs []corpus.Document) string {
	h := sha256.New()
	for _, d := range docs {
		fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s\x00", d.Path, d.Name, len(d.OriginalContent), d.OriginalContent)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Load opens the on-disk index and reuses it when it was built from the
// same documents; otherwise the index is recreated and filled.
func (p *Provider) Load(ctx context.Context, docs []corpus.Document) error {
	want := fingerprint(docs)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index != nil {
		p.index.Close()
		p.index = nil
	}

	if p.path != "" {
		idx, err := bleve.Open(p.path)
		if err == nil {
			got, gerr := idx.GetInternal([]byte(fingerprintKey))
			if gerr == nil && string(got) == want {
				p.index = idx
				p.catalog = corpus.NewCatalog(docs)
				p.logger.Info("fulltext index restored", "path", p.path, "documents", len(docs))
				return nil
			}
			idx.Close()
			p.logger.Info("fulltext index stale, rebuilding", "path", p.path)
		} else if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			p.logger.Warn("fulltext index unreadable, rebuilding", "path", p.path, "error", err)
		}
		if err := os.RemoveAll(p.path); err != nil {
			return fmt.Errorf("clearing fulltext index: %w", err)
		}
	}

	idx, err := p.create()
	if err != nil {
		return err
	}
	if err := fill(ctx, idx, docs); err != nil {
		idx.Close()
		return err
	}
	if err := idx.SetInternal([]byte(fingerprintKey), []byte(want)); err != nil {
		idx.Close()
		return fmt.Errorf("recording fulltext fingerprint: %w", err)
	}
	p.index = idx
	p.catalog = corpus.NewCatalog(docs)
	p.logger.Info("fulltext index built", "documents", len(docs))
	return nil
}

func (p *Provider) create() (bleve.Index, error) {
	var (
		idx bleve.Index
		err error
	)
	if p.path == "" {
		idx, err = bleve.NewMemOnly(newMapping())
	} else {
		idx, err = bleve.New(p.path, newMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("creating fulltext index: %w", err)
	}
	return idx, nil
}

func fill(ctx context.Context, idx bleve.Index, docs []corpus.Document) error {
	batch := idx.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.Path, indexedDoc{Name: d.Name, Content: d.OriginalContent}); err != nil {
			return fmt.Errorf("indexing %s: %w", d.Path, err)
		}
		if batch.Size() >= indexBatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := idx.Batch(batch); err != nil {
				return fmt.Errorf("writing fulltext batch: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("writing fulltext batch: %w", err)
		}
	}
	return nil
}

func (p *Provider) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index != nil
}

// Search runs a match query over name and content, name matches boosted.
// Scores are rescaled so the best hit is 100.
func (p *Provider) Search(ctx context.Context, query string, k int) ([]retrieval.Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.index == nil {
		return nil, ErrNotInitialized
	}
	if strings.TrimSpace(query) == "" || k <= 0 {
		return []retrieval.Result{}, nil
	}

	name := bleve.NewMatchQuery(query)
	name.SetField("name")
	name.SetBoost(nameBoost)
	content := bleve.NewMatchQuery(query)
	content.SetField("content")

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(name, content))
	req.Size = k
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: fulltext: %w", apperrors.ErrProviderFailed, err)
	}
	res, err := p.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: fulltext: %w", apperrors.ErrProviderFailed, err)
	}

	results := make([]retrieval.Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc, ok := p.catalog.Get(hit.ID)
		if !ok {
			continue
		}
		r := retrieval.Render(doc, query, 0)
		r.Score = hit.Score
		results = append(results, r)
	}
	return retrieval.ScaleToPercent(results), nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index == nil {
		return nil
	}
	err := p.index.Close()
	p.index = nil
	return err
}
