package semantic

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/gofrs/flock"
	"github.com/panjf2000/ants/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/corpus"
)

const (
	graphFile = "graph.hnsw"
	metaFile  = "meta.gob"
)

// IndexParams controls chunking and the HNSW graph.
type IndexParams struct {
	Model        string
	ChunkSize    int
	ChunkOverlap int
	M            int
	EfSearch     int
	BatchSize    int
	Workers      int
}

// chunkRef ties a graph key back to the passage it embeds.
type chunkRef struct {
	Path    string
	Content string
}

type indexMeta struct {
	Fingerprint string
	Chunks      []chunkRef
}

// Index is an immutable HNSW graph over document chunks. Graph keys are
// positions in chunks.
type Index struct {
	graph       *hnsw.Graph[uint64]
	chunks      []chunkRef
	fingerprint string
}

// match is one retrieved chunk with its cosine similarity.
type match struct {
	chunkRef
	Similarity float64
}

func newGraph(p IndexParams) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	if p.M > 0 {
		g.M = p.M
	}
	if p.EfSearch > 0 {
		g.EfSearch = p.EfSearch
	}
	g.Ml = 0.25
	return g
}

// Fingerprint identifies the chunks an index would contain for docs under
// p and the embedding model that produced them.
func Fingerprint(docs []corpus.Document, p IndexParams) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d\n", p.Model, p.ChunkSize, p.ChunkOverlap)
	for _, d := range docs {
		fmt.Fprintf(h, "%s\x00%d\x00%s\x00", d.Path, len(d.OriginalContent), d.OriginalContent)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// splitChunks cuts every document's original text into overlapping
// passages with a recursive character splitter.
func splitChunks(docs []corpus.Document, p IndexParams) ([]chunkRef, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.ChunkSize),
		textsplitter.WithChunkOverlap(p.ChunkOverlap),
	)
	var chunks []chunkRef
	for _, d := range docs {
		parts, err := splitter.SplitText(d.OriginalContent)
		if err != nil {
			return nil, fmt.Errorf("splitting %s: %w", d.Path, err)
		}
		for _, part := range parts {
			chunks = append(chunks, chunkRef{Path: d.Path, Content: part})
		}
	}
	return chunks, nil
}

// BuildIndex chunks docs, embeds the chunks in batches on a worker pool and
// loads the vectors into a new graph.
func BuildIndex(ctx context.Context, docs []corpus.Document, embedder embeddings.Embedder, p IndexParams) (*Index, error) {
	chunks, err := splitChunks(docs, p)
	if err != nil {
		return nil, err
	}
	vectors, err := embedChunks(ctx, chunks, embedder, p)
	if err != nil {
		return nil, err
	}

	g := newGraph(p)
	nodes := make([]hnsw.Node[uint64], 0, len(vectors))
	for i, v := range vectors {
		nodes = append(nodes, hnsw.MakeNode(uint64(i), v))
	}
	if len(nodes) > 0 {
		g.Add(nodes...)
	}
	return &Index{graph: g, chunks: chunks, fingerprint: Fingerprint(docs, p)}, nil
}

func embedChunks(ctx context.Context, chunks []chunkRef, embedder embeddings.Embedder, p IndexParams) ([][]float32, error) {
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating embedding pool: %w", err)
	}
	defer pool.Release()
	return embedBatches(ctx, pool, chunks, embedder, batchSize)
}

type submitter interface {
	Submit(task func()) error
}

// embedBatches embeds chunks batchSize at a time on pool. It returns only
// after every submitted batch has finished.
func embedBatches(ctx context.Context, pool submitter, chunks []chunkRef, embedder embeddings.Embedder, batchSize int) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		wg.Add(1)
		offset := start
		submitErr := pool.Submit(func() {
			defer wg.Done()
			vecs, err := embedder.EmbedDocuments(ctx, texts)
			if err == nil && len(vecs) != len(texts) {
				err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			copy(vectors[offset:], vecs)
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submitting embedding batch: %w", submitErr)
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, fmt.Errorf("embedding chunks: %w", firstErr)
	}
	return vectors, nil
}

func (ix *Index) Len() int { return len(ix.chunks) }

func (ix *Index) Fingerprint() string { return ix.fingerprint }

// nearest returns up to n chunks closest to vec, most similar first.
func (ix *Index) nearest(vec []float32, n int) []match {
	if ix.graph.Len() == 0 || n <= 0 {
		return nil
	}
	nodes := ix.graph.Search(vec, n)
	out := make([]match, 0, len(nodes))
	for _, node := range nodes {
		if node.Key >= uint64(len(ix.chunks)) {
			continue
		}
		dist := ix.graph.Distance(vec, node.Value)
		out = append(out, match{chunkRef: ix.chunks[node.Key], Similarity: 1 - float64(dist)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out
}

// Save exports the graph and chunk metadata into dir, each through a
// temporary file and rename, under a directory lock.
func (ix *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating semantic index directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking semantic index: %w", err)
	}
	defer lock.Unlock()

	if err := writeAtomic(filepath.Join(dir, graphFile), func(f *os.File) error {
		return ix.graph.Export(f)
	}); err != nil {
		return fmt.Errorf("exporting graph: %w", err)
	}
	meta := indexMeta{Fingerprint: ix.fingerprint, Chunks: ix.chunks}
	if err := writeAtomic(filepath.Join(dir, metaFile), func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	}); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

func writeAtomic(path string, write func(f *os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// LoadIndex restores an index saved by Save.
func LoadIndex(dir string, p IndexParams) (*Index, error) {
	lock := flock.New(filepath.Join(dir, ".lock"))
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("locking semantic index: %w", err)
	}
	defer lock.Unlock()

	mf, err := os.Open(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, fmt.Errorf("opening metadata: %w", err)
	}
	defer mf.Close()
	var meta indexMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}

	gf, err := os.Open(filepath.Join(dir, graphFile))
	if err != nil {
		return nil, fmt.Errorf("opening graph: %w", err)
	}
	defer gf.Close()
	g := newGraph(p)
	if err := g.Import(bufio.NewReader(gf)); err != nil {
		return nil, fmt.Errorf("importing graph: %w", err)
	}
	if g.Len() != len(meta.Chunks) {
		return nil, fmt.Errorf("graph has %d nodes, metadata %d chunks", g.Len(), len(meta.Chunks))
	}
	return &Index{graph: g, chunks: meta.Chunks, fingerprint: meta.Fingerprint}, nil
}
