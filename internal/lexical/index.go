package lexical

import (
	"container/heap"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/textproc"
)

// Hit is one scored document. Pos is the document's position in the build
// input and breaks score ties.
type Hit struct {
	Pos   int
	ID    string
	Score float64
}

// Index is a built term-weight model plus the flat inner-product structure
// over its document vectors. It is never mutated after construction.
type Index struct {
	model       *model
	vectors     []vector
	ids         []string
	fingerprint string
}

// Build constructs an Index over entries in order. An empty corpus yields an
// index that answers every query with no hits.
func Build(entries []Entry, params Params) *Index {
	m, vectors := buildModel(entries, params)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return &Index{
		model:       m,
		vectors:     vectors,
		ids:         ids,
		fingerprint: Fingerprint(entries, params),
	}
}

// Fingerprint identifies a corpus snapshot and parameter set. A persisted
// index is reused only when its fingerprint matches.
func Fingerprint(entries []Entry, params Params) string {
	h := sha256.New()
	fmt.Fprintf(h, "k1=%g;b=%g;n=%d\n", params.K1, params.B, len(entries))
	for _, e := range entries {
		fmt.Fprintf(h, "%d:%s\x00%d:%s\x00", len(e.ID), e.ID, len(e.Text), e.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (ix *Index) Len() int { return len(ix.ids) }

func (ix *Index) VocabularySize() int { return len(ix.model.Vocab) }

func (ix *Index) Fingerprint() string { return ix.fingerprint }

// IDF returns the inverse document frequency of an already normalized term.
func (ix *Index) IDF(t string) (float64, bool) {
	id, ok := ix.model.Vocab[t]
	if !ok {
		return 0, false
	}
	return ix.model.IDF[id], true
}

// Search normalizes query and returns up to k documents with a positive inner
// product against the query vector, best first. Ties keep build order. A
// query sharing no vocabulary with the corpus returns an empty slice.
func (ix *Index) Search(query string, k int) []Hit {
	if k <= 0 {
		return []Hit{}
	}
	q := ix.model.queryVector(textproc.Normalize(query))
	if q == nil || q.isZero() {
		return []Hit{}
	}

	h := &hitHeap{}
	for pos, v := range ix.vectors {
		score := dot(q, v)
		if score <= 0 {
			continue
		}
		heap.Push(h, Hit{Pos: pos, ID: ix.ids[pos], Score: score})
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	hits := make([]Hit, h.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		hits[i] = heap.Pop(h).(Hit)
	}
	return hits
}

// hitHeap is a min-heap: the root is the weakest hit kept so far.
type hitHeap []Hit

func (h hitHeap) Len() int { return len(h) }

func (h hitHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Pos > h[j].Pos
}

func (h hitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x any) {
	*h = append(*h, x.(Hit))
}

func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
