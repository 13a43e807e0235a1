package autocomplete

import (
	"context"
	"strings"
	"sync"
)

// Store persists suggestions keyed by phrase.
type Store interface {
	// Upsert inserts candidates. An existing phrase keeps the larger salience
	// and ORs the document-name flag; its click count is untouched.
	Upsert(ctx context.Context, cands []Candidate) error
	// Prefix returns every item starting with prefix and the largest click
	// count in the whole store.
	Prefix(ctx context.Context, prefix string) ([]Item, int64, error)
	// IncrementClick atomically adds one click to the exact phrase and
	// reports whether it exists.
	IncrementClick(ctx context.Context, phrase string) (bool, error)
	// Replace swaps the whole item set for cands in one step. On failure the
	// previous items are left as they were.
	Replace(ctx context.Context, cands []Candidate) error
	// Reset removes all items.
	Reset(ctx context.Context) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Item)}
}

func (m *MemoryStore) Upsert(_ context.Context, cands []Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mergeCandidates(m.items, cands)
	return nil
}

func (m *MemoryStore) Replace(_ context.Context, cands []Candidate) error {
	items := make(map[string]*Item, len(cands))
	mergeCandidates(items, cands)
	m.mu.Lock()
	m.items = items
	m.mu.Unlock()
	return nil
}

func mergeCandidates(items map[string]*Item, cands []Candidate) {
	for _, c := range cands {
		it, ok := items[c.Phrase]
		if !ok {
			items[c.Phrase] = &Item{Phrase: c.Phrase, Salience: c.Salience, IsDocName: c.IsDocName}
			continue
		}
		if c.Salience > it.Salience {
			it.Salience = c.Salience
		}
		it.IsDocName = it.IsDocName || c.IsDocName
	}
}

func (m *MemoryStore) Prefix(_ context.Context, prefix string) ([]Item, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var maxClicks int64
	var out []Item
	for phrase, it := range m.items {
		if it.Clicks > maxClicks {
			maxClicks = it.Clicks
		}
		if strings.HasPrefix(phrase, prefix) {
			out = append(out, *it)
		}
	}
	return out, maxClicks, nil
}

func (m *MemoryStore) IncrementClick(_ context.Context, phrase string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[phrase]
	if !ok {
		return false, nil
	}
	it.Clicks++
	return true, nil
}

func (m *MemoryStore) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*Item)
	return nil
}

// likePrefix escapes LIKE metacharacters in prefix and appends the wildcard.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
