package lexical

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
)

// ErrNotInitialized is returned when the scorer is queried before an index
// has been built or restored.
var ErrNotInitialized = fmt.Errorf("lexical scorer: %w", apperrors.ErrNotInitialized)

// Scorer owns the active Index. Queries read the current pointer; a rebuild
// constructs a new Index and swaps it in, so in-flight queries keep the
// snapshot they started with.
type Scorer struct {
	current   atomic.Pointer[Index]
	params    Params
	indexPath string
	logger    *slog.Logger
}

// NewScorer returns an empty scorer. indexPath may be empty to disable the
// on-disk snapshot.
func NewScorer(params Params, indexPath string) *Scorer {
	return &Scorer{
		params:    params,
		indexPath: indexPath,
		logger:    slog.Default().With("component", "lexical"),
	}
}

// Init makes an index for entries available. A persisted snapshot with a
// matching fingerprint is reused; a missing, unreadable or stale snapshot
// triggers a full rebuild. Failing to persist the rebuilt index is logged
// and otherwise ignored.
func (s *Scorer) Init(entries []Entry) *Index {
	want := Fingerprint(entries, s.params)
	if s.indexPath != "" {
		ix, err := Load(s.indexPath)
		switch {
		case err != nil:
			s.logger.Info("lexical snapshot unavailable, rebuilding", "path", s.indexPath, "error", err)
		case ix.Fingerprint() != want:
			s.logger.Info("lexical snapshot stale, rebuilding", "path", s.indexPath)
		default:
			s.current.Store(ix)
			s.logger.Info("lexical index restored", "documents", ix.Len(), "terms", ix.VocabularySize())
			return ix
		}
	}
	return s.Rebuild(entries)
}

// Rebuild builds a fresh index from entries and swaps it in atomically.
func (s *Scorer) Rebuild(entries []Entry) *Index {
	start := time.Now()
	ix := Build(entries, s.params)
	s.current.Store(ix)
	s.logger.Info("lexical index built",
		"documents", ix.Len(),
		"terms", ix.VocabularySize(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if s.indexPath != "" {
		if err := ix.Save(s.indexPath); err != nil {
			s.logger.Warn("failed to persist lexical snapshot", "path", s.indexPath, "error", err)
		}
	}
	return ix
}

// Swap installs ix as the active index.
func (s *Scorer) Swap(ix *Index) {
	s.current.Store(ix)
}

// Index returns the active index, or nil before initialization.
func (s *Scorer) Index() *Index {
	return s.current.Load()
}

func (s *Scorer) Ready() bool {
	return s.current.Load() != nil
}

// Search runs query against the active index.
func (s *Scorer) Search(query string, k int) ([]Hit, error) {
	ix := s.current.Load()
	if ix == nil {
		return nil, ErrNotInitialized
	}
	return ix.Search(query, k), nil
}
