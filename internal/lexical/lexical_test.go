package lexical

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/textproc"
	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
)

func entries(docs ...[2]string) []Entry {
	out := make([]Entry, len(docs))
	for i, d := range docs {
		out[i] = Entry{ID: d[0], Text: textproc.Normalize(d[1])}
	}
	return out
}

func petsCorpus() []Entry {
	return entries(
		[2]string{"D1", "cats are great pets"},
		[2]string{"D2", "dogs are great companions"},
	)
}

func fruitCorpus() []Entry {
	return entries(
		[2]string{"a", "apple banana smoothie"},
		[2]string{"b", "apple apple cherry pie"},
		[2]string{"c", "grape melon salad"},
		[2]string{"d", "kiwi lemon tart"},
		[2]string{"e", "plum peach jam with apple"},
	)
}

// --- Build & Search ---

func TestSearchTiedDocumentsKeepInsertionOrder(t *testing.T) {
	ix := Build(petsCorpus(), DefaultParams())

	hits := ix.Search("great", 5)

	require.Len(t, hits, 2)
	assert.Equal(t, "D1", hits[0].ID)
	assert.Equal(t, "D2", hits[1].ID)
	assert.Greater(t, hits[0].Score, 0.0)
	assert.InDelta(t, hits[0].Score, hits[1].Score, 1e-12)
}

func TestIDFIsSignedForUbiquitousTerms(t *testing.T) {
	ix := Build(petsCorpus(), DefaultParams())

	idf, ok := ix.IDF("great")
	require.True(t, ok)
	assert.Less(t, idf, 0.0)

	idf, ok = ix.IDF("cat")
	require.True(t, ok)
	assert.InDelta(t, 0.0, idf, 1e-12)
}

func TestSearchNoVocabularyOverlapIsEmpty(t *testing.T) {
	ix := Build(petsCorpus(), DefaultParams())

	hits := ix.Search("zebra", 5)

	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestSearchRespectsK(t *testing.T) {
	ix := Build(fruitCorpus(), DefaultParams())

	all := ix.Search("apple", 10)
	top := ix.Search("apple", 1)

	assert.Len(t, all, 3)
	require.Len(t, top, 1)
	assert.Equal(t, all[0], top[0])
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
	}
	assert.Empty(t, ix.Search("apple", 0))
}

func TestScoresAreCosineBounded(t *testing.T) {
	ix := Build(fruitCorpus(), DefaultParams())

	for _, h := range ix.Search("apple cherry pie", 10) {
		assert.Greater(t, h.Score, 0.0)
		assert.LessOrEqual(t, h.Score, 1.0+1e-9)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	first := Build(fruitCorpus(), DefaultParams())
	second := Build(fruitCorpus(), DefaultParams())

	for _, q := range []string{"apple", "cherry pie", "peach jam apple", "melon"} {
		assert.Equal(t, first.Search(q, 5), second.Search(q, 5), q)
	}
	assert.Equal(t, first.Fingerprint(), second.Fingerprint())
}

func TestEmptyCorpus(t *testing.T) {
	ix := Build(nil, DefaultParams())

	assert.Equal(t, 0, ix.Len())
	assert.Empty(t, ix.Search("anything", 5))
}

// --- Scorer ---

func TestScorerNotInitialized(t *testing.T) {
	s := NewScorer(DefaultParams(), "")

	_, err := s.Search("great", 5)

	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, err, apperrors.ErrNotInitialized)
	assert.False(t, s.Ready())
}

func TestScorerRebuildSwapsIndex(t *testing.T) {
	s := NewScorer(DefaultParams(), "")
	s.Init(petsCorpus())
	old := s.Index()

	s.Rebuild(fruitCorpus())

	assert.NotSame(t, old, s.Index())
	hits, err := s.Search("great", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Len(t, old.Search("great", 5), 2)
}

// --- Snapshot ---

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.idx")
	ix := Build(fruitCorpus(), DefaultParams())
	require.NoError(t, ix.Save(path))

	loaded, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, ix.Fingerprint(), loaded.Fingerprint())
	assert.Equal(t, ix.Search("apple cherry", 5), loaded.Search("apple cherry", 5))
}

func TestLoadRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.idx")
	require.NoError(t, Build(fruitCorpus(), DefaultParams()).Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[HeaderSize+3] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Load(path)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestScorerInitRebuildsOnGarbageSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.idx")
	require.NoError(t, os.WriteFile(path, []byte("not an index"), 0o644))

	s := NewScorer(DefaultParams(), path)
	ix := s.Init(petsCorpus())

	require.True(t, s.Ready())
	assert.Equal(t, 2, ix.Len())
	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ix.Fingerprint(), reloaded.Fingerprint())
}

func TestScorerInitReusesMatchingSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.idx")
	NewScorer(DefaultParams(), path).Init(petsCorpus())
	info, err := os.Stat(path)
	require.NoError(t, err)

	s := NewScorer(DefaultParams(), path)
	s.Init(petsCorpus())

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())
	hits, err := s.Search("great", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestScorerInitRebuildsStaleSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.idx")
	NewScorer(DefaultParams(), path).Init(fruitCorpus())

	s := NewScorer(DefaultParams(), path)
	ix := s.Init(petsCorpus())

	assert.Equal(t, Fingerprint(petsCorpus(), DefaultParams()), ix.Fingerprint())
	assert.Equal(t, 2, ix.Len())
}
