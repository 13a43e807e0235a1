package autocomplete

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/sqlite"
)

func docs() []corpus.Document {
	return []corpus.Document{
		corpus.NewDocument("go.txt", "Go Concurrency", "Goroutines and channels make concurrent programs simple. Channels carry values."),
		corpus.NewDocument("rust.txt", "Rust Ownership", "Ownership and borrowing keep rust programs memory safe."),
		corpus.NewDocument("links.txt", "Links", "Visit https://example.com for 2024 updates about goroutines."),
	}
}

func phraseSet(cands []Candidate) map[string]Candidate {
	m := make(map[string]Candidate, len(cands))
	for _, c := range cands {
		m[c.Phrase] = c
	}
	return m
}

// --- Build ---

func TestBuildExtractsPhrasesAndNames(t *testing.T) {
	set := phraseSet(Build(docs(), DefaultBuildConfig()))

	assert.Contains(t, set, "goroutines")
	assert.Contains(t, set, "goroutines and channels")
	assert.Contains(t, set, "ownership and borrowing keep rust")
	assert.NotContains(t, set, "ownership and borrowing keep rust programs", "longer than five words")
	assert.NotContains(t, set, "2024")
	assert.NotContains(t, set, "https")

	name := set["go concurrency"]
	assert.True(t, name.IsDocName)
	assert.Equal(t, 1.0, name.Salience)
}

func TestBuildPhraseSalienceIsMaxOfWords(t *testing.T) {
	set := phraseSet(Build(docs(), DefaultBuildConfig()))

	phrase := set["channels carry values"]
	for _, w := range []string{"channels", "carry", "values"} {
		assert.GreaterOrEqual(t, phrase.Salience, set[w].Salience, w)
	}
}

func TestBuildMergesWithMaxAndOr(t *testing.T) {
	docs := []corpus.Document{
		corpus.NewDocument("a", "alpha", "alpha beta"),
		corpus.NewDocument("b", "b", "alpha alpha alpha gamma"),
	}

	set := phraseSet(Build(docs, DefaultBuildConfig()))

	alpha := set["alpha"]
	assert.True(t, alpha.IsDocName)
	assert.Equal(t, 1.0, alpha.Salience)
}

func TestBuildThresholds(t *testing.T) {
	cfg := DefaultBuildConfig()
	cfg.WordThreshold = 2
	cfg.PhraseThreshold = 2

	cands := Build(docs(), cfg)

	for _, c := range cands {
		assert.True(t, c.IsDocName, c.Phrase)
	}
	assert.NotEmpty(t, cands)
}

// --- Ranking ---

func TestScoreGuardsZeroClicks(t *testing.T) {
	w := DefaultWeights()

	got := w.Score(Item{Phrase: "x", Salience: 0.5, Clicks: 3}, 0)

	assert.InDelta(t, 0.15, got, 1e-12)
}

func TestRankOrdersByScoreThenLength(t *testing.T) {
	items := []Item{
		{Phrase: "go routines", Salience: 0.5},
		{Phrase: "go", Salience: 0.5},
		{Phrase: "go concurrency", Salience: 0.1, IsDocName: true},
		{Phrase: "gopher", Salience: 0.2, Clicks: 4},
	}

	ranked := DefaultWeights().Rank(items, 4, 3)

	require.Len(t, ranked, 3)
	assert.Equal(t, "go concurrency", ranked[0].Phrase)
	assert.Equal(t, "gopher", ranked[1].Phrase)
	assert.Equal(t, "go", ranked[2].Phrase)
}

// --- Service ---

func newService(t *testing.T, store Store) *Service {
	t.Helper()
	svc := NewService(store, DefaultWeights(), DefaultBuildConfig(), 10)
	_, err := svc.Populate(context.Background(), docs())
	require.NoError(t, err)
	return svc
}

func testStores(t *testing.T) map[string]Store {
	client, err := sqlite.Open(filepath.Join(t.TempDir(), "ac.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	sq, err := NewSQLiteStore(context.Background(), client)
	require.NoError(t, err)
	stores := map[string]Store{"memory": NewMemoryStore(), "sqlite": sq}
	if os.Getenv("FS_TEST_POSTGRES") != "" {
		stores["postgres"] = postgresStore(t)
	}
	return stores
}

// postgresStore connects with the FS_POSTGRES_* settings and starts from an
// empty table.
func postgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	client, err := postgres.New(config.Default().Postgres)
	require.NoError(t, err, "FS_TEST_POSTGRES is set but postgres is unreachable")
	t.Cleanup(func() { client.Close() })
	store, err := NewPostgresStore(context.Background(), client)
	require.NoError(t, err)
	require.NoError(t, store.Reset(context.Background()))
	return store
}

func TestServiceSuggest(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			svc := newService(t, store)
			ctx := context.Background()

			got, err := svc.Suggest(ctx, "GO")
			require.NoError(t, err)
			require.NotEmpty(t, got)
			assert.LessOrEqual(t, len(got), 10)
			assert.Equal(t, "go concurrency", got[0])
			for _, p := range got {
				assert.Regexp(t, `^go`, p)
			}

			empty, err := svc.Suggest(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, empty)

			none, err := svc.Suggest(ctx, "zzz")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestServiceSuggestEscapesLikeWildcards(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			svc := newService(t, store)

			got, err := svc.Suggest(context.Background(), "%")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestClickRaisesScore(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			svc := newService(t, store)
			ctx := context.Background()
			w := DefaultWeights()

			scoreOf := func(phrase string) float64 {
				items, maxClicks, err := store.Prefix(ctx, "own")
				require.NoError(t, err)
				for _, it := range items {
					if it.Phrase == phrase {
						return w.Score(it, maxClicks)
					}
				}
				t.Fatalf("phrase %q not stored", phrase)
				return 0
			}

			before := scoreOf("ownership and borrowing")
			found, err := svc.RecordClick(ctx, "  Ownership AND Borrowing ")
			require.NoError(t, err)
			require.True(t, found)
			assert.Greater(t, scoreOf("ownership and borrowing"), before)

			found, err = svc.RecordClick(ctx, "ownership and borrow")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestClickPromotesSuggestion(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, DefaultWeights(), DefaultBuildConfig(), 10)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []Candidate{
		{Phrase: "search engine", Salience: 0.5},
		{Phrase: "search index", Salience: 0.4},
	}))

	got, err := svc.Suggest(ctx, "search")
	require.NoError(t, err)
	require.Equal(t, []string{"search engine", "search index"}, got)

	_, err = svc.RecordClick(ctx, "search index")
	require.NoError(t, err)

	got, err = svc.Suggest(ctx, "search")
	require.NoError(t, err)
	assert.Equal(t, []string{"search index", "search engine"}, got)
}

func TestUpsertKeepsMaxSalienceAndClicks(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Upsert(ctx, []Candidate{{Phrase: "kafka", Salience: 0.4, IsDocName: true}}))
			_, err := store.IncrementClick(ctx, "kafka")
			require.NoError(t, err)
			require.NoError(t, store.Upsert(ctx, []Candidate{{Phrase: "kafka", Salience: 0.2}}))

			items, maxClicks, err := store.Prefix(ctx, "kaf")
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, 0.4, items[0].Salience)
			assert.True(t, items[0].IsDocName)
			assert.Equal(t, int64(1), items[0].Clicks)
			assert.Equal(t, int64(1), maxClicks)
		})
	}
}

// --- reindex ---

func TestReplaceSwapsItemSet(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Upsert(ctx, []Candidate{{Phrase: "stale phrase", Salience: 0.9}}))
			_, err := store.IncrementClick(ctx, "stale phrase")
			require.NoError(t, err)

			require.NoError(t, store.Replace(ctx, []Candidate{
				{Phrase: "fresh phrase", Salience: 0.2},
				{Phrase: "fresh phrase", Salience: 0.6, IsDocName: true},
			}))

			stale, _, err := store.Prefix(ctx, "stale")
			require.NoError(t, err)
			assert.Empty(t, stale)
			fresh, maxClicks, err := store.Prefix(ctx, "fresh")
			require.NoError(t, err)
			require.Len(t, fresh, 1)
			assert.InDelta(t, 0.6, fresh[0].Salience, 1e-9)
			assert.True(t, fresh[0].IsDocName)
			assert.Zero(t, maxClicks)
		})
	}
}

func TestPopulateFailureKeepsPreviousSuggestions(t *testing.T) {
	client, err := sqlite.Open(filepath.Join(t.TempDir(), "ac.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, client)
	require.NoError(t, err)
	svc := newService(t, store)
	before, err := svc.Suggest(ctx, "go")
	require.NoError(t, err)
	require.NotEmpty(t, before)

	_, err = client.DB.ExecContext(ctx, `
		CREATE TRIGGER reject_doc_name BEFORE INSERT ON autocomplete_items
		WHEN NEW.phrase = 'rust ownership'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	_, err = svc.Populate(ctx, docs())
	require.Error(t, err)

	after, err := svc.Suggest(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
