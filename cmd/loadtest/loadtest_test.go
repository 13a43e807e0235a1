package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	lat := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	assert.Equal(t, time.Duration(5), percentile(lat, 50))
	assert.Equal(t, time.Duration(9), percentile(lat, 90))
	assert.Equal(t, time.Duration(10), percentile(lat, 99))
	assert.Equal(t, time.Duration(1), percentile(lat, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestSummarize(t *testing.T) {
	s := NewStats()
	s.Record(Outcome{Latency: 10 * time.Millisecond, Status: 200, Results: 3, AIAnswered: true})
	s.Record(Outcome{Latency: 30 * time.Millisecond, Status: 200})
	s.Record(Outcome{Latency: 20 * time.Millisecond, Status: 502})
	s.Record(Outcome{Err: errors.New("connection refused")})

	sum := s.Summarize(time.Second)

	assert.EqualValues(t, 4, sum.Total)
	assert.EqualValues(t, 2, sum.Succeeded)
	assert.EqualValues(t, 2, sum.Failed)
	assert.EqualValues(t, 1, sum.ZeroResults)
	assert.EqualValues(t, 1, sum.AIAnswers)
	assert.Equal(t, 4.0, sum.RPS)
	assert.Equal(t, 10*time.Millisecond, sum.Min)
	assert.Equal(t, 20*time.Millisecond, sum.Avg)
	assert.Equal(t, 30*time.Millisecond, sum.Max)
	assert.Equal(t, map[int]int64{200: 2, 502: 1}, sum.Statuses)

	var buf bytes.Buffer
	sum.Write(&buf)
	assert.Contains(t, buf.String(), "Zero results:  1")
	assert.Contains(t, buf.String(), "502: 1")
}

func TestSearchParamsSkipsEmpty(t *testing.T) {
	v := searchParams("rank_fusion", "bm25,fulltext", "", "caching")

	assert.Equal(t, "aggregationMethod=rank_fusion&options=caching&syntacticMethods=bm25%2Cfulltext", v.Encode())
}

func TestReadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.txt")
	require.NoError(t, os.WriteFile(path, []byte("redis\n\n  vector search  \n"), 0o644))

	got, err := readQueries(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"redis", "vector search"}, got)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = readQueries(empty)
	assert.Error(t, err)
}

func TestRunAgainstServer(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("q") == "" || r.URL.Query().Get("syntacticMethods") != "bm25" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"search_results":[{"path":"a.md"}],"ai_response":null}`))
	}))
	defer srv.Close()

	cfg := Config{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Queries:     []string{"redis"},
		Params:      searchParams("", "bm25", "", ""),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	sum := run(ctx, cfg, srv.Client()).Summarize(100 * time.Millisecond)

	require.Positive(t, sum.Total)
	assert.Equal(t, sum.Total, sum.Succeeded)
	assert.Zero(t, sum.ZeroResults)
	assert.Zero(t, sum.AIAnswers)
}
