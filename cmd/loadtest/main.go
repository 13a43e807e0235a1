// Command loadtest drives the search endpoint with a fixed query mix and
// reports throughput, latency percentiles and how many responses came back
// empty or with an AI answer.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

var defaultQueries = []string{
	"redis caching",
	"vector similarity search",
	"bm25 ranking",
	"reciprocal rank fusion",
	"circuit breaker",
	"approximate nearest neighbour",
	"inverted index",
	"query expansion",
	"document chunking",
	"embedding model",
	"full text search",
	"stemming and stop words",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Queries     []string
	// Params are sent with every request besides q.
	Params url.Values
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	aggregation := flag.String("aggregation", "linear", "aggregationMethod sent with each search")
	syntactic := flag.String("syntactic", "bm25", "comma-separated syntactic methods")
	semantic := flag.String("semantic", "", "comma-separated semantic methods")
	options := flag.String("options", "", "comma-separated request options (caching, ai_assist)")
	queryFile := flag.String("queries", "", "file with one query per line; built-in mix when empty")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		var err error
		if queries, err = readQueries(*queryFile); err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     queries,
		Params:      searchParams(*aggregation, *syntactic, *semantic, *options),
	}

	fmt.Println("=== Fusion Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Printf("Params:      %s\n", cfg.Params.Encode())
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	start := time.Now()
	stats := run(ctx, cfg, newClient(cfg.Concurrency))
	sum := stats.Summarize(time.Since(start))
	sum.Write(os.Stdout)

	if sum.Total == 0 {
		fmt.Println()
		fmt.Println("WARNING: no requests completed. Is the search service running?")
		os.Exit(1)
	}
}

func searchParams(aggregation, syntactic, semantic, options string) url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("aggregationMethod", aggregation)
	set("syntacticMethods", syntactic)
	set("semanticMethods", semantic)
	set("options", options)
	return v
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			out = append(out, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return out, nil
}

func newClient(concurrency int) *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// run issues searches from cfg.Concurrency workers until ctx ends. Worker i
// starts at query i so the mix is spread from the first request.
func run(ctx context.Context, cfg Config, client *http.Client) *Stats {
	stats := NewStats()
	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				q := cfg.Queries[next%len(cfg.Queries)]
				next++
				o := searchOnce(ctx, client, cfg, q)
				if ctx.Err() != nil {
					return
				}
				stats.Record(o)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

type searchResponse struct {
	Results    []json.RawMessage `json:"search_results"`
	AIResponse *string           `json:"ai_response"`
}

func searchOnce(ctx context.Context, client *http.Client, cfg Config, query string) Outcome {
	params := url.Values{}
	for k, v := range cfg.Params {
		params[k] = v
	}
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/api/v1/search?"+params.Encode(), nil)
	if err != nil {
		return Outcome{Err: err}
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Outcome{Latency: time.Since(start), Err: err}
	}
	defer resp.Body.Close()

	o := Outcome{Status: resp.StatusCode}
	if resp.StatusCode == http.StatusOK {
		var body searchResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			o.Err = fmt.Errorf("decoding response: %w", err)
		}
		o.Results = len(body.Results)
		o.AIAnswered = body.AIResponse != nil
	}
	o.Latency = time.Since(start)
	return o
}
