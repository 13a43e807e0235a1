package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats accumulates outcomes from every worker.
type Stats struct {
	total       atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	zeroResults atomic.Int64
	aiAnswers   atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	statuses  map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies: make([]time.Duration, 0, 1<<16),
		statuses:  make(map[int]int64),
	}
}

// Outcome is what one request produced. Status is zero when the request
// never got a response.
type Outcome struct {
	Latency    time.Duration
	Status     int
	Results    int
	AIAnswered bool
	Err        error
}

func (s *Stats) Record(o Outcome) {
	s.total.Add(1)
	if o.Err != nil || o.Status < 200 || o.Status >= 300 {
		s.failed.Add(1)
	} else {
		s.succeeded.Add(1)
		if o.Results == 0 {
			s.zeroResults.Add(1)
		}
		if o.AIAnswered {
			s.aiAnswers.Add(1)
		}
	}
	if o.Err != nil {
		return
	}

	s.mu.Lock()
	s.latencies = append(s.latencies, o.Latency)
	s.statuses[o.Status]++
	s.mu.Unlock()
}

// Summary is a point-in-time view of the collected stats.
type Summary struct {
	Total, Succeeded, Failed int64
	ZeroResults, AIAnswers   int64
	RPS                      float64
	Min, Avg, Max, StdDev    time.Duration
	P50, P90, P95, P99       time.Duration
	Statuses                 map[int]int64
}

func (s *Stats) Summarize(elapsed time.Duration) Summary {
	sum := Summary{
		Total:       s.total.Load(),
		Succeeded:   s.succeeded.Load(),
		Failed:      s.failed.Load(),
		ZeroResults: s.zeroResults.Load(),
		AIAnswers:   s.aiAnswers.Load(),
		Statuses:    make(map[int]int64),
	}
	if elapsed > 0 {
		sum.RPS = float64(sum.Total) / elapsed.Seconds()
	}

	s.mu.Lock()
	lat := append([]time.Duration(nil), s.latencies...)
	for code, n := range s.statuses {
		sum.Statuses[code] = n
	}
	s.mu.Unlock()

	if len(lat) == 0 {
		return sum
	}
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })

	var total time.Duration
	for _, l := range lat {
		total += l
	}
	sum.Avg = total / time.Duration(len(lat))
	var sq float64
	for _, l := range lat {
		d := float64(l - sum.Avg)
		sq += d * d
	}
	sum.StdDev = time.Duration(math.Sqrt(sq / float64(len(lat))))
	sum.Min, sum.Max = lat[0], lat[len(lat)-1]
	sum.P50 = percentile(lat, 50)
	sum.P90 = percentile(lat, 90)
	sum.P95 = percentile(lat, 95)
	sum.P99 = percentile(lat, 99)
	return sum
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func (sum Summary) Write(w io.Writer) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Requests:      %d\n", sum.Total)
	fmt.Fprintf(w, "Succeeded:     %d\n", sum.Succeeded)
	fmt.Fprintf(w, "Failed:        %d\n", sum.Failed)
	fmt.Fprintf(w, "Zero results:  %d\n", sum.ZeroResults)
	fmt.Fprintf(w, "AI answers:    %d\n", sum.AIAnswers)
	if sum.Total > 0 {
		fmt.Fprintf(w, "Error rate:    %.2f%%\n", float64(sum.Failed)/float64(sum.Total)*100)
		fmt.Fprintf(w, "Requests/sec:  %.2f\n", sum.RPS)
	}

	if sum.Max > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		for _, row := range []struct {
			label string
			d     time.Duration
		}{
			{"Min", sum.Min}, {"Avg", sum.Avg}, {"P50", sum.P50}, {"P90", sum.P90},
			{"P95", sum.P95}, {"P99", sum.P99}, {"Max", sum.Max}, {"StdDev", sum.StdDev},
		} {
			fmt.Fprintf(w, "%-7s %s\n", row.label+":", row.d)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := make([]int, 0, len(sum.Statuses))
	for code := range sum.Statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, sum.Statuses[code])
	}
}
