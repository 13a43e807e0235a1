// Package fusion merges ranked result lists from several retrieval methods
// into one ranking. Three strategies are available: linear combination,
// reciprocal rank fusion and cascade.
package fusion

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
)

type Strategy string

const (
	Linear     Strategy = "linear"
	RankFusion Strategy = "rank_fusion"
	Cascade    Strategy = "cascade"
	// Single passes the first method's list through unchanged.
	Single Strategy = "single"
)

const (
	DefaultRRFK             = 60.0
	DefaultCascadeThreshold = 0.65
	DefaultCascadeFallback  = 5
)

// ErrUnknownStrategy is returned for an unrecognized strategy name.
var ErrUnknownStrategy = apperrors.ErrUnknownStrategy

// ParseStrategy validates a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(name); s {
	case Linear, RankFusion, Cascade, Single:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Config holds the per-method weight table and strategy constants.
type Config struct {
	Weights          map[string]float64
	RRFK             float64
	CascadeThreshold float64
	CascadeFallback  int
}

func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			"fulltext": 0.3,
			"bm25":     0.4,
			"openai":   0.6,
			"tfidf":    0.15,
			"st_1":     0.2,
			"st_2":     0.1,
			"st_3":     0.1,
		},
		RRFK:             DefaultRRFK,
		CascadeThreshold: DefaultCascadeThreshold,
		CascadeFallback:  DefaultCascadeFallback,
	}
}

// weight returns the configured weight for method, or an equal share of the
// methods in this request when the table has no entry.
func (c Config) weight(method string, methods int) float64 {
	if w, ok := c.Weights[method]; ok {
		return w
	}
	if methods == 0 {
		return 0
	}
	return 1.0 / float64(methods)
}

// MethodResults is one method's ranked list, best first.
type MethodResults struct {
	Method  string
	Results []retrieval.Result
}

// Contribution explains how one method added to a document's score.
type Contribution struct {
	Rank          int     `json:"rank"`
	PositionScore float64 `json:"position_score,omitempty"`
	Relevance     float64 `json:"relevance,omitempty"`
	Weight        float64 `json:"weight"`
	Contribution  float64 `json:"final_contribution"`
}

// Attempt records one cascade step.
type Attempt struct {
	Method       string  `json:"method"`
	ResultsFound int     `json:"results_found"`
	MaxScore     float64 `json:"max_score"`
}

// Output is a fused result. The embedded Score holds the combined score on
// a 0 to 100 scale.
type Output struct {
	retrieval.Result
	Breakdown     map[string]Contribution `json:"score_breakdown,omitempty"`
	MethodFound   string                  `json:"method_found,omitempty"`
	WeightedScore float64                 `json:"weighted_score,omitempty"`
	Fallback      bool                    `json:"fallback,omitempty"`
	Attempts      []Attempt               `json:"method_attempts,omitempty"`
}

// Fuse combines lists with the given strategy. Lists are in caller order,
// which only cascade depends on. No lists yields an empty, non-nil slice.
func Fuse(strategy Strategy, lists []MethodResults, cfg Config) ([]Output, error) {
	switch strategy {
	case Linear:
		return LinearCombination(lists, cfg), nil
	case RankFusion:
		return ReciprocalRankFusion(lists, cfg), nil
	case Cascade:
		return CascadeSearch(lists, cfg), nil
	case Single:
		return passThrough(lists), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

func passThrough(lists []MethodResults) []Output {
	if len(lists) == 0 {
		return []Output{}
	}
	out := make([]Output, 0, len(lists[0].Results))
	for _, r := range lists[0].Results {
		r.Score = retrieval.ClampPercent(r.Score)
		out = append(out, Output{Result: r, MethodFound: lists[0].Method})
	}
	return out
}
