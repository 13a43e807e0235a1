package fusion

// ReciprocalRankFusion scores each result as weight / (r + K) for 1-based
// rank r. Larger K flattens the advantage of top ranks.
func ReciprocalRankFusion(lists []MethodResults, cfg Config) []Output {
	k := cfg.RRFK
	if k <= 0 {
		k = DefaultRRFK
	}
	acc := newAccumulator()
	for _, ml := range lists {
		weight := cfg.weight(ml.Method, len(lists))
		for i, r := range ml.Results {
			rank := i + 1
			acc.add(ml.Method, r, Contribution{
				Rank:         rank,
				Weight:       weight,
				Contribution: weight / (float64(rank) + k),
			})
		}
	}
	return acc.ranked()
}
