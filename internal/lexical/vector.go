package lexical

import (
	"math"
	"sort"
)

func sortVector(v vector) vector {
	sort.Slice(v, func(i, j int) bool { return v[i].ID < v[j].ID })
	return v
}

// normalize scales v to unit L2 length in place. A zero vector is returned
// unchanged.
func normalize(v vector) vector {
	var sum float64
	for _, t := range v {
		sum += t.Weight * t.Weight
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i].Weight /= norm
	}
	return v
}

func (v vector) isZero() bool {
	for _, t := range v {
		if t.Weight != 0 {
			return false
		}
	}
	return true
}

// dot is the inner product of two id-ordered sparse vectors.
func dot(a, b vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].ID == b[j].ID:
			sum += a[i].Weight * b[j].Weight
			i++
			j++
		case a[i].ID < b[j].ID:
			i++
		default:
			j++
		}
	}
	return sum
}
