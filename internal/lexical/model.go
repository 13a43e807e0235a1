// Package lexical implements the BM25-style scorer. A corpus snapshot is
// turned into L2-normalized term-weight vectors and queried with a flat
// inner-product top-k search.
package lexical

import (
	"math"
	"strings"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Params are the saturation constants of the weighting formula.
type Params struct {
	K1 float64 `json:"k1"`
	B  float64 `json:"b"`
}

func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// Entry is one document as seen by the scorer. Text is processed content,
// already normalized, and is split on whitespace only.
type Entry struct {
	ID   string
	Text string
}

// term is a (vocabulary id, weight) pair of a sparse vector.
type term struct {
	ID     int     `json:"i"`
	Weight float64 `json:"w"`
}

// vector is a sparse vector ordered by term id.
type vector []term

// model holds the corpus-global statistics. It is immutable once built.
type model struct {
	Params  Params         `json:"params"`
	Vocab   map[string]int `json:"vocab"`
	IDF     []float64      `json:"idf"`
	DocFreq []int          `json:"df"`
	N       int            `json:"n"`
	AvgLen  float64        `json:"avg_len"`
}

// buildModel computes document frequencies, idf and the per-document
// weighted, normalized vectors. Term ids are assigned in first-seen order.
func buildModel(entries []Entry, params Params) (*model, []vector) {
	m := &model{
		Params: params,
		Vocab:  make(map[string]int),
		N:      len(entries),
	}

	termFreqs := make([]map[int]int, len(entries))
	lengths := make([]int, len(entries))
	totalLen := 0
	for i, e := range entries {
		tf := make(map[int]int)
		for _, tok := range strings.Fields(e.Text) {
			id, ok := m.Vocab[tok]
			if !ok {
				id = len(m.Vocab)
				m.Vocab[tok] = id
				m.DocFreq = append(m.DocFreq, 0)
			}
			if tf[id] == 0 {
				m.DocFreq[id]++
			}
			tf[id]++
			lengths[i]++
		}
		termFreqs[i] = tf
		totalLen += lengths[i]
	}
	if m.N > 0 {
		m.AvgLen = float64(totalLen) / float64(m.N)
	}

	m.IDF = make([]float64, len(m.DocFreq))
	for id, df := range m.DocFreq {
		m.IDF[id] = computeIDF(m.N, df)
	}

	vectors := make([]vector, len(entries))
	for i, tf := range termFreqs {
		v := make(vector, 0, len(tf))
		for id, f := range tf {
			w := m.IDF[id] * m.saturate(float64(f), float64(lengths[i]))
			v = append(v, term{ID: id, Weight: w})
		}
		vectors[i] = normalize(sortVector(v))
	}
	return m, vectors
}

// computeIDF is signed: terms in more than half the corpus go negative.
func computeIDF(n, df int) float64 {
	return math.Log((float64(n) - float64(df) + 0.5) / (float64(df) + 0.5))
}

// saturate applies term-frequency saturation with document-length
// normalization. A corpus of empty documents has no length signal.
func (m *model) saturate(tf, docLen float64) float64 {
	k1, b := m.Params.K1, m.Params.B
	lengthRatio := 0.0
	if m.AvgLen > 0 {
		lengthRatio = docLen / m.AvgLen
	}
	return tf * (k1 + 1) / (tf + k1*(1-b+b*lengthRatio))
}

// queryVector weights the query like a zero-length document: plain k1
// saturation without the length term. Out-of-vocabulary tokens are dropped.
func (m *model) queryVector(normalized string) vector {
	tf := make(map[int]int)
	for _, tok := range strings.Fields(normalized) {
		if id, ok := m.Vocab[tok]; ok {
			tf[id]++
		}
	}
	if len(tf) == 0 {
		return nil
	}
	k1 := m.Params.K1
	v := make(vector, 0, len(tf))
	for id, f := range tf {
		fq := float64(f)
		v = append(v, term{ID: id, Weight: m.IDF[id] * fq * (k1 + 1) / (fq + k1)})
	}
	return normalize(sortVector(v))
}
