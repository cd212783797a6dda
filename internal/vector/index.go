// Package vector holds an immutable in-memory cosine-similarity index.
package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidK          = errors.New("k must be at least 1")
)

// Hit is one search result. Position is the index of the vector passed to Build.
type Hit struct {
	Position int
	Score    float64
}

// Index stores unit-length copies of its vectors. It is safe for concurrent
// searches and never changes after Build.
type Index struct {
	dim     int
	vectors [][]float64
}

// Build copies and L2-normalizes embeddings. Zero vectors stay zero and score 0
// against every query.
func Build(embeddings [][]float32) (*Index, error) {
	idx := &Index{vectors: make([][]float64, len(embeddings))}
	if len(embeddings) == 0 {
		return idx, nil
	}

	idx.dim = len(embeddings[0])
	if idx.dim == 0 {
		return nil, fmt.Errorf("%w: empty vector at position 0", ErrDimensionMismatch)
	}
	for i, e := range embeddings {
		if len(e) != idx.dim {
			return nil, fmt.Errorf("%w: position %d has %d, want %d", ErrDimensionMismatch, i, len(e), idx.dim)
		}
		idx.vectors[i] = normalize(e)
	}
	return idx, nil
}

func (x *Index) Len() int { return len(x.vectors) }

// Dimension is 0 for an empty index.
func (x *Index) Dimension() int { return x.dim }

// Search returns the min(k, Len()) most similar vectors by cosine similarity,
// ordered by descending score and then ascending position.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if len(x.vectors) == 0 {
		return []Hit{}, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), x.dim)
	}

	q := normalize(query)
	hits := make([]Hit, len(x.vectors))
	for i, v := range x.vectors {
		var dot float64
		for j := range v {
			dot += v[j] * q[j]
		}
		hits[i] = Hit{Position: i, Score: clampScore(dot)}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Position < hits[b].Position
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for i, f := range v {
		out[i] = float64(f)
		norm += out[i] * out[i]
	}
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		for i := range out {
			out[i] = 0
		}
		return out
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] /= norm
	}
	return out
}

// clampScore absorbs rounding that would push a cosine just outside [-1, 1].
func clampScore(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
