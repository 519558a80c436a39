// Package vector provides an in-memory vector index for catalog retrieval.
//
// The index stores L2-normalized embeddings and ranks by inner product,
// which equals cosine similarity for normalized vectors. It is built once
// at startup and is safe for concurrent reads.
package vector

import (
	"fmt"
	"math"
	"sort"
)

// Hit is one search result: the position of the stored vector, its cosine
// similarity with the query and its rank in the result order.
type Hit struct {
	Index int
	Score float64
	Rank  int
}

// Index is an immutable brute-force inner-product index.
type Index struct {
	dim     int
	vectors [][]float64
}

// NewIndex builds an index from the given vectors. All vectors must share
// one dimension; they are normalized defensively in case the embedder did
// not already do so.
func NewIndex(vectors [][]float64) (*Index, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to index")
	}
	dim := len(vectors[0])
	stored := make([][]float64, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		stored[i] = Normalize(v)
	}
	return &Index{dim: dim, vectors: stored}, nil
}

// Len returns the number of stored vectors.
func (idx *Index) Len() int { return len(idx.vectors) }

// Dim returns the vector dimension.
func (idx *Index) Dim() int { return idx.dim }

// Search returns the k nearest stored vectors to the query, best first.
// Ties are broken by insertion order so results are deterministic.
func (idx *Index) Search(query []float64, k int) ([]Hit, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("query has dimension %d, want %d", len(query), idx.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	q := Normalize(query)
	hits := make([]Hit, len(idx.vectors))
	for i, v := range idx.vectors {
		hits[i] = Hit{Index: i, Score: dot(q, v)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Index < hits[b].Index
	})
	if k > len(hits) {
		k = len(hits)
	}
	hits = hits[:k]
	for i := range hits {
		hits[i].Rank = i
	}
	return hits, nil
}

// Normalize returns v scaled to unit length. The zero vector is returned
// unchanged.
func Normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
