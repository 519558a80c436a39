package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/soldasur/advisor/internal/vector"
)

// DefaultHashingDim is the vector size of the hashing embedder.
const DefaultHashingDim = 256

// HashingEmbedder is a deterministic bag-of-words embedder using the
// feature-hashing trick. It captures lexical overlap only, which is enough
// for catalog lookups in offline setups, and requires no external service.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates a hashing embedder. A non-positive dimension
// falls back to DefaultHashingDim.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = DefaultHashingDim
	}
	return &HashingEmbedder{dim: dim}
}

// Embed hashes each token into a bucket with a hash-derived sign, then
// normalizes. The same text always produces the same vector.
func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	out := make([]float64, e.dim)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		bucket := int(sum % uint32(e.dim))
		sign := 1.0
		if sum&0x80000000 != 0 {
			sign = -1.0
		}
		out[bucket] += sign
	}
	return vector.Normalize(out), nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
