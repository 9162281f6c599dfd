package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic feature-hashing embedder. It exists so the
// service (and its tests) can run without external embedding credentials;
// relevance quality is naturally far below a learned model.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dim: dimension}
}

// Embed hashes unigrams and bigrams into dim buckets and L2-normalizes the
// result, so cosine scores stay in a sane range.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		bump(vec, tok)
		if i+1 < len(tokens) {
			bump(vec, tok+" "+tokens[i+1])
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (e *HashEmbedder) Dimension() int {
	return e.dim
}

func bump(vec []float32, token string) {
	h := fnv.New64a()
	h.Write([]byte(token))
	sum := h.Sum64()
	idx := sum % uint64(len(vec))
	// alternate sign off one hash bit to decorrelate buckets
	if sum&(1<<63) != 0 {
		vec[idx] -= 1
	} else {
		vec[idx] += 1
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
