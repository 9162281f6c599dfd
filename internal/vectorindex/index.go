// Package vectorindex adapts the embedded vecgo engine to the partitioned
// similarity-search surface the retrieval pipeline consumes. Namespaces are
// stored as a metadata field and enforced with a pre-filter, so one index
// holds every partition.
package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/vecgo"
	"github.com/hupe1980/vecgo/metadata"
	"github.com/rs/zerolog/log"

	"ragchatgo/internal/models"
)

const deleteBatchSize = 1000

// Chunk is one embeddable unit of a source document.
type Chunk struct {
	Text   string
	Vector []float32
}

// Index is a process-wide singleton wrapping a cosine flat index. The
// registry tracks which ids live in which partition; vecgo itself has no
// partition listing.
type Index struct {
	db  *vecgo.Vecgo[string]
	dim int

	mu       sync.RWMutex
	registry map[string]map[uint64]string // encoded namespace -> id -> source
}

// New builds an empty index for vectors of the given dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension: %d", dimension)
	}
	db, err := vecgo.Flat[string](dimension).Cosine().Build()
	if err != nil {
		return nil, fmt.Errorf("build vector index: %w", err)
	}
	return &Index{
		db:       db,
		dim:      dimension,
		registry: make(map[string]map[uint64]string),
	}, nil
}

// Add inserts a source document's chunks under the encoded namespace key.
func (ix *Index) Add(ctx context.Context, ns, source string, chunks []Chunk) error {
	for _, chunk := range chunks {
		if len(chunk.Vector) != ix.dim {
			return fmt.Errorf("chunk vector dimension %d, index wants %d", len(chunk.Vector), ix.dim)
		}
		id, err := ix.db.Insert(ctx, vecgo.VectorWithData[string]{
			Vector: chunk.Vector,
			Data:   chunk.Text,
			Metadata: metadata.Metadata{
				"namespace": metadata.String(ns),
				"source":    metadata.String(source),
			},
		})
		if err != nil {
			return fmt.Errorf("index chunk of %s: %w", source, err)
		}
		ix.mu.Lock()
		if ix.registry[ns] == nil {
			ix.registry[ns] = make(map[uint64]string)
		}
		ix.registry[ns][id] = source
		ix.mu.Unlock()
	}
	return nil
}

// Search runs a namespace-scoped similarity search: fetchK candidates are
// pulled, the best k survive. Results are ordered by descending relevance
// score (1 - cosine distance). Thresholding is the caller's policy.
func (ix *Index) Search(ctx context.Context, ns string, vector []float32, k, fetchK int) ([]models.Passage, error) {
	if fetchK < k {
		fetchK = k
	}
	filters := metadata.NewFilterSet(metadata.Filter{
		Key:      "namespace",
		Operator: metadata.OpEqual,
		Value:    metadata.String(ns),
	})
	ef := fetchK
	if ef < 50 {
		ef = 50
	}
	results, err := ix.db.HybridSearch(ctx, vector, fetchK, func(o *vecgo.HybridSearchOptions) {
		o.EF = ef
		o.MetadataFilters = filters
		o.PreFilter = true
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	passages := make([]models.Passage, 0, len(results))
	for _, res := range results {
		source := ""
		if v, ok := res.Metadata["source"]; ok {
			source = v.StringValue()
		}
		passages = append(passages, models.Passage{
			Text:   res.Data,
			Source: source,
			Score:  1 - float64(res.Distance),
		})
	}
	sort.SliceStable(passages, func(i, j int) bool { return passages[i].Score > passages[j].Score })
	if len(passages) > k {
		passages = passages[:k]
	}
	return passages, nil
}

// ListNamespaces returns the encoded partition keys currently holding vectors.
func (ix *Index) ListNamespaces() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	keys := make([]string, 0, len(ix.registry))
	for ns, ids := range ix.registry {
		if len(ids) > 0 {
			keys = append(keys, ns)
		}
	}
	return keys
}

// DeleteBySource removes every vector of the namespace whose source metadata
// matches, in batches, and reports how many were deleted.
func (ix *Index) DeleteBySource(ctx context.Context, ns, source string) (int, error) {
	ix.mu.RLock()
	var matching []uint64
	for id, src := range ix.registry[ns] {
		if src == source {
			matching = append(matching, id)
		}
	}
	ix.mu.RUnlock()

	if len(matching) == 0 {
		return 0, nil
	}

	deleted := 0
	for start := 0; start < len(matching); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(matching) {
			end = len(matching)
		}
		for _, id := range matching[start:end] {
			if err := ix.db.Delete(ctx, id); err != nil {
				return deleted, fmt.Errorf("delete vector %d: %w", id, err)
			}
			ix.mu.Lock()
			delete(ix.registry[ns], id)
			ix.mu.Unlock()
			deleted++
		}
		log.Info().Str("namespace", ns).Str("source", source).Int("deleted", deleted).Msg("vector deletion progressing")
	}
	return deleted, nil
}

// Dimension returns the vector dimension the index was built with.
func (ix *Index) Dimension() int {
	return ix.dim
}

// Close releases the underlying engine.
func (ix *Index) Close() error {
	return ix.db.Close()
}
