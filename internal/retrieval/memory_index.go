package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// ErrVectorDimensionMismatch indicates a dimension mismatch on insert.
var ErrVectorDimensionMismatch = errors.New("vector dimension mismatch")

// MemoryIndex is a brute-force in-memory VectorIndex for development and
// tests. Entries are kept in insertion order.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   []memoryEntry
	byChunk   map[string]int
}

type memoryEntry struct {
	match  SemanticMatch
	raw    []float32
	vector []float32 // unit length
}

var _ VectorIndex = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty index. The dimension is fixed by the first insert.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{byChunk: make(map[string]int)}
}

// LoadMemoryIndex copies up to limit stored embeddings from source into a
// new in-memory index.
func LoadMemoryIndex(ctx context.Context, source VectorIndex, limit int) (*MemoryIndex, error) {
	records, err := source.ListEmbeddings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("preload embeddings: %w", err)
	}

	idx := NewMemoryIndex()
	for i := range records {
		records[i].Match.Origin = ""
	}
	if err := idx.Insert(records...); err != nil {
		return nil, fmt.Errorf("preload embeddings: %w", err)
	}
	return idx, nil
}

// Insert adds or replaces chunks keyed by ChunkID.
func (x *MemoryIndex) Insert(records ...EmbeddingRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, r := range records {
		if len(r.Embedding) == 0 {
			continue
		}
		if x.dimension == 0 {
			x.dimension = len(r.Embedding)
		}
		if len(r.Embedding) != x.dimension {
			return fmt.Errorf("%w: expected %d, got %d for chunk %s",
				ErrVectorDimensionMismatch, x.dimension, len(r.Embedding), r.Match.ChunkID)
		}

		entry := memoryEntry{
			match:  r.Match,
			raw:    append([]float32(nil), r.Embedding...),
			vector: normalizeVector(r.Embedding),
		}
		if i, ok := x.byChunk[r.Match.ChunkID]; ok {
			x.entries[i] = entry
			continue
		}
		x.byChunk[r.Match.ChunkID] = len(x.entries)
		x.entries = append(x.entries, entry)
	}
	return nil
}

// Count returns the number of stored chunks.
func (x *MemoryIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Match scores every chunk against the query.
func (x *MemoryIndex) Match(_ context.Context, embedding []float32, threshold float64, count int) ([]SemanticMatch, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.dimension != 0 && len(embedding) != x.dimension {
		return nil, fmt.Errorf("%w: index has %d, query has %d",
			ErrVectorDimensionMismatch, x.dimension, len(embedding))
	}

	query := normalizeVector(embedding)
	matches := make([]SemanticMatch, 0)
	for _, e := range x.entries {
		sim := clampSimilarity(dot(query, e.vector))
		if sim < threshold {
			continue
		}
		m := e.match
		m.Similarity = sim
		m.Origin = OriginIndex
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if count > 0 && len(matches) > count {
		matches = matches[:count]
	}
	return matches, nil
}

// ListEmbeddings returns the first limit stored chunks with their vectors.
func (x *MemoryIndex) ListEmbeddings(_ context.Context, limit int) ([]EmbeddingRecord, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	n := len(x.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]EmbeddingRecord, n)
	for i := 0; i < n; i++ {
		m := x.entries[i].match
		m.Origin = OriginExactScan
		out[i] = EmbeddingRecord{Match: m, Embedding: x.entries[i].raw}
	}
	return out, nil
}

// ToursByCity returns tour chunks mentioning any spelling of the city.
func (x *MemoryIndex) ToursByCity(_ context.Context, city string, limit int) ([]SemanticMatch, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	patterns := cityPatterns(city)
	out := make([]SemanticMatch, 0)
	for _, e := range x.entries {
		if e.match.EntityType != "tour" {
			continue
		}
		haystack := strings.ToLower(e.match.Text + " " + e.match.DocTitle)
		for _, p := range patterns {
			if strings.Contains(haystack, p) {
				m := e.match
				m.Origin = OriginCityFallback
				out = append(out, m)
				break
			}
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// normalizeVector returns a unit-length copy.
func normalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
