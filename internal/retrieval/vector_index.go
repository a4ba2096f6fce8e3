package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/walkative/knowledge-engine/internal/config"
	"github.com/walkative/knowledge-engine/internal/keywords"
	"github.com/walkative/knowledge-engine/internal/storage"
)

// MatchOrigin records which path produced a semantic match.
type MatchOrigin string

const (
	OriginIndex        MatchOrigin = "index"
	OriginExactScan    MatchOrigin = "exact_scan"
	OriginCityFallback MatchOrigin = "city_fallback"
)

// SemanticMatch is one chunk returned by the vector index.
type SemanticMatch struct {
	DocumentID string         `json:"document_id"`
	ChunkID    string         `json:"chunk_id"`
	Text       string         `json:"text"`
	EntityType string         `json:"entity_type"`
	Similarity float64        `json:"similarity"`
	DocTitle   string         `json:"doc_title"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Origin     MatchOrigin    `json:"origin,omitempty"`
}

// EmbeddingRecord is a stored chunk together with its raw embedding, used
// by the client-side exact scan.
type EmbeddingRecord struct {
	Match     SemanticMatch
	Embedding []float32
}

// VectorIndex is the nearest-neighbour store behind semantic search.
type VectorIndex interface {
	// Match returns chunks with similarity >= threshold, best first, at most count.
	Match(ctx context.Context, embedding []float32, threshold float64, count int) ([]SemanticMatch, error)
	// ListEmbeddings returns up to limit raw stored embeddings.
	ListEmbeddings(ctx context.Context, limit int) ([]EmbeddingRecord, error)
	// ToursByCity returns tour chunks that mention the canonical city.
	ToursByCity(ctx context.Context, city string, limit int) ([]SemanticMatch, error)
}

// PGVectorIndex implements VectorIndex on the chunk tables through the
// read-only store. Match calls the database-side similarity function.
type PGVectorIndex struct {
	store   storage.Querier
	dialect storage.Dialect
	tables  config.TablesConfig
}

var _ VectorIndex = (*PGVectorIndex)(nil)

// NewPGVectorIndex creates a new index over the configured chunk tables.
func NewPGVectorIndex(store storage.Querier, dialect storage.Dialect, tables config.TablesConfig) *PGVectorIndex {
	return &PGVectorIndex{store: store, dialect: dialect, tables: tables}
}

// Match runs the similarity function, e.g. knowledge.match_chunks(vector, float, int).
func (x *PGVectorIndex) Match(ctx context.Context, embedding []float32, threshold float64, count int) ([]SemanticMatch, error) {
	query := fmt.Sprintf(`SELECT chunk_id, document_id, content, entity_type, similarity, doc_title, metadata
		FROM %s($1::vector, $2, $3)`, x.tables.MatchFunction)

	rows, err := x.store.Query(ctx, query, FormatVector(embedding), threshold, count)
	if err != nil {
		return nil, fmt.Errorf("match chunks: %w", err)
	}

	matches := make([]SemanticMatch, 0, len(rows))
	for _, row := range rows {
		m := matchFromRow(row)
		m.Similarity = clampSimilarity(row.Float64("similarity"))
		m.Origin = OriginIndex
		matches = append(matches, m)
	}
	return matches, nil
}

// ListEmbeddings fetches a bounded batch of chunks with their vectors.
func (x *PGVectorIndex) ListEmbeddings(ctx context.Context, limit int) ([]EmbeddingRecord, error) {
	embeddingCol := "c.embedding"
	if x.dialect == storage.DialectPostgres {
		embeddingCol = "c.embedding::text"
	}

	query := fmt.Sprintf(`SELECT c.id AS chunk_id, c.document_id, c.content, c.entity_type,
		d.title AS doc_title, c.metadata, %s AS embedding
		FROM %s c
		JOIN %s d ON d.id = c.document_id
		WHERE c.embedding IS NOT NULL
		LIMIT $1`, embeddingCol, x.tables.Chunks, x.tables.Documents)

	rows, err := x.store.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}

	records := make([]EmbeddingRecord, 0, len(rows))
	for _, row := range rows {
		vec, err := ParseVector(row.String("embedding"))
		if err != nil {
			// unreadable vectors are skipped; they cannot match anything
			continue
		}
		m := matchFromRow(row)
		m.Origin = OriginExactScan
		records = append(records, EmbeddingRecord{Match: m, Embedding: vec})
	}
	return records, nil
}

// ToursByCity finds tour chunks whose text or document title mentions any
// spelling of the city.
func (x *PGVectorIndex) ToursByCity(ctx context.Context, city string, limit int) ([]SemanticMatch, error) {
	patterns := cityPatterns(city)
	op := x.dialect.PatternOperator()

	conds := make([]string, 0, len(patterns))
	args := make([]any, 0, len(patterns)+1)
	for i, p := range patterns {
		n := i + 1
		conds = append(conds, fmt.Sprintf("c.content %s $%d OR d.title %s $%d", op, n, op, n))
		args = append(args, "%"+p+"%")
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT c.id AS chunk_id, c.document_id, c.content, c.entity_type,
		d.title AS doc_title, c.metadata
		FROM %s c
		JOIN %s d ON d.id = c.document_id
		WHERE c.entity_type = 'tour' AND (%s)
		LIMIT $%d`, x.tables.Chunks, x.tables.Documents, strings.Join(conds, " OR "), len(args))

	rows, err := x.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tours by city: %w", err)
	}

	matches := make([]SemanticMatch, 0, len(rows))
	for _, row := range rows {
		m := matchFromRow(row)
		m.Origin = OriginCityFallback
		matches = append(matches, m)
	}
	return matches, nil
}

func matchFromRow(row storage.Row) SemanticMatch {
	return SemanticMatch{
		DocumentID: row.String("document_id"),
		ChunkID:    row.String("chunk_id"),
		Text:       row.String("content"),
		EntityType: strings.ToLower(row.String("entity_type")),
		DocTitle:   row.String("doc_title"),
		Metadata:   row.JSONMap("metadata"),
	}
}

// cityPatterns reduces the spellings of a city to those not already
// covered as a substring by an earlier one.
func cityPatterns(city string) []string {
	var out []string
	for _, form := range keywords.CityForms(city) {
		covered := false
		for _, kept := range out {
			if strings.Contains(form, kept) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, form)
		}
	}
	return out
}
