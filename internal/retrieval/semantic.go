package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/walkative/knowledge-engine/internal/embedding"
	"github.com/walkative/knowledge-engine/internal/keywords"
	"github.com/walkative/knowledge-engine/internal/observability"
)

// ErrEmbeddingUnavailable is returned when the query could not be embedded,
// either because no credential is configured or the provider failed.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// SemanticConfig tunes the vector search and its fallbacks.
type SemanticConfig struct {
	Threshold         float64
	MatchCount        int
	PerDocumentLimit  int
	TopK              int
	ScanLimit         int
	ScanTopK          int
	CityFallbackLimit int
	Formatter         Formatter
}

// DefaultSemanticConfig returns the production defaults.
func DefaultSemanticConfig() SemanticConfig {
	return SemanticConfig{
		Threshold:         0.4,
		MatchCount:        50,
		PerDocumentLimit:  2,
		TopK:              10,
		ScanLimit:         100,
		ScanTopK:          5,
		CityFallbackLimit: 10,
		Formatter:         DefaultFormatter(),
	}
}

// SemanticEngine answers queries by embedding them and searching the
// chunk index, with an exact scan and a city lookup as fallbacks.
type SemanticEngine struct {
	embedder embedding.Embedder
	index    VectorIndex
	logger   *observability.Logger
	config   SemanticConfig
}

// NewSemanticEngine creates a new semantic engine.
func NewSemanticEngine(embedder embedding.Embedder, index VectorIndex, logger *observability.Logger, cfg SemanticConfig) *SemanticEngine {
	defaults := DefaultSemanticConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.MatchCount <= 0 {
		cfg.MatchCount = defaults.MatchCount
	}
	if cfg.PerDocumentLimit <= 0 {
		cfg.PerDocumentLimit = defaults.PerDocumentLimit
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = defaults.ScanLimit
	}
	if cfg.ScanTopK <= 0 {
		cfg.ScanTopK = defaults.ScanTopK
	}
	if cfg.CityFallbackLimit <= 0 {
		cfg.CityFallbackLimit = defaults.CityFallbackLimit
	}
	if cfg.Formatter.MaxContentChars <= 0 {
		cfg.Formatter = defaults.Formatter
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &SemanticEngine{
		embedder: embedder,
		index:    index,
		logger:   logger.WithComponent("semantic"),
		config:   cfg,
	}
}

// Search embeds the query and returns the best matching chunks as
// fragments. The only error returned wraps ErrEmbeddingUnavailable; index
// faults are logged and produce an empty slice.
func (e *SemanticEngine) Search(ctx context.Context, query string) ([]Fragment, error) {
	logger := e.logger.WithContext(ctx)

	vec, err := e.embedder.EmbedSingle(ctx, query)
	if err != nil {
		logger.Warn().Err(err).Msg("Query embedding failed")
		return []Fragment{}, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	productQuery := IsProductQuery(query)

	matches, err := e.index.Match(ctx, vec, e.config.Threshold, e.config.MatchCount)
	if err != nil {
		logger.Warn().Err(err).Msg("Vector match failed, falling back to exact scan")
		observability.SemanticFallbacksTotal.WithLabelValues("exact_scan").Inc()
		scanned, scanErr := e.exactScan(ctx, vec)
		if scanErr != nil {
			logger.Error().Err(scanErr).Msg("Exact scan failed")
			return []Fragment{}, nil
		}
		return e.format(scanned), nil
	}

	if len(matches) == 0 {
		fallback := e.cityFallback(ctx, query, productQuery)
		if len(fallback) > 0 {
			observability.SemanticFallbacksTotal.WithLabelValues("city_empty").Inc()
		}
		logger.Debug().
			Int("matches", len(fallback)).
			Msg("No vector matches, used city fallback")
		return e.format(fallback), nil
	}

	ranked := e.rank(diversify(matches, e.config.PerDocumentLimit), productQuery)

	if productQuery && !hasTour(ranked) {
		if fallback := e.cityFallback(ctx, query, productQuery); len(fallback) > 0 {
			observability.SemanticFallbacksTotal.WithLabelValues("city_replace").Inc()
			logger.Debug().
				Int("replaced", len(ranked)).
				Int("matches", len(fallback)).
				Msg("No tour among matches, replaced with city tours")
			ranked = fallback
		}
	}

	logger.Debug().
		Int("candidates", len(matches)).
		Int("matches", len(ranked)).
		Bool("product_query", productQuery).
		Msg("Semantic search completed")
	return e.format(ranked), nil
}

// exactScan scores a bounded batch of stored embeddings locally.
func (e *SemanticEngine) exactScan(ctx context.Context, vec []float32) ([]SemanticMatch, error) {
	records, err := e.index.ListEmbeddings(ctx, e.config.ScanLimit)
	if err != nil {
		return nil, err
	}

	matches := make([]SemanticMatch, 0, len(records))
	for _, r := range records {
		sim := clampSimilarity(CosineSimilarity(vec, r.Embedding))
		if sim < e.config.Threshold {
			continue
		}
		m := r.Match
		m.Similarity = sim
		m.Origin = OriginExactScan
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	matches = diversify(matches, e.config.PerDocumentLimit)
	if len(matches) > e.config.ScanTopK {
		matches = matches[:e.config.ScanTopK]
	}
	return matches, nil
}

// cityFallback returns tour chunks for the city named in a product query,
// at most PerDocumentLimit per document. Lookup errors are logged and yield
// nothing.
func (e *SemanticEngine) cityFallback(ctx context.Context, query string, productQuery bool) []SemanticMatch {
	if !productQuery {
		return nil
	}
	city := keywords.DetectCity(query)
	if city == "" {
		return nil
	}

	matches, err := e.index.ToursByCity(ctx, city, e.config.CityFallbackLimit)
	if err != nil {
		e.logger.WithContext(ctx).Warn().Err(err).Str("city", city).Msg("City fallback failed")
		return nil
	}
	for i := range matches {
		matches[i].Origin = OriginCityFallback
	}
	return diversify(matches, e.config.PerDocumentLimit)
}

// rank orders matches by similarity, tours first for product queries, and
// keeps the top K.
func (e *SemanticEngine) rank(matches []SemanticMatch, productQuery bool) []SemanticMatch {
	for i := range matches {
		matches[i].Similarity = clampSimilarity(matches[i].Similarity)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if productQuery {
			ti, tj := matches[i].EntityType == "tour", matches[j].EntityType == "tour"
			if ti != tj {
				return ti
			}
		}
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > e.config.TopK {
		matches = matches[:e.config.TopK]
	}
	return matches
}

func (e *SemanticEngine) format(matches []SemanticMatch) []Fragment {
	fragments := make([]Fragment, 0, len(matches))
	for _, m := range matches {
		fragments = append(fragments, e.config.Formatter.Match(m))
	}
	return fragments
}

// diversify keeps at most perDocument chunks of any one document,
// preserving input order.
func diversify(matches []SemanticMatch, perDocument int) []SemanticMatch {
	counts := make(map[string]int, len(matches))
	out := make([]SemanticMatch, 0, len(matches))
	for _, m := range matches {
		if counts[m.DocumentID] >= perDocument {
			continue
		}
		counts[m.DocumentID]++
		out = append(out, m)
	}
	return out
}

func hasTour(matches []SemanticMatch) bool {
	for _, m := range matches {
		if m.EntityType == "tour" {
			return true
		}
	}
	return false
}
