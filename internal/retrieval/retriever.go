// Package retrieval turns a user question into knowledge fragments using a
// structured SQL engine and a semantic vector engine.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/walkative/knowledge-engine/internal/keywords"
	"github.com/walkative/knowledge-engine/internal/observability"
)

// ErrInvalidMode is returned for an unknown retrieval mode.
var ErrInvalidMode = errors.New("invalid retrieval mode")

// Mode selects which engines serve a request.
type Mode string

const (
	ModeStructured Mode = "structured"
	ModeSemantic   Mode = "semantic"
	ModeHybrid     Mode = "hybrid"
)

// ParseMode validates a mode name. The empty string maps to def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return def, nil
	case ModeStructured, ModeSemantic, ModeHybrid:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// RetrievalRequest represents a knowledge retrieval query.
type RetrievalRequest struct {
	Query string
	Mode  Mode
}

// RetrievalResponse contains the retrieval results.
type RetrievalResponse struct {
	Intent    Intent     `json:"intent"`
	Tokens    []string   `json:"tokens"`
	Mode      Mode       `json:"mode"`
	Fragments []Fragment `json:"fragments"`
	LatencyMs int64      `json:"latency_ms"`
	// Degraded is set when hybrid retrieval ran without the semantic engine.
	Degraded bool `json:"degraded"`
}

// QueryAnalysis is the normalizer and classifier view of a query.
type QueryAnalysis struct {
	Tokens       []string `json:"tokens"`
	Intent       Intent   `json:"intent"`
	City         string   `json:"city,omitempty"`
	ProductQuery bool     `json:"product_query"`
	Ranking      bool     `json:"ranking"`
}

// Analyze classifies and normalizes a query without touching any store.
func Analyze(query string) QueryAnalysis {
	intent := ClassifyIntent(query)
	return QueryAnalysis{
		Tokens:       TokensFor(query, intent),
		Intent:       intent,
		City:         keywords.DetectCity(query),
		ProductQuery: IsProductQuery(query),
		Ranking:      IsRankingQuery(query),
	}
}

// RetrieverConfig holds facade settings.
type RetrieverConfig struct {
	DefaultMode      Mode
	SemanticOptional bool
	RequestTimeout   time.Duration
}

// Retriever is the entry point for prompt assembly. It routes a request to
// the structured engine, the semantic engine or both.
type Retriever struct {
	structured *StructuredEngine
	semantic   *SemanticEngine
	cache      *ResponseCache
	logger     *observability.Logger
	config     RetrieverConfig
}

// NewRetriever creates a new retriever. semantic may be nil when no vector
// index is configured; cache may be nil to disable response caching.
func NewRetriever(structured *StructuredEngine, semantic *SemanticEngine, cache *ResponseCache, logger *observability.Logger, cfg RetrieverConfig) *Retriever {
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeHybrid
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Retriever{
		structured: structured,
		semantic:   semantic,
		cache:      cache,
		logger:     logger.WithComponent("retriever"),
		config:     cfg,
	}
}

// Retrieve executes a retrieval request.
func (r *Retriever) Retrieve(ctx context.Context, req RetrievalRequest) (*RetrievalResponse, error) {
	start := time.Now()

	mode, err := ParseMode(string(req.Mode), r.config.DefaultMode)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.RequestTimeout)
	defer cancel()

	logger := r.logger.WithContext(ctx)

	if cached, ok := r.cache.Get(ctx, string(mode), req.Query); ok {
		logger.Debug().Str("mode", string(mode)).Msg("Cache hit")
		cached.LatencyMs = time.Since(start).Milliseconds()
		return cached, nil
	}

	intent := ClassifyIntent(req.Query)
	tokens := TokensFor(req.Query, intent)

	logger.Debug().
		Query(req.Query).
		Str("mode", string(mode)).
		Str("intent", string(intent)).
		Strs("tokens", tokens).
		Msg("Processing retrieval query")

	resp := &RetrievalResponse{
		Intent: intent,
		Tokens: tokens,
		Mode:   mode,
	}

	switch mode {
	case ModeStructured:
		resp.Fragments = r.searchStructured(ctx, req.Query, tokens, intent)
	case ModeSemantic:
		resp.Fragments, err = r.searchSemantic(ctx, req.Query)
	case ModeHybrid:
		err = r.searchHybrid(ctx, req.Query, tokens, intent, resp)
	}

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case resp.Degraded:
		outcome = "degraded"
	}
	observability.RetrievalRequestsTotal.WithLabelValues(string(mode), string(intent), outcome).Inc()
	observability.RetrievalDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Warn().Err(err).Query(req.Query).Str("mode", string(mode)).Msg("Retrieval failed")
		return nil, err
	}

	if resp.Fragments == nil {
		resp.Fragments = []Fragment{}
	}
	resp.LatencyMs = time.Since(start).Milliseconds()
	observability.RetrievalFragments.WithLabelValues(string(mode)).Observe(float64(len(resp.Fragments)))

	_ = r.cache.Set(ctx, string(mode), req.Query, resp)

	logger.Info().
		Str("mode", string(mode)).
		Str("intent", string(intent)).
		Int("fragments", len(resp.Fragments)).
		Bool("degraded", resp.Degraded).
		Int64("latency_ms", resp.LatencyMs).
		Msg("Retrieval complete")

	return resp, nil
}

func (r *Retriever) searchStructured(ctx context.Context, query string, tokens []string, intent Intent) []Fragment {
	if r.structured == nil {
		return []Fragment{}
	}
	return r.structured.SearchIntent(ctx, query, tokens, intent)
}

func (r *Retriever) searchSemantic(ctx context.Context, query string) ([]Fragment, error) {
	if r.semantic == nil {
		return []Fragment{}, fmt.Errorf("%w: semantic engine not configured", ErrEmbeddingUnavailable)
	}
	return r.semantic.Search(ctx, query)
}

// searchHybrid runs both engines concurrently. Structured fragments come
// first in the response.
func (r *Retriever) searchHybrid(ctx context.Context, query string, tokens []string, intent Intent, resp *RetrievalResponse) error {
	var (
		structured, semantic []Fragment
		semanticErr          error
		g                    errgroup.Group
	)
	g.Go(func() error {
		structured = r.searchStructured(ctx, query, tokens, intent)
		return nil
	})
	g.Go(func() error {
		semantic, semanticErr = r.searchSemantic(ctx, query)
		return nil
	})
	_ = g.Wait()

	if semanticErr != nil {
		if !r.config.SemanticOptional || !errors.Is(semanticErr, ErrEmbeddingUnavailable) {
			return semanticErr
		}
		r.logger.WithContext(ctx).Warn().Err(semanticErr).Msg("Semantic search unavailable, returning structured results only")
		resp.Degraded = true
		semantic = nil
	}

	resp.Fragments = make([]Fragment, 0, len(structured)+len(semantic))
	resp.Fragments = append(resp.Fragments, structured...)
	resp.Fragments = append(resp.Fragments, semantic...)
	return nil
}
