// Package bootstrap wires the retrieval stack from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/walkative/knowledge-engine/internal/cache"
	"github.com/walkative/knowledge-engine/internal/config"
	"github.com/walkative/knowledge-engine/internal/embedding"
	"github.com/walkative/knowledge-engine/internal/observability"
	"github.com/walkative/knowledge-engine/internal/retrieval"
	"github.com/walkative/knowledge-engine/internal/storage"
)

// MockEmbeddingModel selects the deterministic offline embedder.
const MockEmbeddingModel = "mock"

// Services holds the long-lived components built from configuration.
type Services struct {
	Config    *config.Config
	Logger    *observability.Logger
	Store     *storage.ReadOnlyStore
	Cache     cache.Client
	Embedder  embedding.Embedder
	Retriever *retrieval.Retriever
	// Responses is nil when result caching is disabled.
	Responses *retrieval.ResponseCache
}

// NewLogger builds the service logger from the observability section.
func NewLogger(cfg *config.Config, output io.Writer) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		Output:      output,
		ServiceName: cfg.Observability.ServiceName,
	})
}

// New opens the store and cache and assembles the retriever.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Services, error) {
	if logger == nil {
		logger = NewLogger(cfg, nil)
	}

	store, err := storage.Open(ctx, storage.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.DatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	c, err := newCache(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	embedder := newEmbedder(cfg, c, logger)

	structured := retrieval.NewStructuredEngine(store, store.Dialect(), logger, StructuredConfig(cfg))
	var index retrieval.VectorIndex = retrieval.NewPGVectorIndex(store, store.Dialect(), cfg.Database.Tables)
	if cfg.Semantic.Index == config.IndexMemory {
		mem, err := retrieval.LoadMemoryIndex(ctx, index, cfg.Semantic.PreloadLimit)
		if err != nil {
			_ = c.Close()
			_ = store.Close()
			return nil, err
		}
		logger.Info().Int("chunks", mem.Count()).Msg("Vector index preloaded")
		index = mem
	}
	semantic := retrieval.NewSemanticEngine(embedder, index, logger, SemanticConfig(cfg))

	var responses *retrieval.ResponseCache
	if cfg.Retrieval.CacheResults {
		responses = retrieval.NewResponseCache(c, logger, cfg.Cache.TTL)
	}

	retriever := retrieval.NewRetriever(structured, semantic, responses, logger, retrieval.RetrieverConfig{
		DefaultMode:      retrieval.Mode(cfg.Retrieval.Mode),
		SemanticOptional: cfg.Retrieval.SemanticOptional,
		RequestTimeout:   cfg.Retrieval.RequestTimeout,
	})

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Str("embedding_model", embedder.Model()).
		Str("mode", cfg.Retrieval.Mode).
		Msg("Retrieval services initialized")

	return &Services{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Cache:     c,
		Embedder:  embedder,
		Retriever: retriever,
		Responses: responses,
	}, nil
}

// StructuredConfig maps configuration onto the structured engine settings.
func StructuredConfig(cfg *config.Config) retrieval.StructuredConfig {
	return retrieval.StructuredConfig{
		Tables:       cfg.Database.Tables,
		ProductLimit: cfg.Retrieval.ProductLimit,
		CityLimit:    cfg.Retrieval.CityLimit,
		StatsLimit:   cfg.Retrieval.StatsLimit,
		ListLimit:    cfg.Retrieval.ListLimit,
		Formatter:    formatter(cfg),
	}
}

// SemanticConfig maps configuration onto the semantic engine settings.
func SemanticConfig(cfg *config.Config) retrieval.SemanticConfig {
	return retrieval.SemanticConfig{
		Threshold:         cfg.Semantic.Threshold,
		MatchCount:        cfg.Semantic.MatchCount,
		PerDocumentLimit:  cfg.Semantic.PerDocumentLimit,
		TopK:              cfg.Semantic.TopK,
		ScanLimit:         cfg.Semantic.ScanLimit,
		ScanTopK:          cfg.Semantic.ScanTopK,
		CityFallbackLimit: cfg.Semantic.CityFallbackLimit,
		Formatter:         formatter(cfg),
	}
}

func formatter(cfg *config.Config) retrieval.Formatter {
	return retrieval.Formatter{
		MaxContentChars:       cfg.Retrieval.MaxContentChars,
		ShortDescriptionChars: cfg.Retrieval.ShortDescriptionChars,
		LongDescriptionChars:  cfg.Retrieval.LongDescriptionChars,
		CityDescriptionChars:  cfg.Retrieval.CityDescriptionChars,
	}
}

func newCache(ctx context.Context, cfg *config.Config) (cache.Client, error) {
	if cfg.Cache.Driver == "redis" {
		return cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
	}
	return cache.NewMemoryClient(cfg.Cache.MaxEntries), nil
}

func newEmbedder(cfg *config.Config, c cache.Client, logger *observability.Logger) embedding.Embedder {
	var inner embedding.Embedder
	if cfg.Embedding.Model == MockEmbeddingModel {
		inner = embedding.NewMockClient(cfg.Embedding.Dimension)
	} else {
		inner = embedding.NewClient(embedding.Config{
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			BaseURL:   cfg.Embedding.BaseURL,
			Dimension: cfg.Embedding.Dimension,
			Timeout:   cfg.Embedding.Timeout,
		})
	}
	if cfg.Embedding.CacheTTL <= 0 {
		return inner
	}
	return embedding.NewCachedEmbedder(inner, c, cfg.Embedding.CacheTTL, logger)
}

// Ready checks that the store and a Redis cache are reachable.
func (s *Services) Ready(ctx context.Context) error {
	if err := s.Store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if p, ok := s.Cache.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

// Close releases the cache and the connection pool.
func (s *Services) Close() error {
	return errors.Join(s.Cache.Close(), s.Store.Close())
}
