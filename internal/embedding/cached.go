package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/walkative/knowledge-engine/internal/cache"
	"github.com/walkative/knowledge-engine/internal/observability"
)

const cacheKeyPrefix = "emb"

// CachedEmbedder caches single-text embeddings in a cache.Client.
type CachedEmbedder struct {
	inner  Embedder
	store  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedEmbedder wraps inner with a cache.
func NewCachedEmbedder(inner Embedder, store cache.Client, ttl time.Duration, logger *observability.Logger) *CachedEmbedder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CachedEmbedder{
		inner:  inner,
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Embed embeds each text, serving cached vectors where present.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.EmbedSingle(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// EmbedSingle returns a cached embedding or calls the inner embedder.
func (c *CachedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		observability.CacheTotal.WithLabelValues("embedding", "hit").Inc()
		return vec, nil
	}
	observability.CacheTotal.WithLabelValues("embedding", "miss").Inc()

	vec, err := c.inner.EmbedSingle(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}

	if err := c.store.Set(ctx, key, vectorToBytes(vec), c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache embedding")
	}
	return vec, nil
}

// Model returns the inner model name.
func (c *CachedEmbedder) Model() string {
	return c.inner.Model()
}

// Dimension returns the inner dimension.
func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

// cacheKey scopes keys by model so switching models never serves stale vectors.
func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return cache.CacheKey(cacheKeyPrefix, c.inner.Model(), hex.EncodeToString(h[:]))
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Failed to get cached embedding")
		}
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to parse cached embedding")
		return nil, false
	}
	return vec, true
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid cached vector length %d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
