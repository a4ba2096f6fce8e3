package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/walkative/knowledge-engine/internal/cache"
	"github.com/walkative/knowledge-engine/internal/observability"
)

const responseKeyPrefix = "retrieval:"

// ResponseCache stores successful retrieval responses keyed by mode and query.
type ResponseCache struct {
	client cache.Client
	logger *observability.Logger
	ttl    time.Duration
	now    func() time.Time
}

// CachedResponse is the stored envelope.
type CachedResponse struct {
	Response  *RetrievalResponse `json:"response"`
	CachedAt  time.Time          `json:"cached_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// NewResponseCache creates a response cache. A nil client disables caching.
func NewResponseCache(client cache.Client, logger *observability.Logger, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ResponseCache{
		client: client,
		logger: logger.WithComponent("response_cache"),
		ttl:    ttl,
		now:    time.Now,
	}
}

// CacheKey returns retrieval:<mode>:<sha256 of the trimmed, lower-cased query>.
func (c *ResponseCache) CacheKey(mode, query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return cache.CacheKey("retrieval", mode, hex.EncodeToString(sum[:]))
}

// Get returns a cached response if one is present and unexpired.
func (c *ResponseCache) Get(ctx context.Context, mode, query string) (*RetrievalResponse, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	key := c.CacheKey(mode, query)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache get error")
		}
		observability.CacheTotal.WithLabelValues("response", "miss").Inc()
		return nil, false
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil || cached.Response == nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached response")
		observability.CacheTotal.WithLabelValues("response", "miss").Inc()
		return nil, false
	}
	if c.now().After(cached.ExpiresAt) {
		observability.CacheTotal.WithLabelValues("response", "miss").Inc()
		return nil, false
	}

	if cached.Response.Fragments == nil {
		cached.Response.Fragments = []Fragment{}
	}
	for i := range cached.Response.Fragments {
		if cached.Response.Fragments[i].Metadata == nil {
			cached.Response.Fragments[i].Metadata = map[string]any{}
		}
	}

	observability.CacheTotal.WithLabelValues("response", "hit").Inc()
	return cached.Response, true
}

// Set stores a response. Empty and degraded responses are not cached.
func (c *ResponseCache) Set(ctx context.Context, mode, query string, resp *RetrievalResponse) error {
	if c == nil || c.client == nil || resp == nil || resp.Degraded || len(resp.Fragments) == 0 {
		return nil
	}

	now := c.now()
	data, err := json.Marshal(CachedResponse{
		Response:  resp,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	key := c.CacheKey(mode, query)
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
		return err
	}

	c.logger.Debug().Str("key", key).Dur("ttl", c.ttl).Msg("Cached response")
	return nil
}

// Invalidate drops every cached response.
func (c *ResponseCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	c.logger.Info().Msg("Invalidating response cache")
	return c.client.DeleteByPrefix(ctx, responseKeyPrefix)
}
