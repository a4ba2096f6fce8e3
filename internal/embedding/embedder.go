// Package embedding turns query text into vectors for semantic search.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrMissingCredential means no provider API key is configured.
	ErrMissingCredential = errors.New("embedding provider credential is not configured")
	// ErrProviderError wraps every failure reported by the provider.
	ErrProviderError = errors.New("embedding provider error")
	// ErrEmptyResponse means the provider answered without vectors.
	ErrEmptyResponse = errors.New("empty embedding response")
)

// Embedder defines the interface for embedding generation.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}

// Ensure implementations satisfy interface.
var (
	_ Embedder = (*Client)(nil)
	_ Embedder = (*CachedEmbedder)(nil)
	_ Embedder = (*MockClient)(nil)
)
