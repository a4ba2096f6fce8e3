package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	require.NoError(t, err)
	return c
}

func TestClient_Search(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/knowledge/search", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "trace-1", r.Header.Get(TraceHeader))

		var req SearchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, SearchRequest{Query: "food tour", Mode: "hybrid"}, req)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"intent":"default_search","tokens":["food","tour"],"mode":"hybrid","degraded":true,"latencyMs":42,
			"fragments":[{"source":"Product: Food Tour","content":"**Food Tour**","metadata":{"type":"product"}}]}`))
	})

	resp, err := c.Search(WithTraceID(context.Background(), "trace-1"), SearchRequest{Query: "food tour", Mode: "hybrid"})
	require.NoError(t, err)

	assert.Equal(t, "default_search", resp.Intent)
	assert.True(t, resp.Degraded)
	assert.Equal(t, int64(42), resp.LatencyMs)
	require.Len(t, resp.Fragments, 1)
	assert.Equal(t, "product", resp.Fragments[0].Metadata["type"])
}

func TestClient_SearchGeneratesTraceID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Len(t, r.Header.Get(TraceHeader), 36)
		_, _ = w.Write([]byte(`{"intent":"list_all","mode":"structured"}`))
	})

	resp, err := c.Search(context.Background(), SearchRequest{Query: "list all"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Fragments)
}

func TestClient_SearchRequiresQuery(t *testing.T) {
	c, err := NewClient(ClientConfig{})
	require.NoError(t, err)

	_, err = c.Search(context.Background(), SearchRequest{Query: " "})
	assert.Error(t, err)
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"semantic_unavailable","message":"semantic search is unavailable","detail":"missing key"}`))
	})

	_, err := c.Search(context.Background(), SearchRequest{Query: "q", Mode: "semantic"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "semantic_unavailable", apiErr.Code)
	assert.Equal(t, "semantic search is unavailable", apiErr.Message)
	assert.True(t, apiErr.Temporary())
}

func TestClient_APIErrorPlainBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	_, err := c.Keywords(context.Background(), "q")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "bad_gateway", apiErr.Code)
	assert.Equal(t, "upstream exploded", apiErr.Message)
	assert.False(t, apiErr.Temporary())
}

func TestClient_Keywords(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/knowledge/keywords", r.URL.Path)
		_, _ = w.Write([]byte(`{"tokens":["tour","tours","gdansk"],"intent":"default_search","city":"gdansk","productQuery":true}`))
	})

	resp, err := c.Keywords(context.Background(), "tours in Gdańsk")
	require.NoError(t, err)
	assert.Equal(t, "gdansk", resp.City)
	assert.True(t, resp.ProductQuery)
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"status":"healthy","service":"knowledge-engine"}`))
	})

	resp, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Status)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient(ClientConfig{BaseURL: "localhost:8085"})
	assert.Error(t, err)
}
