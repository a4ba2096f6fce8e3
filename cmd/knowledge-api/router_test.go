package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkative/knowledge-engine/cmd/knowledge-api/middleware"
	"github.com/walkative/knowledge-engine/internal/api/rpc"
	"github.com/walkative/knowledge-engine/internal/config"
	"github.com/walkative/knowledge-engine/internal/observability"
	"github.com/walkative/knowledge-engine/internal/retrieval"
)

type stubRetriever struct{}

func (stubRetriever) Retrieve(_ context.Context, req retrieval.RetrievalRequest) (*retrieval.RetrievalResponse, error) {
	return &retrieval.RetrievalResponse{
		Intent:    retrieval.ClassifyIntent(req.Query),
		Tokens:    []string{"food"},
		Mode:      retrieval.ModeStructured,
		Fragments: []retrieval.Fragment{retrieval.NewFragment("Product: Food Tour", "**Food Tour**", nil, 0)},
	}, nil
}

type readiness struct{ err error }

func (r readiness) Ready(context.Context) error { return r.err }

func newTestServer(t *testing.T, cfg *config.Config, ready error) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(observability.NopLogger(), cfg, stubRetriever{}, readiness{err: ready}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t, config.DefaultConfig(), nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.TraceHeader))
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "knowledge-engine", body["service"])
}

func TestRouter_Ready(t *testing.T) {
	srv := newTestServer(t, config.DefaultConfig(), nil)
	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newTestServer(t, config.DefaultConfig(), errors.New("store: connection refused"))
	resp, err = http.Get(down.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRouter_Metrics(t *testing.T) {
	srv := newTestServer(t, config.DefaultConfig(), nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_Search(t *testing.T) {
	srv := newTestServer(t, config.DefaultConfig(), nil)

	resp, err := http.Post(srv.URL+"/api/v1/knowledge/search", "application/json", strings.NewReader(`{"query":"food tour"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "default_search", body["intent"])
	assert.Len(t, body["fragments"], 1)
}

func TestRouter_ConnectSearch(t *testing.T) {
	srv := newTestServer(t, config.DefaultConfig(), nil)

	client := connect.NewClient[rpc.SearchRequest, rpc.SearchResponse](srv.Client(), srv.URL+rpc.SearchProcedure, rpc.WithJSONCodec())
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&rpc.SearchRequest{Query: "food tour"}))
	require.NoError(t, err)

	assert.Equal(t, "structured", resp.Msg.Mode)
	require.Len(t, resp.Msg.Fragments, 1)
	assert.Equal(t, "Product: Food Tour", resp.Msg.Fragments[0].Source)
}
