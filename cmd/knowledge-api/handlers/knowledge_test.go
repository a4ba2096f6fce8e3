package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkative/knowledge-engine/internal/retrieval"
)

type stubRetriever struct {
	resp *retrieval.RetrievalResponse
	err  error
	got  retrieval.RetrievalRequest
}

func (s *stubRetriever) Retrieve(_ context.Context, req retrieval.RetrievalRequest) (*retrieval.RetrievalResponse, error) {
	s.got = req
	return s.resp, s.err
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSearch(t *testing.T) {
	stub := &stubRetriever{resp: &retrieval.RetrievalResponse{
		Intent:    retrieval.IntentDefaultSearch,
		Tokens:    []string{"food"},
		Mode:      retrieval.ModeStructured,
		LatencyMs: 12,
		Fragments: []retrieval.Fragment{
			retrieval.NewFragment("Product: Food Tour", "**Food Tour**", map[string]any{"type": "product", "id": 7}, 0),
		},
	}}
	h := NewKnowledgeHandler(nil, stub)

	rec := post(h.Search, `{"query":"food","mode":"structured"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, retrieval.Mode("structured"), stub.got.Mode)
	assert.Equal(t, "food", stub.got.Query)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "default_search", body["intent"])
	assert.Equal(t, float64(12), body["latencyMs"])
	assert.Equal(t, false, body["degraded"])

	fragments := body["fragments"].([]any)
	require.Len(t, fragments, 1)
	first := fragments[0].(map[string]any)
	assert.Equal(t, "Product: Food Tour", first["source"])
	assert.Equal(t, "product", first["metadata"].(map[string]any)["type"])
}

func TestSearch_EmptyFragmentsEncodeAsArray(t *testing.T) {
	h := NewKnowledgeHandler(nil, &stubRetriever{resp: &retrieval.RetrievalResponse{Mode: retrieval.ModeHybrid, Degraded: true}})

	rec := post(h.Search, `{"query":"nothing here"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fragments":[]`)
	assert.Contains(t, rec.Body.String(), `"tokens":[]`)
	assert.Contains(t, rec.Body.String(), `"degraded":true`)
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"malformed body", `{"query":`, nil, http.StatusBadRequest, "invalid_request"},
		{"blank query", `{"query":"  "}`, nil, http.StatusBadRequest, "invalid_request"},
		{"bad mode", `{"query":"q","mode":"x"}`, fmt.Errorf("%w: \"x\"", retrieval.ErrInvalidMode), http.StatusBadRequest, "invalid_mode"},
		{"no embeddings", `{"query":"q","mode":"semantic"}`, retrieval.ErrEmbeddingUnavailable, http.StatusServiceUnavailable, "semantic_unavailable"},
		{"deadline", `{"query":"q"}`, context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"other", `{"query":"q"}`, errors.New("boom"), http.StatusInternalServerError, "retrieval_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewKnowledgeHandler(nil, &stubRetriever{err: tt.err})

			rec := post(h.Search, tt.body)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestKeywords(t *testing.T) {
	h := NewKnowledgeHandler(nil, &stubRetriever{})

	rec := post(h.Keywords, `{"query":"Jakie wycieczki mamy w Gdańsku?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body KeywordsResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"tour", "tours", "gdansk"}, body.Tokens)
	assert.Equal(t, "default_search", body.Intent)
	assert.Equal(t, "gdansk", body.City)
	assert.True(t, body.ProductQuery)
	assert.Contains(t, rec.Body.String(), `"productQuery":true`)
}

func TestKeywords_BadBody(t *testing.T) {
	h := NewKnowledgeHandler(nil, &stubRetriever{})
	rec := post(h.Keywords, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
