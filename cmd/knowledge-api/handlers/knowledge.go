// Package handlers provides HTTP handlers for the knowledge API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/walkative/knowledge-engine/internal/observability"
	"github.com/walkative/knowledge-engine/internal/retrieval"
)

// Retriever is the retrieval capability the handlers need.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.RetrievalRequest) (*retrieval.RetrievalResponse, error)
}

// KnowledgeHandler handles knowledge search requests.
type KnowledgeHandler struct {
	logger    *observability.Logger
	retriever Retriever
}

// NewKnowledgeHandler creates a new knowledge handler.
func NewKnowledgeHandler(logger *observability.Logger, retriever Retriever) *KnowledgeHandler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &KnowledgeHandler{
		logger:    logger.WithComponent("http"),
		retriever: retriever,
	}
}

// SearchRequestDTO represents the API request for a search.
type SearchRequestDTO struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
}

// SearchResponseDTO represents the API response for a search.
type SearchResponseDTO struct {
	Intent    string        `json:"intent"`
	Tokens    []string      `json:"tokens"`
	Mode      string        `json:"mode"`
	Degraded  bool          `json:"degraded"`
	LatencyMs int64         `json:"latencyMs"`
	Fragments []FragmentDTO `json:"fragments"`
}

// FragmentDTO represents one knowledge fragment.
type FragmentDTO struct {
	Source   string         `json:"source"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// KeywordsRequestDTO represents the API request for query analysis.
type KeywordsRequestDTO struct {
	Query string `json:"query"`
}

// KeywordsResponseDTO represents the API response for query analysis.
type KeywordsResponseDTO struct {
	Tokens       []string `json:"tokens"`
	Intent       string   `json:"intent"`
	City         string   `json:"city,omitempty"`
	ProductQuery bool     `json:"productQuery"`
	Ranking      bool     `json:"ranking"`
}

// Search handles POST /knowledge/search.
func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO SearchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(reqDTO.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required", "")
		return
	}

	resp, err := h.retriever.Retrieve(ctx, retrieval.RetrievalRequest{
		Query: reqDTO.Query,
		Mode:  retrieval.Mode(reqDTO.Mode),
	})
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithContext(ctx).Error().Err(err).Str("mode", reqDTO.Mode).Msg("Search failed")
		}
		writeError(w, status, code, errorMessage(code), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toSearchDTO(resp))
}

// Keywords handles POST /knowledge/keywords.
func (h *KnowledgeHandler) Keywords(w http.ResponseWriter, r *http.Request) {
	var reqDTO KeywordsRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", err.Error())
		return
	}

	a := retrieval.Analyze(reqDTO.Query)
	writeJSON(w, http.StatusOK, KeywordsResponseDTO{
		Tokens:       a.Tokens,
		Intent:       string(a.Intent),
		City:         a.City,
		ProductQuery: a.ProductQuery,
		Ranking:      a.Ranking,
	})
}

func toSearchDTO(resp *retrieval.RetrievalResponse) SearchResponseDTO {
	dto := SearchResponseDTO{
		Intent:    string(resp.Intent),
		Tokens:    resp.Tokens,
		Mode:      string(resp.Mode),
		Degraded:  resp.Degraded,
		LatencyMs: resp.LatencyMs,
		Fragments: make([]FragmentDTO, 0, len(resp.Fragments)),
	}
	if dto.Tokens == nil {
		dto.Tokens = []string{}
	}
	for _, f := range resp.Fragments {
		dto.Fragments = append(dto.Fragments, FragmentDTO(f))
	}
	return dto
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, retrieval.ErrInvalidMode):
		return http.StatusBadRequest, "invalid_mode"
	case errors.Is(err, retrieval.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable, "semantic_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "retrieval_failed"
	}
}

func errorMessage(code string) string {
	switch code {
	case "invalid_mode":
		return "mode must be structured, semantic or hybrid"
	case "semantic_unavailable":
		return "semantic search is unavailable"
	case "timeout":
		return "retrieval timed out"
	default:
		return "retrieval failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, detail string) {
	resp := map[string]string{
		"error":   code,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
