// Package rpc exposes knowledge retrieval over the Connect protocol.
package rpc

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/walkative/knowledge-engine/internal/observability"
	"github.com/walkative/knowledge-engine/internal/retrieval"
)

const (
	// KnowledgeServiceName is the fully-qualified Connect service name.
	KnowledgeServiceName = "knowledge.v1.KnowledgeService"

	SearchProcedure   = "/" + KnowledgeServiceName + "/Search"
	KeywordsProcedure = "/" + KnowledgeServiceName + "/Keywords"
)

// Retriever is the retrieval capability the service needs.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.RetrievalRequest) (*retrieval.RetrievalResponse, error)
}

// SearchRequest is the Search request message.
type SearchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
}

// SearchResponse is the Search response message.
type SearchResponse struct {
	Intent    string     `json:"intent"`
	Tokens    []string   `json:"tokens"`
	Mode      string     `json:"mode"`
	Degraded  bool       `json:"degraded"`
	LatencyMs int64      `json:"latency_ms"`
	Fragments []Fragment `json:"fragments"`
}

// Fragment is a knowledge fragment on the wire.
type Fragment struct {
	Source   string         `json:"source"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// KeywordsRequest is the Keywords request message.
type KeywordsRequest struct {
	Query string `json:"query"`
}

// KeywordsResponse is the Keywords response message.
type KeywordsResponse struct {
	Tokens       []string `json:"tokens"`
	Intent       string   `json:"intent"`
	City         string   `json:"city,omitempty"`
	ProductQuery bool     `json:"product_query"`
	Ranking      bool     `json:"ranking"`
}

// KnowledgeService implements the Connect knowledge service.
type KnowledgeService struct {
	logger    *observability.Logger
	retriever Retriever
}

// NewKnowledgeService creates a new knowledge service.
func NewKnowledgeService(logger *observability.Logger, retriever Retriever) *KnowledgeService {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &KnowledgeService{
		logger:    logger.WithComponent("rpc"),
		retriever: retriever,
	}
}

// Handler returns the mount path and handler for the service.
func (s *KnowledgeService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(SearchProcedure, connect.NewUnaryHandler(SearchProcedure, s.Search, opts...))
	mux.Handle(KeywordsProcedure, connect.NewUnaryHandler(KeywordsProcedure, s.Keywords, opts...))
	return "/" + KnowledgeServiceName + "/", mux
}

// Search retrieves knowledge fragments for a query.
func (s *KnowledgeService) Search(ctx context.Context, req *connect.Request[SearchRequest]) (*connect.Response[SearchResponse], error) {
	msg := req.Msg
	if msg.Query == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("query is required"))
	}

	resp, err := s.retriever.Retrieve(ctx, retrieval.RetrievalRequest{
		Query: msg.Query,
		Mode:  retrieval.Mode(msg.Mode),
	})
	if err != nil {
		s.logger.WithContext(ctx).WithOperation(SearchProcedure).Error().
			Err(err).
			Query(msg.Query).
			Msg("Search failed")
		return nil, toConnectError(err)
	}

	out := &SearchResponse{
		Intent:    string(resp.Intent),
		Tokens:    resp.Tokens,
		Mode:      string(resp.Mode),
		Degraded:  resp.Degraded,
		LatencyMs: resp.LatencyMs,
		Fragments: make([]Fragment, 0, len(resp.Fragments)),
	}
	for _, f := range resp.Fragments {
		out.Fragments = append(out.Fragments, Fragment(f))
	}
	return connect.NewResponse(out), nil
}

// Keywords reports how a query is normalized and classified.
func (s *KnowledgeService) Keywords(_ context.Context, req *connect.Request[KeywordsRequest]) (*connect.Response[KeywordsResponse], error) {
	a := retrieval.Analyze(req.Msg.Query)
	return connect.NewResponse(&KeywordsResponse{
		Tokens:       a.Tokens,
		Intent:       string(a.Intent),
		City:         a.City,
		ProductQuery: a.ProductQuery,
		Ranking:      a.Ranking,
	}), nil
}

func toConnectError(err error) *connect.Error {
	switch {
	case errors.Is(err, retrieval.ErrInvalidMode):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, retrieval.ErrEmbeddingUnavailable):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
