// Package engine provides the public Go SDK for the knowledge API.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TraceHeader carries the request trace ID.
const TraceHeader = "X-Trace-ID"

// Client is the public SDK client for the knowledge API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL string
	// APIKey is sent as a bearer token, for gateways in front of the API.
	APIKey  string
	Timeout time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// NewClient creates a new knowledge API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8085"
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("base URL must be http or https: %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// SearchRequest represents a knowledge search.
type SearchRequest struct {
	Query string `json:"query"`
	// Mode is structured, semantic or hybrid; empty uses the server default.
	Mode string `json:"mode,omitempty"`
}

// SearchResponse represents the fragments retrieved for a query.
type SearchResponse struct {
	Intent    string     `json:"intent"`
	Tokens    []string   `json:"tokens"`
	Mode      string     `json:"mode"`
	Degraded  bool       `json:"degraded"`
	LatencyMs int64      `json:"latencyMs"`
	Fragments []Fragment `json:"fragments"`
}

// Fragment is one unit of retrieved knowledge.
type Fragment struct {
	Source   string         `json:"source"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// KeywordsResponse describes how the server normalized and classified a query.
type KeywordsResponse struct {
	Tokens       []string `json:"tokens"`
	Intent       string   `json:"intent"`
	City         string   `json:"city,omitempty"`
	ProductQuery bool     `json:"productQuery"`
	Ranking      bool     `json:"ranking"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Code    string
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("knowledge api: %d %s: %s (%s)", e.Status, e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("knowledge api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusServiceUnavailable ||
		e.Status == http.StatusGatewayTimeout ||
		e.Status == http.StatusTooManyRequests
}

// Search retrieves knowledge fragments for a query.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	var resp SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/knowledge/search", req, &resp); err != nil {
		return nil, err
	}
	if resp.Fragments == nil {
		resp.Fragments = []Fragment{}
	}
	return &resp, nil
}

// Keywords returns the server's analysis of a query.
func (c *Client) Keywords(ctx context.Context, query string) (*KeywordsResponse, error) {
	var resp KeywordsResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/knowledge/keywords", map[string]string{"query": query}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the service health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type traceKey struct{}

// WithTraceID attaches a trace ID that is sent with every request made with ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	traceID, _ := ctx.Value(traceKey{}).(string)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	req.Header.Set(TraceHeader, traceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
		apiErr.Detail = body.Detail
		return apiErr
	}

	apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}
