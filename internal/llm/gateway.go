// Package llm sends chat requests to the configured provider and resolves
// friendly model names against its model list.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/orcascore/internal/metrics"
	"github.com/ashureev/orcascore/internal/provider"
	"github.com/google/uuid"
)

// maxResponseSize bounds provider response bodies.
const maxResponseSize = 10 * 1024 * 1024

// DefaultTimeout leaves room for long tool-use completions.
const DefaultTimeout = 180 * time.Second

// ChatRequest is one call to the messages endpoint.
type ChatRequest struct {
	Model     string            `json:"model"`
	Messages  []Message         `json:"messages"`
	System    string            `json:"system,omitempty"`
	MaxTokens int               `json:"max_tokens"`
	Tools     []json.RawMessage `json:"tools,omitempty"`
}

// Gateway talks to whichever provider the settings currently select. The
// provider configuration is loaded on every call.
type Gateway struct {
	settings   provider.SettingsReader
	lookupEnv  provider.LookupEnv
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithLookupEnv overrides environment lookups for credential fallbacks.
func WithLookupEnv(fn provider.LookupEnv) Option {
	return func(g *Gateway) {
		g.lookupEnv = fn
	}
}

// WithMetrics records request outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// NewGateway creates a gateway reading provider settings from settings.
func NewGateway(settings provider.SettingsReader, opts ...Option) *Gateway {
	g := &Gateway{
		settings:   settings,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Send posts req to the provider's messages endpoint and returns the raw
// response body. req.Model must already be a full model id.
func (g *Gateway) Send(ctx context.Context, req ChatRequest) (string, error) {
	cfg, err := provider.Load(ctx, g.settings, g.lookupEnv)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	requestID := uuid.New().String()
	start := time.Now()

	g.logger.Debug("Sending LLM request",
		"request_id", requestID,
		"provider", cfg.Kind(),
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools))

	resp, err := g.do(ctx, http.MethodPost, cfg.Endpoint(), cfg, body)
	if err != nil {
		err = NewTransientError(fmt.Errorf("request failed: %w", err))
		g.finish("send", requestID, start, err)
		return "", err
	}
	if resp.status < 200 || resp.status >= 300 {
		err = classifyStatus(resp.status, &APIError{StatusCode: resp.status, Body: resp.text})
		g.finish("send", requestID, start, err)
		return "", err
	}

	g.finish("send", requestID, start, nil)
	return resp.text, nil
}

// SendChat resolves req.Model from a friendly name to a full id, then sends.
func (g *Gateway) SendChat(ctx context.Context, req ChatRequest) (string, error) {
	resolved, err := g.ResolveModelID(ctx, req.Model)
	if err != nil {
		return "", err
	}
	if resolved != req.Model {
		g.logger.Debug("Resolved model", "model", req.Model, "resolved", resolved)
	}
	req.Model = resolved
	return g.Send(ctx, req)
}

// TestConnection checks credentials and endpoint by listing models.
func (g *Gateway) TestConnection(ctx context.Context) error {
	cfg, err := provider.Load(ctx, g.settings, g.lookupEnv)
	if err != nil {
		return err
	}

	start := time.Now()
	requestID := uuid.New().String()

	resp, err := g.do(ctx, http.MethodGet, cfg.ModelsEndpoint(), cfg, nil)
	if err != nil {
		err = NewTransientError(fmt.Errorf("connection failed: %w", err))
		g.finish("test_connection", requestID, start, err)
		return err
	}
	if resp.status < 200 || resp.status >= 300 {
		err = classifyStatus(resp.status, errors.New(connectionErrorMessage(resp.status, resp.text)))
		g.finish("test_connection", requestID, start, err)
		return err
	}

	g.finish("test_connection", requestID, start, nil)
	return nil
}

func connectionErrorMessage(status int, body string) string {
	switch status {
	case http.StatusUnauthorized:
		return "Authentication failed. Check your API key."
	case http.StatusForbidden:
		return "Access denied. Your API key may lack the required permissions."
	case http.StatusNotFound:
		return "Endpoint not found. Check the base URL for your provider."
	default:
		return fmt.Sprintf("API returned an error (HTTP %d): %s", status, body)
	}
}

// AvailableModels lists the provider's models with friendly names.
func (g *Gateway) AvailableModels(ctx context.Context) ([]provider.ModelInfo, error) {
	cfg, err := provider.Load(ctx, g.settings, g.lookupEnv)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	requestID := uuid.New().String()

	resp, err := g.do(ctx, http.MethodGet, cfg.ModelsEndpoint(), cfg, nil)
	if err != nil {
		err = NewTransientError(fmt.Errorf("failed to fetch models: %w", err))
		g.finish("models", requestID, start, err)
		return nil, err
	}
	if resp.status < 200 || resp.status >= 300 {
		err = classifyStatus(resp.status, fmt.Errorf("Models API error (%d): %s", resp.status, resp.text))
		g.finish("models", requestID, start, err)
		return nil, err
	}

	models, err := provider.ParseModels(cfg.Kind(), []byte(resp.text))
	if err != nil {
		err = NewFatalError(err)
		g.finish("models", requestID, start, err)
		return nil, err
	}

	g.finish("models", requestID, start, nil)
	return models, nil
}

// ResolveModelID maps a friendly model name to the first matching full id.
// Names with no match are returned unchanged.
func (g *Gateway) ResolveModelID(ctx context.Context, friendly string) (string, error) {
	models, err := g.AvailableModels(ctx)
	if err != nil {
		return "", err
	}
	return provider.ResolveModelID(models, friendly), nil
}

type rawResponse struct {
	status int
	text   string
}

func (g *Gateway) do(ctx context.Context, method, url string, cfg provider.Config, body []byte) (*rawResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("content-type", "application/json")
	}
	for k, v := range cfg.Headers() {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &rawResponse{status: httpResp.StatusCode, text: string(respBody)}, nil
}

func (g *Gateway) finish(operation, requestID string, start time.Time, err error) {
	elapsed := time.Since(start)
	g.metrics.ObserveLLMRequest(operation, outcome(err), elapsed)
	if err != nil {
		g.logger.Warn("LLM request failed",
			"request_id", requestID,
			"operation", operation,
			"transient", IsTransient(err),
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
		return
	}
	g.logger.Debug("LLM request completed",
		"request_id", requestID,
		"operation", operation,
		"duration_ms", elapsed.Milliseconds())
}
