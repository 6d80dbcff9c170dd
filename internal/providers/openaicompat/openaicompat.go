// Package openaicompat provides a provider client for any upstream exposing
// an OpenAI-compatible REST surface. Every configured organization is reached
// through one of these, differing only in base URL and auth headers.
package openaicompat

import (
	"context"
	"io"
	"net/http"

	"modelgate/internal/core"
	"modelgate/internal/llmclient"
)

// AuthStyle selects how credentials are attached to upstream requests.
type AuthStyle int

const (
	// AuthBearer sends "Authorization: Bearer <key>" (OpenAI convention).
	AuthBearer AuthStyle = iota
	// AuthAPIKeyHeader sends "x-api-key: <key>" (Anthropic convention).
	AuthAPIKeyHeader
)

// Options configures a provider instance.
type Options struct {
	// Name identifies the provider in error messages and logs.
	Name string
	// BaseURL is the upstream API base, e.g. "https://api.openai.com/v1".
	BaseURL string
	// APIKey is attached per AuthStyle. May be empty for local backends.
	APIKey string
	// AuthStyle defaults to AuthBearer.
	AuthStyle AuthStyle
	// ExtraHeaders are set verbatim on every request.
	ExtraHeaders map[string]string
	// HTTPClient overrides the default pooled client (used by tests).
	HTTPClient *http.Client
}

// Provider implements core.Provider over an OpenAI-compatible HTTP API.
type Provider struct {
	opts   Options
	client *llmclient.Client
}

// New creates a provider for the given upstream.
func New(opts Options) *Provider {
	p := &Provider{opts: opts}
	cfg := llmclient.Config{
		ProviderName: opts.Name,
		BaseURL:      opts.BaseURL,
	}
	p.client = llmclient.NewWithHTTPClient(opts.HTTPClient, cfg, p.setHeaders)
	return p
}

// Name returns the provider name used in errors and logs.
func (p *Provider) Name() string { return p.opts.Name }

// SetBaseURL allows configuring a custom base URL for the provider
func (p *Provider) SetBaseURL(url string) {
	p.client.SetBaseURL(url)
}

// setHeaders sets the required headers for upstream requests
func (p *Provider) setHeaders(req *http.Request) {
	if p.opts.APIKey != "" {
		switch p.opts.AuthStyle {
		case AuthAPIKeyHeader:
			req.Header.Set("x-api-key", p.opts.APIKey)
		default:
			req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)
		}
	}
	for k, v := range p.opts.ExtraHeaders {
		req.Header.Set(k, v)
	}
}

// ChatCompletion sends a chat completion request to the upstream
func (p *Provider) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	var resp core.ChatResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return &resp, nil
}

// StreamChatCompletion returns a raw SSE body for streaming (caller must close)
func (p *Provider) StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (io.ReadCloser, error) {
	return p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     req.WithStreaming(),
	})
}

// Completion sends a legacy text completion request to the upstream
func (p *Provider) Completion(ctx context.Context, req *core.CompletionRequest) (*core.CompletionResponse, error) {
	var resp core.CompletionResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/completions",
		Body:     req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamCompletion returns a raw SSE body for text completion streaming
func (p *Provider) StreamCompletion(ctx context.Context, req *core.CompletionRequest) (io.ReadCloser, error) {
	return p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/completions",
		Body:     req.WithStreaming(),
	})
}

// Embeddings sends an embeddings request to the upstream
func (p *Provider) Embeddings(ctx context.Context, req *core.EmbeddingRequest) (*core.EmbeddingResponse, error) {
	var resp core.EmbeddingResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/embeddings",
		Body:     req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Moderations sends a content moderation request to the upstream
func (p *Provider) Moderations(ctx context.Context, req *core.ModerationRequest) (*core.ModerationResponse, error) {
	var resp core.ModerationResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/moderations",
		Body:     req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListModels retrieves the list of available models from the upstream
func (p *Provider) ListModels(ctx context.Context) (*core.ModelsResponse, error) {
	var resp core.ModelsResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Forward relays an opaque request body to the upstream endpoint.
func (p *Provider) Forward(ctx context.Context, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	return p.client.Forward(ctx, endpoint, contentType, body)
}
