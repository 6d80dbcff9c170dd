// Package core defines the core interfaces and types for the LLM gateway.
package core

import (
	"context"
	"io"
	"net/http"
)

// ChatClient is the minimal capability needed to drive a Run to completion.
// The run execution engine depends on this rather than the full Provider.
type ChatClient interface {
	// ChatCompletion executes a chat completion request
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// Provider defines the interface for upstream LLM providers
type Provider interface {
	ChatClient

	// StreamChatCompletion returns a raw SSE stream (caller must close)
	StreamChatCompletion(ctx context.Context, req *ChatRequest) (io.ReadCloser, error)

	// Completion executes a legacy text completion request
	Completion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// StreamCompletion returns a raw SSE stream for text completion (caller must close)
	StreamCompletion(ctx context.Context, req *CompletionRequest) (io.ReadCloser, error)

	// Embeddings sends an embeddings request to the provider
	Embeddings(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)

	// Moderations sends a content moderation request to the provider
	Moderations(ctx context.Context, req *ModerationRequest) (*ModerationResponse, error)

	// ListModels returns the list of available models
	ListModels(ctx context.Context) (*ModelsResponse, error)

	// Forward relays an opaque request body (images, audio, multipart uploads)
	// to the provider endpoint and returns the raw response. The caller owns
	// the response body.
	Forward(ctx context.Context, endpoint, contentType string, body io.Reader) (*http.Response, error)
}
