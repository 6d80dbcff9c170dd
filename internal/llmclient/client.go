// Package llmclient provides a base HTTP client for upstream LLM providers:
// request marshaling/unmarshaling, standardized error parsing, response
// decompression, and raw SSE stream access.
package llmclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"

	"modelgate/internal/core"
	"modelgate/internal/httpclient"
)

// HeaderSetter is a function that sets headers on an HTTP request
type HeaderSetter func(req *http.Request)

// Config holds configuration for the LLM client
type Config struct {
	// ProviderName identifies the provider for error messages
	ProviderName string

	// BaseURL is the API base URL
	BaseURL string
}

// Client is a base HTTP client for LLM providers
type Client struct {
	httpClient   *http.Client
	config       Config
	headerSetter HeaderSetter
}

// New creates a new LLM client with the given configuration
func New(config Config, headerSetter HeaderSetter) *Client {
	return NewWithHTTPClient(httpclient.NewDefaultHTTPClient(), config, headerSetter)
}

// NewWithHTTPClient creates a new LLM client with a custom HTTP client
func NewWithHTTPClient(httpClient *http.Client, config Config, headerSetter HeaderSetter) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewDefaultHTTPClient()
	}
	return &Client{
		httpClient:   httpClient,
		config:       config,
		headerSetter: headerSetter,
	}
}

// SetBaseURL updates the base URL
func (c *Client) SetBaseURL(url string) {
	c.config.BaseURL = strings.TrimRight(url, "/")
}

// BaseURL returns the current base URL
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Request represents an HTTP request to be made
type Request struct {
	Method   string
	Endpoint string
	Body     interface{} // Will be JSON marshaled if not nil
	Headers  map[string]string
}

// Do executes a request and unmarshals the JSON response into result.
func (c *Client) Do(ctx context.Context, req Request, result interface{}) error {
	httpResp, err := c.send(ctx, req, "")
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	body, err := decodeBody(httpResp)
	if err != nil {
		return core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to read response: "+err.Error(), err)
	}

	if httpResp.StatusCode >= 400 {
		return core.ParseProviderError(c.config.ProviderName, httpResp.StatusCode, body, nil)
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to unmarshal response: "+err.Error(), err)
		}
	}
	return nil
}

// DoStream executes a request and returns the raw response body for SSE
// consumption. The caller must close the returned reader. Error responses are
// drained and translated before returning.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	httpResp, err := c.send(ctx, req, "text/event-stream")
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode >= 400 {
		body, readErr := decodeBody(httpResp)
		httpResp.Body.Close()
		if readErr != nil {
			body = []byte(readErr.Error())
		}
		return nil, core.ParseProviderError(c.config.ProviderName, httpResp.StatusCode, body, nil)
	}

	return httpResp.Body, nil
}

// Forward relays an opaque body to the provider endpoint without touching it.
// Used for multipart uploads and binary responses (images, audio). The caller
// owns the returned response.
func (c *Client) Forward(ctx context.Context, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+endpoint, body)
	if err != nil {
		return nil, core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to create request: "+err.Error(), err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.headerSetter != nil {
		c.headerSetter(httpReq)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "request failed: "+err.Error(), err)
	}
	return httpResp, nil
}

func (c *Client) send(ctx context.Context, req Request, accept string) (*http.Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, core.NewInvalidRequestError("failed to marshal request: "+err.Error(), err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+req.Endpoint, bodyReader)
	if err != nil {
		return nil, core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to create request: "+err.Error(), err)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	} else {
		httpReq.Header.Set("Accept-Encoding", "gzip, br")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if c.headerSetter != nil {
		c.headerSetter(httpReq)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "request failed: "+err.Error(), err)
	}
	return httpResp, nil
}

// decodeBody reads the full response body, transparently decompressing
// gzip and brotli encodings.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	return io.ReadAll(reader)
}
