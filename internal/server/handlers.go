// Package server provides HTTP handlers and server setup for the gateway.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"modelgate/config"
	"modelgate/internal/assistants"
	"modelgate/internal/core"
	"modelgate/internal/llmclient"
	"modelgate/internal/organizations"
	"modelgate/internal/registry"
)

// Handler holds the HTTP handlers and their collaborators.
type Handler struct {
	mode      string
	resolver  *organizations.Resolver
	discovery *registry.Service
	// window is the freshness cutoff for agent-mode candidates, derived
	// from the registration period.
	window time.Duration
	store  assistants.Store
	engine *assistants.Engine

	catalog *catalog

	// pick selects among n fresh candidates. Replaced in tests.
	pick func(n int) int
}

// Deps carries the subsystems the handlers route to.
type Deps struct {
	Mode        string
	Resolver    *organizations.Resolver
	Discovery   *registry.Service
	FreshWindow time.Duration
	Store       assistants.Store
	Engine      *assistants.Engine
}

// NewHandler creates a handler for the given deployment mode.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		mode:      deps.Mode,
		resolver:  deps.Resolver,
		discovery: deps.Discovery,
		window:    deps.FreshWindow,
		store:     deps.Store,
		engine:    deps.Engine,
		catalog:   newCatalog(),
		pick:      rand.IntN,
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "mode": h.mode})
}

// ChatCompletion handles POST /v1/chat/completions
func (h *Handler) ChatCompletion(c echo.Context) error {
	if h.mode == config.ModeAgent {
		return h.forwardToCandidate(c, "/chat/completions")
	}

	var req core.ChatRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if req.Model == "" {
		return handleError(c, core.NewValidationError("model is required"))
	}

	client, modelID, err := h.resolver.ClientForModel(req.Model)
	if err != nil {
		return handleError(c, err)
	}

	if req.Stream {
		stream, err := client.Provider.StreamChatCompletion(c.Request().Context(), req.WithModel(modelID))
		if err != nil {
			return handleError(c, err)
		}
		return relayStream(c, stream)
	}

	resp, err := client.Provider.ChatCompletion(c.Request().Context(), req.WithModel(modelID))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Completion handles POST /v1/completions
func (h *Handler) Completion(c echo.Context) error {
	if h.mode == config.ModeAgent {
		return h.forwardToCandidate(c, "/completions")
	}

	var req core.CompletionRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if req.Model == "" {
		return handleError(c, core.NewValidationError("model is required"))
	}

	client, modelID, err := h.resolver.ClientForModel(req.Model)
	if err != nil {
		return handleError(c, err)
	}

	if req.Stream {
		stream, err := client.Provider.StreamCompletion(c.Request().Context(), req.WithModel(modelID))
		if err != nil {
			return handleError(c, err)
		}
		return relayStream(c, stream)
	}

	resp, err := client.Provider.Completion(c.Request().Context(), req.WithModel(modelID))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Embeddings handles POST /v1/embeddings
func (h *Handler) Embeddings(c echo.Context) error {
	if h.mode == config.ModeAgent {
		return h.forwardToCandidate(c, "/embeddings")
	}

	var req core.EmbeddingRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if req.Model == "" {
		return handleError(c, core.NewValidationError("model is required"))
	}

	client, modelID, err := h.resolver.ClientForModel(req.Model)
	if err != nil {
		return handleError(c, err)
	}
	req.Model = modelID

	resp, err := client.Provider.Embeddings(c.Request().Context(), &req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Moderations handles POST /v1/moderations
func (h *Handler) Moderations(c echo.Context) error {
	if h.mode == config.ModeAgent {
		return h.forwardToCandidate(c, "/moderations")
	}

	var req core.ModerationRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	client, modelID, err := h.routeClient(c, req.Model)
	if err != nil {
		return handleError(c, err)
	}
	if modelID != "" {
		req.Model = modelID
	}

	resp, err := client.Provider.Moderations(c.Request().Context(), &req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ForwardOpaque handles image and audio endpoints: the body (JSON or
// multipart) is relayed untouched and the upstream response streamed back.
func (h *Handler) ForwardOpaque(endpoint string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.mode == config.ModeAgent {
			return h.forwardToCandidate(c, endpoint)
		}

		client, _, err := h.routeClient(c, "")
		if err != nil {
			return handleError(c, err)
		}

		resp, err := client.Provider.Forward(c.Request().Context(), endpoint,
			c.Request().Header.Get(echo.HeaderContentType), c.Request().Body)
		if err != nil {
			return handleError(c, err)
		}
		defer resp.Body.Close()

		return c.Stream(resp.StatusCode, resp.Header.Get(echo.HeaderContentType), resp.Body)
	}
}

// routeClient picks the upstream client: by model when one is supplied (in
// the body or as a query parameter), by the org query-parameter alias for
// opaque bodies, else the first configured client.
func (h *Handler) routeClient(c echo.Context, model string) (*organizations.Client, string, error) {
	if model == "" {
		model = c.QueryParam("model")
	}
	if model != "" {
		return h.resolver.ClientForModel(model)
	}
	if org := c.QueryParam("org"); org != "" {
		client, err := h.resolver.ClientForOrg(org)
		return client, "", err
	}
	client, err := h.resolver.DefaultClient()
	return client, "", err
}

// forwardToCandidate implements agent-mode routing: query the discovery
// service for fresh announcers of the requested model, pick one uniformly at
// random and forward the raw body to its announced base URL. No retry with a
// different candidate happens on failure.
func (h *Handler) forwardToCandidate(c echo.Context, endpoint string) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("failed to read request body: "+err.Error(), err))
	}

	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		model = c.QueryParam("model")
	}
	if model == "" {
		return handleError(c, core.NewValidationError("model is required"))
	}

	candidates, err := h.discovery.Fresh(c.Request().Context(), model, h.window)
	if err != nil {
		return handleError(c, err)
	}
	if len(candidates) == 0 {
		return handleError(c, core.NewModelNotFoundError(model))
	}
	target := candidates[h.pick(len(candidates))]

	client := llmclient.New(llmclient.Config{
		ProviderName: "agent",
		BaseURL:      strings.TrimRight(target.OwnedBy, "/"),
	}, nil)

	if gjson.GetBytes(body, "stream").Bool() {
		stream, err := client.DoStream(c.Request().Context(), llmclient.Request{
			Endpoint: endpoint,
			Body:     json.RawMessage(body),
		})
		if err != nil {
			return handleError(c, err)
		}
		return relayStream(c, stream)
	}

	resp, err := client.Forward(c.Request().Context(), endpoint,
		c.Request().Header.Get(echo.HeaderContentType), bytes.NewReader(body))
	if err != nil {
		return handleError(c, err)
	}
	defer resp.Body.Close()

	return c.Stream(resp.StatusCode, resp.Header.Get(echo.HeaderContentType), resp.Body)
}

// handleError converts gateway errors to structured HTTP responses.
func handleError(c echo.Context, err error) error {
	if errors.Is(err, assistants.ErrNotFound) || errors.Is(err, registry.ErrNotFound) {
		notFound := core.NewNotFoundError("no record found for the given id")
		return c.JSON(notFound.HTTPStatusCode(), notFound.ToJSON())
	}

	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return c.JSON(gatewayErr.HTTPStatusCode(), gatewayErr.ToJSON())
	}

	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
