package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"modelgate/internal/assistants"
	"modelgate/internal/core"
)

// listResponse is the uniform list envelope.
type listResponse[T any] struct {
	Object  string  `json:"object"`
	Data    []T     `json:"data"`
	FirstID *string `json:"first_id"`
	LastID  *string `json:"last_id"`
	HasMore bool    `json:"has_more"`
}

func newListResponse[T any](items []T, id func(T) string, hasMore bool) *listResponse[T] {
	resp := &listResponse[T]{Object: "list", Data: items, HasMore: hasMore}
	if resp.Data == nil {
		resp.Data = []T{}
	}
	if len(items) > 0 {
		first, last := id(items[0]), id(items[len(items)-1])
		resp.FirstID, resp.LastID = &first, &last
	}
	return resp
}

// pageFromQuery parses the shared pagination query parameters.
func pageFromQuery(c echo.Context) (assistants.Page, error) {
	page := assistants.Page{
		After:  c.QueryParam("after"),
		Before: c.QueryParam("before"),
		Order:  c.QueryParam("order"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > assistants.MaxPageLimit {
			return page, core.NewInvalidRequestError("limit must be an integer between 1 and 100", err)
		}
		page.Limit = limit
	}
	if page.Order != "" && page.Order != "asc" && page.Order != "desc" {
		return page, core.NewInvalidRequestError("order must be \"asc\" or \"desc\"", nil)
	}
	return page, nil
}

type assistantRequest struct {
	Model          string             `json:"model"`
	Name           *string            `json:"name"`
	Description    *string            `json:"description"`
	Instructions   *string            `json:"instructions"`
	Tools          *[]assistants.Tool `json:"tools"`
	Metadata       map[string]string  `json:"metadata"`
	Temperature    *float64           `json:"temperature"`
	TopP           *float64           `json:"top_p"`
	ResponseFormat any                `json:"response_format"`
	ToolResources  map[string]any     `json:"tool_resources"`
}

// CreateAssistant handles POST /v1/assistants
func (h *Handler) CreateAssistant(c echo.Context) error {
	var req assistantRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if req.Model == "" {
		return handleError(c, core.NewValidationError("model is required"))
	}

	a := assistants.NewAssistant(req.Model)
	applyAssistantRequest(&a, req)

	if err := h.store.CreateAssistant(c.Request().Context(), a); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, &a)
}

// GetAssistant handles GET /v1/assistants/{id}
func (h *Handler) GetAssistant(c echo.Context) error {
	a, err := h.store.GetAssistant(c.Request().Context(), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// ListAssistants handles GET /v1/assistants
func (h *Handler) ListAssistants(c echo.Context) error {
	page, err := pageFromQuery(c)
	if err != nil {
		return handleError(c, err)
	}
	items, hasMore, err := h.store.ListAssistants(c.Request().Context(), page)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, newListResponse(items, func(a assistants.Assistant) string { return a.ID }, hasMore))
}

// ModifyAssistant handles POST /v1/assistants/{id}. Only supplied fields are
// overwritten; metadata merges key-wise.
func (h *Handler) ModifyAssistant(c echo.Context) error {
	var req assistantRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	ctx := c.Request().Context()
	a, err := h.store.GetAssistant(ctx, c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}

	if req.Model != "" {
		a.Model = req.Model
	}
	applyAssistantRequest(a, req)

	if err := h.store.UpdateAssistant(ctx, *a); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func applyAssistantRequest(a *assistants.Assistant, req assistantRequest) {
	if req.Name != nil {
		a.Name = req.Name
	}
	if req.Description != nil {
		a.Description = req.Description
	}
	if req.Instructions != nil {
		a.Instructions = req.Instructions
	}
	if req.Tools != nil {
		a.Tools = *req.Tools
	}
	if req.Temperature != nil {
		a.Temperature = req.Temperature
	}
	if req.TopP != nil {
		a.TopP = req.TopP
	}
	if req.ResponseFormat != nil {
		a.ResponseFormat = req.ResponseFormat
	}
	if req.ToolResources != nil {
		a.ToolResources = req.ToolResources
	}
	a.Metadata = mergeMeta(a.Metadata, req.Metadata)
}

func mergeMeta(base, patch map[string]string) map[string]string {
	if base == nil {
		base = map[string]string{}
	}
	for k, v := range patch {
		base[k] = v
	}
	return base
}

// DeleteAssistant handles DELETE /v1/assistants/{id}
func (h *Handler) DeleteAssistant(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.DeleteAssistant(c.Request().Context(), id); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, &assistants.DeletionStatus{ID: id, Object: "assistant.deleted", Deleted: true})
}

type messageRequest struct {
	Role     string            `json:"role"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

type threadRequest struct {
	Messages      []messageRequest  `json:"messages"`
	Metadata      map[string]string `json:"metadata"`
	ToolResources map[string]any    `json:"tool_resources"`
}

// CreateThread handles POST /v1/threads, optionally seeding initial messages.
func (h *Handler) CreateThread(c echo.Context) error {
	var req threadRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	th, err := h.createThread(c, req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, th)
}

func (h *Handler) createThread(c echo.Context, req threadRequest) (*assistants.Thread, error) {
	ctx := c.Request().Context()

	th := assistants.NewThread()
	th.Metadata = mergeMeta(th.Metadata, req.Metadata)
	th.ToolResources = req.ToolResources
	if err := h.store.CreateThread(ctx, th); err != nil {
		return nil, err
	}

	for _, mr := range req.Messages {
		if err := validateRole(mr.Role); err != nil {
			return nil, err
		}
		m := assistants.NewMessage(th.ID, mr.Role, mr.Content)
		m.Metadata = mergeMeta(m.Metadata, mr.Metadata)
		if err := h.store.CreateMessage(ctx, m); err != nil {
			return nil, err
		}
	}
	return &th, nil
}

func validateRole(role string) error {
	if role != assistants.RoleUser && role != assistants.RoleAssistant {
		return core.NewValidationError("role must be \"user\" or \"assistant\"")
	}
	return nil
}

// ListThreads handles GET /v1/threads
func (h *Handler) ListThreads(c echo.Context) error {
	page, err := pageFromQuery(c)
	if err != nil {
		return handleError(c, err)
	}
	items, hasMore, err := h.store.ListThreads(c.Request().Context(), page)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, newListResponse(items, func(th assistants.Thread) string { return th.ID }, hasMore))
}

// GetThread handles GET /v1/threads/{id}
func (h *Handler) GetThread(c echo.Context) error {
	th, err := h.store.GetThread(c.Request().Context(), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, th)
}

// ModifyThread handles POST /v1/threads/{id}
func (h *Handler) ModifyThread(c echo.Context) error {
	var req threadRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	ctx := c.Request().Context()
	th, err := h.store.GetThread(ctx, c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}

	th.Metadata = mergeMeta(th.Metadata, req.Metadata)
	if req.ToolResources != nil {
		th.ToolResources = req.ToolResources
	}
	if err := h.store.UpdateThread(ctx, *th); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, th)
}

// DeleteThread handles DELETE /v1/threads/{id}
func (h *Handler) DeleteThread(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.DeleteThread(c.Request().Context(), id); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, &assistants.DeletionStatus{ID: id, Object: "thread.deleted", Deleted: true})
}

// CreateMessage handles POST /v1/threads/{thread_id}/messages
func (h *Handler) CreateMessage(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if err := validateRole(req.Role); err != nil {
		return handleError(c, err)
	}
	if req.Content == "" {
		return handleError(c, core.NewValidationError("content is required"))
	}

	ctx := c.Request().Context()
	threadID := c.Param("thread_id")
	if _, err := h.store.GetThread(ctx, threadID); err != nil {
		return handleError(c, err)
	}

	m := assistants.NewMessage(threadID, req.Role, req.Content)
	m.Metadata = mergeMeta(m.Metadata, req.Metadata)
	if err := h.store.CreateMessage(ctx, m); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, &m)
}

// GetMessage handles GET /v1/threads/{thread_id}/messages/{id}
func (h *Handler) GetMessage(c echo.Context) error {
	m, err := h.store.GetMessage(c.Request().Context(), c.Param("thread_id"), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// ListMessages handles GET /v1/threads/{thread_id}/messages
func (h *Handler) ListMessages(c echo.Context) error {
	page, err := pageFromQuery(c)
	if err != nil {
		return handleError(c, err)
	}

	ctx := c.Request().Context()
	threadID := c.Param("thread_id")
	if _, err := h.store.GetThread(ctx, threadID); err != nil {
		return handleError(c, err)
	}

	items, hasMore, err := h.store.ListMessages(ctx, threadID, page)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, newListResponse(items, func(m assistants.Message) string { return m.ID }, hasMore))
}

// ModifyMessage handles POST /v1/threads/{thread_id}/messages/{id}.
// Completed messages only accept metadata changes.
func (h *Handler) ModifyMessage(c echo.Context) error {
	var req struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	ctx := c.Request().Context()
	m, err := h.store.GetMessage(ctx, c.Param("thread_id"), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}

	m.Metadata = mergeMeta(m.Metadata, req.Metadata)
	if err := h.store.UpdateMessage(ctx, *m); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

type runRequest struct {
	AssistantID  string            `json:"assistant_id"`
	Model        string            `json:"model"`
	Instructions *string           `json:"instructions"`
	Temperature  *float64          `json:"temperature"`
	Metadata     map[string]string `json:"metadata"`
	// Thread is only honored by the combined create-thread-and-run endpoint.
	Thread *threadRequest `json:"thread"`
}

// CreateRun handles POST /v1/threads/{thread_id}/runs. Execution is
// dispatched asynchronously; the response is the queued Run.
func (h *Handler) CreateRun(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	threadID := c.Param("thread_id")
	if _, err := h.store.GetThread(c.Request().Context(), threadID); err != nil {
		return handleError(c, err)
	}

	run, err := h.startRun(c, threadID, req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// CreateThreadAndRun handles POST /v1/threads/runs: create the thread, its
// seed messages and the run in one request.
func (h *Handler) CreateThreadAndRun(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	var threadReq threadRequest
	if req.Thread != nil {
		threadReq = *req.Thread
	}
	th, err := h.createThread(c, threadReq)
	if err != nil {
		return handleError(c, err)
	}

	run, err := h.startRun(c, th.ID, req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// startRun validates the referenced assistant, fills run defaults from it,
// persists the queued Run and hands it to the engine.
func (h *Handler) startRun(c echo.Context, threadID string, req runRequest) (*assistants.Run, error) {
	if req.AssistantID == "" {
		return nil, core.NewValidationError("assistant_id is required")
	}

	ctx := c.Request().Context()
	a, err := h.store.GetAssistant(ctx, req.AssistantID)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = a.Model
	}
	instructions := ""
	if a.Instructions != nil {
		instructions = *a.Instructions
	}
	if req.Instructions != nil {
		instructions = *req.Instructions
	}

	run := assistants.NewRun(threadID, a.ID, model, instructions)
	run.Temperature = req.Temperature
	if run.Temperature == nil {
		run.Temperature = a.Temperature
	}
	run.Metadata = mergeMeta(run.Metadata, req.Metadata)

	if err := h.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	h.engine.Dispatch(run)
	return &run, nil
}

// GetRun handles GET /v1/threads/{thread_id}/runs/{id}
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.store.GetRun(c.Request().Context(), c.Param("thread_id"), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// ListRuns handles GET /v1/threads/{thread_id}/runs
func (h *Handler) ListRuns(c echo.Context) error {
	page, err := pageFromQuery(c)
	if err != nil {
		return handleError(c, err)
	}
	items, hasMore, err := h.store.ListRuns(c.Request().Context(), c.Param("thread_id"), page)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, newListResponse(items, func(r assistants.Run) string { return r.ID }, hasMore))
}

// CancelRun handles POST /v1/threads/{thread_id}/runs/{id}/cancel
func (h *Handler) CancelRun(c echo.Context) error {
	run, err := h.engine.Cancel(c.Request().Context(), c.Param("thread_id"), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}
