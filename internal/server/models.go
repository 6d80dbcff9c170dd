package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"modelgate/config"
	"modelgate/internal/core"
	"modelgate/internal/registry"
)

// catalog tracks in-process model exclusions. DELETE /v1/models/{id} hides a
// model from the catalog for the lifetime of the process; nothing upstream
// is touched.
type catalog struct {
	mu       sync.RWMutex
	excluded map[string]bool
	started  int64
}

func newCatalog() *catalog {
	return &catalog{excluded: make(map[string]bool), started: time.Now().Unix()}
}

func (ct *catalog) exclude(id string) {
	ct.mu.Lock()
	ct.excluded[id] = true
	ct.mu.Unlock()
}

func (ct *catalog) hidden(id string) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.excluded[id]
}

// ListModels handles GET /v1/models. Static mode serves the configured
// clients' frozen catalogs; agent mode serves the discovery registry.
func (h *Handler) ListModels(c echo.Context) error {
	models, err := h.catalogModels(c)
	if err != nil {
		return handleError(c, err)
	}

	visible := make([]core.Model, 0, len(models))
	for _, m := range models {
		if !h.catalog.hidden(m.ID) {
			visible = append(visible, m)
		}
	}
	return c.JSON(http.StatusOK, &core.ModelsResponse{Object: "list", Data: visible})
}

// GetModel handles GET /v1/models/{id}
func (h *Handler) GetModel(c echo.Context) error {
	id := c.Param("id")
	if h.catalog.hidden(id) {
		return handleError(c, core.NewModelNotFoundError(id))
	}

	if h.mode == config.ModeAgent {
		rec, err := h.discovery.Retrieve(c.Request().Context(), id)
		if err != nil {
			return handleError(c, core.NewModelNotFoundError(id))
		}
		return c.JSON(http.StatusOK, rec)
	}

	for _, m := range h.resolver.CatalogModels(h.catalog.started) {
		if m.ID == id {
			return c.JSON(http.StatusOK, &m)
		}
	}
	return handleError(c, core.NewModelNotFoundError(id))
}

// DeleteModel handles DELETE /v1/models/{id}
func (h *Handler) DeleteModel(c echo.Context) error {
	id := c.Param("id")

	models, err := h.catalogModels(c)
	if err != nil {
		return handleError(c, err)
	}
	known := false
	for _, m := range models {
		if m.ID == id && !h.catalog.hidden(id) {
			known = true
			break
		}
	}
	if !known {
		return handleError(c, core.NewModelNotFoundError(id))
	}

	h.catalog.exclude(id)
	return c.JSON(http.StatusOK, &core.ModelDeleteResponse{ID: id, Object: "model", Deleted: true})
}

// RegisterModel handles POST /v1/models/register, the discovery service's
// registration endpoint used by heartbeat publishers.
func (h *Handler) RegisterModel(c echo.Context) error {
	if h.discovery == nil {
		return handleError(c, core.NewNotFoundError("model registration is not enabled"))
	}

	var rec core.Model
	if err := c.Bind(&rec); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	registered, err := h.discovery.Register(c.Request().Context(), rec)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, registered)
}

func (h *Handler) catalogModels(c echo.Context) ([]core.Model, error) {
	if h.mode == config.ModeAgent {
		return h.discovery.List(c.Request().Context(), registry.ListFilter{Limit: 1000})
	}
	return h.resolver.CatalogModels(h.catalog.started), nil
}
