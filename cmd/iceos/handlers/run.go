package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iceos-ai/iceos/cmd/iceos/container"
	"github.com/iceos-ai/iceos/cmd/iceos/service"
)

// RunHandler handles run lifecycle requests
type RunHandler struct {
	container *container.Container
}

// NewRunHandler creates a new run handler
func NewRunHandler(c *container.Container) *RunHandler {
	return &RunHandler{container: c}
}

// Start launches a run from a stored or inline blueprint
// POST /api/v1/runs
func (h *RunHandler) Start(c echo.Context) error {
	var req service.StartRunRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "validation_failed", "malformed request body")
	}
	if org := c.Request().Header.Get("X-Org-ID"); org != "" && req.Identity.OrgID == "" {
		req.Identity.OrgID = org
	}

	exec, err := h.container.RunService.Start(c.Request().Context(), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, exec)
}

// Get returns the run record with its terminal summary once finished
// GET /api/v1/runs/:id
func (h *RunHandler) Get(c echo.Context) error {
	exec, err := h.container.RunService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, exec)
}

// Cancel requests cooperative cancellation
// POST /api/v1/runs/:id/cancel
func (h *RunHandler) Cancel(c echo.Context) error {
	if err := h.container.RunService.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"run_id": c.Param("id"),
		"status": "cancel_requested",
	})
}
