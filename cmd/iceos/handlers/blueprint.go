package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iceos-ai/iceos/cmd/iceos/container"
	"github.com/iceos-ai/iceos/common/models"
)

// BlueprintHandler handles blueprint CRUD requests
type BlueprintHandler struct {
	container *container.Container
}

// NewBlueprintHandler creates a new blueprint handler
func NewBlueprintHandler(c *container.Container) *BlueprintHandler {
	return &BlueprintHandler{container: c}
}

// Create stores a new blueprint
// POST /api/v1/blueprints
func (h *BlueprintHandler) Create(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}

	record, err := h.container.BlueprintService.Create(c.Request().Context(), body, orgID(c))
	if err != nil {
		return fail(c, err)
	}
	setVersionHeader(c, record)
	return c.JSON(http.StatusCreated, record)
}

// Get retrieves a blueprint
// GET /api/v1/blueprints/:id
func (h *BlueprintHandler) Get(c echo.Context) error {
	record, err := h.container.BlueprintService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	setVersionHeader(c, record)
	return c.JSON(http.StatusOK, record)
}

// Update replaces a blueprint body under optimistic concurrency
// PUT /api/v1/blueprints/:id
func (h *BlueprintHandler) Update(c echo.Context) error {
	version, ok, err := expectedVersion(c)
	if !ok {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}

	record, err := h.container.BlueprintService.Update(c.Request().Context(), c.Param("id"), body, version)
	if err != nil {
		return fail(c, err)
	}
	setVersionHeader(c, record)
	return c.JSON(http.StatusOK, record)
}

// Patch applies an RFC 6902 patch to a blueprint
// PATCH /api/v1/blueprints/:id
func (h *BlueprintHandler) Patch(c echo.Context) error {
	version, ok, err := expectedVersion(c)
	if !ok {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}

	record, err := h.container.BlueprintService.Patch(c.Request().Context(), c.Param("id"), body, version)
	if err != nil {
		return fail(c, err)
	}
	setVersionHeader(c, record)
	return c.JSON(http.StatusOK, record)
}

// Delete removes a blueprint under optimistic concurrency
// DELETE /api/v1/blueprints/:id
func (h *BlueprintHandler) Delete(c echo.Context) error {
	version, ok, err := expectedVersion(c)
	if !ok {
		return err
	}
	if err := h.container.BlueprintService.Delete(c.Request().Context(), c.Param("id"), version); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func readBody(c echo.Context) (json.RawMessage, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, respondError(c, http.StatusBadRequest, "validation_failed", "unreadable request body")
	}
	if len(body) == 0 {
		return nil, respondError(c, http.StatusBadRequest, "validation_failed", "request body is required")
	}
	return body, nil
}

func setVersionHeader(c echo.Context, record *models.BlueprintRecord) {
	c.Response().Header().Set("ETag", strconv.FormatInt(record.LockVersion, 10))
}

// orgID reads the multi-tenant org header, when present
func orgID(c echo.Context) *string {
	if org := c.Request().Header.Get("X-Org-ID"); org != "" {
		return &org
	}
	return nil
}
