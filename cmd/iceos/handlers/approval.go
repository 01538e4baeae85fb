package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iceos-ai/iceos/cmd/iceos/approval"
	"github.com/iceos-ai/iceos/cmd/iceos/container"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// ApprovalHandler handles human-in-the-loop approval requests
type ApprovalHandler struct {
	container *container.Container
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(c *container.Container) *ApprovalHandler {
	return &ApprovalHandler{container: c}
}

// List returns approvals waiting on a decision for a run
// GET /api/v1/runs/:id/approvals
func (h *ApprovalHandler) List(c echo.Context) error {
	pending := h.container.RunService.PendingApprovals(c.Param("id"))
	if pending == nil {
		pending = []approval.Pending{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id":  c.Param("id"),
		"pending": pending,
	})
}

type resolveRequest struct {
	Approved bool   `json:"approved"`
	Decider  string `json:"decider,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// Resolve delivers a human decision to a waiting node
// POST /api/v1/runs/:id/approvals/:node_id
func (h *ApprovalHandler) Resolve(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "validation_failed", "malformed request body")
	}

	err := h.container.RunService.ResolveApproval(c.Param("id"), c.Param("node_id"), approval.Decision{
		Approved: req.Approved,
		Decider:  req.Decider,
		Comment:  req.Comment,
	})
	if err != nil {
		if sdk.KindOf(err) == sdk.ErrValidation {
			return respondError(c, http.StatusNotFound, "not_found", err.Error())
		}
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id":   c.Param("id"),
		"node_id":  c.Param("node_id"),
		"approved": req.Approved,
	})
}
