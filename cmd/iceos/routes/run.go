package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/iceos-ai/iceos/cmd/iceos/container"
	"github.com/iceos-ai/iceos/cmd/iceos/handlers"
)

// RegisterRunRoutes registers run lifecycle, event, and approval routes
func RegisterRunRoutes(e *echo.Echo, c *container.Container) {
	runs := handlers.NewRunHandler(c)
	events := handlers.NewEventHandler(c)
	approvals := handlers.NewApprovalHandler(c)

	group := e.Group("/api/v1/runs")
	{
		// Lifecycle
		group.POST("", runs.Start)
		group.GET("/:id", runs.Get)
		group.POST("/:id/cancel", runs.Cancel)

		// Event log: JSON page or live SSE stream
		group.GET("/:id/events", events.List)
		group.GET("/:id/events/stream", events.Stream)

		// Human-in-the-loop approvals
		group.GET("/:id/approvals", approvals.List)
		group.POST("/:id/approvals/:node_id", approvals.Resolve)
	}
}
