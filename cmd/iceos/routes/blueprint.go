// Package routes maps URLs onto handlers. One file per resource.
package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/iceos-ai/iceos/cmd/iceos/container"
	"github.com/iceos-ai/iceos/cmd/iceos/handlers"
)

// RegisterBlueprintRoutes registers blueprint CRUD routes
func RegisterBlueprintRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewBlueprintHandler(c)

	blueprints := e.Group("/api/v1/blueprints")
	{
		blueprints.POST("", h.Create)       // POST   /api/v1/blueprints
		blueprints.GET("/:id", h.Get)       // GET    /api/v1/blueprints/{id}
		blueprints.PUT("/:id", h.Update)    // PUT    /api/v1/blueprints/{id}
		blueprints.PATCH("/:id", h.Patch)   // PATCH  /api/v1/blueprints/{id}
		blueprints.DELETE("/:id", h.Delete) // DELETE /api/v1/blueprints/{id}
	}
}
