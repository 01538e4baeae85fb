package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/iceos-ai/iceos/cmd/iceos/container"
	"github.com/iceos-ai/iceos/cmd/iceos/routes"
	"github.com/iceos-ai/iceos/common/bootstrap"
	iceosmiddleware "github.com/iceos-ai/iceos/common/middleware"
	"github.com/iceos-ai/iceos/common/ratelimit"
	"github.com/iceos-ai/iceos/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, stores, redis, cache)
	components, err := bootstrap.Setup(ctx, "iceos")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap iceos: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize the engine container (singleton pattern - registry and
	// services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Initialize Echo server
	e := setupEcho()

	// Setup middleware
	setupMiddleware(e, serviceContainer)

	// Setup health check
	setupHealthCheck(e, components)

	// Register all routes
	registerRoutes(e, serviceContainer)

	// Start server
	startServer(e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, serviceContainer *container.Container) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	if serviceContainer.RateLimiter != nil {
		e.Use(iceosmiddleware.GlobalRateLimit(serviceContainer.RateLimiter, ratelimit.DefaultGlobalConfig.Limit))
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "iceos",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterBlueprintRoutes(e, serviceContainer)
	routes.RegisterRunRoutes(e, serviceContainer)
}

// startServer runs the HTTP server with graceful shutdown
func startServer(e *echo.Echo, components *bootstrap.Components) {
	port := components.Config.Service.Port
	components.Logger.Info("starting iceos", "port", port, "mode", components.Config.Engine.RuntimeMode)

	srv := server.New("iceos", port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
