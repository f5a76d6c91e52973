package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/flowmesh/flowmesh/cmd/flowd/container"
	"github.com/flowmesh/flowmesh/cmd/flowd/routes"
	"github.com/flowmesh/flowmesh/common/bootstrap"
	"github.com/flowmesh/flowmesh/common/middleware"
	"github.com/flowmesh/flowmesh/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, stores, redis, log pipeline)
	components, err := bootstrap.Setup(ctx, "flowd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap flowd: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (registry, executor, rate limiters)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e, serviceContainer)
	setupHealthCheck(e, serviceContainer)
	registerRoutes(e, serviceContainer)

	startServer(e, serviceContainer)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(echomw.RequestID())

	// API rate limiting needs Redis; without it the API runs unthrottled.
	if c.APILimiter != nil {
		limit := c.Components.Config.Engine.APIRateLimit
		e.Use(middleware.GlobalRateLimitMiddleware(c.APILimiter, limit))
		e.Use(middleware.ClientRateLimitMiddleware(c.APILimiter, limit))
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/health", func(ec echo.Context) error {
		if err := c.Components.Health(ec.Request().Context()); err != nil {
			return ec.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return ec.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "flowd",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, c *container.Container) {
	routes.RegisterWorkflowRoutes(e, c)
	routes.RegisterExecutionRoutes(e, c)
}

// startServer starts the HTTP server with graceful shutdown
func startServer(e *echo.Echo, c *container.Container) {
	srv := server.New("flowd", c.Components.Config.Service.Port, e, c.Components.Logger)
	srv.OnShutdown(func(ctx context.Context) {
		c.Executor.CancelAll()
	})

	if err := srv.Start(); err != nil {
		c.Components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
