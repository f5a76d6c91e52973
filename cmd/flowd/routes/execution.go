package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/flowmesh/flowmesh/cmd/flowd/container"
	"github.com/flowmesh/flowmesh/cmd/flowd/handlers"
)

// RegisterExecutionRoutes registers execution lifecycle routes
func RegisterExecutionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewExecutionHandler(c)

	workflows := e.Group("/api/v1/workflows")
	{
		workflows.POST("/:id/execute", h.Execute)         // POST /api/v1/workflows/{id}/execute
		workflows.POST("/:id/executions", h.ExecuteAsync) // POST /api/v1/workflows/{id}/executions
		workflows.GET("/:id/executions", h.ListExecutions)
	}

	executions := e.Group("/api/v1/executions")
	{
		executions.GET("/:id", h.GetExecution)            // GET  /api/v1/executions/{id}
		executions.POST("/:id/cancel", h.CancelExecution) // POST /api/v1/executions/{id}/cancel
		executions.GET("/:id/log", h.GetExecutionLog)     // GET  /api/v1/executions/{id}/log
	}
}
