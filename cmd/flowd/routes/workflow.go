package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/flowmesh/flowmesh/cmd/flowd/container"
	"github.com/flowmesh/flowmesh/cmd/flowd/handlers"
)

// RegisterWorkflowRoutes registers all workflow CRUD routes
func RegisterWorkflowRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewWorkflowHandler(c)

	workflows := e.Group("/api/v1/workflows")
	{
		workflows.POST("", h.CreateWorkflow)       // POST   /api/v1/workflows
		workflows.GET("", h.ListWorkflows)         // GET    /api/v1/workflows
		workflows.GET("/:id", h.GetWorkflow)       // GET    /api/v1/workflows/{id}
		workflows.PUT("/:id", h.UpdateWorkflow)    // PUT    /api/v1/workflows/{id}
		workflows.PATCH("/:id", h.PatchWorkflow)   // PATCH  /api/v1/workflows/{id}
		workflows.DELETE("/:id", h.DeleteWorkflow) // DELETE /api/v1/workflows/{id}
	}
}
