package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowmesh/flowmesh/cmd/flowd/container"
	"github.com/flowmesh/flowmesh/common/models"
)

// ExecutionHandler handles workflow execution requests
type ExecutionHandler struct {
	c *container.Container
}

// NewExecutionHandler creates a new execution handler
func NewExecutionHandler(c *container.Container) *ExecutionHandler {
	return &ExecutionHandler{c: c}
}

// Execute runs a workflow synchronously and returns the terminal execution
// POST /api/v1/workflows/:id/execute
func (h *ExecutionHandler) Execute(c echo.Context) error {
	input, err := bindInput(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input body"})
	}

	// A failed run is still a 200: the terminal status travels in the row.
	execution, err := h.c.Executor.Execute(c.Request().Context(), c.Param("id"), input)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, execution)
}

// ExecuteAsync starts a workflow run and returns its execution id immediately
// POST /api/v1/workflows/:id/executions
func (h *ExecutionHandler) ExecuteAsync(c echo.Context) error {
	input, err := bindInput(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input body"})
	}

	handle, err := h.c.Executor.ExecuteAsync(c.Request().Context(), c.Param("id"), input)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusAccepted, echo.Map{
		"execution_id": handle.ExecutionID,
		"workflow_id":  c.Param("id"),
		"status":       models.StatusRunning,
	})
}

// GetExecution retrieves an execution row
// GET /api/v1/executions/:id
func (h *ExecutionHandler) GetExecution(c echo.Context) error {
	execution, err := h.c.Executor.FindExecution(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, execution)
}

// ListExecutions lists the executions of a workflow
// GET /api/v1/workflows/:id/executions
func (h *ExecutionHandler) ListExecutions(c echo.Context) error {
	executions, err := h.c.Executor.FindByWorkflowID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"executions": executions, "count": len(executions)})
}

// CancelExecution aborts a running execution
// POST /api/v1/executions/:id/cancel
func (h *ExecutionHandler) CancelExecution(c echo.Context) error {
	if err := h.c.Executor.Cancel(c.Param("id")); err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, echo.Map{
		"execution_id": c.Param("id"),
		"status":       models.StatusCancelled,
	})
}

// GetExecutionLog returns the retained log entries for an execution
// GET /api/v1/executions/:id/log
func (h *ExecutionHandler) GetExecutionLog(c echo.Context) error {
	entries := h.c.Components.Memory.Entries(c.Param("id"))
	return c.JSON(http.StatusOK, echo.Map{"entries": entries, "count": len(entries)})
}

// bindInput reads an optional JSON object body as the trigger input.
func bindInput(c echo.Context) (models.M, error) {
	input := models.M{}
	if c.Request().Body == nil || c.Request().ContentLength == 0 {
		return input, nil
	}
	if err := c.Bind(&input); err != nil {
		return nil, err
	}
	return input, nil
}

// readBody drains the raw request body, for endpoints that parse it
// themselves.
func readBody(c echo.Context) ([]byte, error) {
	defer c.Request().Body.Close()
	return io.ReadAll(io.LimitReader(c.Request().Body, 4<<20))
}
