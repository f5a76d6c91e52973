package handlers

import (
	"encoding/json"
	"net/http"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/labstack/echo/v4"

	"github.com/flowmesh/flowmesh/cmd/flowd/container"
	"github.com/flowmesh/flowmesh/common/models"
)

// WorkflowHandler handles workflow CRUD requests
type WorkflowHandler struct {
	c *container.Container
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{c: c}
}

// CreateWorkflow creates a workflow after validating its graph
// POST /api/v1/workflows
func (h *WorkflowHandler) CreateWorkflow(c echo.Context) error {
	var wf models.Workflow
	if err := c.Bind(&wf); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid workflow body"})
	}

	if err := wf.Validate(); err != nil {
		return writeError(c, err)
	}

	if err := h.c.Components.Workflows.Create(c.Request().Context(), &wf); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, &wf)
}

// GetWorkflow retrieves a workflow by id
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) GetWorkflow(c echo.Context) error {
	wf, err := h.c.Components.Workflows.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, wf)
}

// ListWorkflows lists all workflows
// GET /api/v1/workflows
func (h *WorkflowHandler) ListWorkflows(c echo.Context) error {
	workflows, err := h.c.Components.Workflows.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"workflows": workflows, "count": len(workflows)})
}

// UpdateWorkflow replaces a workflow definition
// PUT /api/v1/workflows/:id
func (h *WorkflowHandler) UpdateWorkflow(c echo.Context) error {
	var wf models.Workflow
	if err := c.Bind(&wf); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid workflow body"})
	}
	wf.ID = c.Param("id")

	if err := wf.Validate(); err != nil {
		return writeError(c, err)
	}

	if err := h.c.Components.Workflows.Update(c.Request().Context(), &wf); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, &wf)
}

// PatchWorkflow applies an RFC 6902 JSON Patch to a workflow. The patched
// document must still validate as an acyclic graph before it is stored.
// PATCH /api/v1/workflows/:id
func (h *WorkflowHandler) PatchWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	wf, err := h.c.Components.Workflows.FindByID(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	patchBytes, err := readBody(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable patch body"})
	}
	patch, err := jsonpatch.DecodePatch(patchBytes)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid JSON patch: " + err.Error()})
	}

	doc, err := json.Marshal(wf)
	if err != nil {
		return writeError(c, err)
	}
	patched, err := patch.Apply(doc)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "patch failed: " + err.Error()})
	}

	var updated models.Workflow
	if err := json.Unmarshal(patched, &updated); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "patched document is not a workflow: " + err.Error()})
	}
	updated.ID = wf.ID

	if err := updated.Validate(); err != nil {
		return writeError(c, err)
	}

	if err := h.c.Components.Workflows.Update(ctx, &updated); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, &updated)
}

// DeleteWorkflow deletes a workflow
// DELETE /api/v1/workflows/:id
func (h *WorkflowHandler) DeleteWorkflow(c echo.Context) error {
	if err := h.c.Components.Workflows.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
