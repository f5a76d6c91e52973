package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/cmd/flowd/container"
	"github.com/flowmesh/flowmesh/cmd/flowd/handlers"
	"github.com/flowmesh/flowmesh/common/bootstrap"
	"github.com/flowmesh/flowmesh/common/config"
	"github.com/flowmesh/flowmesh/common/logger"
	"github.com/flowmesh/flowmesh/common/logpipe"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/common/store"
)

type testAPI struct {
	echo       *echo.Echo
	container  *container.Container
	workflows  *handlers.WorkflowHandler
	executions *handlers.ExecutionHandler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	memory := logpipe.NewMemorySink(1000)
	pipeline := logpipe.NewPipeline()
	pipeline.AddSink(memory, logpipe.LevelTrace)

	components := &bootstrap.Components{
		Config:      &config.Config{},
		Logger:      logger.New("error", "text"),
		Settings:    config.NewSettings(),
		Pipeline:    pipeline,
		Memory:      memory,
		Workflows:   store.NewMemoryWorkflowStore(),
		Executions:  store.NewMemoryExecutionStore(),
		Credentials: store.NewMemoryCredentialStore(),
	}

	c, err := container.NewContainer(components)
	require.NoError(t, err)

	return &testAPI{
		echo:       echo.New(),
		container:  c,
		workflows:  handlers.NewWorkflowHandler(c),
		executions: handlers.NewExecutionHandler(c),
	}
}

func (a *testAPI) request(t *testing.T, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return a.echo.NewContext(req, rec), rec
}

const linearWorkflowJSON = `{
	"id": "wf-api",
	"name": "api linear",
	"nodes": [
		{"id": "trigger", "type": "manualTrigger"},
		{"id": "greet", "type": "set", "parameters": {"values": {"greeting": "hello ${name}"}}}
	],
	"edges": [
		{"id": "e1", "source_node_id": "trigger", "target_node_id": "greet"}
	]
}`

func (a *testAPI) createLinear(t *testing.T) string {
	t.Helper()
	c, rec := a.request(t, http.MethodPost, linearWorkflowJSON)
	require.NoError(t, a.workflows.CreateWorkflow(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var wf models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	return wf.ID
}

func TestCreateWorkflowValidates(t *testing.T) {
	a := newTestAPI(t)

	id := a.createLinear(t)
	assert.Equal(t, "wf-api", id)

	// A workflow with no nodes is rejected up front.
	c, rec := a.request(t, http.MethodPost, `{"name": "empty"}`)
	require.NoError(t, a.workflows.CreateWorkflow(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "InvalidWorkflow")
}

func TestGetWorkflowMissingIs404(t *testing.T) {
	a := newTestAPI(t)

	c, rec := a.request(t, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues("ghost")
	require.NoError(t, a.workflows.GetWorkflow(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchWorkflowAppliesJSONPatch(t *testing.T) {
	a := newTestAPI(t)
	id := a.createLinear(t)

	c, rec := a.request(t, http.MethodPatch, `[{"op": "replace", "path": "/name", "value": "renamed"}]`)
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, a.workflows.PatchWorkflow(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var wf models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	assert.Equal(t, "renamed", wf.Name)
	assert.Equal(t, id, wf.ID)
}

func TestPatchWorkflowRejectsInvalidResult(t *testing.T) {
	a := newTestAPI(t)
	id := a.createLinear(t)

	// Patching the graph into a self-edge must fail validation, not store.
	c, rec := a.request(t, http.MethodPatch, `[{"op": "replace", "path": "/edges/0/source_node_id", "value": "greet"}]`)
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, a.workflows.PatchWorkflow(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The stored workflow is untouched.
	c, rec = a.request(t, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, a.workflows.GetWorkflow(c))
	var wf models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	assert.Equal(t, "trigger", wf.Edges[0].SourceNodeID)
}

func TestPatchWorkflowRejectsMalformedPatch(t *testing.T) {
	a := newTestAPI(t)
	id := a.createLinear(t)

	c, rec := a.request(t, http.MethodPatch, `{"not": "a patch"}`)
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, a.workflows.PatchWorkflow(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteReturnsTerminalExecution(t *testing.T) {
	a := newTestAPI(t)
	id := a.createLinear(t)

	c, rec := a.request(t, http.MethodPost, `{"name": "ada"}`)
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, a.executions.Execute(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var exec models.Execution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.Equal(t, models.StatusSuccess, exec.Status)
	assert.Equal(t, "hello ada", exec.Output["greeting"])
}

func TestExecuteUnknownWorkflowIs400(t *testing.T) {
	a := newTestAPI(t)

	c, rec := a.request(t, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues("ghost")
	require.NoError(t, a.executions.Execute(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteAsyncReturnsAcceptedAndRuns(t *testing.T) {
	a := newTestAPI(t)
	id := a.createLinear(t)

	c, rec := a.request(t, http.MethodPost, `{"name": "ada"}`)
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, a.executions.ExecuteAsync(c))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		ExecutionID string `json:"execution_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.ExecutionID)

	deadline := time.Now().Add(5 * time.Second)
	for {
		exec, err := a.container.Executor.FindExecution(context.Background(), accepted.ExecutionID)
		if err == nil && exec.Status.IsTerminal() {
			assert.Equal(t, models.StatusSuccess, exec.Status)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("execution never reached a terminal status")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetExecutionLogServesRetainedEntries(t *testing.T) {
	a := newTestAPI(t)
	id := a.createLinear(t)

	c, rec := a.request(t, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, a.executions.Execute(c))
	var exec models.Execution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))

	c, rec = a.request(t, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(exec.ID)
	require.NoError(t, a.executions.GetExecutionLog(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count   int             `json:"count"`
		Entries []logpipe.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Positive(t, body.Count)
	assert.Equal(t, exec.ID, body.Entries[0].ExecutionID)
}

func TestCancelUnknownExecutionIs409(t *testing.T) {
	a := newTestAPI(t)

	c, rec := a.request(t, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues("ghost")
	require.NoError(t, a.executions.CancelExecution(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
