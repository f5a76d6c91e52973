package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowmesh/flowmesh/common/config"
	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/logger"
	"github.com/flowmesh/flowmesh/common/logpipe"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/common/store"
)

// Options wires an Executor's collaborators.
type Options struct {
	Workflows   store.WorkflowStore
	Executions  store.ExecutionStore
	Credentials store.CredentialStore
	Settings    *config.Settings
	Registry    *Registry
	Pipeline    *logpipe.Pipeline
	Logger      *logger.Logger
}

// Executor runs workflows. Multiple executions may proceed concurrently;
// their contexts are isolated.
type Executor struct {
	workflows   store.WorkflowStore
	executions  store.ExecutionStore
	credentials store.CredentialStore
	settings    *config.Settings
	registry    *Registry
	pipeline    *logpipe.Pipeline
	log         *logger.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New creates an executor. Settings and Pipeline default to empty instances
// when omitted.
func New(opts Options) *Executor {
	if opts.Settings == nil {
		opts.Settings = config.NewSettings()
	}
	if opts.Pipeline == nil {
		opts.Pipeline = logpipe.NewPipeline()
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("info", "text")
	}
	return &Executor{
		workflows:   opts.Workflows,
		executions:  opts.Executions,
		credentials: opts.Credentials,
		settings:    opts.Settings,
		registry:    opts.Registry,
		pipeline:    opts.Pipeline,
		log:         opts.Logger,
		running:     make(map[string]context.CancelFunc),
	}
}

// Registry returns the handler registry the executor dispatches through.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs a workflow to completion and returns its terminal Execution.
func (e *Executor) Execute(ctx context.Context, workflowID string, input models.M) (*models.Execution, error) {
	return e.execute(ctx, workflowID, input, models.TriggerManual, nil)
}

// ExecuteSub runs a workflow on behalf of a parent execution, carrying the
// parent's ancestor chain for recursion detection.
func (e *Executor) ExecuteSub(ctx context.Context, workflowID string, input models.M, ancestors []string) (*models.Execution, error) {
	return e.execute(ctx, workflowID, input, models.TriggerSubworkflow, ancestors)
}

// Handle tracks an asynchronous execution.
type Handle struct {
	ExecutionID string

	done   chan struct{}
	result *models.Execution
	err    error
	cancel context.CancelFunc
}

// Wait blocks until the execution terminates or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*models.Execution, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel aborts the execution.
func (h *Handle) Cancel() {
	h.cancel()
}

// ExecuteAsync starts a run and returns a handle. The run owns its own
// lifetime; cancelling the caller's ctx does not cancel it.
func (e *Executor) ExecuteAsync(ctx context.Context, workflowID string, input models.M) (*Handle, error) {
	wf, err := e.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Handle{
		ExecutionID: uuid.New().String(),
		done:        make(chan struct{}),
		cancel:      cancel,
	}

	go func() {
		defer close(h.done)
		h.result, h.err = e.run(runCtx, cancel, h.ExecutionID, wf, input, models.TriggerManual, nil)
	}()

	return h, nil
}

// Cancel aborts a running execution by id.
func (e *Executor) Cancel(executionID string) error {
	e.mu.Lock()
	cancel, ok := e.running[executionID]
	e.mu.Unlock()
	if !ok {
		return flowerr.New(flowerr.KindHandlerFailure, "execution %s is not running", executionID)
	}
	cancel()
	return nil
}

// CancelAll aborts every running execution. Called on service shutdown.
func (e *Executor) CancelAll() {
	e.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(e.running))
	for _, cancel := range e.running {
		cancels = append(cancels, cancel)
	}
	e.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// FindByWorkflowID lists the recorded executions of a workflow.
func (e *Executor) FindByWorkflowID(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return e.executions.FindByWorkflowID(ctx, workflowID)
}

// ResolveWorkflow finds a workflow by id, falling back to lookup by name.
func (e *Executor) ResolveWorkflow(ctx context.Context, id, name string) (*models.Workflow, error) {
	if id != "" {
		wf, err := e.workflows.FindByID(ctx, id)
		if err == nil {
			return wf, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if name != "" {
		wf, err := e.workflows.FindByName(ctx, name)
		if err == nil {
			return wf, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, flowerr.New(flowerr.KindInvalidWorkflow, "workflow not found (id=%q name=%q)", id, name)
}

// FindExecution returns one recorded execution.
func (e *Executor) FindExecution(ctx context.Context, executionID string) (*models.Execution, error) {
	return e.executions.FindByID(ctx, executionID)
}

func (e *Executor) execute(ctx context.Context, workflowID string, input models.M, triggerType models.TriggerType, ancestors []string) (*models.Execution, error) {
	wf, err := e.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	return e.run(runCtx, cancel, uuid.New().String(), wf, input, triggerType, ancestors)
}

func (e *Executor) loadWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	wf, err := e.workflows.FindByID(ctx, workflowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, flowerr.New(flowerr.KindInvalidWorkflow, "workflow %s not found", workflowID)
	}
	if err != nil {
		return nil, err
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

// run drives one execution end to end: store row, traversal, finalize.
func (e *Executor) run(ctx context.Context, cancel context.CancelFunc, executionID string, wf *models.Workflow, input models.M, triggerType models.TriggerType, ancestors []string) (*models.Execution, error) {
	timeout := time.Duration(e.settings.GetInt(config.KeyExecutionTimeout, 300)) * time.Second
	runCtx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	if input == nil {
		input = models.M{}
	}

	ec := &ExecutionContext{
		ExecutionID:  executionID,
		Workflow:     wf,
		InitialInput: input,
		TriggerType:  triggerType,
		credentials:  e.credentials,
		settings:     e.settings,
		log:          logpipe.NewLogger(e.pipeline, executionID),
		executor:     e,
		registry:     e.registry,
		ancestors:    append(append([]string(nil), ancestors...), wf.ID),
		outputs:      make(map[string]models.M),
		streams:      make(map[string]chan models.M),
		cancel:       cancel,
	}

	e.mu.Lock()
	e.running[executionID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, executionID)
		e.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	if err := e.executions.CreateRunning(ctx, executionID, wf.ID, triggerType, input, startedAt); err != nil {
		return nil, err
	}

	ec.log.ExecutionStart(runCtx, wf.ID)
	e.log.WithExecutionID(executionID).Info("execution started",
		"workflow_id", wf.ID,
		"workflow_name", wf.Name,
		"trigger_type", string(triggerType),
	)

	sched := newScheduler(ec, e.registry, e.executions, e.settings.GetInt(config.KeyExecutionMaxParallel, 16), cancel)
	runErr := sched.run(runCtx)

	finishedAt := time.Now().UTC()
	status, errorMessage := terminalStatus(runCtx, runErr)
	output := e.collectOutput(wf, ec)

	ec.log.ExecutionEnd(context.WithoutCancel(runCtx), string(status), finishedAt.Sub(startedAt))
	e.log.WithExecutionID(executionID).Info("execution finished",
		"status", string(status),
		"duration_ms", finishedAt.Sub(startedAt).Milliseconds(),
	)

	if err := e.executions.Finalize(context.WithoutCancel(ctx), executionID, status, finishedAt, output, errorMessage); err != nil {
		e.log.WithExecutionID(executionID).Warn("failed to finalize execution", "error", err)
	}

	exec, err := e.executions.FindByID(context.WithoutCancel(ctx), executionID)
	if err != nil {
		// Fall back to an in-memory view when the store cannot serve the row.
		exec = &models.Execution{
			ID:           executionID,
			WorkflowID:   wf.ID,
			Status:       status,
			TriggerType:  triggerType,
			StartedAt:    startedAt,
			FinishedAt:   &finishedAt,
			Input:        input,
			Output:       output,
			ErrorMessage: errorMessage,
		}
	}
	return exec, nil
}

// terminalStatus maps the traversal outcome to the execution's terminal
// status. Cancellation always wins over failure classification.
func terminalStatus(ctx context.Context, runErr error) (models.ExecutionStatus, string) {
	ctxErr := ctx.Err()
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		msg := "execution timed out"
		if runErr != nil {
			msg = runErr.Error()
		}
		return models.StatusFailed, msg
	}

	if runErr != nil {
		if flowerr.KindOf(runErr) == flowerr.KindCancelled {
			return models.StatusCancelled, runErr.Error()
		}
		return models.StatusFailed, runErr.Error()
	}

	if errors.Is(ctxErr, context.Canceled) {
		return models.StatusCancelled, "execution cancelled"
	}

	return models.StatusSuccess, ""
}

// collectOutput merges the outputs of the workflow's leaf nodes (no outgoing
// edges) into the execution's output map.
func (e *Executor) collectOutput(wf *models.Workflow, ec *ExecutionContext) models.M {
	out := models.M{}
	for _, n := range wf.Nodes {
		if len(wf.OutgoingEdges(n.ID)) != 0 {
			continue
		}
		if nodeOut, ok := ec.Output(n.ID); ok {
			models.MergeInto(out, nodeOut)
		}
	}
	return out
}
