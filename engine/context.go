package engine

import (
	"context"
	"sync"

	"github.com/flowmesh/flowmesh/common/config"
	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/logpipe"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/common/store"
)

// ExecutionContext is the per-run state handed to node handlers. It is owned
// by exactly one execution and never shared across runs.
type ExecutionContext struct {
	ExecutionID  string
	Workflow     *models.Workflow
	InitialInput models.M
	TriggerType  models.TriggerType

	credentials store.CredentialStore
	settings    *config.Settings
	log         *logpipe.Logger
	executor    *Executor
	registry    *Registry

	// ancestors is the workflow-id chain from the root run down to this one,
	// including this run's workflow id. Used by the subworkflow recursion guard.
	ancestors []string

	mu      sync.Mutex
	outputs map[string]models.M
	streams map[string]chan models.M

	cancel context.CancelFunc
}

// Output returns the published output of a completed node.
func (ec *ExecutionContext) Output(nodeID string) (models.M, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out, ok := ec.outputs[nodeID]
	return out, ok
}

// Outputs returns a snapshot of all published node outputs.
func (ec *ExecutionContext) Outputs() map[string]models.M {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make(map[string]models.M, len(ec.outputs))
	for k, v := range ec.outputs {
		out[k] = v
	}
	return out
}

// publishOutput records a node's output. Each node id is written at most
// once per run; a second write is an engine bug and fails loudly.
func (ec *ExecutionContext) publishOutput(nodeID string, output models.M) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if _, exists := ec.outputs[nodeID]; exists {
		return flowerr.New(flowerr.KindHandlerFailure, "output for node %s published twice", nodeID)
	}
	ec.outputs[nodeID] = output
	return nil
}

// DeliveryStream returns the channel carrying deliveries that arrive after a
// node's handler has started. Only merge-style nodes have one; the channel is
// closed once every in-edge has either delivered or been gated off.
func (ec *ExecutionContext) DeliveryStream(nodeID string) <-chan models.M {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.streams[nodeID]
}

func (ec *ExecutionContext) setStream(nodeID string, ch chan models.M) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.streams[nodeID] = ch
}

// Credentials returns the credential store for this run.
func (ec *ExecutionContext) Credentials() store.CredentialStore {
	return ec.credentials
}

// ResolveCredential resolves a node's credential reference, by id first and
// then by name.
func (ec *ExecutionContext) ResolveCredential(ctx context.Context, node *models.Node) (string, error) {
	if node.CredentialRef == "" {
		return "", flowerr.New(flowerr.KindCredentialMissing, "node %s has no credential reference", node.ID)
	}
	if v, ok := ec.credentials.GetDecryptedByID(ctx, node.CredentialRef); ok {
		return v, nil
	}
	if v, ok := ec.credentials.GetDecryptedByName(ctx, node.CredentialRef); ok {
		return v, nil
	}
	return "", flowerr.New(flowerr.KindCredentialMissing, "credential %q could not be resolved", node.CredentialRef)
}

// Settings returns the typed settings accessor.
func (ec *ExecutionContext) Settings() *config.Settings {
	return ec.settings
}

// Log returns the execution-scoped pipeline logger.
func (ec *ExecutionContext) Log() *logpipe.Logger {
	return ec.log
}

// Executor returns the executor owning this run, for subworkflow invocation.
func (ec *ExecutionContext) Executor() *Executor {
	return ec.executor
}

// Ancestors returns the workflow-id chain including the current workflow.
func (ec *ExecutionContext) Ancestors() []string {
	out := make([]string, len(ec.ancestors))
	copy(out, ec.ancestors)
	return out
}

// IsAncestor reports whether workflowID appears anywhere in the chain.
func (ec *ExecutionContext) IsAncestor(workflowID string) bool {
	for _, id := range ec.ancestors {
		if id == workflowID {
			return true
		}
	}
	return false
}

// Cancel aborts the run.
func (ec *ExecutionContext) Cancel() {
	if ec.cancel != nil {
		ec.cancel()
	}
}

// RunOperations executes an embedded operation list (the bodies of loop,
// tryCatch, retry and rate_limit nodes) sequentially, threading each step's
// output into the next step's input. Sub-operations share this run's context
// and are not recorded as top-level node executions.
func (ec *ExecutionContext) RunOperations(ctx context.Context, operations []any, input models.M) (models.M, error) {
	current := models.Clone(input)
	for i, raw := range operations {
		if err := ctx.Err(); err != nil {
			return current, flowerr.Wrap(flowerr.KindCancelled, err, "operations aborted at step %d", i)
		}

		node, err := decodeOperation(raw, i)
		if err != nil {
			return current, err
		}

		handler, err := ec.registry.Lookup(node.Type)
		if err != nil {
			return current, err
		}

		out, err := handler.Execute(ctx, node, current, ec)
		if err != nil {
			return current, err
		}
		current = out
	}
	return current, nil
}

// decodeOperation turns an embedded operation map into a Node. Operations
// carry the same shape as workflow nodes minus position.
func decodeOperation(raw any, index int) (*models.Node, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, flowerr.New(flowerr.KindInvalidWorkflow, "operation %d is not a map", index)
	}
	node := &models.Node{
		ID:            models.GetString(m, "id", ""),
		Type:          models.GetString(m, "type", ""),
		Name:          models.GetString(m, "name", ""),
		CredentialRef: models.GetString(m, "credential_ref", ""),
		Parameters:    models.GetMap(m, "parameters"),
	}
	if node.Type == "" {
		return nil, flowerr.New(flowerr.KindInvalidWorkflow, "operation %d has no type", index)
	}
	if node.Parameters == nil {
		node.Parameters = models.M{}
	}
	return node, nil
}
