package nodes

import (
	"context"
	"time"

	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/interp"
	"github.com/flowmesh/flowmesh/common/logpipe"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// SubworkflowHandler invokes another workflow as a nested execution with
// input/output mapping and a full-ancestor-chain recursion guard.
type SubworkflowHandler struct{}

// NewSubworkflow creates the subworkflow handler.
func NewSubworkflow() *SubworkflowHandler {
	return &SubworkflowHandler{}
}

func (h *SubworkflowHandler) NodeType() string {
	return models.TypeSubworkflow
}

func (h *SubworkflowHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	p := node.Parameters
	workflowID := models.GetString(p, "workflowId", "")
	workflowName := models.GetString(p, "workflowName", "")
	inputMapping := models.GetMap(p, "inputMapping")
	outputMapping := models.GetMap(p, "outputMapping")
	waitForCompletion := models.GetBool(p, "waitForCompletion", true)
	timeout := time.Duration(models.GetInt(p, "timeout", 300000)) * time.Millisecond

	target, err := ec.Executor().ResolveWorkflow(ctx, workflowID, workflowName)
	if err != nil {
		return nil, err
	}

	// The guard covers the whole ancestor chain, not just the direct parent,
	// so A -> B -> A is rejected the same as A -> A.
	if ec.IsAncestor(target.ID) {
		return nil, flowerr.New(flowerr.KindRecursion, "workflow %s (%s) is already on the execution chain", target.ID, target.Name)
	}

	subInput := applyMapping(input, inputMapping)

	if !waitForCompletion {
		handle, err := ec.Executor().ExecuteAsync(ctx, target.ID, subInput)
		if err != nil {
			return nil, err
		}
		ec.Log().Log(ctx, logpipe.LevelInfo, "subworkflow started asynchronously", models.M{
			"workflow_id":  target.ID,
			"execution_id": handle.ExecutionID,
		})
		return models.M{
			"async":        true,
			"workflowId":   target.ID,
			"workflowName": target.Name,
		}, nil
	}

	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exec, err := ec.Executor().ExecuteSub(subCtx, target.ID, subInput, ec.Ancestors())
	if err != nil {
		return nil, err
	}

	out := models.M{
		"workflowId":   target.ID,
		"workflowName": target.Name,
		"executionId":  exec.ID,
	}

	if exec.Status != models.StatusSuccess {
		// The parent decides what to do with the failure; it does not fail
		// automatically.
		out["success"] = false
		out["error"] = exec.ErrorMessage
		out["output"] = models.M{}
		return out, nil
	}

	out["success"] = true
	out["output"] = applyMapping(exec.Output, outputMapping)
	return out, nil
}

// applyMapping builds a map from target-key to source expression results.
// "$.path" expressions select from the source; anything else is a literal.
// An empty mapping passes the source through unchanged.
func applyMapping(source models.M, mapping models.M) models.M {
	if len(mapping) == 0 {
		return models.Clone(source)
	}
	out := models.M{}
	for key, raw := range mapping {
		expr, ok := raw.(string)
		if !ok {
			out[key] = raw
			continue
		}
		if v, ok := interp.SelectPath(source, expr); ok {
			out[key] = v
		}
	}
	return out
}
