package nodes

import (
	"context"

	"github.com/flowmesh/flowmesh/common/condition"
	"github.com/flowmesh/flowmesh/common/logpipe"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// IfHandler evaluates a boolean condition over the input and routes to the
// "true" or "false" handle. Evaluation errors route to "false" rather than
// failing the node.
type IfHandler struct {
	evaluator *condition.Evaluator
}

// NewIf creates the if handler with a shared condition evaluator.
func NewIf(evaluator *condition.Evaluator) *IfHandler {
	return &IfHandler{evaluator: evaluator}
}

func (h *IfHandler) NodeType() string {
	return models.TypeIf
}

func (h *IfHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	expr := models.GetString(node.Parameters, "condition", "")

	result, err := h.evaluator.Evaluate(expr, input)
	if err != nil {
		ec.Log().Log(ctx, logpipe.LevelWarn, "condition evaluation failed", models.M{
			"node_id":   node.ID,
			"condition": expr,
			"error":     err.Error(),
		})
		result = false
	}

	out := models.Clone(input)
	out["conditionResult"] = result
	if result {
		out["branch"] = models.HandleTrue
	} else {
		out["branch"] = models.HandleFalse
	}
	return out, nil
}
