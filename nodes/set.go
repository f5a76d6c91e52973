package nodes

import (
	"context"

	"github.com/flowmesh/flowmesh/common/interp"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// SetHandler writes declared values onto the data bus. String values are
// interpolated against the input before assignment.
type SetHandler struct{}

// NewSet creates the set handler.
func NewSet() *SetHandler {
	return &SetHandler{}
}

func (h *SetHandler) NodeType() string {
	return models.TypeSet
}

func (h *SetHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	values := models.GetMap(node.Parameters, "values")
	keepOnlySet := models.GetBool(node.Parameters, "keepOnlySet", false)

	resolved := interp.InterpolateMap(ctx, values, input, ec.Credentials())

	if keepOnlySet {
		return resolved, nil
	}
	out := models.Clone(input)
	models.MergeInto(out, resolved)
	return out, nil
}
