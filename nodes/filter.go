package nodes

import (
	"context"

	"github.com/flowmesh/flowmesh/common/condition"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// FilterHandler keeps or drops list items by the switch-style condition set.
type FilterHandler struct{}

// NewFilter creates the filter handler.
func NewFilter() *FilterHandler {
	return &FilterHandler{}
}

func (h *FilterHandler) NodeType() string {
	return models.TypeFilter
}

func (h *FilterHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	p := node.Parameters
	items := resolveItems(input, p["items"])
	keepMatching := models.GetBool(p, "keepMatching", true)
	rule := condition.RuleFromMap(models.M{
		"conditions":  models.GetList(p, "conditions"),
		"combineWith": models.GetString(p, "combineWith", "and"),
	})

	out := models.Clone(input)

	if len(rule.Conditions) == 0 {
		// Nothing to test: the keep-matching view is the unchanged list.
		kept := items
		if !keepMatching {
			kept = []any{}
		}
		out["items"] = kept
		out["_originalCount"] = len(items)
		out["_filteredCount"] = len(kept)
		return out, nil
	}

	kept := make([]any, 0, len(items))
	for _, item := range items {
		matched, err := rule.Matches(itemAsMap(item))
		if err != nil {
			return nil, err
		}
		if matched == keepMatching {
			kept = append(kept, item)
		}
	}

	out["items"] = kept
	out["_originalCount"] = len(items)
	out["_filteredCount"] = len(kept)
	return out, nil
}

// itemAsMap makes scalar list items addressable by conditions under "value".
func itemAsMap(item any) models.M {
	if m, ok := item.(map[string]any); ok {
		return m
	}
	return models.M{"value": item}
}
