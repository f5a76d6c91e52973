package nodes

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/flowmesh/flowmesh/common/interp"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// SortHandler orders a list by a dotted field path, or by the items
// themselves for scalar lists. The sort is stable so equal keys keep their
// input order.
type SortHandler struct{}

// NewSort creates the sort handler.
func NewSort() *SortHandler {
	return &SortHandler{}
}

func (h *SortHandler) NodeType() string {
	return models.TypeSort
}

func (h *SortHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	p := node.Parameters
	items := resolveItems(input, p["items"])
	field := models.GetString(p, "field", "")
	descending := strings.EqualFold(models.GetString(p, "direction", "asc"), "desc")

	sorted := make([]any, len(items))
	copy(sorted, items)

	sort.SliceStable(sorted, func(i, j int) bool {
		c := compareValues(sortKey(sorted[i], field), sortKey(sorted[j], field))
		if descending {
			return c > 0
		}
		return c < 0
	})

	out := models.Clone(input)
	out["items"] = sorted
	out["_count"] = len(sorted)
	return out, nil
}

func sortKey(item any, field string) any {
	if field == "" {
		return item
	}
	if m, ok := item.(map[string]any); ok {
		if v, ok := interp.Lookup(m, field); ok {
			return v
		}
	}
	return nil
}

// compareValues orders numbers numerically and everything else by string
// form. Nil sorts first.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}
