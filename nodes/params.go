package nodes

import (
	"strings"

	"github.com/flowmesh/flowmesh/common/interp"
	"github.com/flowmesh/flowmesh/common/models"
)

// resolveItems returns the list a node operates on: a literal list parameter,
// or a "$.path" / dotted-path string resolved against the input.
func resolveItems(input models.M, param any) []any {
	switch v := param.(type) {
	case []any:
		return v
	case string:
		path := strings.TrimPrefix(v, "$.")
		if raw, ok := interp.Lookup(input, path); ok {
			if list, ok := raw.([]any); ok {
				return list
			}
		}
	}
	return nil
}
