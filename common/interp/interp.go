package interp

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/flowmesh/flowmesh/common/models"
	"github.com/tidwall/gjson"
)

// CredentialLookup resolves credential values by name. Unresolved {{name}}
// placeholders fall back to it before being left literal.
type CredentialLookup interface {
	GetDecryptedByName(ctx context.Context, name string) (string, bool)
}

var (
	dollarPattern   = regexp.MustCompile(`\$\{([^}]+)\}`)
	mustachePattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)
)

// Interpolate applies both placeholder syntaxes to s, in order:
//
//  1. ${path.to.field} navigates the data map; a missing path becomes "".
//  2. {{name}} is replaced from the data map, then looked up as a credential
//     by name; if neither resolves the placeholder stays literal.
//
// Replacements are inserted verbatim (plain string splicing, not regexp
// expansion), so metacharacters in values are inert.
func Interpolate(ctx context.Context, s string, data models.M, creds CredentialLookup) string {
	if !strings.Contains(s, "${") && !strings.Contains(s, "{{") {
		return s
	}

	encoded := encode(data)

	out := dollarPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-1])
		result := gjson.GetBytes(encoded, path)
		if !result.Exists() {
			return ""
		}
		return stringify(result.Value())
	})

	out = mustachePattern.ReplaceAllStringFunc(out, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if v, ok := data[name]; ok {
			return stringify(v)
		}
		if creds != nil {
			if v, ok := creds.GetDecryptedByName(ctx, name); ok {
				return v
			}
		}
		return match
	})

	return out
}

// InterpolateValue walks strings, maps, and lists, interpolating every string
// it finds. Other values pass through untouched.
func InterpolateValue(ctx context.Context, value any, data models.M, creds CredentialLookup) any {
	switch v := value.(type) {
	case string:
		return Interpolate(ctx, v, data, creds)
	case map[string]any:
		out := make(models.M, len(v))
		for k, item := range v {
			out[k] = InterpolateValue(ctx, item, data, creds)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = InterpolateValue(ctx, item, data, creds)
		}
		return out
	default:
		return value
	}
}

// InterpolateMap interpolates every string value in m, recursively.
func InterpolateMap(ctx context.Context, m models.M, data models.M, creds CredentialLookup) models.M {
	out := make(models.M, len(m))
	for k, v := range m {
		out[k] = InterpolateValue(ctx, v, data, creds)
	}
	return out
}

// SelectPath resolves a mapping expression against data. Expressions of the
// form "$.path.to.field" select from data; anything else is returned as a
// literal. Used by subworkflow input/output mappings.
func SelectPath(data models.M, expr string) (any, bool) {
	if !strings.HasPrefix(expr, "$.") {
		return expr, true
	}
	result := gjson.GetBytes(encode(data), expr[2:])
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// Lookup navigates a dotted path through nested maps without JSON encoding.
// Used by the switch and filter rule evaluation where values must keep their
// native types.
func Lookup(data models.M, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = map[string]any(data)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func encode(data models.M) []byte {
	encoded, err := json.Marshal(data)
	if err != nil {
		return []byte("{}")
	}
	return encoded
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
