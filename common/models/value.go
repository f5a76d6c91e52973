package models

// M is the dynamic payload map flowing between nodes. Values are the JSON
// scalar set plus nested maps and lists.
type M = map[string]any

// Clone returns a shallow copy of m. Nil maps clone to an empty map so
// callers can write to the result.
func Clone(m M) M {
	out := make(M, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MergeInto copies src entries into dst, overwriting existing keys at the top
// level, and returns dst.
func MergeInto(dst, src M) M {
	if dst == nil {
		dst = make(M, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// GetString reads a string parameter with a default.
func GetString(m M, key, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

// GetBool reads a bool parameter with a default.
func GetBool(m M, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

// GetInt reads an int parameter with a default. JSON-decoded numbers arrive
// as float64, so both representations are accepted.
func GetInt(m M, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// GetFloat reads a float parameter with a default.
func GetFloat(m M, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// GetMap reads a nested map parameter. Missing or mistyped values return nil.
func GetMap(m M, key string) M {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

// GetList reads a list parameter. Missing or mistyped values return nil.
func GetList(m M, key string) []any {
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}

// GetStringList reads a list of strings, accepting both []string and []any
// with string elements.
func GetStringList(m M, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
