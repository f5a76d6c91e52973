package condition

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flowmesh/flowmesh/common/interp"
	"github.com/flowmesh/flowmesh/common/models"
)

// Rule is one branch of a switch node: a named set of field conditions
// combined with "and" or "or".
type Rule struct {
	Name        string      `json:"name"`
	Conditions  []Condition `json:"conditions"`
	CombineWith string      `json:"combineWith"`
}

// Condition compares the value at a dotted field path against a literal.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// RuleFromMap decodes a rule out of node parameters.
func RuleFromMap(m models.M) Rule {
	rule := Rule{
		Name:        models.GetString(m, "name", ""),
		CombineWith: models.GetString(m, "combineWith", "and"),
	}
	for _, raw := range models.GetList(m, "conditions") {
		cm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rule.Conditions = append(rule.Conditions, Condition{
			Field:    models.GetString(cm, "field", ""),
			Operator: models.GetString(cm, "operator", "equals"),
			Value:    cm["value"],
		})
	}
	return rule
}

// Matches evaluates the rule against the input map, short-circuiting on the
// combine mode.
func (r Rule) Matches(input models.M) (bool, error) {
	if len(r.Conditions) == 0 {
		return false, nil
	}

	or := strings.EqualFold(r.CombineWith, "or")
	for _, c := range r.Conditions {
		ok, err := c.Evaluate(input)
		if err != nil {
			return false, err
		}
		if or && ok {
			return true, nil
		}
		if !or && !ok {
			return false, nil
		}
	}
	return !or, nil
}

// Evaluate applies the condition's operator to the field value.
func (c Condition) Evaluate(input models.M) (bool, error) {
	value, found := interp.Lookup(input, c.Field)

	switch strings.ToLower(c.Operator) {
	case "isnull":
		return !found || value == nil, nil
	case "isnotnull":
		return found && value != nil, nil
	case "isempty":
		return isEmpty(value), nil
	case "isnotempty":
		return !isEmpty(value), nil
	}

	if !found {
		return false, nil
	}

	switch strings.ToLower(c.Operator) {
	case "equals":
		return looseEquals(value, c.Value), nil
	case "notequals":
		return !looseEquals(value, c.Value), nil
	case "contains":
		return strings.Contains(asString(value), asString(c.Value)), nil
	case "notcontains":
		return !strings.Contains(asString(value), asString(c.Value)), nil
	case "startswith":
		return strings.HasPrefix(asString(value), asString(c.Value)), nil
	case "endswith":
		return strings.HasSuffix(asString(value), asString(c.Value)), nil
	case "matches":
		re, err := regexp.Compile(asString(c.Value))
		if err != nil {
			return false, fmt.Errorf("invalid matches pattern %q: %w", asString(c.Value), err)
		}
		return re.MatchString(asString(value)), nil
	case "gt", "gte", "lt", "lte":
		return compareNumbers(strings.ToLower(c.Operator), value, c.Value)
	case "in":
		return inList(value, c.Value), nil
	case "notin":
		return !inList(value, c.Value), nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Operator)
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// looseEquals compares values after normalising numbers to float64, so a
// JSON-decoded 5.0 equals an int 5.
func looseEquals(a, b any) bool {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			return af == bf
		}
	}
	return asString(a) == asString(b)
}

func asNumber(v any) (float64, bool) {
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

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func compareNumbers(op string, a, b any) (bool, error) {
	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if !aok || !bok {
		return false, fmt.Errorf("operator %q requires numeric operands, got %T and %T", op, a, b)
	}
	switch op {
	case "gt":
		return af > bf, nil
	case "gte":
		return af >= bf, nil
	case "lt":
		return af < bf, nil
	case "lte":
		return af <= bf, nil
	}
	return false, nil
}

func inList(value, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if looseEquals(value, item) {
			return true
		}
	}
	return false
}
