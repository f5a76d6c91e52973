package condition

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// Evaluator evaluates boolean expressions using CEL (Common Expression
// Language). Compiled programs are cached per expression.
type Evaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewEvaluator creates a new condition evaluator with caching
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]cel.Program),
	}
}

// Evaluate evaluates a CEL expression against the node's input map. Both
// `input.field` and the JSONPath-style `$.field` spellings are accepted; bare
// identifiers also resolve against the input for convenience, so "a > 10"
// works the same as "input.a > 10".
func (e *Evaluator) Evaluate(expr string, input map[string]any) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return false, fmt.Errorf("empty condition expression")
	}

	normalizedExpr := strings.ReplaceAll(expr, "$.", "input.")

	// The program declares one dyn variable per top-level input key, so the
	// cache key must cover the key set as well as the expression.
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cacheKey := normalizedExpr + "|" + strings.Join(keys, ",")

	e.mu.RLock()
	prg, exists := e.cache[cacheKey]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = e.compile(normalizedExpr, input)
		if err != nil {
			return false, err
		}

		e.mu.Lock()
		e.cache[cacheKey] = prg
		e.mu.Unlock()
	}

	activation := map[string]any{"input": input}
	for k, v := range input {
		activation[k] = v
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}

	return result, nil
}

// compile builds a CEL program declaring "input" plus every top-level input
// key as a dyn variable.
func (e *Evaluator) compile(expr string, input map[string]any) (cel.Program, error) {
	opts := []cel.EnvOption{cel.Variable("input", cel.DynType)}
	for k := range input {
		if k == "input" {
			continue
		}
		opts = append(opts, cel.Variable(k, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return prg, nil
}

// ClearCache clears the compiled expression cache
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

// CacheSize returns the number of cached expressions
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
