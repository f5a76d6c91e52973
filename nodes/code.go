package nodes

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// CodeHandler evaluates a user expression over the input map. Programs are
// compiled once per expression and cached.
type CodeHandler struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewCode creates the code handler.
func NewCode() *CodeHandler {
	return &CodeHandler{cache: make(map[string]*vm.Program)}
}

func (h *CodeHandler) NodeType() string {
	return models.TypeCode
}

func (h *CodeHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	expression := models.GetString(node.Parameters, "expression", "")
	if expression == "" {
		expression = models.GetString(node.Parameters, "code", "")
	}
	resultKey := models.GetString(node.Parameters, "resultKey", "result")

	if expression == "" {
		return nil, flowerr.New(flowerr.KindHandlerFailure, "code node %s has no expression", node.ID)
	}

	program, err := h.compile(expression)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindHandlerFailure, err, "failed to compile expression")
	}

	result, err := expr.Run(program, map[string]any(input))
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindHandlerFailure, err, "expression failed")
	}

	out := models.Clone(input)
	out[resultKey] = result
	return out, nil
}

func (h *CodeHandler) compile(expression string) (*vm.Program, error) {
	h.mu.RLock()
	program, ok := h.cache[expression]
	h.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.cache[expression] = program
	h.mu.Unlock()
	return program, nil
}
