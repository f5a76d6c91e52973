package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/models"
)

// Handler realises one node type's semantics. Handlers must honor ctx at
// every I/O boundary and between internal steps.
type Handler interface {
	NodeType() string
	Execute(ctx context.Context, node *models.Node, input models.M, ec *ExecutionContext) (models.M, error)
}

// Registry maps node type tags to handlers. It is populated at startup and
// read-only afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler, rejecting duplicate node types.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	nodeType := h.NodeType()
	if _, exists := r.handlers[nodeType]; exists {
		return fmt.Errorf("handler already registered for node type %q", nodeType)
	}
	r.handlers[nodeType] = h
	return nil
}

// MustRegister adds a handler and panics on a duplicate. Used during startup
// wiring where a duplicate is a programming error.
func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler for a node type.
func (r *Registry) Lookup(nodeType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[nodeType]
	if !ok {
		return nil, flowerr.New(flowerr.KindUnknownNodeType, "no handler registered for node type %q", nodeType)
	}
	return h, nil
}

// Types returns the registered node types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
