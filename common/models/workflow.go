package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/flowmesh/flowmesh/common/flowerr"
)

// Handle names used on edges. Branching nodes emit on "true"/"false" or on a
// rule name; everything else emits on "main".
const (
	HandleMain     = "main"
	HandleTrue     = "true"
	HandleFalse    = "false"
	HandleFallback = "fallback"
)

// Node type tags understood by the engine.
const (
	TypeManualTrigger   = "manualTrigger"
	TypeScheduleTrigger = "scheduleTrigger"
	TypeWebhookTrigger  = "webhookTrigger"
	TypeHTTPRequest     = "httpRequest"
	TypeCode            = "code"
	TypeExecuteCommand  = "executeCommand"
	TypeIf              = "if"
	TypeSwitch          = "switch"
	TypeMerge           = "merge"
	TypeLoop            = "loop"
	TypeSet             = "set"
	TypeFilter          = "filter"
	TypeSort            = "sort"
	TypeLLMChat         = "llmChat"
	TypeTextClassifier  = "textClassifier"
	TypeEmbedding       = "embedding"
	TypeRAG             = "rag"
	TypeSubworkflow     = "subworkflow"
	TypeTryCatch        = "tryCatch"
	TypeRetry           = "retry"
	TypeRateLimit       = "rate_limit"
)

// Position is the canvas coordinate of a node. The engine ignores it but the
// definition round-trips it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a typed unit of work inside a workflow.
type Node struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Name          string   `json:"name"`
	Position      Position `json:"position"`
	Parameters    M        `json:"parameters"`
	CredentialRef string   `json:"credential_ref,omitempty"`
	Disabled      bool     `json:"disabled"`
	Notes         string   `json:"notes,omitempty"`
}

// IsTrigger reports whether the node starts executions rather than receiving
// data from upstream nodes.
func (n *Node) IsTrigger() bool {
	return strings.HasSuffix(n.Type, "Trigger")
}

// Edge is a directed connector between two nodes. Blank handles default to
// "main".
type Edge struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"source_node_id"`
	SourceHandle string `json:"source_handle"`
	TargetNodeID string `json:"target_node_id"`
	TargetHandle string `json:"target_handle"`
}

// FromHandle returns the source handle, defaulting blank to "main".
func (e *Edge) FromHandle() string {
	if e.SourceHandle == "" {
		return HandleMain
	}
	return e.SourceHandle
}

// ToHandle returns the target handle, defaulting blank to "main".
func (e *Edge) ToHandle() string {
	if e.TargetHandle == "" {
		return HandleMain
	}
	return e.TargetHandle
}

// Workflow is a declared graph of nodes and edges plus settings. It is
// referenced read-only during a run.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Nodes       []*Node   `json:"nodes"`
	Edges       []*Edge   `json:"edges"`
	Settings    M         `json:"settings,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// IncomingEdges returns all edges targeting the given node.
func (w *Workflow) IncomingEdges(nodeID string) []*Edge {
	var edges []*Edge
	for _, e := range w.Edges {
		if e.TargetNodeID == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

// OutgoingEdges returns all edges leaving the given node.
func (w *Workflow) OutgoingEdges(nodeID string) []*Edge {
	var edges []*Edge
	for _, e := range w.Edges {
		if e.SourceNodeID == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

// TriggerNodes returns trigger-typed nodes with no incoming edges. These form
// the initial frontier of an execution.
func (w *Workflow) TriggerNodes() []*Node {
	var triggers []*Node
	for _, n := range w.Nodes {
		if n.IsTrigger() && len(w.IncomingEdges(n.ID)) == 0 {
			triggers = append(triggers, n)
		}
	}
	return triggers
}

// Validate checks the structural invariants of the workflow: non-blank node
// ids and types, unique ids, edge endpoints referencing existing nodes, no
// self-edges, triggers never appearing as edge targets, and acyclic plain
// edges. Loop iteration happens inside the loop handler, so the edge graph
// itself must be a DAG.
func (w *Workflow) Validate() error {
	if len(w.Nodes) == 0 {
		return flowerr.New(flowerr.KindInvalidWorkflow, "workflow %q has no nodes", w.Name)
	}

	seen := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if n.ID == "" {
			return flowerr.New(flowerr.KindInvalidWorkflow, "node with blank id")
		}
		if n.Type == "" {
			return flowerr.New(flowerr.KindInvalidWorkflow, "node %s has blank type", n.ID)
		}
		if seen[n.ID] {
			return flowerr.New(flowerr.KindInvalidWorkflow, "duplicate node id %s", n.ID)
		}
		seen[n.ID] = true
		if n.Parameters == nil {
			n.Parameters = M{}
		}
	}

	for _, e := range w.Edges {
		if !seen[e.SourceNodeID] {
			return flowerr.New(flowerr.KindInvalidWorkflow, "edge %s references unknown source node %s", e.ID, e.SourceNodeID)
		}
		if !seen[e.TargetNodeID] {
			return flowerr.New(flowerr.KindInvalidWorkflow, "edge %s references unknown target node %s", e.ID, e.TargetNodeID)
		}
		if e.SourceNodeID == e.TargetNodeID {
			return flowerr.New(flowerr.KindInvalidWorkflow, "self-edge on node %s", e.SourceNodeID)
		}
		if target := w.NodeByID(e.TargetNodeID); target.IsTrigger() {
			return flowerr.New(flowerr.KindInvalidWorkflow, "trigger node %s may not be an edge target", e.TargetNodeID)
		}
	}

	return w.checkAcyclic()
}

// checkAcyclic runs Kahn's algorithm over the plain edges and rejects any
// leftover nodes as a cycle.
func (w *Workflow) checkAcyclic() error {
	inDegree := make(map[string]int, len(w.Nodes))
	adjacency := make(map[string][]string, len(w.Nodes))
	for _, n := range w.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range w.Edges {
		adjacency[e.SourceNodeID] = append(adjacency[e.SourceNodeID], e.TargetNodeID)
		inDegree[e.TargetNodeID]++
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if processed != len(w.Nodes) {
		return flowerr.New(flowerr.KindInvalidWorkflow, "cycle detected in workflow %q", w.Name)
	}
	return nil
}

// Clone returns a deep copy safe to hand across store boundaries.
func (w *Workflow) Clone() *Workflow {
	out := *w
	out.Nodes = make([]*Node, len(w.Nodes))
	for i, n := range w.Nodes {
		nc := *n
		nc.Parameters = Clone(n.Parameters)
		out.Nodes[i] = &nc
	}
	out.Edges = make([]*Edge, len(w.Edges))
	for i, e := range w.Edges {
		ec := *e
		out.Edges[i] = &ec
	}
	out.Settings = Clone(w.Settings)
	return &out
}

// String implements fmt.Stringer for log output.
func (w *Workflow) String() string {
	return fmt.Sprintf("Workflow(%s, %d nodes, %d edges)", w.Name, len(w.Nodes), len(w.Edges))
}
