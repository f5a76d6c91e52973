package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/common/flowerr"
)

func linearWorkflow() *Workflow {
	return &Workflow{
		ID:   "wf-1",
		Name: "linear",
		Nodes: []*Node{
			{ID: "trigger", Type: TypeManualTrigger},
			{ID: "step", Type: TypeSet, Parameters: M{"values": M{"a": 1}}},
		},
		Edges: []*Edge{
			{ID: "e1", SourceNodeID: "trigger", TargetNodeID: "step"},
		},
	}
}

func TestValidateAcceptsLinearGraph(t *testing.T) {
	require.NoError(t, linearWorkflow().Validate())
}

func TestValidateRejectsEmptyWorkflow(t *testing.T) {
	wf := &Workflow{Name: "empty"}
	err := wf.Validate()
	require.Error(t, err)
	assert.Equal(t, flowerr.KindInvalidWorkflow, flowerr.KindOf(err))
}

func TestValidateRejectsDuplicateNodeIDs(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, &Node{ID: "step", Type: TypeSet})
	err := wf.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, &Edge{ID: "e2", SourceNodeID: "step", TargetNodeID: "ghost"})
	err := wf.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target node")
}

func TestValidateRejectsSelfEdge(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, &Edge{ID: "e2", SourceNodeID: "step", TargetNodeID: "step"})
	require.Error(t, wf.Validate())
}

func TestValidateRejectsTriggerAsTarget(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, &Node{ID: "other", Type: TypeSet})
	wf.Edges = append(wf.Edges, &Edge{ID: "e2", SourceNodeID: "other", TargetNodeID: "trigger"})
	err := wf.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "may not be an edge target")
}

func TestValidateRejectsCycle(t *testing.T) {
	wf := &Workflow{
		ID:   "wf-cycle",
		Name: "cycle",
		Nodes: []*Node{
			{ID: "trigger", Type: TypeManualTrigger},
			{ID: "a", Type: TypeSet},
			{ID: "b", Type: TypeSet},
		},
		Edges: []*Edge{
			{ID: "e1", SourceNodeID: "trigger", TargetNodeID: "a"},
			{ID: "e2", SourceNodeID: "a", TargetNodeID: "b"},
			{ID: "e3", SourceNodeID: "b", TargetNodeID: "a"},
		},
	}
	err := wf.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestEdgeHandlesDefaultToMain(t *testing.T) {
	e := &Edge{SourceNodeID: "a", TargetNodeID: "b"}
	assert.Equal(t, HandleMain, e.FromHandle())
	assert.Equal(t, HandleMain, e.ToHandle())

	e.SourceHandle = HandleTrue
	assert.Equal(t, HandleTrue, e.FromHandle())
}

func TestIsTrigger(t *testing.T) {
	assert.True(t, (&Node{Type: TypeManualTrigger}).IsTrigger())
	assert.True(t, (&Node{Type: TypeWebhookTrigger}).IsTrigger())
	assert.False(t, (&Node{Type: TypeHTTPRequest}).IsTrigger())
}

func TestTriggerNodesExcludesWiredTriggers(t *testing.T) {
	wf := linearWorkflow()
	triggers := wf.TriggerNodes()
	require.Len(t, triggers, 1)
	assert.Equal(t, "trigger", triggers[0].ID)
}

func TestCloneIsDeep(t *testing.T) {
	wf := linearWorkflow()
	clone := wf.Clone()

	clone.Nodes[1].Parameters["values"] = M{"a": 99}
	clone.Edges[0].TargetNodeID = "elsewhere"

	assert.Equal(t, M{"a": 1}, wf.Nodes[1].Parameters["values"])
	assert.Equal(t, "step", wf.Edges[0].TargetNodeID)
}
