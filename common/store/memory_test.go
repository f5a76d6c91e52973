package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/common/models"
)

func sampleWorkflow(name string) *models.Workflow {
	return &models.Workflow{
		Name: name,
		Nodes: []*models.Node{
			{ID: "trigger", Type: models.TypeManualTrigger},
		},
	}
}

func TestMemoryWorkflowStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryWorkflowStore()

	wf := sampleWorkflow("first")
	require.NoError(t, s.Create(ctx, wf))
	require.NotEmpty(t, wf.ID)
	assert.False(t, wf.CreatedAt.IsZero())

	got, err := s.FindByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)

	got.Name = "renamed"
	require.NoError(t, s.Update(ctx, got))

	byName, err := s.FindByName(ctx, "renamed")
	require.NoError(t, err)
	assert.Equal(t, wf.ID, byName.ID)
	assert.Equal(t, wf.CreatedAt.Unix(), byName.CreatedAt.Unix())

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.Delete(ctx, wf.ID))
	_, err = s.FindByID(ctx, wf.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryWorkflowStoreMissesReturnNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryWorkflowStore()

	_, err := s.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindByName(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, sampleWorkflow("ghost")), ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "nope"), ErrNotFound)
}

func TestMemoryWorkflowStoreClonesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryWorkflowStore()

	wf := sampleWorkflow("isolated")
	require.NoError(t, s.Create(ctx, wf))

	// Mutating the caller's copy after Create must not leak into the store.
	wf.Nodes[0].ID = "mutated"
	got, err := s.FindByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "trigger", got.Nodes[0].ID)

	// Mutating a read result must not leak either.
	got.Nodes[0].ID = "also-mutated"
	again, err := s.FindByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "trigger", again.Nodes[0].ID)
}

func TestMemoryExecutionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExecutionStore()
	started := time.Now().UTC()

	require.NoError(t, s.CreateRunning(ctx, "ex-1", "wf-1", models.TriggerManual, models.M{"k": "v"}, started))

	exec, err := s.FindByID(ctx, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, exec.Status)
	assert.Equal(t, models.M{"k": "v"}, exec.Input)
	assert.Nil(t, exec.FinishedAt)

	require.NoError(t, s.AppendNodeExecution(ctx, "ex-1", models.NodeExecution{
		NodeID: "step",
		Status: models.StatusSuccess,
	}))

	finished := started.Add(time.Second)
	require.NoError(t, s.Finalize(ctx, "ex-1", models.StatusSuccess, finished, models.M{"out": 1}, ""))

	exec, err = s.FindByID(ctx, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, exec.Status)
	require.NotNil(t, exec.FinishedAt)
	assert.Equal(t, models.M{"out": 1}, exec.Output)
	require.Len(t, exec.NodeExecutions, 1)
	assert.Equal(t, "step", exec.NodeExecutions[0].NodeID)
}

func TestMemoryExecutionStoreFindByWorkflowID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExecutionStore()
	base := time.Now().UTC()

	require.NoError(t, s.CreateRunning(ctx, "ex-b", "wf-1", models.TriggerManual, nil, base.Add(time.Second)))
	require.NoError(t, s.CreateRunning(ctx, "ex-a", "wf-1", models.TriggerManual, nil, base))
	require.NoError(t, s.CreateRunning(ctx, "ex-other", "wf-2", models.TriggerManual, nil, base))

	out, err := s.FindByWorkflowID(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "ex-a", out[0].ID)
	assert.Equal(t, "ex-b", out[1].ID)
}

func TestMemoryExecutionStoreUnknownIDErrors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExecutionStore()

	assert.ErrorIs(t, s.AppendNodeExecution(ctx, "nope", models.NodeExecution{}), ErrNotFound)
	assert.ErrorIs(t, s.Finalize(ctx, "nope", models.StatusSuccess, time.Now(), nil, ""), ErrNotFound)
	_, err := s.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCredentialStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCredentialStore()
	s.Put("cred-1", "openai-key", "sk-test")

	v, ok := s.GetDecryptedByID(ctx, "cred-1")
	require.True(t, ok)
	assert.Equal(t, "sk-test", v)

	v, ok = s.GetDecryptedByName(ctx, "openai-key")
	require.True(t, ok)
	assert.Equal(t, "sk-test", v)

	_, ok = s.GetDecryptedByName(ctx, "missing")
	assert.False(t, ok)
}

func TestEnvCredentialStoreNormalisesNames(t *testing.T) {
	ctx := context.Background()
	s := NewEnvCredentialStore()

	t.Setenv("FLOWMESH_CRED_OPENAI_KEY", "sk-env")

	v, ok := s.GetDecryptedByName(ctx, "openai-key")
	require.True(t, ok)
	assert.Equal(t, "sk-env", v)

	// Ids resolve through the same namespace.
	v, ok = s.GetDecryptedByID(ctx, "openai.key")
	require.True(t, ok)
	assert.Equal(t, "sk-env", v)

	_, ok = s.GetDecryptedByName(ctx, "")
	assert.False(t, ok)
	_, ok = s.GetDecryptedByName(ctx, "absent")
	assert.False(t, ok)
}
