package store

import (
	"context"
	"errors"
	"time"

	"github.com/flowmesh/flowmesh/common/models"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("not found")

// WorkflowStore provides workflow definitions to the engine and the API.
type WorkflowStore interface {
	FindByID(ctx context.Context, id string) (*models.Workflow, error)
	FindByName(ctx context.Context, name string) (*models.Workflow, error)
	Create(ctx context.Context, wf *models.Workflow) error
	Update(ctx context.Context, wf *models.Workflow) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Workflow, error)
}

// ExecutionStore records execution rows. The engine creates a row at run
// start, appends node executions as handlers finish, and seals the row once.
type ExecutionStore interface {
	CreateRunning(ctx context.Context, id, workflowID string, triggerType models.TriggerType, input models.M, startedAt time.Time) error
	AppendNodeExecution(ctx context.Context, executionID string, ne models.NodeExecution) error
	Finalize(ctx context.Context, executionID string, status models.ExecutionStatus, finishedAt time.Time, output models.M, errorMessage string) error
	FindByID(ctx context.Context, executionID string) (*models.Execution, error)
	FindByWorkflowID(ctx context.Context, workflowID string) ([]*models.Execution, error)
}

// CredentialStore resolves decrypted credential values. It also satisfies the
// interpolator's credential lookup.
type CredentialStore interface {
	GetDecryptedByID(ctx context.Context, id string) (string, bool)
	GetDecryptedByName(ctx context.Context, name string) (string, bool)
}
