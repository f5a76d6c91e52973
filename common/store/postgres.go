package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/flowmesh/flowmesh/common/db"
	"github.com/flowmesh/flowmesh/common/models"
)

// PostgresWorkflowStore persists workflow definitions. The graph itself is
// stored as JSONB; queries filter only on id and name.
type PostgresWorkflowStore struct {
	db *db.DB
}

// NewPostgresWorkflowStore creates a Postgres-backed workflow store.
func NewPostgresWorkflowStore(database *db.DB) *PostgresWorkflowStore {
	return &PostgresWorkflowStore{db: database}
}

func (s *PostgresWorkflowStore) FindByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT id, name, description, nodes, edges, settings, active, created_at, updated_at
		FROM workflow
		WHERE id = $1
	`
	return s.scanOne(s.db.QueryRow(ctx, query, id))
}

func (s *PostgresWorkflowStore) FindByName(ctx context.Context, name string) (*models.Workflow, error) {
	query := `
		SELECT id, name, description, nodes, edges, settings, active, created_at, updated_at
		FROM workflow
		WHERE name = $1
	`
	return s.scanOne(s.db.QueryRow(ctx, query, name))
}

func (s *PostgresWorkflowStore) scanOne(row pgx.Row) (*models.Workflow, error) {
	wf := &models.Workflow{}
	var nodes, edges, settings []byte
	err := row.Scan(
		&wf.ID,
		&wf.Name,
		&wf.Description,
		&nodes,
		&edges,
		&settings,
		&wf.Active,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if err := json.Unmarshal(nodes, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode workflow nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &wf.Edges); err != nil {
		return nil, fmt.Errorf("failed to decode workflow edges: %w", err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &wf.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode workflow settings: %w", err)
		}
	}
	return wf, nil
}

func (s *PostgresWorkflowStore) Create(ctx context.Context, wf *models.Workflow) error {
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	nodes, edges, settings, err := encodeGraph(wf)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow (id, name, description, nodes, edges, settings, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.Exec(ctx, query,
		wf.ID,
		wf.Name,
		wf.Description,
		nodes,
		edges,
		settings,
		wf.Active,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

func (s *PostgresWorkflowStore) Update(ctx context.Context, wf *models.Workflow) error {
	wf.UpdatedAt = time.Now().UTC()

	nodes, edges, settings, err := encodeGraph(wf)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow
		SET name = $2, description = $3, nodes = $4, edges = $5, settings = $6, active = $7, updated_at = $8
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query,
		wf.ID,
		wf.Name,
		wf.Description,
		nodes,
		edges,
		settings,
		wf.Active,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresWorkflowStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM workflow WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresWorkflowStore) List(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT id, name, description, nodes, edges, settings, active, created_at, updated_at
		FROM workflow
		ORDER BY created_at
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var out []*models.Workflow
	for rows.Next() {
		wf, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func encodeGraph(wf *models.Workflow) (nodes, edges, settings []byte, err error) {
	if nodes, err = json.Marshal(wf.Nodes); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode workflow nodes: %w", err)
	}
	if edges, err = json.Marshal(wf.Edges); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode workflow edges: %w", err)
	}
	if settings, err = json.Marshal(wf.Settings); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode workflow settings: %w", err)
	}
	return nodes, edges, settings, nil
}

// PostgresExecutionStore persists execution rows. Node executions live in a
// JSONB column appended in handler-completion order.
type PostgresExecutionStore struct {
	db *db.DB
}

// NewPostgresExecutionStore creates a Postgres-backed execution store.
func NewPostgresExecutionStore(database *db.DB) *PostgresExecutionStore {
	return &PostgresExecutionStore{db: database}
}

func (s *PostgresExecutionStore) CreateRunning(ctx context.Context, id, workflowID string, triggerType models.TriggerType, input models.M, startedAt time.Time) error {
	encoded, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to encode execution input: %w", err)
	}

	query := `
		INSERT INTO execution (id, workflow_id, status, trigger_type, started_at, input, node_executions)
		VALUES ($1, $2, $3, $4, $5, $6, '[]'::jsonb)
	`
	_, err = s.db.Exec(ctx, query, id, workflowID, models.StatusRunning, triggerType, startedAt, encoded)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

func (s *PostgresExecutionStore) AppendNodeExecution(ctx context.Context, executionID string, ne models.NodeExecution) error {
	encoded, err := json.Marshal(ne)
	if err != nil {
		return fmt.Errorf("failed to encode node execution: %w", err)
	}

	query := `
		UPDATE execution
		SET node_executions = node_executions || $2::jsonb
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, executionID, encoded)
	if err != nil {
		return fmt.Errorf("failed to append node execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresExecutionStore) Finalize(ctx context.Context, executionID string, status models.ExecutionStatus, finishedAt time.Time, output models.M, errorMessage string) error {
	encoded, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to encode execution output: %w", err)
	}

	query := `
		UPDATE execution
		SET status = $2, finished_at = $3, output = $4, error_message = $5
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, executionID, status, finishedAt, encoded, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to finalize execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresExecutionStore) FindByID(ctx context.Context, executionID string) (*models.Execution, error) {
	query := `
		SELECT id, workflow_id, status, trigger_type, started_at, finished_at, input, output, error_message, node_executions
		FROM execution
		WHERE id = $1
	`
	return s.scanOne(s.db.QueryRow(ctx, query, executionID))
}

func (s *PostgresExecutionStore) FindByWorkflowID(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := `
		SELECT id, workflow_id, status, trigger_type, started_at, finished_at, input, output, error_message, node_executions
		FROM execution
		WHERE workflow_id = $1
		ORDER BY started_at
	`
	rows, err := s.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []*models.Execution
	for rows.Next() {
		exec, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func (s *PostgresExecutionStore) scanOne(row pgx.Row) (*models.Execution, error) {
	exec := &models.Execution{}
	var input, output, nodeExecs []byte
	var errorMessage *string
	err := row.Scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.Status,
		&exec.TriggerType,
		&exec.StartedAt,
		&exec.FinishedAt,
		&input,
		&output,
		&errorMessage,
		&nodeExecs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	if errorMessage != nil {
		exec.ErrorMessage = *errorMessage
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &exec.Input); err != nil {
			return nil, fmt.Errorf("failed to decode execution input: %w", err)
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &exec.Output); err != nil {
			return nil, fmt.Errorf("failed to decode execution output: %w", err)
		}
	}
	if len(nodeExecs) > 0 {
		if err := json.Unmarshal(nodeExecs, &exec.NodeExecutions); err != nil {
			return nil, fmt.Errorf("failed to decode node executions: %w", err)
		}
	}
	return exec, nil
}
