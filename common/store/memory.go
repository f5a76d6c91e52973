package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowmesh/flowmesh/common/models"
)

// MemoryWorkflowStore is the in-process workflow store used when Postgres is
// disabled, and by tests.
type MemoryWorkflowStore struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
}

// NewMemoryWorkflowStore creates an empty in-memory workflow store.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{workflows: make(map[string]*models.Workflow)}
}

func (s *MemoryWorkflowStore) FindByID(ctx context.Context, id string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return wf.Clone(), nil
}

func (s *MemoryWorkflowStore) FindByName(ctx context.Context, name string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, wf := range s.workflows {
		if wf.Name == name {
			return wf.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryWorkflowStore) Create(ctx context.Context, wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	s.workflows[wf.ID] = wf.Clone()
	return nil
}

func (s *MemoryWorkflowStore) Update(ctx context.Context, wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.workflows[wf.ID]
	if !ok {
		return ErrNotFound
	}
	wf.CreatedAt = existing.CreatedAt
	wf.UpdatedAt = time.Now().UTC()
	s.workflows[wf.ID] = wf.Clone()
	return nil
}

func (s *MemoryWorkflowStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

func (s *MemoryWorkflowStore) List(ctx context.Context) ([]*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, wf.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MemoryExecutionStore records executions in process memory.
type MemoryExecutionStore struct {
	mu         sync.RWMutex
	executions map[string]*models.Execution
}

// NewMemoryExecutionStore creates an empty in-memory execution store.
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{executions: make(map[string]*models.Execution)}
}

func (s *MemoryExecutionStore) CreateRunning(ctx context.Context, id, workflowID string, triggerType models.TriggerType, input models.M, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[id] = &models.Execution{
		ID:          id,
		WorkflowID:  workflowID,
		Status:      models.StatusRunning,
		TriggerType: triggerType,
		StartedAt:   startedAt,
		Input:       models.Clone(input),
	}
	return nil
}

func (s *MemoryExecutionStore) AppendNodeExecution(ctx context.Context, executionID string, ne models.NodeExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[executionID]
	if !ok {
		return ErrNotFound
	}
	exec.NodeExecutions = append(exec.NodeExecutions, &ne)
	return nil
}

func (s *MemoryExecutionStore) Finalize(ctx context.Context, executionID string, status models.ExecutionStatus, finishedAt time.Time, output models.M, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[executionID]
	if !ok {
		return ErrNotFound
	}
	exec.Status = status
	exec.FinishedAt = &finishedAt
	exec.Output = models.Clone(output)
	exec.ErrorMessage = errorMessage
	return nil
}

func (s *MemoryExecutionStore) FindByID(ctx context.Context, executionID string) (*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneExecution(exec), nil
}

func (s *MemoryExecutionStore) FindByWorkflowID(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Execution
	for _, exec := range s.executions {
		if exec.WorkflowID == workflowID {
			out = append(out, cloneExecution(exec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func cloneExecution(exec *models.Execution) *models.Execution {
	out := *exec
	out.NodeExecutions = make([]*models.NodeExecution, len(exec.NodeExecutions))
	for i, ne := range exec.NodeExecutions {
		nc := *ne
		out.NodeExecutions[i] = &nc
	}
	return &out
}

// MemoryCredentialStore holds decrypted credentials keyed by id and name.
type MemoryCredentialStore struct {
	mu     sync.RWMutex
	byID   map[string]string
	byName map[string]string
}

// NewMemoryCredentialStore creates an empty in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:   make(map[string]string),
		byName: make(map[string]string),
	}
}

// Put stores a credential under both its id and name.
func (s *MemoryCredentialStore) Put(id, name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		s.byID[id] = value
	}
	if name != "" {
		s.byName[name] = value
	}
}

func (s *MemoryCredentialStore) GetDecryptedByID(ctx context.Context, id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[id]
	return v, ok
}

func (s *MemoryCredentialStore) GetDecryptedByName(ctx context.Context, name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byName[name]
	return v, ok
}
