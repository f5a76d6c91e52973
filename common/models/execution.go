package models

import "time"

// ExecutionStatus is the lifecycle state of an execution or node execution.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "PENDING"
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusSuccess   ExecutionStatus = "SUCCESS"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusCancelled ExecutionStatus = "CANCELLED"
	StatusWaiting   ExecutionStatus = "WAITING"
	StatusSkipped   ExecutionStatus = "SKIPPED"
)

// IsTerminal reports whether the status is final.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TriggerType records how an execution was started.
type TriggerType string

const (
	TriggerManual      TriggerType = "MANUAL"
	TriggerSchedule    TriggerType = "SCHEDULE"
	TriggerWebhook     TriggerType = "WEBHOOK"
	TriggerSubworkflow TriggerType = "SUBWORKFLOW"
)

// NodeExecution records one node's participation in a run. Entries are
// appended in handler-completion order.
type NodeExecution struct {
	NodeID       string          `json:"node_id"`
	NodeName     string          `json:"node_name"`
	NodeType     string          `json:"node_type"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	Input        M               `json:"input,omitempty"`
	Output       M               `json:"output,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Duration returns the node's wall-clock runtime.
func (n *NodeExecution) Duration() time.Duration {
	if n.StartedAt.IsZero() || n.FinishedAt.IsZero() {
		return 0
	}
	return n.FinishedAt.Sub(n.StartedAt)
}

// Execution is the durable record of one workflow run. FinishedAt is set iff
// the status is terminal.
type Execution struct {
	ID             string           `json:"id"`
	WorkflowID     string           `json:"workflow_id"`
	Status         ExecutionStatus  `json:"status"`
	TriggerType    TriggerType      `json:"trigger_type"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
	Input          M                `json:"input,omitempty"`
	Output         M                `json:"output,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	NodeExecutions []*NodeExecution `json:"node_executions,omitempty"`
}

// Duration returns the run's wall-clock time, live for unfinished runs.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt.IsZero() {
		return 0
	}
	if e.FinishedAt == nil {
		return time.Since(e.StartedAt)
	}
	return e.FinishedAt.Sub(e.StartedAt)
}
