package logpipe

import (
	"context"
	"sync"

	"github.com/flowmesh/flowmesh/common/logger"
)

// SlogSink forwards entries to the service logger.
type SlogSink struct {
	log *logger.Logger
}

// NewSlogSink creates a sink writing through the given logger.
func NewSlogSink(log *logger.Logger) *SlogSink {
	return &SlogSink{log: log}
}

func (s *SlogSink) Name() string { return "slog" }

func (s *SlogSink) Emit(ctx context.Context, entry Entry) {
	args := []any{
		"execution_id", entry.ExecutionID,
		"category", string(entry.Category),
	}
	if entry.NodeID != "" {
		args = append(args, "node_id", entry.NodeID)
	}
	for k, v := range entry.Context {
		args = append(args, k, v)
	}

	switch ParseLevel(entry.Level) {
	case LevelTrace, LevelDebug:
		s.log.DebugContext(ctx, entry.Message, args...)
	case LevelInfo:
		s.log.InfoContext(ctx, entry.Message, args...)
	case LevelWarn:
		s.log.WarnContext(ctx, entry.Message, args...)
	default:
		// ErrorContext on the service logger appends a stack trace, which is
		// noise for handler-level failures that already carry context.
		s.log.Logger.ErrorContext(ctx, entry.Message, args...)
	}
}

// MemorySink retains entries per execution so the API can serve execution
// logs after the run finishes. Retention is bounded per execution.
type MemorySink struct {
	mu         sync.RWMutex
	byExec     map[string][]Entry
	maxPerExec int
}

// NewMemorySink creates a sink retaining up to maxPerExec entries per
// execution. Zero or negative means unbounded.
func NewMemorySink(maxPerExec int) *MemorySink {
	return &MemorySink{
		byExec:     make(map[string][]Entry),
		maxPerExec: maxPerExec,
	}
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Emit(ctx context.Context, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.byExec[entry.ExecutionID], entry)
	if s.maxPerExec > 0 && len(entries) > s.maxPerExec {
		entries = entries[len(entries)-s.maxPerExec:]
	}
	s.byExec[entry.ExecutionID] = entries
}

// Entries returns a copy of the retained entries for an execution, in emit
// order.
func (s *MemorySink) Entries(executionID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.byExec[executionID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Forget drops the retained entries for an execution.
func (s *MemorySink) Forget(executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byExec, executionID)
}
