package logpipe

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowmesh/flowmesh/common/models"
)

// Level is the severity of a log entry.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the canonical upper-case level name.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	}
	return "INFO"
}

// ParseLevel maps a level name to its Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch s {
	case "TRACE", "trace":
		return LevelTrace
	case "DEBUG", "debug":
		return LevelDebug
	case "INFO", "info":
		return LevelInfo
	case "WARN", "warn":
		return LevelWarn
	case "ERROR", "error":
		return LevelError
	case "FATAL", "fatal":
		return LevelFatal
	}
	return LevelInfo
}

// Category classifies what lifecycle moment an entry records.
type Category string

const (
	CategoryExecutionStart Category = "EXECUTION_START"
	CategoryExecutionEnd   Category = "EXECUTION_END"
	CategoryNodeStart      Category = "NODE_START"
	CategoryNodeEnd        Category = "NODE_END"
	CategoryError          Category = "ERROR"
	CategoryCustom         Category = "CUSTOM"
)

// Entry is one structured log record flowing through the pipeline.
type Entry struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Level       string    `json:"level"`
	Category    Category  `json:"category"`
	Message     string    `json:"message"`
	Context     models.M  `json:"context,omitempty"`
}

// Sink consumes log entries. Emit must not block for long; slow sinks stall
// the emitting node goroutine.
type Sink interface {
	Name() string
	Emit(ctx context.Context, entry Entry)
}

type sinkSlot struct {
	sink     Sink
	minLevel Level
	enabled  bool
}

// Pipeline fans log entries out to registered sinks. A panicking sink is
// isolated so one bad consumer cannot take down an execution.
type Pipeline struct {
	mu     sync.RWMutex
	sinks  []*sinkSlot
	onDrop func(sink string, r any)
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// OnSinkPanic installs a callback invoked when a sink panics during Emit.
func (p *Pipeline) OnSinkPanic(fn func(sink string, recovered any)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDrop = fn
}

// AddSink registers a sink that receives entries at or above minLevel.
func (p *Pipeline) AddSink(sink Sink, minLevel Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, &sinkSlot{sink: sink, minLevel: minLevel, enabled: true})
}

// SetEnabled toggles a sink by name without removing it.
func (p *Pipeline) SetEnabled(name string, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, slot := range p.sinks {
		if slot.sink.Name() == name {
			slot.enabled = enabled
		}
	}
}

// SetMinLevel changes a sink's threshold by name.
func (p *Pipeline) SetMinLevel(name string, minLevel Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, slot := range p.sinks {
		if slot.sink.Name() == name {
			slot.minLevel = minLevel
		}
	}
}

// Emit broadcasts an entry to every enabled sink whose threshold admits it.
func (p *Pipeline) Emit(ctx context.Context, level Level, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Level = level.String()

	p.mu.RLock()
	slots := make([]*sinkSlot, len(p.sinks))
	copy(slots, p.sinks)
	onDrop := p.onDrop
	p.mu.RUnlock()

	for _, slot := range slots {
		if !slot.enabled || level < slot.minLevel {
			continue
		}
		p.safeEmit(ctx, slot.sink, entry, onDrop)
	}
}

func (p *Pipeline) safeEmit(ctx context.Context, sink Sink, entry Entry, onDrop func(string, any)) {
	defer func() {
		if r := recover(); r != nil && onDrop != nil {
			onDrop(sink.Name(), r)
		}
	}()
	sink.Emit(ctx, entry)
}

// Logger is the per-execution view handed to node handlers. All entries it
// emits carry the execution id, and node-scoped loggers carry the node id too.
type Logger struct {
	pipeline    *Pipeline
	executionID string
	nodeID      string
}

// NewLogger binds a pipeline to an execution.
func NewLogger(pipeline *Pipeline, executionID string) *Logger {
	return &Logger{pipeline: pipeline, executionID: executionID}
}

// WithNodeID returns a logger whose entries carry the node id.
func (l *Logger) WithNodeID(nodeID string) *Logger {
	return &Logger{pipeline: l.pipeline, executionID: l.executionID, nodeID: nodeID}
}

// ExecutionID returns the execution this logger is bound to.
func (l *Logger) ExecutionID() string {
	return l.executionID
}

func (l *Logger) emit(ctx context.Context, level Level, category Category, message string, fields models.M) {
	if l == nil || l.pipeline == nil {
		return
	}
	l.pipeline.Emit(ctx, level, Entry{
		ExecutionID: l.executionID,
		NodeID:      l.nodeID,
		Category:    category,
		Message:     message,
		Context:     fields,
	})
}

// ExecutionStart records the start of a workflow execution.
func (l *Logger) ExecutionStart(ctx context.Context, workflowID string) {
	l.emit(ctx, LevelInfo, CategoryExecutionStart, "execution started", models.M{"workflow_id": workflowID})
}

// ExecutionEnd records the terminal status of an execution.
func (l *Logger) ExecutionEnd(ctx context.Context, status string, duration time.Duration) {
	l.emit(ctx, LevelInfo, CategoryExecutionEnd, "execution finished", models.M{
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
}

// NodeStart records a node beginning work.
func (l *Logger) NodeStart(ctx context.Context, nodeID, nodeType string) {
	l.emit(ctx, LevelDebug, CategoryNodeStart, "node started", models.M{
		"node_id":   nodeID,
		"node_type": nodeType,
	})
}

// NodeEnd records a node finishing, with its status and duration.
func (l *Logger) NodeEnd(ctx context.Context, nodeID, status string, duration time.Duration) {
	l.emit(ctx, LevelDebug, CategoryNodeEnd, "node finished", models.M{
		"node_id":     nodeID,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
}

// Error records a failure.
func (l *Logger) Error(ctx context.Context, message string, fields models.M) {
	l.emit(ctx, LevelError, CategoryError, message, fields)
}

// Log emits a custom entry for handler-authored messages.
func (l *Logger) Log(ctx context.Context, level Level, message string, fields models.M) {
	l.emit(ctx, level, CategoryCustom, message, fields)
}
