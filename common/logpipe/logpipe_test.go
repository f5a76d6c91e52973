package logpipe

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/common/models"
)

// captureSink records every entry it receives.
type captureSink struct {
	name string
	mu   sync.Mutex
	got  []Entry
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Emit(_ context.Context, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, entry)
}

func (s *captureSink) entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.got))
	copy(out, s.got)
	return out
}

type panicSink struct{}

func (panicSink) Name() string                { return "panic" }
func (panicSink) Emit(context.Context, Entry) { panic("sink exploded") }

func TestEmitFansOutAndFillsDefaults(t *testing.T) {
	p := NewPipeline()
	a := &captureSink{name: "a"}
	b := &captureSink{name: "b"}
	p.AddSink(a, LevelTrace)
	p.AddSink(b, LevelTrace)

	p.Emit(context.Background(), LevelInfo, Entry{ExecutionID: "ex-1", Message: "hello"})

	for _, sink := range []*captureSink{a, b} {
		got := sink.entries()
		require.Len(t, got, 1)
		assert.Equal(t, "ex-1", got[0].ExecutionID)
		assert.Equal(t, "INFO", got[0].Level)
		assert.NotEmpty(t, got[0].ID)
		assert.False(t, got[0].Timestamp.IsZero())
	}
}

func TestEmitRespectsMinLevel(t *testing.T) {
	p := NewPipeline()
	s := &captureSink{name: "s"}
	p.AddSink(s, LevelWarn)

	p.Emit(context.Background(), LevelInfo, Entry{ExecutionID: "ex-1", Message: "quiet"})
	p.Emit(context.Background(), LevelError, Entry{ExecutionID: "ex-1", Message: "loud"})

	got := s.entries()
	require.Len(t, got, 1)
	assert.Equal(t, "loud", got[0].Message)
}

func TestSetEnabledMutesWithoutRemoving(t *testing.T) {
	p := NewPipeline()
	s := &captureSink{name: "s"}
	p.AddSink(s, LevelTrace)

	p.SetEnabled("s", false)
	p.Emit(context.Background(), LevelInfo, Entry{ExecutionID: "ex-1"})
	assert.Empty(t, s.entries())

	p.SetEnabled("s", true)
	p.Emit(context.Background(), LevelInfo, Entry{ExecutionID: "ex-1"})
	assert.Len(t, s.entries(), 1)
}

func TestPanickingSinkIsIsolated(t *testing.T) {
	p := NewPipeline()
	s := &captureSink{name: "s"}
	p.AddSink(panicSink{}, LevelTrace)
	p.AddSink(s, LevelTrace)

	var dropped string
	p.OnSinkPanic(func(sink string, _ any) { dropped = sink })

	p.Emit(context.Background(), LevelInfo, Entry{ExecutionID: "ex-1", Message: "survives"})

	assert.Equal(t, "panic", dropped)
	require.Len(t, s.entries(), 1)
	assert.Equal(t, "survives", s.entries()[0].Message)
}

func TestLoggerCarriesExecutionAndNodeIDs(t *testing.T) {
	p := NewPipeline()
	s := &captureSink{name: "s"}
	p.AddSink(s, LevelTrace)

	log := NewLogger(p, "ex-9")
	log.ExecutionStart(context.Background(), "wf-1")
	log.WithNodeID("node-a").Log(context.Background(), LevelInfo, "custom", models.M{"k": "v"})

	got := s.entries()
	require.Len(t, got, 2)
	assert.Equal(t, CategoryExecutionStart, got[0].Category)
	assert.Equal(t, "ex-9", got[0].ExecutionID)
	assert.Empty(t, got[0].NodeID)
	assert.Equal(t, "node-a", got[1].NodeID)
	assert.Equal(t, CategoryCustom, got[1].Category)
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log *Logger
	assert.NotPanics(t, func() {
		log.Error(context.Background(), "nowhere", nil)
	})
}

func TestMemorySinkRetainsAndTrims(t *testing.T) {
	s := NewMemorySink(3)
	for i := 0; i < 5; i++ {
		s.Emit(context.Background(), Entry{ExecutionID: "ex-1", Message: fmt.Sprintf("m%d", i)})
	}
	s.Emit(context.Background(), Entry{ExecutionID: "ex-2", Message: "other"})

	got := s.Entries("ex-1")
	require.Len(t, got, 3)
	assert.Equal(t, "m2", got[0].Message)
	assert.Equal(t, "m4", got[2].Message)
	assert.Len(t, s.Entries("ex-2"), 1)

	s.Forget("ex-1")
	assert.Empty(t, s.Entries("ex-1"))
	assert.Len(t, s.Entries("ex-2"), 1)
}

func TestParseLevelRoundTrips(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, "WARN", LevelWarn.String())
}
