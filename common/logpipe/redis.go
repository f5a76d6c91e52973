package logpipe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flowmesh/flowmesh/common/logger"
)

// RedisSink publishes entries as JSON to a per-execution pub/sub channel so
// external consumers can stream execution events live.
type RedisSink struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisSink creates a sink publishing through the given Redis client.
func NewRedisSink(client *redis.Client, log *logger.Logger) *RedisSink {
	return &RedisSink{client: client, log: log}
}

func (s *RedisSink) Name() string { return "redis" }

// Channel returns the pub/sub channel for an execution.
func Channel(executionID string) string {
	return fmt.Sprintf("workflow:events:%s", executionID)
}

func (s *RedisSink) Emit(ctx context.Context, entry Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		s.log.Warn("failed to marshal log entry for redis", "error", err)
		return
	}
	if err := s.client.Publish(ctx, Channel(entry.ExecutionID), payload).Err(); err != nil {
		// Publishing is best-effort; a down Redis must not fail the execution.
		s.log.Warn("redis publish failed", "channel", Channel(entry.ExecutionID), "error", err)
	}
}
