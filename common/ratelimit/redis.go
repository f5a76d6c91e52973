package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// fixed-window counter: INCR the key, set the expiry on first hit, and
// report retry-after from the key TTL when over the limit.
const redisLimitScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local count = redis.call('INCR', key)
if count == 1 then
  redis.call('EXPIRE', key, window)
end

if count > limit then
  local ttl = redis.call('TTL', key)
  if ttl < 0 then ttl = window end
  return {0, count, limit, ttl}
end

return {1, count, limit, 0}
`

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// APILimitResult contains the result of an API rate limit check.
type APILimitResult struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// RedisLimiter rate-limits the HTTP API using Redis so the count is shared
// across replicas. Node-level rate_limit buckets are in-process (Registry);
// this limiter only guards the service surface.
type RedisLimiter struct {
	redis  *redis.Client
	script *redis.Script
	logger Logger
}

// NewRedisLimiter creates an API rate limiter backed by Redis.
func NewRedisLimiter(redisClient *redis.Client, logger Logger) *RedisLimiter {
	return &RedisLimiter{
		redis:  redisClient,
		script: redis.NewScript(redisLimitScript),
		logger: logger,
	}
}

// CheckGlobalLimit checks the service-wide request limit over a one-minute
// window.
func (r *RedisLimiter) CheckGlobalLimit(ctx context.Context, limit int64) (*APILimitResult, error) {
	return r.checkLimit(ctx, "rate_limit:global", limit, 60)
}

// CheckClientLimit checks the per-client request limit over a one-minute
// window. The client key is typically the remote IP.
func (r *RedisLimiter) CheckClientLimit(ctx context.Context, client string, limit int64) (*APILimitResult, error) {
	return r.checkLimit(ctx, fmt.Sprintf("rate_limit:client:%s", client), limit, 60)
}

func (r *RedisLimiter) checkLimit(ctx context.Context, key string, limit int64, windowSec int) (*APILimitResult, error) {
	result, err := r.script.Run(ctx, r.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		r.logger.Error("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	// Parse result array: {allowed, current_count, limit, retry_after}
	resultArray, ok := result.([]interface{})
	if !ok || len(resultArray) != 4 {
		return nil, fmt.Errorf("unexpected script result format")
	}

	allowed := resultArray[0].(int64) == 1
	out := &APILimitResult{
		Allowed:           allowed,
		CurrentCount:      resultArray[1].(int64),
		Limit:             resultArray[2].(int64),
		RetryAfterSeconds: resultArray[3].(int64),
	}

	if !allowed {
		r.logger.Warn("rate limit exceeded",
			"key", key,
			"current", out.CurrentCount,
			"limit", limit,
			"retry_after", out.RetryAfterSeconds)
	}

	return out, nil
}

// ResetLimit clears a rate limit counter (for testing/admin)
func (r *RedisLimiter) ResetLimit(ctx context.Context, key string) error {
	return r.redis.Del(ctx, key).Err()
}
