package nodes

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// RetryHandler re-runs an operation body with configurable backoff until it
// succeeds, the attempt budget runs out, or the error kind is non-retryable.
type RetryHandler struct{}

// NewRetry creates the retry handler.
func NewRetry() *RetryHandler {
	return &RetryHandler{}
}

func (h *RetryHandler) NodeType() string {
	return models.TypeRetry
}

func (h *RetryHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	operations := models.GetList(node.Parameters, "operations")
	maxRetries := models.GetInt(node.Parameters, "maxRetries", 3)
	strategy := models.GetString(node.Parameters, "backoffStrategy", "exponential")
	initialDelay := time.Duration(models.GetInt(node.Parameters, "initialDelayMs", 1000)) * time.Millisecond
	maxDelay := time.Duration(models.GetInt(node.Parameters, "maxDelayMs", 30000)) * time.Millisecond
	multiplier := models.GetFloat(node.Parameters, "multiplier", 2.0)
	jitter := models.GetBool(node.Parameters, "jitter", true)
	jitterFactor := models.GetFloat(node.Parameters, "jitterFactor", 0.1)
	retryable := models.GetStringList(node.Parameters, "retryableErrors")
	nonRetryable := models.GetStringList(node.Parameters, "nonRetryableErrors")

	started := time.Now()
	var totalDelay time.Duration
	var attemptErrors []any
	var lastErr error

	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, flowerr.Wrap(flowerr.KindCancelled, err, "retry aborted before attempt %d", attempt+1)
		}

		attempts++
		result, err := ec.RunOperations(ctx, operations, input)
		if err == nil {
			out := models.Clone(input)
			out["success"] = true
			out["attemptCount"] = attempts
			out["totalDelayMs"] = totalDelay.Milliseconds()
			out["totalTimeMs"] = time.Since(started).Milliseconds()
			out["backoffStrategy"] = strategy
			out["result"] = result
			return out, nil
		}

		lastErr = err
		kind := flowerr.KindOf(err)
		attemptErrors = append(attemptErrors, models.M{
			"attempt": attempts,
			"kind":    string(kind),
			"message": err.Error(),
		})

		// Cancellation aborts immediately, without further waits.
		if kind == flowerr.KindCancelled {
			return nil, err
		}
		if !retriableKind(kind, retryable, nonRetryable) || attempt == maxRetries {
			break
		}

		delay := backoffDelay(strategy, attempt, initialDelay, maxDelay, multiplier, jitter, jitterFactor)
		totalDelay += delay

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, flowerr.Wrap(flowerr.KindCancelled, ctx.Err(), "retry aborted during backoff")
		case <-timer.C:
		}
	}

	out := models.Clone(input)
	out["success"] = false
	out["attemptCount"] = attempts
	out["totalDelayMs"] = totalDelay.Milliseconds()
	out["totalTimeMs"] = time.Since(started).Milliseconds()
	out["backoffStrategy"] = strategy
	out["errors"] = attemptErrors
	out["lastError"] = lastErr.Error()
	return out, nil
}

// retriableKind applies the retry policy: a kind is retried when it is not
// listed as non-retryable and either no retryable list is given or it appears
// there.
func retriableKind(kind flowerr.Kind, retryable, nonRetryable []string) bool {
	for _, k := range nonRetryable {
		if k == string(kind) {
			return false
		}
	}
	if len(retryable) == 0 {
		return true
	}
	for _, k := range retryable {
		if k == string(kind) {
			return true
		}
	}
	return false
}

// backoffDelay computes the wait before retrying attempt a (0-based).
func backoffDelay(strategy string, attempt int, initial, max time.Duration, multiplier float64, jitter bool, jitterFactor float64) time.Duration {
	var delay time.Duration
	switch strategy {
	case "fixed":
		delay = initial
	case "linear":
		delay = time.Duration(float64(initial) * (1 + float64(attempt)*multiplier))
	case "fibonacci":
		delay = time.Duration(float64(initial) * float64(fib(attempt+1)))
	default: // exponential
		delay = time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	}

	if delay > max {
		delay = max
	}

	if jitter && delay > 0 {
		perturbation := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
		delay += time.Duration(perturbation)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

func fib(n int) int64 {
	if n <= 2 {
		return 1
	}
	a, b := int64(1), int64(1)
	for i := 3; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}
