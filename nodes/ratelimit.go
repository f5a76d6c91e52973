package nodes

import (
	"context"
	"time"

	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/common/ratelimit"
	"github.com/flowmesh/flowmesh/engine"
)

// RateLimitHandler gates an operation body behind a process-wide bucket.
// Buckets are shared across executions by bucket id.
type RateLimitHandler struct {
	buckets *ratelimit.Registry
}

// NewRateLimit creates the rate_limit handler over a shared bucket registry.
func NewRateLimit(buckets *ratelimit.Registry) *RateLimitHandler {
	return &RateLimitHandler{buckets: buckets}
}

func (h *RateLimitHandler) NodeType() string {
	return models.TypeRateLimit
}

func (h *RateLimitHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	p := node.Parameters
	operations := models.GetList(p, "operations")
	bucketID := models.GetString(p, "bucketId", "default")
	strategy := ratelimit.ParseStrategy(models.GetString(p, "strategy", "token_bucket"))
	wait := models.GetBool(p, "waitForTokens", true)
	maxWait := time.Duration(models.GetInt(p, "maxWaitMs", 60000)) * time.Millisecond

	req := ratelimit.Request{
		BucketID: bucketID,
		Strategy: strategy,
		Wait:     wait,
		MaxWait:  maxWait,
		TokenBucket: ratelimit.TokenBucketParams{
			TokensPerSecond:  models.GetFloat(p, "tokensPerSecond", 10),
			MaxTokens:        models.GetFloat(p, "maxTokens", 100),
			TokensPerRequest: models.GetFloat(p, "tokensPerRequest", 1),
		},
		SlidingWindow: ratelimit.SlidingWindowParams{
			WindowSize:  time.Duration(models.GetInt(p, "windowSizeMs", 1000)) * time.Millisecond,
			MaxRequests: models.GetInt(p, "maxRequestsPerWindow", 10),
		},
	}

	result, err := h.buckets.Acquire(ctx, req)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindCancelled, err, "rate limit wait aborted")
	}

	out := models.Clone(input)
	out["bucketId"] = result.BucketID
	out["strategy"] = string(result.Strategy)
	out["waitedMs"] = result.Waited.Milliseconds()
	out["throttled"] = result.Throttled
	switch strategy {
	case ratelimit.StrategySlidingWindow:
		out["requestsInWindow"] = result.RequestsInWindow
	default:
		out["tokensRemaining"] = result.TokensRemaining
	}

	if !result.Acquired {
		if wait {
			// The waiting acquire exhausted its budget; that is an error the
			// surrounding retry/tryCatch can act on.
			return nil, flowerr.New(flowerr.KindRateLimited, "bucket %s: no capacity within %s", bucketID, maxWait)
		}
		out["success"] = false
		return out, nil
	}

	out["success"] = true
	if len(operations) > 0 {
		opOut, err := ec.RunOperations(ctx, operations, models.Clone(input))
		if err != nil {
			return nil, err
		}
		models.MergeInto(out, opOut)
		// Operation outputs must not clobber the acquire verdict.
		out["success"] = true
	}
	return out, nil
}
