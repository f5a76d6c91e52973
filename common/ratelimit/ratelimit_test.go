package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenRequest(id string, maxTokens float64) Request {
	return Request{
		BucketID: id,
		Strategy: StrategyTokenBucket,
		TokenBucket: TokenBucketParams{
			TokensPerSecond:  1,
			MaxTokens:        maxTokens,
			TokensPerRequest: 1,
		},
	}
}

func TestTokenBucketGrantsUntilEmpty(t *testing.T) {
	reg := NewRegistry()
	req := tokenRequest("tb-empty", 2)

	for i := 0; i < 2; i++ {
		res, err := reg.Acquire(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, res.Acquired)
	}

	res, err := reg.Acquire(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Acquired)
	assert.True(t, res.Throttled)
	assert.Less(t, res.TokensRemaining, 1.0)
}

func TestTokenBucketRefills(t *testing.T) {
	reg := NewRegistry()
	req := Request{
		BucketID: "tb-refill",
		Strategy: StrategyTokenBucket,
		TokenBucket: TokenBucketParams{
			TokensPerSecond:  100,
			MaxTokens:        1,
			TokensPerRequest: 1,
		},
	}

	res, err := reg.Acquire(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Acquired)

	// At 100 tokens/s a full token is back within ~10ms.
	time.Sleep(30 * time.Millisecond)

	res, err = reg.Acquire(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Acquired)
}

func TestSlidingWindowCapsRequestsInWindow(t *testing.T) {
	reg := NewRegistry()
	req := Request{
		BucketID: "sw",
		Strategy: StrategySlidingWindow,
		SlidingWindow: SlidingWindowParams{
			WindowSize:  time.Minute,
			MaxRequests: 3,
		},
	}

	for i := 0; i < 3; i++ {
		res, err := reg.Acquire(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, res.Acquired)
	}

	res, err := reg.Acquire(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Acquired)
	assert.Equal(t, 3, res.RequestsInWindow)
}

func TestSlidingWindowEvictsOldGrants(t *testing.T) {
	reg := NewRegistry()
	req := Request{
		BucketID: "sw-evict",
		Strategy: StrategySlidingWindow,
		SlidingWindow: SlidingWindowParams{
			WindowSize:  20 * time.Millisecond,
			MaxRequests: 1,
		},
	}

	res, err := reg.Acquire(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Acquired)

	time.Sleep(40 * time.Millisecond)

	res, err = reg.Acquire(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Acquired)
}

func TestWaitBlocksUntilGranted(t *testing.T) {
	reg := NewRegistry()
	req := Request{
		BucketID: "tb-wait",
		Strategy: StrategyTokenBucket,
		Wait:     true,
		MaxWait:  2 * time.Second,
		TokenBucket: TokenBucketParams{
			TokensPerSecond:  50,
			MaxTokens:        1,
			TokensPerRequest: 1,
		},
	}

	res, err := reg.Acquire(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Acquired)

	// The bucket is empty; at 50 tokens/s the wait resolves in ~20ms.
	res, err = reg.Acquire(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Acquired)
	assert.Positive(t, res.Waited)
}

func TestWaitExhaustedReturnsThrottled(t *testing.T) {
	reg := NewRegistry()
	req := Request{
		BucketID: "tb-exhaust",
		Strategy: StrategyTokenBucket,
		Wait:     true,
		MaxWait:  10 * time.Millisecond,
		TokenBucket: TokenBucketParams{
			TokensPerSecond:  0.001,
			MaxTokens:        1,
			TokensPerRequest: 1,
		},
	}

	res, err := reg.Acquire(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Acquired)

	res, err = reg.Acquire(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Acquired)
	assert.True(t, res.Throttled)
}

func TestAcquireReturnsContextError(t *testing.T) {
	reg := NewRegistry()
	req := Request{
		BucketID: "tb-ctx",
		Strategy: StrategyTokenBucket,
		Wait:     true,
		MaxWait:  time.Minute,
		TokenBucket: TokenBucketParams{
			TokensPerSecond:  0.001,
			MaxTokens:        1,
			TokensPerRequest: 1,
		},
	}

	_, err := reg.Acquire(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = reg.Acquire(ctx, req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBucketsAreSharedByID(t *testing.T) {
	reg := NewRegistry()
	req := tokenRequest("shared", 1)

	res, err := reg.Acquire(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Acquired)

	// Same id, different parameters: the first bucket's configuration wins.
	req2 := tokenRequest("shared", 1000)
	res, err = reg.Acquire(context.Background(), req2)
	require.NoError(t, err)
	assert.False(t, res.Acquired)
}

func TestBucketStrategyFixedAtFirstUse(t *testing.T) {
	reg := NewRegistry()

	res, err := reg.Acquire(context.Background(), tokenRequest("one-bucket", 1))
	require.NoError(t, err)
	require.True(t, res.Acquired)

	// Same id under a different strategy still hits the original token
	// bucket, which is now empty.
	res, err = reg.Acquire(context.Background(), Request{
		BucketID: "one-bucket",
		Strategy: StrategySlidingWindow,
		SlidingWindow: SlidingWindowParams{
			WindowSize:  time.Minute,
			MaxRequests: 100,
		},
	})
	require.NoError(t, err)
	assert.False(t, res.Acquired)
	assert.Less(t, res.TokensRemaining, 1.0)
}

func TestParseStrategyDefaultsToTokenBucket(t *testing.T) {
	assert.Equal(t, StrategySlidingWindow, ParseStrategy("sliding_window"))
	assert.Equal(t, StrategyTokenBucket, ParseStrategy("token_bucket"))
	assert.Equal(t, StrategyTokenBucket, ParseStrategy("anything"))
}
