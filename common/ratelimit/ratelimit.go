package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Strategy selects the limiter algorithm for a bucket.
type Strategy string

const (
	StrategyTokenBucket   Strategy = "token_bucket"
	StrategySlidingWindow Strategy = "sliding_window"
)

// ParseStrategy maps a parameter string to a Strategy, defaulting to
// token_bucket.
func ParseStrategy(s string) Strategy {
	if Strategy(s) == StrategySlidingWindow {
		return StrategySlidingWindow
	}
	return StrategyTokenBucket
}

// TokenBucketParams configures a token-bucket limiter.
type TokenBucketParams struct {
	TokensPerSecond  float64
	MaxTokens        float64
	TokensPerRequest float64
}

// SlidingWindowParams configures a sliding-window limiter.
type SlidingWindowParams struct {
	WindowSize  time.Duration
	MaxRequests int
}

// Request describes one acquire attempt against a named bucket.
type Request struct {
	BucketID      string
	Strategy      Strategy
	Wait          bool
	MaxWait       time.Duration
	TokenBucket   TokenBucketParams
	SlidingWindow SlidingWindowParams
}

// Result reports the outcome of an acquire.
type Result struct {
	BucketID         string
	Strategy         Strategy
	Acquired         bool
	Throttled        bool
	Waited           time.Duration
	TokensRemaining  float64
	RequestsInWindow int
}

type bucket interface {
	// tryAcquire attempts a non-blocking grant and reports how long the
	// caller should sleep before retrying when denied.
	tryAcquire(now time.Time) (granted bool, retryAfter time.Duration)
	snapshot(r *Result)
}

// Registry holds process-wide buckets keyed by bucket id. A bucket is created
// on first use with the request's strategy and parameters; later requests
// against the same id reuse it as-is.
type Registry struct {
	mu      sync.Mutex
	buckets map[string]*guardedBucket
}

type guardedBucket struct {
	mu sync.Mutex
	b  bucket
}

// NewRegistry creates an empty bucket registry.
func NewRegistry() *Registry {
	return &Registry{buckets: make(map[string]*guardedBucket)}
}

func (r *Registry) bucketFor(req Request) *guardedBucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	gb, ok := r.buckets[req.BucketID]
	if !ok {
		gb = &guardedBucket{b: newBucket(req)}
		r.buckets[req.BucketID] = gb
	}
	return gb
}

func newBucket(req Request) bucket {
	if req.Strategy == StrategySlidingWindow {
		p := req.SlidingWindow
		if p.WindowSize <= 0 {
			p.WindowSize = time.Second
		}
		if p.MaxRequests <= 0 {
			p.MaxRequests = 10
		}
		return &slidingWindow{params: p}
	}
	p := req.TokenBucket
	if p.TokensPerSecond <= 0 {
		p.TokensPerSecond = 10
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = 100
	}
	if p.TokensPerRequest <= 0 {
		p.TokensPerRequest = 1
	}
	return &tokenBucket{params: p, tokens: p.MaxTokens, lastRefill: time.Now()}
}

// Acquire attempts to take capacity from the bucket. When req.Wait is set it
// blocks, sleeping between retries, until granted, the wait budget runs out
// (one final try is made at the deadline), or ctx is cancelled. The returned
// error is non-nil only for context cancellation.
func (r *Registry) Acquire(ctx context.Context, req Request) (Result, error) {
	gb := r.bucketFor(req)
	start := time.Now()
	deadline := start.Add(req.MaxWait)

	result := Result{BucketID: req.BucketID, Strategy: req.Strategy}

	for {
		if err := ctx.Err(); err != nil {
			result.Waited = time.Since(start)
			gb.mu.Lock()
			gb.b.snapshot(&result)
			gb.mu.Unlock()
			return result, err
		}

		now := time.Now()
		gb.mu.Lock()
		granted, retryAfter := gb.b.tryAcquire(now)
		gb.b.snapshot(&result)
		gb.mu.Unlock()

		result.Waited = time.Since(start)
		if granted {
			result.Acquired = true
			return result, nil
		}
		result.Throttled = true

		if !req.Wait || !now.Before(deadline) {
			return result, nil
		}

		sleep := retryAfter
		if remaining := time.Until(deadline); sleep > remaining {
			sleep = remaining
		}
		if sleep < time.Millisecond {
			sleep = time.Millisecond
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Waited = time.Since(start)
			return result, ctx.Err()
		case <-timer.C:
		}
	}
}

// tokenBucket refills continuously at tokensPerSecond, capped at maxTokens.
type tokenBucket struct {
	params     TokenBucketParams
	tokens     float64
	lastRefill time.Time
}

func (b *tokenBucket) tryAcquire(now time.Time) (bool, time.Duration) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.params.TokensPerSecond
		if b.tokens > b.params.MaxTokens {
			b.tokens = b.params.MaxTokens
		}
		b.lastRefill = now
	}

	if b.tokens >= b.params.TokensPerRequest {
		b.tokens -= b.params.TokensPerRequest
		return true, 0
	}

	needed := b.params.TokensPerRequest - b.tokens
	retryAfter := time.Duration(needed / b.params.TokensPerSecond * float64(time.Second))
	return false, retryAfter
}

func (b *tokenBucket) snapshot(r *Result) {
	r.TokensRemaining = b.tokens
}

// slidingWindow retains grant timestamps and evicts those older than the
// window on each attempt.
type slidingWindow struct {
	params SlidingWindowParams
	grants []time.Time
}

func (w *slidingWindow) tryAcquire(now time.Time) (bool, time.Duration) {
	cutoff := now.Add(-w.params.WindowSize)
	kept := w.grants[:0]
	for _, t := range w.grants {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.grants = kept

	if len(w.grants) < w.params.MaxRequests {
		w.grants = append(w.grants, now)
		return true, 0
	}

	// Sleep until the oldest retained grant slides out of the window.
	retryAfter := w.grants[0].Sub(cutoff)
	return false, retryAfter
}

func (w *slidingWindow) snapshot(r *Result) {
	r.RequestsInWindow = len(w.grants)
}
