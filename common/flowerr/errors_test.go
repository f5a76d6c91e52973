package flowerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesKindAndMessage(t *testing.T) {
	err := New(KindInvalidWorkflow, "workflow %q has no nodes", "w1")

	assert.Equal(t, KindInvalidWorkflow, KindOf(err))
	assert.Contains(t, err.Error(), "InvalidWorkflow")
	assert.Contains(t, err.Error(), `workflow "w1" has no nodes`)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindExternalFailure, cause, "request to %s failed", "api.example.com")

	assert.Equal(t, KindExternalFailure, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKindOfWalksWrapChain(t *testing.T) {
	inner := New(KindRateLimited, "bucket full")
	outer := fmt.Errorf("operation failed: %w", inner)

	assert.Equal(t, KindRateLimited, KindOf(outer))
	assert.True(t, IsKind(outer, KindRateLimited))
	assert.False(t, IsKind(outer, KindTimeout))
}

func TestKindOfContextSentinels(t *testing.T) {
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindCancelled, KindOf(fmt.Errorf("run aborted: %w", context.Canceled)))
}

func TestKindOfPlainErrorDefaultsToHandlerFailure(t *testing.T) {
	assert.Equal(t, KindHandlerFailure, KindOf(errors.New("boom")))
}

func TestExternalCapturesStatusAndBody(t *testing.T) {
	err := External(503, `{"error":"unavailable"}`, "GET /things returned %d", 503)

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindExternalFailure, fe.Kind)
	assert.Equal(t, 503, fe.StatusCode)
	assert.Equal(t, `{"error":"unavailable"}`, fe.BodySnippet)
}
