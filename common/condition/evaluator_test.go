package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBareIdentifier(t *testing.T) {
	e := NewEvaluator()

	result, err := e.Evaluate("amount > 100", map[string]any{"amount": 150})
	require.NoError(t, err)
	assert.True(t, result)

	result, err = e.Evaluate("amount > 100", map[string]any{"amount": 50})
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluateDollarPathSpelling(t *testing.T) {
	e := NewEvaluator()

	result, err := e.Evaluate(`$.status == "active"`, map[string]any{"status": "active"})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluateInputPrefix(t *testing.T) {
	e := NewEvaluator()

	result, err := e.Evaluate("input.count >= 3 && input.ok", map[string]any{"count": 3, "ok": true})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluateEmptyExpressionFails(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate("  ", map[string]any{})
	assert.Error(t, err)
}

func TestEvaluateNonBooleanResultFails(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate("1 + 1", map[string]any{})
	assert.Error(t, err)
}

func TestEvaluateCachesPerKeySet(t *testing.T) {
	e := NewEvaluator()

	// The same expression against different key sets compiles separately, so
	// a key that was absent the first time still resolves later.
	result, err := e.Evaluate("a > 1", map[string]any{"a": 5})
	require.NoError(t, err)
	assert.True(t, result)

	result, err = e.Evaluate("a > 1", map[string]any{"a": 5, "b": "x"})
	require.NoError(t, err)
	assert.True(t, result)

	assert.Equal(t, 2, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}
