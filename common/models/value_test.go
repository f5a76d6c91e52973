package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneNilYieldsWritableMap(t *testing.T) {
	out := Clone(nil)
	assert.NotNil(t, out)
	out["k"] = 1
	assert.Equal(t, 1, out["k"])
}

func TestMergeIntoOverwritesTopLevel(t *testing.T) {
	dst := M{"a": 1, "b": 2}
	MergeInto(dst, M{"b": 3, "c": 4})
	assert.Equal(t, M{"a": 1, "b": 3, "c": 4}, dst)
}

func TestGetIntAcceptsJSONNumbers(t *testing.T) {
	m := M{"a": float64(7), "b": 7, "c": int64(7), "d": "7"}
	assert.Equal(t, 7, GetInt(m, "a", 0))
	assert.Equal(t, 7, GetInt(m, "b", 0))
	assert.Equal(t, 7, GetInt(m, "c", 0))
	assert.Equal(t, 9, GetInt(m, "d", 9))
	assert.Equal(t, 9, GetInt(m, "missing", 9))
}

func TestGetStringListAcceptsBothShapes(t *testing.T) {
	m := M{
		"typed": []string{"a", "b"},
		"mixed": []any{"a", 1, "b"},
	}
	assert.Equal(t, []string{"a", "b"}, GetStringList(m, "typed"))
	assert.Equal(t, []string{"a", "b"}, GetStringList(m, "mixed"))
	assert.Nil(t, GetStringList(m, "missing"))
}

func TestGetMapAndListMistypedReturnNil(t *testing.T) {
	m := M{"notmap": 1, "notlist": "x"}
	assert.Nil(t, GetMap(m, "notmap"))
	assert.Nil(t, GetList(m, "notlist"))
}
