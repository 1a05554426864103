package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/expr"
)

func TestAsBool(t *testing.T) {
	assert.False(t, expr.AsBool(nil))
	assert.False(t, expr.AsBool(false))
	assert.False(t, expr.AsBool(0))
	assert.False(t, expr.AsBool(0.0))
	assert.False(t, expr.AsBool(""))
	assert.True(t, expr.AsBool(true))
	assert.True(t, expr.AsBool(2))
	assert.True(t, expr.AsBool("x"))
	assert.True(t, expr.AsBool([]any{}))
}

func TestAsInt(t *testing.T) {
	n, err := expr.AsInt(3)
	assert.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = expr.AsInt(float64(4))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = expr.AsInt("5")
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = expr.AsInt(4.5)
	assert.ErrorIs(t, err, expr.ErrNotInteger)
	_, err = expr.AsInt("abc")
	assert.ErrorIs(t, err, expr.ErrNotInteger)
	_, err = expr.AsInt(nil)
	assert.ErrorIs(t, err, expr.ErrNotInteger)
}

func TestAsArray(t *testing.T) {
	arr, err := expr.AsArray([]any{1, "a"})
	assert.NoError(t, err)
	assert.Equal(t, []any{1, "a"}, arr)

	arr, err = expr.AsArray(`[1, 2.5, {"k": 3}]`)
	assert.NoError(t, err)
	assert.Equal(t, []any{1, 2.5, map[string]any{"k": 3}}, arr)

	arr, err = expr.AsArray([]string{"x", "y"})
	assert.NoError(t, err)
	assert.Equal(t, []any{"x", "y"}, arr)

	_, err = expr.AsArray(`{"not": "array"}`)
	assert.ErrorIs(t, err, expr.ErrNotArray)
	_, err = expr.AsArray(42)
	assert.ErrorIs(t, err, expr.ErrNotArray)
}
