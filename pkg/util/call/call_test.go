package call_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/pkg/util/call"
)

func TestPerform(t *testing.T) {
	t.Run("runs calls in order", func(t *testing.T) {
		var order []int
		err := call.Perform(
			func() error { order = append(order, 1); return nil },
			func() error { order = append(order, 2); return nil },
		)
		assert.NoError(t, err)
		assert.Equal(t, []int{1, 2}, order)
	})

	t.Run("stops on first error", func(t *testing.T) {
		want := errors.New("boom")
		var order []int
		err := call.Perform(
			func() error { order = append(order, 1); return want },
			func() error { order = append(order, 2); return nil },
		)
		assert.ErrorIs(t, err, want)
		assert.Equal(t, []int{1}, order)
	})
}

func TestWithArgs(t *testing.T) {
	var got []string
	one := func(s string) error { got = append(got, s); return nil }
	two := func(a, b string) error { got = append(got, a+b); return nil }

	err := call.Perform(
		call.WithArg(one, "x"),
		call.WithArgs(two, "y", "z"),
	)
	assert.NoError(t, err)
	assert.Equal(t, []string{"x", "yz"}, got)
}

func TestIf(t *testing.T) {
	calls := 0
	fn := func() error { calls++; return nil }

	assert.NoError(t, call.Perform(call.If(false, fn), call.If(true, fn)))
	assert.Equal(t, 1, calls)
}
