package loop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/engine/loop"
	"github.com/kode4food/flownode/internal/expr"
	"github.com/kode4food/flownode/pkg/api"
)

func lua(script string) *api.Expression {
	return &api.Expression{Language: expr.LangLua, Script: script}
}

func TestShouldLoop(t *testing.T) {
	c := loop.New(expr.NewRegistry())
	ctx := context.Background()

	ok, err := c.ShouldLoop(ctx, nil, 0, nil)
	assert.NoError(t, err)
	assert.False(t, ok)

	never := &api.LoopCharacteristics{Condition: lua("false")}
	ok, err = c.ShouldLoop(ctx, never, 1, nil)
	assert.NoError(t, err)
	assert.False(t, ok)

	bounded := &api.LoopCharacteristics{Condition: lua("true"), LoopMax: 3}
	runs := 1
	for {
		ok, err := c.ShouldLoop(ctx, bounded, runs, nil)
		assert.NoError(t, err)
		if !ok {
			break
		}
		runs++
	}
	assert.Equal(t, 3, runs)

	counted := &api.LoopCharacteristics{Condition: lua("loopCounter < limit")}
	ok, err = c.ShouldLoop(ctx, counted, 2, expr.Scope{"limit": 5})
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.ShouldLoop(ctx, counted, 5, expr.Scope{"limit": 5})
	assert.NoError(t, err)
	assert.False(t, ok)

	noCond := &api.LoopCharacteristics{LoopMax: 2}
	ok, err = c.ShouldLoop(ctx, noCond, 1, nil)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestShouldLoopEvaluationError(t *testing.T) {
	c := loop.New(expr.NewRegistry())
	lc := &api.LoopCharacteristics{Condition: lua("error('boom')")}
	_, err := c.ShouldLoop(context.Background(), lc, 0, nil)
	assert.True(t, api.IsEvaluationError(err))
}

func TestCardinality(t *testing.T) {
	c := loop.New(expr.NewRegistry())
	ctx := context.Background()

	n, items, err := c.Cardinality(ctx, &api.MultiInstanceCharacteristics{
		Cardinality: lua("count * 2"),
	}, expr.Scope{"count": 2})
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Nil(t, items)

	n, items, err = c.Cardinality(ctx, &api.MultiInstanceCharacteristics{
		DataInputRef: "orders",
	}, expr.Scope{"orders": []any{"a", "b", "c"}})
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []any{"a", "b", "c"}, items)

	n, _, err = c.Cardinality(ctx, &api.MultiInstanceCharacteristics{
		DataInputRef: "orders",
	}, expr.Scope{"orders": `[1,2]`})
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBadCardinality(t *testing.T) {
	c := loop.New(expr.NewRegistry())
	ctx := context.Background()

	for _, mi := range []*api.MultiInstanceCharacteristics{
		{Cardinality: lua("0")},
		{Cardinality: lua("-3")},
		{Cardinality: lua("'many'")},
		{DataInputRef: "missing"},
		{DataInputRef: "empty"},
	} {
		_, _, err := c.Cardinality(ctx, mi, expr.Scope{"empty": []any{}})
		assert.ErrorIs(t, err, api.ErrBadCardinality)
		assert.True(t, api.IsModelingError(err))
	}
}

func TestBindItem(t *testing.T) {
	c := loop.New(expr.NewRegistry())
	mi := &api.MultiInstanceCharacteristics{
		DataInputItemRef:  "order",
		DataOutputItemRef: "total",
	}
	items := []any{"a", "b"}

	assert.Equal(t, api.Args{
		loop.LoopCounter: 1,
		"order":          "b",
		"total":          nil,
	}, c.BindItem(mi, items, 1))

	assert.Equal(t, api.Args{loop.LoopCounter: 0},
		c.BindItem(&api.MultiInstanceCharacteristics{}, nil, 0),
	)
}

func TestIsComplete(t *testing.T) {
	c := loop.New(expr.NewRegistry())
	ctx := context.Background()

	ok, err := c.IsComplete(ctx, &api.MultiInstanceCharacteristics{},
		loop.Counts{Instances: 3, Completed: 3}, nil,
	)
	assert.NoError(t, err)
	assert.False(t, ok)

	mi := &api.MultiInstanceCharacteristics{
		CompletionCondition: lua("nrOfCompletedInstances >= 2"),
	}
	ok, err = c.IsComplete(ctx, mi,
		loop.Counts{Instances: 5, Active: 4, Completed: 1}, nil,
	)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.IsComplete(ctx, mi,
		loop.Counts{Instances: 5, Active: 3, Completed: 2}, nil,
	)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestCollectOutput(t *testing.T) {
	c := loop.New(expr.NewRegistry())
	children := []*api.FlowNodeInstance{
		{Data: api.Args{"total": 10}},
		{Data: api.Args{"total": 20}},
	}

	assert.Nil(t, c.CollectOutput(&api.MultiInstanceCharacteristics{}, children))
	assert.Equal(t, api.Args{"totals": []any{10, 20}},
		c.CollectOutput(&api.MultiInstanceCharacteristics{
			DataOutputRef:     "totals",
			DataOutputItemRef: "total",
		}, children),
	)
}

func TestCountsDone(t *testing.T) {
	assert.False(t, loop.Counts{Instances: 2, Active: 1}.Done(2, false))
	assert.False(t, loop.Counts{Instances: 3, Completed: 1}.Done(1, false))
	assert.True(t, loop.Counts{Instances: 3, Completed: 1}.Done(1, true))
	assert.True(t, loop.Counts{Instances: 2, Completed: 2}.Done(2, false))
}
