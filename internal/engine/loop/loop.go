// Package loop makes the repetition decisions for standard loops and
// multi-instance activities. It reads no state of its own: callers pass in
// the counters and the scope the conditions are evaluated against
package loop

import (
	"context"
	"fmt"

	"github.com/kode4food/flownode/internal/expr"
	"github.com/kode4food/flownode/pkg/api"
)

type (
	// Controller evaluates loop and multi-instance conditions
	Controller struct {
		eval expr.Evaluator
	}

	// Counts summarizes the children of a multi-instance root
	Counts struct {
		Instances  int
		Active     int
		Completed  int
		Terminated int
	}
)

// Names bound in loop and multi-instance condition scopes
const (
	LoopCounter             = "loopCounter"
	NrOfInstances           = "nrOfInstances"
	NrOfActiveInstances     = "nrOfActiveInstances"
	NrOfCompletedInstances  = "nrOfCompletedInstances"
	NrOfTerminatedInstances = "nrOfTerminatedInstances"
)

// New creates a Controller that evaluates conditions with eval
func New(eval expr.Evaluator) *Controller {
	return &Controller{eval: eval}
}

// ShouldLoop decides whether a standard loop runs another iteration after
// executed iterations have finished. LoopMax bounds the total number of
// executions and a missing condition loops until that bound
func (c *Controller) ShouldLoop(
	ctx context.Context, lc *api.LoopCharacteristics, executed int,
	s expr.Scope,
) (bool, error) {
	if lc == nil {
		return false, nil
	}
	if lc.LoopMax > 0 && executed >= lc.LoopMax {
		return false, nil
	}
	if lc.Condition == nil {
		return lc.LoopMax > 0, nil
	}
	res, err := c.eval.Evaluate(ctx, lc.Condition, s.With(LoopCounter, executed))
	if err != nil {
		return false, err
	}
	return expr.AsBool(res), nil
}

// Cardinality returns the number of instances to create and, when the
// activity iterates over a collection, the items to bind. A count below one
// is a modeling error
func (c *Controller) Cardinality(
	ctx context.Context, mi *api.MultiInstanceCharacteristics, s expr.Scope,
) (int, []any, error) {
	if mi.Cardinality != nil {
		res, err := c.eval.Evaluate(ctx, mi.Cardinality, s)
		if err != nil {
			return 0, nil, err
		}
		n, err := expr.AsInt(res)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %w", api.ErrBadCardinality, err)
		}
		if n <= 0 {
			return 0, nil, fmt.Errorf("%w: %d", api.ErrBadCardinality, n)
		}
		return n, nil, nil
	}

	items, err := expr.AsArray(s[mi.DataInputRef])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s: %w",
			api.ErrBadCardinality, mi.DataInputRef, err)
	}
	if len(items) == 0 {
		return 0, nil, fmt.Errorf("%w: %s is empty",
			api.ErrBadCardinality, mi.DataInputRef)
	}
	return len(items), items, nil
}

// BindItem returns the local variables of the child at index i. The output
// item is declared locally so that the child's operations write to it
// rather than to the process
func (c *Controller) BindItem(
	mi *api.MultiInstanceCharacteristics, items []any, i int,
) api.Args {
	res := api.Args{LoopCounter: i}
	if mi.DataInputItemRef != "" && i < len(items) {
		res[mi.DataInputItemRef] = items[i]
	}
	if mi.DataOutputItemRef != "" {
		res[mi.DataOutputItemRef] = nil
	}
	return res
}

// IsComplete evaluates the completion condition of a multi-instance root.
// Without a condition the root completes once every child is final
func (c *Controller) IsComplete(
	ctx context.Context, mi *api.MultiInstanceCharacteristics, n Counts,
	s expr.Scope,
) (bool, error) {
	if mi.CompletionCondition == nil {
		return false, nil
	}
	s = s.With(NrOfInstances, n.Instances).
		With(NrOfActiveInstances, n.Active).
		With(NrOfCompletedInstances, n.Completed).
		With(NrOfTerminatedInstances, n.Terminated)
	res, err := c.eval.Evaluate(ctx, mi.CompletionCondition, s)
	if err != nil {
		return false, err
	}
	return expr.AsBool(res), nil
}

// CollectOutput returns the process variables written when a
// multi-instance root completes. Each child contributes the value of its
// DataOutputItemRef, in instance order
func (c *Controller) CollectOutput(
	mi *api.MultiInstanceCharacteristics, children []*api.FlowNodeInstance,
) api.Args {
	if mi.DataOutputRef == "" {
		return nil
	}
	out := make([]any, 0, len(children))
	for _, ch := range children {
		if mi.DataOutputItemRef == "" {
			out = append(out, nil)
			continue
		}
		out = append(out, ch.Data[mi.DataOutputItemRef])
	}
	return api.Args{mi.DataOutputRef: out}
}

// Done reports whether every child of a root has been created and is final,
// or whether the root completed early and nothing is still running
func (n Counts) Done(created int, early bool) bool {
	if n.Active > 0 {
		return false
	}
	return early || created >= n.Instances
}
