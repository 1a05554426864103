package engine

import (
	"fmt"

	"github.com/kode4food/flownode/internal/definition"
	"github.com/kode4food/flownode/pkg/api"
)

// startNode handles start@initializing: the loop test-before check,
// multi-instance expansion, and arming of boundary timers
func (tx *nodeTx) startNode(n *api.FlowNodeInstance, _ *api.Trigger) error {
	def, err := tx.definition(n)
	if err != nil {
		return err
	}
	p, err := tx.getProcess(n.ParentProcessInstanceID)
	if err != nil {
		return err
	}

	if n.Type == api.NodeMultiInstance {
		return tx.expandInstances(p, n, def)
	}

	if def.Loop != nil && def.Loop.TestBefore {
		again, err := tx.loops.ShouldLoop(
			tx.ctx, def.Loop, n.LoopCounter, tx.scope(p, n),
		)
		if err != nil {
			return err
		}
		if !again {
			n.LoopDone = true
			return tx.toCompleting(n)
		}
	}

	if err := tx.armBoundaries(n, def); err != nil {
		return err
	}
	if err := tx.setState(n, api.StateExecuting); err != nil {
		return err
	}
	tx.enqueue(n.ID, api.NewTrigger(api.TriggerExecuteLogic))
	return nil
}

// armBoundaries schedules the timer boundaries of an activity that are not
// already armed. The children of a multi-instance root carry none; the root
// owns them
func (tx *nodeTx) armBoundaries(
	n *api.FlowNodeInstance, def *api.FlowNodeDefinition,
) error {
	if n.IsMultiInstanceChild() {
		return nil
	}
	for _, b := range def.Boundaries {
		if b.Kind != api.EventTimer {
			continue
		}
		if _, ok := n.Timers[b.ID]; ok {
			continue
		}
		d, err := definition.ParseDuration(b.Duration)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", api.ErrEvaluation, b.ID, err)
		}
		tx.armTimer(n, b.ID, tx.now.Add(d))
	}
	return nil
}

// toCompleting moves an instance whose work is done towards completion,
// passing through completing-with-boundary when boundary timers are armed
func (tx *nodeTx) toCompleting(n *api.FlowNodeInstance) error {
	next := api.StateCompleting
	if hasBoundaryTimers(n) && n.State == api.StateExecuting {
		next = api.StateCompletingWithBoundary
	}
	if err := tx.setState(n, next); err != nil {
		return err
	}
	tx.enqueue(n.ID, api.NewTrigger(api.TriggerExecuteLogic))
	return nil
}

// leaveBoundaries handles execute-logic@completing-with-boundary
func (tx *nodeTx) leaveBoundaries(
	n *api.FlowNodeInstance, _ *api.Trigger,
) error {
	for el := range n.Timers {
		if el != "" {
			tx.disarmTimer(n, el)
		}
	}
	if err := tx.setState(n, api.StateCompleting); err != nil {
		return err
	}
	tx.enqueue(n.ID, api.NewTrigger(api.TriggerExecuteLogic))
	return nil
}

func hasBoundaryTimers(n *api.FlowNodeInstance) bool {
	for el := range n.Timers {
		if el != "" {
			return true
		}
	}
	return false
}
