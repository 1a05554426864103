package engine

import (
	"fmt"

	"github.com/kode4food/flownode/internal/expr"
	"github.com/kode4food/flownode/pkg/api"
)

// completeNode handles execute-logic@completing: it either starts another
// iteration of a standard loop or completes the instance
func (tx *nodeTx) completeNode(n *api.FlowNodeInstance, _ *api.Trigger) error {
	def, err := tx.definition(n)
	if err != nil {
		return err
	}
	p, err := tx.getProcess(n.ParentProcessInstanceID)
	if err != nil {
		return err
	}

	if def.Loop != nil && !n.LoopDone {
		again := def.Loop.TestBefore
		executed := n.LoopCounter + 1
		if !again {
			again, err = tx.loops.ShouldLoop(
				tx.ctx, def.Loop, executed, tx.scope(p, n),
			)
			if err != nil {
				return err
			}
		}
		if again {
			return tx.repeat(n, executed)
		}
	}
	return tx.finishNode(p, n, def, api.StateCompleted)
}

// repeat sends a looping instance back to initializing for its next
// iteration
func (tx *nodeTx) repeat(n *api.FlowNodeInstance, executed int) error {
	n.LoopCounter = executed
	n.Triggered = false
	n.Assignee = ""
	n.ExecutedBy = ""
	n.ExecutedBySubstitute = ""
	if err := tx.setState(n, api.StateInitializing); err != nil {
		return err
	}
	tx.enqueue(n.ID, api.NewTrigger(api.TriggerStart))
	return nil
}

// finishNode moves an instance to completed or skipped and lets the flow
// continue past it
func (tx *nodeTx) finishNode(
	p *api.ProcessInstance, n *api.FlowNodeInstance,
	def *api.FlowNodeDefinition, final api.FlowNodeState,
) error {
	tok := n.TokenID
	if err := tx.setState(n, final); err != nil {
		return err
	}
	if n.IsMultiInstanceChild() {
		return tx.reportTerminal(n)
	}

	switch def.Type {
	case api.NodeTerminateEndEvent:
		if err := tx.releaseToken(p.ID, tok); err != nil {
			return err
		}
		if err := tx.abortProcess(p, def.ID, ""); err != nil {
			return err
		}
	case api.NodeErrorEndEvent:
		if err := tx.releaseToken(p.ID, tok); err != nil {
			return err
		}
		code := ""
		if def.Event != nil {
			code = def.Event.ErrorCode
		}
		if err := tx.abortProcess(p, "", code); err != nil {
			return err
		}
	default:
		next, err := tx.outgoing(p, n, def)
		if err != nil {
			return err
		}
		if err := tx.route(p, next, tok); err != nil {
			return err
		}
	}
	return tx.reportTerminal(n)
}

// outgoing selects the transitions taken when an element completes. An
// exclusive gateway takes the first transition whose condition holds, in
// declared order, falling back to its default; every other element takes
// all of its transitions
func (tx *nodeTx) outgoing(
	p *api.ProcessInstance, n *api.FlowNodeInstance,
	def *api.FlowNodeDefinition,
) ([]*api.Transition, error) {
	if def.Type != api.NodeExclusiveGateway {
		return def.Outgoing, nil
	}
	s := tx.scope(p, n)
	var fallback *api.Transition
	for _, t := range def.Outgoing {
		if t.Default {
			fallback = t
			continue
		}
		if t.Condition == nil {
			return []*api.Transition{t}, nil
		}
		res, err := tx.evaluate(t.Condition, s)
		if err != nil {
			return nil, err
		}
		if expr.AsBool(res) {
			return []*api.Transition{t}, nil
		}
	}
	if fallback != nil {
		return []*api.Transition{fallback}, nil
	}
	return nil, fmt.Errorf("%w: %s", api.ErrNoTransition, def.ID)
}
