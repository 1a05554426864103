package engine

import (
	"fmt"

	"github.com/kode4food/flownode/internal/engine/token"
	"github.com/kode4food/flownode/pkg/api"
)

// fireTimer handles timer-fired. An empty boundary ID is the timer of a
// catch event; anything else names a boundary event of the activity
func (tx *nodeTx) fireTimer(n *api.FlowNodeInstance, trig *api.Trigger) error {
	if _, armed := n.Timers[trig.BoundaryID]; !armed {
		return fmt.Errorf("%w: timer %q not armed", ErrInvalidTransition,
			trig.BoundaryID)
	}

	if trig.BoundaryID == "" {
		if n.Type != api.NodeCatchEvent || n.State != api.StateWaiting {
			return fmt.Errorf("%w: catch timer on %s in %s",
				ErrInvalidTransition, n.Type, n.State)
		}
		tx.disarmTimer(n, "")
		n.Triggered = true
		if err := tx.setState(n, api.StateExecuting); err != nil {
			return err
		}
		tx.enqueue(n.ID, api.NewTrigger(api.TriggerExecuteLogic))
		return nil
	}

	def, err := tx.definition(n)
	if err != nil {
		return err
	}
	b := def.GetBoundary(trig.BoundaryID)
	if b == nil || b.Kind != api.EventTimer {
		return fmt.Errorf("%w: unknown boundary %s", ErrInvalidTransition,
			trig.BoundaryID)
	}
	p, err := tx.getProcess(n.ParentProcessInstanceID)
	if err != nil {
		return err
	}

	tx.disarmTimer(n, b.ID)
	if b.Interrupting {
		return tx.interrupt(p, n, b)
	}

	// a non-interrupting boundary starts an independent branch
	branch, err := token.NewRoot(tx.tx, p.ID)
	if err != nil {
		return err
	}
	if err := tx.route(p, b.Outgoing, branch.ID); err != nil {
		return err
	}
	return tx.saveNode(n)
}

// receiveMessage handles message-arrived@waiting for message catch events
func (tx *nodeTx) receiveMessage(
	n *api.FlowNodeInstance, trig *api.Trigger,
) error {
	def, err := tx.definition(n)
	if err != nil {
		return err
	}
	if def.Event == nil || def.Event.Kind != api.EventMessage ||
		def.Event.MessageName != trig.MessageName {
		return fmt.Errorf("%w: message %q not awaited by %s",
			ErrInvalidTransition, trig.MessageName, def.ID)
	}
	if len(trig.Payload) > 0 {
		p, err := tx.getProcess(n.ParentProcessInstanceID)
		if err != nil {
			return err
		}
		p.Data = p.Data.Merge(trig.Payload)
		tx.touchProcess(p)
	}
	n.Triggered = true
	if err := tx.setState(n, api.StateExecuting); err != nil {
		return err
	}
	tx.enqueue(n.ID, api.NewTrigger(api.TriggerExecuteLogic))
	return nil
}

// raiseError diverts an activity to the error boundary catching code. The
// children of a multi-instance root do not consult boundaries
func (tx *nodeTx) raiseError(
	p *api.ProcessInstance, n *api.FlowNodeInstance,
	def *api.FlowNodeDefinition, code string,
) error {
	n.ErrorCode = code
	var b *api.BoundaryEvent
	if !n.IsMultiInstanceChild() {
		b = def.ErrorBoundary(code)
	}
	if b == nil {
		return fmt.Errorf("%w: %s raised %q", api.ErrUnhandledError,
			def.ID, code)
	}
	return tx.interrupt(p, n, b)
}

// interrupt aborts an activity on behalf of one of its boundary events. The
// boundary's successors take over the activity's token immediately; the
// activity itself is aborted once any child work it owns has finished
func (tx *nodeTx) interrupt(
	p *api.ProcessInstance, n *api.FlowNodeInstance, b *api.BoundaryEvent,
) error {
	for el := range n.Timers {
		tx.disarmTimer(n, el)
	}
	tok := n.TokenID
	n.TokenID = ""
	n.TokenCount = 0
	n.InterruptedBy = b.ID
	n.StateCategory = api.CategoryAborting
	if err := tx.setState(n, api.StateAbortingWithBoundary); err != nil {
		return err
	}
	if err := tx.route(p, b.Outgoing, tok); err != nil {
		return err
	}

	busy, err := tx.stopChildren(n, aborting)
	if err != nil || busy {
		return err
	}
	return tx.finishTermination(n, aborting.final)
}
