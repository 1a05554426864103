package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kode4food/flownode/pkg/api"
	"github.com/kode4food/flownode/pkg/log"
)

type (
	// handler applies one trigger to an instance inside a step
	handler func(*nodeTx, *api.FlowNodeInstance, *api.Trigger) error

	handlerKey struct {
		typ   api.FlowNodeType
		state api.FlowNodeState
		kind  api.TriggerKind
	}

	handlerTable map[handlerKey]handler
)

// anyType matches every flow-node type in a handlerKey
const anyType api.FlowNodeType = "*"

func (e *Engine) newHandlerTable() handlerTable {
	on := func(
		typ api.FlowNodeType, state api.FlowNodeState, kind api.TriggerKind,
	) handlerKey {
		return handlerKey{typ: typ, state: state, kind: kind}
	}

	return handlerTable{
		on(anyType, api.StateInitializing, api.TriggerStart): (*nodeTx).startNode,

		on(anyType, api.StateExecuting, api.TriggerExecuteLogic):              (*nodeTx).executeNode,
		on(anyType, api.StateCompletingWithBoundary, api.TriggerExecuteLogic): (*nodeTx).leaveBoundaries,
		on(anyType, api.StateCompleting, api.TriggerExecuteLogic):             (*nodeTx).completeNode,

		on(api.NodeHumanTask, api.StateReady, api.TriggerExecuteLogic):      (*nodeTx).claimTask,
		on(api.NodeHumanTask, api.StateReady, api.TriggerAssignmentChanged): (*nodeTx).reassignTask,

		on(anyType, api.StateExecuting, api.TriggerTimerFired): (*nodeTx).fireTimer,
		on(anyType, api.StateReady, api.TriggerTimerFired):     (*nodeTx).fireTimer,
		on(anyType, api.StateWaiting, api.TriggerTimerFired):   (*nodeTx).fireTimer,

		on(api.NodeCatchEvent, api.StateWaiting, api.TriggerMessageArrived): (*nodeTx).receiveMessage,

		on(api.NodeCallActivity, api.StateWaiting, api.TriggerChildCompleted):  (*nodeTx).childProcessDone,
		on(api.NodeSubProcess, api.StateWaiting, api.TriggerChildCompleted):    (*nodeTx).childProcessDone,
		on(api.NodeMultiInstance, api.StateWaiting, api.TriggerChildCompleted): (*nodeTx).instanceDone,
	}
}

func (t handlerTable) lookup(
	n *api.FlowNodeInstance, kind api.TriggerKind,
) handler {
	switch {
	case n.State.IsAborting() || n.State.IsCancelling():
		return (*nodeTx).continueTermination
	case kind == api.TriggerAbortRequested:
		return (*nodeTx).abortNode
	case kind == api.TriggerCancelRequested:
		return (*nodeTx).cancelNode
	}
	if h, ok := t[handlerKey{n.Type, n.State, kind}]; ok {
		return h
	}
	return t[handlerKey{anyType, n.State, kind}]
}

// Advance applies one trigger to a flow-node instance in a single
// transaction. The returned result lists the follow-up steps the caller is
// responsible for running; Advance itself never queues anything.
//
// A modeling or evaluation error moves the instance to failed in a separate
// transaction and is returned alongside that result. Any other error leaves
// the store untouched, so the same step may be retried
func (e *Engine) Advance(
	ctx context.Context, id api.NodeID, trig *api.Trigger,
) (*api.StepResult, error) {
	if trig == nil || !trig.Kind.IsValid() {
		return nil, ErrInvalidTrigger
	}

	var res *api.StepResult
	steps, err := e.update(ctx, func(tx *nodeTx) error {
		var err error
		res, err = tx.advance(id, trig)
		return err
	})
	if err == nil {
		res.FollowUps = steps
		return res, nil
	}
	if api.IsStepFailure(err) {
		return e.failNode(ctx, id, err)
	}
	return nil, err
}

func (tx *nodeTx) advance(
	id api.NodeID, trig *api.Trigger,
) (*api.StepResult, error) {
	n, err := tx.getNode(id)
	if err != nil {
		return nil, err
	}
	if n.Terminal {
		return nil, fmt.Errorf("%w: %s", ErrInstanceTerminal, id)
	}

	trig, err = tx.preempt(n, trig)
	if err != nil {
		return nil, err
	}

	h := tx.handlers.lookup(n, trig.Kind)
	if h == nil {
		return nil, fmt.Errorf("%w: %s on %s in %s",
			ErrInvalidTransition, trig.Kind, n.Type, n.State)
	}

	from := n.State
	if err := h(tx, n, trig); err != nil {
		return nil, err
	}
	return &api.StepResult{
		NodeID:        id,
		State:         n.State,
		PreviousState: from,
	}, nil
}

// preempt replaces the trigger with an abort or cancel request when the
// process, or the multi-instance root containing the instance, is being
// terminated
func (tx *nodeTx) preempt(
	n *api.FlowNodeInstance, trig *api.Trigger,
) (*api.Trigger, error) {
	p, err := tx.getProcess(n.ParentProcessInstanceID)
	if err != nil {
		return nil, err
	}
	if trig.Kind.IsTermination() {
		return trig, nil
	}

	switch p.StateCategory {
	case api.CategoryAborting:
		return api.NewTrigger(api.TriggerAbortRequested), nil
	case api.CategoryCancelling:
		return api.NewTrigger(api.TriggerCancelRequested), nil
	}

	if !n.IsMultiInstanceChild() {
		return trig, nil
	}
	root, err := tx.getNode(api.NodeID(n.ParentContainerID))
	if err != nil {
		return nil, err
	}
	switch {
	case root.State.IsAborting() || root.State == api.StateAborted:
		return api.NewTrigger(api.TriggerAbortRequested), nil
	case root.State.IsCancelling() || root.Terminal || root.CompletedEarly:
		return api.NewTrigger(api.TriggerCancelRequested), nil
	}
	return trig, nil
}

// failNode records a step failure on the instance. The cause is returned
// so that callers see why the instance failed
func (e *Engine) failNode(
	ctx context.Context, id api.NodeID, cause error,
) (*api.StepResult, error) {
	var res *api.StepResult
	steps, err := e.update(ctx, func(tx *nodeTx) error {
		n, err := tx.getNode(id)
		if err != nil {
			return err
		}
		from := n.State
		if err := tx.failInPlace(n, cause); err != nil {
			return err
		}
		res = &api.StepResult{
			NodeID:        id,
			State:         n.State,
			PreviousState: from,
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	res.FollowUps = steps
	return res, cause
}

// failInPlace moves an instance to failed as part of the current step
func (tx *nodeTx) failInPlace(n *api.FlowNodeInstance, cause error) error {
	from := n.State
	n.Error = cause.Error()
	if err := tx.setState(n, api.StateFailed); err != nil {
		return err
	}
	ev := tx.nodeEvent(api.EventNodeFailed, n)
	tx.OnSuccess(func() {
		tx.metrics.StepFailed()
		tx.hub.Publish(ev)
		slog.Warn("Flow-node instance failed",
			log.ProcessID(ev.ProcessID),
			log.NodeID(ev.NodeID),
			slog.String("from", string(from)),
			log.Error(cause))
	})
	return nil
}
