package engine

import (
	"github.com/kode4food/flownode/internal/engine/pending"
	"github.com/kode4food/flownode/internal/engine/token"
	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/pkg/api"
)

// termination describes one of the two ways an instance can be stopped
type termination struct {
	category     api.StateCategory
	enter        api.FlowNodeState
	callActivity api.FlowNodeState
	subtasks     api.FlowNodeState
	final        api.FlowNodeState
	trigger      api.TriggerKind
}

var (
	aborting = termination{
		category:     api.CategoryAborting,
		enter:        api.StateAborting,
		callActivity: api.StateAbortingCallActivity,
		subtasks:     api.StateAborting,
		final:        api.StateAborted,
		trigger:      api.TriggerAbortRequested,
	}

	cancelling = termination{
		category:     api.CategoryCancelling,
		enter:        api.StateCancelling,
		callActivity: api.StateCancellingCallActivity,
		subtasks:     api.StateCancellingSubtasks,
		final:        api.StateCancelled,
		trigger:      api.TriggerCancelRequested,
	}
)

func (tx *nodeTx) abortNode(n *api.FlowNodeInstance, _ *api.Trigger) error {
	return tx.terminate(n, aborting)
}

func (tx *nodeTx) cancelNode(n *api.FlowNodeInstance, _ *api.Trigger) error {
	return tx.terminate(n, cancelling)
}

// terminate stops an instance. Instances that own running child work wait
// in a transitional state until that work has stopped; anything else passes
// straight through to the final state
func (tx *nodeTx) terminate(n *api.FlowNodeInstance, t termination) error {
	n.StateCategory = t.category
	for el := range n.Timers {
		tx.disarmTimer(n, el)
	}

	switch n.Type {
	case api.NodeCallActivity, api.NodeSubProcess:
		running, err := tx.childRunning(n)
		if err != nil {
			return err
		}
		if running {
			if err := tx.setState(n, t.callActivity); err != nil {
				return err
			}
			_, err := tx.stopChildren(n, t)
			return err
		}
	case api.NodeMultiInstance:
		active, err := tx.activeChildren(n)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			if err := tx.setState(n, t.subtasks); err != nil {
				return err
			}
			_, err := tx.stopChildren(n, t)
			return err
		}
	}

	if err := tx.setState(n, t.enter); err != nil {
		return err
	}
	return tx.finishTermination(n, t.final)
}

// continueTermination handles any trigger delivered to an instance that is
// already being stopped: it finishes the stop once no child work remains
func (tx *nodeTx) continueTermination(
	n *api.FlowNodeInstance, _ *api.Trigger,
) error {
	t := cancelling
	if n.State.IsAborting() {
		t = aborting
	}
	busy, err := tx.busy(n)
	if err != nil || busy {
		return err
	}
	return tx.finishTermination(n, t.final)
}

// stopChildren asks the child work of an instance to stop, reporting
// whether any is still running
func (tx *nodeTx) stopChildren(
	n *api.FlowNodeInstance, t termination,
) (bool, error) {
	switch n.Type {
	case api.NodeCallActivity, api.NodeSubProcess:
		running, err := tx.childRunning(n)
		if err != nil || !running {
			return false, err
		}
		child, err := tx.getProcess(n.ChildProcessID)
		if err != nil {
			return false, err
		}
		if err := tx.terminateProcess(child, t); err != nil {
			return false, err
		}
		return true, tx.onChildTerminal(child.ID)
	case api.NodeMultiInstance:
		active, err := tx.activeChildren(n)
		if err != nil {
			return false, err
		}
		for _, c := range active {
			tx.enqueue(c.ID, api.NewTrigger(t.trigger))
		}
		return len(active) > 0, nil
	default:
		return false, nil
	}
}

func (tx *nodeTx) busy(n *api.FlowNodeInstance) (bool, error) {
	switch n.Type {
	case api.NodeCallActivity, api.NodeSubProcess:
		return tx.childRunning(n)
	case api.NodeMultiInstance:
		active, err := tx.activeChildren(n)
		return len(active) > 0, err
	default:
		return false, nil
	}
}

func (tx *nodeTx) childRunning(n *api.FlowNodeInstance) (bool, error) {
	if n.ChildProcessID == "" {
		return false, nil
	}
	child, err := tx.getProcess(n.ChildProcessID)
	if err != nil {
		return false, err
	}
	return !child.State.IsFinal(), nil
}

func (tx *nodeTx) activeChildren(
	root *api.FlowNodeInstance,
) ([]*api.FlowNodeInstance, error) {
	all, err := tx.children(root)
	if err != nil {
		return nil, err
	}
	var res []*api.FlowNodeInstance
	for _, c := range all {
		if !c.Terminal {
			res = append(res, c)
		}
	}
	return res, nil
}

// finishTermination moves a stopped instance to its final state, ends the
// branch it held, and reports to its container
func (tx *nodeTx) finishTermination(
	n *api.FlowNodeInstance, final api.FlowNodeState,
) error {
	held := append([]api.TokenID{n.TokenID}, n.JoinedTokens...)
	n.JoinedTokens = nil
	if err := tx.setState(n, final); err != nil {
		return err
	}
	for _, id := range held {
		if err := tx.releaseToken(n.ParentProcessInstanceID, id); err != nil {
			return err
		}
	}
	if n.Type == api.NodeHumanTask {
		if err := pending.OnAssigned(tx.tx, n.ID); err != nil {
			return err
		}
	}
	return tx.reportTerminal(n)
}

// reportTerminal tells the container of a final instance about it: the
// multi-instance root for children, and the process coordinator always
func (tx *nodeTx) reportTerminal(n *api.FlowNodeInstance) error {
	if n.IsMultiInstanceChild() {
		tx.enqueue(api.NodeID(n.ParentContainerID), &api.Trigger{
			Kind:       api.TriggerChildCompleted,
			ChildID:    string(n.ID),
			ChildState: n.State,
		})
	}
	return tx.onChildTerminal(n.ParentProcessInstanceID)
}

func (tx *nodeTx) releaseToken(pid api.ProcessID, id api.TokenID) error {
	if id == "" {
		return nil
	}
	t, err := token.Get(tx.tx, pid, id)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	p, err := tx.getProcess(pid)
	if err != nil {
		return err
	}
	tx.touchProcess(p)
	return token.Consume(tx.tx, t)
}
