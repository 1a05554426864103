package engine

import (
	"fmt"
	"maps"

	"github.com/kode4food/flownode/internal/definition"
	"github.com/kode4food/flownode/pkg/api"
)

// executeNode handles execute-logic@executing, running the behavior of the
// element type
func (tx *nodeTx) executeNode(n *api.FlowNodeInstance, _ *api.Trigger) error {
	def, err := tx.definition(n)
	if err != nil {
		return err
	}
	p, err := tx.getProcess(n.ParentProcessInstanceID)
	if err != nil {
		return err
	}

	switch n.Type {
	case api.NodeAutomaticTask:
		return tx.runTask(p, n, def)
	case api.NodeHumanTask:
		if n.Triggered {
			return tx.runTask(p, n, def)
		}
		return tx.makeReady(p, n, def)
	case api.NodeCatchEvent:
		if n.Triggered {
			return tx.toCompleting(n)
		}
		return tx.waitForEvent(n, def)
	case api.NodeCallActivity, api.NodeSubProcess:
		if n.Triggered {
			return tx.toCompleting(n)
		}
		return tx.startChildProcess(p, n, def)
	default:
		return tx.toCompleting(n)
	}
}

// runTask applies the operations of a task, then completes it unless one
// of them raised a business error
func (tx *nodeTx) runTask(
	p *api.ProcessInstance, n *api.FlowNodeInstance,
	def *api.FlowNodeDefinition,
) error {
	code, err := tx.runOperations(p, n, def)
	if err != nil {
		return err
	}
	if code != "" {
		return tx.raiseError(p, n, def, code)
	}
	return tx.toCompleting(n)
}

// runOperations evaluates operations in order. Each result is written to
// the instance's local data when the target is a local variable and to the
// process otherwise, and is visible to the operations that follow
func (tx *nodeTx) runOperations(
	p *api.ProcessInstance, n *api.FlowNodeInstance,
	def *api.FlowNodeDefinition,
) (string, error) {
	s := tx.scope(p, n)
	for _, op := range def.Operations {
		res, err := tx.evaluate(op.Expression, s)
		if err != nil {
			return "", err
		}
		if op.Target == api.ErrorTarget {
			if res != nil && res != "" && res != false {
				return fmt.Sprint(res), nil
			}
			continue
		}
		s[op.Target] = res
		if _, local := n.Data[op.Target]; local {
			n.Data[op.Target] = res
			continue
		}
		if p.Data == nil {
			p.Data = api.Args{}
		}
		p.Data[op.Target] = res
		tx.touchProcess(p)
	}
	return "", nil
}

// waitForEvent parks a catch event until its timer fires or its message
// arrives
func (tx *nodeTx) waitForEvent(
	n *api.FlowNodeInstance, def *api.FlowNodeDefinition,
) error {
	if def.Event == nil {
		return fmt.Errorf("%w: %s", api.ErrMissingEvent, def.ID)
	}
	if def.Event.Kind == api.EventTimer {
		d, err := definition.ParseDuration(def.Event.Duration)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", api.ErrEvaluation, def.ID, err)
		}
		tx.armTimer(n, "", tx.now.Add(d))
	}
	return tx.setState(n, api.StateWaiting)
}

// startChildProcess starts the process a call activity or sub-process runs
// and waits for it to finish. The child starts with a copy of the caller's
// process variables
func (tx *nodeTx) startChildProcess(
	p *api.ProcessInstance, n *api.FlowNodeInstance,
	def *api.FlowNodeDefinition,
) error {
	c := &caller{node: n, typ: api.CallerCallActivity}
	defID := def.CalledProcess
	if def.Type == api.NodeSubProcess {
		c.typ = api.CallerSubProcess
		defID = definition.SubProcessID(p.ProcessDefinitionID, def.ID)
	}
	child, err := tx.createProcess(defID, maps.Clone(p.Data), p.StringIndex, c)
	if err != nil {
		return err
	}
	n.ChildProcessID = child.ID
	return tx.setState(n, api.StateWaiting)
}

// childProcessDone handles child-completed@waiting for call activities and
// sub-processes. A notification that arrives before the child is final is
// ignored
func (tx *nodeTx) childProcessDone(
	n *api.FlowNodeInstance, trig *api.Trigger,
) error {
	if n.ChildProcessID == "" ||
		(trig.ChildID != "" && trig.ChildID != string(n.ChildProcessID)) {
		return fmt.Errorf("%w: unknown child %s", ErrInvalidTransition,
			trig.ChildID)
	}
	child, err := tx.getProcess(n.ChildProcessID)
	if err != nil {
		return err
	}
	if !child.State.IsFinal() {
		return nil
	}

	p, err := tx.getProcess(n.ParentProcessInstanceID)
	if err != nil {
		return err
	}
	if child.State != api.ProcessCompleted {
		if child.ErrorCode == "" {
			return fmt.Errorf("%w: %s %s",
				api.ErrChildEnded, child.ID, child.State)
		}
		def, err := tx.definition(n)
		if err != nil {
			return err
		}
		return tx.raiseError(p, n, def, child.ErrorCode)
	}

	if len(child.Data) > 0 {
		p.Data = p.Data.Merge(child.Data)
		tx.touchProcess(p)
	}
	n.Triggered = true
	if err := tx.setState(n, api.StateExecuting); err != nil {
		return err
	}
	tx.enqueue(n.ID, api.NewTrigger(api.TriggerExecuteLogic))
	return nil
}
