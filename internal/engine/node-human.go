package engine

import (
	"fmt"

	"github.com/kode4food/flownode/internal/engine/pending"
	"github.com/kode4food/flownode/internal/expr"
	"github.com/kode4food/flownode/pkg/api"
)

// makeReady publishes a human task to its candidates and parks it in ready
func (tx *nodeTx) makeReady(
	p *api.ProcessInstance, n *api.FlowNodeInstance,
	def *api.FlowNodeDefinition,
) error {
	if err := tx.publishTask(p, n, def); err != nil {
		return err
	}
	return tx.setState(n, api.StateReady)
}

// publishTask writes the pending rows of a task: one per actor and one per
// user selected by the user filter. A task nobody can claim is a modeling
// error
func (tx *nodeTx) publishTask(
	p *api.ProcessInstance, n *api.FlowNodeInstance,
	def *api.FlowNodeDefinition,
) error {
	var users []api.UserID
	if def.UserFilter != nil {
		res, err := tx.evaluate(def.UserFilter, tx.scope(p, n))
		if err != nil {
			return err
		}
		items, err := expr.AsArray(res)
		if err != nil {
			return fmt.Errorf("%w: user filter: %w", api.ErrEvaluation, err)
		}
		for _, u := range items {
			users = append(users, api.UserID(fmt.Sprint(u)))
		}
	}
	count, err := pending.OnReady(tx.tx, n.ID, def.Actors, users)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", api.ErrMissingActor, def.ID)
	}
	return nil
}

// claimTask handles execute-logic@ready: a user submits the task. The
// payload becomes process variables and the task's operations run next
func (tx *nodeTx) claimTask(n *api.FlowNodeInstance, trig *api.Trigger) error {
	if trig.UserID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTransition, ErrMissingUser)
	}
	if n.Assignee != "" && n.Assignee != trig.UserID {
		return fmt.Errorf("%w: %s", ErrNotAssignee, n.Assignee)
	}
	if err := pending.OnAssigned(tx.tx, n.ID); err != nil {
		return err
	}
	if len(trig.Payload) > 0 {
		p, err := tx.getProcess(n.ParentProcessInstanceID)
		if err != nil {
			return err
		}
		p.Data = p.Data.Merge(trig.Payload)
		tx.touchProcess(p)
	}

	n.Assignee = trig.UserID
	n.ExecutedBy = trig.UserID
	n.ExecutedBySubstitute = trig.SubstituteID
	n.Triggered = true
	if err := tx.setState(n, api.StateExecuting); err != nil {
		return err
	}
	tx.enqueue(n.ID, api.NewTrigger(api.TriggerExecuteLogic))
	return nil
}

// reassignTask handles assignment-changed@ready. Assigning a user claims
// the task and removes it from every candidate's list; unassigning
// publishes it again
func (tx *nodeTx) reassignTask(
	n *api.FlowNodeInstance, trig *api.Trigger,
) error {
	if err := pending.OnAssigned(tx.tx, n.ID); err != nil {
		return err
	}
	n.Assignee = trig.UserID
	if trig.UserID == "" {
		def, err := tx.definition(n)
		if err != nil {
			return err
		}
		p, err := tx.getProcess(n.ParentProcessInstanceID)
		if err != nil {
			return err
		}
		if err := tx.publishTask(p, n, def); err != nil {
			return err
		}
	}
	return tx.saveNode(n)
}
