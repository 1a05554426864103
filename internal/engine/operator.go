package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/pkg/api"
)

// StartProcess creates a process instance and queues the start of its start
// event
func (e *Engine) StartProcess(
	ctx context.Context, req *api.StartProcessRequest,
) (*api.ProcessInstance, error) {
	var p *api.ProcessInstance
	steps, err := e.retryTransient(ctx, func() ([]*api.Step, error) {
		return e.update(ctx, func(tx *nodeTx) error {
			var err error
			p, err = tx.createProcess(
				req.DefinitionID, req.Data, req.Index, nil,
			)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	e.steps.submit(steps...)
	return p, nil
}

// Trigger queues a trigger for a flow-node instance. The step runs
// asynchronously on the engine's workers
func (e *Engine) Trigger(
	_ context.Context, id api.NodeID, trig *api.Trigger,
) error {
	if trig == nil || !trig.Kind.IsValid() {
		return ErrInvalidTrigger
	}
	e.steps.submit(&api.Step{NodeID: id, Trigger: trig})
	return nil
}

// AssignTask changes the assignee of a ready human task. An empty user
// releases the task to its candidates
func (e *Engine) AssignTask(
	ctx context.Context, id api.NodeID, user api.UserID,
) (*api.StepResult, error) {
	if err := e.checkHumanTask(ctx, id); err != nil {
		return nil, err
	}
	return e.apply(ctx, id, &api.Trigger{
		Kind:   api.TriggerAssignmentChanged,
		UserID: user,
	})
}

// ExecuteTask submits a ready human task on behalf of a user. The data
// becomes process variables before the task's operations run
func (e *Engine) ExecuteTask(
	ctx context.Context, id api.NodeID, req *api.ExecuteRequest,
) (*api.StepResult, error) {
	if req.UserID == "" {
		return nil, ErrMissingUser
	}
	if err := e.checkHumanTask(ctx, id); err != nil {
		return nil, err
	}
	return e.apply(ctx, id, &api.Trigger{
		Kind:         api.TriggerExecuteLogic,
		UserID:       req.UserID,
		SubstituteID: req.SubstituteID,
		Payload:      req.Data,
	})
}

// SendMessage delivers a named message to every catch event of a process
// waiting for it, returning how many received it
func (e *Engine) SendMessage(
	ctx context.Context, pid api.ProcessID, name string, payload api.Args,
) (int, error) {
	var targets []api.NodeID
	err := e.view(ctx, func(tx *nodeTx) error {
		if _, err := tx.getProcess(pid); err != nil {
			return err
		}
		nodes, err := tx.processNodes(pid)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if n.Type != api.NodeCatchEvent || n.State != api.StateWaiting {
				continue
			}
			def, err := tx.definition(n)
			if err != nil {
				return err
			}
			if def.Event != nil && def.Event.Kind == api.EventMessage &&
				def.Event.MessageName == name {
				targets = append(targets, n.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range targets {
		_, err := e.apply(ctx, id, &api.Trigger{
			Kind:        api.TriggerMessageArrived,
			MessageName: name,
			Payload:     payload,
		})
		switch {
		case err == nil:
			count++
		case IsStale(err):
		default:
			return count, err
		}
	}
	return count, nil
}

// AbortProcess aborts a running process and every instance in it
func (e *Engine) AbortProcess(ctx context.Context, pid api.ProcessID) error {
	return e.stopProcess(ctx, pid, aborting)
}

// CancelProcess cancels a running process and every instance in it
func (e *Engine) CancelProcess(ctx context.Context, pid api.ProcessID) error {
	return e.stopProcess(ctx, pid, cancelling)
}

func (e *Engine) stopProcess(
	ctx context.Context, pid api.ProcessID, t termination,
) error {
	steps, err := e.retryTransient(ctx, func() ([]*api.Step, error) {
		return e.update(ctx, func(tx *nodeTx) error {
			p, err := tx.getProcess(pid)
			if err != nil {
				return err
			}
			if p.State.IsFinal() {
				return fmt.Errorf("%w: %s", ErrProcessFinished, pid)
			}
			if err := tx.terminateProcess(p, t); err != nil {
				return err
			}
			return tx.onChildTerminal(pid)
		})
	})
	if err != nil {
		return err
	}
	e.steps.submit(steps...)
	return nil
}

// SkipFailed moves a failed instance to skipped and lets the flow continue
// past it as though it had completed
func (e *Engine) SkipFailed(
	ctx context.Context, id api.NodeID,
) (*api.StepResult, error) {
	return e.operate(ctx, id, func(tx *nodeTx, n *api.FlowNodeInstance) error {
		def, err := tx.definition(n)
		if err != nil {
			return err
		}
		p, err := tx.getProcess(n.ParentProcessInstanceID)
		if err != nil {
			return err
		}
		n.Error = ""
		if err := tx.keepFirstJoined(n); err != nil {
			return err
		}
		return tx.finishNode(p, n, def, api.StateSkipped)
	})
}

// ReplayFailed runs a failed instance again from the state it failed in.
// An instance that failed while starting starts over. A join that could not
// merge its branches tries again, and a multi-instance root goes back to
// waiting on its children, rechecking the ones already finished. Anything
// else executes again
func (e *Engine) ReplayFailed(
	ctx context.Context, id api.NodeID,
) (*api.StepResult, error) {
	return e.operate(ctx, id, func(tx *nodeTx, n *api.FlowNodeInstance) error {
		n.Error = ""
		n.ErrorCode = ""
		switch {
		case n.PreviousState == api.StateInitializing:
			if err := tx.setState(n, api.StateInitializing); err != nil {
				return err
			}
			tx.enqueue(n.ID, api.NewTrigger(api.TriggerStart))
			return nil
		case len(n.JoinedTokens) > 0:
			if err := tx.setState(n, api.StateWaiting); err != nil {
				return err
			}
			return tx.mergeJoin(n)
		case n.Type == api.NodeMultiInstance &&
			n.PreviousState == api.StateWaiting:
			if err := tx.setState(n, api.StateWaiting); err != nil {
				return err
			}
			tx.enqueue(n.ID, api.NewTrigger(api.TriggerChildCompleted))
			return nil
		}
		if err := tx.setState(n, api.StateExecuting); err != nil {
			return err
		}
		tx.enqueue(n.ID, api.NewTrigger(api.TriggerExecuteLogic))
		return nil
	})
}

// operate runs an operator action against a failed instance
func (e *Engine) operate(
	ctx context.Context, id api.NodeID,
	fn func(*nodeTx, *api.FlowNodeInstance) error,
) (*api.StepResult, error) {
	var res *api.StepResult
	steps, err := e.retryTransient(ctx, func() ([]*api.Step, error) {
		return e.update(ctx, func(tx *nodeTx) error {
			n, err := tx.getNode(id)
			if err != nil {
				return err
			}
			if n.State != api.StateFailed {
				return fmt.Errorf("%w: %s is %s", ErrNotFailed, id, n.State)
			}
			from := n.State
			if err := fn(tx, n); err != nil {
				return err
			}
			res = &api.StepResult{
				NodeID:        id,
				State:         n.State,
				PreviousState: from,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	res.FollowUps = steps
	e.steps.submit(steps...)
	return res, nil
}

func (e *Engine) checkHumanTask(ctx context.Context, id api.NodeID) error {
	return e.view(ctx, func(tx *nodeTx) error {
		n, err := tx.getNode(id)
		if err != nil {
			return err
		}
		if n.Type != api.NodeHumanTask {
			return fmt.Errorf("%w: %s", ErrNotHumanTask, id)
		}
		return nil
	})
}

// apply runs one step synchronously, retrying transient failures, and
// queues the follow-ups it produces
func (e *Engine) apply(
	ctx context.Context, id api.NodeID, trig *api.Trigger,
) (*api.StepResult, error) {
	var res *api.StepResult
	_, err := e.retryTransient(ctx, func() ([]*api.Step, error) {
		var err error
		res, err = e.Advance(ctx, id, trig)
		return nil, err
	})
	if res != nil {
		e.steps.submit(res.FollowUps...)
	}
	return res, err
}

// retryTransient calls fn until it succeeds, fails for a reason other than
// a transient store error, or runs out of retries
func (e *Engine) retryTransient(
	ctx context.Context, fn func() ([]*api.Step, error),
) ([]*api.Step, error) {
	for attempt := 0; ; attempt++ {
		steps, err := fn()
		if err == nil || !store.IsTransient(err) {
			return steps, err
		}
		if !shouldRetry(&e.config.Retry, attempt) {
			return nil, err
		}
		e.metrics.StepRetried()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff(&e.config.Retry, attempt)):
		}
	}
}
