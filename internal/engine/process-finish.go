package engine

import (
	"log/slog"

	"github.com/kode4food/flownode/internal/engine/token"
	"github.com/kode4food/flownode/pkg/api"
	"github.com/kode4food/flownode/pkg/log"
)

// onChildTerminal is the process coordinator. It runs in every step that
// ends a branch or finishes an instance and completes the process once no
// token and no live instance remain. A process being stopped completes as
// soon as its last instance stops. Reading and rewriting the process row
// makes concurrent steps of the same process conflict, so exactly one of
// them sees the last branch end
func (tx *nodeTx) onChildTerminal(pid api.ProcessID) error {
	p, err := tx.getProcess(pid)
	if err != nil {
		return err
	}
	tx.touchProcess(p)
	if p.State.IsFinal() {
		return nil
	}

	if p.StateCategory.IsNormal() {
		branches, err := token.ActiveBranchCount(tx.tx, pid)
		if err != nil || branches > 0 {
			return err
		}
	}
	nodes, err := tx.processNodes(pid)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if !n.Terminal {
			return nil
		}
	}
	return tx.finishProcess(p)
}

func (tx *nodeTx) finishProcess(p *api.ProcessInstance) error {
	if err := token.DeleteAll(tx.tx, p.ID); err != nil {
		return err
	}
	p.State = finalProcessState(p)
	p.EndDate = tx.now
	tx.touchProcess(p)

	if !p.IsRoot() {
		tx.enqueue(p.CallerID, &api.Trigger{
			Kind:         api.TriggerChildCompleted,
			ChildID:      string(p.ID),
			ProcessState: p.State,
			ErrorCode:    p.ErrorCode,
		})
	}

	ev := &api.Event{
		Timestamp:    tx.now,
		Type:         api.EventProcessFinished,
		ProcessID:    p.ID,
		RootID:       p.RootProcessInstanceID,
		ProcessState: p.State,
		Error:        p.ErrorCode,
	}
	tx.OnSuccess(func() {
		tx.scheduler.CancelPrefix(tx.Engine.ctx, []string{string(ev.ProcessID)})
		tx.metrics.ProcessFinished(ev.ProcessState)
		tx.hub.Publish(ev)
		slog.Info("Process finished",
			log.ProcessID(ev.ProcessID),
			log.State(ev.ProcessState))
	})
	return nil
}

// finalProcessState maps the termination category of a process to its end
// state. A terminate end event ends the process as completed
func finalProcessState(p *api.ProcessInstance) api.ProcessState {
	switch p.StateCategory {
	case api.CategoryAborting:
		if p.InterruptingEventID != "" {
			return api.ProcessCompleted
		}
		return api.ProcessAborted
	case api.CategoryCancelling:
		return api.ProcessCancelled
	default:
		return api.ProcessCompleted
	}
}
