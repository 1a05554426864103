package engine

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/pkg/api"
	"github.com/kode4food/flownode/pkg/log"
)

type (
	// RecoveryReport summarizes one recovery run
	RecoveryReport struct {
		Scanned   int
		Recovered int
		Skipped   int
		Rearmed   int
		Rechecked int
		Resumed   int
	}

	recovery struct {
		*Engine
		report RecoveryReport
		err    error
		mu     sync.Mutex
	}
)

// RecoverAll re-drives every flow-node instance left in a transitional
// state by an earlier engine, re-arms timers, and re-delivers the
// notifications a crash may have lost. Running it again, or concurrently
// with other engines, applies nothing twice: a step that no longer applies
// to an instance is dropped
func (e *Engine) RecoverAll(ctx context.Context) (*RecoveryReport, error) {
	r := &recovery{Engine: e}

	unstable, err := e.scanIndex(ctx, unstablePrefix)
	if err != nil {
		return nil, err
	}
	r.report.Scanned = len(unstable)
	r.each(ctx, unstable, r.recoverNode)

	timers, err := e.scanIndex(ctx, timerPrefix)
	if err != nil {
		return nil, err
	}
	r.each(ctx, timers, r.rearmTimers)

	containers, err := e.scanIndex(ctx, containerPrefix)
	if err != nil {
		return nil, err
	}
	r.each(ctx, containers, r.recheckContainer)

	stopping, err := e.scanIndex(ctx, stoppingPrefix)
	if err != nil {
		return nil, err
	}
	r.each(ctx, stopping, r.resumeTermination)

	slog.Info("Recovery finished",
		slog.Int("scanned", r.report.Scanned),
		slog.Int("recovered", r.report.Recovered),
		slog.Int("skipped", r.report.Skipped),
		slog.Int("rearmed", r.report.Rearmed),
		slog.Int("rechecked", r.report.Rechecked),
		slog.Int("resumed", r.report.Resumed))
	return &r.report, r.err
}

// scanIndex returns the IDs held in one of the engine's secondary indexes
func (e *Engine) scanIndex(
	ctx context.Context, prefix string,
) ([]string, error) {
	var res []string
	err := e.store.View(ctx, func(tx store.Tx) error {
		entries, err := tx.Scan(store.Prefix(prefix))
		if err != nil {
			return err
		}
		for _, ent := range entries {
			res = append(res, store.KeySuffix(ent.Key))
		}
		return nil
	})
	return res, err
}

func (r *recovery) each(
	ctx context.Context, ids []string, fn func(context.Context, string) error,
) {
	var g errgroup.Group
	g.SetLimit(max(r.config.RecoveryWorkers, 1))
	for _, id := range ids {
		g.Go(func() error {
			if err := fn(ctx, id); err != nil {
				r.mu.Lock()
				r.err = multierr.Append(r.err, err)
				r.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *recovery) count(field *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*field++
}

func (r *recovery) recoverNode(ctx context.Context, id string) error {
	nid := api.NodeID(id)
	n, err := r.GetNode(ctx, nid)
	if IsStale(err) {
		r.count(&r.report.Skipped)
		return nil
	}
	if err != nil {
		return err
	}
	trig := recoveryTrigger(n.State)
	if n.Stable || trig == nil {
		r.count(&r.report.Skipped)
		return nil
	}

	_, err = r.apply(ctx, nid, trig)
	switch {
	case err == nil, api.IsStepFailure(err):
		r.count(&r.report.Recovered)
		return nil
	case IsStale(err):
		r.count(&r.report.Skipped)
		return nil
	default:
		slog.Error("Failed to recover flow-node instance",
			log.NodeID(nid),
			log.State(n.State),
			log.Error(err))
		return err
	}
}

// recoveryTrigger returns the trigger that moves an instance out of the
// transitional state it was left in
func recoveryTrigger(s api.FlowNodeState) *api.Trigger {
	switch {
	case s == api.StateInitializing:
		return api.NewTrigger(api.TriggerStart)
	case s == api.StateExecuting, s == api.StateCompleting,
		s == api.StateCompletingWithBoundary:
		return api.NewTrigger(api.TriggerExecuteLogic)
	case s.IsAborting():
		return api.NewTrigger(api.TriggerAbortRequested)
	case s.IsCancelling():
		return api.NewTrigger(api.TriggerCancelRequested)
	default:
		return nil
	}
}

// rearmTimers schedules the timers recorded on an instance again. Timers
// already due fire immediately
func (r *recovery) rearmTimers(ctx context.Context, id string) error {
	n, err := r.GetNode(ctx, api.NodeID(id))
	if IsStale(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if n.Terminal {
		return nil
	}
	for el, due := range n.Timers {
		r.scheduleTimer(n.ParentProcessInstanceID, n.ID, el, due)
		r.count(&r.report.Rearmed)
	}
	return nil
}

// recheckContainer re-delivers child-completed to a waiting container, in
// case the notification of a finished child was lost
func (r *recovery) recheckContainer(ctx context.Context, id string) error {
	r.count(&r.report.Rechecked)
	return r.Trigger(ctx, api.NodeID(id),
		api.NewTrigger(api.TriggerChildCompleted))
}

// resumeTermination re-delivers the abort or cancel request of a process
// being stopped to its live instances
func (r *recovery) resumeTermination(ctx context.Context, id string) error {
	pid := api.ProcessID(id)
	var steps []*api.Step
	err := r.view(ctx, func(tx *nodeTx) error {
		p, err := tx.getProcess(pid)
		if err != nil {
			return err
		}
		t := cancelling
		if p.StateCategory == api.CategoryAborting {
			t = aborting
		}
		nodes, err := tx.processNodes(pid)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if !n.Terminal && n.Stable {
				steps = append(steps, &api.Step{
					NodeID:  n.ID,
					Trigger: api.NewTrigger(t.trigger),
				})
			}
		}
		return nil
	})
	if IsStale(err) {
		return nil
	}
	if err != nil {
		return err
	}
	r.count(&r.report.Resumed)
	r.steps.submit(steps...)
	return nil
}
