package engine_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/assert/helpers"
	"github.com/kode4food/flownode/internal/config"
	"github.com/kode4food/flownode/internal/engine"
	"github.com/kode4food/flownode/internal/expr"
	"github.com/kode4food/flownode/pkg/api"
)

// gate holds back every expression marked "slow" until it is opened or the
// calling engine shuts down
type gate struct {
	next    expr.Evaluator
	blocked atomic.Int32
	open    atomic.Bool
}

func newGate() *gate {
	return &gate{next: expr.NewRegistry()}
}

func (g *gate) Evaluate(
	ctx context.Context, ex *api.Expression, s expr.Scope,
) (any, error) {
	if !g.open.Load() && strings.Contains(ex.Script, "slow") {
		g.blocked.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return g.next.Evaluate(ctx, ex, s)
}

var wideWorkers = helpers.WithConfig(func(cfg *config.Config) {
	cfg.Workers = 16
})

func crashable() []*api.ProcessDefinition {
	return []*api.ProcessDefinition{
		helpers.Process("auto",
			helpers.Start("start", "work"),
			helpers.Task("work", []*api.Operation{
				helpers.Op("runs", "(runs or 0) + 1 + (slow or 0)"),
			}, "end"),
			helpers.End("end"),
		),
		helpers.Process("manual",
			helpers.Start("start", "review"),
			helpers.HumanTask("review", []api.ActorID{"clerks"}, "end"),
			helpers.End("end"),
		),
	}
}

func TestRecoverAfterCrash(t *testing.T) {
	backends := map[string]helpers.Option{
		"memory":  func(*helpers.TestEngineEnv) {},
		"timebox": helpers.WithTimebox(),
	}
	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			recoverAfterCrash(t, backend)
		})
	}
}

func recoverAfterCrash(t *testing.T, backend helpers.Option) {
	const automatic, manual = 5, 3
	g := newGate()

	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		env.Register(crashable()...)
		assert.NoError(t, env.Engine.Start())

		var autos, humans []api.ProcessID
		for range automatic {
			autos = append(autos, env.Start("auto", nil).ID)
		}
		for range manual {
			humans = append(humans, env.Start("manual", nil).ID)
		}
		for _, pid := range humans {
			helpers.WaitForNode(t, env.Engine, pid, "review", api.StateReady)
		}
		assert.Eventually(t, func() bool {
			return g.blocked.Load() >= automatic
		}, helpers.DefaultWaitTimeout, 5*time.Millisecond)

		env.Engine.Halt()
		for _, pid := range autos {
			work := helpers.FindNode(env.Engine, pid, "work",
				api.StateExecuting,
			)
			assert.NotNil(t, work)
		}

		g.open.Store(true)
		next := env.NewEngineInstance()
		defer func() { _ = next.Stop() }()
		assert.NoError(t, next.Start())

		for _, pid := range autos {
			done := helpers.WaitForProcessState(t, next, pid,
				api.ProcessCompleted,
			)
			assert.EqualValues(t, 1, done.Data["runs"])
		}
		for _, pid := range humans {
			task := helpers.FindNode(next, pid, "review", api.StateReady)
			if assert.NotNil(t, task) {
				rows, err := next.PendingRows(context.Background(), task.ID)
				assert.NoError(t, err)
				assert.Len(t, rows, 1)
			}
		}

		helpers.WaitIdle(t, next)
		report, err := next.RecoverAll(context.Background())
		assert.NoError(t, err)
		assert.Zero(t, report.Scanned)
		assert.Zero(t, report.Recovered)
	}, helpers.WithEvaluator(g), wideWorkers, backend)
}

func TestConcurrentRecovery(t *testing.T) {
	const automatic = 8
	g := newGate()

	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		env.Register(crashable()...)
		assert.NoError(t, env.Engine.Start())

		var autos []api.ProcessID
		for range automatic {
			autos = append(autos, env.Start("auto", nil).ID)
		}
		assert.Eventually(t, func() bool {
			return g.blocked.Load() >= automatic
		}, helpers.DefaultWaitTimeout, 5*time.Millisecond)
		env.Engine.Halt()
		g.open.Store(true)

		engines := []*engine.Engine{
			env.NewEngineInstance(), env.NewEngineInstance(),
		}
		var wg sync.WaitGroup
		for _, eng := range engines {
			defer func() { _ = eng.Stop() }()
			wg.Go(func() {
				assert.NoError(t, eng.Start())
			})
		}
		wg.Wait()

		for _, pid := range autos {
			done := helpers.WaitForProcessState(t, engines[0], pid,
				api.ProcessCompleted,
			)
			assert.EqualValues(t, 1, done.Data["runs"])
			assert.Len(t, helpers.NodesOf(t, engines[0], pid, "end"), 1)
		}
	}, helpers.WithEvaluator(g), wideWorkers)
}

func TestRecoverNothing(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		report, err := eng.RecoverAll(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, &engine.RecoveryReport{}, report)
	})
}

func TestRecoverResumesStop(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		env.Register(crashable()...)
		assert.NoError(t, env.Engine.Start())

		ctx := context.Background()
		p := env.Start("manual", nil)
		helpers.WaitForNode(t, env.Engine, p.ID, "review", api.StateReady)
		helpers.WaitIdle(t, env.Engine)

		// the abort request commits, but its follow-up steps are lost
		env.Engine.Halt()
		assert.NoError(t, env.Engine.AbortProcess(ctx, p.ID))

		got, err := env.Engine.GetProcess(ctx, p.ID)
		assert.NoError(t, err)
		assert.Equal(t, api.CategoryAborting, got.StateCategory)
		assert.False(t, got.State.IsFinal())

		next := env.NewEngineInstance()
		defer func() { _ = next.Stop() }()
		assert.NoError(t, next.Start())

		helpers.WaitForProcessState(t, next, p.ID, api.ProcessAborted)
		task := helpers.FindNode(next, p.ID, "review", api.StateAborted)
		assert.NotNil(t, task)
	})
}

func TestRepeatedRecoveryChangesNothing(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		review := helpers.HumanTask("review", []api.ActorID{"team"}, "end")
		review.MultiInstance = &api.MultiInstanceCharacteristics{
			Cardinality: helpers.Lua("2"),
		}
		env.Register(append(crashable(), helpers.Process("panel",
			helpers.Start("start", "review"), review, helpers.End("end"),
		))...)
		assert.NoError(t, env.Engine.Start())

		ctx := context.Background()
		panel := env.Start("panel", nil)
		readyInstances(t, env, panel.ID, "review", 2)
		stopped := env.Start("manual", nil)
		helpers.WaitForNode(t, env.Engine, stopped.ID, "review",
			api.StateReady,
		)
		helpers.WaitIdle(t, env.Engine)

		// the abort request commits, but its follow-up steps are lost
		env.Engine.Halt()
		assert.NoError(t, env.Engine.AbortProcess(ctx, stopped.ID))

		next := env.NewEngineInstance()
		defer func() { _ = next.Stop() }()
		assert.NoError(t, next.Start())
		helpers.WaitForProcessState(t, next, stopped.ID, api.ProcessAborted)
		helpers.WaitIdle(t, next)

		root := helpers.FindNode(next, panel.ID, "review", api.StateWaiting)
		if !assert.NotNil(t, root) {
			return
		}

		sub := env.Hub.Subscribe()
		defer sub.Close()
		for range 2 {
			report, err := next.RecoverAll(ctx)
			assert.NoError(t, err)
			assert.Equal(t, 1, report.Rechecked)
			assert.Zero(t, report.Resumed)
			assert.Zero(t, report.Recovered)
		}
		helpers.WaitIdle(t, next)

		quiet := time.After(100 * time.Millisecond)
		for done := false; !done; {
			select {
			case ev, ok := <-sub.Receive():
				if !ok {
					done = true
					continue
				}
				assert.NotEqual(t, api.EventNodeStateChanged, ev.Type)
			case <-quiet:
				done = true
			}
		}

		again, err := next.GetNode(ctx, root.ID)
		assert.NoError(t, err)
		assert.Equal(t, root, again)
		assert.Len(t, helpers.NodesOf(t, next, panel.ID, "review"), 3)
	})
}
