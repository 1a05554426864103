package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/assert/helpers"
	"github.com/kode4food/flownode/pkg/api"
)

func TestCatchTimer(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("pause",
			helpers.Start("start", "pause"),
			helpers.TimerCatch("pause", "20ms", "end"),
			helpers.End("end"),
		))

		p := env.Start("pause", nil)
		wait := helpers.WaitForNode(t, env.Engine, p.ID, "pause",
			api.StateWaiting,
		)
		assert.Contains(t, wait.Timers, api.ElementID(""))

		helpers.WaitForProcessState(t, env.Engine, p.ID, api.ProcessCompleted)
		done := helpers.NodesOf(t, env.Engine, p.ID, "pause")[0]
		assert.Empty(t, done.Timers)
	})
}

func TestInterruptingTimerBoundary(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		review := helpers.HumanTask("review", []api.ActorID{"clerks"}, "end")
		review.Boundaries = []*api.BoundaryEvent{
			helpers.TimerBoundary("late", "30ms", true, "escalate"),
		}
		env.Register(helpers.Process("deadline",
			helpers.Start("start", "review"),
			review,
			helpers.Task("escalate", []*api.Operation{
				helpers.Op("escalated", "true"),
			}, "end"),
			helpers.End("end"),
		))

		ctx := context.Background()
		p := env.Start("deadline", nil)
		done := helpers.WaitForProcessState(t, env.Engine, p.ID,
			api.ProcessCompleted,
		)
		assert.Equal(t, true, done.Data["escalated"])

		task := helpers.NodesOf(t, env.Engine, p.ID, "review")[0]
		assert.Equal(t, api.StateAborted, task.State)
		assert.Equal(t, api.ElementID("late"), task.InterruptedBy)
		rows, err := env.Engine.PendingRows(ctx, task.ID)
		assert.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestNonInterruptingTimerBoundary(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		review := helpers.HumanTask("review", []api.ActorID{"clerks"}, "end")
		review.Boundaries = []*api.BoundaryEvent{
			helpers.TimerBoundary("remind", "20ms", false, "notify"),
		}
		env.Register(helpers.Process("reminder",
			helpers.Start("start", "review"),
			review,
			helpers.Task("notify", []*api.Operation{
				helpers.Op("reminded", "true"),
			}, "notified"),
			helpers.End("notified"),
			helpers.End("end"),
		))

		ctx := context.Background()
		p := env.Start("reminder", nil)
		helpers.WaitForNode(t, env.Engine, p.ID, "notified",
			api.StateCompleted,
		)
		helpers.WaitIdle(t, env.Engine)

		task := helpers.FindNode(env.Engine, p.ID, "review", api.StateReady)
		if !assert.NotNil(t, task) {
			return
		}
		assert.NotContains(t, task.Timers, api.ElementID("remind"))
		got, err := env.Engine.GetProcess(ctx, p.ID)
		assert.NoError(t, err)
		assert.Equal(t, true, got.Data["reminded"])
		assert.Equal(t, api.ProcessStarted, got.State)

		_, err = env.Engine.ExecuteTask(ctx, task.ID, &api.ExecuteRequest{
			UserID: "alice",
		})
		assert.NoError(t, err)
		helpers.WaitForProcessState(t, env.Engine, p.ID, api.ProcessCompleted)
	})
}

func TestCompletingWithBoundary(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		work := helpers.Task("work", nil, "end")
		work.Boundaries = []*api.BoundaryEvent{
			helpers.TimerBoundary("slow", "1h", true, "end"),
		}
		env.Register(helpers.Process("quick",
			helpers.Start("start", "work"), work, helpers.End("end"),
		))

		p := env.Start("quick", nil)
		helpers.WaitForProcessState(t, env.Engine, p.ID, api.ProcessCompleted)
		helpers.WaitIdle(t, env.Engine)

		assert.EqualValues(t, 1, env.Metrics.TransitionCount(
			api.StateExecuting, api.StateCompletingWithBoundary,
		))
		node := helpers.NodesOf(t, env.Engine, p.ID, "work")[0]
		assert.Empty(t, node.Timers)
		assert.Len(t, helpers.NodesOf(t, env.Engine, p.ID, "end"), 1)
	})
}

func TestMessageCatch(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("inbox",
			helpers.Start("start", "wait"),
			helpers.MessageCatch("wait", "paid", "end"),
			helpers.End("end"),
		))

		ctx := context.Background()
		p := env.Start("inbox", nil)
		helpers.WaitForNode(t, env.Engine, p.ID, "wait", api.StateWaiting)

		count, err := env.Engine.SendMessage(ctx, p.ID, "refunded", nil)
		assert.NoError(t, err)
		assert.Zero(t, count)

		count, err = env.Engine.SendMessage(ctx, p.ID, "paid", api.Args{
			"amount": 12,
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, count)

		done := helpers.WaitForProcessState(t, env.Engine, p.ID,
			api.ProcessCompleted,
		)
		assert.EqualValues(t, 12, done.Data["amount"])

		_, err = env.Engine.SendMessage(ctx, "missing", "paid", nil)
		assert.Error(t, err)
	})
}
