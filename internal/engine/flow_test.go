package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/assert/helpers"
	"github.com/kode4food/flownode/pkg/api"
)

func TestParallelForkJoin(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("fork",
			helpers.Start("start", "split"),
			helpers.Parallel("split", "a", "b", "c"),
			helpers.MessageCatch("a", "go", "join"),
			helpers.MessageCatch("b", "go", "join"),
			helpers.MessageCatch("c", "go", "join"),
			helpers.Parallel("join", "end"),
			helpers.End("end"),
		))

		ctx := context.Background()
		p := env.Start("fork", nil)
		for _, el := range []api.ElementID{"a", "b", "c"} {
			helpers.WaitForNode(t, env.Engine, p.ID, el, api.StateWaiting)
		}
		helpers.WaitIdle(t, env.Engine)

		count, err := env.Engine.ActiveBranchCount(ctx, p.ID)
		assert.NoError(t, err)
		assert.Equal(t, 3, count)

		sent, err := env.Engine.SendMessage(ctx, p.ID, "go", api.Args{
			"seen": true,
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, sent)

		done := helpers.WaitForProcessState(t, env.Engine, p.ID,
			api.ProcessCompleted,
		)
		assert.Equal(t, true, done.Data["seen"])

		joins := helpers.NodesOf(t, env.Engine, p.ID, "join")
		if assert.Len(t, joins, 1) {
			assert.Equal(t, api.StateCompleted, joins[0].State)
			assert.Len(t, joins[0].JoinedTokens, 0)
		}
		assert.Len(t, helpers.NodesOf(t, env.Engine, p.ID, "end"), 1)

		count, err = env.Engine.ActiveBranchCount(ctx, p.ID)
		assert.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestJoinWaitsForEveryBranch(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("partial",
			helpers.Start("start", "split"),
			helpers.Parallel("split", "fast", "slow"),
			helpers.Task("fast", nil, "join"),
			helpers.MessageCatch("slow", "go", "join"),
			helpers.Parallel("join", "end"),
			helpers.End("end"),
		))

		p := env.Start("partial", nil)
		helpers.WaitForNode(t, env.Engine, p.ID, "slow", api.StateWaiting)
		join := helpers.WaitForNode(t, env.Engine, p.ID, "join",
			api.StateWaiting,
		)
		helpers.WaitIdle(t, env.Engine)
		join, err := env.Engine.GetNode(context.Background(), join.ID)
		assert.NoError(t, err)
		assert.Len(t, join.JoinedTokens, 1)
		assert.Empty(t, helpers.NodesOf(t, env.Engine, p.ID, "end"))

		got, err := env.Engine.GetProcess(context.Background(), p.ID)
		assert.NoError(t, err)
		assert.Equal(t, api.ProcessStarted, got.State)

		_, err = env.Engine.SendMessage(context.Background(), p.ID, "go", nil)
		assert.NoError(t, err)
		helpers.WaitForProcessState(t, env.Engine, p.ID, api.ProcessCompleted)
	})
}

func TestJoinAcrossForkDepths(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("nested",
			helpers.Start("start", "s1"),
			helpers.Parallel("s1", "a", "b"),
			helpers.Parallel("a", "a1", "a2"),
			helpers.Task("a1", nil, "join"),
			helpers.Task("a2", nil, "join"),
			helpers.MessageCatch("b", "go", "join"),
			helpers.Parallel("join", "end"),
			helpers.End("end"),
		))

		ctx := context.Background()
		p := env.Start("nested", nil)
		helpers.WaitForNode(t, env.Engine, p.ID, "b", api.StateWaiting)
		helpers.WaitIdle(t, env.Engine)

		joins := helpers.NodesOf(t, env.Engine, p.ID, "join")
		if assert.Len(t, joins, 1) {
			assert.Equal(t, api.StateWaiting, joins[0].State)
			assert.Len(t, joins[0].JoinedTokens, 2)
		}

		_, err := env.Engine.SendMessage(ctx, p.ID, "go", nil)
		assert.NoError(t, err)
		helpers.WaitForProcessState(t, env.Engine, p.ID, api.ProcessCompleted)

		joins = helpers.NodesOf(t, env.Engine, p.ID, "join")
		if assert.Len(t, joins, 1) {
			assert.Equal(t, api.StateCompleted, joins[0].State)
		}
		assert.Len(t, helpers.NodesOf(t, env.Engine, p.ID, "end"), 1)

		count, err := env.Engine.ActiveBranchCount(ctx, p.ID)
		assert.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestUnmatchedJoinFails(t *testing.T) {
	def := helpers.Process("stray",
		helpers.Start("start", "split"),
		helpers.Parallel("split", "a", "b", "c"),
		helpers.Task("a", nil, "join"),
		helpers.Task("b", nil, "join"),
		helpers.MessageCatch("c", "go", "done"),
		helpers.Parallel("join", "end"),
		helpers.End("done"),
		helpers.End("end"),
	)

	start := func(
		t *testing.T, env *helpers.TestEngineEnv,
	) (*api.ProcessInstance, *api.FlowNodeInstance) {
		t.Helper()
		env.Register(def)
		p := env.Start("stray", nil)
		join := helpers.WaitForNode(t, env.Engine, p.ID, "join",
			api.StateFailed,
		)
		assert.Contains(t, join.Error, api.ErrUnmatchedJoin.Error())
		assert.Len(t, join.JoinedTokens, 2)
		helpers.WaitIdle(t, env.Engine)

		got, err := env.Engine.GetProcess(context.Background(), p.ID)
		assert.NoError(t, err)
		assert.Equal(t, api.ProcessStarted, got.State)
		assert.Empty(t, helpers.NodesOf(t, env.Engine, p.ID, "end"))
		return p, join
	}

	t.Run("replay", func(t *testing.T) {
		helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
			ctx := context.Background()
			p, join := start(t, env)

			_, err := env.Engine.SendMessage(ctx, p.ID, "go", nil)
			assert.NoError(t, err)
			helpers.WaitForNode(t, env.Engine, p.ID, "done",
				api.StateCompleted,
			)

			res, err := env.Engine.ReplayFailed(ctx, join.ID)
			assert.NoError(t, err)
			assert.Equal(t, api.StateExecuting, res.State)
			helpers.WaitForProcessState(t, env.Engine, p.ID,
				api.ProcessCompleted,
			)
			assert.Len(t, helpers.NodesOf(t, env.Engine, p.ID, "end"), 1)
		})
	})

	t.Run("skip", func(t *testing.T) {
		helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
			ctx := context.Background()
			p, join := start(t, env)

			res, err := env.Engine.SkipFailed(ctx, join.ID)
			assert.NoError(t, err)
			assert.Equal(t, api.StateSkipped, res.State)
			helpers.WaitForNode(t, env.Engine, p.ID, "end",
				api.StateCompleted,
			)
			helpers.WaitIdle(t, env.Engine)

			count, err := env.Engine.ActiveBranchCount(ctx, p.ID)
			assert.NoError(t, err)
			assert.Equal(t, 1, count)

			_, err = env.Engine.SendMessage(ctx, p.ID, "go", nil)
			assert.NoError(t, err)
			helpers.WaitForProcessState(t, env.Engine, p.ID,
				api.ProcessCompleted,
			)
		})
	})
}

func TestExclusiveGateway(t *testing.T) {
	def := helpers.Process("choice",
		helpers.Start("start", "gate"),
		helpers.Exclusive("gate",
			helpers.When("big", "x > 10"),
			helpers.When("medium", "x > 3"),
			helpers.Otherwise("small"),
		),
		helpers.Task("big", nil, "end"),
		helpers.Task("medium", nil, "end"),
		helpers.Task("small", nil, "end"),
		helpers.End("end"),
	)

	tests := []struct {
		name  string
		x     int
		taken api.ElementID
	}{
		{name: "first match", x: 20, taken: "big"},
		{name: "declared order", x: 5, taken: "medium"},
		{name: "default", x: 1, taken: "small"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
				env.Register(def)
				p := env.Start("choice", api.Args{"x": tt.x})
				helpers.WaitForProcessState(t, env.Engine, p.ID,
					api.ProcessCompleted,
				)
				for _, el := range []api.ElementID{"big", "medium", "small"} {
					nodes := helpers.NodesOf(t, env.Engine, p.ID, el)
					if el == tt.taken {
						assert.Len(t, nodes, 1)
						continue
					}
					assert.Empty(t, nodes)
				}
			})
		})
	}
}

func TestExclusiveGatewayNoTransition(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("stuck",
			helpers.Start("start", "gate"),
			helpers.Exclusive("gate", helpers.When("end", "x > 10")),
			helpers.End("end"),
		))

		p := env.Start("stuck", api.Args{"x": 1})
		gate := helpers.WaitForNode(t, env.Engine, p.ID, "gate",
			api.StateFailed,
		)
		assert.Contains(t, gate.Error, api.ErrNoTransition.Error())

		got, err := env.Engine.GetProcess(context.Background(), p.ID)
		assert.NoError(t, err)
		assert.Equal(t, api.ProcessStarted, got.State)
	})
}

func TestEvaluationFailure(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("broken",
			helpers.Start("start", "work"),
			helpers.Task("work", []*api.Operation{
				helpers.Op("x", "error('boom')"),
			}, "end"),
			helpers.End("end"),
		))

		waiter := helpers.NewEventWaiter(env.Hub, func(ev *api.Event) bool {
			return ev.Type == api.EventNodeFailed
		}, "node failure")
		p := env.Start("broken", nil)
		ev := waiter.Wait(t, helpers.DefaultWaitTimeout)
		assert.Equal(t, p.ID, ev.ProcessID)

		work := helpers.WaitForNode(t, env.Engine, p.ID, "work",
			api.StateFailed,
		)
		assert.Equal(t, api.StateExecuting, work.PreviousState)
		assert.True(t, work.Stable)
		assert.False(t, work.Terminal)
		assert.NotEmpty(t, work.Error)

		helpers.WaitIdle(t, env.Engine)
		assert.EqualValues(t, 1, env.Metrics.Snapshot().StepsFailed)
	})
}

func TestTerminateEndEvent(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("terminate",
			helpers.Start("start", "split"),
			helpers.Parallel("split", "wait", "human", "term"),
			helpers.MessageCatch("wait", "never", "end"),
			helpers.HumanTask("human", []api.ActorID{"clerks"}, "end"),
			helpers.TerminateEnd("term"),
			helpers.End("end"),
		))

		p := env.Start("terminate", nil)
		done := helpers.WaitForProcessState(t, env.Engine, p.ID,
			api.ProcessCompleted,
		)
		assert.Equal(t, api.ElementID("term"), done.InterruptingEventID)

		helpers.WaitIdle(t, env.Engine)
		ctx := context.Background()
		count, err := env.Engine.ActiveBranchCount(ctx, p.ID)
		assert.NoError(t, err)
		assert.Zero(t, count)

		for _, el := range []api.ElementID{"wait", "human"} {
			nodes := helpers.NodesOf(t, env.Engine, p.ID, el)
			if assert.Len(t, nodes, 1) {
				assert.Equal(t, api.StateAborted, nodes[0].State)
			}
		}
		human := helpers.NodesOf(t, env.Engine, p.ID, "human")[0]
		rows, err := env.Engine.PendingRows(ctx, human.ID)
		assert.NoError(t, err)
		assert.Empty(t, rows)
		assert.Empty(t, helpers.NodesOf(t, env.Engine, p.ID, "end"))
	})
}

func TestErrorEndEvent(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("raise",
			helpers.Start("start", "fail"),
			helpers.ErrorEnd("fail", "E42"),
		))

		p := env.Start("raise", nil)
		done := helpers.WaitForProcessState(t, env.Engine, p.ID,
			api.ProcessAborted,
		)
		assert.Equal(t, "E42", done.ErrorCode)
		assert.Empty(t, done.InterruptingEventID)
	})
}

func TestBranchCountTracksFinalState(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("branches",
			helpers.Start("start", "split"),
			helpers.Parallel("split", "a", "b"),
			helpers.MessageCatch("a", "go", "end-a"),
			helpers.MessageCatch("b", "go", "end-b"),
			helpers.End("end-a"),
			helpers.End("end-b"),
		))

		ctx := context.Background()
		p := env.Start("branches", nil)
		helpers.WaitForNode(t, env.Engine, p.ID, "a", api.StateWaiting)
		helpers.WaitForNode(t, env.Engine, p.ID, "b", api.StateWaiting)
		helpers.WaitIdle(t, env.Engine)

		res, err := env.Engine.DescribeProcess(ctx, p.ID)
		assert.NoError(t, err)
		assert.Equal(t, 2, res.ActiveBranches)
		assert.False(t, res.Process.State.IsFinal())

		_, err = env.Engine.SendMessage(ctx, p.ID, "go", nil)
		assert.NoError(t, err)
		helpers.WaitForProcessState(t, env.Engine, p.ID, api.ProcessCompleted)

		res, err = env.Engine.DescribeProcess(ctx, p.ID)
		assert.NoError(t, err)
		assert.Zero(t, res.ActiveBranches)
		assert.Len(t, helpers.NodesOf(t, env.Engine, p.ID, "end-a"), 1)
		assert.Len(t, helpers.NodesOf(t, env.Engine, p.ID, "end-b"), 1)
	})
}
