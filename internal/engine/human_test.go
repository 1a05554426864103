package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/assert/helpers"
	"github.com/kode4food/flownode/internal/engine"
	"github.com/kode4food/flownode/internal/engine/pending"
	"github.com/kode4food/flownode/pkg/api"
)

func approval() *api.ProcessDefinition {
	review := helpers.HumanTask("review",
		[]api.ActorID{"clerks", "managers"}, "end",
	)
	review.Name = "Review request"
	review.UserFilter = helpers.Lua("{ owner }")
	review.Operations = []*api.Operation{
		helpers.Op("status", "approved and 'yes' or 'no'"),
	}
	return helpers.Process("approval",
		helpers.Start("start", "review"), review, helpers.End("end"),
	)
}

func TestHumanTaskLifecycle(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(approval())

		ctx := context.Background()
		p := env.Start("approval", api.Args{"owner": "dave"})
		task := helpers.WaitForNode(t, env.Engine, p.ID, "review",
			api.StateReady,
		)
		assert.True(t, task.Stable)

		rows, err := env.Engine.PendingRows(ctx, task.ID)
		assert.NoError(t, err)
		assert.Len(t, rows, 3)

		for _, f := range []pending.Filter{
			{ActorIDs: []api.ActorID{"clerks"}},
			{ActorIDs: []api.ActorID{"nobody", "managers"}},
			{UserID: "dave"},
		} {
			refs, err := env.Engine.PendingTasks(ctx, f, pending.Page{})
			assert.NoError(t, err)
			if assert.Len(t, refs, 1) {
				assert.Equal(t, task.ID, refs[0].ID)
				assert.Equal(t, p.ID, refs[0].ProcessInstanceID)
				assert.Equal(t, "Review request", refs[0].Name)
			}
		}

		res, err := env.Engine.AssignTask(ctx, task.ID, "erin")
		assert.NoError(t, err)
		assert.Equal(t, api.StateReady, res.State)

		rows, err = env.Engine.PendingRows(ctx, task.ID)
		assert.NoError(t, err)
		assert.Empty(t, rows)
		refs, err := env.Engine.PendingTasks(ctx,
			pending.Filter{UserID: "dave"}, pending.Page{},
		)
		assert.NoError(t, err)
		assert.Empty(t, refs)

		_, err = env.Engine.ExecuteTask(ctx, task.ID, &api.ExecuteRequest{
			UserID: "frank",
		})
		assert.True(t, errors.Is(err, engine.ErrNotAssignee))

		res, err = env.Engine.ExecuteTask(ctx, task.ID, &api.ExecuteRequest{
			UserID:       "erin",
			SubstituteID: "gina",
			Data:         api.Args{"approved": true},
		})
		assert.NoError(t, err)
		assert.Equal(t, api.StateExecuting, res.State)
		assert.Equal(t, api.StateReady, res.PreviousState)

		done := helpers.WaitForProcessState(t, env.Engine, p.ID,
			api.ProcessCompleted,
		)
		assert.Equal(t, "yes", done.Data["status"])
		assert.Equal(t, true, done.Data["approved"])

		got, err := env.Engine.GetNode(ctx, task.ID)
		assert.NoError(t, err)
		assert.Equal(t, api.UserID("erin"), got.ExecutedBy)
		assert.Equal(t, api.UserID("gina"), got.ExecutedBySubstitute)
		assert.Equal(t, api.StateCompleted, got.State)
	})
}

func TestHumanTaskUnassign(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(approval())

		ctx := context.Background()
		p := env.Start("approval", api.Args{"owner": "dave"})
		task := helpers.WaitForNode(t, env.Engine, p.ID, "review",
			api.StateReady,
		)

		_, err := env.Engine.AssignTask(ctx, task.ID, "erin")
		assert.NoError(t, err)
		_, err = env.Engine.AssignTask(ctx, task.ID, "")
		assert.NoError(t, err)

		rows, err := env.Engine.PendingRows(ctx, task.ID)
		assert.NoError(t, err)
		assert.Len(t, rows, 3)

		got, err := env.Engine.GetNode(ctx, task.ID)
		assert.NoError(t, err)
		assert.Empty(t, got.Assignee)

		_, err = env.Engine.ExecuteTask(ctx, task.ID, &api.ExecuteRequest{
			UserID: "frank",
		})
		assert.NoError(t, err)
		done := helpers.WaitForProcessState(t, env.Engine, p.ID,
			api.ProcessCompleted,
		)
		assert.Equal(t, "no", done.Data["status"])
	})
}

func TestHumanTaskPaging(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(approval())

		ctx := context.Background()
		for range 3 {
			p := env.Start("approval", api.Args{"owner": "dave"})
			helpers.WaitForNode(t, env.Engine, p.ID, "review", api.StateReady)
		}

		f := pending.Filter{ActorIDs: []api.ActorID{"clerks"}}
		all, err := env.Engine.PendingTasks(ctx, f, pending.Page{})
		assert.NoError(t, err)
		assert.Len(t, all, 3)

		page, err := env.Engine.PendingTasks(ctx, f, pending.Page{
			Offset: 1, Limit: 1,
		})
		assert.NoError(t, err)
		if assert.Len(t, page, 1) {
			assert.Equal(t, all[1].ID, page[0].ID)
		}

		page, err = env.Engine.PendingTasks(ctx, f, pending.Page{Offset: 5})
		assert.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestHumanTaskWithoutCandidates(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("orphan",
			helpers.Start("start", "review"),
			helpers.HumanTask("review", nil, "end"),
			helpers.End("end"),
		))

		p := env.Start("orphan", nil)
		task := helpers.WaitForNode(t, env.Engine, p.ID, "review",
			api.StateFailed,
		)
		assert.Contains(t, task.Error, api.ErrMissingActor.Error())
	})
}

func TestHumanTaskRequests(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(approval())
		env.Register(helpers.Process("catch",
			helpers.Start("start", "wait"),
			helpers.MessageCatch("wait", "go", "end"),
			helpers.End("end"),
		))

		ctx := context.Background()
		p := env.Start("approval", api.Args{"owner": "dave"})
		task := helpers.WaitForNode(t, env.Engine, p.ID, "review",
			api.StateReady,
		)
		_, err := env.Engine.ExecuteTask(ctx, task.ID, &api.ExecuteRequest{})
		assert.True(t, errors.Is(err, engine.ErrMissingUser))

		c := env.Start("catch", nil)
		wait := helpers.WaitForNode(t, env.Engine, c.ID, "wait",
			api.StateWaiting,
		)
		_, err = env.Engine.AssignTask(ctx, wait.ID, "erin")
		assert.True(t, errors.Is(err, engine.ErrNotHumanTask))

		_, err = env.Engine.AssignTask(ctx, "missing", "erin")
		assert.True(t, errors.Is(err, engine.ErrNodeNotFound))
	})
}
