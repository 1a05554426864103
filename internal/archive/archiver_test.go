package archive_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/kode4food/flownode/internal/archive"
	"github.com/kode4food/flownode/internal/assert/helpers"
	"github.com/kode4food/flownode/internal/engine"
	"github.com/kode4food/flownode/internal/events"
	"github.com/kode4food/flownode/pkg/api"
)

type brokenBucket struct{}

var errBroken = errors.New("bucket unavailable")

func (brokenBucket) WriteAll(
	context.Context, string, []byte, *blob.WriterOptions,
) error {
	return errBroken
}

func (brokenBucket) ReadAll(context.Context, string) ([]byte, error) {
	return nil, errBroken
}

func withArchiver(
	t *testing.T, env *helpers.TestEngineEnv, bucket archive.Bucket,
) *archive.Archiver {
	t.Helper()
	w, err := archive.NewWriter(bucket, "processes/")
	assert.NoError(t, err)
	a, err := archive.NewArchiver(env.Engine, env.Hub, w)
	assert.NoError(t, err)
	a.Start()
	return a
}

func waitArchived(env *helpers.TestEngineEnv) *helpers.EventWaiter {
	return helpers.NewEventWaiter(env.Hub,
		events.ForTypes(api.EventProcessArchived), "process archived",
	)
}

func TestArchiveFinishedProcess(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(
			helpers.Process("child",
				helpers.Start("start", "work"),
				helpers.Task("work", []*api.Operation{
					helpers.Op("result", "input + 1"),
				}, "end"),
				helpers.End("end"),
			),
			helpers.Process("parent",
				helpers.Start("start", "call"),
				helpers.CallActivity("call", "child", "end"),
				helpers.End("end"),
			),
		)

		bucket := memblob.OpenBucket(nil)
		defer func() { _ = bucket.Close() }()
		a := withArchiver(t, env, bucket)
		defer a.Stop()

		ctx := context.Background()
		waiter := waitArchived(env)
		p := env.Start("parent", api.Args{"input": 1})
		ev := waiter.Wait(t, helpers.DefaultWaitTimeout)
		assert.Equal(t, p.ID, ev.ProcessID)
		assert.Equal(t, api.ProcessCompleted, ev.ProcessState)

		_, err := env.Engine.GetProcess(ctx, p.ID)
		assert.ErrorIs(t, err, engine.ErrProcessNotFound)

		rec, err := a.Load(ctx, p.ID)
		assert.NoError(t, err)
		assert.Equal(t, p.ID, rec.ProcessID)
		assert.Equal(t, api.ProcessCompleted, rec.State)
		assert.False(t, rec.ArchivedAt.IsZero())
		assert.Len(t, rec.Processes, 2)
		for _, pr := range rec.Processes {
			assert.NotEmpty(t, pr.Nodes)
		}
	})
}

func TestArchiveKeepsRunningProcess(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("inbox",
			helpers.Start("start", "wait"),
			helpers.MessageCatch("wait", "go", "end"),
			helpers.End("end"),
		))

		bucket := memblob.OpenBucket(nil)
		defer func() { _ = bucket.Close() }()
		a := withArchiver(t, env, bucket)
		defer a.Stop()

		ctx := context.Background()
		p := env.Start("inbox", nil)
		helpers.WaitForNode(t, env.Engine, p.ID, "wait", api.StateWaiting)

		err := a.Archive(ctx, p.ID)
		assert.ErrorIs(t, err, archive.ErrNotFinished)
		_, err = env.Engine.GetProcess(ctx, p.ID)
		assert.NoError(t, err)

		err = a.Archive(ctx, "missing")
		assert.ErrorIs(t, err, archive.ErrNothingToStore)
	})
}

func TestArchiveWriteFailure(t *testing.T) {
	helpers.WithStartedEngine(t, func(env *helpers.TestEngineEnv) {
		env.Register(helpers.Process("quick",
			helpers.Start("start", "end"),
			helpers.End("end"),
		))

		w, err := archive.NewWriter(brokenBucket{}, "")
		assert.NoError(t, err)
		a, err := archive.NewArchiver(env.Engine, env.Hub, w)
		assert.NoError(t, err)

		ctx := context.Background()
		p := env.Start("quick", nil)
		helpers.WaitForProcessState(t, env.Engine, p.ID, api.ProcessCompleted)

		assert.ErrorIs(t, a.Archive(ctx, p.ID), errBroken)
		got, err := env.Engine.GetProcess(ctx, p.ID)
		assert.NoError(t, err)
		assert.Equal(t, api.ProcessCompleted, got.State)
		a.Stop()
	})
}

func TestNewArchiverRequires(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		w, err := archive.NewWriter(memblob.OpenBucket(nil), "")
		assert.NoError(t, err)

		_, err = archive.NewArchiver(nil, eng.Hub(), w)
		assert.ErrorIs(t, err, archive.ErrSourceRequired)
		_, err = archive.NewArchiver(eng, nil, w)
		assert.ErrorIs(t, err, archive.ErrHubRequired)
		_, err = archive.NewArchiver(eng, eng.Hub(), nil)
		assert.ErrorIs(t, err, archive.ErrWriterRequired)
	})
}
