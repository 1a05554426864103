package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/engine/scheduler"
)

type recorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *recorder) record(name string) scheduler.Func {
	return func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.fired = append(r.fired, name)
		return nil
	}
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

func withScheduler(t *testing.T, fn func(context.Context, *scheduler.Scheduler)) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := scheduler.New(time.Now, scheduler.NewTimer)
	go s.Run(ctx)
	fn(ctx, s)
}

func TestScheduleOrder(t *testing.T) {
	withScheduler(t, func(ctx context.Context, s *scheduler.Scheduler) {
		var r recorder
		now := time.Now()
		s.Schedule(ctx, scheduler.Key("p", "n2", ""),
			now.Add(40*time.Millisecond), r.record("second"))
		s.Schedule(ctx, scheduler.Key("p", "n1", ""),
			now.Add(10*time.Millisecond), r.record("first"))
		s.Schedule(ctx, scheduler.Key("p", "n3", ""),
			now.Add(-time.Second), r.record("overdue"))

		assert.Eventually(t, func() bool {
			return len(r.get()) == 3
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"overdue", "first", "second"}, r.get())
	})
}

func TestScheduleReplacesSameKey(t *testing.T) {
	withScheduler(t, func(ctx context.Context, s *scheduler.Scheduler) {
		var r recorder
		key := scheduler.Key("p", "n", "b1")
		at := time.Now().Add(20 * time.Millisecond)
		s.Schedule(ctx, key, at, r.record("old"))
		s.Schedule(ctx, key, at, r.record("new"))

		assert.Eventually(t, func() bool {
			return len(r.get()) == 1
		}, time.Second, 5*time.Millisecond)
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, []string{"new"}, r.get())
	})
}

func TestCancel(t *testing.T) {
	withScheduler(t, func(ctx context.Context, s *scheduler.Scheduler) {
		var r recorder
		at := time.Now().Add(20 * time.Millisecond)
		s.Schedule(ctx, scheduler.Key("p", "n1", ""), at, r.record("n1"))
		s.Schedule(ctx, scheduler.Key("p", "n2", ""), at, r.record("n2"))
		s.Cancel(ctx, scheduler.Key("p", "n1", ""))

		assert.Eventually(t, func() bool {
			return len(r.get()) == 1
		}, time.Second, 5*time.Millisecond)
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, []string{"n2"}, r.get())
	})
}

func TestCancelPrefix(t *testing.T) {
	withScheduler(t, func(ctx context.Context, s *scheduler.Scheduler) {
		var r recorder
		at := time.Now().Add(20 * time.Millisecond)
		s.Schedule(ctx, scheduler.Key("p1", "n1", "a"), at, r.record("p1a"))
		s.Schedule(ctx, scheduler.Key("p1", "n1", "b"), at, r.record("p1b"))
		s.Schedule(ctx, scheduler.Key("p1", "n2", ""), at, r.record("p1n2"))
		s.Schedule(ctx, scheduler.Key("p2", "n1", ""), at, r.record("p2"))

		s.CancelPrefix(ctx, []string{"p1", "n1"})
		assert.Eventually(t, func() bool {
			return len(r.get()) == 2
		}, time.Second, 5*time.Millisecond)

		s.Schedule(ctx, scheduler.Key("p3", "n1", ""),
			time.Now().Add(20*time.Millisecond), r.record("p3"))
		s.CancelPrefix(ctx, []string{"p3"})
		time.Sleep(40 * time.Millisecond)
		assert.ElementsMatch(t, []string{"p1n2", "p2"}, r.get())
	})
}

func TestCallbackErrorKeepsRunning(t *testing.T) {
	withScheduler(t, func(ctx context.Context, s *scheduler.Scheduler) {
		var r recorder
		now := time.Now()
		s.Schedule(ctx, scheduler.Key("p", "bad", ""), now,
			func() error { return errors.New("boom") })
		s.Schedule(ctx, scheduler.Key("p", "good", ""),
			now.Add(10*time.Millisecond), r.record("good"))

		assert.Eventually(t, func() bool {
			return len(r.get()) == 1
		}, time.Second, 5*time.Millisecond)
	})
}
