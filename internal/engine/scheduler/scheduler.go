// Package scheduler delivers delayed callbacks, keyed by path so that the
// timers of a flow-node instance, or of a whole process, can be replaced or
// cancelled together
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/kode4food/flownode/pkg/log"
)

type (
	// Scheduler runs callbacks at their due time
	Scheduler struct {
		now       Clock
		makeTimer TimerConstructor
		requests  chan request
	}

	// Func is called when its entry comes due
	Func func() error

	request struct {
		entry  *entry
		cancel []string
		prefix []string
	}
)

const requestBuffer = 128

// New creates a scheduler using the provided clock and timer constructor
func New(now Clock, makeTimer TimerConstructor) *Scheduler {
	return &Scheduler{
		now:       now,
		makeTimer: makeTimer,
		requests:  make(chan request, requestBuffer),
	}
}

// Key identifies the timer of one element of a flow-node instance
func Key(pid, nid, element string) []string {
	return []string{pid, nid, element}
}

// Schedule registers fn to run at the given time, replacing anything
// already registered under key
func (s *Scheduler) Schedule(
	ctx context.Context, key []string, at time.Time, fn Func,
) {
	s.send(ctx, request{entry: &entry{at: at, fn: fn, key: key}})
}

// Cancel removes the entry registered under key
func (s *Scheduler) Cancel(ctx context.Context, key []string) {
	s.send(ctx, request{cancel: key})
}

// CancelPrefix removes every entry whose key starts with prefix
func (s *Scheduler) CancelPrefix(ctx context.Context, prefix []string) {
	s.send(ctx, request{prefix: prefix})
}

// Run processes requests and fires due entries until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	timer := s.makeTimer(0)
	var fire <-chan time.Time
	q := newQueue()

	rearm := func() {
		e := q.next()
		if e == nil {
			timer.Stop()
			fire = nil
			return
		}
		timer.Reset(e.at.Sub(s.now()))
		fire = timer.Channel()
	}
	rearm()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case req := <-s.requests:
			switch {
			case req.entry != nil:
				q.add(req.entry)
			case req.cancel != nil:
				q.cancel(req.cancel)
			case req.prefix != nil:
				q.cancelPrefix(req.prefix)
			}
			rearm()
		case <-fire:
			if e := q.next(); e != nil && !e.at.After(s.now()) {
				q.pop()
				if err := e.fn(); err != nil {
					slog.Error("Scheduled callback failed",
						slog.Any("key", e.key),
						log.Error(err))
				}
			}
			rearm()
		}
	}
}

func (s *Scheduler) send(ctx context.Context, req request) {
	select {
	case s.requests <- req:
	case <-ctx.Done():
	}
}
