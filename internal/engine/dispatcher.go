package engine

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/pkg/api"
	"github.com/kode4food/flownode/pkg/log"
)

type (
	// dispatcher runs queued steps on a fixed pool of workers. Every worker
	// reads from the same consumer, so each step runs exactly once
	dispatcher struct {
		engine   *Engine
		queue    topic.Topic[*work]
		prod     topic.Producer[*work]
		cons     topic.Consumer[*work]
		pending  atomic.Int64
		stop     chan struct{}
		mu       sync.RWMutex
		closed   bool
		stopOnce sync.Once
		started  sync.Once
		runWG    sync.WaitGroup
	}

	work struct {
		step    *api.Step
		attempt int
	}

	backoffCalculator func(baseDelay int64, retryCount int) int64
)

var backoffCalculators = map[string]backoffCalculator{
	api.BackoffTypeFixed: func(base int64, _ int) int64 {
		return base
	},
	api.BackoffTypeLinear: func(base int64, count int) int64 {
		return base * int64(count+1)
	},
	api.BackoffTypeExponential: func(base int64, count int) int64 {
		multiplier := math.Pow(2, float64(count))
		return int64(float64(base) * multiplier)
	},
}

func newDispatcher(e *Engine) *dispatcher {
	queue := caravan.NewTopic[*work]()
	return &dispatcher{
		engine: e,
		queue:  queue,
		prod:   queue.NewProducer(),
		cons:   queue.NewConsumer(),
		stop:   make(chan struct{}),
	}
}

func (d *dispatcher) start() {
	d.started.Do(func() {
		for range max(d.engine.config.Workers, 1) {
			d.runWG.Go(d.loop)
		}
	})
}

func (d *dispatcher) loop() {
	for {
		select {
		case <-d.stop:
			return
		case w, ok := <-d.cons.Receive():
			if !ok {
				return
			}
			d.run(w)
		}
	}
}

// submit queues steps. Steps submitted after the dispatcher has stopped are
// dropped; the instances they address are picked up again by recovery
func (d *dispatcher) submit(steps ...*api.Step) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range steps {
		if d.closed {
			slog.Debug("Step dropped after shutdown",
				log.NodeID(s.NodeID),
				log.Trigger(s.Trigger.Kind))
			continue
		}
		d.pending.Add(1)
		message.Send(d.prod, &work{step: s})
	}
}

func (d *dispatcher) resend(w *work) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.pending.Add(-1)
		return
	}
	message.Send(d.prod, w)
}

func (d *dispatcher) run(w *work) {
	retried := false
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Step panic",
				log.NodeID(w.step.NodeID),
				slog.Any("panic", r))
		}
		if !retried {
			d.pending.Add(-1)
		}
	}()

	e := d.engine
	res, err := e.Advance(e.ctx, w.step.NodeID, w.step.Trigger)
	if res != nil {
		d.submit(res.FollowUps...)
	}
	switch {
	case err == nil:
	case store.IsTransient(err):
		retried = d.retry(w, err)
	case IsStale(err):
		e.metrics.StepDropped()
		slog.Debug("Stale step dropped",
			log.NodeID(w.step.NodeID),
			log.Trigger(w.step.Trigger.Kind),
			log.Error(err))
	case api.IsStepFailure(err):
	default:
		slog.Error("Step failed",
			log.NodeID(w.step.NodeID),
			log.Trigger(w.step.Trigger.Kind),
			log.Error(err))
	}
}

// retry schedules another attempt of a step that hit a transient failure,
// reporting whether one was scheduled
func (d *dispatcher) retry(w *work, cause error) bool {
	e := d.engine
	if !shouldRetry(&e.config.Retry, w.attempt) {
		e.metrics.StepDropped()
		slog.Error("Step retries exhausted",
			log.NodeID(w.step.NodeID),
			log.Trigger(w.step.Trigger.Kind),
			log.Attempt(w.attempt),
			log.Error(cause))
		return false
	}
	e.metrics.StepRetried()
	next := &work{step: w.step, attempt: w.attempt + 1}
	at := nextRetryAt(e.clock(), &e.config.Retry, w.attempt)
	key := []string{"retry", string(w.step.NodeID), uuid.NewString()}
	e.scheduler.Schedule(e.ctx, key, at, func() error {
		d.resend(next)
		return nil
	})
	return true
}

func (d *dispatcher) idle() bool {
	return d.pending.Load() == 0
}

// flush stops the workers once their current steps finish and closes the
// queue. Steps still queued stay unapplied
func (d *dispatcher) flush() {
	d.halt()
	d.runWG.Wait()
	d.cons.Close()
}

// halt stops the workers without waiting for them
func (d *dispatcher) halt() {
	d.stopOnce.Do(func() {
		close(d.stop)
		d.mu.Lock()
		defer d.mu.Unlock()
		d.closed = true
		d.prod.Close()
	})
}

func shouldRetry(cfg *api.RetryConfig, attempt int) bool {
	if cfg.MaxRetries == 0 {
		return false
	}
	if cfg.MaxRetries < 0 {
		return true
	}
	return attempt < cfg.MaxRetries
}

func nextRetryAt(
	now time.Time, cfg *api.RetryConfig, attempt int,
) time.Time {
	return now.Add(backoff(cfg, attempt))
}

func backoff(cfg *api.RetryConfig, attempt int) time.Duration {
	calculator, ok := backoffCalculators[cfg.BackoffType]
	if !ok {
		calculator = backoffCalculators[api.BackoffTypeFixed]
	}
	delay := min(calculator(cfg.InitBackoff, attempt), cfg.MaxBackoff)
	return time.Duration(delay) * time.Millisecond
}
