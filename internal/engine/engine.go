package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kode4food/flownode/internal/config"
	"github.com/kode4food/flownode/internal/definition"
	"github.com/kode4food/flownode/internal/engine/loop"
	"github.com/kode4food/flownode/internal/engine/scheduler"
	"github.com/kode4food/flownode/internal/events"
	"github.com/kode4food/flownode/internal/expr"
	"github.com/kode4food/flownode/internal/store"
)

type (
	// Engine is the flow-node execution engine
	Engine struct {
		ctx       context.Context
		cancel    context.CancelFunc
		config    *config.Config
		store     store.Store
		defs      definition.Provider
		eval      expr.Evaluator
		loops     *loop.Controller
		hub       *events.Hub
		metrics   Metrics
		clock     scheduler.Clock
		scheduler *scheduler.Scheduler
		steps     *dispatcher
		handlers  handlerTable
	}

	// Dependencies are the collaborators an Engine is built from. Store,
	// Definitions and Evaluator are required
	Dependencies struct {
		Store       store.Store
		Definitions definition.Provider
		Evaluator   expr.Evaluator
		Hub         *events.Hub
		Metrics     Metrics
		Clock       scheduler.Clock
		Timers      scheduler.TimerConstructor
	}
)

var (
	ErrMissingDependency  = errors.New("missing engine dependency")
	ErrProcessNotFound    = errors.New("process instance not found")
	ErrNodeNotFound       = errors.New("flow-node instance not found")
	ErrInstanceTerminal   = errors.New("flow-node instance is terminal")
	ErrInvalidTransition  = errors.New("invalid flow-node state transition")
	ErrInvalidTrigger     = errors.New("invalid trigger")
	ErrProcessFinished    = errors.New("process instance is finished")
	ErrProcessNotFinished = errors.New("process instance is still running")
	ErrNotFailed          = errors.New("flow-node instance is not failed")
	ErrNotHumanTask       = errors.New("flow-node instance is not a human task")
	ErrNotAssignee        = errors.New("task is assigned to another user")
	ErrMissingUser        = errors.New("user required")
	ErrRecoverProcesses   = errors.New("failed to recover flow-node instances")
)

// New creates an engine. The engine does nothing until Start is called
func New(cfg *config.Config, deps Dependencies) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	case deps.Definitions == nil:
		return nil, fmt.Errorf("%w: definitions", ErrMissingDependency)
	case deps.Evaluator == nil:
		return nil, fmt.Errorf("%w: evaluator", ErrMissingDependency)
	}
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if deps.Hub == nil {
		deps.Hub = events.NewHub()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewCollector()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Timers == nil {
		deps.Timers = scheduler.NewTimer
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ctx:       ctx,
		cancel:    cancel,
		config:    cfg,
		store:     deps.Store,
		defs:      deps.Definitions,
		eval:      deps.Evaluator,
		loops:     loop.New(deps.Evaluator),
		hub:       deps.Hub,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		scheduler: scheduler.New(deps.Clock, deps.Timers),
	}
	e.handlers = e.newHandlerTable()
	e.steps = newDispatcher(e)
	return e, nil
}

// Hub returns the notification hub the engine publishes to
func (e *Engine) Hub() *events.Hub {
	return e.hub
}

// Metrics returns the engine's metrics collector
func (e *Engine) Metrics() Metrics {
	return e.metrics
}

// Now returns the current time from the engine's clock
func (e *Engine) Now() time.Time {
	return e.clock()
}

// Idle reports whether no step is queued, running or waiting to be retried
func (e *Engine) Idle() bool {
	return e.steps.idle()
}

// Stopping reports whether Stop or Halt has been called
func (e *Engine) Stopping() bool {
	return e.ctx.Err() != nil
}

// IsStale reports whether err means a step no longer applies to its
// instance, so that dropping it is correct
func IsStale(err error) bool {
	return errors.Is(err, ErrInstanceTerminal) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrProcessFinished)
}
