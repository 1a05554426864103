package engine

import (
	"github.com/kode4food/flownode/pkg/api"
	"github.com/kode4food/flownode/pkg/util"
)

// StateTransitions maps states to their set of valid next states
type StateTransitions[T comparable] map[T]util.Set[T]

var nodeTransitions = StateTransitions[api.FlowNodeState]{
	api.StateInitializing: util.SetOf(
		api.StateExecuting,
		api.StateCompleting,
		api.StateWaiting,
		api.StateFailed,
		api.StateAborting,
		api.StateCancelling,
	),
	api.StateExecuting: util.SetOf(
		api.StateCompleting,
		api.StateCompletingWithBoundary,
		api.StateReady,
		api.StateWaiting,
		api.StateFailed,
		api.StateAborting,
		api.StateCancelling,
		api.StateAbortingWithBoundary,
	),
	api.StateCompletingWithBoundary: util.SetOf(
		api.StateCompleting,
		api.StateAborting,
		api.StateCancelling,
	),
	api.StateCompleting: util.SetOf(
		api.StateCompleted,
		api.StateInitializing,
		api.StateFailed,
		api.StateAborting,
		api.StateCancelling,
	),
	api.StateReady: util.SetOf(
		api.StateExecuting,
		api.StateFailed,
		api.StateAborting,
		api.StateCancelling,
		api.StateAbortingWithBoundary,
	),
	api.StateWaiting: util.SetOf(
		api.StateExecuting,
		api.StateFailed,
		api.StateAborting,
		api.StateCancelling,
		api.StateAbortingWithBoundary,
		api.StateAbortingCallActivity,
		api.StateCancellingCallActivity,
		api.StateCancellingSubtasks,
	),
	api.StateFailed: util.SetOf(
		api.StateSkipped,
		api.StateInitializing,
		api.StateWaiting,
		api.StateExecuting,
		api.StateAborting,
		api.StateCancelling,
	),
	api.StateAborting:               util.SetOf(api.StateAborted),
	api.StateAbortingWithBoundary:   util.SetOf(api.StateAborted),
	api.StateAbortingCallActivity:   util.SetOf(api.StateAborted),
	api.StateCancelling:             util.SetOf(api.StateCancelled),
	api.StateCancellingCallActivity: util.SetOf(api.StateCancelled),
	api.StateCancellingSubtasks:     util.SetOf(api.StateCancelled),
	api.StateCompleted:              {},
	api.StateAborted:                {},
	api.StateSkipped:                {},
	api.StateInterrupted:            {},
	api.StateCancelled:              {},
}

// CanTransition returns whether transition from one state to another is valid
func (t StateTransitions[T]) CanTransition(from, to T) bool {
	allowed, ok := t[from]
	if !ok {
		return false
	}
	return allowed.Contains(to)
}

// IsTerminal returns true if the state has no valid transitions
func (t StateTransitions[T]) IsTerminal(state T) bool {
	allowed, ok := t[state]
	return ok && allowed.IsEmpty()
}
