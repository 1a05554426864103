package api

import "slices"

type (
	// FlowNodeType identifies the kind of process element a flow-node
	// instance is running
	FlowNodeType string

	// FlowNodeState is the lifecycle state of a flow-node instance
	FlowNodeState string

	// StateCategory flags whether the owner of a flow-node instance is being
	// terminated, which pre-empts ordinary transitions
	StateCategory string

	// ProcessState is the lifecycle state of a process instance
	ProcessState string

	// ContainerType identifies what kind of entity contains a flow-node
	ContainerType string

	// CallerType identifies what started a process instance
	CallerType string
)

const (
	NodeStartEvent        FlowNodeType = "start-event"
	NodeEndEvent          FlowNodeType = "end-event"
	NodeTerminateEndEvent FlowNodeType = "terminate-end-event"
	NodeErrorEndEvent     FlowNodeType = "error-end-event"
	NodeAutomaticTask     FlowNodeType = "automatic-task"
	NodeHumanTask         FlowNodeType = "human-task"
	NodeParallelGateway   FlowNodeType = "parallel-gateway"
	NodeExclusiveGateway  FlowNodeType = "exclusive-gateway"
	NodeCatchEvent        FlowNodeType = "intermediate-catch-event"
	NodeSubProcess        FlowNodeType = "sub-process"
	NodeCallActivity      FlowNodeType = "call-activity"
	NodeMultiInstance     FlowNodeType = "multi-instance"
)

const (
	StateInitializing           FlowNodeState = "initializing"
	StateExecuting              FlowNodeState = "executing"
	StateCompleting             FlowNodeState = "completing"
	StateCompletingWithBoundary FlowNodeState = "completing-with-boundary"
	StateCancelling             FlowNodeState = "cancelling"
	StateAborting               FlowNodeState = "aborting"
	StateAbortingWithBoundary   FlowNodeState = "aborting-with-boundary"
	StateAbortingCallActivity   FlowNodeState = "aborting-call-activity"
	StateCancellingCallActivity FlowNodeState = "cancelling-call-activity"
	StateCancellingSubtasks     FlowNodeState = "cancelling-subtasks"
	StateReady                  FlowNodeState = "ready"
	StateWaiting                FlowNodeState = "waiting"
	StateFailed                 FlowNodeState = "failed"
	StateCompleted              FlowNodeState = "completed"
	StateAborted                FlowNodeState = "aborted"
	StateSkipped                FlowNodeState = "skipped"
	StateInterrupted            FlowNodeState = "interrupted"
	StateCancelled              FlowNodeState = "cancelled"
)

const (
	CategoryNormal     StateCategory = "normal"
	CategoryAborting   StateCategory = "aborting"
	CategoryCancelling StateCategory = "cancelling"
)

const (
	ProcessInitializing ProcessState = "initializing"
	ProcessStarted      ProcessState = "started"
	ProcessCompleted    ProcessState = "completed"
	ProcessAborted      ProcessState = "aborted"
	ProcessCancelled    ProcessState = "cancelled"
)

const (
	ContainerProcess  ContainerType = "process"
	ContainerFlowNode ContainerType = "flow-node"
)

const (
	CallerNone         CallerType = "none"
	CallerCallActivity CallerType = "call-activity"
	CallerSubProcess   CallerType = "sub-process"
)

var (
	finalStates = []FlowNodeState{
		StateCompleted, StateAborted, StateSkipped, StateInterrupted,
		StateCancelled,
	}

	waitingStates = []FlowNodeState{
		StateReady, StateWaiting, StateFailed,
	}

	abortingStates = []FlowNodeState{
		StateAborting, StateAbortingWithBoundary, StateAbortingCallActivity,
	}

	cancellingStates = []FlowNodeState{
		StateCancelling, StateCancellingCallActivity, StateCancellingSubtasks,
	}
)

// IsFinal reports whether the state is one a flow-node never leaves
func (s FlowNodeState) IsFinal() bool {
	return slices.Contains(finalStates, s)
}

// IsStable reports whether an instance in this state can be left alone
// across an engine restart. Only ready, waiting, failed and the final states
// are stable
func (s FlowNodeState) IsStable() bool {
	return s.IsFinal() || slices.Contains(waitingStates, s)
}

// IsAborting reports whether the state belongs to the aborting family
func (s FlowNodeState) IsAborting() bool {
	return slices.Contains(abortingStates, s)
}

// IsCancelling reports whether the state belongs to the cancelling family
func (s FlowNodeState) IsCancelling() bool {
	return slices.Contains(cancellingStates, s)
}

// IsNormal reports whether no termination is under way
func (c StateCategory) IsNormal() bool {
	return c == "" || c == CategoryNormal
}

// IsFinal reports whether the process has reached an end state
func (s ProcessState) IsFinal() bool {
	switch s {
	case ProcessCompleted, ProcessAborted, ProcessCancelled:
		return true
	default:
		return false
	}
}

// IsContainer reports whether instances of this type own child work (a
// child process or multi-instance children) that must finish first
func (t FlowNodeType) IsContainer() bool {
	switch t {
	case NodeCallActivity, NodeSubProcess, NodeMultiInstance:
		return true
	default:
		return false
	}
}

// IsEndEvent reports whether the type consumes its token on completion
func (t FlowNodeType) IsEndEvent() bool {
	switch t {
	case NodeEndEvent, NodeTerminateEndEvent, NodeErrorEndEvent:
		return true
	default:
		return false
	}
}
