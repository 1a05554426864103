package api

type (
	// TriggerKind names the stimulus applied to a flow-node instance
	TriggerKind string

	// Trigger is the input to one state machine step
	Trigger struct {
		Payload      Args          `json:"payload,omitempty"`
		Kind         TriggerKind   `json:"kind"`
		UserID       UserID        `json:"user_id,omitempty"`
		SubstituteID UserID        `json:"substitute_id,omitempty"`
		BoundaryID   ElementID     `json:"boundary_id,omitempty"`
		ChildID      string        `json:"child_id,omitempty"`
		ChildState   FlowNodeState `json:"child_state,omitempty"`
		ProcessState ProcessState  `json:"process_state,omitempty"`
		ErrorCode    string        `json:"error_code,omitempty"`
		MessageName  string        `json:"message_name,omitempty"`
	}

	// Step is a trigger addressed to one flow-node instance
	Step struct {
		NodeID  NodeID   `json:"node_id"`
		Trigger *Trigger `json:"trigger"`
	}

	// StepResult reports the outcome of a state machine step
	StepResult struct {
		NodeID        NodeID        `json:"node_id"`
		State         FlowNodeState `json:"state"`
		PreviousState FlowNodeState `json:"previous_state"`
		FollowUps     []*Step       `json:"follow_ups,omitempty"`
	}
)

const (
	TriggerStart             TriggerKind = "start"
	TriggerExecuteLogic      TriggerKind = "execute-logic"
	TriggerAssignmentChanged TriggerKind = "assignment-changed"
	TriggerChildCompleted    TriggerKind = "child-completed"
	TriggerTimerFired        TriggerKind = "timer-fired"
	TriggerMessageArrived    TriggerKind = "message-arrived"
	TriggerAbortRequested    TriggerKind = "abort-requested"
	TriggerCancelRequested   TriggerKind = "cancel-requested"
)

// NewTrigger creates a trigger of the given kind
func NewTrigger(kind TriggerKind) *Trigger {
	return &Trigger{Kind: kind}
}

// IsTermination reports whether the trigger requests abort or cancel
func (k TriggerKind) IsTermination() bool {
	return k == TriggerAbortRequested || k == TriggerCancelRequested
}

// IsValid reports whether k is one of the known trigger kinds
func (k TriggerKind) IsValid() bool {
	switch k {
	case TriggerStart, TriggerExecuteLogic, TriggerAssignmentChanged,
		TriggerChildCompleted, TriggerTimerFired, TriggerMessageArrived,
		TriggerAbortRequested, TriggerCancelRequested:
		return true
	default:
		return false
	}
}
