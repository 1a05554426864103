package api

import "time"

type (
	// FlowNodeInstance is one runtime occurrence of a process element
	FlowNodeInstance struct {
		ReachedStateDate        time.Time               `json:"reached_state_date"`
		LastUpdateDate          time.Time               `json:"last_update_date"`
		Data                    Args                    `json:"data,omitempty"`
		Timers                  map[ElementID]time.Time `json:"timers,omitempty"`
		ID                      NodeID                  `json:"id"`
		Type                    FlowNodeType            `json:"type"`
		State                   FlowNodeState           `json:"state"`
		PreviousState           FlowNodeState           `json:"previous_state,omitempty"`
		StateCategory           StateCategory           `json:"state_category"`
		ParentContainerID       string                  `json:"parent_container_id"`
		ParentContainerType     ContainerType           `json:"parent_container_type"`
		RootContainerID         ProcessID               `json:"root_container_id"`
		ParentProcessInstanceID ProcessID               `json:"parent_process_instance_id"`
		RootProcessInstanceID   ProcessID               `json:"root_process_instance_id"`
		ProcessDefinitionID     DefinitionID            `json:"process_definition_id"`
		FlowNodeDefinitionID    ElementID               `json:"flow_node_definition_id"`
		TokenID                 TokenID                 `json:"token_id,omitempty"`
		JoinKey                 TokenID                 `json:"join_key,omitempty"`
		JoinedTokens            []TokenID               `json:"joined_tokens,omitempty"`
		ExecutedBy              UserID                  `json:"executed_by,omitempty"`
		ExecutedBySubstitute    UserID                  `json:"executed_by_substitute,omitempty"`
		Assignee                UserID                  `json:"assignee,omitempty"`
		ChildProcessID          ProcessID               `json:"child_process_id,omitempty"`
		Error                   string                  `json:"error,omitempty"`
		ErrorCode               string                  `json:"error_code,omitempty"`
		InterruptedBy           ElementID               `json:"interrupted_by,omitempty"`
		TokenCount              int                     `json:"token_count"`
		LoopCounter             int                     `json:"loop_counter"`
		LoopInstance            int                     `json:"loop_instance"`
		NbInstances             int                     `json:"nb_instances,omitempty"`
		NbActive                int                     `json:"nb_active,omitempty"`
		NbCompleted             int                     `json:"nb_completed,omitempty"`
		NbTerminated            int                     `json:"nb_terminated,omitempty"`
		Triggered               bool                    `json:"triggered,omitempty"`
		LoopDone                bool                    `json:"loop_done,omitempty"`
		CompletedEarly          bool                    `json:"completed_early,omitempty"`
		Terminal                bool                    `json:"terminal"`
		Stable                  bool                    `json:"stable"`
	}

	// ProcessInstance is one independent execution of a process definition
	ProcessInstance struct {
		StartDate             time.Time     `json:"start_date"`
		EndDate               time.Time     `json:"end_date,omitempty"`
		LastUpdateDate        time.Time     `json:"last_update_date"`
		Data                  Args          `json:"data,omitempty"`
		ID                    ProcessID     `json:"id"`
		ProcessDefinitionID   DefinitionID  `json:"process_definition_id"`
		State                 ProcessState  `json:"state"`
		StateCategory         StateCategory `json:"state_category"`
		RootProcessInstanceID ProcessID     `json:"root_process_instance_id"`
		CallerID              NodeID        `json:"caller_id,omitempty"`
		CallerType            CallerType    `json:"caller_type"`
		InterruptingEventID   ElementID     `json:"interrupting_event_id,omitempty"`
		ErrorCode             string        `json:"error_code,omitempty"`
		StringIndex           [5]string     `json:"string_index"`
		Version               int64         `json:"version"`
	}

	// Token marks one active execution branch of a process instance
	Token struct {
		ID                TokenID   `json:"id"`
		ProcessInstanceID ProcessID `json:"process_instance_id"`
		ParentID          TokenID   `json:"parent_id,omitempty"`
	}

	// PendingActivityMapping links a ready human task to one actor or to one
	// user. Exactly one of ActorID and UserID is set
	PendingActivityMapping struct {
		ID         MappingID `json:"id"`
		ActivityID NodeID    `json:"activity_id"`
		ActorID    ActorID   `json:"actor_id,omitempty"`
		UserID     UserID    `json:"user_id,omitempty"`
	}

	// TaskRef is a task-list entry returned by pending-task queries
	TaskRef struct {
		ReachedStateDate    time.Time    `json:"reached_state_date"`
		ID                  NodeID       `json:"id"`
		ProcessInstanceID   ProcessID    `json:"process_instance_id"`
		ProcessDefinitionID DefinitionID `json:"process_definition_id"`
		DefinitionID        ElementID    `json:"definition_id"`
		Name                string       `json:"name,omitempty"`
	}
)

// Normalize derives the Terminal and Stable flags from State and clears the
// token count of terminal instances
func (n *FlowNodeInstance) Normalize() *FlowNodeInstance {
	n.Terminal = n.State.IsFinal()
	n.Stable = n.State.IsStable()
	if n.Terminal {
		n.TokenCount = 0
	}
	return n
}

// IsMultiInstanceChild reports whether the instance is one of the children
// fanned out by a multi-instance root
func (n *FlowNodeInstance) IsMultiInstanceChild() bool {
	return n.ParentContainerType == ContainerFlowNode
}

// IsRoot reports whether the process was started directly rather than by a
// call activity or sub-process
func (p *ProcessInstance) IsRoot() bool {
	return p.CallerID == ""
}
