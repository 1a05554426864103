package api

type (
	// StartProcessRequest contains parameters for starting a process
	StartProcessRequest struct {
		Data         Args         `json:"data,omitempty"`
		DefinitionID DefinitionID `json:"definition_id"`
		Index        [5]string    `json:"index,omitempty"`
	}

	// StartProcessResponse is returned when a process start succeeds
	StartProcessResponse struct {
		ProcessID ProcessID `json:"process_id"`
	}

	// TriggerRequest delivers an external trigger to a flow-node instance
	TriggerRequest struct {
		Trigger
	}

	// AssignRequest changes the assignee of a ready human task. An empty
	// UserID releases the task back to its actors
	AssignRequest struct {
		UserID UserID `json:"user_id"`
	}

	// ExecuteRequest completes a ready human task on behalf of a user
	ExecuteRequest struct {
		Data         Args   `json:"data,omitempty"`
		UserID       UserID `json:"user_id"`
		SubstituteID UserID `json:"substitute_id,omitempty"`
	}

	// MessageRequest delivers a named message to a waiting catch event
	MessageRequest struct {
		Payload Args   `json:"payload,omitempty"`
		Name    string `json:"name"`
	}

	// MessageResponse reports how many catch events received a message
	MessageResponse struct {
		Delivered int `json:"delivered"`
	}

	// ProcessTreeResponse lists a root process and the processes under it
	ProcessTreeResponse struct {
		Processes []*ProcessResponse `json:"processes"`
		Count     int                `json:"count"`
	}

	// SubscribeRequest is sent by websocket clients to narrow the events
	// they receive
	SubscribeRequest struct {
		Type string             `json:"type"`
		Data ClientSubscription `json:"data"`
	}

	// ClientSubscription selects events by process and by type. Empty
	// fields match everything
	ClientSubscription struct {
		ProcessID  ProcessID   `json:"process_id,omitempty"`
		EventTypes []EventType `json:"event_types,omitempty"`
	}

	// SubscribedResult acknowledges a subscription with the current state
	// of the subscribed process, when there is one
	SubscribedResult struct {
		Type    string           `json:"type"`
		Process *ProcessResponse `json:"process,omitempty"`
	}

	// ProcessResponse describes a process and its flow-node instances
	ProcessResponse struct {
		Process        *ProcessInstance    `json:"process"`
		Nodes          []*FlowNodeInstance `json:"nodes"`
		ActiveBranches int                 `json:"active_branches"`
	}

	// TaskListResponse contains one page of pending tasks
	TaskListResponse struct {
		Tasks []*TaskRef `json:"tasks"`
		Count int        `json:"count"`
	}

	// DefinitionsListResponse contains the registered process definitions
	DefinitionsListResponse struct {
		Definitions []*ProcessDefinition `json:"definitions"`
		Count       int                  `json:"count"`
	}

	// RecoveryResponse reports the outcome of a recovery run
	RecoveryResponse struct {
		Scanned   int `json:"scanned"`
		Recovered int `json:"recovered"`
		Skipped   int `json:"skipped"`
		Rearmed   int `json:"rearmed"`
		Rechecked int `json:"rechecked"`
		Resumed   int `json:"resumed"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string `json:"service"`
		Status  string `json:"status"`
	}

	// ErrorResponse is returned for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
)
