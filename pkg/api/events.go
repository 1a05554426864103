package api

import "time"

type (
	// EventType names a notification published by the engine
	EventType string

	// Event is a notification delivered to archival and streaming
	// collaborators once the change it describes has committed
	Event struct {
		Timestamp    time.Time     `json:"timestamp"`
		Type         EventType     `json:"type"`
		ProcessID    ProcessID     `json:"process_id"`
		RootID       ProcessID     `json:"root_id"`
		NodeID       NodeID        `json:"node_id,omitempty"`
		DefinitionID ElementID     `json:"definition_id,omitempty"`
		NodeState    FlowNodeState `json:"node_state,omitempty"`
		ProcessState ProcessState  `json:"process_state,omitempty"`
		Error        string        `json:"error,omitempty"`
	}
)

const (
	EventProcessStarted   EventType = "process-started"
	EventProcessFinished  EventType = "process-finished"
	EventNodeStateChanged EventType = "flow-node-state-changed"
	EventNodeTerminal     EventType = "flow-node-terminal"
	EventNodeFailed       EventType = "flow-node-failed"
	EventProcessArchived  EventType = "process-archived"
)
