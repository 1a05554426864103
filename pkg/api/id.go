package api

type (
	// ProcessID uniquely identifies a process instance
	ProcessID string

	// NodeID uniquely identifies a flow-node instance
	NodeID string

	// DefinitionID identifies a process definition in the definition graph
	DefinitionID string

	// ElementID identifies a flow-node or boundary definition inside a
	// process definition
	ElementID string

	// TokenID uniquely identifies an execution branch token
	TokenID string

	// ActorID identifies an actor (a group of users) eligible for human tasks
	ActorID string

	// UserID identifies a single user
	UserID string

	// MappingID uniquely identifies a pending-task mapping row
	MappingID string
)
