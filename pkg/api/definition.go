package api

import "errors"

type (
	// ProcessDefinition is a read-only process graph supplied by the
	// definition provider
	ProcessDefinition struct {
		ID    DefinitionID          `json:"id" yaml:"id"`
		Name  string                `json:"name,omitempty" yaml:"name,omitempty"`
		Nodes []*FlowNodeDefinition `json:"nodes" yaml:"nodes"`
	}

	// FlowNodeDefinition describes one process element and its outgoing
	// transitions
	FlowNodeDefinition struct {
		ID            ElementID                     `json:"id" yaml:"id"`
		Name          string                        `json:"name,omitempty" yaml:"name,omitempty"`
		Type          FlowNodeType                  `json:"type" yaml:"type"`
		Outgoing      []*Transition                 `json:"outgoing,omitempty" yaml:"outgoing,omitempty"`
		Incoming      []ElementID                   `json:"incoming,omitempty" yaml:"incoming,omitempty"`
		Loop          *LoopCharacteristics          `json:"loop,omitempty" yaml:"loop,omitempty"`
		MultiInstance *MultiInstanceCharacteristics `json:"multi_instance,omitempty" yaml:"multi_instance,omitempty"`
		Actors        []ActorID                     `json:"actors,omitempty" yaml:"actors,omitempty"`
		UserFilter    *Expression                   `json:"user_filter,omitempty" yaml:"user_filter,omitempty"`
		Operations    []*Operation                  `json:"operations,omitempty" yaml:"operations,omitempty"`
		Event         *EventDefinition              `json:"event,omitempty" yaml:"event,omitempty"`
		Boundaries    []*BoundaryEvent              `json:"boundaries,omitempty" yaml:"boundaries,omitempty"`
		CalledProcess DefinitionID                  `json:"called_process,omitempty" yaml:"called_process,omitempty"`
		SubProcess    *ProcessDefinition            `json:"sub_process,omitempty" yaml:"sub_process,omitempty"`
	}

	// Transition is a sequence flow to a target element, optionally guarded
	// by a condition (exclusive gateways only)
	Transition struct {
		ID        ElementID   `json:"id,omitempty" yaml:"id,omitempty"`
		Target    ElementID   `json:"target" yaml:"target"`
		Condition *Expression `json:"condition,omitempty" yaml:"condition,omitempty"`
		Default   bool        `json:"default,omitempty" yaml:"default,omitempty"`
	}

	// LoopCharacteristics drives standard loop re-execution. Condition is a
	// loop-while expression evaluated with loopCounter bound. LoopMax bounds
	// the total number of executions when positive
	LoopCharacteristics struct {
		Condition  *Expression `json:"condition,omitempty" yaml:"condition,omitempty"`
		TestBefore bool        `json:"test_before,omitempty" yaml:"test_before,omitempty"`
		LoopMax    int         `json:"loop_max,omitempty" yaml:"loop_max,omitempty"`
	}

	// MultiInstanceCharacteristics drives multi-instance fan-out
	MultiInstanceCharacteristics struct {
		Sequential          bool        `json:"sequential,omitempty" yaml:"sequential,omitempty"`
		Cardinality         *Expression `json:"cardinality,omitempty" yaml:"cardinality,omitempty"`
		DataInputRef        string      `json:"data_input_ref,omitempty" yaml:"data_input_ref,omitempty"`
		DataInputItemRef    string      `json:"data_input_item_ref,omitempty" yaml:"data_input_item_ref,omitempty"`
		DataOutputRef       string      `json:"data_output_ref,omitempty" yaml:"data_output_ref,omitempty"`
		DataOutputItemRef   string      `json:"data_output_item_ref,omitempty" yaml:"data_output_item_ref,omitempty"`
		CompletionCondition *Expression `json:"completion_condition,omitempty" yaml:"completion_condition,omitempty"`
	}

	// Operation assigns the result of an expression to a process variable
	Operation struct {
		Target     string      `json:"target" yaml:"target"`
		Expression *Expression `json:"expression" yaml:"expression"`
	}

	// EventDefinition configures catch events and error end events
	EventDefinition struct {
		Kind        EventKind `json:"kind" yaml:"kind"`
		Duration    string    `json:"duration,omitempty" yaml:"duration,omitempty"`
		MessageName string    `json:"message_name,omitempty" yaml:"message_name,omitempty"`
		ErrorCode   string    `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	}

	// BoundaryEvent is attached to an activity and diverts its token when
	// its timer fires or a matching error is raised
	BoundaryEvent struct {
		ID           ElementID     `json:"id" yaml:"id"`
		Kind         EventKind     `json:"kind" yaml:"kind"`
		Duration     string        `json:"duration,omitempty" yaml:"duration,omitempty"`
		ErrorCode    string        `json:"error_code,omitempty" yaml:"error_code,omitempty"`
		Interrupting bool          `json:"interrupting" yaml:"interrupting"`
		Outgoing     []*Transition `json:"outgoing" yaml:"outgoing"`
	}

	// Expression is a script evaluated by the injected evaluator
	Expression struct {
		Language string `json:"language" yaml:"language"`
		Script   string `json:"script" yaml:"script"`
	}

	// EventKind identifies what an event waits for
	EventKind string
)

// ErrorTarget is the operation target that raises a business error. The
// operation's result is the error code matched against error boundaries
const ErrorTarget = "$error"

const (
	EventTimer   EventKind = "timer"
	EventMessage EventKind = "message"
	EventError   EventKind = "error"
)

var (
	ErrDefinitionIDEmpty    = errors.New("definition ID empty")
	ErrElementIDEmpty       = errors.New("element ID empty")
	ErrDuplicateElement     = errors.New("duplicate element ID")
	ErrUnknownTarget        = errors.New("transition targets unknown element")
	ErrInvalidFlowNodeType  = errors.New("invalid flow node type")
	ErrNoStartEvent         = errors.New("process has no start event")
	ErrMultipleStartEvents  = errors.New("process has more than one start event")
	ErrMissingEvent         = errors.New("catch event requires an event definition")
	ErrMissingCalledProcess = errors.New("call activity requires a called process")
	ErrMissingSubProcess    = errors.New("sub-process requires an embedded process")
	ErrBadMultiInstance     = errors.New(
		"multi-instance requires exactly one of cardinality and data input ref",
	)
)

// GetNode returns the element with the given ID, or nil
func (d *ProcessDefinition) GetNode(id ElementID) *FlowNodeDefinition {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// StartNode returns the single start event of the definition
func (d *ProcessDefinition) StartNode() *FlowNodeDefinition {
	for _, n := range d.Nodes {
		if n.Type == NodeStartEvent {
			return n
		}
	}
	return nil
}

// GetBoundary returns the boundary event with the given ID, or nil
func (n *FlowNodeDefinition) GetBoundary(id ElementID) *BoundaryEvent {
	for _, b := range n.Boundaries {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// ErrorBoundary returns the first error boundary catching code, where an
// empty boundary error code catches every error
func (n *FlowNodeDefinition) ErrorBoundary(code string) *BoundaryEvent {
	for _, b := range n.Boundaries {
		if b.Kind != EventError {
			continue
		}
		if b.ErrorCode == "" || b.ErrorCode == code {
			return b
		}
	}
	return nil
}

// IsJoin reports whether the element merges several incoming branches
func (n *FlowNodeDefinition) IsJoin() bool {
	return n.Type == NodeParallelGateway && len(n.Incoming) > 1
}

// IsValidFlowNodeType reports whether t names a type a definition may use
func IsValidFlowNodeType(t FlowNodeType) bool {
	switch t {
	case NodeStartEvent, NodeEndEvent, NodeTerminateEndEvent,
		NodeErrorEndEvent, NodeAutomaticTask, NodeHumanTask,
		NodeParallelGateway, NodeExclusiveGateway, NodeCatchEvent,
		NodeSubProcess, NodeCallActivity:
		return true
	default:
		return false
	}
}
