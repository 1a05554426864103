package helpers

import (
	"github.com/kode4food/flownode/internal/expr"
	"github.com/kode4food/flownode/pkg/api"
)

// Process builds a process definition from its elements
func Process(
	id api.DefinitionID, nodes ...*api.FlowNodeDefinition,
) *api.ProcessDefinition {
	return &api.ProcessDefinition{ID: id, Nodes: nodes}
}

// Lua returns a Lua expression
func Lua(script string) *api.Expression {
	return &api.Expression{Language: expr.LangLua, Script: script}
}

// To returns unconditional transitions to each target
func To(targets ...api.ElementID) []*api.Transition {
	res := make([]*api.Transition, len(targets))
	for i, t := range targets {
		res[i] = &api.Transition{Target: t}
	}
	return res
}

// When returns a transition taken when the Lua condition holds
func When(target api.ElementID, cond string) *api.Transition {
	return &api.Transition{Target: target, Condition: Lua(cond)}
}

// Otherwise returns the default transition of an exclusive gateway
func Otherwise(target api.ElementID) *api.Transition {
	return &api.Transition{Target: target, Default: true}
}

// Op returns an operation assigning a Lua expression to target
func Op(target, script string) *api.Operation {
	return &api.Operation{Target: target, Expression: Lua(script)}
}

func node(
	id api.ElementID, typ api.FlowNodeType, next []api.ElementID,
) *api.FlowNodeDefinition {
	return &api.FlowNodeDefinition{ID: id, Type: typ, Outgoing: To(next...)}
}

// Start returns a start event
func Start(id api.ElementID, next ...api.ElementID) *api.FlowNodeDefinition {
	return node(id, api.NodeStartEvent, next)
}

// End returns a plain end event
func End(id api.ElementID) *api.FlowNodeDefinition {
	return node(id, api.NodeEndEvent, nil)
}

// TerminateEnd returns a terminate end event
func TerminateEnd(id api.ElementID) *api.FlowNodeDefinition {
	return node(id, api.NodeTerminateEndEvent, nil)
}

// ErrorEnd returns an error end event raising code
func ErrorEnd(id api.ElementID, code string) *api.FlowNodeDefinition {
	n := node(id, api.NodeErrorEndEvent, nil)
	n.Event = &api.EventDefinition{Kind: api.EventError, ErrorCode: code}
	return n
}

// Task returns an automatic task running ops
func Task(
	id api.ElementID, ops []*api.Operation, next ...api.ElementID,
) *api.FlowNodeDefinition {
	n := node(id, api.NodeAutomaticTask, next)
	n.Operations = ops
	return n
}

// HumanTask returns a human task claimable by the given actors
func HumanTask(
	id api.ElementID, actors []api.ActorID, next ...api.ElementID,
) *api.FlowNodeDefinition {
	n := node(id, api.NodeHumanTask, next)
	n.Actors = actors
	return n
}

// Parallel returns a parallel gateway
func Parallel(
	id api.ElementID, next ...api.ElementID,
) *api.FlowNodeDefinition {
	return node(id, api.NodeParallelGateway, next)
}

// Exclusive returns an exclusive gateway with the given transitions
func Exclusive(
	id api.ElementID, ts ...*api.Transition,
) *api.FlowNodeDefinition {
	return &api.FlowNodeDefinition{
		ID:       id,
		Type:     api.NodeExclusiveGateway,
		Outgoing: ts,
	}
}

// TimerCatch returns an intermediate timer catch event
func TimerCatch(
	id api.ElementID, duration string, next ...api.ElementID,
) *api.FlowNodeDefinition {
	n := node(id, api.NodeCatchEvent, next)
	n.Event = &api.EventDefinition{Kind: api.EventTimer, Duration: duration}
	return n
}

// MessageCatch returns an intermediate message catch event
func MessageCatch(
	id api.ElementID, name string, next ...api.ElementID,
) *api.FlowNodeDefinition {
	n := node(id, api.NodeCatchEvent, next)
	n.Event = &api.EventDefinition{Kind: api.EventMessage, MessageName: name}
	return n
}

// CallActivity returns a call activity starting the called process
func CallActivity(
	id api.ElementID, called api.DefinitionID, next ...api.ElementID,
) *api.FlowNodeDefinition {
	n := node(id, api.NodeCallActivity, next)
	n.CalledProcess = called
	return n
}

// SubProcess returns an embedded sub-process
func SubProcess(
	id api.ElementID, sub *api.ProcessDefinition, next ...api.ElementID,
) *api.FlowNodeDefinition {
	n := node(id, api.NodeSubProcess, next)
	n.SubProcess = sub
	return n
}

// TimerBoundary returns a timer boundary event
func TimerBoundary(
	id api.ElementID, duration string, interrupting bool,
	next ...api.ElementID,
) *api.BoundaryEvent {
	return &api.BoundaryEvent{
		ID:           id,
		Kind:         api.EventTimer,
		Duration:     duration,
		Interrupting: interrupting,
		Outgoing:     To(next...),
	}
}

// ErrorBoundary returns an interrupting error boundary catching code
func ErrorBoundary(
	id api.ElementID, code string, next ...api.ElementID,
) *api.BoundaryEvent {
	return &api.BoundaryEvent{
		ID:           id,
		Kind:         api.EventError,
		ErrorCode:    code,
		Interrupting: true,
		Outgoing:     To(next...),
	}
}
