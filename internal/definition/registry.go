// Package definition provides the read-only definition graph the engine
// executes. Definitions are validated and indexed when registered, and never
// change afterwards
package definition

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kode4food/flownode/pkg/api"
)

type (
	// Provider gives read-only access to process definitions
	Provider interface {
		GetProcess(id api.DefinitionID) (*api.ProcessDefinition, error)
		GetFlowNode(
			id api.DefinitionID, node api.ElementID,
		) (*api.FlowNodeDefinition, error)
	}

	// Registry is an in-memory Provider
	Registry struct {
		defs map[api.DefinitionID]*api.ProcessDefinition
		mu   sync.RWMutex
	}
)

const subProcessSeparator = "/"

var (
	ErrDefinitionNotFound = errors.New("process definition not found")
	ErrFlowNodeNotFound   = errors.New("flow node definition not found")
)

// NewRegistry creates an empty definition registry
func NewRegistry() *Registry {
	return &Registry{
		defs: map[api.DefinitionID]*api.ProcessDefinition{},
	}
}

// Register validates a definition and makes it available. Embedded
// sub-processes are registered under SubProcessID. The registry takes
// ownership of def, filling in the Incoming lists of its nodes
func (r *Registry) Register(def *api.ProcessDefinition) error {
	if err := Validate(def); err != nil {
		return err
	}
	all := map[api.DefinitionID]*api.ProcessDefinition{}
	collect(def.ID, def, all)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range all {
		r.defs[id] = d
	}
	return nil
}

// GetProcess returns the definition with the given ID
func (r *Registry) GetProcess(
	id api.DefinitionID,
) (*api.ProcessDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	return def, nil
}

// GetFlowNode returns one element of a definition
func (r *Registry) GetFlowNode(
	id api.DefinitionID, node api.ElementID,
) (*api.FlowNodeDefinition, error) {
	def, err := r.GetProcess(id)
	if err != nil {
		return nil, err
	}
	n := def.GetNode(node)
	if n == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrFlowNodeNotFound, node, id)
	}
	return n, nil
}

// List returns the top-level definitions ordered by ID
func (r *Registry) List() []*api.ProcessDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*api.ProcessDefinition, 0, len(r.defs))
	for id, d := range r.defs {
		if !strings.Contains(string(id), subProcessSeparator) {
			res = append(res, d)
		}
	}
	slices.SortFunc(res, func(a, b *api.ProcessDefinition) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return res
}

// SubProcessID names the definition registered for an embedded
// sub-process element
func SubProcessID(parent api.DefinitionID, el api.ElementID) api.DefinitionID {
	return api.DefinitionID(string(parent) + subProcessSeparator + string(el))
}

func collect(
	id api.DefinitionID, def *api.ProcessDefinition,
	into map[api.DefinitionID]*api.ProcessDefinition,
) {
	def.ID = id
	linkIncoming(def)
	into[id] = def
	for _, n := range def.Nodes {
		if n.Type == api.NodeSubProcess && n.SubProcess != nil {
			collect(SubProcessID(id, n.ID), n.SubProcess, into)
		}
	}
}

func linkIncoming(def *api.ProcessDefinition) {
	for _, n := range def.Nodes {
		n.Incoming = nil
	}
	link := func(from api.ElementID, ts []*api.Transition) {
		for _, t := range ts {
			target := def.GetNode(t.Target)
			if !slices.Contains(target.Incoming, from) {
				target.Incoming = append(target.Incoming, from)
			}
		}
	}
	for _, n := range def.Nodes {
		link(n.ID, n.Outgoing)
		for _, b := range n.Boundaries {
			link(b.ID, b.Outgoing)
		}
	}
}
