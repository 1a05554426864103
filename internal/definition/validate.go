package definition

import (
	"errors"
	"fmt"
	"time"

	"github.com/kode4food/flownode/pkg/api"
)

var ErrInvalidDuration = errors.New("invalid timer duration")

// Validate checks the structural rules the engine relies on. Expressions
// are not compiled here
func Validate(def *api.ProcessDefinition) error {
	if def == nil || def.ID == "" {
		return api.ErrDefinitionIDEmpty
	}
	return validateProcess(def)
}

// ParseDuration reads a timer duration such as "30s" or "1h15m"
func ParseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return d, nil
}

func validateProcess(def *api.ProcessDefinition) error {
	ids := map[api.ElementID]bool{}
	starts := 0
	for _, n := range def.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w in %s", api.ErrElementIDEmpty, def.ID)
		}
		if ids[n.ID] {
			return fmt.Errorf("%w: %s", api.ErrDuplicateElement, n.ID)
		}
		ids[n.ID] = true
		for _, b := range n.Boundaries {
			if b.ID == "" || ids[b.ID] {
				return fmt.Errorf("%w: boundary %q", api.ErrDuplicateElement,
					b.ID)
			}
			ids[b.ID] = true
		}
		if n.Type == api.NodeStartEvent {
			starts++
		}
	}
	switch {
	case starts == 0:
		return fmt.Errorf("%w: %s", api.ErrNoStartEvent, def.ID)
	case starts > 1:
		return fmt.Errorf("%w: %s", api.ErrMultipleStartEvents, def.ID)
	}

	for _, n := range def.Nodes {
		if err := validateNode(def, n); err != nil {
			return fmt.Errorf("%s: %w", n.ID, err)
		}
	}
	return nil
}

func validateNode(def *api.ProcessDefinition, n *api.FlowNodeDefinition) error {
	if !api.IsValidFlowNodeType(n.Type) {
		return fmt.Errorf("%w: %s", api.ErrInvalidFlowNodeType, n.Type)
	}
	if err := validateTargets(def, n.Outgoing); err != nil {
		return err
	}
	for _, b := range n.Boundaries {
		if err := validateBoundary(def, b); err != nil {
			return err
		}
	}

	switch n.Type {
	case api.NodeCatchEvent:
		if err := validateCatch(n.Event); err != nil {
			return err
		}
	case api.NodeCallActivity:
		if n.CalledProcess == "" {
			return api.ErrMissingCalledProcess
		}
	case api.NodeSubProcess:
		if n.SubProcess == nil {
			return api.ErrMissingSubProcess
		}
		sub := *n.SubProcess
		sub.ID = SubProcessID(def.ID, n.ID)
		if err := validateProcess(&sub); err != nil {
			return err
		}
	}

	if mi := n.MultiInstance; mi != nil {
		hasCard := mi.Cardinality != nil
		hasRef := mi.DataInputRef != ""
		if hasCard == hasRef {
			return api.ErrBadMultiInstance
		}
	}
	return nil
}

func validateTargets(def *api.ProcessDefinition, ts []*api.Transition) error {
	for _, t := range ts {
		if def.GetNode(t.Target) == nil {
			return fmt.Errorf("%w: %s", api.ErrUnknownTarget, t.Target)
		}
	}
	return nil
}

func validateBoundary(def *api.ProcessDefinition, b *api.BoundaryEvent) error {
	switch b.Kind {
	case api.EventTimer:
		if _, err := ParseDuration(b.Duration); err != nil {
			return err
		}
	case api.EventError:
	default:
		return fmt.Errorf("%w: boundary kind %q", api.ErrMissingEvent, b.Kind)
	}
	return validateTargets(def, b.Outgoing)
}

func validateCatch(ev *api.EventDefinition) error {
	if ev == nil {
		return api.ErrMissingEvent
	}
	switch ev.Kind {
	case api.EventTimer:
		_, err := ParseDuration(ev.Duration)
		return err
	case api.EventMessage:
		if ev.MessageName == "" {
			return fmt.Errorf("%w: message name", api.ErrMissingEvent)
		}
		return nil
	default:
		return fmt.Errorf("%w: kind %q", api.ErrMissingEvent, ev.Kind)
	}
}
