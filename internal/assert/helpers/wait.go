package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/engine"
	"github.com/kode4food/flownode/internal/events"
	"github.com/kode4food/flownode/pkg/api"
)

type (
	// EventWaiter waits for a hub event matching a filter. Create it before
	// triggering the action that publishes the event
	EventWaiter struct {
		consumer events.Subscription
		filter   events.Filter
		desc     string
	}
)

// DefaultWaitTimeout bounds every wait helper
const (
	DefaultWaitTimeout = 5 * time.Second
	pollInterval       = 5 * time.Millisecond
)

// NewEventWaiter subscribes to the hub for events matching filter
func NewEventWaiter(
	hub *events.Hub, filter events.Filter, desc string,
) *EventWaiter {
	return &EventWaiter{
		consumer: hub.Subscribe(),
		filter:   filter,
		desc:     desc,
	}
}

// Wait blocks until a matching event arrives and returns it
func (w *EventWaiter) Wait(t *testing.T, timeout time.Duration) *api.Event {
	t.Helper()
	defer w.consumer.Close()

	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-w.consumer.Receive():
			if !ok {
				t.Fatalf("hub closed waiting for %s", w.desc)
				return nil
			}
			if ev != nil && w.filter(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", w.desc)
			return nil
		}
	}
}

// WaitForProcessFinished subscribes for the end of a process. Create it
// before starting the action that finishes the process
func WaitForProcessFinished(
	hub *events.Hub, pid api.ProcessID,
) *EventWaiter {
	return NewEventWaiter(hub, events.And(
		events.ForTypes(api.EventProcessFinished),
		func(ev *api.Event) bool { return ev.ProcessID == pid },
	), "process "+string(pid)+" to finish")
}

// WaitIdle waits until the engine has no queued, running or retrying
// steps
func WaitIdle(t *testing.T, eng *engine.Engine) {
	t.Helper()
	assert.Eventually(t, eng.Idle, DefaultWaitTimeout, pollInterval,
		"engine never became idle")
}

// WaitForProcessState polls until a process reaches the expected state
func WaitForProcessState(
	t *testing.T, eng *engine.Engine, pid api.ProcessID,
	expected api.ProcessState,
) *api.ProcessInstance {
	t.Helper()
	var res *api.ProcessInstance
	assert.Eventually(t, func() bool {
		p, err := eng.GetProcess(context.Background(), pid)
		if err != nil {
			return false
		}
		res = p
		return p.State == expected
	}, DefaultWaitTimeout, pollInterval,
		"process %s never reached %s", pid, expected)
	return res
}

// WaitForNode polls until an instance of the element reaches the expected
// state and returns it
func WaitForNode(
	t *testing.T, eng *engine.Engine, pid api.ProcessID, el api.ElementID,
	expected api.FlowNodeState,
) *api.FlowNodeInstance {
	t.Helper()
	var res *api.FlowNodeInstance
	assert.Eventually(t, func() bool {
		n := FindNode(eng, pid, el, expected)
		if n == nil {
			return false
		}
		res = n
		return true
	}, DefaultWaitTimeout, pollInterval,
		"%s in %s never reached %s", el, pid, expected)
	return res
}

// FindNode returns the first instance of an element in the given state, or
// nil
func FindNode(
	eng *engine.Engine, pid api.ProcessID, el api.ElementID,
	state api.FlowNodeState,
) *api.FlowNodeInstance {
	nodes, err := eng.ListNodes(context.Background(), pid)
	if err != nil {
		return nil
	}
	for _, n := range nodes {
		if n.FlowNodeDefinitionID == el && n.State == state {
			return n
		}
	}
	return nil
}

// NodesOf returns every instance of an element, in creation order
func NodesOf(
	t *testing.T, eng *engine.Engine, pid api.ProcessID, el api.ElementID,
) []*api.FlowNodeInstance {
	t.Helper()
	nodes, err := eng.ListNodes(context.Background(), pid)
	assert.NoError(t, err)
	var res []*api.FlowNodeInstance
	for _, n := range nodes {
		if n.FlowNodeDefinitionID == el {
			res = append(res, n)
		}
	}
	return res
}
