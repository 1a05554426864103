// Package events broadcasts engine notifications to any number of
// subscribers
package events

import (
	"slices"
	"sync"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/flownode/pkg/api"
)

type (
	// Hub publishes events to every subscriber. Each subscriber receives
	// all events published after it subscribed
	Hub struct {
		topic  topic.Topic[*api.Event]
		prod   topic.Producer[*api.Event]
		now    func() time.Time
		mu     sync.RWMutex
		closed bool
	}

	// Subscription is a consumer of hub events
	Subscription = topic.Consumer[*api.Event]

	// Filter selects events
	Filter func(*api.Event) bool
)

// NewHub creates a hub
func NewHub() *Hub {
	t := caravan.NewTopic[*api.Event]()
	return &Hub{
		topic: t,
		prod:  t.NewProducer(),
		now:   time.Now,
	}
}

// Publish stamps ev with the current time if it has none and broadcasts it
func (h *Hub) Publish(ev *api.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.closed {
		message.Send(h.prod, ev)
	}
}

// Subscribe returns a new consumer. Callers must Close it when done
func (h *Hub) Subscribe() Subscription {
	return h.topic.NewConsumer()
}

// Close stops publishing. Events published afterwards are discarded
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		h.prod.Close()
	}
}

// All accepts every event
func All(*api.Event) bool {
	return true
}

// ForTypes accepts events of the listed types
func ForTypes(types ...api.EventType) Filter {
	return func(ev *api.Event) bool {
		return slices.Contains(types, ev.Type)
	}
}

// ForProcess accepts events of one process, or of any process under it when
// it is a root process
func ForProcess(id api.ProcessID) Filter {
	return func(ev *api.Event) bool {
		return ev.ProcessID == id || ev.RootID == id
	}
}

// And accepts events accepted by every filter
func And(filters ...Filter) Filter {
	return func(ev *api.Event) bool {
		for _, f := range filters {
			if !f(ev) {
				return false
			}
		}
		return true
	}
}
