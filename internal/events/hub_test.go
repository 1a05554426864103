package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/events"
	"github.com/kode4food/flownode/pkg/api"
)

func receive(t *testing.T, sub events.Subscription) *api.Event {
	t.Helper()
	select {
	case ev := <-sub.Receive():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()

	a := hub.Subscribe()
	defer a.Close()
	b := hub.Subscribe()
	defer b.Close()

	hub.Publish(&api.Event{
		Type:      api.EventProcessStarted,
		ProcessID: "p1",
	})

	for _, sub := range []events.Subscription{a, b} {
		ev := receive(t, sub)
		assert.Equal(t, api.EventProcessStarted, ev.Type)
		assert.Equal(t, api.ProcessID("p1"), ev.ProcessID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestHubKeepsTimestamp(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()
	sub := hub.Subscribe()
	defer sub.Close()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	hub.Publish(&api.Event{Type: api.EventNodeTerminal, Timestamp: at})
	assert.Equal(t, at, receive(t, sub).Timestamp)
}

func TestFilters(t *testing.T) {
	started := &api.Event{
		Type: api.EventProcessStarted, ProcessID: "p1", RootID: "p1",
	}
	child := &api.Event{
		Type: api.EventNodeTerminal, ProcessID: "p2", RootID: "p1",
	}
	other := &api.Event{
		Type: api.EventNodeTerminal, ProcessID: "p3", RootID: "p3",
	}

	assert.True(t, events.All(other))

	terminal := events.ForTypes(api.EventNodeTerminal)
	assert.False(t, terminal(started))
	assert.True(t, terminal(child))

	p1 := events.ForProcess("p1")
	assert.True(t, p1(started))
	assert.True(t, p1(child))
	assert.False(t, p1(other))

	both := events.And(terminal, p1)
	assert.False(t, both(started))
	assert.True(t, both(child))
	assert.False(t, both(other))
}

func TestHubPublishAfterClose(t *testing.T) {
	hub := events.NewHub()
	hub.Close()
	assert.NotPanics(t, func() {
		hub.Publish(&api.Event{Type: api.EventProcessStarted})
		hub.Close()
	})
}
