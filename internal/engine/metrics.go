package engine

import (
	"maps"
	"sync"

	"github.com/kode4food/flownode/pkg/api"
)

type (
	// Metrics receives engine counters. Every call is made after the
	// transaction that caused it has committed
	Metrics interface {
		NodeTransition(from, to api.FlowNodeState)
		ProcessStarted()
		ProcessFinished(state api.ProcessState)
		StepRetried()
		StepFailed()
		StepDropped()
	}

	// Collector is an in-memory Metrics implementation
	Collector struct {
		transitions map[Transition]int64
		finished    map[api.ProcessState]int64
		started     int64
		retried     int64
		failed      int64
		dropped     int64
		mu          sync.Mutex
	}

	// Transition is a pair of states
	Transition struct {
		From api.FlowNodeState `json:"from"`
		To   api.FlowNodeState `json:"to"`
	}

	// Snapshot is a point-in-time copy of a Collector
	Snapshot struct {
		Transitions      map[string]int64           `json:"transitions"`
		ProcessesEnded   map[api.ProcessState]int64 `json:"processes_finished"`
		TransitionCount  int64                      `json:"transition_count"`
		ProcessesStarted int64                      `json:"processes_started"`
		StepsRetried     int64                      `json:"steps_retried"`
		StepsFailed      int64                      `json:"steps_failed"`
		StepsDropped     int64                      `json:"steps_dropped"`
	}
)

// NewCollector creates an empty Collector
func NewCollector() *Collector {
	return &Collector{
		transitions: map[Transition]int64{},
		finished:    map[api.ProcessState]int64{},
	}
}

func (c *Collector) NodeTransition(from, to api.FlowNodeState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions[Transition{From: from, To: to}]++
}

func (c *Collector) ProcessStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *Collector) ProcessFinished(state api.ProcessState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished[state]++
}

func (c *Collector) StepRetried() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retried++
}

func (c *Collector) StepFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++
}

func (c *Collector) StepDropped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped++
}

// Snapshot copies the current counters
func (c *Collector) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := &Snapshot{
		Transitions:      make(map[string]int64, len(c.transitions)),
		ProcessesEnded:   maps.Clone(c.finished),
		ProcessesStarted: c.started,
		StepsRetried:     c.retried,
		StepsFailed:      c.failed,
		StepsDropped:     c.dropped,
	}
	for t, n := range c.transitions {
		res.Transitions[string(t.From)+"->"+string(t.To)] = n
		res.TransitionCount += n
	}
	return res
}

// TransitionCount returns how many times a node moved from one state to
// another
func (c *Collector) TransitionCount(from, to api.FlowNodeState) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitions[Transition{From: from, To: to}]
}
