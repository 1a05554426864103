package assert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/config"
	"github.com/kode4food/flownode/pkg/api"
)

type (
	// Querier reads engine state
	Querier interface {
		GetProcess(
			ctx context.Context, pid api.ProcessID,
		) (*api.ProcessInstance, error)
		ListNodes(
			ctx context.Context, pid api.ProcessID,
		) ([]*api.FlowNodeInstance, error)
	}

	// Wrapper wraps testify assertions with engine-specific helpers
	Wrapper struct {
		*testing.T
		*assert.Assertions
	}
)

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 10 * time.Millisecond

// New creates a test assertion wrapper
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
	}
}

// ProcessState asserts the state of a process
func (w *Wrapper) ProcessState(
	ctx context.Context, q Querier, pid api.ProcessID,
	expected api.ProcessState,
) {
	w.Helper()
	p, err := q.GetProcess(ctx, pid)
	if w.NoError(err) {
		w.Equal(expected, p.State)
	}
}

// NodeStates asserts the states of the instances created for an element,
// in creation order
func (w *Wrapper) NodeStates(
	ctx context.Context, q Querier, pid api.ProcessID, el api.ElementID,
	expected ...api.FlowNodeState,
) {
	w.Helper()
	nodes, err := q.ListNodes(ctx, pid)
	if !w.NoError(err) {
		return
	}
	var states []api.FlowNodeState
	for _, n := range nodes {
		if n.FlowNodeDefinitionID == el {
			states = append(states, n.State)
		}
	}
	w.Equal(expected, states, "states of %s", el)
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= config.MaxTCPPort)
	w.True(cfg.Workers > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if err != nil && contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}
