package assert

import (
	"context"
	"testing"
	"time"

	"github.com/kode4food/flownode/internal/config"
	"github.com/kode4food/flownode/pkg/api"
)

type mockQuerier struct {
	proc  *api.ProcessInstance
	nodes []*api.FlowNodeInstance
}

func (q *mockQuerier) GetProcess(
	context.Context, api.ProcessID,
) (*api.ProcessInstance, error) {
	return q.proc, nil
}

func (q *mockQuerier) ListNodes(
	context.Context, api.ProcessID,
) ([]*api.FlowNodeInstance, error) {
	return q.nodes, nil
}

func TestNew(t *testing.T) {
	w := New(t)
	if w.T != t {
		t.Error("Wrapper.T should be set to the testing.T instance")
	}
	if w.Assertions == nil {
		t.Error("Wrapper.Assertions should be initialized")
	}
}

func TestProcessAndNodeStates(t *testing.T) {
	q := &mockQuerier{
		proc: &api.ProcessInstance{ID: "p", State: api.ProcessCompleted},
		nodes: []*api.FlowNodeInstance{
			{FlowNodeDefinitionID: "task", State: api.StateCompleted},
			{FlowNodeDefinitionID: "end", State: api.StateCompleted},
			{FlowNodeDefinitionID: "task", State: api.StateSkipped},
		},
	}
	w := New(t)
	w.ProcessState(context.Background(), q, "p", api.ProcessCompleted)
	w.NodeStates(context.Background(), q, "p", "task",
		api.StateCompleted, api.StateSkipped)
}

func TestConfigValid(t *testing.T) {
	w := New(t)
	w.ConfigValid(config.NewDefaultConfig())

	cfg := config.NewDefaultConfig()
	cfg.Workers = 0
	w.ConfigInvalid(cfg, "workers")
}

func TestEventually(t *testing.T) {
	w := New(t)
	start := time.Now()
	w.Eventually(func() bool {
		return time.Since(start) > 2*DefaultRetryInterval
	}, time.Second, "condition never held")
}
