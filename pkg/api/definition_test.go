package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/pkg/api"
)

func TestDefinitionLookup(t *testing.T) {
	def := &api.ProcessDefinition{
		ID: "p",
		Nodes: []*api.FlowNodeDefinition{
			{ID: "start", Type: api.NodeStartEvent},
			{
				ID:   "task",
				Type: api.NodeAutomaticTask,
				Boundaries: []*api.BoundaryEvent{
					{ID: "t1", Kind: api.EventTimer, Duration: "1s"},
					{ID: "e1", Kind: api.EventError, ErrorCode: "E1"},
					{ID: "eAny", Kind: api.EventError},
				},
			},
		},
	}

	assert.Equal(t, api.ElementID("start"), def.StartNode().ID)
	task := def.GetNode("task")
	assert.NotNil(t, task)
	assert.Nil(t, def.GetNode("missing"))

	assert.Equal(t, api.ElementID("t1"), task.GetBoundary("t1").ID)
	assert.Equal(t, api.ElementID("e1"), task.ErrorBoundary("E1").ID)
	assert.Equal(t, api.ElementID("eAny"), task.ErrorBoundary("other").ID)
}

func TestIsJoin(t *testing.T) {
	split := &api.FlowNodeDefinition{
		Type: api.NodeParallelGateway, Incoming: []api.ElementID{"a"},
	}
	join := &api.FlowNodeDefinition{
		Type: api.NodeParallelGateway, Incoming: []api.ElementID{"a", "b"},
	}
	assert.False(t, split.IsJoin())
	assert.True(t, join.IsJoin())
}

func TestValidFlowNodeType(t *testing.T) {
	assert.True(t, api.IsValidFlowNodeType(api.NodeHumanTask))
	assert.False(t, api.IsValidFlowNodeType(api.NodeMultiInstance))
	assert.False(t, api.IsValidFlowNodeType("bogus"))
}
