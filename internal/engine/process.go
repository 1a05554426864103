package engine

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kode4food/flownode/internal/engine/token"
	"github.com/kode4food/flownode/pkg/api"
	"github.com/kode4food/flownode/pkg/log"
)

// caller identifies the flow-node instance that started a child process
type caller struct {
	node *api.FlowNodeInstance
	typ  api.CallerType
}

// createProcess stores a new process instance holding a single root token,
// and creates the instance of its start event
func (tx *nodeTx) createProcess(
	defID api.DefinitionID, data api.Args, index [5]string, c *caller,
) (*api.ProcessInstance, error) {
	def, err := tx.defs.GetProcess(defID)
	if err != nil {
		if c != nil {
			return nil, fmt.Errorf("%w: %w", api.ErrModeling, err)
		}
		return nil, err
	}
	start := def.StartNode()
	if start == nil {
		return nil, fmt.Errorf("%w: %s", api.ErrNoStartEvent, defID)
	}

	pid := api.ProcessID(uuid.Must(uuid.NewV7()).String())
	p := &api.ProcessInstance{
		StartDate:             tx.now,
		Data:                  data,
		ID:                    pid,
		ProcessDefinitionID:   defID,
		State:                 api.ProcessStarted,
		StateCategory:         api.CategoryNormal,
		RootProcessInstanceID: pid,
		CallerType:            api.CallerNone,
		StringIndex:           index,
	}
	if c != nil {
		p.RootProcessInstanceID = c.node.RootProcessInstanceID
		p.CallerID = c.node.ID
		p.CallerType = c.typ
	}
	tx.touchProcess(p)
	if err := tx.tx.Put(
		rootKey(p.RootProcessInstanceID, pid), []byte(pid),
	); err != nil {
		return nil, err
	}

	tok, err := token.NewRoot(tx.tx, pid)
	if err != nil {
		return nil, err
	}
	n := tx.newNode(p, start, start.Type)
	n.TokenID = tok.ID
	n.TokenCount = 1
	if err := tx.createNode(n); err != nil {
		return nil, err
	}

	ev := &api.Event{
		Timestamp:    tx.now,
		Type:         api.EventProcessStarted,
		ProcessID:    pid,
		RootID:       p.RootProcessInstanceID,
		ProcessState: p.State,
	}
	tx.OnSuccess(func() {
		tx.metrics.ProcessStarted()
		tx.hub.Publish(ev)
		slog.Info("Process started",
			log.ProcessID(pid),
			log.DefinitionID(defID))
	})
	return p, nil
}

// terminateProcess flags a process as aborting or cancelling and asks each
// of its live instances to stop. Each branch ends as the instance holding
// it stops
func (tx *nodeTx) terminateProcess(
	p *api.ProcessInstance, t termination,
) error {
	if p.State.IsFinal() || !p.StateCategory.IsNormal() {
		return nil
	}
	p.StateCategory = t.category
	tx.touchProcess(p)
	nodes, err := tx.processNodes(p.ID)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if !n.Terminal {
			tx.enqueue(n.ID, api.NewTrigger(t.trigger))
		}
	}
	return nil
}

// abortProcess aborts a process on behalf of a terminate end event (evID)
// or an error end event (code)
func (tx *nodeTx) abortProcess(
	p *api.ProcessInstance, evID api.ElementID, code string,
) error {
	if p.State.IsFinal() || !p.StateCategory.IsNormal() {
		return nil
	}
	p.InterruptingEventID = evID
	p.ErrorCode = code
	return tx.terminateProcess(p, aborting)
}
