package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kode4food/flownode/internal/engine/loop"
	"github.com/kode4food/flownode/internal/engine/scheduler"
	"github.com/kode4food/flownode/internal/expr"
	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/pkg/api"
	"github.com/kode4food/flownode/pkg/log"
)

// nodeTx carries one store transaction through a step. Processes are cached
// and written once when the step finishes; flow-node instances are written
// as they change so that scans within the step observe them
type nodeTx struct {
	*Engine
	ctx       context.Context
	tx        store.Tx
	now       time.Time
	procs     map[api.ProcessID]*api.ProcessInstance
	dirty     []api.ProcessID
	nodes     map[api.NodeID]*api.FlowNodeInstance
	followUps []*api.Step
	onSuccess []func()
}

// update runs fn in a store transaction and returns the follow-up steps it
// produced. Success hooks run only after the commit
func (e *Engine) update(
	ctx context.Context, fn func(*nodeTx) error,
) ([]*api.Step, error) {
	var res *nodeTx
	err := e.store.Update(ctx, func(tx store.Tx) error {
		ntx := &nodeTx{
			Engine: e,
			ctx:    ctx,
			tx:     tx,
			now:    e.clock(),
			procs:  map[api.ProcessID]*api.ProcessInstance{},
			nodes:  map[api.NodeID]*api.FlowNodeInstance{},
		}
		if err := fn(ntx); err != nil {
			return err
		}
		if err := ntx.flush(); err != nil {
			return err
		}
		res = ntx
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, fn := range res.onSuccess {
		fn()
	}
	return res.followUps, nil
}

// view runs fn in a read-only transaction
func (e *Engine) view(ctx context.Context, fn func(*nodeTx) error) error {
	return e.store.View(ctx, func(tx store.Tx) error {
		return fn(&nodeTx{
			Engine: e,
			ctx:    ctx,
			tx:     tx,
			now:    e.clock(),
			procs:  map[api.ProcessID]*api.ProcessInstance{},
			nodes:  map[api.NodeID]*api.FlowNodeInstance{},
		})
	})
}

func (tx *nodeTx) OnSuccess(fn func()) {
	tx.onSuccess = append(tx.onSuccess, fn)
}

func (tx *nodeTx) enqueue(nid api.NodeID, trig *api.Trigger) {
	tx.followUps = append(tx.followUps, &api.Step{NodeID: nid, Trigger: trig})
}

func (tx *nodeTx) flush() error {
	for _, pid := range tx.dirty {
		p := tx.procs[pid]
		p.Version++
		p.LastUpdateDate = tx.now
		if err := store.PutJSON(tx.tx, processKey(pid), p); err != nil {
			return err
		}
		stopping := !p.State.IsFinal() && !p.StateCategory.IsNormal()
		if err := performIndexes(tx.tx,
			index{terminatingKey(pid), []byte(pid), stopping},
		); err != nil {
			return err
		}
	}
	return nil
}

func (tx *nodeTx) getProcess(pid api.ProcessID) (*api.ProcessInstance, error) {
	if p, ok := tx.procs[pid]; ok {
		return p, nil
	}
	p, err := store.GetJSON[api.ProcessInstance](tx.tx, processKey(pid))
	if store.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, pid)
	}
	if err != nil {
		return nil, err
	}
	tx.procs[pid] = p
	return p, nil
}

// touchProcess marks a process to be rewritten when the step commits. Any
// two steps that both touch a process conflict with each other
func (tx *nodeTx) touchProcess(p *api.ProcessInstance) {
	tx.procs[p.ID] = p
	if !slices.Contains(tx.dirty, p.ID) {
		tx.dirty = append(tx.dirty, p.ID)
	}
}

func (tx *nodeTx) getNode(nid api.NodeID) (*api.FlowNodeInstance, error) {
	if n, ok := tx.nodes[nid]; ok {
		return n, nil
	}
	pid, err := tx.tx.Get(nodeIndexKey(nid))
	if store.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nid)
	}
	if err != nil {
		return nil, err
	}
	n, err := store.GetJSON[api.FlowNodeInstance](
		tx.tx, nodeKey(api.ProcessID(pid), nid),
	)
	if store.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nid)
	}
	if err != nil {
		return nil, err
	}
	tx.nodes[nid] = n
	return n, nil
}

// processNodes returns every flow-node instance of a process, ordered by ID
func (tx *nodeTx) processNodes(
	pid api.ProcessID,
) ([]*api.FlowNodeInstance, error) {
	all, err := store.ScanJSON[api.FlowNodeInstance](tx.tx, nodeKeys(pid))
	if err != nil {
		return nil, err
	}
	for i, n := range all {
		if cached, ok := tx.nodes[n.ID]; ok {
			all[i] = cached
			continue
		}
		tx.nodes[n.ID] = n
	}
	return all, nil
}

// children returns the multi-instance children of a root, in instance order
func (tx *nodeTx) children(
	root *api.FlowNodeInstance,
) ([]*api.FlowNodeInstance, error) {
	all, err := tx.processNodes(root.ParentProcessInstanceID)
	if err != nil {
		return nil, err
	}
	var res []*api.FlowNodeInstance
	for _, n := range all {
		if n.IsMultiInstanceChild() && n.ParentContainerID == string(root.ID) {
			res = append(res, n)
		}
	}
	slices.SortFunc(res, func(a, b *api.FlowNodeInstance) int {
		return a.LoopInstance - b.LoopInstance
	})
	return res, nil
}

// saveNode writes an instance and keeps its secondary indexes in step
func (tx *nodeTx) saveNode(n *api.FlowNodeInstance) error {
	n.Normalize()
	n.LastUpdateDate = tx.now
	tx.nodes[n.ID] = n
	if err := store.PutJSON(
		tx.tx, nodeKey(n.ParentProcessInstanceID, n.ID), n,
	); err != nil {
		return err
	}
	pid := []byte(n.ParentProcessInstanceID)
	return performIndexes(tx.tx,
		index{unstableKey(n.ID), pid, !n.Stable},
		index{timerKey(n.ID), pid, !n.Terminal && len(n.Timers) > 0},
		index{containerKey(n.ID), pid, isWaitingContainer(n)},
	)
}

func (tx *nodeTx) newNode(
	p *api.ProcessInstance, def *api.FlowNodeDefinition, typ api.FlowNodeType,
) *api.FlowNodeInstance {
	return &api.FlowNodeInstance{
		ID:                      api.NodeID(uuid.Must(uuid.NewV7()).String()),
		Type:                    typ,
		State:                   api.StateInitializing,
		StateCategory:           api.CategoryNormal,
		ParentContainerID:       string(p.ID),
		ParentContainerType:     api.ContainerProcess,
		RootContainerID:         p.RootProcessInstanceID,
		ParentProcessInstanceID: p.ID,
		RootProcessInstanceID:   p.RootProcessInstanceID,
		ProcessDefinitionID:     p.ProcessDefinitionID,
		FlowNodeDefinitionID:    def.ID,
		ReachedStateDate:        tx.now,
	}
}

// createNode stores a new instance in initializing and queues its start
func (tx *nodeTx) createNode(n *api.FlowNodeInstance) error {
	if err := tx.tx.Put(
		nodeIndexKey(n.ID), []byte(n.ParentProcessInstanceID),
	); err != nil {
		return err
	}
	if err := tx.saveNode(n); err != nil {
		return err
	}
	if n.State == api.StateInitializing {
		tx.enqueue(n.ID, api.NewTrigger(api.TriggerStart))
	}
	ev := tx.nodeEvent(api.EventNodeStateChanged, n)
	tx.OnSuccess(func() {
		tx.metrics.NodeTransition("", n.State)
		tx.hub.Publish(ev)
	})
	return nil
}

// setState moves an instance to a new state, validating the move against
// the transition table
func (tx *nodeTx) setState(
	n *api.FlowNodeInstance, to api.FlowNodeState,
) error {
	from := n.State
	if !nodeTransitions.CanTransition(from, to) {
		return fmt.Errorf("%w: %s %s -> %s",
			ErrInvalidTransition, n.Type, from, to)
	}
	n.PreviousState = from
	n.State = to
	n.ReachedStateDate = tx.now
	final := to.IsFinal()
	if final {
		n.Timers = nil
	}
	if err := tx.saveNode(n); err != nil {
		return err
	}

	changed := tx.nodeEvent(api.EventNodeStateChanged, n)
	terminal := tx.nodeEvent(api.EventNodeTerminal, n)
	tx.OnSuccess(func() {
		tx.metrics.NodeTransition(from, to)
		tx.hub.Publish(changed)
		if final {
			tx.scheduler.CancelPrefix(tx.Engine.ctx, []string{
				string(terminal.ProcessID), string(terminal.NodeID),
			})
			tx.hub.Publish(terminal)
		}
		slog.Debug("Flow-node state changed",
			log.ProcessID(changed.ProcessID),
			log.NodeID(changed.NodeID),
			slog.String("from", string(from)),
			log.State(to))
	})
	return nil
}

func (tx *nodeTx) nodeEvent(
	typ api.EventType, n *api.FlowNodeInstance,
) *api.Event {
	return &api.Event{
		Timestamp:    tx.now,
		Type:         typ,
		ProcessID:    n.ParentProcessInstanceID,
		RootID:       n.RootProcessInstanceID,
		NodeID:       n.ID,
		DefinitionID: n.FlowNodeDefinitionID,
		NodeState:    n.State,
		Error:        n.Error,
	}
}

// armTimer records a timer on the instance and schedules it once the step
// commits
func (tx *nodeTx) armTimer(
	n *api.FlowNodeInstance, el api.ElementID, due time.Time,
) {
	if n.Timers == nil {
		n.Timers = map[api.ElementID]time.Time{}
	}
	n.Timers[el] = due
	pid, nid := n.ParentProcessInstanceID, n.ID
	tx.OnSuccess(func() {
		tx.Engine.scheduleTimer(pid, nid, el, due)
	})
}

func (tx *nodeTx) disarmTimer(n *api.FlowNodeInstance, el api.ElementID) {
	if _, ok := n.Timers[el]; !ok {
		return
	}
	delete(n.Timers, el)
	key := scheduler.Key(string(n.ParentProcessInstanceID), string(n.ID),
		string(el))
	tx.OnSuccess(func() {
		tx.scheduler.Cancel(tx.Engine.ctx, key)
	})
}

func (tx *nodeTx) definition(
	n *api.FlowNodeInstance,
) (*api.FlowNodeDefinition, error) {
	return tx.defs.GetFlowNode(n.ProcessDefinitionID, n.FlowNodeDefinitionID)
}

// scope builds the variables an expression evaluated for n can see: the
// process variables, overlaid with the instance's local data and counters
func (tx *nodeTx) scope(
	p *api.ProcessInstance, n *api.FlowNodeInstance,
) expr.Scope {
	res := expr.Scope{}
	maps.Copy(res, p.Data)
	if n != nil {
		maps.Copy(res, n.Data)
		res[loop.LoopCounter] = n.LoopCounter
	}
	return res
}

func (tx *nodeTx) evaluate(
	ex *api.Expression, s expr.Scope,
) (any, error) {
	return tx.eval.Evaluate(tx.ctx, ex, s)
}

func (e *Engine) scheduleTimer(
	pid api.ProcessID, nid api.NodeID, el api.ElementID, due time.Time,
) {
	key := scheduler.Key(string(pid), string(nid), string(el))
	e.scheduler.Schedule(e.ctx, key, due, func() error {
		return e.Trigger(e.ctx, nid, &api.Trigger{
			Kind:       api.TriggerTimerFired,
			BoundaryID: el,
		})
	})
}

func isWaitingContainer(n *api.FlowNodeInstance) bool {
	return n.Type.IsContainer() && n.State == api.StateWaiting
}

type index struct {
	key   string
	value []byte
	keep  bool
}

func performIndexes(tx store.Tx, indexes ...index) error {
	for _, i := range indexes {
		var err error
		if i.keep {
			err = tx.Put(i.key, i.value)
		} else {
			err = tx.Delete(i.key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
