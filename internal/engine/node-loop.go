package engine

import (
	"github.com/kode4food/flownode/internal/engine/loop"
	"github.com/kode4food/flownode/internal/expr"
	"github.com/kode4food/flownode/pkg/api"
)

// itemsVar holds the collection a multi-instance root iterates over, so
// that sequential children bind the same items the root started with
const itemsVar = "$items"

// expandInstances handles start@initializing for a multi-instance root. A
// parallel root creates every child at once; a sequential root creates the
// first and the rest one at a time as each finishes
func (tx *nodeTx) expandInstances(
	p *api.ProcessInstance, n *api.FlowNodeInstance,
	def *api.FlowNodeDefinition,
) error {
	mi := def.MultiInstance
	count, items, err := tx.loops.Cardinality(tx.ctx, mi, tx.scope(p, n))
	if err != nil {
		return err
	}
	n.NbInstances = count
	if items != nil {
		if n.Data == nil {
			n.Data = api.Args{}
		}
		n.Data[itemsVar] = items
	}
	if err := tx.armBoundaries(n, def); err != nil {
		return err
	}

	create := count
	if mi.Sequential {
		create = 1
	}
	for i := range create {
		if err := tx.createInstance(p, n, def, i, items); err != nil {
			return err
		}
	}
	n.NbActive = create
	return tx.setState(n, api.StateWaiting)
}

func (tx *nodeTx) createInstance(
	p *api.ProcessInstance, root *api.FlowNodeInstance,
	def *api.FlowNodeDefinition, i int, items []any,
) error {
	c := tx.newNode(p, def, def.Type)
	c.ParentContainerID = string(root.ID)
	c.ParentContainerType = api.ContainerFlowNode
	c.LoopInstance = i
	c.LoopCounter = i
	c.Data = tx.loops.BindItem(def.MultiInstance, items, i)
	return tx.createNode(c)
}

// instanceDone handles child-completed@waiting for a multi-instance root.
// The counters are recomputed from the children rather than adjusted, so a
// repeated notification changes nothing and writes nothing
func (tx *nodeTx) instanceDone(
	n *api.FlowNodeInstance, _ *api.Trigger,
) error {
	def, err := tx.definition(n)
	if err != nil {
		return err
	}
	p, err := tx.getProcess(n.ParentProcessInstanceID)
	if err != nil {
		return err
	}
	mi := def.MultiInstance
	kids, err := tx.children(n)
	if err != nil {
		return err
	}

	counts := countInstances(n.NbInstances, kids)
	seen := n.CompletedEarly
	same := n.NbActive == counts.Active &&
		n.NbCompleted == counts.Completed &&
		n.NbTerminated == counts.Terminated
	n.NbActive = counts.Active
	n.NbCompleted = counts.Completed
	n.NbTerminated = counts.Terminated

	if !n.CompletedEarly {
		done, err := tx.loops.IsComplete(tx.ctx, mi, counts, tx.scope(p, n))
		if err != nil {
			return err
		}
		n.CompletedEarly = done
	}
	if n.CompletedEarly {
		for _, c := range kids {
			if !c.Terminal {
				tx.enqueue(c.ID, api.NewTrigger(api.TriggerCancelRequested))
			}
		}
	}

	created := len(kids)
	if mi.Sequential && !n.CompletedEarly && counts.Active == 0 &&
		created < n.NbInstances {
		items, _ := expr.AsArray(n.Data[itemsVar])
		if err := tx.createInstance(p, n, def, created, items); err != nil {
			return err
		}
		n.NbActive = 1
		return tx.saveNode(n)
	}

	if !counts.Done(created, n.CompletedEarly) {
		if same && seen == n.CompletedEarly {
			return nil
		}
		return tx.saveNode(n)
	}

	if out := tx.loops.CollectOutput(mi, kids); len(out) > 0 {
		p.Data = p.Data.Merge(out)
		tx.touchProcess(p)
	}
	delete(n.Data, itemsVar)
	n.Triggered = true
	if err := tx.setState(n, api.StateExecuting); err != nil {
		return err
	}
	tx.enqueue(n.ID, api.NewTrigger(api.TriggerExecuteLogic))
	return nil
}

func countInstances(total int, kids []*api.FlowNodeInstance) loop.Counts {
	res := loop.Counts{Instances: total}
	for _, c := range kids {
		switch c.State {
		case api.StateCompleted, api.StateSkipped:
			res.Completed++
		default:
			if c.Terminal {
				res.Terminated++
			} else {
				res.Active++
			}
		}
	}
	return res
}
