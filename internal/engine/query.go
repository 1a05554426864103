package engine

import (
	"context"

	"github.com/kode4food/flownode/internal/engine/pending"
	"github.com/kode4food/flownode/internal/engine/token"
	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/pkg/api"
	"github.com/kode4food/flownode/pkg/util/call"
)

// GetProcess returns a process instance
func (e *Engine) GetProcess(
	ctx context.Context, pid api.ProcessID,
) (*api.ProcessInstance, error) {
	var res *api.ProcessInstance
	err := e.view(ctx, func(tx *nodeTx) error {
		var err error
		res, err = tx.getProcess(pid)
		return err
	})
	return res, err
}

// GetNode returns a flow-node instance
func (e *Engine) GetNode(
	ctx context.Context, id api.NodeID,
) (*api.FlowNodeInstance, error) {
	var res *api.FlowNodeInstance
	err := e.view(ctx, func(tx *nodeTx) error {
		var err error
		res, err = tx.getNode(id)
		return err
	})
	return res, err
}

// ListNodes returns every flow-node instance of a process in creation order
func (e *Engine) ListNodes(
	ctx context.Context, pid api.ProcessID,
) ([]*api.FlowNodeInstance, error) {
	var res []*api.FlowNodeInstance
	err := e.view(ctx, func(tx *nodeTx) error {
		if _, err := tx.getProcess(pid); err != nil {
			return err
		}
		var err error
		res, err = tx.processNodes(pid)
		return err
	})
	return res, err
}

// ActiveBranchCount returns the number of branches of a process still
// holding a token
func (e *Engine) ActiveBranchCount(
	ctx context.Context, pid api.ProcessID,
) (int, error) {
	var res int
	err := e.view(ctx, func(tx *nodeTx) error {
		var err error
		res, err = token.ActiveBranchCount(tx.tx, pid)
		return err
	})
	return res, err
}

// DescribeProcess returns a process together with its instances and its
// active branch count
func (e *Engine) DescribeProcess(
	ctx context.Context, pid api.ProcessID,
) (*api.ProcessResponse, error) {
	res := &api.ProcessResponse{}
	err := e.view(ctx, func(tx *nodeTx) error {
		var err error
		if res.Process, err = tx.getProcess(pid); err != nil {
			return err
		}
		if res.Nodes, err = tx.processNodes(pid); err != nil {
			return err
		}
		res.ActiveBranches, err = token.ActiveBranchCount(tx.tx, pid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// PendingTasks returns one page of the ready tasks claimable by a user
// directly or through any of the given actors
func (e *Engine) PendingTasks(
	ctx context.Context, f pending.Filter, p pending.Page,
) ([]*api.TaskRef, error) {
	res := []*api.TaskRef{}
	err := e.view(ctx, func(tx *nodeTx) error {
		ids, err := pending.Query(tx.tx, f, p)
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, err := tx.getNode(id)
			if err != nil {
				return err
			}
			ref := &api.TaskRef{
				ReachedStateDate:    n.ReachedStateDate,
				ID:                  n.ID,
				ProcessInstanceID:   n.ParentProcessInstanceID,
				ProcessDefinitionID: n.ProcessDefinitionID,
				DefinitionID:        n.FlowNodeDefinitionID,
			}
			if def, err := tx.definition(n); err == nil {
				ref.Name = def.Name
			}
			res = append(res, ref)
		}
		return nil
	})
	return res, err
}

// PendingRows returns the pending mapping rows of a task
func (e *Engine) PendingRows(
	ctx context.Context, id api.NodeID,
) ([]*api.PendingActivityMapping, error) {
	var res []*api.PendingActivityMapping
	err := e.view(ctx, func(tx *nodeTx) error {
		var err error
		res, err = pending.Rows(tx.tx, id)
		return err
	})
	return res, err
}

// ProcessTree returns the process instances sharing a root: the root
// itself and every process started by its call activities and
// sub-processes
func (e *Engine) ProcessTree(
	ctx context.Context, root api.ProcessID,
) ([]*api.ProcessResponse, error) {
	var res []*api.ProcessResponse
	err := e.view(ctx, func(tx *nodeTx) error {
		entries, err := tx.tx.Scan(rootKeys(root))
		if err != nil {
			return err
		}
		for _, ent := range entries {
			pid := api.ProcessID(ent.Value)
			p, err := tx.getProcess(pid)
			if err != nil {
				return err
			}
			nodes, err := tx.processNodes(pid)
			if err != nil {
				return err
			}
			res = append(res, &api.ProcessResponse{
				Process: p,
				Nodes:   nodes,
			})
		}
		return nil
	})
	return res, err
}

// PurgeProcess removes a finished process tree from the store
func (e *Engine) PurgeProcess(ctx context.Context, root api.ProcessID) error {
	_, err := e.retryTransient(ctx, func() ([]*api.Step, error) {
		return nil, e.store.Update(ctx, func(tx store.Tx) error {
			entries, err := tx.Scan(rootKeys(root))
			if err != nil {
				return err
			}
			for _, ent := range entries {
				if err := purgeProcess(tx, api.ProcessID(ent.Value)); err != nil {
					return err
				}
				if err := tx.Delete(ent.Key); err != nil {
					return err
				}
			}
			return nil
		})
	})
	return err
}

func purgeProcess(tx store.Tx, pid api.ProcessID) error {
	p, err := store.GetJSON[api.ProcessInstance](tx, processKey(pid))
	if err != nil {
		return err
	}
	if !p.State.IsFinal() {
		return ErrProcessNotFinished
	}
	nodes, err := store.ScanJSON[api.FlowNodeInstance](tx, nodeKeys(pid))
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := call.Perform(
			func() error {
				return performIndexes(tx,
					index{key: nodeIndexKey(n.ID)},
					index{key: unstableKey(n.ID)},
					index{key: timerKey(n.ID)},
					index{key: containerKey(n.ID)},
				)
			},
			call.WithArgs(pending.OnAssigned, tx, n.ID),
		); err != nil {
			return err
		}
	}
	return call.Perform(
		call.WithArgs(deletePrefix, tx, nodeKeys(pid)),
		call.WithArgs(token.DeleteAll, tx, pid),
		call.WithArgs(deletePrefix, tx, store.Prefix(joinPrefix, string(pid))),
		call.WithArg(tx.Delete, processKey(pid)),
	)
}

func deletePrefix(tx store.Tx, prefix string) error {
	_, err := store.DeletePrefix(tx, prefix)
	return err
}
