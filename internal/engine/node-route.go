package engine

import (
	"errors"
	"fmt"

	"github.com/kode4food/flownode/internal/engine/token"
	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/pkg/api"
)

// route hands a token to the targets of the given transitions. No targets
// ends the branch, one target inherits the token, and several targets each
// receive a child forked from it
func (tx *nodeTx) route(
	p *api.ProcessInstance, ts []*api.Transition, tok api.TokenID,
) error {
	tx.touchProcess(p)
	if len(ts) == 0 {
		return tx.releaseToken(p.ID, tok)
	}

	if tok == "" {
		t, err := token.NewRoot(tx.tx, p.ID)
		if err != nil {
			return err
		}
		tok = t.ID
	}
	if len(ts) == 1 {
		return tx.arrive(p, ts[0].Target, tok)
	}

	parent, err := token.Get(tx.tx, p.ID, tok)
	if err != nil {
		return err
	}
	kids, err := token.Fork(tx.tx, parent, len(ts))
	if err != nil {
		return err
	}
	for i, t := range ts {
		if err := tx.arrive(p, t.Target, kids[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// arrive creates the instance a token reaches, or adds the token to the
// join instance waiting for it
func (tx *nodeTx) arrive(
	p *api.ProcessInstance, target api.ElementID, tok api.TokenID,
) error {
	def, err := tx.defs.GetFlowNode(p.ProcessDefinitionID, target)
	if err != nil {
		return err
	}
	if def.IsJoin() {
		return tx.arriveAtJoin(p, def, tok)
	}

	typ := def.Type
	if def.MultiInstance != nil {
		typ = api.NodeMultiInstance
	}
	n := tx.newNode(p, def, typ)
	n.TokenID = tok
	n.TokenCount = 1
	return tx.createNode(n)
}

// arriveAtJoin collects tokens at a parallel join. A process has one
// waiting instance per join element. Once every incoming branch has arrived
// the tokens are merged into their shared ancestor, which the instance
// carries on with
func (tx *nodeTx) arriveAtJoin(
	p *api.ProcessInstance, def *api.FlowNodeDefinition, tok api.TokenID,
) error {
	t, err := token.Get(tx.tx, p.ID, tok)
	if err != nil {
		return err
	}

	key := joinKey(p.ID, def.ID)
	var n *api.FlowNodeInstance
	id, err := tx.tx.Get(key)
	switch {
	case err == nil:
		if n, err = tx.getNode(api.NodeID(id)); err != nil {
			return err
		}
	case store.IsNotFound(err):
		n = tx.newNode(p, def, def.Type)
		n.State = api.StateWaiting
		if err := tx.tx.Put(key, []byte(n.ID)); err != nil {
			return err
		}
		if err := tx.createNode(n); err != nil {
			return err
		}
	default:
		return err
	}

	n.JoinedTokens = append(n.JoinedTokens, tok)
	n.TokenCount = len(n.JoinedTokens)
	if t.ParentID != "" && len(n.JoinedTokens) < len(def.Incoming) {
		return tx.saveNode(n)
	}
	if err := tx.tx.Delete(key); err != nil {
		return err
	}
	return tx.mergeJoin(n)
}

// mergeJoin merges the tokens held by a join instance. Tokens that have no
// shared ancestor fail the instance, which keeps holding them
func (tx *nodeTx) mergeJoin(n *api.FlowNodeInstance) error {
	arrived := make([]*api.Token, 0, len(n.JoinedTokens))
	for _, id := range n.JoinedTokens {
		at, err := token.Get(tx.tx, n.ParentProcessInstanceID, id)
		if err != nil {
			return err
		}
		arrived = append(arrived, at)
	}

	merged, err := token.Merge(tx.tx, arrived)
	if errors.Is(err, api.ErrUnmatchedJoin) {
		return tx.failInPlace(n, fmt.Errorf("%w: at %s", err,
			n.FlowNodeDefinitionID))
	}
	if err != nil {
		return err
	}

	n.JoinKey = merged.ID
	n.TokenID = merged.ID
	n.TokenCount = 1
	n.JoinedTokens = nil
	if err := tx.setState(n, api.StateExecuting); err != nil {
		return err
	}
	tx.enqueue(n.ID, api.NewTrigger(api.TriggerExecuteLogic))
	return nil
}

// keepFirstJoined leaves a failed join with the first branch that reached
// it and consumes the others, so that skipping the join continues a single
// branch
func (tx *nodeTx) keepFirstJoined(n *api.FlowNodeInstance) error {
	if len(n.JoinedTokens) == 0 {
		return nil
	}
	for _, id := range n.JoinedTokens[1:] {
		if err := tx.releaseToken(n.ParentProcessInstanceID, id); err != nil {
			return err
		}
	}
	n.TokenID = n.JoinedTokens[0]
	n.TokenCount = 1
	n.JoinedTokens = nil
	return nil
}
