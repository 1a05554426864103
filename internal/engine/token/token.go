// Package token tracks the execution branches of a process instance.
//
// Tokens form a tree per process. A fork gives a token children, a join
// deletes a complete set of siblings and hands back their parent, and an end
// event consumes a leaf. The leaves are the active branches
package token

import (
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/pkg/api"
)

const keyPrefix = "token"

// NewRoot creates the root token of a process
func NewRoot(tx store.Tx, pid api.ProcessID) (*api.Token, error) {
	t := &api.Token{ID: newID(), ProcessInstanceID: pid}
	return t, put(tx, t)
}

// Get loads one token
func Get(tx store.Tx, pid api.ProcessID, id api.TokenID) (*api.Token, error) {
	return store.GetJSON[api.Token](tx, key(pid, id))
}

// Root returns the root token of a process, or store.ErrNotFound once every
// branch has been consumed
func Root(tx store.Tx, pid api.ProcessID) (*api.Token, error) {
	all, err := List(tx, pid)
	if err != nil {
		return nil, err
	}
	for _, t := range all {
		if t.ParentID == "" {
			return t, nil
		}
	}
	return nil, store.ErrNotFound
}

// List returns every token of a process
func List(tx store.Tx, pid api.ProcessID) ([]*api.Token, error) {
	return store.ScanJSON[api.Token](tx, store.Prefix(keyPrefix, string(pid)))
}

// Fork creates n children of parent, one per outgoing branch, in order
func Fork(tx store.Tx, parent *api.Token, n int) ([]*api.Token, error) {
	res := make([]*api.Token, n)
	for i := range n {
		t := &api.Token{
			ID:                newID(),
			ProcessInstanceID: parent.ProcessInstanceID,
			ParentID:          parent.ID,
		}
		if err := put(tx, t); err != nil {
			return nil, err
		}
		res[i] = t
	}
	return res, nil
}

// Join merges a complete set of sibling tokens back into their parent. The
// tokens must share one parent and must be all of that parent's children;
// anything else is api.ErrUnmatchedJoin
func Join(tx store.Tx, tokens []*api.Token) (*api.Token, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no tokens", api.ErrUnmatchedJoin)
	}
	first := tokens[0]
	pid := first.ProcessInstanceID
	for _, t := range tokens {
		if t.ParentID == "" || t.ParentID != first.ParentID {
			return nil, fmt.Errorf("%w: %s and %s",
				api.ErrUnmatchedJoin, first.ID, t.ID)
		}
	}

	parent, err := Get(tx, pid, first.ParentID)
	if err != nil {
		return nil, fmt.Errorf("%w: parent %s: %w",
			api.ErrUnmatchedJoin, first.ParentID, err)
	}
	siblings, err := Children(tx, pid, parent.ID)
	if err != nil {
		return nil, err
	}
	if len(siblings) != len(tokens) {
		return nil, fmt.Errorf("%w: %d of %d branches arrived",
			api.ErrUnmatchedJoin, len(tokens), len(siblings))
	}
	for _, s := range siblings {
		if !slices.ContainsFunc(tokens, func(t *api.Token) bool {
			return t.ID == s.ID
		}) {
			return nil, fmt.Errorf("%w: branch %s left over",
				api.ErrUnmatchedJoin, s.ID)
		}
	}

	for _, t := range tokens {
		if err := tx.Delete(key(pid, t.ID)); err != nil {
			return nil, err
		}
	}
	return parent, nil
}

// Merge joins branches that may have been forked at different depths. Any
// parent whose children have all arrived replaces them, and the folding
// repeats until one token, the branches' shared ancestor, remains. When the
// branches cannot be folded that far the result is api.ErrUnmatchedJoin
// and no token is removed
func Merge(tx store.Tx, tokens []*api.Token) (*api.Token, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no tokens", api.ErrUnmatchedJoin)
	}
	pid := tokens[0].ProcessInstanceID
	all, err := List(tx, pid)
	if err != nil {
		return nil, err
	}
	byID := map[api.TokenID]*api.Token{}
	kids := map[api.TokenID][]api.TokenID{}
	for _, t := range all {
		byID[t.ID] = t
		if t.ParentID != "" {
			kids[t.ParentID] = append(kids[t.ParentID], t.ID)
		}
	}

	cur := map[api.TokenID]*api.Token{}
	for _, t := range tokens {
		if _, ok := byID[t.ID]; !ok {
			return nil, fmt.Errorf("%w: branch %s is gone",
				api.ErrUnmatchedJoin, t.ID)
		}
		cur[t.ID] = t
	}

	var folded []api.TokenID
	for len(cur) > 1 {
		parents := map[api.TokenID]bool{}
		for _, t := range cur {
			if t.ParentID != "" {
				parents[t.ParentID] = true
			}
		}
		progress := false
		for _, id := range slices.Sorted(maps.Keys(parents)) {
			parent, ok := byID[id]
			if !ok || !containsAll(cur, kids[id]) {
				continue
			}
			for _, kid := range kids[id] {
				delete(cur, kid)
				folded = append(folded, kid)
			}
			cur[id] = parent
			progress = true
		}
		if !progress {
			return nil, fmt.Errorf("%w: %d branches left over",
				api.ErrUnmatchedJoin, len(cur))
		}
	}

	for _, id := range folded {
		if err := tx.Delete(key(pid, id)); err != nil {
			return nil, err
		}
	}
	var res *api.Token
	for _, t := range cur {
		res = t
	}
	return res, nil
}

func containsAll(set map[api.TokenID]*api.Token, ids []api.TokenID) bool {
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return len(ids) > 0
}

// Consume removes a leaf token that reached an end event, along with any
// ancestor left without children
func Consume(tx store.Tx, t *api.Token) error {
	pid := t.ProcessInstanceID
	cur := t
	for {
		if err := tx.Delete(key(pid, cur.ID)); err != nil {
			return err
		}
		if cur.ParentID == "" {
			return nil
		}
		rest, err := Children(tx, pid, cur.ParentID)
		if err != nil {
			return err
		}
		if len(rest) > 0 {
			return nil
		}
		parent, err := Get(tx, pid, cur.ParentID)
		if store.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		cur = parent
	}
}

// Children returns the direct children of a token
func Children(
	tx store.Tx, pid api.ProcessID, parent api.TokenID,
) ([]*api.Token, error) {
	all, err := List(tx, pid)
	if err != nil {
		return nil, err
	}
	var res []*api.Token
	for _, t := range all {
		if t.ParentID == parent {
			res = append(res, t)
		}
	}
	return res, nil
}

// ActiveBranchCount returns the number of leaf tokens of a process
func ActiveBranchCount(tx store.Tx, pid api.ProcessID) (int, error) {
	all, err := List(tx, pid)
	if err != nil {
		return 0, err
	}
	parents := map[api.TokenID]bool{}
	for _, t := range all {
		if t.ParentID != "" {
			parents[t.ParentID] = true
		}
	}
	count := 0
	for _, t := range all {
		if !parents[t.ID] {
			count++
		}
	}
	return count, nil
}

// DeleteAll removes every token of a process
func DeleteAll(tx store.Tx, pid api.ProcessID) error {
	_, err := store.DeletePrefix(tx, store.Prefix(keyPrefix, string(pid)))
	return err
}

func put(tx store.Tx, t *api.Token) error {
	return store.PutJSON(tx, key(t.ProcessInstanceID, t.ID), t)
}

func key(pid api.ProcessID, id api.TokenID) string {
	return store.Key(keyPrefix, string(pid), string(id))
}

func newID() api.TokenID {
	return api.TokenID(uuid.NewString())
}
