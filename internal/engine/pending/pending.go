// Package pending indexes ready human tasks by the actors and users that may
// claim them
package pending

import (
	"slices"

	"github.com/google/uuid"

	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/pkg/api"
)

type (
	// Filter selects tasks claimable by a user directly or through any of
	// the listed actors
	Filter struct {
		UserID   api.UserID    `json:"user_id,omitempty"`
		ActorIDs []api.ActorID `json:"actor_ids,omitempty"`
	}

	// Page bounds a query result. A zero Limit means no limit
	Page struct {
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	}
)

const (
	rowPrefix   = "pending"
	actorPrefix = "pending-actor"
	userPrefix  = "pending-user"
)

// OnReady writes one mapping row per actor and per user for a task that
// just became ready, returning how many rows were written
func OnReady(
	tx store.Tx, task api.NodeID, actors []api.ActorID, users []api.UserID,
) (int, error) {
	count := 0
	for _, a := range dedupe(actors) {
		m := &api.PendingActivityMapping{
			ID: newID(), ActivityID: task, ActorID: a,
		}
		if err := putRow(tx, m, store.Key(actorPrefix, string(a))); err != nil {
			return 0, err
		}
		count++
	}
	for _, u := range dedupe(users) {
		m := &api.PendingActivityMapping{
			ID: newID(), ActivityID: task, UserID: u,
		}
		if err := putRow(tx, m, store.Key(userPrefix, string(u))); err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

// OnAssigned removes every mapping row of a task
func OnAssigned(tx store.Tx, task api.NodeID) error {
	rows, err := Rows(tx, task)
	if err != nil {
		return err
	}
	for _, m := range rows {
		if err := tx.Delete(secondaryKey(m)); err != nil {
			return err
		}
		if err := tx.Delete(rowKey(task, m.ID)); err != nil {
			return err
		}
	}
	return nil
}

// Rows returns the mapping rows of a task
func Rows(
	tx store.Tx, task api.NodeID,
) ([]*api.PendingActivityMapping, error) {
	return store.ScanJSON[api.PendingActivityMapping](
		tx, store.Prefix(rowPrefix, string(task)),
	)
}

// Count returns the number of mapping rows of a task
func Count(tx store.Tx, task api.NodeID) (int, error) {
	rows, err := tx.Scan(store.Prefix(rowPrefix, string(task)))
	return len(rows), err
}

// Query returns the IDs of the tasks matching the filter, ordered by ID and
// paged
func Query(tx store.Tx, f Filter, p Page) ([]api.NodeID, error) {
	seen := map[api.NodeID]bool{}
	collect := func(prefix string) error {
		entries, err := tx.Scan(prefix)
		if err != nil {
			return err
		}
		for _, e := range entries {
			seen[api.NodeID(e.Value)] = true
		}
		return nil
	}

	if f.UserID != "" {
		if err := collect(store.Prefix(userPrefix, string(f.UserID))); err != nil {
			return nil, err
		}
	}
	for _, a := range f.ActorIDs {
		if err := collect(store.Prefix(actorPrefix, string(a))); err != nil {
			return nil, err
		}
	}

	res := make([]api.NodeID, 0, len(seen))
	for id := range seen {
		res = append(res, id)
	}
	slices.Sort(res)
	return p.apply(res), nil
}

func (p Page) apply(ids []api.NodeID) []api.NodeID {
	if p.Offset >= len(ids) {
		return []api.NodeID{}
	}
	ids = ids[max(p.Offset, 0):]
	if p.Limit > 0 && p.Limit < len(ids) {
		ids = ids[:p.Limit]
	}
	return ids
}

func putRow(
	tx store.Tx, m *api.PendingActivityMapping, secondary string,
) error {
	if err := store.PutJSON(tx, rowKey(m.ActivityID, m.ID), m); err != nil {
		return err
	}
	return tx.Put(
		store.Key(secondary, string(m.ActivityID)), []byte(m.ActivityID),
	)
}

func secondaryKey(m *api.PendingActivityMapping) string {
	if m.UserID != "" {
		return store.Key(userPrefix, string(m.UserID), string(m.ActivityID))
	}
	return store.Key(actorPrefix, string(m.ActorID), string(m.ActivityID))
}

func rowKey(task api.NodeID, id api.MappingID) string {
	return store.Key(rowPrefix, string(task), string(id))
}

func dedupe[T comparable](in []T) []T {
	var res []T
	for _, v := range in {
		if !slices.Contains(res, v) {
			res = append(res, v)
		}
	}
	return res
}

func newID() api.MappingID {
	return api.MappingID(uuid.NewString())
}
