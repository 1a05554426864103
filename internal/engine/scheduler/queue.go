package scheduler

import (
	"container/heap"
	"strings"
	"time"

	"github.com/kode4food/flownode/pkg/util"
)

type (
	// entry is one scheduled callback
	entry struct {
		at    time.Time
		fn    Func
		key   []string
		index int
	}

	// queue orders entries by due time and indexes them by key so that an
	// entry can be replaced or cancelled individually or by key prefix
	queue struct {
		items []*entry
		byKey map[string]*entry
		tree  *util.PathTree[*entry]
	}
)

func newQueue() *queue {
	return &queue{
		byKey: map[string]*entry{},
		tree:  util.NewPathTree[*entry](),
	}
}

func (q *queue) add(e *entry) {
	id := keyID(e.key)
	if old, ok := q.byKey[id]; ok {
		q.remove(old)
	}
	q.byKey[id] = e
	q.tree.Insert(e.key, e)
	heap.Push(q, e)
}

func (q *queue) next() *entry {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *queue) pop() *entry {
	if len(q.items) == 0 {
		return nil
	}
	e := heap.Pop(q).(*entry)
	q.unindex(e)
	return e
}

func (q *queue) cancel(key []string) {
	if e, ok := q.byKey[keyID(key)]; ok {
		q.remove(e)
	}
}

func (q *queue) cancelPrefix(prefix []string) {
	q.tree.DetachWith(prefix, func(e *entry) {
		delete(q.byKey, keyID(e.key))
		if e.index >= 0 {
			heap.Remove(q, e.index)
		}
	})
}

func (q *queue) remove(e *entry) {
	if e.index >= 0 {
		heap.Remove(q, e.index)
	}
	q.unindex(e)
}

func (q *queue) unindex(e *entry) {
	id := keyID(e.key)
	if q.byKey[id] == e {
		delete(q.byKey, id)
		q.tree.Remove(e.key)
	}
}

func (q *queue) Len() int {
	return len(q.items)
}

func (q *queue) Less(i, j int) bool {
	return q.items[i].at.Before(q.items[j].at)
}

func (q *queue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *queue) Push(x any) {
	e := x.(*entry)
	e.index = len(q.items)
	q.items = append(q.items, e)
}

func (q *queue) Pop() any {
	last := len(q.items) - 1
	e := q.items[last]
	q.items[last] = nil
	q.items = q.items[:last]
	e.index = -1
	return e
}

func keyID(key []string) string {
	return strings.Join(key, "\x00")
}
