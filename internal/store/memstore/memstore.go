// Package memstore is an in-process store.Store using optimistic
// concurrency. Every committed key carries a version; a transaction commits
// only if nothing it read (including the key sets of its scans) has changed
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/kode4food/flownode/internal/store"
)

type (
	// Store keeps all data in memory
	Store struct {
		data   map[string]*item
		mu     sync.RWMutex
		seq    uint64
		closed bool
	}

	item struct {
		value   []byte
		version uint64
	}

	tx struct {
		store    *Store
		reads    map[string]uint64
		scans    map[string]map[string]uint64
		writes   map[string][]byte
		readOnly bool
	}
)

// New creates an empty in-memory store
func New() *Store {
	return &Store{data: map[string]*item{}}
}

// Update runs fn in an optimistic read-write transaction
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := s.begin(false)
	if err := fn(t); err != nil {
		return err
	}
	return s.commit(t)
}

// View runs fn in a read-only transaction
func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.begin(true))
}

// Close marks the store closed. Later transactions fail with
// store.ErrClosed
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of committed keys
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Store) begin(readOnly bool) *tx {
	return &tx{
		store:    s,
		reads:    map[string]uint64{},
		scans:    map[string]map[string]uint64{},
		writes:   map[string][]byte{},
		readOnly: readOnly,
	}
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	for key, ver := range t.reads {
		if s.versionOf(key) != ver {
			return fmt.Errorf("%w: %s", store.ErrConflict, key)
		}
	}
	for prefix, seen := range t.scans {
		if !maps.Equal(seen, s.versionsUnder(prefix)) {
			return fmt.Errorf("%w: %s*", store.ErrConflict, prefix)
		}
	}
	for key, value := range t.writes {
		if value == nil {
			delete(s.data, key)
			continue
		}
		s.seq++
		s.data[key] = &item{value: value, version: s.seq}
	}
	return nil
}

func (s *Store) versionOf(key string) uint64 {
	if it, ok := s.data[key]; ok {
		return it.version
	}
	return 0
}

func (s *Store) versionsUnder(prefix string) map[string]uint64 {
	res := map[string]uint64{}
	for k, it := range s.data {
		if strings.HasPrefix(k, prefix) {
			res[k] = it.version
		}
	}
	return res
}

func (t *tx) Get(key string) ([]byte, error) {
	if v, ok := t.writes[key]; ok {
		if v == nil {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
		}
		return slices.Clone(v), nil
	}

	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	it, ok := s.data[key]
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = s.versionOf(key)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
	}
	return slices.Clone(it.value), nil
}

func (t *tx) Put(key string, value []byte) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	t.writes[key] = slices.Clone(value)
	return nil
}

func (t *tx) Delete(key string) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	t.writes[key] = nil
	return nil
}

func (t *tx) Scan(prefix string) ([]store.Entry, error) {
	s := t.store
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, store.ErrClosed
	}
	found := map[string][]byte{}
	seen := map[string]uint64{}
	for k, it := range s.data {
		if strings.HasPrefix(k, prefix) {
			found[k] = slices.Clone(it.value)
			seen[k] = it.version
		}
	}
	s.mu.RUnlock()

	if _, ok := t.scans[prefix]; !ok {
		t.scans[prefix] = seen
	}
	for k, v := range t.writes {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if v == nil {
			delete(found, k)
		} else {
			found[k] = slices.Clone(v)
		}
	}

	keys := slices.Sorted(maps.Keys(found))
	res := make([]store.Entry, 0, len(keys))
	for _, k := range keys {
		res = append(res, store.Entry{Key: k, Value: found[k]})
	}
	return res, nil
}
