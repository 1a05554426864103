// Package timeboxstore keeps the engine's key space in one event-sourced
// timebox aggregate.
//
// Each committed transaction is raised as a single event on the ledger
// aggregate. Timebox appends events only at the sequence the command was
// run against, so concurrent writers are serialized by its executor, which
// re-runs a losing transaction against the newer ledger before giving up
// with a version conflict
package timeboxstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/kode4food/timebox"

	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/pkg/util"
)

type (
	// Store is a store.Store kept as a timebox event stream
	Store struct {
		tb     *timebox.Timebox
		exec   *Executor
		id     timebox.AggregateID
		closed atomic.Bool
	}

	// Executor runs commands against the ledger aggregate
	Executor = timebox.Executor[*Ledger]

	// Aggregator raises ledger events inside a command
	Aggregator = timebox.Aggregator[*Ledger]

	// Config holds the settings needed to open a Store on its own timebox
	Config struct {
		Store     timebox.StoreConfig
		Ledger    string
		CacheSize int
	}

	// Ledger is the folded state of every committed transaction. Appliers
	// never modify a Ledger in place
	Ledger struct {
		Entries map[string][]byte
	}

	// Committed is the event raised for one transaction
	Committed struct {
		Puts    map[string][]byte `json:"puts,omitempty"`
		Deletes []string          `json:"deletes,omitempty"`
	}

	tx struct {
		base     map[string][]byte
		writes   map[string][]byte
		deletes  util.Set[string]
		readOnly bool
	}
)

const (
	// EventCommitted is raised once per successful Update
	EventCommitted = timebox.EventType("committed")

	// DefaultLedger names the aggregate when Config.Ledger is empty
	DefaultLedger = "engine"

	ledgerPrefix = "ledger"
)

// Appliers fold ledger events
var Appliers = timebox.Appliers[*Ledger]{
	EventCommitted: timebox.MakeApplier(committed),
}

var (
	ErrCreateTimebox = errors.New("failed to create timebox")
	ErrCreateStore   = errors.New("failed to create timebox store")
)

// Open starts a timebox instance backed by the configured Redis server and
// returns a Store that owns it
func Open(cfg Config) (*Store, error) {
	tb, err := timebox.NewTimebox(timebox.Config{
		MaxRetries: timebox.DefaultMaxRetries,
		CacheSize:  cfg.CacheSize,
		Workers:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateTimebox, err)
	}

	st, err := tb.NewStore(cfg.Store)
	if err != nil {
		_ = tb.Close()
		return nil, fmt.Errorf("%w: %w", ErrCreateStore, err)
	}

	res := New(st, cfg.Ledger)
	res.tb = tb
	return res, nil
}

// New wraps a timebox store. The caller keeps ownership of the timebox the
// store was created from
func New(st *timebox.Store, ledger string) *Store {
	if ledger == "" {
		ledger = DefaultLedger
	}
	return &Store{
		exec: timebox.NewExecutor(st, NewLedger, Appliers),
		id: timebox.NewAggregateID(
			timebox.ID(ledgerPrefix), timebox.ID(ledger),
		),
	}
}

// NewLedger returns an empty ledger
func NewLedger() *Ledger {
	return &Ledger{Entries: map[string][]byte{}}
}

// Update runs fn against the current ledger and raises its writes as one
// event. A transaction that writes nothing raises nothing
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	if s.closed.Load() {
		return store.ErrClosed
	}

	var failed error
	_, err := s.exec.Exec(ctx, s.id, func(l *Ledger, ag *Aggregator) error {
		failed = nil
		t := newTx(l, false)
		if err := fn(t); err != nil {
			failed = err
			return err
		}
		if !t.changed() {
			return nil
		}
		return timebox.Raise(ag, EventCommitted, t.commit())
	})
	return classify(err, failed)
}

// View runs fn against the current ledger
func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if s.closed.Load() {
		return store.ErrClosed
	}

	var failed error
	_, err := s.exec.Exec(ctx, s.id, func(l *Ledger, _ *Aggregator) error {
		failed = fn(newTx(l, true))
		return failed
	})
	return classify(err, failed)
}

// Close stops the owned timebox, if any. Later calls fail with ErrClosed
func (s *Store) Close() error {
	if s.closed.Swap(true) || s.tb == nil {
		return nil
	}
	return s.tb.Close()
}

func classify(err, failed error) error {
	switch {
	case err == nil:
		return nil
	case failed != nil && errors.Is(err, failed):
		return failed
	case isConflict(err):
		return fmt.Errorf("%w: %w", store.ErrConflict, err)
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
}

func isConflict(err error) bool {
	conflict := new(timebox.VersionConflictError)
	return errors.As(err, &conflict)
}

func committed(l *Ledger, _ *timebox.Event, data Committed) *Ledger {
	next := maps.Clone(l.Entries)
	if next == nil {
		next = map[string][]byte{}
	}
	for _, k := range data.Deletes {
		delete(next, k)
	}
	maps.Copy(next, data.Puts)
	return &Ledger{Entries: next}
}

func newTx(l *Ledger, readOnly bool) *tx {
	return &tx{
		base:     l.Entries,
		writes:   map[string][]byte{},
		deletes:  util.Set[string]{},
		readOnly: readOnly,
	}
}

func (t *tx) Get(key string) ([]byte, error) {
	if t.deletes.Contains(key) {
		return nil, store.ErrNotFound
	}
	if v, ok := t.writes[key]; ok {
		return slices.Clone(v), nil
	}
	if v, ok := t.base[key]; ok {
		return slices.Clone(v), nil
	}
	return nil, store.ErrNotFound
}

func (t *tx) Put(key string, value []byte) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	t.deletes.Remove(key)
	t.writes[key] = slices.Clone(value)
	return nil
}

func (t *tx) Delete(key string) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	delete(t.writes, key)
	if _, ok := t.base[key]; ok {
		t.deletes.Add(key)
	}
	return nil
}

func (t *tx) Scan(prefix string) ([]store.Entry, error) {
	var keys []string
	for k := range t.base {
		if strings.HasPrefix(k, prefix) && !t.deletes.Contains(k) {
			if _, ok := t.writes[k]; !ok {
				keys = append(keys, k)
			}
		}
	}
	for k := range t.writes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	res := make([]store.Entry, 0, len(keys))
	for _, k := range keys {
		v, _ := t.Get(k)
		res = append(res, store.Entry{Key: k, Value: v})
	}
	return res, nil
}

func (t *tx) changed() bool {
	return len(t.writes) != 0 || !t.deletes.IsEmpty()
}

func (t *tx) commit() *Committed {
	res := &Committed{}
	if len(t.writes) != 0 {
		res.Puts = t.writes
	}
	for k := range t.deletes {
		res.Deletes = append(res.Deletes, k)
	}
	slices.Sort(res.Deletes)
	return res
}
