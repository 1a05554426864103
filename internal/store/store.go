// Package store defines the transactional key-value boundary the engine runs
// every state machine step inside of.
//
// A backend must give Update all-or-nothing commit semantics and must reject
// a commit (with ErrConflict) when anything the transaction read was changed
// by a concurrent commit. Nothing written by a failed Update is visible
package store

import (
	"context"
	"errors"
)

type (
	// Store runs functions inside transactions
	Store interface {
		// Update runs fn in a read-write transaction. The transaction
		// commits when fn returns nil and is discarded otherwise
		Update(ctx context.Context, fn func(Tx) error) error

		// View runs fn in a read-only transaction
		View(ctx context.Context, fn func(Tx) error) error

		// Close releases the resources held by the store
		Close() error
	}

	// Tx is a single transaction. Reads observe the transaction's own
	// writes. Implementations are not safe for concurrent use
	Tx interface {
		Get(key string) ([]byte, error)
		Put(key string, value []byte) error
		Delete(key string) error

		// Scan returns every entry whose key begins with prefix, ordered
		// by key
		Scan(prefix string) ([]Entry, error)
	}

	// Entry is one key-value pair returned by Scan
	Entry struct {
		Key   string
		Value []byte
	}
)

var (
	ErrNotFound = errors.New("key not found")
	ErrConflict = errors.New("transaction conflict")
	ErrReadOnly = errors.New("transaction is read-only")
	ErrClosed   = errors.New("store closed")

	// ErrUnavailable wraps backend failures that may succeed when retried
	ErrUnavailable = errors.New("store unavailable")
)

// IsTransient reports whether err is a failure the caller should retry with
// the same input
func IsTransient(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsNotFound reports whether err is, or wraps, ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
