// Package boltstore implements store.Store on a bbolt database file. bbolt
// serializes write transactions, so Update never reports a conflict
package boltstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kode4food/flownode/internal/store"
)

type (
	// Store is a store.Store backed by a single bbolt bucket
	Store struct {
		db *bbolt.DB
	}

	tx struct {
		bucket *bbolt.Bucket
	}
)

const openTimeout = time.Second

var bucketName = []byte("flownode")

// Open opens (or creates) the database file at path
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	err = db.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Update runs fn in a bbolt read-write transaction
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(s.db.Update(func(btx *bbolt.Tx) error {
		return fn(&tx{bucket: btx.Bucket(bucketName)})
	}))
}

// View runs fn in a bbolt read-only transaction
func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(s.db.View(func(btx *bbolt.Tx) error {
		return fn(&tx{bucket: btx.Bucket(bucketName)})
	}))
}

// Close closes the database file
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.db.Path()
}

func mapError(err error) error {
	switch {
	case errors.Is(err, bbolt.ErrDatabaseNotOpen):
		return store.ErrClosed
	case errors.Is(err, bbolt.ErrTxNotWritable):
		return store.ErrReadOnly
	default:
		return err
	}
}

func (t *tx) Get(key string) ([]byte, error) {
	v := t.bucket.Get([]byte(key))
	if v == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
	}
	return slices.Clone(v), nil
}

func (t *tx) Put(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return mapError(t.bucket.Put([]byte(key), value))
}

func (t *tx) Delete(key string) error {
	return mapError(t.bucket.Delete([]byte(key)))
}

func (t *tx) Scan(prefix string) ([]store.Entry, error) {
	var res []store.Entry
	p := []byte(prefix)
	c := t.bucket.Cursor()
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		res = append(res, store.Entry{
			Key:   string(k),
			Value: slices.Clone(v),
		})
	}
	return res, nil
}
