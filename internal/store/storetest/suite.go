// Package storetest holds the behavior every store.Store backend must share
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/store"
)

// Suite describes a backend under test
type Suite struct {
	// Open returns a fresh, empty store
	Open func(t *testing.T) store.Store

	// Conflicts is set for optimistic backends that reject a commit when
	// a key the transaction read was changed concurrently
	Conflicts bool

	// ScanConflicts is set when key-set changes under a scanned prefix
	// also reject the commit
	ScanConflicts bool
}

// Run executes the shared backend tests
func (s Suite) Run(t *testing.T) {
	t.Run("put_get_delete", s.testPutGetDelete)
	t.Run("rollback_on_error", s.testRollback)
	t.Run("read_own_writes", s.testReadOwnWrites)
	t.Run("scan", s.testScan)
	t.Run("view_read_only", s.testViewReadOnly)
	if s.Conflicts {
		t.Run("conflict", s.testConflict)
		t.Run("blind_write_no_conflict", s.testBlindWrite)
	}
	if s.ScanConflicts {
		t.Run("scan_conflict", s.testScanConflict)
	}
}

func (s Suite) testPutGetDelete(t *testing.T) {
	st := s.Open(t)
	ctx := context.Background()

	err := st.Update(ctx, func(tx store.Tx) error {
		return tx.Put("a/1", []byte("one"))
	})
	assert.NoError(t, err)

	err = st.View(ctx, func(tx store.Tx) error {
		v, err := tx.Get("a/1")
		assert.NoError(t, err)
		assert.Equal(t, []byte("one"), v)
		_, err = tx.Get("a/2")
		assert.True(t, store.IsNotFound(err))
		return nil
	})
	assert.NoError(t, err)

	err = st.Update(ctx, func(tx store.Tx) error {
		return tx.Delete("a/1")
	})
	assert.NoError(t, err)

	err = st.View(ctx, func(tx store.Tx) error {
		_, err := tx.Get("a/1")
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func (s Suite) testRollback(t *testing.T) {
	st := s.Open(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.Update(ctx, func(tx store.Tx) error {
		if err := tx.Put("k", []byte("v")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = st.View(ctx, func(tx store.Tx) error {
		_, err := tx.Get("k")
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func (s Suite) testReadOwnWrites(t *testing.T) {
	st := s.Open(t)
	ctx := context.Background()

	err := st.Update(ctx, func(tx store.Tx) error {
		assert.NoError(t, tx.Put("x", []byte("1")))
		v, err := tx.Get("x")
		assert.NoError(t, err)
		assert.Equal(t, []byte("1"), v)

		assert.NoError(t, tx.Delete("x"))
		_, err = tx.Get("x")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	assert.NoError(t, err)
}

func (s Suite) testScan(t *testing.T) {
	st := s.Open(t)
	ctx := context.Background()

	err := st.Update(ctx, func(tx store.Tx) error {
		for _, k := range []string{"p/2", "p/1", "p/3", "q/1"} {
			if err := tx.Put(k, []byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	assert.NoError(t, err)

	err = st.Update(ctx, func(tx store.Tx) error {
		assert.NoError(t, tx.Delete("p/3"))
		assert.NoError(t, tx.Put("p/0", []byte("p/0")))

		entries, err := tx.Scan("p/")
		assert.NoError(t, err)
		var keys []string
		for _, e := range entries {
			keys = append(keys, e.Key)
			assert.Equal(t, e.Key, string(e.Value))
		}
		assert.Equal(t, []string{"p/0", "p/1", "p/2"}, keys)
		return nil
	})
	assert.NoError(t, err)
}

func (s Suite) testViewReadOnly(t *testing.T) {
	st := s.Open(t)
	err := st.View(context.Background(), func(tx store.Tx) error {
		return tx.Put("k", []byte("v"))
	})
	assert.ErrorIs(t, err, store.ErrReadOnly)
}

func (s Suite) testConflict(t *testing.T) {
	st := s.Open(t)
	ctx := context.Background()

	assert.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		return tx.Put("row", []byte("0"))
	}))

	err := st.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.Get("row"); err != nil {
			return err
		}
		inner := st.Update(ctx, func(tx store.Tx) error {
			return tx.Put("row", []byte("1"))
		})
		assert.NoError(t, inner)
		return tx.Put("row", []byte("2"))
	})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.True(t, store.IsTransient(err))

	assert.NoError(t, st.View(ctx, func(tx store.Tx) error {
		v, err := tx.Get("row")
		assert.Equal(t, []byte("1"), v)
		return err
	}))
}

func (s Suite) testBlindWrite(t *testing.T) {
	st := s.Open(t)
	ctx := context.Background()

	err := st.Update(ctx, func(tx store.Tx) error {
		inner := st.Update(ctx, func(tx store.Tx) error {
			return tx.Put("other", []byte("1"))
		})
		assert.NoError(t, inner)
		return tx.Put("mine", []byte("2"))
	})
	assert.NoError(t, err)
}

func (s Suite) testScanConflict(t *testing.T) {
	st := s.Open(t)
	ctx := context.Background()

	err := st.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.Scan("set/"); err != nil {
			return err
		}
		inner := st.Update(ctx, func(tx store.Tx) error {
			return tx.Put("set/new", []byte("1"))
		})
		assert.NoError(t, inner)
		return tx.Put("summary", []byte("0"))
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}
