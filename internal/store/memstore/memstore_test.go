package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/internal/store/memstore"
	"github.com/kode4food/flownode/internal/store/storetest"
)

func TestMemStore(t *testing.T) {
	storetest.Suite{
		Open: func(t *testing.T) store.Store {
			return memstore.New()
		},
		Conflicts:     true,
		ScanConflicts: true,
	}.Run(t)
}

func TestClosed(t *testing.T) {
	st := memstore.New()
	assert.NoError(t, st.Close())

	err := st.Update(context.Background(), func(tx store.Tx) error {
		return tx.Put("k", []byte("v"))
	})
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestLen(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	assert.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		_ = tx.Put("a", []byte("1"))
		return tx.Put("b", []byte("2"))
	}))
	assert.Equal(t, 2, st.Len())
}
