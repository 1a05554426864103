package timeboxstore_test

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/kode4food/timebox"
	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/internal/store/storetest"
	"github.com/kode4food/flownode/internal/store/timeboxstore"
)

func TestTimeboxStore(t *testing.T) {
	storetest.Suite{Open: openStore}.Run(t)
}

func TestConcurrentCommits(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for range writers {
		wg.Go(func() {
			for {
				err := st.Update(ctx, increment)
				if !store.IsTransient(err) {
					assert.NoError(t, err)
					return
				}
			}
		})
	}
	wg.Wait()

	assert.NoError(t, st.View(ctx, func(tx store.Tx) error {
		v, err := tx.Get("counter")
		assert.Equal(t, strconv.Itoa(writers), string(v))
		return err
	}))
}

func TestReplayFromRedis(t *testing.T) {
	server, err := miniredis.Run()
	assert.NoError(t, err)
	defer server.Close()

	ctx := context.Background()
	cfg := storeConfig(server, "replay")

	first, err := timeboxstore.Open(cfg)
	assert.NoError(t, err)
	assert.NoError(t, first.Update(ctx, func(tx store.Tx) error {
		if err := tx.Put("proc/1", []byte("one")); err != nil {
			return err
		}
		return tx.Put("proc/2", []byte("two"))
	}))
	assert.NoError(t, first.Update(ctx, func(tx store.Tx) error {
		return tx.Delete("proc/1")
	}))
	assert.NoError(t, first.Close())

	err = first.View(ctx, func(store.Tx) error { return nil })
	assert.ErrorIs(t, err, store.ErrClosed)

	second, err := timeboxstore.Open(cfg)
	assert.NoError(t, err)
	defer func() { _ = second.Close() }()

	assert.NoError(t, second.View(ctx, func(tx store.Tx) error {
		entries, err := tx.Scan("proc/")
		assert.Equal(t, []store.Entry{
			{Key: "proc/2", Value: []byte("two")},
		}, entries)
		return err
	}))
}

func TestLedgerIsolation(t *testing.T) {
	server, err := miniredis.Run()
	assert.NoError(t, err)
	defer server.Close()

	tb, err := timebox.NewTimebox(timebox.Config{
		MaxRetries: timebox.DefaultMaxRetries,
		CacheSize:  16,
		Workers:    true,
	})
	assert.NoError(t, err)
	defer func() { _ = tb.Close() }()

	ts, err := tb.NewStore(storeConfig(server, "isolation").Store)
	assert.NoError(t, err)

	ctx := context.Background()
	a := timeboxstore.New(ts, "a")
	b := timeboxstore.New(ts, "b")

	assert.NoError(t, a.Update(ctx, func(tx store.Tx) error {
		return tx.Put("k", []byte("from-a"))
	}))
	err = b.View(ctx, func(tx store.Tx) error {
		_, err := tx.Get("k")
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommittedApplier(t *testing.T) {
	apply := timeboxstore.Appliers[timeboxstore.EventCommitted]
	start := &timeboxstore.Ledger{Entries: map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}}

	next := apply(start, &timebox.Event{
		Type: timeboxstore.EventCommitted,
		Data: []byte(`{"puts":{"c":"Mw=="},"deletes":["a"]}`),
	})
	assert.Equal(t, map[string][]byte{
		"b": []byte("2"),
		"c": []byte("3"),
	}, next.Entries)
	assert.Len(t, start.Entries, 2)
}

func increment(tx store.Tx) error {
	n := 0
	v, err := tx.Get("counter")
	switch {
	case err == nil:
		n, err = strconv.Atoi(string(v))
		if err != nil {
			return err
		}
	case !store.IsNotFound(err):
		return err
	}
	return tx.Put("counter", []byte(strconv.Itoa(n+1)))
}

func openStore(t *testing.T) store.Store {
	t.Helper()
	server, err := miniredis.Run()
	assert.NoError(t, err)
	t.Cleanup(server.Close)

	st, err := timeboxstore.Open(storeConfig(server, t.Name()))
	assert.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func storeConfig(
	server *miniredis.Miniredis, prefix string,
) timeboxstore.Config {
	return timeboxstore.Config{
		Store: timebox.StoreConfig{
			Addr:   server.Addr(),
			Prefix: prefix,
		},
		CacheSize: 16,
	}
}
