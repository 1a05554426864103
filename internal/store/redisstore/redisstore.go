// Package redisstore implements store.Store on Redis using WATCH/MULTI
// optimistic transactions.
//
// Every key read inside Update is watched before it is read, so a concurrent
// write to it aborts the EXEC. Scans watch the keys they return but cannot
// see keys added later; callers that rely on a scan's key set must also read
// a row that every writer of that key set rewrites
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/flownode/internal/store"
)

type (
	// Config holds the connection settings for a Redis store
	Config struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}

	// Store is a store.Store backed by a Redis server
	Store struct {
		client *redis.Client
		prefix string
	}

	tx struct {
		ctx    context.Context
		store  *Store
		cmd    redis.Cmdable
		watch  *redis.Tx
		writes map[string][]byte
	}
)

const scanCount = 256

var globSpecial = strings.NewReplacer(
	`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`,
)

// New connects to Redis and verifies the connection
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return NewWithClient(client, cfg.Prefix), nil
}

// NewWithClient wraps an existing client. Keys are namespaced under prefix
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Store{client: client, prefix: prefix}
}

// Update runs fn inside a WATCH/MULTI/EXEC transaction
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		t := s.newTx(ctx, rtx, rtx)
		if err := fn(t); err != nil {
			return err
		}
		if len(t.writes) == 0 {
			return nil
		}
		_, err := rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for key, value := range t.writes {
				if value == nil {
					p.Del(ctx, s.key(key))
				} else {
					p.Set(ctx, s.key(key), value, 0)
				}
			}
			return nil
		})
		return err
	})
	return s.mapError(err)
}

// View runs fn against the live data without a transaction
func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	return s.mapError(fn(s.newTx(ctx, s.client, nil)))
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) newTx(
	ctx context.Context, cmd redis.Cmdable, watch *redis.Tx,
) *tx {
	return &tx{
		ctx:    ctx,
		store:  s,
		cmd:    cmd,
		watch:  watch,
		writes: map[string][]byte{},
	}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: %w", store.ErrConflict, err)
	case errors.Is(err, redis.ErrClosed):
		return store.ErrClosed
	case isNetworkError(err):
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	default:
		return err
	}
}

func isNetworkError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, io.EOF)
}

func (t *tx) Get(key string) ([]byte, error) {
	if v, ok := t.writes[key]; ok {
		if v == nil {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
		}
		return slices.Clone(v), nil
	}
	full := t.store.key(key)
	if t.watch != nil {
		if err := t.watch.Watch(t.ctx, full).Err(); err != nil {
			return nil, err
		}
	}
	res, err := t.cmd.Get(t.ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
	}
	return res, err
}

func (t *tx) Put(key string, value []byte) error {
	if t.watch == nil {
		return store.ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	t.writes[key] = slices.Clone(value)
	return nil
}

func (t *tx) Delete(key string) error {
	if t.watch == nil {
		return store.ErrReadOnly
	}
	t.writes[key] = nil
	return nil
}

func (t *tx) Scan(prefix string) ([]store.Entry, error) {
	pattern := t.store.key(globSpecial.Replace(prefix)) + "*"
	iter := t.cmd.Scan(t.ctx, 0, pattern, scanCount).Iterator()

	found := map[string][]byte{}
	for iter.Next(t.ctx) {
		key := strings.TrimPrefix(iter.Val(), t.store.prefix)
		if _, dup := found[key]; dup {
			continue
		}
		v, err := t.Get(key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		found[key] = v
	}
	if err := iter.Err(); err != nil {
		return nil, err
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

	keys := make([]string, 0, len(found))
	for k := range found {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	res := make([]store.Entry, 0, len(keys))
	for _, k := range keys {
		res = append(res, store.Entry{Key: k, Value: found[k]})
	}
	return res, nil
}
