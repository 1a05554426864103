package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GetJSON reads key and decodes it into a new T
func GetJSON[T any](tx Tx, key string) (*T, error) {
	data, err := tx.Get(key)
	if err != nil {
		return nil, err
	}
	var res T
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &res, nil
}

// PutJSON encodes v and writes it under key
func PutJSON(tx Tx, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Put(key, data)
}

// ScanJSON decodes every value under prefix into a new T
func ScanJSON[T any](tx Tx, prefix string) ([]*T, error) {
	entries, err := tx.Scan(prefix)
	if err != nil {
		return nil, err
	}
	res := make([]*T, 0, len(entries))
	for _, e := range entries {
		var v T
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		res = append(res, &v)
	}
	return res, nil
}

// DeletePrefix deletes every key under prefix and returns how many were
// removed
func DeletePrefix(tx Tx, prefix string) (int, error) {
	entries, err := tx.Scan(prefix)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := tx.Delete(e.Key); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// Key joins key segments with the store's path separator
func Key(parts ...string) string {
	return strings.Join(parts, "/")
}

// Prefix joins key segments and appends a trailing separator, so that a
// scan under it never matches a sibling whose name merely starts the same
func Prefix(parts ...string) string {
	return Key(parts...) + "/"
}

// KeySuffix returns the last segment of a key
func KeySuffix(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}
