// Package durable defines the key-value contract the cache snapshots into.
//
// Implementations live in sub-packages:
//
//   - memstore:    process memory (tests, ephemeral hosts)
//   - filestore:   one file per key on an afero.Fs
//   - sqlitestore: a single kv table in SQLite
//   - redisstore:  plain GET/SET/DEL on a Redis client
package durable

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when the key holds no value.
var ErrNotFound = errors.New("durable: key not found")

// Store is a byte-oriented key-value store used to survive process restarts.
// All methods must be safe for concurrent use.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Close releases resources held by the store.
	Close() error
}
