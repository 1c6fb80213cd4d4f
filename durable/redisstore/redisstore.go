// Package redisstore is a durable.Store backed by plain Redis strings.
//
// Redis is used only as a snapshot target for a single process;
// the cache itself never reads through it.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/IvanBrykalov/tagcache/durable"
)

// Option configures a Store.
type Option func(*Store)

// WithPrefix prepends prefix to every key.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithExpiration sets a Redis TTL on every written value (0 = none).
// Useful as a backstop so abandoned snapshots do not live forever.
func WithExpiration(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.expiration = d
		}
	}
}

// Store reads and writes values with GET/SET/DEL.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	expiration time.Duration
}

// New wraps client. The Store takes ownership and closes the client on Close.
func New(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("redisstore: client cannot be nil")
	}
	s := &Store{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Get returns the value for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, durable.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get %q: %w", key, err)
	}
	return b, nil
}

// Set writes the value for key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.expiration).Err(); err != nil {
		return fmt.Errorf("redisstore: set %q: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redisstore: remove %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

var _ durable.Store = (*Store)(nil)
