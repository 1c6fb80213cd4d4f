// Package memstore is an in-process durable.Store backed by a map.
package memstore

import (
	"context"
	"sync"

	"github.com/IvanBrykalov/tagcache/durable"
)

// Store keeps copies of the stored bytes in memory.
type Store struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{m: make(map[string][]byte)}
}

// Get returns a copy of the value for key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, durable.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.m[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}

// Remove deletes key.
func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

var _ durable.Store = (*Store)(nil)
