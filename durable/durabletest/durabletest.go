// Package durabletest holds a conformance suite shared by durable.Store implementations.
package durabletest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/tagcache/durable"
)

// Run exercises the durable.Store contract against stores produced by newStore.
// newStore is called once per subtest and must register its own cleanup.
func Run(t *testing.T, newStore func(t *testing.T) durable.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "absent")
		require.ErrorIs(t, err, durable.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", []byte(`{"a":1}`)))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"a":1}`), got)
	})

	t.Run("overwrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", []byte("one")))
		require.NoError(t, s.Set(ctx, "k", []byte("two")))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	})

	t.Run("remove", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", []byte("v")))
		require.NoError(t, s.Remove(ctx, "k"))
		_, err := s.Get(ctx, "k")
		require.ErrorIs(t, err, durable.ErrNotFound)
		require.NoError(t, s.Remove(ctx, "k"), "removing an absent key must succeed")
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "app:snapshot", []byte("a")))
		require.NoError(t, s.Set(ctx, "app/snapshot", []byte("b")))
		a, err := s.Get(ctx, "app:snapshot")
		require.NoError(t, err)
		b, err := s.Get(ctx, "app/snapshot")
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), a)
		assert.Equal(t, []byte("b"), b)
	})

	t.Run("binary values", func(t *testing.T) {
		s := newStore(t)
		payload := []byte{0x00, 0xff, 0x28, 0xb5, 0x2f, 0xfd}
		require.NoError(t, s.Set(ctx, "bin", payload))
		got, err := s.Get(ctx, "bin")
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})
}
