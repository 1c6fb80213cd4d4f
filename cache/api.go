package cache

import "context"

// Cache is a string-keyed, in-memory key/value cache interface.
// All methods are safe for concurrent use by multiple goroutines.
//
// Typical complexity for point operations is amortized O(1):
// a map lookup plus constant-time list adjustments under the table lock.
// DeleteByTag, Keys, Sweep and Stats scan the whole table.
type Cache[V any] interface {
	// Set inserts or replaces key→v. Tags, timestamps and access counters
	// of a replaced entry are discarded. Inserting a new key into a full
	// table evicts exactly one entry first.
	Set(key string, v V, opts ...SetOption)

	// Get returns the value for key and a boolean flag indicating presence.
	// On hit, the entry's access metadata is updated and it is promoted
	// according to the policy. Expired entries are removed and reported as misses.
	Get(key string) (V, bool)

	// Has reports whether a live entry exists for key.
	// It does not touch access metadata or hit/miss counters.
	Has(key string) bool

	// Delete removes key if present and returns true on success.
	Delete(key string) bool

	// DeleteByTag removes every entry carrying tag and returns how many were removed.
	DeleteByTag(tag string) int

	// Clear removes all entries and resets the counters.
	Clear()

	// Touch restarts the entry's TTL window without changing its value.
	// Returns false when key is absent or already expired.
	Touch(key string, opts ...TouchOption) bool

	// Keys returns the live keys, most recently used first.
	Keys() []string

	// MGet returns the values of the keys that were found.
	MGet(keys ...string) map[string]V

	// MSet stores every pair in items with the same options.
	MSet(items map[string]V, opts ...SetOption)

	// Len returns the number of resident entries (expired ones included until swept).
	Len() int

	// Stats returns a point-in-time report.
	Stats() Stats

	// GetOrLoad returns the value for key, loading it via Options.Loader on miss.
	// Concurrent loads for the same key are coalesced (singleflight).
	// If no Loader was configured, returns ErrNoLoader.
	GetOrLoad(ctx context.Context, key string, opts ...SetOption) (V, error)

	// Close stops background work and writes a final snapshot if one is pending.
	Close() error
}

var _ Cache[struct{}] = (*Store[struct{}])(nil)
