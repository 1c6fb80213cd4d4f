// Package cache provides a generic, string-keyed, in-memory cache with a
// bounded entry count, per-entry TTL, pluggable eviction (strict LRU by
// default), tag-based invalidation and debounced snapshots to a durable
// key-value store.
//
// Design
//
//   - Storage: a single map[string]*entry plus an intrusive MRU↔LRU doubly
//     linked list, guarded by one mutex. Eviction follows one global recency
//     order, so the table is not sharded.
//
//   - Capacity: Options.MaxSize bounds the entry count. Inserting a new key
//     into a full table evicts exactly one entry first (the LRU tail by
//     default). Eviction ignores TTLs and tags.
//
//   - TTL: an entry is expired once more than its TTL has passed since it
//     was created (or last touched). Expiration is lazy on Get/Has/Keys/MGet
//     and a background sweeper reclaims entries nobody reads again.
//
//   - Tags: Set(..., WithTags(...)) labels entries; DeleteByTag drops every
//     entry carrying a label.
//
//   - Persistence: with Options.Durable set, mutations mark the table dirty
//     and a one-shot timer writes a JSON snapshot after Options.PersistDelay.
//     New restores the last snapshot unless it is corrupt or older than
//     Options.MaxSnapshotAge. Close writes whatever is still pending.
//
//   - Codec: with Options.Codec set, values are kept encoded in memory and in
//     snapshots; a value that fails to decode is dropped and counted as a miss.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     See metrics/prom and metrics/otel for exporters.
//
// Basic usage
//
//	c, err := cache.New(ctx, cache.Options[string]{MaxSize: 10_000})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	c.Set("user:42", "alice", cache.WithTTL(time.Minute), cache.WithTags("users"))
//	if v, ok := c.Get("user:42"); ok {
//	    _ = v
//	}
//	c.DeleteByTag("users")
//
// With a durable snapshot
//
//	fs, _ := filestore.New(afero.NewOsFs(), "/var/lib/app")
//	c, err := cache.New(ctx, cache.Options[Report]{
//	    MaxSize: 1024,
//	    Durable: fs,
//	})
//
// All methods on Store are safe for concurrent use.
package cache
