package cache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/IvanBrykalov/tagcache/codec"
	"github.com/IvanBrykalov/tagcache/durable"
	"github.com/IvanBrykalov/tagcache/policy"
	"github.com/IvanBrykalov/tagcache/schedule"
)

// Defaults applied by New for zero-valued Options fields.
const (
	DefaultTTL            = 5 * time.Minute
	DefaultSweepInterval  = time.Minute
	DefaultPersistDelay   = time.Second
	DefaultMaxSnapshotAge = 24 * time.Hour
	DefaultSnapshotKey    = "tagcache:snapshot"

	// MaxEntries is the upper bound accepted for Options.MaxSize.
	MaxEntries = 1 << 24
)

// EvictReason explains why an entry was removed without an explicit delete.
type EvictReason int

const (
	// EvictCapacity: removed by the eviction policy to make room for a new key.
	EvictCapacity EvictReason = iota
	// EvictExpired: removed because its TTL elapsed (lazily on access or by the sweeper).
	EvictExpired
)

// String returns a stable label for the reason.
func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	default:
		return "capacity"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, cost int64)
}

// Loader fetches a value on cache miss. Used by GetOrLoad.
type Loader[V any] func(ctx context.Context, key string) (V, error)

// Options configures a Store. Zero values are safe except MaxSize;
// defaults are applied in New():
//   - DefaultTTL == 0      => 5m (negative => entries never expire)
//   - SweepInterval == 0   => 1m (negative => no background sweep)
//   - PersistDelay == 0    => 1s
//   - MaxSnapshotAge == 0  => 24h (negative => snapshots never go stale)
//   - nil Policy           => LRU
//   - nil Metrics          => NoopMetrics
//   - nil Logger           => zerolog.Nop()
//   - nil Clock            => real clock
//   - nil Scheduler        => schedule.New(Clock)
type Options[V any] struct {
	// MaxSize is the entry count limit. Required, 1..MaxEntries.
	MaxSize int

	// DefaultTTL applies to Set when WithTTL is not given.
	DefaultTTL time.Duration

	// SweepInterval is the period of the background expiration pass.
	SweepInterval time.Duration

	// Policy is the eviction policy; nil => strict LRU.
	Policy policy.Policy

	// Codec, when set, keeps values encoded in memory and in snapshots.
	// Values that fail to decode on read are treated as misses.
	Codec codec.Codec[V]

	// Cost estimates the in-memory size of a value for Stats.MemoryUsage.
	// nil => a built-in estimate (string/[]byte length, fixed size otherwise).
	Cost func(v V) int

	// Persistence. Durable == nil disables snapshotting.
	Durable        durable.Store
	SnapshotKey    string
	PersistDelay   time.Duration
	MaxSnapshotAge time.Duration

	// Loader fetches a value on miss. Used by GetOrLoad.
	Loader Loader[V]

	// Observability
	// OnEvict is called for every eviction under the table lock; keep callbacks
	// lightweight and never call back into the Store.
	OnEvict func(key string, v V, reason EvictReason)
	Metrics Metrics
	Logger  *zerolog.Logger

	// Clock is the time source for TTLs and access times.
	Clock clockwork.Clock
	// Scheduler runs the sweeper and the debounced snapshot writes.
	Scheduler schedule.Scheduler
}

// SetOption customizes a single Set, MSet or GetOrLoad call.
type SetOption func(*setConfig)

type setConfig struct {
	ttl    time.Duration
	hasTTL bool
	tags   []string
}

// WithTTL overrides the default TTL for this entry.
// A negative ttl disables expiration; zero keeps the default.
func WithTTL(ttl time.Duration) SetOption {
	return func(c *setConfig) {
		if ttl != 0 {
			c.ttl = ttl
			c.hasTTL = true
		}
	}
}

// WithTags attaches labels used by DeleteByTag.
func WithTags(tags ...string) SetOption {
	return func(c *setConfig) {
		c.tags = append(c.tags, tags...)
	}
}

// TouchOption customizes a Touch call.
type TouchOption func(*setConfig)

// WithNewTTL replaces the entry's TTL while touching it.
// A negative ttl disables expiration; zero keeps the current TTL.
func WithNewTTL(ttl time.Duration) TouchOption {
	return TouchOption(WithTTL(ttl))
}
