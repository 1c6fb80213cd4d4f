package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/IvanBrykalov/tagcache/internal/singleflight"
	"github.com/IvanBrykalov/tagcache/policy"
	"github.com/IvanBrykalov/tagcache/policy/lru"
	"github.com/IvanBrykalov/tagcache/schedule"
)

// Store is the concrete Cache implementation.
//
// One mutex guards the key→entry map, the intrusive MRU↔LRU list and the
// counters mutated alongside them. Background work (sweeps and snapshot
// writes) runs on the configured Scheduler and takes the same lock.
type Store[V any] struct {
	mu    sync.Mutex
	items map[string]*entry[V]
	head  *entry[V] // MRU
	tail  *entry[V] // LRU
	cost  int64     // sum of entry costs
	pol   policy.ListPolicy

	opt   Options[V]
	clock clockwork.Clock
	log   zerolog.Logger
	ttl   time.Duration // resolved default TTL, 0 = never

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64

	sweeper schedule.Task
	persist *persister[V] // nil when Options.Durable is nil
	sf      singleflight.Group[V]

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New constructs a Store, restores the last snapshot from Options.Durable
// (if any) and starts the expiration sweeper.
//
// Only configuration errors are returned; a missing, unreadable, corrupt or
// stale snapshot is logged and the store starts empty.
func New[V any](ctx context.Context, opt Options[V]) (*Store[V], error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	opt.applyDefaults()

	s := &Store[V]{
		items: make(map[string]*entry[V], min(opt.MaxSize, 1024)),
		opt:   opt,
		clock: opt.Clock,
		log:   opt.Logger.With().Str("component", "tagcache").Logger(),
	}
	if opt.DefaultTTL > 0 {
		s.ttl = opt.DefaultTTL
	}
	s.pol = opt.Policy.New(storeHooks[V]{s: s})

	if opt.Durable != nil {
		s.persist = newPersister(s)
		s.restore(ctx)
	}
	if opt.SweepInterval > 0 {
		s.sweeper = opt.Scheduler.Every(opt.SweepInterval, func() { s.Sweep() })
	}
	return s, nil
}

func (o *Options[V]) validate() error {
	switch {
	case o.MaxSize <= 0:
		return ErrInvalidMaxSize
	case o.MaxSize > MaxEntries:
		return fmt.Errorf("%w: %d > %d", ErrMaxSizeTooLarge, o.MaxSize, MaxEntries)
	case o.PersistDelay < 0:
		return fmt.Errorf("%w: %s", ErrInvalidInterval, o.PersistDelay)
	}
	return nil
}

func (o *Options[V]) applyDefaults() {
	if o.DefaultTTL == 0 {
		o.DefaultTTL = DefaultTTL
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.PersistDelay == 0 {
		o.PersistDelay = DefaultPersistDelay
	}
	if o.MaxSnapshotAge == 0 {
		o.MaxSnapshotAge = DefaultMaxSnapshotAge
	}
	if o.SnapshotKey == "" {
		o.SnapshotKey = DefaultSnapshotKey
	}
	if o.Policy == nil {
		o.Policy = lru.New()
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Scheduler == nil {
		o.Scheduler = schedule.New(o.Clock)
	}
}

// Set inserts or replaces key→v.
func (s *Store[V]) Set(key string, v V, opts ...SetOption) {
	if s.closed.Load() {
		return
	}
	cfg := applySetOptions(opts)
	raw, ok := s.encode(key, v)
	if !ok {
		return
	}
	now := s.clock.Now()

	s.mu.Lock()
	s.setLocked(key, v, raw, s.ttlFor(cfg), normalizeTags(cfg.tags), now)
	s.reportSizeLocked()
	s.mu.Unlock()

	s.markDirty()
}

// MSet stores every pair with the same options. Keys are applied in sorted
// order so evictions caused by the batch are deterministic.
func (s *Store[V]) MSet(items map[string]V, opts ...SetOption) {
	if s.closed.Load() || len(items) == 0 {
		return
	}
	cfg := applySetOptions(opts)
	ttl := s.ttlFor(cfg)
	tags := normalizeTags(cfg.tags)

	keys := make([]string, 0, len(items))
	raws := make(map[string][]byte, len(items))
	for k, v := range items {
		raw, ok := s.encode(k, v)
		if !ok {
			continue
		}
		keys = append(keys, k)
		raws[k] = raw
	}
	if len(keys) == 0 {
		return
	}
	slices.Sort(keys)
	now := s.clock.Now()

	s.mu.Lock()
	for _, k := range keys {
		s.setLocked(k, items[k], raws[k], ttl, tags, now)
	}
	s.reportSizeLocked()
	s.mu.Unlock()

	s.markDirty()
}

// Get returns the value for key.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	if s.closed.Load() {
		return zero, false
	}
	now := s.clock.Now()

	s.mu.Lock()
	v, ok, removed := s.getLocked(key, now)
	if removed {
		s.reportSizeLocked()
	}
	s.mu.Unlock()

	if removed {
		s.markDirty()
	}
	return v, ok
}

// MGet returns the values of the keys that were found.
// Every key counts as a hit or a miss, exactly like Get.
func (s *Store[V]) MGet(keys ...string) map[string]V {
	out := make(map[string]V, len(keys))
	if s.closed.Load() || len(keys) == 0 {
		return out
	}
	now := s.clock.Now()
	removedAny := false

	s.mu.Lock()
	for _, k := range keys {
		v, ok, removed := s.getLocked(k, now)
		removedAny = removedAny || removed
		if ok {
			out[k] = v
		}
	}
	if removedAny {
		s.reportSizeLocked()
	}
	s.mu.Unlock()

	if removedAny {
		s.markDirty()
	}
	return out
}

// Has reports whether a live entry exists for key.
func (s *Store[V]) Has(key string) bool {
	if s.closed.Load() {
		return false
	}
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	return ok && !e.expired(now)
}

// Delete removes key if present.
func (s *Store[V]) Delete(key string) bool {
	if s.closed.Load() {
		return false
	}
	s.mu.Lock()
	e, ok := s.items[key]
	if ok {
		s.removeLocked(e)
		s.reportSizeLocked()
	}
	s.mu.Unlock()

	if ok {
		s.markDirty()
	}
	return ok
}

// DeleteByTag removes every entry whose tag set contains tag.
func (s *Store[V]) DeleteByTag(tag string) int {
	if s.closed.Load() || tag == "" {
		return 0
	}
	n := 0
	s.mu.Lock()
	for e := s.head; e != nil; {
		next := e.next
		if e.hasTag(tag) {
			s.removeLocked(e)
			n++
		}
		e = next
	}
	if n > 0 {
		s.reportSizeLocked()
	}
	s.mu.Unlock()

	if n > 0 {
		s.log.Debug().Str("tag", tag).Int("removed", n).Msg("entries invalidated by tag")
		s.markDirty()
	}
	return n
}

// Clear removes all entries and resets hits, misses, evictions and expirations.
func (s *Store[V]) Clear() {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	s.items = make(map[string]*entry[V], min(s.opt.MaxSize, 1024))
	s.head, s.tail = nil, nil
	s.cost = 0
	s.pol = s.opt.Policy.New(storeHooks[V]{s: s})
	s.hits.Store(0)
	s.misses.Store(0)
	s.evictions.Store(0)
	s.expirations.Store(0)
	s.reportSizeLocked()
	s.mu.Unlock()

	s.markDirty()
}

// Touch sets the entry's createdAt to now (and its TTL, if WithNewTTL is given).
// Value, tags and access metadata are left as they are and the entry is not promoted.
// An expired entry is removed and Touch returns false.
func (s *Store[V]) Touch(key string, opts ...TouchOption) bool {
	if s.closed.Load() {
		return false
	}
	var cfg setConfig
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	now := s.clock.Now()

	s.mu.Lock()
	e, ok := s.items[key]
	if ok && e.expired(now) {
		s.evictLocked(e, EvictExpired)
		s.reportSizeLocked()
		s.mu.Unlock()
		s.markDirty()
		return false
	}
	if ok {
		e.createdAt = now
		if cfg.hasTTL {
			e.ttl = resolveTTL(cfg.ttl)
		}
	}
	s.mu.Unlock()

	if ok {
		s.markDirty()
	}
	return ok
}

// Keys returns the live keys, most recently used first.
func (s *Store[V]) Keys() []string {
	if s.closed.Load() {
		return nil
	}
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.items))
	for e := s.head; e != nil; e = e.next {
		if !e.expired(now) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Len returns the number of resident entries.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close stops the sweeper, cancels the pending snapshot write and performs a
// final flush. It is safe to call more than once; later calls return the
// result of the first.
func (s *Store[V]) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.sweeper != nil {
			s.sweeper.Stop()
		}
		if s.persist != nil {
			ctx, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
			defer cancel()
			s.closeErr = s.persist.close(ctx)
		}
	})
	return s.closeErr
}

// ---- internals (all *Locked methods require s.mu) ----

func applySetOptions(opts []SetOption) setConfig {
	var cfg setConfig
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	return cfg
}

// ttlFor picks the per-call TTL or falls back to the store default.
func (s *Store[V]) ttlFor(cfg setConfig) time.Duration {
	if cfg.hasTTL {
		return resolveTTL(cfg.ttl)
	}
	return s.ttl
}

// resolveTTL maps the public "negative = never" convention to the internal 0.
func resolveTTL(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// encode runs the Codec (if any). A failure is logged and the value dropped.
func (s *Store[V]) encode(key string, v V) ([]byte, bool) {
	if s.opt.Codec == nil {
		return nil, true
	}
	raw, err := s.opt.Codec.Encode(v)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("encode failed, value not stored")
		return nil, false
	}
	return raw, true
}

// decode returns the entry's value, running the Codec when configured.
func (s *Store[V]) decode(e *entry[V]) (V, error) {
	if s.opt.Codec == nil {
		return e.val, nil
	}
	return s.opt.Codec.Decode(e.raw)
}

// setLocked replaces or inserts an entry. A new key at capacity evicts the
// policy victim first.
func (s *Store[V]) setLocked(key string, v V, raw []byte, ttl time.Duration, tags []string, now time.Time) {
	if old, ok := s.items[key]; ok {
		s.removeLocked(old)
	} else if len(s.items) >= s.opt.MaxSize {
		if victim, ok := s.pol.Victim().(*entry[V]); ok && victim != nil {
			s.evictLocked(victim, EvictCapacity)
		}
	}
	e := &entry[V]{
		key:            key,
		raw:            raw,
		createdAt:      now,
		ttl:            ttl,
		lastAccessedAt: now,
		tags:           tags,
	}
	if s.opt.Codec == nil {
		e.val = v
	}
	s.admitLocked(e, v)
}

// admitLocked links a fully built entry into the map and the policy.
func (s *Store[V]) admitLocked(e *entry[V], v V) {
	e.cost = s.costOf(e, v)
	s.items[e.key] = e
	s.cost += e.cost
	if victim, ok := s.pol.OnAdd(e).(*entry[V]); ok && victim != nil && victim != e {
		s.evictLocked(victim, EvictCapacity)
	}
}

// getLocked implements Get for one key. removed reports a table mutation
// (expired or undecodable entry dropped).
func (s *Store[V]) getLocked(key string, now time.Time) (v V, ok, removed bool) {
	e, found := s.items[key]
	switch {
	case !found:
		s.missLocked()
		return v, false, false
	case e.expired(now):
		s.evictLocked(e, EvictExpired)
		s.missLocked()
		return v, false, true
	}
	val, err := s.decode(e)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("decode failed, entry dropped")
		s.removeLocked(e)
		s.missLocked()
		return v, false, true
	}
	e.accessCount++
	e.lastAccessedAt = now
	s.pol.OnGet(e)
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return val, true, false
}

func (s *Store[V]) missLocked() {
	s.misses.Add(1)
	s.opt.Metrics.Miss()
}

// peek returns a live value without touching metadata or counters.
func (s *Store[V]) peek(key string) (V, bool) {
	var zero V
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok || e.expired(now) {
		return zero, false
	}
	v, err := s.decode(e)
	if err != nil {
		return zero, false
	}
	return v, true
}

// removeLocked detaches e from the policy, the list and the map.
func (s *Store[V]) removeLocked(e *entry[V]) {
	s.pol.OnRemove(e)
	s.removeNode(e)
	delete(s.items, e.key)
	s.cost -= e.cost
}

// evictLocked removes e and reports the eviction to counters, Metrics and OnEvict.
func (s *Store[V]) evictLocked(e *entry[V], reason EvictReason) {
	s.removeLocked(e)
	if reason == EvictExpired {
		s.expirations.Add(1)
	} else {
		s.evictions.Add(1)
	}
	s.opt.Metrics.Evict(reason)
	if s.opt.OnEvict != nil {
		v, _ := s.decode(e)
		s.opt.OnEvict(e.key, v, reason)
	}
}

func (s *Store[V]) reportSizeLocked() {
	s.opt.Metrics.Size(len(s.items), s.cost)
}

// costOf estimates the in-memory footprint of e.
func (s *Store[V]) costOf(e *entry[V], v V) int64 {
	c := int64(entryOverhead + len(e.key))
	for _, t := range e.tags {
		c += int64(len(t))
	}
	switch {
	case s.opt.Codec != nil:
		c += int64(len(e.raw))
	case s.opt.Cost != nil:
		if n := s.opt.Cost(v); n > 0 {
			c += int64(n)
		}
	default:
		c += estimateSize(v)
	}
	return c
}

func (s *Store[V]) markDirty() {
	if s.persist != nil {
		s.persist.markDirty()
	}
}

// ---- intrusive list ----

// insertFront inserts e at MRU.
func (s *Store[V]) insertFront(e *entry[V]) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

// moveToFront promotes e to MRU.
func (s *Store[V]) moveToFront(e *entry[V]) {
	if s.head == e {
		return
	}
	s.removeNode(e)
	s.insertFront(e)
}

// removeNode unlinks e from the list. Unlinking twice is a no-op.
func (s *Store[V]) removeNode(e *entry[V]) {
	if e.prev == nil && e.next == nil && s.head != e {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

// storeHooks adapts the Store list to policy.Hooks.
type storeHooks[V any] struct{ s *Store[V] }

func (h storeHooks[V]) MoveToFront(n policy.Node) { h.s.moveToFront(n.(*entry[V])) }
func (h storeHooks[V]) PushFront(n policy.Node)   { h.s.insertFront(n.(*entry[V])) }
func (h storeHooks[V]) Remove(n policy.Node)      { h.s.removeNode(n.(*entry[V])) }
func (h storeHooks[V]) Len() int                  { return len(h.s.items) }

// Back returns the LRU entry. An empty list yields a nil interface, not a
// typed nil pointer.
func (h storeHooks[V]) Back() policy.Node {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}
