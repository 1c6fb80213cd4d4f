package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/IvanBrykalov/tagcache/durable"
	"github.com/IvanBrykalov/tagcache/schedule"
)

const (
	// writeTimeout bounds one debounced snapshot write.
	writeTimeout = 10 * time.Second
	// closeFlushTimeout bounds the final flush in Close.
	closeFlushTimeout = 10 * time.Second
	// restoreTimeout bounds the snapshot read in New when ctx has no deadline.
	restoreTimeout = 10 * time.Second
)

// persister debounces snapshot writes to a durable.Store.
//
// The first mutation after a write arms a one-shot timer; mutations that
// arrive before it fires only set the dirty flag. Writes are serialized by
// flushMu and never run under the table lock.
type persister[V any] struct {
	s     *Store[V]
	store durable.Store
	key   string
	delay time.Duration
	sched schedule.Scheduler
	log   zerolog.Logger

	mu      sync.Mutex // guards the fields below
	dirty   bool
	pending schedule.Task
	gen     uint64 // identifies the armed timer
	closed  bool
	running sync.WaitGroup // timer callbacks past the claim point

	flushMu sync.Mutex
}

func newPersister[V any](s *Store[V]) *persister[V] {
	return &persister[V]{
		s:     s,
		store: s.opt.Durable,
		key:   s.opt.SnapshotKey,
		delay: s.opt.PersistDelay,
		sched: s.opt.Scheduler,
		log:   s.log.With().Str("snapshot_key", s.opt.SnapshotKey).Logger(),
	}
}

// markDirty records a mutation and arms the debounce timer if needed.
func (p *persister[V]) markDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = true
	if p.closed || p.pending != nil {
		return
	}
	p.gen++
	gen := p.gen
	p.pending = p.sched.After(p.delay, func() { p.fire(gen) })
}

// fire is the timer callback.
func (p *persister[V]) fire(gen uint64) {
	p.mu.Lock()
	if p.closed || p.gen != gen || p.pending == nil {
		p.mu.Unlock()
		return
	}
	p.pending = nil
	p.running.Add(1)
	p.mu.Unlock()
	defer p.running.Done()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.flush(ctx); err != nil {
		p.log.Warn().Err(err).Msg("snapshot write failed")
	}
}

// flush writes the snapshot if anything changed since the last write.
// On failure the snapshot stays dirty.
func (p *persister[V]) flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	if !p.dirty {
		p.mu.Unlock()
		return nil
	}
	p.dirty = false
	p.mu.Unlock()

	data, n, err := p.s.encodeSnapshot()
	if err == nil {
		err = p.store.Set(ctx, p.key, data)
	}
	if err != nil {
		p.mu.Lock()
		p.dirty = true
		p.mu.Unlock()
		return fmt.Errorf("cache: write snapshot: %w", err)
	}
	p.log.Debug().Int("entries", n).Int("bytes", len(data)).Msg("snapshot written")
	return nil
}

// close cancels the pending timer, waits for an in-flight write and flushes
// what is left.
func (p *persister[V]) close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
	p.mu.Unlock()

	p.running.Wait()
	return p.flush(ctx)
}

// Flush writes the snapshot now if there are unsaved mutations.
// It is a no-op when no durable store is configured.
func (s *Store[V]) Flush(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return s.persist.flush(ctx)
}

// encodeSnapshot copies the table under the lock and marshals it outside.
// Entries whose value cannot be marshaled are left out with a warning.
func (s *Store[V]) encodeSnapshot() ([]byte, int, error) {
	s.mu.Lock()
	items := make([]entry[V], 0, len(s.items))
	for e := s.tail; e != nil; e = e.prev { // LRU → MRU
		cp := *e
		cp.prev, cp.next = nil, nil
		items = append(items, cp)
	}
	hits, misses := s.hits.Load(), s.misses.Load()
	s.mu.Unlock()

	snap := Snapshot{
		Entries:   make([]SnapshotEntry, 0, len(items)),
		Stats:     SnapshotStats{Hits: hits, Misses: misses},
		Timestamp: s.clock.Now().UnixMilli(),
	}
	for _, it := range items {
		var (
			value []byte
			err   error
		)
		if s.opt.Codec != nil {
			value, err = json.Marshal(it.raw)
		} else {
			value, err = json.Marshal(it.val)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("key", it.key).Msg("value not serializable, left out of snapshot")
			continue
		}
		snap.Entries = append(snap.Entries, SnapshotEntry{
			Key:            it.key,
			Value:          value,
			CreatedAt:      it.createdAt.UnixMilli(),
			TTL:            it.ttl.Milliseconds(),
			AccessCount:    it.accessCount,
			LastAccessedAt: it.lastAccessedAt.UnixMilli(),
			Tags:           slices.Clone(it.tags),
		})
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, 0, err
	}
	return data, len(snap.Entries), nil
}

// restore loads the snapshot into an empty table. It never fails: every
// problem is logged and the store keeps whatever it could restore.
func (s *Store[V]) restore(ctx context.Context) {
	p := s.persist
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, restoreTimeout)
		defer cancel()
	}

	data, err := p.store.Get(ctx, p.key)
	if errors.Is(err, durable.ErrNotFound) {
		p.log.Debug().Msg("no snapshot, starting empty")
		return
	}
	if err != nil {
		p.log.Warn().Err(err).Msg("snapshot read failed, starting empty")
		return
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		p.log.Warn().Err(err).Msg("discarding corrupt snapshot")
		p.remove(ctx)
		return
	}

	now := s.clock.Now()
	age := now.Sub(time.UnixMilli(snap.Timestamp))
	if s.opt.MaxSnapshotAge > 0 && age > s.opt.MaxSnapshotAge {
		p.log.Info().Dur("age", age).Msg("discarding stale snapshot")
		p.remove(ctx)
		return
	}

	live := make([]*entry[V], 0, len(snap.Entries))
	values := make([]V, 0, len(snap.Entries))
	for _, se := range snap.Entries {
		e := &entry[V]{
			key:            se.Key,
			createdAt:      time.UnixMilli(se.CreatedAt),
			ttl:            resolveTTL(time.Duration(se.TTL) * time.Millisecond),
			accessCount:    se.AccessCount,
			lastAccessedAt: time.UnixMilli(se.LastAccessedAt),
			tags:           normalizeTags(se.Tags),
		}
		if e.expired(now) {
			continue
		}
		v, err := s.decodeSnapshotValue(e, se.Value)
		if err != nil {
			p.log.Warn().Err(err).Str("key", se.Key).Msg("skipping undecodable snapshot entry")
			continue
		}
		live = append(live, e)
		values = append(values, v)
	}

	// Oldest access first so the list ends with the most recent entry at MRU.
	order := make([]int, len(live))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return live[a].lastAccessedAt.Compare(live[b].lastAccessedAt)
	})
	if len(order) > s.opt.MaxSize {
		order = order[len(order)-s.opt.MaxSize:]
	}

	s.mu.Lock()
	for _, i := range order {
		e := live[i]
		if old, ok := s.items[e.key]; ok {
			s.removeLocked(old)
		}
		s.admitLocked(e, values[i])
	}
	s.hits.Store(snap.Stats.Hits)
	s.misses.Store(snap.Stats.Misses)
	s.reportSizeLocked()
	restored := len(s.items)
	s.mu.Unlock()

	p.log.Info().
		Int("restored", restored).
		Int("skipped", len(snap.Entries)-restored).
		Dur("age", age).
		Msg("snapshot restored")
}

// decodeSnapshotValue fills e.val or e.raw from a snapshot value and
// returns the decoded value.
func (s *Store[V]) decodeSnapshotValue(e *entry[V], value json.RawMessage) (V, error) {
	var v V
	if s.opt.Codec == nil {
		if err := json.Unmarshal(value, &v); err != nil {
			return v, err
		}
		e.val = v
		return v, nil
	}
	var raw []byte
	if err := json.Unmarshal(value, &raw); err != nil {
		return v, err
	}
	v, err := s.opt.Codec.Decode(raw)
	if err != nil {
		return v, err
	}
	e.raw = raw
	return v, nil
}

func (p *persister[V]) remove(ctx context.Context) {
	if err := p.store.Remove(ctx, p.key); err != nil {
		p.log.Warn().Err(err).Msg("removing snapshot failed")
	}
}
