package cache

import (
	"slices"
	"time"
	"unsafe"
)

// entryOverhead approximates the fixed bookkeeping cost of one entry
// (struct, map slot, list links). Only used for Stats.MemoryUsage.
const entryOverhead = 128

// entry is an intrusive doubly linked list element owned by the Store.
// It stores the value alongside list links and the metadata used by
// expiration, eviction, tagging and stats.
type entry[V any] struct {
	key string
	val V      // decoded value; unused when a Codec is configured
	raw []byte // encoded value when a Codec is configured

	// Intrusive list links: head is MRU, tail is LRU.
	prev *entry[V]
	next *entry[V]

	createdAt      time.Time
	ttl            time.Duration // 0 = never expires
	accessCount    uint64
	lastAccessedAt time.Time
	tags           []string // sorted, unique

	// Estimated in-memory size, see Store.costOf.
	cost int64
}

// Key returns the entry key (part of policy.Node interface).
func (e *entry[V]) Key() string { return e.key }

// expired reports whether more than ttl has passed since createdAt.
func (e *entry[V]) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

func (e *entry[V]) hasTag(tag string) bool {
	_, ok := slices.BinarySearch(e.tags, tag)
	return ok
}

// normalizeTags sorts and de-duplicates tags; empty labels are dropped.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// estimateSize is the fallback value size when Options.Cost is nil.
func estimateSize[V any](v V) int64 {
	switch x := any(v).(type) {
	case string:
		return int64(len(x))
	case []byte:
		return int64(len(x))
	case []string:
		n := int64(0)
		for _, s := range x {
			n += int64(len(s)) + 16
		}
		return n
	default:
		return int64(unsafe.Sizeof(v))
	}
}
