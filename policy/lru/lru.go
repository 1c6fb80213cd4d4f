// Package lru implements the strict least-recently-used eviction policy.
package lru

import "github.com/IvanBrykalov/tagcache/policy"

// lru is a classic "move-to-front" Least-Recently-Used policy.
// Only admissions and successful reads reorder the list, so the tail is
// always the entry with the oldest last access. Entries admitted in the
// same instant keep insertion order, which makes ties deterministic.
type lru struct {
	h policy.Hooks
}

type lruPolicy struct{}

// New returns a Policy factory that constructs LRU instances.
func New() policy.Policy { return lruPolicy{} }

// New implements policy.Policy by binding the table hooks.
func (lruPolicy) New(h policy.Hooks) policy.ListPolicy {
	return &lru{h: h}
}

// OnAdd places the new entry at MRU. Capacity is enforced by the table
// through Victim, so OnAdd never proposes an eviction.
func (p *lru) OnAdd(n policy.Node) (evict policy.Node) {
	p.h.PushFront(n)
	return nil
}

// OnGet promotes the entry to MRU.
func (p *lru) OnGet(n policy.Node) { p.h.MoveToFront(n) }

// OnRemove is a no-op for pure LRU (nothing to clean up in policy state).
func (p *lru) OnRemove(policy.Node) {}

// Victim returns the least recently used entry.
func (p *lru) Victim() policy.Node { return p.h.Back() }
