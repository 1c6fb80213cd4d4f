// Package policy defines the contracts between the cache entry table and a
// pluggable eviction policy.
package policy

// Node is the minimal contract a cache entry must satisfy for a policy.
// Policies only need the key; all other metadata stays with the table.
type Node interface {
	Key() string
}

// Hooks expose O(1) list operations that a policy can use to manipulate
// the table's intrusive recency list (head = MRU, tail = LRU).
// Implementations are provided by the cache.
//
// Concurrency: all hook calls happen under the table lock.
// Important: hooks manage only the list; the table owns the key->entry map.
type Hooks interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node)
	// PushFront inserts the node at MRU (used on admission).
	PushFront(Node)
	// Remove detaches the node from the list (map bookkeeping is done by the table).
	Remove(Node)
	// Back returns the current LRU node (or nil if empty).
	Back() Node
	// Len returns the number of resident nodes.
	Len() int
}

// ListPolicy is an eviction policy instance bound to the table hooks.
// All methods are invoked under the table lock.
//
// Semantics:
//   - OnAdd places a new node and may return an eviction candidate.
//     The table evicts that node and subsequently calls OnRemove for it.
//   - OnGet is called after a successful read (typically promotes the node).
//   - OnRemove is a notification to update policy-internal state.
//     The table performs the actual deletion.
//   - Victim names the node to evict when an insertion would exceed capacity.
type ListPolicy interface {
	OnAdd(Node) (evict Node)
	OnGet(Node)
	OnRemove(Node)
	Victim() Node
}

// Policy is a factory that creates a policy instance bound to a table's hooks.
// A fresh instance is created whenever the table is cleared.
type Policy interface {
	New(Hooks) ListPolicy
}
