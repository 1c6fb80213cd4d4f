// Package twoq implements the 2Q eviction policy.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/tagcache/policy"
)

// twoQ splits resident entries into two queues:
//   - A1in holds entries admitted once and never read since;
//   - Am holds entries that were read (or re-admitted from the ghost list).
//
// A1out is a ghost list of keys recently evicted from A1in. A key found
// there on admission skips A1in and goes straight to Am.
//
// The table's own list keeps global recency for Keys() and snapshots;
// the queues here only decide the victim. All methods run under the
// table lock.
type twoQ struct {
	h policy.Hooks

	capIn    int
	capGhost int

	// MRU at Front, LRU at Back.
	in    *list.List
	inIdx map[policy.Node]*list.Element
	am    *list.List
	amIdx map[policy.Node]*list.Element

	ghost    *list.List
	ghostIdx map[string]*list.Element
}

type twoQPolicy struct {
	capIn    int
	capGhost int
}

// New returns a 2Q policy factory. A common choice is capIn at 25% of
// the cache size and capGhost at 50% to 100% of it.
func New(capIn, capGhost int) policy.Policy {
	if capIn < 1 {
		capIn = 1
	}
	if capGhost < 1 {
		capGhost = 1
	}
	return twoQPolicy{capIn: capIn, capGhost: capGhost}
}

// New implements policy.Policy.
func (p twoQPolicy) New(h policy.Hooks) policy.ListPolicy {
	return &twoQ{
		h:        h,
		capIn:    p.capIn,
		capGhost: p.capGhost,
		in:       list.New(),
		inIdx:    make(map[policy.Node]*list.Element),
		am:       list.New(),
		amIdx:    make(map[policy.Node]*list.Element),
		ghost:    list.New(),
		ghostIdx: make(map[string]*list.Element),
	}
}

// OnAdd admits n into A1in, or into Am when its key is a ghost.
// Capacity is enforced through Victim, so OnAdd never proposes an eviction.
func (q *twoQ) OnAdd(n policy.Node) policy.Node {
	q.h.PushFront(n)
	if ge, ok := q.ghostIdx[n.Key()]; ok {
		q.ghost.Remove(ge)
		delete(q.ghostIdx, n.Key())
		q.amIdx[n] = q.am.PushFront(n)
		return nil
	}
	q.inIdx[n] = q.in.PushFront(n)
	return nil
}

// OnGet promotes an A1in entry to Am, or refreshes it within Am.
func (q *twoQ) OnGet(n policy.Node) {
	if el, ok := q.inIdx[n]; ok {
		q.in.Remove(el)
		delete(q.inIdx, n)
		q.amIdx[n] = q.am.PushFront(n)
	} else if el, ok := q.amIdx[n]; ok {
		q.am.MoveToFront(el)
	}
	q.h.MoveToFront(n)
}

// OnRemove forgets n. Entries leaving A1in are remembered as ghosts.
func (q *twoQ) OnRemove(n policy.Node) {
	if el, ok := q.amIdx[n]; ok {
		q.am.Remove(el)
		delete(q.amIdx, n)
		return
	}
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.in.Remove(el)
	delete(q.inIdx, n)

	k := n.Key()
	if old, ok := q.ghostIdx[k]; ok {
		q.ghost.Remove(old)
	}
	q.ghostIdx[k] = q.ghost.PushFront(k)
	for q.ghost.Len() > q.capGhost {
		tail := q.ghost.Back()
		delete(q.ghostIdx, tail.Value.(string))
		q.ghost.Remove(tail)
	}
}

// Victim prefers the A1in tail while A1in is over its share, and the Am
// tail otherwise.
func (q *twoQ) Victim() policy.Node {
	if q.in.Len() > 0 && (q.in.Len() > q.capIn || q.am.Len() == 0) {
		return q.in.Back().Value.(policy.Node)
	}
	if q.am.Len() > 0 {
		return q.am.Back().Value.(policy.Node)
	}
	return q.h.Back()
}
