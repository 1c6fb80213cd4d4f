package twoq

import (
	"testing"

	"github.com/IvanBrykalov/tagcache/policy"
)

// --- test doubles (same shape as in LRU tests) ---

type testNode struct{ k string }

func (n *testNode) Key() string { return n.k }

type mockHooks struct {
	pushFrontCnt   int
	moveToFrontCnt int

	lastPush policy.Node
	backVal  policy.Node
}

func (h *mockHooks) MoveToFront(policy.Node) { h.moveToFrontCnt++ }
func (h *mockHooks) PushFront(n policy.Node) { h.pushFrontCnt++; h.lastPush = n }
func (h *mockHooks) Remove(policy.Node)      {}
func (h *mockHooks) Back() policy.Node       { return h.backVal }
func (h *mockHooks) Len() int                { return 0 }

func newTwoQ(capIn, capGhost int) (*twoQ, *mockHooks) {
	h := &mockHooks{}
	return New(capIn, capGhost).New(h).(*twoQ), h
}

// --- tests ---

// OnAdd of a first-time key admits into A1in without proposing an eviction.
func TestTwoQ_AddGoesToA1in(t *testing.T) {
	t.Parallel()

	p, h := newTwoQ(2, 4)
	n1 := &testNode{k: "a"}
	if ev := p.OnAdd(n1); ev != nil {
		t.Fatalf("OnAdd must not evict, got %v", ev)
	}
	if h.pushFrontCnt != 1 || h.lastPush != n1 {
		t.Fatalf("OnAdd must PushFront the node once")
	}
	if p.in.Len() != 1 {
		t.Fatalf("A1in must have 1 element, got %d", p.in.Len())
	}
	if _, ok := p.inIdx[n1]; !ok {
		t.Fatalf("n1 must be present in A1in index")
	}
}

// With A1in over its share, the victim is the A1in LRU even if Am is not empty.
func TestTwoQ_VictimFromA1inWhenOverShare(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(2, 4)
	hot := &testNode{k: "hot"}
	p.OnAdd(hot)
	p.OnGet(hot) // Am: [hot]

	n1, n2, n3 := &testNode{k: "a"}, &testNode{k: "b"}, &testNode{k: "c"}
	p.OnAdd(n1)
	p.OnAdd(n2)
	p.OnAdd(n3) // A1in: [c b a]

	if v := p.Victim(); v != n1 {
		t.Fatalf("expected victim a (LRU of A1in), got %v", v)
	}
}

// Within its share, A1in is protected and Am's LRU is chosen.
func TestTwoQ_VictimFromAmWithinShare(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(2, 4)
	x, y := &testNode{k: "x"}, &testNode{k: "y"}
	p.OnAdd(x)
	p.OnAdd(y)
	p.OnGet(x)
	p.OnGet(y) // Am: [y x]

	p.OnAdd(&testNode{k: "new"}) // A1in: [new]

	if v := p.Victim(); v != x {
		t.Fatalf("expected victim x (LRU of Am), got %v", v)
	}
	p.OnGet(x) // Am: [x y]
	if v := p.Victim(); v != y {
		t.Fatalf("expected victim y after x was read, got %v", v)
	}
}

// An empty Am falls back to A1in, and an empty policy to the table tail.
func TestTwoQ_VictimFallbacks(t *testing.T) {
	t.Parallel()

	p, h := newTwoQ(4, 4)
	if v := p.Victim(); v != nil {
		t.Fatalf("empty policy with empty table must return nil, got %v", v)
	}
	tail := &testNode{k: "tail"}
	h.backVal = tail
	if v := p.Victim(); v != tail {
		t.Fatalf("empty policy must fall back to the table tail")
	}

	n := &testNode{k: "a"}
	p.OnAdd(n)
	if v := p.Victim(); v != n {
		t.Fatalf("A1in within share but Am empty: want a, got %v", v)
	}
}

// Removing a node from A1in places its key into ghosts (A1out).
func TestTwoQ_OnRemoveFromA1inGoesToGhost(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(2, 2)
	n1 := &testNode{k: "a"}
	p.OnAdd(n1)
	p.OnRemove(n1)
	if _, ok := p.inIdx[n1]; ok {
		t.Fatal("n1 must be removed from A1in")
	}
	if _, ok := p.ghostIdx["a"]; !ok {
		t.Fatal("key 'a' must be in ghost (A1out)")
	}
}

// Removals from Am do not create ghosts.
func TestTwoQ_OnRemoveFromAmNoGhost(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(2, 2)
	n1 := &testNode{k: "a"}
	p.OnAdd(n1)
	p.OnGet(n1)
	p.OnRemove(n1)
	if p.am.Len() != 0 {
		t.Fatalf("Am must be empty, got %d", p.am.Len())
	}
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatal("Am removal must not create a ghost")
	}
}

// The ghost list is bounded by capGhost, dropping the oldest keys first.
func TestTwoQ_GhostCapacity(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(4, 2)
	for _, k := range []string{"a", "b", "c"} {
		n := &testNode{k: k}
		p.OnAdd(n)
		p.OnRemove(n)
	}
	if p.ghost.Len() != 2 {
		t.Fatalf("ghost list must hold 2 keys, got %d", p.ghost.Len())
	}
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatal("oldest ghost 'a' must be dropped")
	}
}

// Re-admitting a ghost key bypasses A1in and goes to Am.
func TestTwoQ_AddFromGhostGoesToAm(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(1, 2)
	n1 := &testNode{k: "a"}
	p.OnAdd(n1)
	p.OnRemove(n1)

	n2 := &testNode{k: "a"}
	if ev := p.OnAdd(n2); ev != nil {
		t.Fatalf("OnAdd from ghost must not evict (got %v)", ev)
	}
	if _, ok := p.inIdx[n2]; ok {
		t.Fatalf("n2 must NOT be in A1in")
	}
	if _, ok := p.amIdx[n2]; !ok {
		t.Fatalf("n2 must be in Am")
	}
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatal("ghost must be consumed on re-admission")
	}
}

// A Get on an A1in node promotes it to Am and moves it to MRU.
func TestTwoQ_GetPromotesFromA1inToAm(t *testing.T) {
	t.Parallel()

	p, h := newTwoQ(2, 2)
	n1 := &testNode{k: "a"}
	p.OnAdd(n1)
	p.OnGet(n1)
	if _, ok := p.inIdx[n1]; ok {
		t.Fatal("n1 must be promoted out of A1in after Get")
	}
	if _, ok := p.amIdx[n1]; !ok {
		t.Fatal("n1 must be in Am after Get")
	}
	if h.moveToFrontCnt != 1 {
		t.Fatalf("OnGet must call MoveToFront once")
	}
}
