package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// epoch has no sub-millisecond part so snapshot timestamps round-trip exactly.
var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestStore builds a Store on a fake clock. The background sweeper is
// disabled unless opt.SweepInterval is set.
func newTestStore[V any](t *testing.T, opt Options[V]) (*Store[V], *clockwork.FakeClock) {
	t.Helper()
	clk, ok := opt.Clock.(*clockwork.FakeClock)
	if !ok {
		clk = clockwork.NewFakeClockAt(epoch)
		opt.Clock = clk
	}
	if opt.SweepInterval == 0 {
		opt.SweepInterval = -1
	}
	s, err := New(context.Background(), opt)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, clk
}

// recMetrics records Metrics calls.
type recMetrics struct {
	mu      sync.Mutex
	hits    int
	misses  int
	evicts  map[EvictReason]int
	entries int
	cost    int64
}

func newRecMetrics() *recMetrics { return &recMetrics{evicts: map[EvictReason]int{}} }

func (m *recMetrics) Hit()  { m.mu.Lock(); m.hits++; m.mu.Unlock() }
func (m *recMetrics) Miss() { m.mu.Lock(); m.misses++; m.mu.Unlock() }
func (m *recMetrics) Evict(r EvictReason) {
	m.mu.Lock()
	m.evicts[r]++
	m.mu.Unlock()
}
func (m *recMetrics) Size(entries int, cost int64) {
	m.mu.Lock()
	m.entries, m.cost = entries, cost
	m.mu.Unlock()
}

// pickyCodec refuses to encode "unencodable" and to decode "poison".
type pickyCodec struct{}

var errPicky = errors.New("picky codec")

func (pickyCodec) Encode(v string) ([]byte, error) {
	if v == "unencodable" {
		return nil, errPicky
	}
	return []byte(strings.ToUpper(v)), nil
}

func (pickyCodec) Decode(b []byte) (string, error) {
	if string(b) == "POISON" {
		return "", errPicky
	}
	return strings.ToLower(string(b)), nil
}
