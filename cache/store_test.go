package cache

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"testing"
	"time"
)

func TestNew_RejectsInvalidOptions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		opt  Options[int]
		want error
	}{
		{"zero max size", Options[int]{}, ErrInvalidMaxSize},
		{"negative max size", Options[int]{MaxSize: -1}, ErrInvalidMaxSize},
		{"max size too large", Options[int]{MaxSize: MaxEntries + 1}, ErrMaxSizeTooLarge},
		{"negative persist delay", Options[int]{MaxSize: 1, PersistDelay: -time.Second}, ErrInvalidInterval},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(context.Background(), tc.opt)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
			if s != nil {
				t.Fatal("store must be nil on error")
			}
		})
	}
}

// Basic Set/Get/Delete semantics.
func TestStore_BasicSetGetDelete(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, Options[int]{MaxSize: 8})

	s.Set("a", 1)
	s.Set("a", 11)
	if v, ok := s.Get("a"); !ok || v != 11 {
		t.Fatalf("Get a want 11, got %v ok=%v", v, ok)
	}
	if !s.Delete("a") {
		t.Fatal("Delete a must be true")
	}
	if s.Delete("a") {
		t.Fatal("second Delete a must be false")
	}
	if _, ok := s.Get("a"); ok {
		t.Fatal("a must be absent after Delete")
	}
	if s.Len() != 0 {
		t.Fatalf("Len want 0, got %d", s.Len())
	}
}

// Accessing "a" promotes it; inserting "c" evicts the LRU entry ("b").
func TestStore_EvictionLRU(t *testing.T) {
	t.Parallel()

	type evicted struct {
		key    string
		reason EvictReason
	}
	var got []evicted
	s, clk := newTestStore(t, Options[int]{
		MaxSize: 2,
		OnEvict: func(k string, _ int, r EvictReason) { got = append(got, evicted{k, r}) },
	})

	s.Set("a", 1)
	clk.Advance(time.Millisecond)
	s.Set("b", 2)
	clk.Advance(time.Millisecond)
	if _, ok := s.Get("a"); !ok {
		t.Fatal("expect hit for a")
	}
	s.Set("c", 3)

	if _, ok := s.Get("b"); ok {
		t.Fatal("b should have been evicted as LRU")
	}
	if !s.Has("a") || !s.Has("c") {
		t.Fatal("a and c must remain")
	}
	if len(got) != 1 || got[0] != (evicted{"b", EvictCapacity}) {
		t.Fatalf("OnEvict calls = %+v", got)
	}
	if st := s.Stats(); st.Evictions != 1 {
		t.Fatalf("Evictions want 1, got %d", st.Evictions)
	}
}

func TestStore_CapacityInvariant(t *testing.T) {
	t.Parallel()

	const maxSize = 10
	s, _ := newTestStore(t, Options[string]{MaxSize: maxSize})

	for i := 0; i < 100; i++ {
		s.Set("k"+strconv.Itoa(i), "v")
		if n := s.Len(); n > maxSize {
			t.Fatalf("Len %d exceeds MaxSize after %d sets", n, i+1)
		}
	}
	if st := s.Stats(); st.Evictions != 90 || st.Size != maxSize {
		t.Fatalf("stats = %+v", st)
	}
	// The survivors are the ten most recent keys.
	for i := 90; i < 100; i++ {
		if !s.Has("k" + strconv.Itoa(i)) {
			t.Fatalf("k%d should be resident", i)
		}
	}
}

// Overwriting a resident key at capacity replaces the entry without evicting.
func TestStore_OverwriteReplacesEntry(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore(t, Options[string]{MaxSize: 2})

	s.Set("a", "1", WithTags("x"), WithTTL(time.Second))
	s.Set("b", "2")
	s.Get("a")
	clk.Advance(900 * time.Millisecond)
	s.Set("a", "1*", WithTags("y"))

	if s.Len() != 2 || s.Stats().Evictions != 0 {
		t.Fatal("overwrite must not evict")
	}
	if n := s.DeleteByTag("x"); n != 0 {
		t.Fatalf("old tags must be discarded, removed %d", n)
	}
	// The replacement uses the default TTL, not the old 1s window.
	clk.Advance(time.Second)
	if v, ok := s.Get("a"); !ok || v != "1*" {
		t.Fatalf("Get a = %q, %v", v, ok)
	}
	if n := s.DeleteByTag("y"); n != 1 {
		t.Fatalf("DeleteByTag y want 1, got %d", n)
	}
}

// An expired entry is a miss even if no sweep has run.
func TestStore_LazyExpiration(t *testing.T) {
	t.Parallel()

	m := newRecMetrics()
	s, clk := newTestStore(t, Options[string]{MaxSize: 4, Metrics: m})

	s.Set("x", "v", WithTTL(100*time.Millisecond))
	if _, ok := s.Get("x"); !ok {
		t.Fatal("fresh miss")
	}
	clk.Advance(150 * time.Millisecond)

	if s.Has("x") {
		t.Fatal("Has must report expired entry as absent")
	}
	if s.Len() != 1 {
		t.Fatal("Has must not remove the entry")
	}
	if _, ok := s.Get("x"); ok {
		t.Fatal("expired hit")
	}
	if s.Len() != 0 {
		t.Fatal("Get must remove the expired entry")
	}
	st := s.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Expirations != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if m.evicts[EvictExpired] != 1 {
		t.Fatalf("metrics evicts = %v", m.evicts)
	}
}

// The boundary is strict: an entry is still live exactly at ttl.
func TestStore_ExpirationBoundary(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore(t, Options[int]{MaxSize: 4})
	s.Set("x", 1, WithTTL(time.Second))
	clk.Advance(time.Second)
	if !s.Has("x") {
		t.Fatal("entry must be live at exactly ttl")
	}
	clk.Advance(time.Millisecond)
	if s.Has("x") {
		t.Fatal("entry must be expired after ttl")
	}
}

func TestStore_DefaultTTL(t *testing.T) {
	t.Parallel()

	t.Run("built-in default", func(t *testing.T) {
		s, clk := newTestStore(t, Options[int]{MaxSize: 4})
		s.Set("x", 1)
		clk.Advance(DefaultTTL)
		if !s.Has("x") {
			t.Fatal("entry must live for DefaultTTL")
		}
		clk.Advance(time.Millisecond)
		if s.Has("x") {
			t.Fatal("entry must expire after DefaultTTL")
		}
	})

	t.Run("negative default never expires", func(t *testing.T) {
		s, clk := newTestStore(t, Options[int]{MaxSize: 4, DefaultTTL: -1})
		s.Set("x", 1)
		clk.Advance(365 * 24 * time.Hour)
		if !s.Has("x") {
			t.Fatal("entry without TTL must not expire")
		}
	})

	t.Run("negative WithTTL overrides default", func(t *testing.T) {
		s, clk := newTestStore(t, Options[int]{MaxSize: 4, DefaultTTL: time.Second})
		s.Set("x", 1, WithTTL(-1))
		s.Set("y", 1, WithTTL(0)) // zero keeps the default
		clk.Advance(time.Hour)
		if !s.Has("x") {
			t.Fatal("x must not expire")
		}
		if s.Has("y") {
			t.Fatal("y must use the 1s default")
		}
	})
}

func TestStore_HasDoesNotMutate(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, Options[int]{MaxSize: 2})
	s.Set("a", 1)
	s.Set("b", 2)

	// Has on a must not promote it: c evicts a.
	if !s.Has("a") || s.Has("zzz") {
		t.Fatal("unexpected Has result")
	}
	s.Set("c", 3)
	if s.Has("a") {
		t.Fatal("Has must not promote")
	}
	if st := s.Stats(); st.Hits != 0 || st.Misses != 0 {
		t.Fatalf("Has must not count lookups: %+v", st)
	}
}

// Only a successful Get updates accessCount and lastAccessedAt.
func TestStore_GetUpdatesAccessMetadata(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore(t, Options[int]{MaxSize: 4})
	s.Set("a", 1)
	clk.Advance(time.Second)
	s.Get("a")
	s.Get("a")
	s.Has("a")
	s.Keys()

	s.mu.Lock()
	e := s.items["a"]
	count, last := e.accessCount, e.lastAccessedAt
	s.mu.Unlock()

	if count != 2 {
		t.Fatalf("accessCount want 2, got %d", count)
	}
	if !last.Equal(epoch.Add(time.Second)) {
		t.Fatalf("lastAccessedAt = %v", last)
	}
}

// Invalidating "x" removes only entries tagged "x".
func TestStore_DeleteByTag(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, Options[string]{MaxSize: 8})
	s.Set("a", "v", WithTags("x"))
	s.Set("b", "v", WithTags("y"))
	s.Set("c", "v", WithTags("y", "x", "x"))

	if n := s.DeleteByTag("x"); n != 2 {
		t.Fatalf("DeleteByTag want 2, got %d", n)
	}
	if s.Has("a") || s.Has("c") || !s.Has("b") {
		t.Fatal("wrong entries removed")
	}
	if n := s.DeleteByTag("x"); n != 0 {
		t.Fatalf("second DeleteByTag want 0, got %d", n)
	}
	if n := s.DeleteByTag(""); n != 0 {
		t.Fatalf("empty tag want 0, got %d", n)
	}
}

func TestStore_DeleteByTag_Single(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, Options[string]{MaxSize: 8})
	s.Set("a", "v", WithTags("x"))
	s.Set("b", "v", WithTags("y"))
	if n := s.DeleteByTag("x"); n != 1 {
		t.Fatalf("want 1, got %d", n)
	}
	if _, ok := s.Get("a"); ok {
		t.Fatal("a must be gone")
	}
	if _, ok := s.Get("b"); !ok {
		t.Fatal("b must remain")
	}
}

func TestStore_ClearResetsCounters(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, Options[int]{MaxSize: 1})
	s.Set("a", 1)
	s.Set("b", 2) // evicts a
	s.Get("b")
	s.Get("a")

	s.Clear()
	st := s.Stats()
	if st != (Stats{}) {
		t.Fatalf("stats after Clear = %+v", st)
	}
	if len(s.Keys()) != 0 {
		t.Fatal("Keys must be empty after Clear")
	}
	// The store keeps working after Clear.
	s.Set("c", 3)
	if v, ok := s.Get("c"); !ok || v != 3 {
		t.Fatal("store unusable after Clear")
	}
}

func TestStore_Touch(t *testing.T) {
	t.Parallel()

	t.Run("restarts the ttl window", func(t *testing.T) {
		s, clk := newTestStore(t, Options[string]{MaxSize: 4})
		s.Set("a", "v", WithTTL(100*time.Millisecond))
		clk.Advance(80 * time.Millisecond)
		if !s.Touch("a") {
			t.Fatal("Touch must report an existing key")
		}
		clk.Advance(80 * time.Millisecond)
		if v, ok := s.Get("a"); !ok || v != "v" {
			t.Fatal("touched entry must still be live")
		}
	})

	t.Run("replaces the ttl", func(t *testing.T) {
		s, clk := newTestStore(t, Options[string]{MaxSize: 4})
		s.Set("a", "v", WithTTL(time.Hour))
		s.Touch("a", WithNewTTL(10*time.Millisecond))
		clk.Advance(20 * time.Millisecond)
		if s.Has("a") {
			t.Fatal("new ttl must apply")
		}
	})

	t.Run("absent and expired", func(t *testing.T) {
		s, clk := newTestStore(t, Options[string]{MaxSize: 4})
		if s.Touch("zzz") {
			t.Fatal("Touch on absent key must be false")
		}
		s.Set("a", "v", WithTTL(time.Millisecond))
		clk.Advance(2 * time.Millisecond)
		if s.Touch("a") {
			t.Fatal("Touch on expired key must be false")
		}
		if s.Len() != 0 {
			t.Fatal("expired entry must be removed by Touch")
		}
	})

	t.Run("does not promote", func(t *testing.T) {
		s, _ := newTestStore(t, Options[string]{MaxSize: 2})
		s.Set("a", "v")
		s.Set("b", "v")
		s.Touch("a")
		s.Set("c", "v")
		if s.Has("a") {
			t.Fatal("Touch must not promote a")
		}
		if st := s.Stats(); st.Hits != 0 {
			t.Fatal("Touch must not count a hit")
		}
	})
}

func TestStore_KeysOrderAndExpiry(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore(t, Options[int]{MaxSize: 8})
	s.Set("a", 1)
	s.Set("b", 2, WithTTL(time.Millisecond))
	s.Set("c", 3)
	s.Get("a")
	clk.Advance(2 * time.Millisecond)

	want := []string{"a", "c"}
	if got := s.Keys(); !slices.Equal(got, want) {
		t.Fatalf("Keys = %v, want %v", got, want)
	}
}

func TestStore_MGetMSet(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, Options[int]{MaxSize: 8})
	s.MSet(map[string]int{"a": 1, "b": 2, "c": 3}, WithTags("batch"))

	got := s.MGet("a", "c", "zzz")
	if len(got) != 2 || got["a"] != 1 || got["c"] != 3 {
		t.Fatalf("MGet = %v", got)
	}
	if st := s.Stats(); st.Hits != 2 || st.Misses != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if n := s.DeleteByTag("batch"); n != 3 {
		t.Fatalf("MSet must apply tags to every key, removed %d", n)
	}
}

// MSet over capacity evicts in sorted key order.
func TestStore_MSetDeterministicEviction(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, Options[int]{MaxSize: 2})
	s.MSet(map[string]int{"c": 3, "a": 1, "b": 2})
	if s.Has("a") || !s.Has("b") || !s.Has("c") {
		t.Fatalf("Keys = %v", s.Keys())
	}
}

// After n hits and m misses, HitRate == n/(n+m)*100.
func TestStore_HitRate(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, Options[int]{MaxSize: 4})
	if st := s.Stats(); st.HitRate != 0 {
		t.Fatalf("HitRate without lookups = %v", st.HitRate)
	}
	s.Set("a", 1)
	for i := 0; i < 3; i++ {
		s.Get("a")
	}
	s.Get("b")
	if st := s.Stats(); st.HitRate != 75 {
		t.Fatalf("HitRate want 75, got %v", st.HitRate)
	}
}

func TestStore_StatsTimesAndMemory(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore(t, Options[string]{MaxSize: 8})
	if st := s.Stats(); !st.OldestItem.IsZero() || !st.NewestItem.IsZero() || st.MemoryUsage != 0 {
		t.Fatalf("empty stats = %+v", st)
	}

	s.Set("a", "small")
	m1 := s.Stats().MemoryUsage
	clk.Advance(time.Second)
	s.Set("b", string(make([]byte, 4096)))
	st := s.Stats()

	if !st.OldestItem.Equal(epoch) || !st.NewestItem.Equal(epoch.Add(time.Second)) {
		t.Fatalf("oldest/newest = %v / %v", st.OldestItem, st.NewestItem)
	}
	if st.MemoryUsage <= m1+4096 {
		t.Fatalf("MemoryUsage must grow with load: %d then %d", m1, st.MemoryUsage)
	}
	s.Delete("b")
	if got := s.Stats().MemoryUsage; got != m1 {
		t.Fatalf("MemoryUsage after delete want %d, got %d", m1, got)
	}
}

func TestStore_CostOverride(t *testing.T) {
	t.Parallel()

	m := newRecMetrics()
	s, _ := newTestStore(t, Options[[]int]{
		MaxSize: 4,
		Cost:    func(v []int) int { return 8 * len(v) },
		Metrics: m,
	})
	s.Set("k", make([]int, 100))
	want := int64(entryOverhead + len("k") + 800)
	if got := s.Stats().MemoryUsage; got != want {
		t.Fatalf("MemoryUsage want %d, got %d", want, got)
	}
	if m.entries != 1 || m.cost != want {
		t.Fatalf("metrics size = %d/%d", m.entries, m.cost)
	}
}

func TestStore_Codec(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, Options[string]{MaxSize: 4, Codec: pickyCodec{}})

	s.Set("a", "hello")
	if v, ok := s.Get("a"); !ok || v != "hello" {
		t.Fatalf("Get a = %q, %v", v, ok)
	}

	// Encode failure leaves the previous entry in place.
	s.Set("a", "unencodable")
	if v, ok := s.Get("a"); !ok || v != "hello" {
		t.Fatalf("previous value lost: %q, %v", v, ok)
	}

	// Decode failure drops the entry and counts a miss.
	s.Set("p", "poison")
	if _, ok := s.Get("p"); ok {
		t.Fatal("undecodable entry must be a miss")
	}
	if s.Has("p") {
		t.Fatal("undecodable entry must be removed")
	}
	if st := s.Stats(); st.Misses != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestStore_Sweep(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore(t, Options[int]{MaxSize: 8})
	s.Set("a", 1, WithTTL(time.Second))
	s.Set("b", 2, WithTTL(time.Minute))
	s.Set("c", 3, WithTTL(-1))

	if n := s.Sweep(); n != 0 {
		t.Fatalf("nothing expired yet, swept %d", n)
	}
	clk.Advance(2 * time.Second)
	if n := s.Sweep(); n != 1 {
		t.Fatalf("Sweep want 1, got %d", n)
	}
	if s.Len() != 2 || s.Stats().Expirations != 1 {
		t.Fatal("sweep bookkeeping wrong")
	}
}

func TestStore_BackgroundSweeper(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore(t, Options[int]{MaxSize: 8, SweepInterval: time.Second})
	s.Set("a", 1, WithTTL(500*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("sweeper ticker not registered: %v", err)
	}
	clk.Advance(time.Second)

	deadline := time.Now().Add(time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not remove the expired entry")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStore_GetOrLoad(t *testing.T) {
	t.Parallel()

	calls := 0
	boom := errors.New("boom")
	s, clk := newTestStore(t, Options[string]{
		MaxSize: 4,
		Loader: func(_ context.Context, k string) (string, error) {
			calls++
			if k == "bad" {
				return "", boom
			}
			return "v:" + k, nil
		},
	})
	ctx := context.Background()

	v, err := s.GetOrLoad(ctx, "k", WithTTL(time.Second), WithTags("loaded"))
	if err != nil || v != "v:k" {
		t.Fatalf("GetOrLoad = %q, %v", v, err)
	}
	if v, err = s.GetOrLoad(ctx, "k"); err != nil || v != "v:k" || calls != 1 {
		t.Fatalf("second GetOrLoad must hit: %q, %v, calls=%d", v, err, calls)
	}
	if _, err := s.GetOrLoad(ctx, "bad"); !errors.Is(err, boom) {
		t.Fatalf("want loader error, got %v", err)
	}
	if s.Has("bad") {
		t.Fatal("failed load must not be stored")
	}

	// Options apply to the stored value.
	clk.Advance(2 * time.Second)
	if s.Has("k") {
		t.Fatal("loaded entry must use WithTTL")
	}
}

func TestStore_GetOrLoad_NoLoader(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, Options[int]{MaxSize: 4})
	if _, err := s.GetOrLoad(context.Background(), "k"); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("want ErrNoLoader, got %v", err)
	}
	s.Set("k", 1)
	if v, err := s.GetOrLoad(context.Background(), "k"); err != nil || v != 1 {
		t.Fatalf("resident key must be returned without a loader: %v, %v", v, err)
	}
}

func TestStore_ClosedIsInert(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, Options[int]{MaxSize: 4, Loader: func(context.Context, string) (int, error) { return 1, nil }})
	s.Set("a", 1)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	s.Set("b", 2)
	if _, ok := s.Get("a"); ok {
		t.Fatal("Get after Close must miss")
	}
	if s.Has("a") || s.Delete("a") || s.Touch("a") || s.Keys() != nil {
		t.Fatal("operations after Close must be no-ops")
	}
	if _, err := s.GetOrLoad(context.Background(), "x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}
