package cache

import "time"

// Stats is a point-in-time report of the store.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`

	// HitRate is hits/(hits+misses)*100, or 0 before the first lookup.
	HitRate float64 `json:"hitRate"`

	// MemoryUsage is an estimate in bytes; it tracks load, not exact heap usage.
	MemoryUsage int64 `json:"memoryUsage"`

	// OldestItem and NewestItem are the min/max createdAt over resident
	// entries; zero when the store is empty.
	OldestItem time.Time `json:"oldestItem"`
	NewestItem time.Time `json:"newestItem"`

	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}

// Stats returns the current report.
func (s *Store[V]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Size:        len(s.items),
		MemoryUsage: s.cost,
		Evictions:   s.evictions.Load(),
		Expirations: s.expirations.Load(),
	}
	st.HitRate = hitRate(st.Hits, st.Misses)
	for _, e := range s.items {
		if st.OldestItem.IsZero() || e.createdAt.Before(st.OldestItem) {
			st.OldestItem = e.createdAt
		}
		if e.createdAt.After(st.NewestItem) {
			st.NewestItem = e.createdAt
		}
	}
	return st
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}
