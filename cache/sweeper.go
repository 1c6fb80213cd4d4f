package cache

// Sweep removes every expired entry and returns how many were removed.
// The background sweeper calls it every Options.SweepInterval; it can also
// be invoked directly.
func (s *Store[V]) Sweep() int {
	if s.closed.Load() {
		return 0
	}
	now := s.clock.Now()
	n := 0

	s.mu.Lock()
	for e := s.tail; e != nil; {
		prev := e.prev
		if e.expired(now) {
			s.evictLocked(e, EvictExpired)
			n++
		}
		e = prev
	}
	if n > 0 {
		s.reportSizeLocked()
	}
	size := len(s.items)
	s.mu.Unlock()

	if n > 0 {
		s.markDirty()
	}
	s.log.Debug().Int("removed", n).Int("size", size).Msg("expiration sweep")
	return n
}
