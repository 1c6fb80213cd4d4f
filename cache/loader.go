package cache

import "context"

// GetOrLoad returns the value for key, calling Options.Loader on a miss and
// storing the result with opts. Concurrent misses for the same key share a
// single Loader call; a follower whose ctx ends returns ctx.Err() while the
// load continues for the others.
func (s *Store[V]) GetOrLoad(ctx context.Context, key string, opts ...SetOption) (V, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}
	var zero V
	if s.closed.Load() {
		return zero, ErrClosed
	}
	if s.opt.Loader == nil {
		return zero, ErrNoLoader
	}
	return s.sf.Do(ctx, key, func() (V, error) {
		// Another leader may have stored the value between our miss and now.
		if v, ok := s.peek(key); ok {
			return v, nil
		}
		v, err := s.opt.Loader(ctx, key)
		if err != nil {
			return zero, err
		}
		s.Set(key, v, opts...)
		return v, nil
	})
}
