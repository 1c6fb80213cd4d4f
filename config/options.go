package config

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/IvanBrykalov/tagcache/cache"
	"github.com/IvanBrykalov/tagcache/codec"
	"github.com/IvanBrykalov/tagcache/durable"
	"github.com/IvanBrykalov/tagcache/policy"
	"github.com/IvanBrykalov/tagcache/policy/twoq"
	"github.com/IvanBrykalov/tagcache/schedule"
)

// CacheOptions builds cache.Options from c. d may be nil (no persistence)
// and log may be nil. The returned release func frees resources held by
// the options (cron runner, zstd codec); call it after closing the store.
func CacheOptions[V any](c Config, d durable.Store, log *zerolog.Logger) (cache.Options[V], func(), error) {
	var closers []func()
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opt := cache.Options[V]{
		MaxSize:        c.Cache.MaxSize,
		DefaultTTL:     c.Cache.DefaultTTL,
		SweepInterval:  c.Cache.SweepInterval,
		Durable:        d,
		SnapshotKey:    c.Persistence.Key,
		PersistDelay:   c.Persistence.Delay,
		MaxSnapshotAge: c.Persistence.MaxAge,
		Logger:         log,
	}

	switch c.Cache.Codec {
	case CodecNone:
	case CodecJSON:
		opt.Codec = codec.JSON[V]{}
	case CodecGob:
		opt.Codec = codec.Gob[V]{}
	case CodecZstd:
		z, err := codec.NewZstd[V](codec.Gob[V]{}, zstd.SpeedDefault)
		if err != nil {
			return cache.Options[V]{}, release, err
		}
		opt.Codec = z
		closers = append(closers, func() { _ = z.Close() })
	default:
		return cache.Options[V]{}, release, fmt.Errorf("%w: unknown codec %q", ErrInvalid, c.Cache.Codec)
	}

	switch c.Cache.Policy {
	case "", PolicyLRU:
	case Policy2Q:
		opt.Policy = TwoQ(c.Cache.MaxSize)
	default:
		release()
		return cache.Options[V]{}, func() {}, fmt.Errorf("%w: unknown policy %q", ErrInvalid, c.Cache.Policy)
	}

	if c.Cache.SweepCron != "" {
		cr, err := schedule.NewCron(c.Cache.SweepCron)
		if err != nil {
			release()
			return cache.Options[V]{}, func() {}, err
		}
		opt.Scheduler = cr
		closers = append(closers, cr.Close)
		if opt.SweepInterval <= 0 {
			// The cron expression decides the cadence; any positive value enables the sweeper.
			opt.SweepInterval = cache.DefaultSweepInterval
		}
	}
	return opt, release, nil
}

// TwoQ sizes a 2Q policy for maxSize entries: A1in gets a quarter and
// the ghost list half.
func TwoQ(maxSize int) policy.Policy {
	return twoq.New(maxSize/4, maxSize/2)
}
