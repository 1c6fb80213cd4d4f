package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/tagcache/cache"
	"github.com/IvanBrykalov/tagcache/config"
	pmet "github.com/IvanBrykalov/tagcache/metrics/prom"
)

type benchFlags struct {
	capacity int
	policy   string
	workers  int
	duration time.Duration
	readPct  int
	tagPct   int
	tags     int
	ttl      time.Duration

	keys    int
	zipfS   float64
	zipfV   float64
	seed    int64
	preload int

	pprofAddr   string
	metricsAddr string
}

func newBenchCmd() *cobra.Command {
	var f benchFlags
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a synthetic Zipf workload against an in-memory store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.capacity, "cap", 100_000, "cache capacity (entries)")
	fl.StringVar(&f.policy, "policy", config.PolicyLRU, "eviction policy: lru | 2q")
	fl.IntVar(&f.workers, "workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
	fl.DurationVar(&f.duration, "duration", 10*time.Second, "benchmark duration")
	fl.IntVar(&f.readPct, "reads", 80, "read percentage [0..100]")
	fl.IntVar(&f.tagPct, "tag-deletes", 0, "per-mille of operations that invalidate a tag [0..1000]")
	fl.IntVar(&f.tags, "tags", 64, "number of distinct tags spread over the keys")
	fl.DurationVar(&f.ttl, "ttl", 0, "TTL of written entries (0 = cache default)")
	fl.IntVar(&f.keys, "keys", 1_000_000, "keyspace size")
	fl.Float64Var(&f.zipfS, "zipf-s", 1.1, "Zipf s > 1 (skew)")
	fl.Float64Var(&f.zipfV, "zipf-v", 1.0, "Zipf v")
	fl.Int64Var(&f.seed, "seed", time.Now().UnixNano(), "random seed")
	fl.IntVar(&f.preload, "preload", 0, "preload entries (0 = cap/2)")
	fl.StringVar(&f.pprofAddr, "pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	fl.StringVar(&f.metricsAddr, "http", "", "serve Prometheus metrics at addr; empty = disabled")
	return cmd
}

func runBench(cmd *cobra.Command, f benchFlags) error {
	if f.keys < 2 {
		return fmt.Errorf("--keys must be at least 2, got %d", f.keys)
	}
	if f.zipfS <= 1 {
		return fmt.Errorf("--zipf-s must be > 1, got %v", f.zipfS)
	}
	if f.tags < 1 {
		f.tags = 1
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	if f.pprofAddr != "" {
		go func() {
			log.Info().Str("addr", f.pprofAddr).Msg("pprof: serving")
			log.Warn().Err(http.ListenAndServe(f.pprofAddr, nil)).Msg("pprof stopped")
		}()
	}

	reg := prometheus.NewRegistry()
	metrics, err := pmet.New(reg, "tagcache", "bench", nil)
	if err != nil {
		return err
	}
	if f.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			log.Info().Str("addr", f.metricsAddr).Msg("metrics: serving")
			log.Warn().Err(http.ListenAndServe(f.metricsAddr, mux)).Msg("metrics stopped")
		}()
	}

	opt := cache.Options[string]{
		MaxSize:       f.capacity,
		SweepInterval: -1,
		Metrics:       metrics,
		Logger:        &log,
	}
	switch f.policy {
	case config.PolicyLRU:
	case config.Policy2Q:
		opt.Policy = config.TwoQ(f.capacity)
	default:
		return fmt.Errorf("unknown policy %q (use lru or 2q)", f.policy)
	}
	c, err := cache.New(cmd.Context(), opt)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	tagOf := func(k uint64) string { return "t:" + strconv.FormatUint(k%uint64(f.tags), 10) }

	pl := f.preload
	if pl == 0 {
		pl = f.capacity / 2
	}
	for i := 0; i < pl; i++ {
		c.Set("k:"+strconv.Itoa(i), "v"+strconv.Itoa(i), cache.WithTags(tagOf(uint64(i))))
	}

	workersN := f.workers
	if workersN <= 0 {
		workersN = 1
	}
	keysMax := uint64(f.keys - 1)

	var reads, writes, hits, misses, invalidated, total atomic.Uint64
	ctx, cancel := context.WithTimeout(cmd.Context(), f.duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// rand.Rand is not goroutine-safe.
			r := rand.New(rand.NewSource(f.seed + int64(id)*9973))
			zipf := rand.NewZipf(r, f.zipfS, f.zipfV, keysMax)

			for ctx.Err() == nil {
				total.Add(1)
				n := zipf.Uint64()
				k := "k:" + strconv.FormatUint(n, 10)

				switch {
				case f.tagPct > 0 && int(r.Int31n(1000)) < f.tagPct:
					invalidated.Add(uint64(c.DeleteByTag(tagOf(n))))
				case int(r.Int31n(100)) < f.readPct:
					reads.Add(1)
					if _, ok := c.Get(k); ok {
						hits.Add(1)
					} else {
						misses.Add(1)
					}
				default:
					writes.Add(1)
					c.Set(k, "v"+strconv.Itoa(r.Int()), cache.WithTTL(f.ttl), cache.WithTags(tagOf(n)))
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	ops := total.Load()
	readsN := reads.Load()
	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hits.Load()) / float64(readsN) * 100
	}
	st := c.Stats()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "policy=%s cap=%d workers=%d keys=%d tags=%d dur=%v seed=%d\n",
		f.policy, f.capacity, workersN, f.keys, f.tags, elapsed, f.seed)
	fmt.Fprintf(out, "ops=%d (%.0f ops/s)  reads=%d  writes=%d  tag-invalidated=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writes.Load(), invalidated.Load())
	fmt.Fprintf(out, "hits=%d  misses=%d  hit-rate=%.2f%%\n", hits.Load(), misses.Load(), hitRate)
	fmt.Fprintf(out, "size=%d  evictions=%d  memory=%dB\n", st.Size, st.Evictions, st.MemoryUsage)
	return nil
}
