package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/tagcache/cache"
	"github.com/IvanBrykalov/tagcache/config"
	"github.com/IvanBrykalov/tagcache/internal/httpapi"
	"github.com/IvanBrykalov/tagcache/internal/logging"
	pmet "github.com/IvanBrykalov/tagcache/metrics/prom"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cache over a JSON HTTP API",
		Long: `Serve a cache of JSON values over HTTP.

The API lives under /v1 and Prometheus metrics under /metrics (when enabled).
The last snapshot is restored on start and written again on shutdown.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithComponent(logging.WithContext(ctx, log), "serve")

	return serve(ctx, cfg, nil)
}

// serve runs the API until ctx is done. A non-nil ln is used instead of
// listening on cfg.Server.Addr.
func serve(ctx context.Context, cfg config.Config, ln net.Listener) error {
	log := logging.FromContext(ctx)

	d, err := config.OpenDurable(ctx, cfg.Persistence)
	if err != nil {
		return fmt.Errorf("open persistence backend: %w", err)
	}
	if d != nil {
		defer func() {
			if err := d.Close(); err != nil {
				log.Warn().Err(err).Msg("close persistence backend")
			}
		}()
	}

	opt, release, err := config.CacheOptions[json.RawMessage](cfg, d, log)
	if err != nil {
		return err
	}
	defer release()

	reg := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := pmet.New(reg, cfg.Metrics.Namespace, cfg.Metrics.Subsystem, nil)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		opt.Metrics = m
	}

	store, err := cache.New(ctx, opt)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("final snapshot failed")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/v1/", httpapi.New(store, *log))
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if ln == nil {
		ln, err = net.Listen("tcp", cfg.Server.Addr)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", ln.Addr().String()).
			Str("backend", cfg.Persistence.Backend).
			Int("max_size", cfg.Cache.MaxSize).
			Msg("serving")
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
