package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/api"
	"github.com/xraph/resthook/observability"
	"github.com/xraph/resthook/ratelimit"
)

func newServeCmd(cfg *daemonConfig) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the REST-Hook API and the delivery engine",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var extra []resthook.Option
			reg := prometheus.NewRegistry()
			if cfg.Metrics.Enabled {
				metrics := observability.NewMetrics(gu.NewMetricsCollector("resthook"))
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
					observability.NewCollector(metrics),
				)
				extra = append(extra, resthook.WithMetrics(metrics))
			}

			r, s, err := openRelay(ctx, cfg, logger, extra...)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Migrate(ctx); err != nil {
				return err
			}

			limiter := ratelimit.New(cfg.RateLimit.PerMinute)

			mux := http.NewServeMux()
			if cfg.Metrics.Enabled {
				mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			}
			mux.Handle("/", api.NewHandler(r, limiter, logger))

			srv := &http.Server{
				Addr:         cfg.HTTP.Addr,
				Handler:      mux,
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
				IdleTimeout:  cfg.HTTP.IdleTimeout,
			}

			r.Start(ctx)
			go sweepLimiter(ctx, limiter)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("resthookd listening",
					"addr", cfg.HTTP.Addr,
					"store", cfg.Store.Driver,
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					logger.Error("http server failed", "error", err)
				}
			}

			logger.Info("resthookd shutting down")

			shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout+5*time.Second)
			defer stop()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", "error", err)
			}
			return r.Stop(shutdownCtx)
		},
	}
}

// sweepLimiter drops idle tenant buckets so the limiter does not grow with
// every tenant ever seen.
func sweepLimiter(ctx context.Context, l *ratelimit.Limiter) {
	if !l.Enabled() {
		return
	}

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(10 * time.Minute)
		}
	}
}
