package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	"github.com/keyhub-gw/keyhub/internal/auth"
	"github.com/keyhub-gw/keyhub/internal/balancer"
	"github.com/keyhub-gw/keyhub/internal/checker"
	"github.com/keyhub-gw/keyhub/internal/config"
	"github.com/keyhub-gw/keyhub/internal/provider"
	"github.com/keyhub-gw/keyhub/internal/proxydial"
	"github.com/keyhub-gw/keyhub/internal/ratelimit"
	"github.com/keyhub-gw/keyhub/internal/scheduler"
	"github.com/keyhub-gw/keyhub/internal/server"
	"github.com/keyhub-gw/keyhub/internal/storage/sqlite"
	"github.com/keyhub-gw/keyhub/internal/telemetry"
	"github.com/keyhub-gw/keyhub/internal/worker"
)

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	setupLogging(cfg.Logging)
	slog.Info("starting keyhub", "version", version, "addr", cfg.Server.Addr)

	ctx := context.Background()

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer shutdown(context.Background()) //nolint:errcheck
	}

	// Metrics
	var metrics *telemetry.Metrics
	var metricsPage http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		metrics = telemetry.NewMetrics(reg)
		metricsPage = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Open database
	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	// Shared outbound transport with cached DNS
	resolver := &dnscache.Resolver{}
	transport := provider.NewTransport(resolver)

	// Wire services
	tokenAuth, err := auth.NewTokenAuth(store)
	if err != nil {
		return err
	}
	limiter := ratelimit.NewRegistry()
	dialer := proxydial.NewDialer()
	chk := checker.New(store, dialer, transport)
	sched := scheduler.New(chk, cfg.Checker.Schedule)

	var queueGauge worker.QueueGauge
	if metrics != nil {
		queueGauge = metrics.LogQueueLength
	}
	recorder := worker.NewLogRecorder(store, queueGauge)

	if cfg.Checker.IsEnabled() {
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
	}

	handler := server.New(server.Deps{
		Store:       store,
		Auth:        tokenAuth,
		RateLimiter: limiter,
		Balancer:    balancer.New(),
		Dialer:      dialer,
		Checks:      sched,
		Recorder:    recorder,
		Transport:   transport,
		Metrics:     metrics,
		MetricsPage: metricsPage,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background workers: the log recorder plus periodic housekeeping.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	runner := worker.NewRunner(recorder, &housekeeper{limiter: limiter, resolver: resolver})
	workerDone := make(chan error, 1)
	go func() { workerDone <- runner.Run(workerCtx) }()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("keyhub ready", "addr", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		stopWorkers()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Stop workers after the server drains so in-flight relays still log.
	stopWorkers()
	if err := <-workerDone; err != nil {
		slog.Error("worker shutdown", "error", err)
	}

	slog.Info("keyhub stopped")
	return nil
}

func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// housekeeper periodically evicts idle rate-limit windows and refreshes the
// DNS cache.
type housekeeper struct {
	limiter  *ratelimit.Registry
	resolver *dnscache.Resolver
}

func (h *housekeeper) Name() string { return "housekeeper" }

func (h *housekeeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.limiter.EvictStale(time.Now().Add(-ratelimit.Window))
			h.resolver.Refresh(true)
		case <-ctx.Done():
			return nil
		}
	}
}
