// Package main provides the WebReg scraper server entry point: the
// enrollment tracker plus the HTTP API gateway in front of it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ucsd-tools/webreg-scraper/internal/authstore"
	"github.com/ucsd-tools/webreg-scraper/internal/buildinfo"
	"github.com/ucsd-tools/webreg-scraper/internal/config"
	"github.com/ucsd-tools/webreg-scraper/internal/logger"
	"github.com/ucsd-tools/webreg-scraper/internal/metrics"
	"github.com/ucsd-tools/webreg-scraper/internal/sentry"
	"github.com/ucsd-tools/webreg-scraper/internal/server"
	"github.com/ucsd-tools/webreg-scraper/internal/state"
	"github.com/ucsd-tools/webreg-scraper/internal/tracker"
)

func main() {
	if len(os.Args) < 2 {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s <config.json>\n", os.Args[0])
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(os.Args[1])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel)
	log.WithField("config", cfg.ConfigName).Info("Starting WebReg scraper")

	// Initialize Sentry (no-op without a DSN)
	if err := sentry.Initialize(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: "production",
		Release:     buildinfo.Version,
	}); err != nil {
		log.WithError(err).Error("Failed to initialize Sentry")
	}
	defer sentry.Flush(2 * time.Second)

	// Create Prometheus registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewBuildInfoCollector())
	m := metrics.New(registry)

	// Open the API key store when authentication is enabled
	var keys *authstore.Store
	if cfg.AuthEnabled {
		keys, err = authstore.New(cfg.AuthDBPath)
		if err != nil {
			log.WithError(err).Error("Failed to open key database")
			os.Exit(1)
		}
		defer func() { _ = keys.Close() }()
		log.WithField("path", cfg.AuthDBPath).Info("Authentication enabled")
	} else {
		log.Info("Authentication disabled")
	}

	// Build shared state and start the tracker
	st := state.New(cfg, log, m, keys)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trk := tracker.New(st, log, cfg.DataDir)
	go func() {
		trk.Run(ctx)
		if !st.ShouldStop() {
			// The tracker only exits on its own when recovery gave up.
			sentry.CaptureMessage("tracker exited: session recovery exhausted")
		}
	}()

	// Start the API server
	srv := server.New(st, log, registry)
	go func() {
		if err := srv.Start(); err != nil {
			log.WithError(err).Error("API server failed")
			sentry.CaptureException(err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	st.SetStopFlag(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("API server forced to shutdown")
	}

	// The tracker observes the stop flag between polls; wait for the
	// workers to drain before exiting.
	deadline := time.Now().Add(cfg.ShutdownTimeout)
	for st.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Second)
	}
	cancel()

	if st.IsRunning() {
		log.Warn("Tracker did not stop in time")
	}
	log.Info("Stopped")
}
