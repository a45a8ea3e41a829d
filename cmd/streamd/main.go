// Command streamd is the control-plane daemon: it composes the encoder
// supervisor, session manager, scheduler, health monitor, and HTTP API into
// one supervised process.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/liveforge/streamctl/internal/api"
	"github.com/liveforge/streamctl/internal/config"
	"github.com/liveforge/streamctl/internal/control/admission"
	"github.com/liveforge/streamctl/internal/domain/stream/manager"
	"github.com/liveforge/streamctl/internal/domain/stream/store"
	"github.com/liveforge/streamctl/internal/health"
	xlog "github.com/liveforge/streamctl/internal/log"
	"github.com/liveforge/streamctl/internal/pipeline/encoder"
	"github.com/liveforge/streamctl/internal/scheduler"
	"github.com/liveforge/streamctl/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("streamd %s (commit %s)\n", version, commit)
		os.Exit(0)
	}

	xlog.Configure(xlog.Config{Level: "info", Service: "streamd"})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Service: cfg.LogService})
	logger = xlog.WithComponent("main")
	logger.Info().Str("event", "startup").Str("config", cfg.String()).Msg("starting streamd")

	tracerProvider, err := telemetry.InstallTracing(ctx, telemetry.TracingConfig{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: version,
		Endpoint:       cfg.TracingEndpoint,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to install tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("tracer provider shutdown failed")
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create data directory")
	}

	sqliteStore, err := store.NewSqliteStore(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() {
		if err := sqliteStore.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close database")
		}
	}()

	keys := sqliteStore.Keys()
	assets := sqliteStore.Assets()
	playlists := sqliteStore.Playlists()
	sessions := sqliteStore.Sessions()
	triggers := sqliteStore.Triggers()

	admissionCtl := admission.NewController(keys, sessions, cfg.MaxConcurrentStreams)

	logDir := cfg.DataDir + "/logs"
	manifestDir := cfg.DataDir + "/manifests"
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create log directory")
	}
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create manifest directory")
	}

	observer := sessionStoreObserver{sessions: sessions}
	supervisor := encoder.NewSupervisor(cfg.EncoderBin, logDir, manifestDir, observer)

	mgr := manager.New(keys, assets, playlists, sessions, admissionCtl, supervisor, cfg.IngestBaseURL)

	sched := scheduler.New(triggers, sessions, mgr, store.SystemClock)

	monitor := health.New(sessions, supervisor, mgr, store.SystemClock, cfg.EncoderBin)

	hub := telemetry.NewHub()
	snapshotPump := telemetry.NewSnapshotPump(sessions, supervisor, hub, store.SystemClock)
	logTail := telemetry.NewLogTailHandler(supervisor)

	logger.Info().Msg("reaping any orphaned encoder processes from a prior run")
	if killed, err := mgr.ForceReapOrphans(ctx); err != nil {
		logger.Error().Err(err).Msg("boot orphan reap failed")
	} else if killed > 0 {
		logger.Warn().Int("killed_count", killed).Msg("reaped orphaned encoder processes")
	}

	logger.Info().Msg("recovering scheduled triggers")
	if err := sched.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("scheduler recovery failed")
	}

	root := suture.New("streamd", suture.Spec{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	root.Add(sched)
	root.Add(monitor)
	root.Add(hub)
	root.Add(snapshotPump)

	server := api.New(api.Deps{
		Manager:            mgr,
		Scheduler:          sched,
		Supervisor:         supervisor,
		Keys:               keys,
		Assets:             assets,
		Playlists:          playlists,
		Sessions:           sessions,
		Triggers:           triggers,
		Config:             cfg,
		Hub:                hub,
		LogTail:            logTail,
		RateLimitPerMinute: 600,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := root.ServeBackground(ctx)

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if err := <-errCh; err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("supervision tree exited with error")
	}

	logger.Info().Msg("streamd exiting")
}
