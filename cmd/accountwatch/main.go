// Command accountwatch runs the ingestion pipeline for one watched Solana
// account: it holds a subscription open against the Stream Client, enriches
// and parses each notification, and commits the result to the Sink. NATS
// fanout and the Temporal reconciliation worker are started alongside it
// when configured.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solwatch/accountwatch/service/config"
	"github.com/solwatch/accountwatch/service/enrichment"
	"github.com/solwatch/accountwatch/service/ingest"
	"github.com/solwatch/accountwatch/service/metrics"
	"github.com/solwatch/accountwatch/service/nats"
	"github.com/solwatch/accountwatch/service/sink"
	"github.com/solwatch/accountwatch/service/solana"
	"github.com/solwatch/accountwatch/service/streamclient"
	"github.com/solwatch/accountwatch/service/temporal"
)

// staleAfter is how long the ingestion loop may sit in Backoff before
// /health reports degraded.
const staleAfter = 5 * time.Minute

func main() {
	cfg := config.MustLoad()
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting accountwatch",
		"target_account", cfg.TargetAccount,
		"stream_endpoint", cfg.StreamEndpoint,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.SinkDatabaseURL)
	if err != nil {
		logger.Error("failed to connect to sink database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := sink.Migrate(ctx, pool); err != nil {
		logger.Error("failed to run sink migrations", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	s := sink.New(pool, m)
	logger.Info("connected to sink, migrations applied")

	stream := streamclient.New(cfg.StreamEndpoint, cfg.StreamBearerToken, cfg.TargetAccount)
	enricher := enrichment.New(cfg.EnrichmentBaseURL(), cfg.StreamBearerToken)

	var fanout nats.Publisher
	if cfg.FanoutEnabled() {
		publisher, err := nats.NewPublisher(cfg.NATSURL, cfg.TargetAccount, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		fanout = publisher
		logger.Info("event fanout enabled", "url", cfg.NATSURL)
	} else {
		logger.Info("event fanout disabled, NATS_URL not set")
	}

	loop := ingest.New(stream, enricher, s, fanout, m, logger, cfg.TargetAccount, cfg.IncludeFailed)

	metricsServer, err := metrics.NewServer(m, &healthAdapter{loop: loop, threshold: staleAfter}, cfg.MetricsPort, logger)
	if err != nil {
		logger.Error("failed to start metrics server", "error", err)
		os.Exit(1)
	}
	logger.Info("metrics server listening", "addr", metricsServer.Addr())

	var temporalClient *temporal.Client
	var reconcileWorker *temporal.Worker
	if cfg.ReconciliationEnabled() {
		rpcClient := solana.NewRPCClient(cfg.UpstreamRPCURL)
		upstream := solana.NewClient(rpcClient, logger)

		temporalClient, err = temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}

		reconcileWorker, err = temporal.NewWorker(temporal.WorkerConfig{
			TemporalHost:      cfg.TemporalHost,
			TemporalNamespace: cfg.TemporalNamespace,
			TaskQueue:         cfg.TemporalTaskQueue,
			Sink:              s,
			Upstream:          upstream,
			TargetAccount:     cfg.TargetAccount,
			Metrics:           m,
			Logger:            logger,
		})
		if err != nil {
			logger.Error("failed to create reconciliation worker", "error", err)
			os.Exit(1)
		}

		if err := temporalClient.EnsureReconcileSchedule(ctx, cfg.TargetAccount, cfg.ReconcileInterval); err != nil {
			logger.Error("failed to ensure reconcile schedule", "error", err)
			os.Exit(1)
		}
		logger.Info("reconciliation workflow enabled",
			"temporal_host", cfg.TemporalHost,
			"interval", cfg.ReconcileInterval,
		)
	} else {
		logger.Info("reconciliation workflow disabled, TEMPORAL_HOST not set")
	}

	loopErrors := make(chan error, 1)
	go func() {
		loopErrors <- loop.Run(ctx)
	}()
	go reportUptime(ctx, loop, m)

	var workerErrors chan error
	if reconcileWorker != nil {
		workerErrors = make(chan error, 1)
		go func() {
			workerErrors <- reconcileWorker.Start()
		}()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-loopErrors:
		if err != nil {
			logger.Error("ingestion loop exited with error", "error", err)
		}
	case err := <-workerErrors:
		logger.Error("reconciliation worker exited with error", "error", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down metrics server", "error", err)
	}
	if reconcileWorker != nil {
		reconcileWorker.Stop()
	}
	if temporalClient != nil {
		temporalClient.Close()
	}

	logger.Info("shutdown complete")
}

// healthAdapter bridges ingest.Loop's threshold-parameterized StreamStale to
// the zero-arg signature metrics.HealthChecker requires.
type healthAdapter struct {
	loop      *ingest.Loop
	threshold time.Duration
}

func (h *healthAdapter) PingSink(ctx context.Context) error { return h.loop.PingSink(ctx) }
func (h *healthAdapter) StreamStale() bool                  { return h.loop.StreamStale(h.threshold) }

// reportUptime updates the uptime_seconds gauge until ctx is cancelled.
func reportUptime(ctx context.Context, loop *ingest.Loop, m *metrics.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetUptimeSeconds(loop.Uptime().Seconds())
		}
	}
}

func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
