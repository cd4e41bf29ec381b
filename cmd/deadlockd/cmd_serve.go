// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianDeadlock/pkg/logging"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/broadcast"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/config"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/coordinator"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/observability"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/risk"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// runServe starts the API server.
//
// # Description
//
// Loads configuration, sets up logging, telemetry and metrics, builds the
// estimator and coordinator, then runs the HTTP server, the snapshot
// broadcaster and (optionally) the classifier artifact watcher until
// SIGINT or SIGTERM. Any component failing stops the others.
func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Slog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	shutdownTelemetry, err := observability.Init(ctx, observability.TelemetryConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: deadlock.ServiceVersion,
		TraceExporter:  cfg.Tracing.Exporter,
		MetricExporter: cfg.Tracing.MetricExporter,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Registerer:     reg,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn("telemetry shutdown error", "error", err)
		}
	}()

	metrics := observability.NewMetrics(reg)

	estimator := buildEstimator(cfg.Estimator, log)

	coord := coordinator.New(
		coordinator.WithEstimator(estimator),
		coordinator.WithLogger(log),
		coordinator.WithMetrics(metrics),
		coordinator.WithBlockThreshold(cfg.Coordinator.BlockThreshold),
		coordinator.WithReleaseOnTerminate(cfg.Coordinator.ReleaseOnTerminate),
	)

	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := deadlock.NewHandlers(coord).
		WithMetrics(metrics).
		WithStreamBuffer(cfg.Stream.ClientBuffer)
	router := deadlock.NewRouter(handlers, deadlock.RouterConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		Gatherer:       reg,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Starting deadlockd", "address", server.Addr, "version", deadlock.ServiceVersion)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down deadlockd")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(sctx)
	})

	g.Go(func() error {
		return broadcast.New(coord, coord.Hub(), cfg.Stream.Interval, log).Run(gctx)
	})

	if cfg.Estimator.Classifier == config.ClassifierArtifact && cfg.Estimator.WatchArtifact {
		watcher := risk.NewArtifactWatcher(cfg.Estimator.ArtifactPath, estimator, log)
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				log.Warn("Classifier artifact watch unavailable", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "deadlockd",
		JSON:    cfg.JSON,
	}), nil
}

// buildEstimator selects the classifier named by the estimator section.
//
// # Description
//
// An artifact that cannot be loaded is logged at Warn and the estimator
// starts without a classifier, reporting UNKNOWN until a watched artifact
// becomes readable.
//
// # Outputs
//
//   - *risk.Estimator: Never nil. "none" yields an estimator that reports
//     UNKNOWN for every prediction.
func buildEstimator(cfg config.EstimatorConfig, log *slog.Logger) *risk.Estimator {
	e := risk.NewEstimator(nil, risk.WithLogger(log))

	switch cfg.Classifier {
	case config.ClassifierNone:
		log.Warn("No deadlock classifier configured; risk will be UNKNOWN and nothing is blocked")

	case config.ClassifierArtifact:
		c, err := risk.LoadArtifact(cfg.ArtifactPath)
		if err != nil {
			log.Warn("Classifier artifact unavailable; risk will be UNKNOWN",
				"path", cfg.ArtifactPath, "watch", cfg.WatchArtifact, "error", err)
			return e
		}
		e.SetClassifier(c, cfg.ArtifactPath)
		log.Info("Loaded classifier artifact", "path", cfg.ArtifactPath)

	default:
		e.SetClassifier(risk.HeuristicClassifier{}, config.ClassifierHeuristic)
	}
	return e
}
