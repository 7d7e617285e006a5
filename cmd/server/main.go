// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

// Command server runs the uawatch service: the HTTP API, the optional
// daily scheduler, and the upstream fact sync.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uawatch/uawatch/internal/api"
	"github.com/uawatch/uawatch/internal/config"
	"github.com/uawatch/uawatch/internal/logging"
	"github.com/uawatch/uawatch/internal/pipeline"
	"github.com/uawatch/uawatch/internal/report"
	"github.com/uawatch/uawatch/internal/source"
	"github.com/uawatch/uawatch/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Default logger: config (and its logging section) failed to load.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("upstream_enabled", cfg.Upstream.Enabled).
		Bool("schedule_enabled", cfg.Pipeline.ScheduleEnabled).
		Msg("Starting uawatch")

	st, err := store.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	provider, cleanup, err := buildProvider(cfg, st)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize fact provider")
	}
	defer cleanup()

	consumers, err := buildConsumers(cfg, st)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize report consumers")
	}

	p, err := pipeline.New(provider, st, cfg.Pipeline.WindowDays, cfg.Detection.Rules, consumers)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Pipeline.ScheduleEnabled {
		scheduler := pipeline.NewScheduler(p, cfg.Pipeline.ScheduleHourUTC)
		go scheduler.Start(ctx)
	}

	server := api.NewServer(cfg.Server, st, p)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logging.Error().Err(err).Msg("HTTP server failed")
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("HTTP server shutdown error")
	}
	logging.Info().Msg("Shutdown complete")
}

// buildProvider wires the fact provider: the upstream syncer when the
// warehouse is configured, otherwise replay from the local store.
func buildProvider(cfg *config.Config, st *store.Store) (pipeline.FactProvider, func(), error) {
	if !cfg.Upstream.Enabled {
		logging.Info().Msg("Upstream disabled, serving facts from local store")
		return source.NewStoreProvider(st), func() {}, nil
	}

	ch, err := source.NewClickHouseSource(cfg.Upstream)
	if err != nil {
		return nil, nil, err
	}
	src := source.NewBreakerSource(ch)
	cleanup := func() {
		if err := src.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing upstream source")
		}
	}
	return source.NewSyncer(src, st), cleanup, nil
}

// buildConsumers wires the report outputs. The store consumer always runs;
// file outputs depend on the report config.
func buildConsumers(cfg *config.Config, st *store.Store) ([]report.Consumer, error) {
	consumers := []report.Consumer{report.NewStoreConsumer(st)}

	if cfg.Report.OutputDir != "" {
		jw, err := report.NewJSONWriter(cfg.Report.OutputDir)
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, jw)

		if cfg.Report.HTML {
			hw, err := report.NewHTMLWriter(cfg.Report.OutputDir)
			if err != nil {
				return nil, err
			}
			consumers = append(consumers, hw)
		}
	}
	return consumers, nil
}
