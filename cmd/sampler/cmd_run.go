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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianMCMC/pkg/logging"
	"github.com/AleutianAI/AleutianMCMC/pkg/ux"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/config"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/store"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/telemetry"
)

const shutdownTimeout = 5 * time.Second

func runSampling(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadSamplerConfig(configPath)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Observability.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Observability.LogDir,
		Service: cfg.Observability.ServiceName,
	})
	defer logger.Close()
	logger.SetDefault()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if cfg.Observability.MetricsExporter == "prometheus" && cfg.Observability.MetricsAddr != "" {
		stopMetrics, err := telemetry.ServeMetrics(cfg.Observability.MetricsAddr, func(err error) {
			logger.Warn("metrics server failed", slog.String("error", err.Error()))
		})
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = stopMetrics(sctx)
		}()
	}

	deps := runDeps{
		Logger: logger.Slog(),
		Tracer: kernel.NewTracer(logger.Slog(), cfg.Observability.TracingEnabled),
	}
	if cfg.Observability.MetricsEnabled {
		if deps.Metrics, err = kernel.NewMetrics(otel.Meter("aleutian.sampler")); err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
	}

	if cfg.Store.Path != "" {
		db, err := store.Open(storeConfig(cfg, logger.Slog()))
		if err != nil {
			return err
		}
		defer db.Close()
		samples, err := store.NewSampleStore(db, logger.Slog())
		if err != nil {
			return err
		}
		deps.Sink = samples
	}

	res, runErr := sample(ctx, cfg, deps)

	p := ux.NewPrinter(cmd.OutOrStdout())
	fields := []ux.Field{
		{Label: "Kernel", Value: cfg.Kernel},
		{Label: "Chain ID", Value: res.ChainID},
		{Label: "Samples", Value: strconv.Itoa(sampleCount(res))},
		{Label: "Acceptance rate", Value: strconv.FormatFloat(res.AcceptanceRate(), 'f', 3, 64)},
		{Label: "Duration", Value: res.Duration.Round(time.Millisecond).String()},
	}
	if res.Samples != nil && res.Samples.Len() > 0 {
		fields = append(fields, ux.Field{Label: "Mean", Value: ux.FormatVector(res.Samples.Mean(), 6)})
	}
	if cfg.Store.Path != "" {
		fields = append(fields, ux.Field{Label: "Store", Value: cfg.Store.Path})
	}

	if runErr != nil {
		p.Summary("Sampling stopped", fields)
		p.Error(runErr.Error())
		return runErr
	}
	p.Summary("Sampling complete", fields)
	return nil
}

// applyRunFlags overrides configuration with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, cfg *config.SamplerFullConfig) {
	flags := cmd.Flags()
	if flags.Changed("kernel") {
		cfg.Kernel = kernelName
	}
	if flags.Changed("iters") {
		cfg.Iterations = iterations
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("dim") {
		cfg.Dim = dim
	}
	if flags.Changed("store") {
		cfg.Store.Path = storePath
	}
	if flags.Changed("trace-exporter") {
		cfg.Observability.TraceExporter = traceExporter
		cfg.Observability.TracingEnabled = traceExporter != "none"
	}
	if flags.Changed("metrics-addr") {
		cfg.Observability.MetricsAddr = metricsAddr
		cfg.Observability.MetricsExporter = "prometheus"
		cfg.Observability.MetricsEnabled = true
	}
	if flags.Changed("log-level") {
		cfg.Observability.LogLevel = logLevel
	}
}

func telemetryConfig(cfg config.SamplerFullConfig) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceName = cfg.Observability.ServiceName
	tc.TraceExporter = cfg.Observability.TraceExporter
	tc.MetricExporter = cfg.Observability.MetricsExporter
	if cfg.Observability.OTLPEndpoint != "" {
		tc.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	}
	return tc
}

func storeConfig(cfg config.SamplerFullConfig, logger *slog.Logger) store.Config {
	sc := store.DefaultConfig(cfg.Store.Path)
	if cfg.Store.InMemory {
		sc = store.InMemoryConfig()
	}
	sc.SyncWrites = cfg.Store.SyncWrites
	sc.Logger = logger
	return sc
}

func sampleCount(res kernel.RunResult) int {
	if res.Samples == nil {
		return 0
	}
	return res.Samples.Len()
}
