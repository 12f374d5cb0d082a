// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultProgressInterval is the minimum time between progress log lines.
const DefaultProgressInterval = 2 * time.Second

// RunOptions configures the outer sampling loop.
type RunOptions struct {
	// Iterations is the number of steps, including the init step. Required.
	Iterations int

	// Kernel names the kernel in logs, spans and metrics.
	Kernel string

	// ChainID identifies the chain. Empty means a fresh UUID.
	ChainID string

	// Sink receives every emitted sample. Optional.
	Sink SampleSink

	// Tracer traces the run. Optional.
	Tracer *Tracer

	// Metrics records step metrics. Optional.
	Metrics *Metrics

	// Logger for progress output. Nil uses slog.Default().
	Logger *slog.Logger

	// ProgressInterval throttles progress logs. Zero uses DefaultProgressInterval.
	ProgressInterval time.Duration
}

// RunResult describes a finished run.
type RunResult struct {
	ChainID  string
	Samples  *SampleCollection
	Accepted int
	Duration time.Duration
}

// AcceptanceRate returns the fraction of accepted steps.
func (r RunResult) AcceptanceRate() float64 {
	if r.Samples == nil || r.Samples.Len() == 0 {
		return 0
	}
	return float64(r.Accepted) / float64(r.Samples.Len())
}

// Run drives a transition for opts.Iterations steps and collects one sample
// per step.
//
// Description:
//
//	The collection is pre-allocated with Iterations samples of weight
//	1/Iterations. Cancellation is checked between steps only; a step in
//	flight always completes. Any step error aborts the run and is returned
//	wrapped with the failing iteration, alongside the partial result.
//
// Inputs:
//   - ctx: Context for cancellation, tracing and the gradient oracle.
//   - t: The chain to drive. Must be freshly created.
//   - state: The latent state the chain updates in place.
//   - opts: Loop options.
//
// Outputs:
//   - RunResult: The samples and run statistics.
//   - error: Non-nil on invalid options, cancellation or step failure.
func Run(ctx context.Context, t Transition, state LatentState, opts RunOptions) (res RunResult, runErr error) {
	if opts.Iterations <= 0 {
		return RunResult{}, fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidConfiguration, opts.Iterations)
	}
	if t == nil || state == nil {
		return RunResult{}, fmt.Errorf("%w: transition and state are required", ErrInvalidConfiguration)
	}
	if opts.ChainID == "" {
		opts.ChainID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}

	result := RunResult{ChainID: opts.ChainID, Samples: NewSampleCollection(opts.Iterations)}
	weight := 1 / float64(opts.Iterations)
	progress := rate.Sometimes{First: 1, Interval: opts.ProgressInterval}
	start := time.Now()

	ctx, span := opts.Tracer.StartRun(ctx, opts.Kernel, opts.ChainID, opts.Iterations)
	logger := LoggerWithTrace(ctx, opts.Logger).With(
		slog.String("kernel", opts.Kernel),
		slog.String("chain_id", opts.ChainID),
	)

	defer func() {
		res.Duration = time.Since(start)
		opts.Tracer.EndRun(span, result.Samples.Len(), runErr)
	}()

	for i := 1; i <= opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("iteration %d: %w", i, err)
			return result, runErr
		}

		stepCtx, stepSpan := opts.Tracer.TraceStep(ctx, opts.Kernel, i, t.Phase())
		stepStart := time.Now()
		stats, err := t.Step(stepCtx, state)
		opts.Metrics.RecordStep(ctx, opts.Kernel, time.Since(stepStart), stats, err)
		opts.Tracer.EndStep(stepSpan, stats, err)
		if err != nil {
			runErr = fmt.Errorf("iteration %d: %w", i, err)
			logger.Error("sampling step failed",
				slog.Int("iteration", i),
				slog.String("error", err.Error()),
			)
			return result, runErr
		}
		if stats.Accepted {
			result.Accepted++
		}

		sample, err := result.Samples.Append(weight, state.Snapshot(), stats)
		if err != nil {
			runErr = fmt.Errorf("iteration %d: %w", i, err)
			return result, runErr
		}
		opts.Metrics.RecordSamples(ctx, opts.Kernel, 1)

		if opts.Sink != nil {
			if err := opts.Sink.Append(ctx, opts.ChainID, sample); err != nil {
				runErr = fmt.Errorf("iteration %d: sink: %w", i, err)
				return result, runErr
			}
		}

		progress.Do(func() {
			logger.Info("sampling progress",
				slog.Int("iteration", i),
				slog.Int("iterations", opts.Iterations),
				slog.Float64("log_density", stats.LogDensity),
				slog.Float64("step_size", stats.StepSize),
			)
		})
	}

	logger.Info("sampling run complete",
		slog.Int("samples", result.Samples.Len()),
		slog.Float64("acceptance_rate", result.AcceptanceRate()),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}
