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
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const samplerTracerName = "aleutian.sampler"

// Tracer provides OpenTelemetry tracing for sampling runs.
//
// Thread Safety: Safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewTracer creates a tracer using the global tracer provider.
//
// Inputs:
//   - logger: Logger for structured logging (nil uses slog.Default()).
//   - enabled: When false every span is a no-op.
//
// Outputs:
//   - *Tracer: Tracer instance.
func NewTracer(logger *slog.Logger, enabled bool) *Tracer {
	return NewTracerWithProvider(otel.GetTracerProvider(), logger, enabled)
}

// NewTracerWithProvider creates a tracer from an explicit provider.
func NewTracerWithProvider(provider trace.TracerProvider, logger *slog.Logger, enabled bool) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{
		tracer:  provider.Tracer(samplerTracerName),
		logger:  logger,
		enabled: enabled,
	}
}

// StartRun starts the span covering a whole sampling run.
//
// Inputs:
//   - ctx: Parent context.
//   - kernelName: Kernel identifier, e.g. "sghmc".
//   - chainID: Chain identifier.
//   - iterations: Configured iteration count.
//
// Outputs:
//   - context.Context: Context with span.
//   - trace.Span: The created span (no-op if tracing disabled).
func (t *Tracer) StartRun(ctx context.Context, kernelName, chainID string, iterations int) (context.Context, trace.Span) {
	if t == nil || !t.enabled {
		return ctx, noop.Span{}
	}

	ctx, span := t.tracer.Start(ctx, "sampler.run",
		trace.WithAttributes(
			attribute.String("sampler.kernel", kernelName),
			attribute.String("sampler.chain_id", chainID),
			attribute.Int("sampler.iterations", iterations),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	t.logger.InfoContext(ctx, "sampling run started",
		slog.String("kernel", kernelName),
		slog.String("chain_id", chainID),
		slog.Int("iterations", iterations),
	)
	return ctx, span
}

// EndRun completes the run span.
//
// Inputs:
//   - span: The span to end.
//   - samples: Number of samples emitted.
//   - err: Error if the run failed.
func (t *Tracer) EndRun(span trace.Span, samples int, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Int("sampler.result.samples", samples))
	span.End()
}

// TraceStep starts the span of one transition step.
func (t *Tracer) TraceStep(ctx context.Context, kernelName string, iteration int, phase Phase) (context.Context, trace.Span) {
	if t == nil || !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "sampler.step",
		trace.WithAttributes(
			attribute.String("sampler.kernel", kernelName),
			attribute.Int("sampler.iteration", iteration),
			attribute.String("sampler.phase", phase.String()),
		),
	)
}

// EndStep completes a step span.
func (t *Tracer) EndStep(span trace.Span, result StepResult, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Bool("sampler.step.accepted", result.Accepted),
		attribute.Float64("sampler.step.log_density", result.LogDensity),
		attribute.Float64("sampler.step.step_size", result.StepSize),
		attribute.Int("sampler.step.path_length", result.PathLength),
	)
	span.End()
}

// TraceEvent records a named event with attributes on the span in ctx.
func (t *Tracer) TraceEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// LoggerWithTrace returns a logger with trace context.
//
// Inputs:
//   - ctx: Context that may contain trace information.
//   - logger: Base logger.
//
// Outputs:
//   - *slog.Logger: Logger with trace_id and span_id if available.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
