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
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics contains the sampler's OpenTelemetry instruments.
//
// All methods are nil-safe so kernels can record unconditionally.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// StepsTotal counts transition steps by kernel and outcome.
	StepsTotal metric.Int64Counter

	// StepDuration records step duration in seconds.
	StepDuration metric.Float64Histogram

	// InvalidGradientsTotal counts steps aborted by ErrInvalidGradient.
	InvalidGradientsTotal metric.Int64Counter

	// SamplesEmitted counts samples appended to collections.
	SamplesEmitted metric.Int64Counter

	// RoleSwapsTotal counts IPMCMC conditional/unconditional role swaps.
	RoleSwapsTotal metric.Int64Counter
}

// NewMetrics registers all instruments with the provided meter.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//
// Outputs:
//
//	*Metrics - The metrics instance.
//	error - Non-nil if registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.StepsTotal, err = meter.Int64Counter(
		"sampler_steps_total",
		metric.WithDescription("Total transition steps"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create steps_total: %w", err)
	}

	m.StepDuration, err = meter.Float64Histogram(
		"sampler_step_duration_seconds",
		metric.WithDescription("Transition step duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.00001, 0.0001, 0.001, 0.01, 0.1, 1, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create step_duration: %w", err)
	}

	m.InvalidGradientsTotal, err = meter.Int64Counter(
		"sampler_invalid_gradients_total",
		metric.WithDescription("Steps aborted by a non-finite gradient or log density"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create invalid_gradients_total: %w", err)
	}

	m.SamplesEmitted, err = meter.Int64Counter(
		"sampler_samples_emitted_total",
		metric.WithDescription("Samples appended to sample collections"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create samples_emitted_total: %w", err)
	}

	m.RoleSwapsTotal, err = meter.Int64Counter(
		"sampler_ipmcmc_role_swaps_total",
		metric.WithDescription("Conditional node reassignments in interacting particle MCMC"),
		metric.WithUnit("{swap}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ipmcmc_role_swaps_total: %w", err)
	}

	return m, nil
}

// RecordStep records one step's outcome and duration.
func (m *Metrics) RecordStep(ctx context.Context, kernelName string, d time.Duration, result StepResult, err error) {
	if m == nil {
		return
	}
	status := "accepted"
	switch {
	case err != nil:
		status = "error"
	case !result.Accepted:
		status = "rejected"
	}
	attrs := metric.WithAttributes(
		attribute.String("kernel", kernelName),
		attribute.String("status", status),
	)
	m.StepsTotal.Add(ctx, 1, attrs)
	m.StepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("kernel", kernelName)))
	if errors.Is(err, ErrInvalidGradient) {
		m.InvalidGradientsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kernel", kernelName)))
	}
}

// RecordSamples records emitted samples.
func (m *Metrics) RecordSamples(ctx context.Context, kernelName string, n int) {
	if m == nil {
		return
	}
	m.SamplesEmitted.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kernel", kernelName)))
}

// RecordRoleSwaps records IPMCMC role swaps.
func (m *Metrics) RecordRoleSwaps(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RoleSwapsTotal.Add(ctx, int64(n))
}
