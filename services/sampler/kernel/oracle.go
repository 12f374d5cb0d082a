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
	"math"
)

// GradientOracle evaluates the log density and its gradient.
//
// Description:
//
//	theta is the kernel's restricted sub-vector in unconstrained space. The
//	returned gradient must have the same length as theta. The oracle is
//	bound to its model and is responsible for any Jacobian terms of the
//	constraint transforms. Calls are synchronous and have no timeout.
type GradientOracle interface {
	LogDensityGradient(ctx context.Context, theta []float64) (float64, []float64, error)
}

// GradientFunc adapts a plain function to GradientOracle.
type GradientFunc func(ctx context.Context, theta []float64) (float64, []float64, error)

// LogDensityGradient calls f.
func (f GradientFunc) LogDensityGradient(ctx context.Context, theta []float64) (float64, []float64, error) {
	return f(ctx, theta)
}

// EvaluateGradient calls the oracle and validates its output.
//
// Description:
//
//	Any oracle error, a gradient of the wrong length, or a non-finite log
//	density or gradient component is reported as ErrInvalidGradient. There
//	is no retry.
//
// Inputs:
//   - ctx: Context passed through to the oracle.
//   - oracle: The gradient oracle. Must not be nil.
//   - theta: The point to evaluate at. Not modified.
//
// Outputs:
//   - float64: The log density at theta.
//   - []float64: The gradient at theta.
//   - error: Wraps ErrInvalidGradient on failure.
func EvaluateGradient(ctx context.Context, oracle GradientOracle, theta []float64) (float64, []float64, error) {
	logp, grad, err := oracle.LogDensityGradient(ctx, theta)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrInvalidGradient, err)
	}
	if !isFinite(logp) {
		return 0, nil, fmt.Errorf("%w: log density is %g", ErrInvalidGradient, logp)
	}
	if len(grad) != len(theta) {
		return 0, nil, fmt.Errorf("%w: gradient has %d components, want %d", ErrInvalidGradient, len(grad), len(theta))
	}
	for i, g := range grad {
		if !isFinite(g) {
			return 0, nil, fmt.Errorf("%w: component %d is %g", ErrInvalidGradient, i, g)
		}
	}
	return logp, grad, nil
}

// AllFinite reports whether every value is neither NaN nor infinite.
func AllFinite(values []float64) bool {
	for _, v := range values {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
