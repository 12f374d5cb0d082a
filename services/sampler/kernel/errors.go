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

import "errors"

var (
	// ErrInvalidConfiguration indicates a kernel was constructed with
	// inconsistent or out-of-range parameters. Never retried.
	ErrInvalidConfiguration = errors.New("invalid kernel configuration")

	// ErrInvalidGradient indicates the gradient oracle failed or produced a
	// non-finite log density or gradient component.
	ErrInvalidGradient = errors.New("invalid gradient")

	// ErrResamplingDegenerate indicates a categorical draw was requested over
	// weights that are all zero or contain non-finite values.
	ErrResamplingDegenerate = errors.New("degenerate resampling weights")

	// ErrDimensionMismatch indicates a vector does not match the dimension of
	// the latent selection it is written to.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrOutOfSupport indicates a constraint transform left the real line.
	ErrOutOfSupport = errors.New("value outside of variable support")

	// ErrSampleCollectionFull indicates an append beyond the pre-allocated size.
	ErrSampleCollectionFull = errors.New("sample collection is full")

	// ErrChainFinished indicates a chain was stepped more often than its
	// configured iteration count.
	ErrChainFinished = errors.New("chain has finished")
)
