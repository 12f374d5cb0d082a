// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kernel provides the shared transition protocol for the MCMC kernels.
//
// Architecture:
//
//	Every kernel is split into an immutable configuration (built once, shared
//	freely) and a per-chain Transition that owns the chain's mutable run
//	state. A Transition is a two-state machine:
//
//	┌────────────────────┐  first Step   ┌──────────────┐
//	│ PhaseUninitialized │ ────────────▶ │ PhaseRunning │ ◀─┐
//	└────────────────────┘  (init step)  └──────┬───────┘   │ every later Step
//	                                            └───────────┘
//
//	The outer loop (Run) calls Step once per iteration with the chain's
//	LatentState and appends a LatentSnapshot to a pre-allocated
//	SampleCollection.
//
// Collaborators:
//
//	The package consumes, and does not implement, the model side of sampling:
//	  - LatentState: indexed get/set and constraint transforms
//	  - GradientOracle: log density and its gradient
//	  - CategoricalSampler: index draws proportional to unnormalized weights
//
//	VectorState is an in-memory LatentState used by tests, the demo model and
//	callers that keep their latent variables in flat slices.
//
// Errors:
//
//	ErrInvalidConfiguration  construction-time, fatal
//	ErrInvalidGradient       non-finite gradient or log density, fatal to the step
//	ErrResamplingDegenerate  every categorical weight zero or non-finite
//
// Thread Safety:
//
//	Configurations are safe for concurrent use. A Transition belongs to exactly
//	one chain and must not be shared across goroutines.
package kernel
