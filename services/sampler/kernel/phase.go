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

import "context"

// Phase is the lifecycle state of a chain's transition.
type Phase int

const (
	// PhaseUninitialized is the state of a freshly created chain. The next
	// Step performs the kernel's init step.
	PhaseUninitialized Phase = iota

	// PhaseRunning is entered after the init step and never left.
	PhaseRunning
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseRunning:
		return "running"
	default:
		return "unknown"
	}
}

// StepResult describes the outcome of one transition step.
type StepResult struct {
	// Accepted is always true for kernels without a Metropolis correction.
	Accepted bool `json:"accepted"`

	// LogDensity is the log density recorded on the latent state by the step.
	LogDensity float64 `json:"log_density"`

	// StepSize is the step size the kernel used, or zero if not applicable.
	StepSize float64 `json:"step_size"`

	// PathLength is the number of leapfrog steps taken, or zero.
	PathLength int `json:"path_length"`
}

// Transition is the per-chain side of a kernel.
//
// Description:
//
//	A Transition owns the chain's private run state (velocity, iteration
//	counters, step-size adaptors). The first Step performs the init step and
//	moves the chain from PhaseUninitialized to PhaseRunning; every later Step
//	performs the kernel update. Steps must be called sequentially.
//
// Thread Safety: Not safe for concurrent use.
type Transition interface {
	// Phase returns the chain's current phase.
	Phase() Phase

	// Step advances the chain by one iteration, updating state in place.
	Step(ctx context.Context, state LatentState) (StepResult, error)
}
