// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hmcda

import (
	"context"
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// =============================================================================
// Contracts
// =============================================================================

// HamiltonianFunc returns the total energy of a position with log density
// logp and the given momentum.
type HamiltonianFunc func(logp float64, momentum []float64) float64

// MomentumFunc draws a fresh momentum vector of dimension n.
type MomentumFunc func(n int) []float64

// TrajectoryRequest is the input of one integrator call.
type TrajectoryRequest struct {
	// Theta is the current position in unconstrained space.
	Theta []float64

	// LogDensity is the log density at Theta.
	LogDensity float64

	// Target evaluates the log density and its gradient.
	Target kernel.GradientOracle

	// Hamiltonian evaluates the total energy.
	Hamiltonian HamiltonianFunc

	// StepSize is the leapfrog step size ϵ.
	StepSize float64

	// Lambda is the target path length λ = ϵ·L.
	Lambda float64

	// SampleMomentum draws the initial momentum.
	SampleMomentum MomentumFunc

	// Adaptor is set only inside the adaptation window. The integrator
	// reports the trajectory's acceptance probability to it.
	Adaptor StepSizeAdaptor
}

// TrajectoryResult is the output of one integrator call.
type TrajectoryResult struct {
	Theta      []float64
	LogDensity float64
	Accepted   bool
	PathLength int
	AcceptProb float64
}

// Integrator simulates one Hamiltonian trajectory and applies the
// Metropolis correction.
type Integrator interface {
	Trajectory(ctx context.Context, req TrajectoryRequest) (TrajectoryResult, error)
}

// StepSizeAdaptor tunes the leapfrog step size toward a target acceptance
// rate.
type StepSizeAdaptor interface {
	// StepSize returns the step size to use for the next trajectory.
	StepSize() float64

	// Adapt reports the acceptance probability of the last trajectory.
	Adapt(acceptProb float64)

	// Finish freezes the adaptor at its final step size.
	Finish()
}

// Hamiltonian is the energy of a unit-mass system: −log p + ½‖p‖².
func Hamiltonian(logp float64, momentum []float64) float64 {
	return -logp + 0.5*floats.Dot(momentum, momentum)
}

// =============================================================================
// Leapfrog integrator
// =============================================================================

// DefaultMaxLeapfrogSteps bounds the number of leapfrog steps per trajectory.
const DefaultMaxLeapfrogSteps = 1024

// LeapfrogIntegrator runs a fixed-length leapfrog trajectory of
// max(1, round(λ/ϵ)) steps followed by a Metropolis accept/reject.
//
// Thread Safety: Not safe for concurrent use; it owns a random source.
type LeapfrogIntegrator struct {
	src      rand.Source
	maxSteps int
}

var _ Integrator = (*LeapfrogIntegrator)(nil)

// NewLeapfrogIntegrator creates an integrator drawing accept decisions
// from src.
func NewLeapfrogIntegrator(src rand.Source) *LeapfrogIntegrator {
	return &LeapfrogIntegrator{src: src, maxSteps: DefaultMaxLeapfrogSteps}
}

// PathLength returns the number of leapfrog steps used for step size eps.
func (li *LeapfrogIntegrator) PathLength(lambda, eps float64) int {
	n := int(math.Round(lambda / eps))
	if n < 1 {
		n = 1
	}
	if n > li.maxSteps {
		n = li.maxSteps
	}
	return n
}

// Trajectory implements Integrator.
//
// Description:
//
//	Draws a momentum, integrates, and accepts the end point with probability
//	min(1, exp(H₀ − H₁)). A non-finite energy at the end point counts as an
//	acceptance probability of zero. A non-finite gradient inside the
//	trajectory aborts the call with kernel.ErrInvalidGradient.
func (li *LeapfrogIntegrator) Trajectory(ctx context.Context, req TrajectoryRequest) (TrajectoryResult, error) {
	if req.Target == nil || req.Hamiltonian == nil || req.SampleMomentum == nil {
		return TrajectoryResult{}, fmt.Errorf("%w: trajectory request is missing a collaborator", kernel.ErrInvalidConfiguration)
	}
	if !(req.StepSize > 0) || math.IsInf(req.StepSize, 0) {
		return TrajectoryResult{}, fmt.Errorf("%w: step size %g", kernel.ErrInvalidConfiguration, req.StepSize)
	}

	_, grad, err := kernel.EvaluateGradient(ctx, req.Target, req.Theta)
	if err != nil {
		return TrajectoryResult{}, err
	}

	momentum := req.SampleMomentum(len(req.Theta))
	h0 := req.Hamiltonian(req.LogDensity, momentum)
	steps := li.PathLength(req.Lambda, req.StepSize)

	theta, p, logp, _, err := leapfrog(ctx, req.Target, req.Theta, momentum, grad, req.StepSize, steps)
	if err != nil {
		return TrajectoryResult{}, err
	}

	acceptProb := math.Min(1, math.Exp(h0-req.Hamiltonian(logp, p)))
	if math.IsNaN(acceptProb) {
		acceptProb = 0
	}
	if req.Adaptor != nil {
		req.Adaptor.Adapt(acceptProb)
	}

	res := TrajectoryResult{PathLength: steps, AcceptProb: acceptProb}
	if kernel.Uniform(li.src) < acceptProb {
		res.Theta, res.LogDensity, res.Accepted = theta, logp, true
		return res, nil
	}
	res.Theta = append([]float64(nil), req.Theta...)
	res.LogDensity = req.LogDensity
	return res, nil
}

// leapfrog integrates steps leapfrog steps of size eps from (theta, p).
// grad is the gradient at theta. Inputs are not modified.
func leapfrog(ctx context.Context, target kernel.GradientOracle, theta, p, grad []float64, eps float64, steps int) ([]float64, []float64, float64, []float64, error) {
	x := append([]float64(nil), theta...)
	r := append([]float64(nil), p...)
	g := grad
	var logp float64

	floats.AddScaled(r, eps/2, g)
	for s := 1; s <= steps; s++ {
		floats.AddScaled(x, eps, r)
		var err error
		logp, g, err = kernel.EvaluateGradient(ctx, target, x)
		if err != nil {
			return nil, nil, 0, nil, fmt.Errorf("leapfrog step %d: %w", s, err)
		}
		if s < steps {
			floats.AddScaled(r, eps, g)
		}
	}
	floats.AddScaled(r, eps/2, g)
	return x, r, logp, g, nil
}

// FindReasonableStepSize picks an initial step size by doubling or halving
// until the acceptance probability of a single leapfrog step crosses 1/2.
//
// Inputs:
//   - ctx: Passed to the target.
//   - target: Log density and gradient.
//   - theta: Starting position, unconstrained.
//   - logp: Log density at theta.
//   - grad: Gradient at theta.
//   - src: Random source for the probe momentum.
//
// Outputs:
//   - float64: A step size in [2⁻⁶⁰, 2⁶⁰].
func FindReasonableStepSize(ctx context.Context, target kernel.GradientOracle, theta []float64, logp float64, grad []float64, src rand.Source) float64 {
	const maxAdjustments = 60
	logHalf := math.Log(0.5)

	p := kernel.StandardNormal(src, len(theta))
	h0 := Hamiltonian(logp, p)
	logAccept := func(eps float64) float64 {
		_, r, lp, _, err := leapfrog(ctx, target, theta, p, grad, eps, 1)
		if err != nil {
			return math.Inf(-1)
		}
		la := h0 - Hamiltonian(lp, r)
		if math.IsNaN(la) {
			return math.Inf(-1)
		}
		return la
	}

	eps := 1.0
	la := logAccept(eps)
	up := la > logHalf
	for i := 0; i < maxAdjustments; i++ {
		if up && !(la > logHalf) || !up && la > logHalf {
			break
		}
		if up {
			eps *= 2
		} else {
			eps /= 2
		}
		la = logAccept(eps)
	}
	if up && !(la > logHalf) {
		// The last doubling overshot.
		eps /= 2
	}
	return eps
}
