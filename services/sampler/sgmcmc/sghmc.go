// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sgmcmc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// SGHMCName identifies the kernel in logs, spans and metrics.
const SGHMCName = "sghmc"

// SGHMC is the immutable configuration of a stochastic gradient
// Hamiltonian Monte Carlo kernel.
//
// Description:
//
//	Each run step moves the position by the current velocity, then updates
//	the velocity with friction, the gradient and injected noise:
//
//	  θ ← θ + v
//	  v ← (1 − α)·v + η·∇log p(θ_old) + N(0, 2ηα)
//
// Thread Safety: Safe for concurrent use; chains are not.
type SGHMC struct {
	iterations    int
	learningRate  float64
	momentumDecay float64
	space         kernel.RestrictionSet
}

// NewSGHMC creates an SGHMC kernel.
//
// Inputs:
//   - iterations: Number of steps the chain will take. Must be > 0.
//   - learningRate: η, must be >= 0.
//   - momentumDecay: α, must lie in [0, 1].
//   - space: Variables to update. None means all.
//
// Outputs:
//   - *SGHMC: The kernel configuration.
//   - error: Wraps kernel.ErrInvalidConfiguration on out-of-range input.
func NewSGHMC(iterations int, learningRate, momentumDecay float64, space ...string) (*SGHMC, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", kernel.ErrInvalidConfiguration, iterations)
	}
	if !(learningRate >= 0) || !kernel.AllFinite([]float64{learningRate}) {
		return nil, fmt.Errorf("%w: learning rate must be a finite value >= 0, got %g", kernel.ErrInvalidConfiguration, learningRate)
	}
	if !(momentumDecay >= 0 && momentumDecay <= 1) {
		return nil, fmt.Errorf("%w: momentum decay must lie in [0, 1], got %g", kernel.ErrInvalidConfiguration, momentumDecay)
	}
	return &SGHMC{
		iterations:    iterations,
		learningRate:  learningRate,
		momentumDecay: momentumDecay,
		space:         kernel.NewRestrictionSet(space...),
	}, nil
}

// Iterations returns the configured number of steps.
func (k *SGHMC) Iterations() int { return k.iterations }

// LearningRate returns η.
func (k *SGHMC) LearningRate() float64 { return k.learningRate }

// MomentumDecay returns α.
func (k *SGHMC) MomentumDecay() float64 { return k.momentumDecay }

// Space returns the restriction set.
func (k *SGHMC) Space() kernel.RestrictionSet { return k.space }

// NewChain creates a chain driven by this kernel.
//
// Inputs:
//   - oracle: Gradient oracle of the target. Must not be nil.
//   - src: Random source for the injected noise. Must not be nil.
//
// Outputs:
//   - *SGHMCChain: A chain in kernel.PhaseUninitialized.
//   - error: Wraps kernel.ErrInvalidConfiguration when a collaborator is missing.
func (k *SGHMC) NewChain(oracle kernel.GradientOracle, src rand.Source) (*SGHMCChain, error) {
	if oracle == nil || src == nil {
		return nil, fmt.Errorf("%w: oracle and random source are required", kernel.ErrInvalidConfiguration)
	}
	return &SGHMCChain{
		kernel: k,
		oracle: oracle,
		src:    src,
		logger: slog.Default().With(slog.String("component", "sgmcmc"), slog.String("kernel", SGHMCName)),
	}, nil
}

// SGHMCChain is the run state of one SGHMC chain.
//
// Thread Safety: Not safe for concurrent use.
type SGHMCChain struct {
	kernel *SGHMC
	oracle kernel.GradientOracle
	src    rand.Source
	logger *slog.Logger

	phase    kernel.Phase
	velocity []float64
	steps    int
}

var _ kernel.Transition = (*SGHMCChain)(nil)

// Phase returns the chain's phase.
func (c *SGHMCChain) Phase() kernel.Phase { return c.phase }

// Velocity returns a copy of the current velocity. Nil before the init step.
func (c *SGHMCChain) Velocity() []float64 {
	if c.velocity == nil {
		return nil
	}
	out := make([]float64, len(c.velocity))
	copy(out, c.velocity)
	return out
}

// Step performs one transition on state.
//
// Description:
//
//	The first call allocates a zero velocity sized to the restricted
//	sub-vector and leaves the state unchanged. Later calls perform the
//	SGHMC update. On a gradient failure the state is mapped back to
//	constrained space unchanged and kernel.ErrInvalidGradient is returned.
//
// Outputs:
//   - kernel.StepResult: Always accepted on success.
//   - error: kernel.ErrInvalidGradient, kernel.ErrChainFinished, or a
//     LatentState error.
func (c *SGHMCChain) Step(ctx context.Context, state kernel.LatentState) (kernel.StepResult, error) {
	if c.steps >= c.kernel.iterations {
		return kernel.StepResult{}, fmt.Errorf("%w: %d of %d steps taken", kernel.ErrChainFinished, c.steps, c.kernel.iterations)
	}

	if c.phase == kernel.PhaseUninitialized {
		c.velocity = make([]float64, len(state.Values(c.kernel.space)))
		c.phase = kernel.PhaseRunning
		c.steps++
		c.logger.Debug("sghmc chain initialized", slog.Int("dim", len(c.velocity)))
		return kernel.StepResult{Accepted: true, LogDensity: state.LogDensity(), StepSize: c.kernel.learningRate}, nil
	}

	space := c.kernel.space
	if err := state.Link(space); err != nil {
		return kernel.StepResult{}, kernel.AbortStep(state, space, fmt.Errorf("link: %w", err))
	}

	theta := state.Values(space)
	if len(theta) != len(c.velocity) {
		return kernel.StepResult{}, kernel.AbortStep(state, space, fmt.Errorf("%w: latent dimension %d, velocity dimension %d",
			kernel.ErrDimensionMismatch, len(theta), len(c.velocity)))
	}

	logp, grad, err := kernel.EvaluateGradient(ctx, c.oracle, theta)
	if err != nil {
		return kernel.StepResult{}, kernel.AbortStep(state, space, err)
	}

	eta, alpha := c.kernel.learningRate, c.kernel.momentumDecay

	// Position moves with the velocity of the previous step.
	floats.Add(theta, c.velocity)

	noise := kernel.NormalNoise(c.src, 2*eta*alpha, len(theta))
	floats.Scale(1-alpha, c.velocity)
	floats.AddScaled(c.velocity, eta, grad)
	floats.Add(c.velocity, noise)

	if err := kernel.CommitStep(state, space, theta); err != nil {
		return kernel.StepResult{}, err
	}
	// logp belongs to the pre-move position; the gradient is taken before the move.
	state.SetLogDensity(logp)
	c.steps++

	return kernel.StepResult{Accepted: true, LogDensity: logp, StepSize: eta, PathLength: 1}, nil
}
