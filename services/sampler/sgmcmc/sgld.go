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

// SGLDName identifies the kernel in logs, spans and metrics.
const SGLDName = "sgld"

// SGLDDecayExponent is the exponent of the SGLD step-size schedule
// ϵ_t = ϵ / t^0.35.
const SGLDDecayExponent = 0.35

// SGLD is the immutable configuration of a stochastic gradient Langevin
// dynamics kernel.
//
// Description:
//
//	Run step t (1-based) uses ϵ_t = ϵ / t^0.35 and applies
//
//	  θ ← θ + ϵ_t·∇log p(θ)/2 − N(0, ϵ_t)
//
// Thread Safety: Safe for concurrent use; chains are not.
type SGLD struct {
	iterations int
	stepSize   float64
	space      kernel.RestrictionSet
}

// NewSGLD creates an SGLD kernel.
//
// Inputs:
//   - iterations: Number of steps the chain will take. Must be > 0.
//   - stepSize: Initial step size ϵ. Must be finite and > 0.
//   - space: Variables to update. None means all.
//
// Outputs:
//   - *SGLD: The kernel configuration.
//   - error: Wraps kernel.ErrInvalidConfiguration on out-of-range input.
func NewSGLD(iterations int, stepSize float64, space ...string) (*SGLD, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", kernel.ErrInvalidConfiguration, iterations)
	}
	if !(stepSize > 0) || !kernel.AllFinite([]float64{stepSize}) {
		return nil, fmt.Errorf("%w: step size must be a finite value > 0, got %g", kernel.ErrInvalidConfiguration, stepSize)
	}
	return &SGLD{
		iterations: iterations,
		stepSize:   stepSize,
		space:      kernel.NewRestrictionSet(space...),
	}, nil
}

// Iterations returns the configured number of steps.
func (k *SGLD) Iterations() int { return k.iterations }

// StepSize returns the initial step size ϵ.
func (k *SGLD) StepSize() float64 { return k.stepSize }

// Space returns the restriction set.
func (k *SGLD) Space() kernel.RestrictionSet { return k.space }

// NewChain creates a chain driven by this kernel.
func (k *SGLD) NewChain(oracle kernel.GradientOracle, src rand.Source) (*SGLDChain, error) {
	if oracle == nil || src == nil {
		return nil, fmt.Errorf("%w: oracle and random source are required", kernel.ErrInvalidConfiguration)
	}
	return &SGLDChain{
		kernel: k,
		oracle: oracle,
		src:    src,
		logger: slog.Default().With(slog.String("component", "sgmcmc"), slog.String("kernel", SGLDName)),
	}, nil
}

// SGLDChain is the run state of one SGLD chain.
//
// Thread Safety: Not safe for concurrent use.
type SGLDChain struct {
	kernel *SGLD
	oracle kernel.GradientOracle
	src    rand.Source
	logger *slog.Logger

	phase     kernel.Phase
	schedule  kernel.PolynomialDecay
	iteration int
	steps     int
}

var _ kernel.Transition = (*SGLDChain)(nil)

// Phase returns the chain's phase.
func (c *SGLDChain) Phase() kernel.Phase { return c.phase }

// Iteration returns the 1-based index of the last run step, 0 before any.
func (c *SGLDChain) Iteration() int { return c.iteration }

// Step performs one transition on state.
//
// Description:
//
//	The first call builds the step-size schedule and leaves the state
//	unchanged. Each later call advances the schedule and applies one
//	Langevin update. The iteration counter advances before the gradient is
//	evaluated, so a failed step still consumes its schedule slot.
func (c *SGLDChain) Step(ctx context.Context, state kernel.LatentState) (kernel.StepResult, error) {
	if c.steps >= c.kernel.iterations {
		return kernel.StepResult{}, fmt.Errorf("%w: %d of %d steps taken", kernel.ErrChainFinished, c.steps, c.kernel.iterations)
	}

	if c.phase == kernel.PhaseUninitialized {
		c.schedule = kernel.PolynomialDecay{Scale: c.kernel.stepSize, Exponent: SGLDDecayExponent}
		c.phase = kernel.PhaseRunning
		c.steps++
		c.logger.Debug("sgld chain initialized", slog.Float64("step_size", c.kernel.stepSize))
		return kernel.StepResult{Accepted: true, LogDensity: state.LogDensity(), StepSize: c.kernel.stepSize}, nil
	}

	c.iteration++
	c.steps++
	eps := c.schedule.At(c.iteration)

	space := c.kernel.space
	if err := state.Link(space); err != nil {
		return kernel.StepResult{}, kernel.AbortStep(state, space, fmt.Errorf("link: %w", err))
	}

	theta := state.Values(space)
	logp, grad, err := kernel.EvaluateGradient(ctx, c.oracle, theta)
	if err != nil {
		return kernel.StepResult{}, kernel.AbortStep(state, space, err)
	}

	noise := kernel.NormalNoise(c.src, eps, len(theta))
	floats.AddScaled(theta, eps/2, grad)
	floats.Sub(theta, noise)

	if err := kernel.CommitStep(state, space, theta); err != nil {
		return kernel.StepResult{}, err
	}
	// logp belongs to the pre-move position; the gradient is taken before the move.
	state.SetLogDensity(logp)

	return kernel.StepResult{Accepted: true, LogDensity: logp, StepSize: eps, PathLength: 1}, nil
}
