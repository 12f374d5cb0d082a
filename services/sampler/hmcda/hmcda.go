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
	"log/slog"
	"math"

	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
	"golang.org/x/exp/rand"
)

// Name identifies the kernel in logs, spans and metrics.
const Name = "hmcda"

// MaxDefaultAdapts caps the default adaptation window.
const MaxDefaultAdapts = 1000

// HMCDA is the immutable configuration of an adaptive Hamiltonian kernel.
//
// Thread Safety: Safe for concurrent use; chains are not.
type HMCDA struct {
	iterations   int
	adapts       int
	delta        float64
	lambda       float64
	initStepSize float64
	space        kernel.RestrictionSet
}

// DefaultAdapts returns the default adaptation window for a run of
// iterations steps: round(iterations/2), capped at MaxDefaultAdapts.
func DefaultAdapts(iterations int) int {
	n := int(math.Round(float64(iterations) / 2))
	if n > MaxDefaultAdapts {
		n = MaxDefaultAdapts
	}
	return n
}

// New creates an HMCDA kernel with the default adaptation window.
//
// Inputs:
//   - iterations: Number of steps. Must be > 0.
//   - delta: Target acceptance rate, in (0, 1).
//   - lambda: Target path length, > 0.
//   - space: Variables to update. None means all.
func New(iterations int, delta, lambda float64, space ...string) (*HMCDA, error) {
	return NewWithAdapts(iterations, DefaultAdapts(iterations), delta, lambda, space...)
}

// NewWithAdapts creates an HMCDA kernel with an explicit adaptation window.
//
// Outputs:
//   - *HMCDA: The kernel configuration.
//   - error: Wraps kernel.ErrInvalidConfiguration when iterations <= 0,
//     adapts is outside [0, iterations], delta is outside (0, 1) or lambda
//     is not a positive finite value.
func NewWithAdapts(iterations, adapts int, delta, lambda float64, space ...string) (*HMCDA, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", kernel.ErrInvalidConfiguration, iterations)
	}
	if adapts < 0 || adapts > iterations {
		return nil, fmt.Errorf("%w: adapts must lie in [0, %d], got %d", kernel.ErrInvalidConfiguration, iterations, adapts)
	}
	if !(delta > 0 && delta < 1) {
		return nil, fmt.Errorf("%w: delta must lie in (0, 1), got %g", kernel.ErrInvalidConfiguration, delta)
	}
	if !(lambda > 0) || math.IsInf(lambda, 1) {
		return nil, fmt.Errorf("%w: lambda must be a finite value > 0, got %g", kernel.ErrInvalidConfiguration, lambda)
	}
	return &HMCDA{
		iterations: iterations,
		adapts:     adapts,
		delta:      delta,
		lambda:     lambda,
		space:      kernel.NewRestrictionSet(space...),
	}, nil
}

// WithInitStepSize returns a copy using eps as the initial step size
// instead of the doubling/halving heuristic.
func (k *HMCDA) WithInitStepSize(eps float64) (*HMCDA, error) {
	if !(eps > 0) || math.IsInf(eps, 1) {
		return nil, fmt.Errorf("%w: initial step size must be a finite value > 0, got %g", kernel.ErrInvalidConfiguration, eps)
	}
	out := *k
	out.initStepSize = eps
	return &out, nil
}

// Iterations returns the configured number of steps.
func (k *HMCDA) Iterations() int { return k.iterations }

// Adapts returns the length of the adaptation window.
func (k *HMCDA) Adapts() int { return k.adapts }

// Delta returns the target acceptance rate.
func (k *HMCDA) Delta() float64 { return k.delta }

// Lambda returns the target path length.
func (k *HMCDA) Lambda() float64 { return k.lambda }

// InitStepSize returns the fixed initial step size, 0 when the heuristic
// is used.
func (k *HMCDA) InitStepSize() float64 { return k.initStepSize }

// Space returns the restriction set.
func (k *HMCDA) Space() kernel.RestrictionSet { return k.space }

// Transition forwards one step to the integrator.
//
// Description:
//
//	req.Lambda is overwritten with the configured target path length. The
//	integrator's acceptance probability is discarded.
//
// Outputs:
//   - []float64: New position.
//   - float64: Log density at the new position.
//   - bool: Whether the proposal was accepted.
//   - int: Leapfrog steps used.
//   - error: Any integrator error, or kernel.ErrInvalidGradient when the
//     returned position or log density is not finite.
func (k *HMCDA) Transition(ctx context.Context, integrator Integrator, req TrajectoryRequest) ([]float64, float64, bool, int, error) {
	req.Lambda = k.lambda
	res, err := integrator.Trajectory(ctx, req)
	if err != nil {
		return nil, 0, false, 0, err
	}
	if math.IsNaN(res.LogDensity) || math.IsInf(res.LogDensity, 0) {
		return nil, 0, false, 0, fmt.Errorf("%w: trajectory log density is %g", kernel.ErrInvalidGradient, res.LogDensity)
	}
	if !kernel.AllFinite(res.Theta) {
		return nil, 0, false, 0, fmt.Errorf("%w: trajectory position is not finite", kernel.ErrInvalidGradient)
	}
	return res.Theta, res.LogDensity, res.Accepted, res.PathLength, nil
}

// NewChain creates a chain driven by this kernel.
//
// Inputs:
//   - oracle: Gradient oracle of the target. Required.
//   - integrator: Trajectory integrator. Nil uses a LeapfrogIntegrator on src.
//   - adaptor: Step-size adaptor. Nil creates a DualAveraging adaptor at the
//     init step.
//   - src: Random source for momenta and the step-size heuristic. Required.
func (k *HMCDA) NewChain(oracle kernel.GradientOracle, integrator Integrator, adaptor StepSizeAdaptor, src rand.Source) (*Chain, error) {
	if oracle == nil || src == nil {
		return nil, fmt.Errorf("%w: oracle and random source are required", kernel.ErrInvalidConfiguration)
	}
	if integrator == nil {
		integrator = NewLeapfrogIntegrator(src)
	}
	return &Chain{
		kernel:     k,
		oracle:     oracle,
		integrator: integrator,
		adaptor:    adaptor,
		src:        src,
		logger:     slog.Default().With(slog.String("component", "hmcda")),
	}, nil
}

// Chain is the run state of one HMCDA chain.
//
// Thread Safety: Not safe for concurrent use.
type Chain struct {
	kernel     *HMCDA
	oracle     kernel.GradientOracle
	integrator Integrator
	adaptor    StepSizeAdaptor
	src        rand.Source
	logger     *slog.Logger

	phase     kernel.Phase
	iteration int
	steps     int
	adapted   bool
}

var _ kernel.Transition = (*Chain)(nil)

// Phase returns the chain's phase.
func (c *Chain) Phase() kernel.Phase { return c.phase }

// Iteration returns the 1-based index of the last run step.
func (c *Chain) Iteration() int { return c.iteration }

// StepSize returns the adaptor's current step size, 0 before the init step.
func (c *Chain) StepSize() float64 {
	if c.adaptor == nil {
		return 0
	}
	return c.adaptor.StepSize()
}

// Step performs one transition on state.
func (c *Chain) Step(ctx context.Context, state kernel.LatentState) (kernel.StepResult, error) {
	if c.steps >= c.kernel.iterations {
		return kernel.StepResult{}, fmt.Errorf("%w: %d of %d steps taken", kernel.ErrChainFinished, c.steps, c.kernel.iterations)
	}
	if c.phase == kernel.PhaseUninitialized {
		return c.initialize(ctx, state)
	}

	c.iteration++
	c.steps++
	space := c.kernel.space
	if err := state.Link(space); err != nil {
		return kernel.StepResult{}, kernel.AbortStep(state, space, fmt.Errorf("link: %w", err))
	}

	eps := c.adaptor.StepSize()
	req := TrajectoryRequest{
		Theta:       state.Values(space),
		LogDensity:  state.LogDensity(),
		Target:      c.oracle,
		Hamiltonian: Hamiltonian,
		StepSize:    eps,
		SampleMomentum: func(n int) []float64 {
			return kernel.StandardNormal(c.src, n)
		},
	}
	if c.iteration <= c.kernel.adapts {
		req.Adaptor = c.adaptor
	}

	theta, logp, accepted, pathLength, err := c.kernel.Transition(ctx, c.integrator, req)
	if err != nil {
		return kernel.StepResult{}, kernel.AbortStep(state, space, err)
	}
	if err := kernel.CommitStep(state, space, theta); err != nil {
		return kernel.StepResult{}, err
	}
	state.SetLogDensity(logp)

	if c.iteration == c.kernel.adapts && !c.adapted {
		c.adaptor.Finish()
		c.adapted = true
		c.logger.Info("step size adaptation finished",
			slog.Int("iteration", c.iteration),
			slog.Float64("step_size", c.adaptor.StepSize()),
		)
	}

	return kernel.StepResult{Accepted: accepted, LogDensity: logp, StepSize: eps, PathLength: pathLength}, nil
}

// initialize evaluates the starting point and settles the initial step size.
func (c *Chain) initialize(ctx context.Context, state kernel.LatentState) (kernel.StepResult, error) {
	space := c.kernel.space
	if err := state.Link(space); err != nil {
		return kernel.StepResult{}, kernel.AbortStep(state, space, fmt.Errorf("link: %w", err))
	}
	theta := state.Values(space)
	logp, grad, err := kernel.EvaluateGradient(ctx, c.oracle, theta)
	if err != nil {
		return kernel.StepResult{}, kernel.AbortStep(state, space, fmt.Errorf("initial point: %w", err))
	}
	if err := state.Invlink(space); err != nil {
		return kernel.StepResult{}, fmt.Errorf("invlink: %w", err)
	}
	state.SetLogDensity(logp)

	if c.adaptor == nil {
		eps := c.kernel.initStepSize
		if eps == 0 {
			eps = FindReasonableStepSize(ctx, c.oracle, theta, logp, grad, c.src)
		}
		c.adaptor = NewDualAveraging(eps, c.kernel.delta)
	}

	c.phase = kernel.PhaseRunning
	c.steps++
	c.logger.Debug("hmcda chain initialized",
		slog.Int("dim", len(theta)),
		slog.Float64("step_size", c.adaptor.StepSize()),
		slog.Int("adapts", c.kernel.adapts),
	)
	return kernel.StepResult{Accepted: true, LogDensity: logp, StepSize: c.adaptor.StepSize()}, nil
}
