// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package demo provides built-in targets for the sampler command.
//
// GaussianTarget is an isotropic Gaussian with an analytic gradient, used by
// the gradient-based kernels. ConjugateModel is a Gaussian prior with a
// single Gaussian observation whose importance sweep drives IPMCMC.
package demo

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"github.com/AleutianAI/AleutianMCMC/services/sampler/ipmcmc"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
)

// VariableName is the name of the single vector variable of demo states.
const VariableName = "theta"

// NewState returns a state holding theta = init repeated dim times.
func NewState(dim int, init float64) (*kernel.VectorState, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dim must be positive, got %d", kernel.ErrInvalidConfiguration, dim)
	}
	values := make([]float64, dim)
	for i := range values {
		values[i] = init
	}
	return kernel.NewVectorState(kernel.Variable{Name: VariableName, Values: values})
}

// =============================================================================
// Gaussian target
// =============================================================================

// GaussianTarget is N(Mean·1, Sigma²·I).
type GaussianTarget struct {
	Mean  float64
	Sigma float64
}

var _ kernel.GradientOracle = GaussianTarget{}

// LogDensityGradient returns the unnormalized log density and its gradient.
func (g GaussianTarget) LogDensityGradient(_ context.Context, theta []float64) (float64, []float64, error) {
	if !(g.Sigma > 0) {
		return 0, nil, fmt.Errorf("%w: sigma must be positive, got %g", kernel.ErrInvalidConfiguration, g.Sigma)
	}
	grad := make([]float64, len(theta))
	copy(grad, theta)
	floats.AddConst(-g.Mean, grad)
	logp := -0.5 * floats.Dot(grad, grad) / (g.Sigma * g.Sigma)
	floats.Scale(-1/(g.Sigma*g.Sigma), grad)
	return logp, grad, nil
}

// =============================================================================
// Conjugate model
// =============================================================================

// ConjugateModel is theta ~ N(0, PriorSigma²·I) observed once through
// y ~ N(theta, NoiseSigma²·I).
//
// Description:
//
//	Sweep is a one-step importance sampler with the prior as proposal.
//	Conditional slots keep the reference as particle 0. The retained state
//	is drawn with the slot's resampler, and the log evidence is the log
//	mean importance weight. With a single observation there is no
//	intermediate resampling step, so ResampleThreshold does not apply.
//
// Thread Safety: Safe for concurrent use; the template is only cloned.
type ConjugateModel struct {
	PriorSigma  float64
	NoiseSigma  float64
	Observation []float64

	template *kernel.VectorState
}

var _ ipmcmc.Sweeper = (*ConjugateModel)(nil)

// NewConjugateModel builds the model for one observation vector.
func NewConjugateModel(priorSigma, noiseSigma float64, observation []float64) (*ConjugateModel, error) {
	if !(priorSigma > 0) || !(noiseSigma > 0) {
		return nil, fmt.Errorf("%w: sigmas must be positive, got %g and %g",
			kernel.ErrInvalidConfiguration, priorSigma, noiseSigma)
	}
	template, err := NewState(len(observation), 0)
	if err != nil {
		return nil, err
	}
	return &ConjugateModel{
		PriorSigma:  priorSigma,
		NoiseSigma:  noiseSigma,
		Observation: append([]float64(nil), observation...),
		template:    template,
	}, nil
}

// PosteriorMean returns the exact posterior mean of theta.
func (m *ConjugateModel) PosteriorMean() []float64 {
	prior, noise := m.PriorSigma*m.PriorSigma, m.NoiseSigma*m.NoiseSigma
	mean := append([]float64(nil), m.Observation...)
	floats.Scale(prior/(prior+noise), mean)
	return mean
}

// Sweep runs one importance sweep for a node.
func (m *ConjugateModel) Sweep(ctx context.Context, node ipmcmc.NodeKernel, reference kernel.LatentState, src rand.Source) (kernel.LatentState, float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	base := kernel.LatentState(m.template)
	if reference != nil {
		base = reference
	}
	full := kernel.NewRestrictionSet()
	baseValues := base.Values(full)
	if len(baseValues) != len(m.Observation) {
		return nil, 0, fmt.Errorf("%w: state has %d values, observation %d",
			kernel.ErrInvalidConfiguration, len(baseValues), len(m.Observation))
	}

	particles := make([]kernel.LatentState, node.Particles)
	logW := make([]float64, node.Particles)
	dim := len(base.Values(node.Space))
	for i := range particles {
		p := base.Clone()
		if !(i == 0 && reference != nil) {
			if err := p.SetValues(node.Space, kernel.NormalNoise(src, m.PriorSigma*m.PriorSigma, dim)); err != nil {
				return nil, 0, err
			}
		}
		logW[i] = m.logLikelihood(p.Values(full))
		particles[i] = p
	}

	logZ := floats.LogSumExp(logW) - math.Log(float64(node.Particles))
	weights := make([]float64, len(logW))
	maxW := floats.Max(logW)
	for i, lw := range logW {
		weights[i] = math.Exp(lw - maxW)
	}

	idx, err := node.Resampler(src, weights, 1)
	if err != nil {
		return nil, 0, fmt.Errorf("select retained particle: %w", err)
	}
	out := particles[idx[0]]
	out.SetLogDensity(logW[idx[0]])
	return out, logZ, nil
}

func (m *ConjugateModel) logLikelihood(theta []float64) float64 {
	resid := make([]float64, len(theta))
	floats.SubTo(resid, theta, m.Observation)
	return -0.5 * floats.Dot(resid, resid) / (m.NoiseSigma * m.NoiseSigma)
}
