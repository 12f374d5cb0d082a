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
	"errors"
	"math"
	"testing"

	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHamiltonian(t *testing.T) {
	assert.InDelta(t, 2.5+2, Hamiltonian(-2.5, []float64{2, 0}), 1e-12)
}

func TestLeapfrogIntegrator_PathLength(t *testing.T) {
	li := NewLeapfrogIntegrator(kernel.NewSource(1))
	assert.Equal(t, 10, li.PathLength(1, 0.1))
	assert.Equal(t, 1, li.PathLength(0.01, 1))
	assert.Equal(t, DefaultMaxLeapfrogSteps, li.PathLength(1, 1e-9))
}

func TestLeapfrogIntegrator_SmallStepsConserveEnergy(t *testing.T) {
	li := NewLeapfrogIntegrator(kernel.NewSource(5))
	theta := []float64{0.5, -1}
	logp, _, err := standardNormal(context.Background(), theta)
	require.NoError(t, err)

	adaptor := &countingAdaptor{eps: 0.01}
	res, err := li.Trajectory(context.Background(), TrajectoryRequest{
		Theta:          theta,
		LogDensity:     logp,
		Target:         standardNormal,
		Hamiltonian:    Hamiltonian,
		StepSize:       0.01,
		Lambda:         0.5,
		SampleMomentum: func(n int) []float64 { return kernel.StandardNormal(kernel.NewSource(9), n) },
		Adaptor:        adaptor,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, res.PathLength)
	assert.Greater(t, res.AcceptProb, 0.99)
	assert.Equal(t, 1, adaptor.adapts)
	assert.Equal(t, []float64{0.5, -1}, theta, "input must not be modified")
	if res.Accepted {
		got, _, err := standardNormal(context.Background(), res.Theta)
		require.NoError(t, err)
		assert.InDelta(t, got, res.LogDensity, 1e-12)
	}
}

func TestLeapfrogIntegrator_InvalidGradientMidTrajectory(t *testing.T) {
	calls := 0
	flaky := kernel.GradientFunc(func(_ context.Context, theta []float64) (float64, []float64, error) {
		calls++
		if calls > 2 {
			return 0, []float64{math.NaN()}, nil
		}
		return -theta[0] * theta[0] / 2, []float64{-theta[0]}, nil
	})
	li := NewLeapfrogIntegrator(kernel.NewSource(1))

	_, err := li.Trajectory(context.Background(), TrajectoryRequest{
		Theta:          []float64{1},
		LogDensity:     -0.5,
		Target:         flaky,
		Hamiltonian:    Hamiltonian,
		StepSize:       0.1,
		Lambda:         1,
		SampleMomentum: func(n int) []float64 { return make([]float64, n) },
	})
	assert.True(t, errors.Is(err, kernel.ErrInvalidGradient))
}

func TestLeapfrogIntegrator_RejectsIncompleteRequest(t *testing.T) {
	li := NewLeapfrogIntegrator(kernel.NewSource(1))
	_, err := li.Trajectory(context.Background(), TrajectoryRequest{Theta: []float64{0}, StepSize: 0.1})
	assert.ErrorIs(t, err, kernel.ErrInvalidConfiguration)
}

func TestFindReasonableStepSize(t *testing.T) {
	theta := []float64{1, 1, 1}
	logp, grad, err := standardNormal(context.Background(), theta)
	require.NoError(t, err)

	eps := FindReasonableStepSize(context.Background(), standardNormal, theta, logp, grad, kernel.NewSource(3))
	assert.Greater(t, eps, 0.0)
	assert.LessOrEqual(t, eps, 32.0)
}

func TestDualAveraging(t *testing.T) {
	t.Run("high acceptance grows the step size", func(t *testing.T) {
		d := NewDualAveraging(0.1, 0.65)
		for i := 0; i < 50; i++ {
			d.Adapt(1)
		}
		assert.Greater(t, d.StepSize(), 0.1)
	})

	t.Run("low acceptance shrinks the step size", func(t *testing.T) {
		d := NewDualAveraging(0.1, 0.65)
		for i := 0; i < 50; i++ {
			d.Adapt(0)
		}
		assert.Less(t, d.StepSize(), 0.1)
	})

	t.Run("finish freezes the averaged step size", func(t *testing.T) {
		d := NewDualAveraging(0.1, 0.65)
		for i := 0; i < 10; i++ {
			d.Adapt(0.3)
		}
		d.Finish()
		frozen := d.StepSize()
		d.Adapt(1)
		d.Adapt(1)
		assert.Equal(t, frozen, d.StepSize())
		assert.True(t, d.Finished())
		assert.Equal(t, 10, d.Adaptations())
	})

	t.Run("finish without adaptation keeps the initial step size", func(t *testing.T) {
		d := NewDualAveraging(0.3, 0.65)
		d.Finish()
		assert.InDelta(t, 0.3, d.StepSize(), 1e-12)
	})

	t.Run("nan acceptance counts as zero", func(t *testing.T) {
		a := NewDualAveraging(0.1, 0.65)
		b := NewDualAveraging(0.1, 0.65)
		a.Adapt(math.NaN())
		b.Adapt(0)
		assert.Equal(t, b.StepSize(), a.StepSize())
	})
}
