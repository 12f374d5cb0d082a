// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ipmcmc

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

type sweepCall struct {
	kind         Kind
	hasReference bool
}

// uniformSweeper returns a fresh one-variable state drawn from the node's
// stream and a log evidence drawn from the same stream.
type uniformSweeper struct {
	mu    sync.Mutex
	calls []sweepCall
}

func (u *uniformSweeper) Sweep(_ context.Context, node NodeKernel, reference kernel.LatentState, src rand.Source) (kernel.LatentState, float64, error) {
	u.mu.Lock()
	u.calls = append(u.calls, sweepCall{kind: node.Kind, hasReference: reference != nil})
	u.mu.Unlock()

	x := kernel.Uniform(src)
	if reference != nil {
		// Conditional sweeps keep the reference path half of the time.
		if kernel.Uniform(src) < 0.5 {
			x = reference.Values(kernel.RestrictionSet{})[0]
		}
	}
	state, err := kernel.NewVectorState(kernel.Variable{Name: "x", Values: []float64{x}})
	if err != nil {
		return nil, 0, err
	}
	return state, 3 * kernel.Uniform(src), nil
}

func TestNew_Validation(t *testing.T) {
	valid := Config{Particles: 10, Iterations: 5, Nodes: 4, ConditionalNodes: 2}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero particles", mutate: func(c *Config) { c.Particles = 0 }},
		{name: "zero iterations", mutate: func(c *Config) { c.Iterations = 0 }},
		{name: "zero nodes", mutate: func(c *Config) { c.Nodes = 0 }},
		{name: "zero conditional nodes", mutate: func(c *Config) { c.ConditionalNodes = 0 }},
		{name: "more conditional nodes than nodes", mutate: func(c *Config) { c.ConditionalNodes = 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, kernel.ErrInvalidConfiguration)
		})
	}

	_, err := New(valid)
	assert.NoError(t, err)
}

func TestNew_ChildKernels(t *testing.T) {
	k, err := New(Config{Particles: 10, Iterations: 5, Nodes: 4, ConditionalNodes: 2, Space: []string{"x"}})
	require.NoError(t, err)

	kernels := k.Kernels()
	require.Len(t, kernels, 4)
	for s, nk := range kernels {
		assert.Equal(t, 10, nk.Particles)
		assert.True(t, nk.Space.Contains("x"))
		assert.False(t, nk.Space.IsAll())
		assert.NotNil(t, nk.Resampler)
		if s < 2 {
			assert.Equal(t, KindCSMC, nk.Kind)
			assert.Equal(t, 1, nk.RetainedPaths)
		} else {
			assert.Equal(t, KindSMC, nk.Kind)
			assert.Equal(t, 1.0, nk.ResampleThreshold)
			assert.Equal(t, 0, nk.RetainedPaths)
		}
	}
}

func TestChain_SampleCountAndWeights(t *testing.T) {
	k, err := New(Config{Particles: 10, Iterations: 5, Nodes: 4, ConditionalNodes: 2})
	require.NoError(t, err)
	chain, err := k.NewChain(&uniformSweeper{}, 1)
	require.NoError(t, err)

	res, err := chain.Sample(context.Background())
	require.NoError(t, err)

	require.Equal(t, 10, res.Samples.Len())
	require.Equal(t, 10, res.Samples.Cap())
	for _, s := range res.Samples.Samples() {
		assert.InDelta(t, 0.1, s.Weight, 1e-15)
	}
	assert.InDelta(t, 1, res.Samples.TotalWeight(), 1e-12)
	assert.Equal(t, kernel.PhaseRunning, chain.Phase())
	assert.Equal(t, 5, chain.Iteration())

	_, err = chain.Iterate(context.Background())
	assert.ErrorIs(t, err, kernel.ErrChainFinished)
}

func TestChain_SampleRequiresFreshChain(t *testing.T) {
	k, err := New(Config{Particles: 10, Iterations: 5, Nodes: 4, ConditionalNodes: 2})
	require.NoError(t, err)
	chain, err := k.NewChain(&uniformSweeper{}, 1)
	require.NoError(t, err)

	_, err = chain.Iterate(context.Background())
	require.NoError(t, err)

	res, err := chain.Sample(context.Background())
	assert.ErrorIs(t, err, kernel.ErrInvalidConfiguration)
	assert.Nil(t, res.Samples)
	assert.Equal(t, 1, chain.Iteration())
}

func TestChain_SampleStatsCarryNoPathLength(t *testing.T) {
	k, err := New(Config{Particles: 10, Iterations: 3, Nodes: 3, ConditionalNodes: 1})
	require.NoError(t, err)
	chain, err := k.NewChain(&uniformSweeper{}, 2)
	require.NoError(t, err)

	res, err := chain.Sample(context.Background())
	require.NoError(t, err)
	for _, s := range res.Samples.Samples() {
		assert.Zero(t, s.Stats.PathLength)
		assert.True(t, s.Stats.Accepted)
	}
}

func TestChain_AllNodesConditionalNeverSwap(t *testing.T) {
	k, err := New(Config{Particles: 4, Iterations: 20, Nodes: 3, ConditionalNodes: 3})
	require.NoError(t, err)
	chain, err := k.NewChain(&uniformSweeper{}, 7)
	require.NoError(t, err)

	res, err := chain.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60, res.Samples.Len())
	assert.Equal(t, 0, chain.RoleSwaps())
	assert.Equal(t, []int{0, 1, 2}, chain.Order())
}

func TestChain_ReferencePaths(t *testing.T) {
	k, err := New(Config{Particles: 4, Iterations: 2, Nodes: 3, ConditionalNodes: 1})
	require.NoError(t, err)
	sweeper := &uniformSweeper{}
	chain, err := k.NewChain(sweeper, 3)
	require.NoError(t, err)

	_, err = chain.Iterate(context.Background())
	require.NoError(t, err)
	for _, call := range sweeper.calls {
		assert.False(t, call.hasReference, "no node has a retained path in the first iteration")
	}

	sweeper.calls = nil
	_, err = chain.Iterate(context.Background())
	require.NoError(t, err)
	require.Len(t, sweeper.calls, 3)
	for _, call := range sweeper.calls {
		assert.Equal(t, call.kind == KindCSMC, call.hasReference)
	}
}

func TestChain_OrderIsPermutationOfNodeIDs(t *testing.T) {
	k, err := New(Config{Particles: 4, Iterations: 30, Nodes: 5, ConditionalNodes: 2})
	require.NoError(t, err)
	chain, err := k.NewChain(&uniformSweeper{}, 11)
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		snaps, err := chain.Iterate(context.Background())
		require.NoError(t, err)
		require.Len(t, snaps, 2)

		order := chain.Order()
		seen := map[int]bool{}
		for _, id := range order {
			seen[id] = true
		}
		require.Len(t, seen, 5)
		for s := 0; s < 2; s++ {
			node := chain.Node(order[s])
			assert.Equal(t, node.State.Snapshot().Values, snaps[s].Values)
		}
	}
	assert.Greater(t, chain.RoleSwaps(), 0)
}

func TestChain_ReproducibleAcrossConcurrency(t *testing.T) {
	run := func(limit int) []float64 {
		k, err := New(Config{Particles: 4, Iterations: 10, Nodes: 6, ConditionalNodes: 2, MaxConcurrency: limit})
		require.NoError(t, err)
		chain, err := k.NewChain(&uniformSweeper{}, 99)
		require.NoError(t, err)
		res, err := chain.Sample(context.Background())
		require.NoError(t, err)
		out := make([]float64, 0, res.Samples.Len())
		for _, s := range res.Samples.Samples() {
			out = append(out, s.Snapshot.Values[0])
		}
		return out
	}
	assert.Equal(t, run(1), run(0))
}

func TestChain_InvalidLogEvidence(t *testing.T) {
	for _, lz := range []float64{math.NaN(), math.Inf(1)} {
		bad := SweepFunc(func(_ context.Context, _ NodeKernel, _ kernel.LatentState, _ rand.Source) (kernel.LatentState, float64, error) {
			s, err := kernel.NewVectorState(kernel.Variable{Name: "x", Values: []float64{0}})
			return s, lz, err
		})
		k, err := New(Config{Particles: 4, Iterations: 2, Nodes: 2, ConditionalNodes: 1})
		require.NoError(t, err)
		chain, err := k.NewChain(bad, 1)
		require.NoError(t, err)

		_, err = chain.Sample(context.Background())
		assert.True(t, errors.Is(err, kernel.ErrInvalidGradient), "log evidence %g", lz)
	}
}

func TestChain_AllZeroEvidenceIsDegenerate(t *testing.T) {
	zero := SweepFunc(func(_ context.Context, _ NodeKernel, _ kernel.LatentState, _ rand.Source) (kernel.LatentState, float64, error) {
		s, err := kernel.NewVectorState(kernel.Variable{Name: "x", Values: []float64{0}})
		return s, math.Inf(-1), err
	})
	k, err := New(Config{Particles: 4, Iterations: 2, Nodes: 3, ConditionalNodes: 1})
	require.NoError(t, err)
	chain, err := k.NewChain(zero, 1)
	require.NoError(t, err)

	_, err = chain.Iterate(context.Background())
	assert.ErrorIs(t, err, kernel.ErrResamplingDegenerate)
}

func TestChain_SweepErrorPropagates(t *testing.T) {
	boom := errors.New("filter diverged")
	failing := SweepFunc(func(context.Context, NodeKernel, kernel.LatentState, rand.Source) (kernel.LatentState, float64, error) {
		return nil, 0, boom
	})
	k, err := New(Config{Particles: 4, Iterations: 2, Nodes: 2, ConditionalNodes: 1})
	require.NoError(t, err)
	chain, err := k.NewChain(failing, 1)
	require.NoError(t, err)

	res, err := chain.Sample(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, res.Samples.Len())
	assert.Equal(t, kernel.PhaseUninitialized, chain.Phase())
}

func TestChain_CancelledBetweenIterations(t *testing.T) {
	k, err := New(Config{Particles: 4, Iterations: 3, Nodes: 2, ConditionalNodes: 1})
	require.NoError(t, err)
	chain, err := k.NewChain(&uniformSweeper{}, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = chain.Sample(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChain_SinkAndChainID(t *testing.T) {
	sink := &recordingSink{}
	k, err := New(Config{Particles: 4, Iterations: 3, Nodes: 3, ConditionalNodes: 2})
	require.NoError(t, err)
	chain, err := k.NewChain(&uniformSweeper{}, 1, WithSink(sink), WithChainID("ipmcmc-1"))
	require.NoError(t, err)

	_, err = chain.Sample(context.Background())
	require.NoError(t, err)
	assert.Len(t, sink.samples, 6)
	assert.Equal(t, "ipmcmc-1", chain.ChainID())
}

func TestNewChain_RequiresSweeper(t *testing.T) {
	k, err := New(Config{Particles: 1, Iterations: 1, Nodes: 1, ConditionalNodes: 1})
	require.NoError(t, err)
	_, err = k.NewChain(nil, 1)
	assert.ErrorIs(t, err, kernel.ErrInvalidConfiguration)
}

type recordingSink struct {
	samples []kernel.Sample
}

func (r *recordingSink) Append(_ context.Context, _ string, s kernel.Sample) error {
	r.samples = append(r.samples, s)
	return nil
}
