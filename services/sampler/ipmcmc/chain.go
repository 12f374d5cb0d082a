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
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// selectionStream is the random stream of the role selection draws. Node
// streams use their node IDs.
const selectionStream = 1 << 32

// Sweeper runs one particle filter sweep for a node.
//
// Description:
//
//	reference is the node's retained path for conditional sweeps and nil
//	for unconditional sweeps or before the node has one. The sweeper must
//	not modify reference and returns the selected path with its log
//	marginal likelihood estimate. src belongs to the node; the sweeper is
//	called concurrently for different nodes.
type Sweeper interface {
	Sweep(ctx context.Context, node NodeKernel, reference kernel.LatentState, src rand.Source) (kernel.LatentState, float64, error)
}

// SweepFunc adapts a plain function to Sweeper.
type SweepFunc func(ctx context.Context, node NodeKernel, reference kernel.LatentState, src rand.Source) (kernel.LatentState, float64, error)

// Sweep calls f.
func (f SweepFunc) Sweep(ctx context.Context, node NodeKernel, reference kernel.LatentState, src rand.Source) (kernel.LatentState, float64, error) {
	return f(ctx, node, reference, src)
}

// Node is one arena record. Its ID never changes; only the slot it
// occupies does.
type Node struct {
	ID          int
	State       kernel.LatentState
	LogEvidence float64

	src rand.Source
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithCategoricalSampler replaces the role selection sampler.
func WithCategoricalSampler(s kernel.CategoricalSampler) ChainOption {
	return func(c *Chain) { c.categorical = s }
}

// WithMetrics records role swaps and samples.
func WithMetrics(m *kernel.Metrics) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

// WithTracer traces sampling runs.
func WithTracer(t *kernel.Tracer) ChainOption {
	return func(c *Chain) { c.tracer = t }
}

// WithSink forwards every emitted sample.
func WithSink(s kernel.SampleSink) ChainOption {
	return func(c *Chain) { c.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// WithChainID sets the chain ID. Default is a fresh UUID.
func WithChainID(id string) ChainOption {
	return func(c *Chain) { c.chainID = id }
}

// Chain is the run state of one IPMCMC chain.
//
// Thread Safety: Not safe for concurrent use.
type Chain struct {
	kernel      *IPMCMC
	sweeper     Sweeper
	nodes       []*Node
	order       []int
	categorical kernel.CategoricalSampler

	chainID string
	metrics *kernel.Metrics
	tracer  *kernel.Tracer
	sink    kernel.SampleSink
	logger  *slog.Logger

	phase     kernel.Phase
	iteration int
	swaps     int
}

// NewChain creates a chain with one node per slot.
//
// Inputs:
//   - sweeper: The particle filter. Required, safe for concurrent use.
//   - seed: Base seed. Node i draws from StreamSource(seed, i).
//   - opts: Optional settings.
func (k *IPMCMC) NewChain(sweeper Sweeper, seed uint64, opts ...ChainOption) (*Chain, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("%w: sweeper is required", kernel.ErrInvalidConfiguration)
	}
	n := k.cfg.Nodes
	c := &Chain{
		kernel:  k,
		sweeper: sweeper,
		nodes:   make([]*Node, n),
		order:   make([]int, n),
	}
	for i := 0; i < n; i++ {
		c.nodes[i] = &Node{ID: i, src: kernel.StreamSource(seed, uint64(i))}
		c.order[i] = i
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.categorical == nil {
		c.categorical = kernel.NewCategoricalSampler(kernel.StreamSource(seed, selectionStream))
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.chainID == "" {
		c.chainID = uuid.NewString()
	}
	c.logger = c.logger.With(slog.String("component", "ipmcmc"), slog.String("chain_id", c.chainID))
	return c, nil
}

// Phase returns the chain's phase.
func (c *Chain) Phase() kernel.Phase { return c.phase }

// ChainID returns the chain identifier.
func (c *Chain) ChainID() string { return c.chainID }

// Iteration returns the number of completed iterations.
func (c *Chain) Iteration() int { return c.iteration }

// RoleSwaps returns the total number of role swaps so far.
func (c *Chain) RoleSwaps() int { return c.swaps }

// Order returns a copy of the slot → node ID mapping.
func (c *Chain) Order() []int {
	return append([]int(nil), c.order...)
}

// Node returns the arena record with the given ID.
func (c *Chain) Node(id int) *Node {
	return c.nodes[id]
}

// Iterate runs one IPMCMC iteration.
//
// Description:
//
//	Sweeps every slot concurrently, then reassigns conditional roles
//	sequentially and returns a snapshot of each new conditional node in
//	slot order.
//
// Outputs:
//   - []kernel.LatentSnapshot: c snapshots.
//   - error: Sweep errors, kernel.ErrInvalidGradient for a NaN or +Inf log
//     evidence, or kernel.ErrResamplingDegenerate. Node states change only
//     once every sweep has succeeded; roles change only once the selection
//     has succeeded.
func (c *Chain) Iterate(ctx context.Context) ([]kernel.LatentSnapshot, error) {
	if c.iteration >= c.kernel.cfg.Iterations {
		return nil, fmt.Errorf("%w: %d of %d iterations run", kernel.ErrChainFinished, c.iteration, c.kernel.cfg.Iterations)
	}

	logZ, err := c.sweepAll(ctx)
	if err != nil {
		return nil, err
	}

	perm, swaps, err := selectConditionalNodes(logZ, c.kernel.cfg.ConditionalNodes, c.categorical)
	if err != nil {
		return nil, err
	}

	next := make([]int, len(c.order))
	for s, p := range perm {
		next[s] = c.order[p]
	}
	c.order = next
	c.swaps += swaps
	c.metrics.RecordRoleSwaps(ctx, swaps)
	c.phase = kernel.PhaseRunning
	c.iteration++

	snaps := make([]kernel.LatentSnapshot, c.kernel.cfg.ConditionalNodes)
	for s := range snaps {
		snaps[s] = c.nodes[c.order[s]].State.Snapshot()
	}
	return snaps, nil
}

// sweepAll sweeps every slot and returns the log evidence per slot.
func (c *Chain) sweepAll(ctx context.Context) ([]float64, error) {
	n := len(c.order)
	states := make([]kernel.LatentState, n)
	logZ := make([]float64, n)

	g, gctx := errgroup.WithContext(ctx)
	if limit := c.kernel.cfg.MaxConcurrency; limit > 0 {
		g.SetLimit(limit)
	}
	for s := 0; s < n; s++ {
		s := s
		node := c.nodes[c.order[s]]
		nk := c.kernel.kernels[s]
		var reference kernel.LatentState
		if nk.Kind == KindCSMC {
			reference = node.State
		}
		g.Go(func() error {
			state, lz, err := c.sweeper.Sweep(gctx, nk, reference, node.src)
			if err != nil {
				return fmt.Errorf("node %d (slot %d, %s): %w", node.ID, s, nk.Kind, err)
			}
			if state == nil {
				return fmt.Errorf("%w: node %d returned no state", kernel.ErrInvalidConfiguration, node.ID)
			}
			if math.IsNaN(lz) || math.IsInf(lz, 1) {
				return fmt.Errorf("%w: node %d log evidence is %g", kernel.ErrInvalidGradient, node.ID, lz)
			}
			states[s] = state
			logZ[s] = lz
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for s := 0; s < n; s++ {
		node := c.nodes[c.order[s]]
		node.State = states[s]
		node.LogEvidence = logZ[s]
	}
	return logZ, nil
}

// Sample runs every iteration and collects the weighted samples.
//
// Description:
//
//	The collection is pre-allocated with iterations × c samples, each of
//	weight 1/(iterations × c). Cancellation is checked between iterations.
//	The chain must not have been advanced with Iterate before.
//
// Outputs:
//   - kernel.RunResult: Samples and run statistics.
//   - error: The first iteration error, wrapped with the iteration number,
//     or kernel.ErrInvalidConfiguration for a chain that already ran.
func (c *Chain) Sample(ctx context.Context) (res kernel.RunResult, runErr error) {
	cfg := c.kernel.cfg
	if c.iteration != 0 {
		return kernel.RunResult{ChainID: c.chainID}, fmt.Errorf("%w: chain already ran %d iterations", kernel.ErrInvalidConfiguration, c.iteration)
	}
	res = kernel.RunResult{ChainID: c.chainID, Samples: kernel.NewSampleCollection(c.kernel.TotalSamples())}
	weight := c.kernel.SampleWeight()
	start := time.Now()

	ctx, span := c.tracer.StartRun(ctx, Name, c.chainID, cfg.Iterations)
	defer func() {
		res.Duration = time.Since(start)
		c.tracer.EndRun(span, res.Samples.Len(), runErr)
	}()

	for i := 1; i <= cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("iteration %d: %w", i, err)
		}

		stepCtx, stepSpan := c.tracer.TraceStep(ctx, Name, i, c.phase)
		stepStart := time.Now()
		snaps, err := c.Iterate(stepCtx)
		stats := kernel.StepResult{Accepted: err == nil}
		c.metrics.RecordStep(ctx, Name, time.Since(stepStart), stats, err)
		c.tracer.EndStep(stepSpan, stats, err)
		if err != nil {
			c.logger.Error("ipmcmc iteration failed", slog.Int("iteration", i), slog.String("error", err.Error()))
			return res, fmt.Errorf("iteration %d: %w", i, err)
		}
		c.tracer.TraceEvent(ctx, "ipmcmc.roles", attribute.Int("iteration", i), attribute.Int("swaps", c.swaps))

		for s, snap := range snaps {
			node := c.nodes[c.order[s]]
			sample, err := res.Samples.Append(weight, snap, kernel.StepResult{
				Accepted:   true,
				LogDensity: node.LogEvidence,
			})
			if err != nil {
				return res, fmt.Errorf("iteration %d: %w", i, err)
			}
			res.Accepted++
			if c.sink != nil {
				if err := c.sink.Append(ctx, c.chainID, sample); err != nil {
					return res, fmt.Errorf("iteration %d: sink: %w", i, err)
				}
			}
		}
		c.metrics.RecordSamples(ctx, Name, len(snaps))
	}

	c.logger.Info("ipmcmc run complete",
		slog.Int("iterations", cfg.Iterations),
		slog.Int("samples", res.Samples.Len()),
		slog.Int("role_swaps", c.swaps),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}
