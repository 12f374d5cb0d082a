// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianMCMC/services/sampler/config"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/demo"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/hmcda"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/ipmcmc"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/sgmcmc"
)

// Demo target parameters. Both targets have mean 1 in every coordinate.
const (
	gaussianMean  = 1.0
	gaussianSigma = 1.0
	priorSigma    = 1.0
	noiseSigma    = 1.0
	observation   = 2.0
)

// runDeps carries the optional collaborators of a sampling run.
type runDeps struct {
	ChainID string
	Logger  *slog.Logger
	Tracer  *kernel.Tracer
	Metrics *kernel.Metrics
	Sink    kernel.SampleSink
}

// sample builds the configured kernel and runs one chain on its demo target.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - cfg: Validated run configuration.
//   - deps: Optional collaborators.
//
// Outputs:
//   - kernel.RunResult: The collected samples.
//   - error: Construction or run failure.
func sample(ctx context.Context, cfg config.SamplerFullConfig, deps runDeps) (kernel.RunResult, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Kernel == ipmcmc.Name {
		return sampleIPMCMC(ctx, cfg, deps)
	}

	chain, err := newGradientChain(cfg)
	if err != nil {
		return kernel.RunResult{}, err
	}
	state, err := demo.NewState(cfg.Dim, 0)
	if err != nil {
		return kernel.RunResult{}, err
	}
	return kernel.Run(ctx, chain, state, kernel.RunOptions{
		Iterations:       cfg.Iterations,
		Kernel:           cfg.Kernel,
		ChainID:          deps.ChainID,
		Sink:             deps.Sink,
		Tracer:           deps.Tracer,
		Metrics:          deps.Metrics,
		Logger:           deps.Logger,
		ProgressInterval: cfg.Observability.ProgressInterval,
	})
}

func newGradientChain(cfg config.SamplerFullConfig) (kernel.Transition, error) {
	target := demo.GaussianTarget{Mean: gaussianMean, Sigma: gaussianSigma}
	src := kernel.NewSource(cfg.Seed)

	switch cfg.Kernel {
	case sgmcmc.SGHMCName:
		k, err := sgmcmc.NewSGHMC(cfg.Iterations, cfg.SGHMC.LearningRate, cfg.SGHMC.MomentumDecay, cfg.Space...)
		if err != nil {
			return nil, err
		}
		return k.NewChain(target, src)

	case sgmcmc.SGLDName:
		k, err := sgmcmc.NewSGLD(cfg.Iterations, cfg.SGLD.StepSize, cfg.Space...)
		if err != nil {
			return nil, err
		}
		return k.NewChain(target, src)

	case hmcda.Name:
		var k *hmcda.HMCDA
		var err error
		if cfg.HMCDA.Adapts < 0 {
			k, err = hmcda.New(cfg.Iterations, cfg.HMCDA.Delta, cfg.HMCDA.Lambda, cfg.Space...)
		} else {
			k, err = hmcda.NewWithAdapts(cfg.Iterations, cfg.HMCDA.Adapts, cfg.HMCDA.Delta, cfg.HMCDA.Lambda, cfg.Space...)
		}
		if err != nil {
			return nil, err
		}
		if cfg.HMCDA.InitStepSize > 0 {
			if k, err = k.WithInitStepSize(cfg.HMCDA.InitStepSize); err != nil {
				return nil, err
			}
		}
		return k.NewChain(target, nil, nil, src)

	default:
		return nil, fmt.Errorf("%w: unknown kernel %q", kernel.ErrInvalidConfiguration, cfg.Kernel)
	}
}

func sampleIPMCMC(ctx context.Context, cfg config.SamplerFullConfig, deps runDeps) (kernel.RunResult, error) {
	resampler, err := ipmcmc.ResamplerByName(cfg.IPMCMC.Resampler)
	if err != nil {
		return kernel.RunResult{}, err
	}
	k, err := ipmcmc.New(ipmcmc.Config{
		Particles:        cfg.IPMCMC.Particles,
		Iterations:       cfg.Iterations,
		Nodes:            cfg.IPMCMC.Nodes,
		ConditionalNodes: cfg.IPMCMC.ConditionalNodes,
		Resampler:        resampler,
		Space:            cfg.Space,
		MaxConcurrency:   cfg.Parallel.MaxConcurrency,
	})
	if err != nil {
		return kernel.RunResult{}, err
	}

	obs := make([]float64, cfg.Dim)
	for i := range obs {
		obs[i] = observation
	}
	model, err := demo.NewConjugateModel(priorSigma, noiseSigma, obs)
	if err != nil {
		return kernel.RunResult{}, err
	}

	opts := []ipmcmc.ChainOption{
		ipmcmc.WithLogger(deps.Logger),
		ipmcmc.WithTracer(deps.Tracer),
		ipmcmc.WithMetrics(deps.Metrics),
		ipmcmc.WithChainID(deps.ChainID),
	}
	if deps.Sink != nil {
		opts = append(opts, ipmcmc.WithSink(deps.Sink))
	}
	chain, err := k.NewChain(model, cfg.Seed, opts...)
	if err != nil {
		return kernel.RunResult{}, err
	}
	return chain.Sample(ctx)
}
