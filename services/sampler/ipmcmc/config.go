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
	"fmt"

	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
)

// Name identifies the kernel in logs, spans and metrics.
const Name = "ipmcmc"

// SMCResampleThreshold is the effective-sample-size threshold of the
// unconditional nodes. 1.0 resamples at every step.
const SMCResampleThreshold = 1.0

// Kind distinguishes the two child kernel configurations.
type Kind int

const (
	// KindSMC is a plain sequential Monte Carlo sweep.
	KindSMC Kind = iota

	// KindCSMC is a conditional SMC sweep retaining one reference path.
	KindCSMC
)

// String returns "smc" or "csmc".
func (k Kind) String() string {
	switch k {
	case KindSMC:
		return "smc"
	case KindCSMC:
		return "csmc"
	default:
		return "unknown"
	}
}

// NodeKernel is the configuration a slot hands to the Sweeper.
type NodeKernel struct {
	Kind              Kind
	Particles         int
	RetainedPaths     int
	ResampleThreshold float64
	Resampler         Resampler
	Space             kernel.RestrictionSet
}

// Config configures an IPMCMC kernel.
type Config struct {
	// Particles per node sweep. Must be > 0.
	Particles int

	// Iterations of the outer loop. Must be > 0.
	Iterations int

	// Nodes is the total node count n.
	Nodes int

	// ConditionalNodes is the conditional node count c, 0 < c ≤ n.
	ConditionalNodes int

	// Resampler used by every child kernel. Nil uses ResampleSystematic.
	Resampler Resampler

	// Space lists the variables to update. Empty means all.
	Space []string

	// MaxConcurrency bounds concurrent sweeps. Zero or less means one
	// goroutine per node.
	MaxConcurrency int
}

// IPMCMC is the immutable configuration of an interacting particle kernel.
//
// Thread Safety: Safe for concurrent use; chains are not.
type IPMCMC struct {
	cfg     Config
	space   kernel.RestrictionSet
	kernels []NodeKernel
}

// New validates cfg and builds the child kernel of every slot.
//
// Outputs:
//   - *IPMCMC: The kernel configuration.
//   - error: Wraps kernel.ErrInvalidConfiguration when a count is out of range.
func New(cfg Config) (*IPMCMC, error) {
	if cfg.Particles <= 0 {
		return nil, fmt.Errorf("%w: particles must be positive, got %d", kernel.ErrInvalidConfiguration, cfg.Particles)
	}
	if cfg.Iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", kernel.ErrInvalidConfiguration, cfg.Iterations)
	}
	if cfg.Nodes <= 0 {
		return nil, fmt.Errorf("%w: nodes must be positive, got %d", kernel.ErrInvalidConfiguration, cfg.Nodes)
	}
	if cfg.ConditionalNodes <= 0 || cfg.ConditionalNodes > cfg.Nodes {
		return nil, fmt.Errorf("%w: conditional nodes must lie in (0, %d], got %d",
			kernel.ErrInvalidConfiguration, cfg.Nodes, cfg.ConditionalNodes)
	}
	if cfg.Resampler == nil {
		cfg.Resampler = ResampleSystematic
	}
	cfg.Space = append([]string(nil), cfg.Space...)

	space := kernel.NewRestrictionSet(cfg.Space...)
	kernels := make([]NodeKernel, cfg.Nodes)
	for s := range kernels {
		if s < cfg.ConditionalNodes {
			kernels[s] = NodeKernel{
				Kind:          KindCSMC,
				Particles:     cfg.Particles,
				RetainedPaths: 1,
				Resampler:     cfg.Resampler,
				Space:         space,
			}
			continue
		}
		kernels[s] = NodeKernel{
			Kind:              KindSMC,
			Particles:         cfg.Particles,
			ResampleThreshold: SMCResampleThreshold,
			Resampler:         cfg.Resampler,
			Space:             space,
		}
	}
	return &IPMCMC{cfg: cfg, space: space, kernels: kernels}, nil
}

// Config returns a copy of the configuration.
func (k *IPMCMC) Config() Config {
	cfg := k.cfg
	cfg.Space = append([]string(nil), k.cfg.Space...)
	return cfg
}

// Kernels returns a copy of the per-slot child kernels.
func (k *IPMCMC) Kernels() []NodeKernel {
	return append([]NodeKernel(nil), k.kernels...)
}

// TotalSamples returns iterations × conditional nodes.
func (k *IPMCMC) TotalSamples() int {
	return k.cfg.Iterations * k.cfg.ConditionalNodes
}

// SampleWeight returns the uniform weight 1/(iterations × conditional nodes).
func (k *IPMCMC) SampleWeight() float64 {
	return 1 / float64(k.TotalSamples())
}
