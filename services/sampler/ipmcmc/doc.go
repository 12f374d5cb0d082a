// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ipmcmc implements interacting particle Markov chain Monte Carlo
// (Rainforth et al., 2016).
//
// Architecture:
//
//	A chain owns an arena of Nodes addressed by stable IDs and a slot order
//	mapping slot → node ID. Slots [0, c) run conditional SMC, slots [c, n)
//	run plain SMC with resampling at every step.
//
//	  iteration t
//	  ┌──────────────────────────────────────────────────────────────┐
//	  │ 1. sweep every slot concurrently (errgroup)                  │
//	  │      slot s → Sweeper.Sweep(kernels[s], reference, src[id]) │
//	  │ 2. for j in 0..c−1: draw among {unconditional..., self}      │
//	  │      proportional to exp(log Ẑ), swap roles on a hit         │
//	  │ 3. order ← order[cond ++ uncond]                             │
//	  │ 4. emit c snapshots of weight 1/(iterations·c)               │
//	  └──────────────────────────────────────────────────────────────┘
//
//	Role swaps only permute order; particle data stays with its node.
//
// Randomness:
//
//	Every node draws from its own stream derived from the chain seed and the
//	node ID, so results do not depend on how sweeps are scheduled.
//
// Thread Safety:
//
//	A Chain is not safe for concurrent use. The Sweeper is called from
//	several goroutines at once and must be safe for concurrent use.
package ipmcmc
