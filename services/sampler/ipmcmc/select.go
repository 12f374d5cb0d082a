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
	"math"

	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
	"gonum.org/v1/gonum/floats"
)

// selectConditionalNodes decides which slots become conditional next.
//
// Description:
//
//	Slots [0, c) start conditional and [c, n) unconditional. For each
//	conditional slot j in order, one index is drawn over the log evidences
//	of the current unconditional pool followed by slot j's own. Drawing a
//	pool entry swaps it into conditional position j and moves j into the
//	vacated pool position, so later draws see the updated pool.
//
// Inputs:
//   - logZ: Log evidence per slot. −Inf is allowed.
//   - c: Number of conditional slots, 0 < c ≤ len(logZ).
//   - sampler: Categorical sampler over unnormalized weights.
//
// Outputs:
//   - []int: perm such that the next slot s holds the node of slot perm[s].
//     The first c entries are the new conditional slots.
//   - int: Number of role swaps performed.
//   - error: Wraps kernel.ErrResamplingDegenerate if a pool carries no weight.
func selectConditionalNodes(logZ []float64, c int, sampler kernel.CategoricalSampler) ([]int, int, error) {
	n := len(logZ)
	cond := make([]int, c)
	for j := range cond {
		cond[j] = j
	}
	uncond := make([]int, n-c)
	for i := range uncond {
		uncond[i] = c + i
	}

	swaps := 0
	logKsi := make([]float64, 0, n-c+1)
	for j := 0; j < c; j++ {
		logKsi = logKsi[:0]
		for _, u := range uncond {
			logKsi = append(logKsi, logZ[u])
		}
		logKsi = append(logKsi, logZ[j])

		maxLog := floats.Max(logKsi)
		if math.IsInf(maxLog, -1) {
			return nil, 0, fmt.Errorf("%w: every candidate of conditional slot %d has zero evidence",
				kernel.ErrResamplingDegenerate, j)
		}
		weights := make([]float64, len(logKsi))
		for i, lz := range logKsi {
			weights[i] = math.Exp(lz - maxLog)
		}

		pick, err := sampler.Sample(weights)
		if err != nil {
			return nil, 0, fmt.Errorf("conditional slot %d: %w", j, err)
		}
		if pick < 0 || pick >= len(weights) {
			return nil, 0, fmt.Errorf("%w: sampler returned index %d of %d", kernel.ErrResamplingDegenerate, pick, len(weights))
		}
		if pick != len(weights)-1 {
			cond[j] = uncond[pick]
			uncond[pick] = j
			swaps++
		}
	}

	return append(cond, uncond...), swaps, nil
}
