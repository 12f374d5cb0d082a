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
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Resampler draws n ancestor indices proportional to unnormalized weights.
type Resampler func(src rand.Source, weights []float64, n int) ([]int, error)

// ResampleMultinomial draws n independent categorical indices.
func ResampleMultinomial(src rand.Source, weights []float64, n int) ([]int, error) {
	if err := checkResample(weights, n); err != nil {
		return nil, err
	}
	cat := distuv.NewCategorical(weights, src)
	out := make([]int, n)
	for i := range out {
		out[i] = int(cat.Rand())
	}
	return out, nil
}

// ResampleSystematic draws one uniform offset u ~ U[0, 1/n) and selects the
// indices hit by u + i/n on the normalized cumulative weights.
func ResampleSystematic(src rand.Source, weights []float64, n int) ([]int, error) {
	if err := checkResample(weights, n); err != nil {
		return nil, err
	}
	u := kernel.Uniform(src) / float64(n)
	return invertCumulative(weights, n, func(i int) float64 {
		return u + float64(i)/float64(n)
	}), nil
}

// ResampleStratified draws one uniform per stratum [i/n, (i+1)/n).
func ResampleStratified(src rand.Source, weights []float64, n int) ([]int, error) {
	if err := checkResample(weights, n); err != nil {
		return nil, err
	}
	r := rand.New(src)
	return invertCumulative(weights, n, func(i int) float64 {
		return (float64(i) + r.Float64()) / float64(n)
	}), nil
}

// ResamplerByName maps "systematic", "multinomial" and "stratified" to
// their resamplers.
func ResamplerByName(name string) (Resampler, error) {
	switch name {
	case "", "systematic":
		return ResampleSystematic, nil
	case "multinomial":
		return ResampleMultinomial, nil
	case "stratified":
		return ResampleStratified, nil
	default:
		return nil, fmt.Errorf("%w: unknown resampler %q", kernel.ErrInvalidConfiguration, name)
	}
}

func checkResample(weights []float64, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: resample count must be positive, got %d", kernel.ErrInvalidConfiguration, n)
	}
	return kernel.CheckWeights(weights)
}

// invertCumulative maps n increasing points in [0, 1) to the indices of the
// normalized cumulative weights they fall into.
func invertCumulative(weights []float64, n int, point func(i int) float64) []int {
	cum := make([]float64, len(weights))
	floats.CumSum(cum, weights)
	floats.Scale(1/cum[len(cum)-1], cum)

	out := make([]int, n)
	j := 0
	for i := range out {
		u := point(i)
		for j < len(cum)-1 && u >= cum[j] {
			j++
		}
		out[i] = j
	}
	return out
}
