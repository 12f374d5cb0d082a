// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kernel

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewSource returns a seeded PCG source.
//
// Sources are not safe for concurrent use; give every chain and every
// concurrently swept node its own.
func NewSource(seed uint64) rand.Source {
	return rand.NewSource(seed)
}

// StreamSource returns the source of an independent stream derived from a
// base seed, so that node i of a chain draws the same numbers regardless of
// scheduling order.
func StreamSource(seed, stream uint64) rand.Source {
	return rand.NewSource(splitmix64(seed ^ splitmix64(stream+1)))
}

// splitmix64 is the SplitMix64 finalizer.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// NormalNoise draws n independent values from N(0, variance).
//
// A zero variance yields exact zeros.
func NormalNoise(src rand.Source, variance float64, n int) []float64 {
	out := make([]float64, n)
	if variance == 0 {
		return out
	}
	dist := distuv.Normal{Mu: 0, Sigma: math.Sqrt(variance), Src: src}
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// StandardNormal draws n independent values from N(0, 1).
func StandardNormal(src rand.Source, n int) []float64 {
	return NormalNoise(src, 1, n)
}

// Uniform draws a value from [0, 1).
func Uniform(src rand.Source) float64 {
	return rand.New(src).Float64()
}

// -----------------------------------------------------------------------------
// Categorical sampling
// -----------------------------------------------------------------------------

// CategoricalSampler draws an index with probability proportional to the
// given unnormalized weights.
type CategoricalSampler interface {
	Sample(weights []float64) (int, error)
}

// CategoricalFunc adapts a plain function to CategoricalSampler.
type CategoricalFunc func(weights []float64) (int, error)

// Sample calls f.
func (f CategoricalFunc) Sample(weights []float64) (int, error) {
	return f(weights)
}

type distuvCategorical struct {
	src rand.Source
}

// NewCategoricalSampler returns a CategoricalSampler backed by gonum's
// distuv.Categorical drawing from src.
func NewCategoricalSampler(src rand.Source) CategoricalSampler {
	return distuvCategorical{src: src}
}

// Sample draws one index.
func (c distuvCategorical) Sample(weights []float64) (int, error) {
	if err := CheckWeights(weights); err != nil {
		return 0, err
	}
	if len(weights) == 1 {
		return 0, nil
	}
	return int(distuv.NewCategorical(weights, c.src).Rand()), nil
}

// CheckWeights validates unnormalized categorical weights.
//
// Outputs:
//   - error: Wraps ErrResamplingDegenerate if weights is empty, contains a
//     negative or non-finite value, or sums to zero.
func CheckWeights(weights []float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: no weights", ErrResamplingDegenerate)
	}
	var total float64
	for i, w := range weights {
		if !isFinite(w) || w < 0 {
			return fmt.Errorf("%w: weight %d is %g", ErrResamplingDegenerate, i, w)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("%w: all %d weights are zero", ErrResamplingDegenerate, len(weights))
	}
	return nil
}
