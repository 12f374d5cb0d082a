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
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Sample is one weighted draw emitted by the outer sampling loop.
type Sample struct {
	// Index is the position of the sample in its collection.
	Index int `json:"index"`

	// Weight is the sample's weight; weights of a full collection sum to 1.
	Weight float64 `json:"weight"`

	// Snapshot is the latent vector at emission time.
	Snapshot LatentSnapshot `json:"snapshot"`

	// Stats is the step outcome that produced the sample.
	Stats StepResult `json:"stats"`
}

// SampleSink receives samples as they are emitted, e.g. for persistence.
type SampleSink interface {
	Append(ctx context.Context, chainID string, sample Sample) error
}

// SampleCollection is an append-only sequence of weighted samples.
//
// Description:
//
//	The collection is allocated once with its final size. Appending beyond
//	that size fails with ErrSampleCollectionFull.
//
// Thread Safety: Not safe for concurrent use.
type SampleCollection struct {
	samples []Sample
}

// NewSampleCollection allocates a collection for exactly size samples.
func NewSampleCollection(size int) *SampleCollection {
	if size < 0 {
		size = 0
	}
	return &SampleCollection{samples: make([]Sample, 0, size)}
}

// Append adds a sample and returns it with its index filled in.
func (c *SampleCollection) Append(weight float64, snapshot LatentSnapshot, stats StepResult) (Sample, error) {
	if len(c.samples) == cap(c.samples) {
		return Sample{}, fmt.Errorf("%w: capacity %d", ErrSampleCollectionFull, cap(c.samples))
	}
	s := Sample{Index: len(c.samples), Weight: weight, Snapshot: snapshot, Stats: stats}
	c.samples = append(c.samples, s)
	return s, nil
}

// Len returns the number of samples appended so far.
func (c *SampleCollection) Len() int {
	return len(c.samples)
}

// Cap returns the pre-allocated size.
func (c *SampleCollection) Cap() int {
	return cap(c.samples)
}

// At returns the i-th sample.
func (c *SampleCollection) At(i int) Sample {
	return c.samples[i]
}

// Samples returns the appended samples. The slice must not be modified.
func (c *SampleCollection) Samples() []Sample {
	return c.samples
}

// TotalWeight returns the sum of all sample weights.
func (c *SampleCollection) TotalWeight() float64 {
	weights := make([]float64, len(c.samples))
	for i, s := range c.samples {
		weights[i] = s.Weight
	}
	return floats.Sum(weights)
}

// Mean returns the weighted mean of each latent coordinate, normalized by the
// total weight. Returns nil for an empty collection.
func (c *SampleCollection) Mean() []float64 {
	if len(c.samples) == 0 {
		return nil
	}
	total := c.TotalWeight()
	if total == 0 {
		return nil
	}
	mean := make([]float64, c.samples[0].Snapshot.Dim())
	for _, s := range c.samples {
		floats.AddScaled(mean, s.Weight, s.Snapshot.Values)
	}
	floats.Scale(1/total, mean)
	return mean
}
