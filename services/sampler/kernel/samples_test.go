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
	"errors"
	"math"
	"testing"
)

func TestSampleCollection_AppendUntilFull(t *testing.T) {
	c := NewSampleCollection(2)
	snap := LatentSnapshot{Names: []string{"x"}, Values: []float64{1}}

	for i := 0; i < 2; i++ {
		s, err := c.Append(0.5, snap, StepResult{Accepted: true})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if s.Index != i {
			t.Errorf("Index = %d, want %d", s.Index, i)
		}
	}
	if _, err := c.Append(0.5, snap, StepResult{}); !errors.Is(err, ErrSampleCollectionFull) {
		t.Errorf("error = %v, want ErrSampleCollectionFull", err)
	}
	if c.Len() != 2 || c.Cap() != 2 {
		t.Errorf("Len/Cap = %d/%d, want 2/2", c.Len(), c.Cap())
	}
}

func TestSampleCollection_WeightedMean(t *testing.T) {
	c := NewSampleCollection(3)
	c.Append(0.25, LatentSnapshot{Values: []float64{0, 4}}, StepResult{})
	c.Append(0.25, LatentSnapshot{Values: []float64{2, 0}}, StepResult{})
	c.Append(0.5, LatentSnapshot{Values: []float64{4, 2}}, StepResult{})

	if got := c.TotalWeight(); math.Abs(got-1) > 1e-12 {
		t.Errorf("TotalWeight() = %v, want 1", got)
	}
	mean := c.Mean()
	want := []float64{2.5, 2}
	for i := range want {
		if math.Abs(mean[i]-want[i]) > 1e-12 {
			t.Errorf("Mean()[%d] = %v, want %v", i, mean[i], want[i])
		}
	}
}

func TestSampleCollection_EmptyMean(t *testing.T) {
	if m := NewSampleCollection(0).Mean(); m != nil {
		t.Errorf("Mean() = %v, want nil", m)
	}
}
