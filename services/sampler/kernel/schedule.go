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

import "math"

// PolynomialDecay is the annealed step-size schedule ϵ_t = Scale / t^Exponent.
type PolynomialDecay struct {
	Scale    float64
	Exponent float64
}

// At returns the step size of iteration t (1-based). Values of t below 1
// are treated as 1.
func (p PolynomialDecay) At(t int) float64 {
	if t < 1 {
		t = 1
	}
	return p.Scale / math.Pow(float64(t), p.Exponent)
}
