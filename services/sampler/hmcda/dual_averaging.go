// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hmcda

import "math"

// Dual-averaging constants from Hoffman and Gelman (2014), section 3.2.1.
const (
	DualAveragingGamma = 0.05
	DualAveragingT0    = 10.0
	DualAveragingKappa = 0.75
)

// DualAveraging adapts the step size so the mean acceptance probability
// approaches a target δ.
//
// Description:
//
//	After m adaptations with acceptance probabilities α_1..α_m:
//
//	  H̄_m      = (1 − 1/(m+t0))·H̄_{m−1} + (δ − α_m)/(m+t0)
//	  log ϵ_m  = μ − √m/γ · H̄_m
//	  log ϵ̄_m  = m^−κ·log ϵ_m + (1 − m^−κ)·log ϵ̄_{m−1}
//
//	with μ = log(10·ϵ_0). Finish switches to ϵ̄ and ignores further Adapt
//	calls.
//
// Thread Safety: Not safe for concurrent use.
type DualAveraging struct {
	delta     float64
	mu        float64
	hBar      float64
	logEps    float64
	logEpsBar float64
	m         int
	finished  bool
}

var _ StepSizeAdaptor = (*DualAveraging)(nil)

// NewDualAveraging creates an adaptor starting at eps0 that targets
// acceptance rate delta.
func NewDualAveraging(eps0, delta float64) *DualAveraging {
	return &DualAveraging{
		delta:  delta,
		mu:     math.Log(10 * eps0),
		logEps: math.Log(eps0),
	}
}

// StepSize returns the current step size.
func (d *DualAveraging) StepSize() float64 {
	return math.Exp(d.logEps)
}

// Adaptations returns the number of Adapt calls applied.
func (d *DualAveraging) Adaptations() int {
	return d.m
}

// Finished reports whether Finish has been called.
func (d *DualAveraging) Finished() bool {
	return d.finished
}

// Adapt applies one dual-averaging update.
func (d *DualAveraging) Adapt(acceptProb float64) {
	if d.finished {
		return
	}
	if math.IsNaN(acceptProb) {
		acceptProb = 0
	}
	acceptProb = math.Max(0, math.Min(1, acceptProb))

	d.m++
	m := float64(d.m)
	eta := 1 / (m + DualAveragingT0)
	d.hBar = (1-eta)*d.hBar + eta*(d.delta-acceptProb)
	d.logEps = d.mu - math.Sqrt(m)/DualAveragingGamma*d.hBar
	w := math.Pow(m, -DualAveragingKappa)
	d.logEpsBar = w*d.logEps + (1-w)*d.logEpsBar
}

// Finish freezes the step size at its running average. Without any prior
// adaptation the current step size is kept.
func (d *DualAveraging) Finish() {
	if d.finished {
		return
	}
	d.finished = true
	if d.m > 0 {
		d.logEps = d.logEpsBar
	}
}
