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

import "fmt"

// LatentState is the latent-variable container a chain samples over.
//
// Description:
//
//	Values and SetValues address the concatenation of the selected variables
//	in declaration order, in whatever space each variable currently lives
//	(constrained, or unconstrained after Link). Link and Invlink bracket a
//	kernel update and must be mutual inverses on the selection.
//
//	The dimensionality of a LatentState is fixed for the lifetime of a chain.
//
// Thread Safety: Implementations need not be safe for concurrent use.
type LatentState interface {
	// Values returns a copy of the selected sub-vector.
	Values(sel RestrictionSet) []float64

	// SetValues overwrites the selected sub-vector.
	SetValues(sel RestrictionSet, values []float64) error

	// Link maps the selected variables to unconstrained space.
	Link(sel RestrictionSet) error

	// Invlink maps the selected variables back to their constrained space.
	Invlink(sel RestrictionSet) error

	// LogDensity returns the accumulated log density.
	LogDensity() float64

	// SetLogDensity records the accumulated log density.
	SetLogDensity(logp float64)

	// Dim returns the total number of scalar latent values.
	Dim() int

	// Snapshot returns an immutable copy of the full constrained vector.
	Snapshot() LatentSnapshot

	// Clone returns an independent deep copy.
	Clone() LatentState
}

// LatentSnapshot is an immutable copy of a chain's latent vector.
type LatentSnapshot struct {
	// Names labels each scalar value, e.g. "theta[0]".
	Names []string `json:"names"`

	// Values holds the constrained latent values.
	Values []float64 `json:"values"`

	// LogDensity is the accumulated log density at capture time.
	LogDensity float64 `json:"log_density"`
}

// Dim returns the number of scalar values in the snapshot.
func (s LatentSnapshot) Dim() int {
	return len(s.Values)
}

// Value returns the scalar with the given label.
func (s LatentSnapshot) Value(name string) (float64, bool) {
	for i, n := range s.Names {
		if n == name {
			return s.Values[i], true
		}
	}
	return 0, false
}

// AbortStep maps the selection of state back to constrained space after a
// failed step and returns err. An invlink failure is reported alongside err.
func AbortStep(state LatentState, sel RestrictionSet, err error) error {
	if invErr := state.Invlink(sel); invErr != nil {
		return fmt.Errorf("%w (invlink: %v)", err, invErr)
	}
	return err
}

// CommitStep writes next into the linked selection of state and maps the
// selection back to constrained space. If either fails, the previous values
// are restored and the state is left in constrained space.
func CommitStep(state LatentState, sel RestrictionSet, next []float64) error {
	prev := state.Values(sel)
	if err := state.SetValues(sel, next); err != nil {
		return AbortStep(state, sel, err)
	}
	if err := state.Invlink(sel); err != nil {
		err = fmt.Errorf("invlink: %w", err)
		if setErr := state.SetValues(sel, prev); setErr != nil {
			return fmt.Errorf("%w (restore: %v)", err, setErr)
		}
		return AbortStep(state, sel, err)
	}
	return nil
}
