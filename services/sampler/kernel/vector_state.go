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
	"strconv"
)

// -----------------------------------------------------------------------------
// Bijectors
// -----------------------------------------------------------------------------

// Bijector maps a constrained scalar to the real line and back.
type Bijector interface {
	// Name identifies the transform.
	Name() string

	// Forward maps a constrained value to unconstrained space.
	Forward(x float64) float64

	// Inverse maps an unconstrained value back to the constrained space.
	Inverse(y float64) float64
}

// Identity is the bijector of an unconstrained variable.
type Identity struct{}

func (Identity) Name() string              { return "identity" }
func (Identity) Forward(x float64) float64 { return x }
func (Identity) Inverse(y float64) float64 { return y }

// LogBijector maps (0, ∞) to the real line.
type LogBijector struct{}

func (LogBijector) Name() string              { return "log" }
func (LogBijector) Forward(x float64) float64 { return math.Log(x) }
func (LogBijector) Inverse(y float64) float64 { return math.Exp(y) }

// LogitBijector maps (0, 1) to the real line.
type LogitBijector struct{}

func (LogitBijector) Name() string              { return "logit" }
func (LogitBijector) Forward(x float64) float64 { return math.Log(x / (1 - x)) }
func (LogitBijector) Inverse(y float64) float64 { return 1 / (1 + math.Exp(-y)) }

// -----------------------------------------------------------------------------
// VectorState
// -----------------------------------------------------------------------------

// Variable declares one named latent variable of a VectorState.
type Variable struct {
	// Name must be unique within the state.
	Name string

	// Values is the initial constrained value; its length is the variable's
	// dimension.
	Values []float64

	// Bijector is the constraint transform. Nil means Identity.
	Bijector Bijector
}

type variable struct {
	name   string
	values []float64
	bij    Bijector
	linked bool
}

// VectorState is an in-memory LatentState over named real-valued variables.
//
// Description:
//
//	Variables keep their declaration order, which fixes the layout of the
//	vectors returned by Values. Names in a RestrictionSet that do not match
//	a variable select nothing.
//
// Thread Safety: Not safe for concurrent use.
type VectorState struct {
	vars []*variable
	logp float64
}

var _ LatentState = (*VectorState)(nil)

// NewVectorState creates a state from variable declarations.
//
// Outputs:
//   - *VectorState: The state, in constrained space, with zero log density.
//   - error: Non-nil if a name is empty or duplicated or a variable is empty.
func NewVectorState(vars ...Variable) (*VectorState, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("%w: at least one variable is required", ErrInvalidConfiguration)
	}
	seen := make(map[string]bool, len(vars))
	out := &VectorState{vars: make([]*variable, 0, len(vars))}
	for _, v := range vars {
		if v.Name == "" {
			return nil, fmt.Errorf("%w: variable name must not be empty", ErrInvalidConfiguration)
		}
		if seen[v.Name] {
			return nil, fmt.Errorf("%w: duplicate variable %q", ErrInvalidConfiguration, v.Name)
		}
		if len(v.Values) == 0 {
			return nil, fmt.Errorf("%w: variable %q has no values", ErrInvalidConfiguration, v.Name)
		}
		seen[v.Name] = true
		bij := v.Bijector
		if bij == nil {
			bij = Identity{}
		}
		values := make([]float64, len(v.Values))
		copy(values, v.Values)
		out.vars = append(out.vars, &variable{name: v.Name, values: values, bij: bij})
	}
	return out, nil
}

// Values returns a copy of the selected sub-vector in its current space.
func (s *VectorState) Values(sel RestrictionSet) []float64 {
	out := make([]float64, 0, s.selectedDim(sel))
	for _, v := range s.vars {
		if sel.Contains(v.name) {
			out = append(out, v.values...)
		}
	}
	return out
}

// SetValues overwrites the selected sub-vector.
func (s *VectorState) SetValues(sel RestrictionSet, values []float64) error {
	if want := s.selectedDim(sel); len(values) != want {
		return fmt.Errorf("%w: got %d values for selection %s of dimension %d",
			ErrDimensionMismatch, len(values), sel, want)
	}
	offset := 0
	for _, v := range s.vars {
		if !sel.Contains(v.name) {
			continue
		}
		copy(v.values, values[offset:offset+len(v.values)])
		offset += len(v.values)
	}
	return nil
}

// Link maps the selected variables to unconstrained space.
//
// Already linked variables are left untouched. The call is atomic: if any
// transform produces a non-finite value it fails with ErrOutOfSupport and
// no variable changes.
func (s *VectorState) Link(sel RestrictionSet) error {
	return s.transform(sel, false)
}

// Invlink maps the selected variables back to constrained space. Like Link
// it changes every selected variable or none.
func (s *VectorState) Invlink(sel RestrictionSet) error {
	return s.transform(sel, true)
}

// transform moves every selected variable whose linked flag equals linked
// to the other space, committing only once all of them succeeded.
func (s *VectorState) transform(sel RestrictionSet, linked bool) error {
	type pending struct {
		v   *variable
		out []float64
	}
	var todo []pending
	for _, v := range s.vars {
		if !sel.Contains(v.name) || v.linked != linked {
			continue
		}
		fn := v.bij.Forward
		if linked {
			fn = v.bij.Inverse
		}
		out, err := v.apply(fn)
		if err != nil {
			return err
		}
		todo = append(todo, pending{v: v, out: out})
	}
	for _, p := range todo {
		copy(p.v.values, p.out)
		p.v.linked = !linked
	}
	return nil
}

// Linked reports whether the named variable is in unconstrained space.
func (s *VectorState) Linked(name string) bool {
	for _, v := range s.vars {
		if v.name == name {
			return v.linked
		}
	}
	return false
}

// LogDensity returns the accumulated log density.
func (s *VectorState) LogDensity() float64 {
	return s.logp
}

// SetLogDensity records the accumulated log density.
func (s *VectorState) SetLogDensity(logp float64) {
	s.logp = logp
}

// Dim returns the total number of scalar values.
func (s *VectorState) Dim() int {
	return s.selectedDim(RestrictionSet{})
}

// Snapshot returns the full vector in constrained space.
func (s *VectorState) Snapshot() LatentSnapshot {
	snap := LatentSnapshot{
		Names:      make([]string, 0, s.Dim()),
		Values:     make([]float64, 0, s.Dim()),
		LogDensity: s.logp,
	}
	for _, v := range s.vars {
		for i, x := range v.values {
			if v.linked {
				x = v.bij.Inverse(x)
			}
			snap.Names = append(snap.Names, scalarName(v.name, i, len(v.values)))
			snap.Values = append(snap.Values, x)
		}
	}
	return snap
}

// Clone returns an independent deep copy.
func (s *VectorState) Clone() LatentState {
	out := &VectorState{vars: make([]*variable, len(s.vars)), logp: s.logp}
	for i, v := range s.vars {
		values := make([]float64, len(v.values))
		copy(values, v.values)
		out.vars[i] = &variable{name: v.name, values: values, bij: v.bij, linked: v.linked}
	}
	return out
}

func (s *VectorState) selectedDim(sel RestrictionSet) int {
	n := 0
	for _, v := range s.vars {
		if sel.Contains(v.name) {
			n += len(v.values)
		}
	}
	return n
}

func (v *variable) apply(fn func(float64) float64) ([]float64, error) {
	out := make([]float64, len(v.values))
	for i, x := range v.values {
		y := fn(x)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, fmt.Errorf("%w: %s transform of %s[%d]=%g", ErrOutOfSupport, v.bij.Name(), v.name, i, x)
		}
		out[i] = y
	}
	return out, nil
}

func scalarName(name string, i, n int) string {
	if n == 1 {
		return name
	}
	return name + "[" + strconv.Itoa(i) + "]"
}
