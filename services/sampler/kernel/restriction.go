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
	"sort"
	"strings"
)

// RestrictionSet is the set of variable names a kernel may update.
//
// The zero value is the empty set, which means every variable. A set is
// resolved once when a kernel is constructed and never changes afterwards.
type RestrictionSet struct {
	names map[string]struct{}
}

// NewRestrictionSet builds a restriction set from variable names.
//
// Empty names and duplicates are dropped. Calling with no names yields the
// all-variables set.
func NewRestrictionSet(names ...string) RestrictionSet {
	if len(names) == 0 {
		return RestrictionSet{}
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	if len(set) == 0 {
		return RestrictionSet{}
	}
	return RestrictionSet{names: set}
}

// IsAll reports whether the set selects every variable.
func (r RestrictionSet) IsAll() bool {
	return len(r.names) == 0
}

// Contains reports whether the named variable is selected.
func (r RestrictionSet) Contains(name string) bool {
	if r.IsAll() {
		return true
	}
	_, ok := r.names[name]
	return ok
}

// Len returns the number of explicitly named variables (0 for all).
func (r RestrictionSet) Len() int {
	return len(r.names)
}

// Names returns the explicitly named variables in sorted order.
func (r RestrictionSet) Names() []string {
	out := make([]string, 0, len(r.names))
	for name := range r.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// String returns "*" for the all-variables set, else a comma separated list.
func (r RestrictionSet) String() string {
	if r.IsAll() {
		return "*"
	}
	return strings.Join(r.Names(), ",")
}
