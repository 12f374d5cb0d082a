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

import "testing"

func TestRestrictionSet(t *testing.T) {
	tests := []struct {
		name     string
		names    []string
		wantAll  bool
		wantLen  int
		wantStr  string
		contains map[string]bool
	}{
		{
			name:     "zero names selects all",
			wantAll:  true,
			wantStr:  "*",
			contains: map[string]bool{"mu": true, "anything": true},
		},
		{
			name:     "empty names are dropped",
			names:    []string{"", ""},
			wantAll:  true,
			wantStr:  "*",
			contains: map[string]bool{"sigma": true},
		},
		{
			name:     "explicit names",
			names:    []string{"sigma", "mu", "mu"},
			wantLen:  2,
			wantStr:  "mu,sigma",
			contains: map[string]bool{"mu": true, "sigma": true, "tau": false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRestrictionSet(tt.names...)
			if r.IsAll() != tt.wantAll {
				t.Errorf("IsAll() = %v, want %v", r.IsAll(), tt.wantAll)
			}
			if r.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", r.Len(), tt.wantLen)
			}
			if r.String() != tt.wantStr {
				t.Errorf("String() = %q, want %q", r.String(), tt.wantStr)
			}
			for name, want := range tt.contains {
				if got := r.Contains(name); got != want {
					t.Errorf("Contains(%q) = %v, want %v", name, got, want)
				}
			}
		})
	}
}

func TestRestrictionSet_ZeroValueSelectsAll(t *testing.T) {
	var r RestrictionSet
	if !r.IsAll() || !r.Contains("x") {
		t.Error("zero RestrictionSet should select every variable")
	}
	if len(r.Names()) != 0 {
		t.Errorf("Names() = %v, want empty", r.Names())
	}
}
