// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for identifiers that end up
// in storage keys and variable selections.
package validation

import (
	"fmt"
	"regexp"
)

// chainIDPattern matches chain identifiers, including UUIDs.
// Allows: letters, digits, dots, underscores, hyphens.
// Max length: 128 characters.
var chainIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// variablePattern matches latent variable names.
var variablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// ValidateChainID validates a chain ID before it is embedded in a storage key.
//
// Valid chain IDs:
//   - 1-128 characters
//   - Letters, digits, dots, underscores and hyphens
//   - Starting with a letter or digit
//
// Example:
//
//	if err := validation.ValidateChainID(id); err != nil {
//	    return fmt.Errorf("invalid chain id: %w", err)
//	}
func ValidateChainID(id string) error {
	if id == "" {
		return fmt.Errorf("chain id cannot be empty")
	}
	if !chainIDPattern.MatchString(id) {
		return fmt.Errorf("invalid chain id format: %q (must be 1-128 alphanumeric chars, dots, underscores or hyphens)", id)
	}
	return nil
}

// ValidateVariableName validates a latent variable name.
func ValidateVariableName(name string) error {
	if name == "" {
		return fmt.Errorf("variable name cannot be empty")
	}
	if !variablePattern.MatchString(name) {
		return fmt.Errorf("invalid variable name: %q (must be an identifier of at most 64 chars)", name)
	}
	return nil
}

// ValidateVariableNames validates multiple variable names.
// Returns an error listing all invalid names if any fail validation.
func ValidateVariableNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateVariableName(n); err != nil {
			invalid = append(invalid, n)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid variable names: %q", invalid)
	}
	return nil
}
