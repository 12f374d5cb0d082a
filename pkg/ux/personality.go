// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel defines the richness of CLI output.
type PersonalityLevel string

const (
	// PersonalityStandard enables colors, icons and boxes.
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMachine outputs plain text suitable for scripting and parsing.
	PersonalityMachine PersonalityLevel = "machine"
)

var (
	currentLevel = PersonalityStandard
	levelMu      sync.RWMutex
)

// GetPersonalityLevel returns the current output level.
func GetPersonalityLevel() PersonalityLevel {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return currentLevel
}

// SetPersonalityLevel updates the output level.
func SetPersonalityLevel(level PersonalityLevel) {
	levelMu.Lock()
	defer levelMu.Unlock()
	currentLevel = level
}

// ParsePersonalityLevel converts a string to PersonalityLevel.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(s) {
	case "machine", "quiet", "plain", "q":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// InitPersonality sets the level from ALEUTIAN_PERSONALITY, falling back to
// machine output when stdout is not a terminal.
func InitPersonality() {
	if envLevel := os.Getenv("ALEUTIAN_PERSONALITY"); envLevel != "" {
		SetPersonalityLevel(ParsePersonalityLevel(envLevel))
		return
	}
	if !IsTerminal(os.Stdout) {
		SetPersonalityLevel(PersonalityMachine)
		return
	}
	SetPersonalityLevel(PersonalityStandard)
}

// IsTerminal reports whether f is a terminal, including Cygwin/MSYS ptys.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
