// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the sampler CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Label:   lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Value:   lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Field is one labelled line of a summary.
type Field struct {
	Label string
	Value string
}

// Printer writes CLI output to w, styled unless the level is machine.
type Printer struct {
	w     io.Writer
	level PersonalityLevel
}

// NewPrinter creates a printer for w at the current personality level.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, level: GetPersonalityLevel()}
}

// NewPrinterWithLevel creates a printer with an explicit level.
func NewPrinterWithLevel(w io.Writer, level PersonalityLevel) *Printer {
	return &Printer{w: w, level: level}
}

func (p *Printer) plain() bool {
	return p.level == PersonalityMachine
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	if p.plain() {
		fmt.Fprintf(p.w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	if p.plain() {
		fmt.Fprintf(p.w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message
func (p *Printer) Error(text string) {
	if p.plain() {
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Summary prints titled fields. Machine output is one key=value per line,
// with labels lower-cased and spaces replaced by underscores.
func (p *Printer) Summary(title string, fields []Field) {
	if p.plain() {
		for _, f := range fields {
			key := strings.ReplaceAll(strings.ToLower(f.Label), " ", "_")
			fmt.Fprintf(p.w, "%s=%s\n", key, f.Value)
		}
		return
	}

	width := 0
	for _, f := range fields {
		width = max(width, len(f.Label))
	}
	lines := make([]string, 0, len(fields)+1)
	lines = append(lines, Styles.Title.Render(title))
	for _, f := range fields {
		label := Styles.Label.Render(fmt.Sprintf("%-*s", width, f.Label))
		lines = append(lines, label+"  "+Styles.Value.Render(f.Value))
	}
	fmt.Fprintln(p.w, Styles.Box.Render(strings.Join(lines, "\n")))
}

// FormatVector formats values compactly, eliding the middle of long vectors.
func FormatVector(values []float64, maxShown int) string {
	if maxShown < 2 {
		maxShown = 2
	}
	parts := make([]string, 0, min(len(values), maxShown)+1)
	if len(values) <= maxShown {
		for _, v := range values {
			parts = append(parts, fmt.Sprintf("%.4g", v))
		}
	} else {
		head := maxShown / 2
		tail := maxShown - head
		for _, v := range values[:head] {
			parts = append(parts, fmt.Sprintf("%.4g", v))
		}
		parts = append(parts, "…")
		for _, v := range values[len(values)-tail:] {
			parts = append(parts, fmt.Sprintf("%.4g", v))
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}
