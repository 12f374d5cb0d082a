// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"Error", LevelError, false},
		{"trace", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	if LevelDebug.toSlogLevel() != slog.LevelDebug || Level(42).toSlogLevel() != slog.LevelInfo {
		t.Error("unexpected slog level mapping")
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown", "iteration", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "iteration=3") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestNew_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, JSON: true, Service: "sampler", Output: &buf})

	logger.With("kernel", "sghmc").Debug("step")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if record["service"] != "sampler" || record["kernel"] != "sghmc" || record["msg"] != "step" {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "test", Output: &buf})

	logger.Info("to both")
	path := logger.FilePath()
	if path == "" {
		t.Fatal("expected a log file")
	}
	if filepath.Dir(path) != dir || !strings.HasPrefix(filepath.Base(path), "test_") {
		t.Errorf("unexpected log file path %q", path)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"to both"`) {
		t.Errorf("file missing record: %s", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("terminal missing record: %s", buf.String())
	}
	if logger.FilePath() != "" {
		t.Error("FilePath() should be empty after Close")
	}
}

func TestNew_QuietWithFileOnly(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger := New(Config{Quiet: true, LogDir: dir, Output: &buf})
	defer logger.Close()

	logger.Error("only in file")
	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote to terminal: %s", buf.String())
	}
}

func TestClose_WithoutFile(t *testing.T) {
	if err := New(Config{Output: &bytes.Buffer{}}).Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSetDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	New(Config{Output: &buf}).SetDefault()
	slog.Info("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Errorf("default logger not installed: %s", buf.String())
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/logs"); got != filepath.Join(home, "logs") {
		t.Errorf("expandPath = %q", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("expandPath = %q", got)
	}
}

func TestNew_QuietWithoutFileDiscards(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Quiet: true, Output: &buf})

	logger.Error("dropped")
	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote to terminal: %s", buf.String())
	}
}
