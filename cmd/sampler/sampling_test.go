// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMCMC/pkg/ux"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/config"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/kernel"
	"github.com/AleutianAI/AleutianMCMC/services/sampler/store"
)

func smallConfig(kernelName string) config.SamplerFullConfig {
	cfg := config.DefaultSamplerFullConfig()
	cfg.Kernel = kernelName
	cfg.Iterations = 40
	cfg.Dim = 2
	cfg.IPMCMC.Particles = 8
	return cfg
}

func newMemoryStore(t *testing.T) *store.SampleStore {
	t.Helper()
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s, err := store.NewSampleStore(db, nil)
	require.NoError(t, err)
	return s
}

func TestSample_AllKernels(t *testing.T) {
	tests := []struct {
		kernel      string
		wantSamples int
	}{
		{kernel: "sghmc", wantSamples: 40},
		{kernel: "sgld", wantSamples: 40},
		{kernel: "hmcda", wantSamples: 40},
		{kernel: "ipmcmc", wantSamples: 40 * 2},
	}
	for _, tt := range tests {
		t.Run(tt.kernel, func(t *testing.T) {
			cfg := smallConfig(tt.kernel)
			require.NoError(t, cfg.Validate())
			samples := newMemoryStore(t)

			res, err := sample(context.Background(), cfg, runDeps{ChainID: "c1", Sink: samples})
			require.NoError(t, err)
			assert.Equal(t, "c1", res.ChainID)
			assert.Equal(t, tt.wantSamples, res.Samples.Len())
			assert.InDelta(t, 1.0, res.Samples.TotalWeight(), 1e-9)

			n, err := samples.Count(context.Background(), "c1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantSamples, n)
		})
	}
}

func TestSample_ReproducibleWithSeed(t *testing.T) {
	for _, name := range []string{"sghmc", "hmcda", "ipmcmc"} {
		t.Run(name, func(t *testing.T) {
			cfg := smallConfig(name)
			a, err := sample(context.Background(), cfg, runDeps{})
			require.NoError(t, err)
			b, err := sample(context.Background(), cfg, runDeps{})
			require.NoError(t, err)
			assert.Equal(t, a.Samples.Mean(), b.Samples.Mean())
		})
	}
}

func TestSample_UnknownKernel(t *testing.T) {
	cfg := smallConfig("nuts")
	_, err := sample(context.Background(), cfg, runDeps{})
	assert.ErrorIs(t, err, kernel.ErrInvalidConfiguration)
}

func TestApplyRunFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().StringVar(&kernelName, "kernel", "", "")
	cmd.Flags().IntVar(&iterations, "iters", 0, "")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "")
	cmd.Flags().IntVar(&dim, "dim", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--kernel", "sgld", "--iters", "12", "--metrics-addr", ":9999"}))

	cfg := config.DefaultSamplerFullConfig()
	applyRunFlags(cmd, &cfg)

	assert.Equal(t, "sgld", cfg.Kernel)
	assert.Equal(t, 12, cfg.Iterations)
	assert.Equal(t, ":9999", cfg.Observability.MetricsAddr)
	assert.Equal(t, "prometheus", cfg.Observability.MetricsExporter)
	assert.True(t, cfg.Observability.MetricsEnabled)
	// Unset flags leave the configuration alone.
	assert.Equal(t, config.DefaultSamplerFullConfig().Dim, cfg.Dim)
}

func TestInspectChain(t *testing.T) {
	samples := newMemoryStore(t)
	cfg := smallConfig("sgld")
	_, err := sample(context.Background(), cfg, runDeps{ChainID: "stored", Sink: samples})
	require.NoError(t, err)

	var buf bytes.Buffer
	p := ux.NewPrinterWithLevel(&buf, ux.PersonalityMachine)
	require.NoError(t, inspectChain(context.Background(), samples, "stored", p))

	out := buf.String()
	assert.Contains(t, out, "samples=40\n")
	assert.Contains(t, out, "total_weight=1.000000\n")
	assert.Contains(t, out, "variables=[theta[0] theta[1]]\n")
}

func TestInspectChain_Missing(t *testing.T) {
	samples := newMemoryStore(t)
	p := ux.NewPrinterWithLevel(&bytes.Buffer{}, ux.PersonalityMachine)
	assert.Error(t, inspectChain(context.Background(), samples, "nope", p))
}

func TestListChains(t *testing.T) {
	samples := newMemoryStore(t)
	_, err := sample(context.Background(), smallConfig("sgld"), runDeps{ChainID: "a", Sink: samples})
	require.NoError(t, err)
	_, err = sample(context.Background(), smallConfig("ipmcmc"), runDeps{ChainID: "b", Sink: samples})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, listChains(context.Background(), samples, ux.NewPrinterWithLevel(&buf, ux.PersonalityMachine)))
	assert.Equal(t, "a=40\nb=80\n", buf.String())
}
