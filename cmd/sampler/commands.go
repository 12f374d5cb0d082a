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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianMCMC/pkg/ux"
)

var (
	personalityLevel string

	// run flags
	configPath    string
	kernelName    string
	iterations    int
	seed          uint64
	dim           int
	storePath     string
	traceExporter string
	metricsAddr   string
	logLevel      string

	// inspect flags
	inspectStorePath string
)

var (
	rootCmd = &cobra.Command{
		Use:   "sampler",
		Short: "Run and inspect MCMC sampling chains",
		Long: `sampler drives the SGHMC, SGLD, HMCDA and IPMCMC kernels against
built-in demo targets, optionally persisting every sample to BadgerDB.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
				return
			}
			ux.InitPersonality()
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run one sampling chain",
		Long: `Run one chain of the selected kernel. Gradient kernels target an
isotropic Gaussian with mean 1; IPMCMC targets the posterior of a Gaussian
prior observed once, whose mean is also 1.`,
		Args: cobra.NoArgs,
		RunE: runSampling, // Defined in cmd_run.go
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect [chain-id]",
		Short: "List stored chains, or summarize one chain",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInspect, // Defined in cmd_inspect.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: standard or machine (default: machine when stdout is not a terminal)")

	runCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	runCmd.Flags().StringVar(&kernelName, "kernel", "", "Kernel: sghmc, sgld, hmcda or ipmcmc")
	runCmd.Flags().IntVar(&iterations, "iters", 0, "Number of iterations")
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed")
	runCmd.Flags().IntVar(&dim, "dim", 0, "Dimension of the demo target")
	runCmd.Flags().StringVar(&storePath, "store", "", "BadgerDB directory for persisting samples")
	runCmd.Flags().StringVar(&traceExporter, "trace-exporter", "", "Trace exporter: none, stdout or otlp")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")

	inspectCmd.Flags().StringVar(&inspectStorePath, "store", "", "BadgerDB directory to read")
	_ = inspectCmd.MarkFlagRequired("store")

	rootCmd.AddCommand(runCmd, inspectCmd)
}
