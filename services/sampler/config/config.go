// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads sampler run configuration.
//
// Priority is environment > file > defaults. Files may be YAML or JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianMCMC/pkg/validation"
)

var validate = validator.New()

// SamplerFullConfig is the complete configuration of one sampling run.
type SamplerFullConfig struct {
	// Kernel selects the algorithm: sghmc, sgld, hmcda or ipmcmc.
	Kernel string `json:"kernel" yaml:"kernel" validate:"required,oneof=sghmc sgld hmcda ipmcmc"`

	// Seed seeds every random stream of the run.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Iterations is the number of outer iterations.
	Iterations int `json:"iterations" yaml:"iterations" validate:"gt=0"`

	// Dim is the dimension of the demo Gaussian target.
	Dim int `json:"dim" yaml:"dim" validate:"gt=0,lte=4096"`

	// Space restricts updates to the named variables. Empty means all.
	Space []string `json:"space" yaml:"space" validate:"dive,required"`

	SGHMC         SGHMCConfig         `json:"sghmc" yaml:"sghmc"`
	SGLD          SGLDConfig          `json:"sgld" yaml:"sgld"`
	HMCDA         HMCDAConfig         `json:"hmcda" yaml:"hmcda"`
	IPMCMC        IPMCMCConfig        `json:"ipmcmc" yaml:"ipmcmc"`
	Parallel      ParallelConfig      `json:"parallel" yaml:"parallel"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	Store         StoreConfig         `json:"store" yaml:"store"`
}

// SGHMCConfig holds stochastic gradient Hamiltonian Monte Carlo settings.
type SGHMCConfig struct {
	LearningRate  float64 `json:"learning_rate" yaml:"learning_rate" validate:"gte=0"`
	MomentumDecay float64 `json:"momentum_decay" yaml:"momentum_decay" validate:"gte=0,lte=1"`
}

// SGLDConfig holds stochastic gradient Langevin dynamics settings.
type SGLDConfig struct {
	StepSize float64 `json:"step_size" yaml:"step_size" validate:"gt=0"`
}

// HMCDAConfig holds HMC with dual averaging settings.
type HMCDAConfig struct {
	// Adapts is the number of adaptation steps. Negative means the default
	// of min(1000, iterations/2).
	Adapts int `json:"adapts" yaml:"adapts"`

	// Delta is the target acceptance rate.
	Delta float64 `json:"delta" yaml:"delta" validate:"gt=0,lt=1"`

	// Lambda is the target trajectory length.
	Lambda float64 `json:"lambda" yaml:"lambda" validate:"gt=0"`

	// InitStepSize is the initial leapfrog step size. Zero means heuristic.
	InitStepSize float64 `json:"init_step_size" yaml:"init_step_size" validate:"gte=0"`
}

// IPMCMCConfig holds interacting particle MCMC settings.
type IPMCMCConfig struct {
	Particles        int    `json:"particles" yaml:"particles" validate:"gt=0"`
	Nodes            int    `json:"nodes" yaml:"nodes" validate:"gt=0"`
	ConditionalNodes int    `json:"conditional_nodes" yaml:"conditional_nodes" validate:"gt=0"`
	Resampler        string `json:"resampler" yaml:"resampler" validate:"oneof=multinomial systematic stratified"`
}

// ParallelConfig bounds concurrent node sweeps.
type ParallelConfig struct {
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" validate:"gte=0"`
}

// ObservabilityConfig configures tracing, metrics and logging.
type ObservabilityConfig struct {
	TracingEnabled   bool          `json:"tracing_enabled" yaml:"tracing_enabled"`
	MetricsEnabled   bool          `json:"metrics_enabled" yaml:"metrics_enabled"`
	TraceExporter    string        `json:"trace_exporter" yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricsExporter  string        `json:"metrics_exporter" yaml:"metrics_exporter" validate:"oneof=none stdout prometheus"`
	MetricsAddr      string        `json:"metrics_addr" yaml:"metrics_addr"`
	OTLPEndpoint     string        `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	LogLevel         string        `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogDir           string        `json:"log_dir" yaml:"log_dir"`
	ServiceName      string        `json:"service_name" yaml:"service_name" validate:"required"`
	ProgressInterval time.Duration `json:"progress_interval" yaml:"progress_interval" validate:"gte=0"`
}

// StoreConfig configures sample persistence.
type StoreConfig struct {
	// Path of the badger directory. Empty disables persistence.
	Path string `json:"path" yaml:"path"`

	// InMemory keeps the store in memory. Ignored when Path is empty.
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// SyncWrites fsyncs every write.
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes"`
}

// DefaultSamplerFullConfig returns the default configuration.
//
// Outputs:
//   - SamplerFullConfig: Default configuration with sensible values.
func DefaultSamplerFullConfig() SamplerFullConfig {
	return SamplerFullConfig{
		Kernel:     "hmcda",
		Seed:       1,
		Iterations: 1000,
		Dim:        2,
		SGHMC: SGHMCConfig{
			LearningRate:  0.01,
			MomentumDecay: 0.1,
		},
		SGLD: SGLDConfig{
			StepSize: 0.01,
		},
		HMCDA: HMCDAConfig{
			Adapts: -1,
			Delta:  0.65,
			Lambda: 1.0,
		},
		IPMCMC: IPMCMCConfig{
			Particles:        10,
			Nodes:            4,
			ConditionalNodes: 2,
			Resampler:        "systematic",
		},
		Parallel: ParallelConfig{
			MaxConcurrency: 0,
		},
		Observability: ObservabilityConfig{
			TracingEnabled:   false,
			MetricsEnabled:   false,
			TraceExporter:    "none",
			MetricsExporter:  "none",
			MetricsAddr:      ":9464",
			LogLevel:         "info",
			ServiceName:      "aleutian-sampler",
			ProgressInterval: 2 * time.Second,
		},
	}
}

// LoadSamplerConfig loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - configPath: Path to YAML/JSON config file (optional, can be empty).
//
// Outputs:
//   - SamplerFullConfig: Merged configuration.
//   - error: Non-nil if the file exists but is invalid, or validation fails.
func LoadSamplerConfig(configPath string) (SamplerFullConfig, error) {
	config := DefaultSamplerFullConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadConfigFromEnv(&config)

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func loadConfigFile(path string, config *SamplerFullConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadConfigFromEnv(config *SamplerFullConfig) {
	if v := os.Getenv("SAMPLER_KERNEL"); v != "" {
		config.Kernel = strings.ToLower(v)
	}
	if v := os.Getenv("SAMPLER_SEED"); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Seed = u
		}
	}
	if v := os.Getenv("SAMPLER_ITERATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Iterations = i
		}
	}
	if v := os.Getenv("SAMPLER_DIM"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Dim = i
		}
	}
	if v := os.Getenv("SAMPLER_SPACE"); v != "" {
		config.Space = strings.Split(v, ",")
	}

	// Kernels
	if v := os.Getenv("SAMPLER_SGHMC_LEARNING_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.SGHMC.LearningRate = f
		}
	}
	if v := os.Getenv("SAMPLER_SGHMC_MOMENTUM_DECAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.SGHMC.MomentumDecay = f
		}
	}
	if v := os.Getenv("SAMPLER_SGLD_STEP_SIZE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.SGLD.StepSize = f
		}
	}
	if v := os.Getenv("SAMPLER_HMCDA_ADAPTS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.HMCDA.Adapts = i
		}
	}
	if v := os.Getenv("SAMPLER_HMCDA_DELTA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.HMCDA.Delta = f
		}
	}
	if v := os.Getenv("SAMPLER_HMCDA_LAMBDA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.HMCDA.Lambda = f
		}
	}
	if v := os.Getenv("SAMPLER_IPMCMC_PARTICLES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.IPMCMC.Particles = i
		}
	}
	if v := os.Getenv("SAMPLER_IPMCMC_NODES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.IPMCMC.Nodes = i
		}
	}
	if v := os.Getenv("SAMPLER_IPMCMC_CONDITIONAL_NODES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.IPMCMC.ConditionalNodes = i
		}
	}
	if v := os.Getenv("SAMPLER_IPMCMC_RESAMPLER"); v != "" {
		config.IPMCMC.Resampler = strings.ToLower(v)
	}

	// Parallel
	if v := os.Getenv("SAMPLER_MAX_CONCURRENCY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Parallel.MaxConcurrency = i
		}
	}

	// Observability
	if v := os.Getenv("SAMPLER_TRACING_ENABLED"); v != "" {
		config.Observability.TracingEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SAMPLER_METRICS_ENABLED"); v != "" {
		config.Observability.MetricsEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SAMPLER_TRACE_EXPORTER"); v != "" {
		config.Observability.TraceExporter = v
	}
	if v := os.Getenv("SAMPLER_METRICS_EXPORTER"); v != "" {
		config.Observability.MetricsExporter = v
	}
	if v := os.Getenv("SAMPLER_METRICS_ADDR"); v != "" {
		config.Observability.MetricsAddr = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		config.Observability.OTLPEndpoint = v
	}
	if v := os.Getenv("SAMPLER_LOG_LEVEL"); v != "" {
		config.Observability.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("SAMPLER_LOG_DIR"); v != "" {
		config.Observability.LogDir = v
	}
	if v := os.Getenv("SAMPLER_PROGRESS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Observability.ProgressInterval = d
		}
	}

	// Store
	if v := os.Getenv("SAMPLER_STORE_PATH"); v != "" {
		config.Store.Path = v
	}
	if v := os.Getenv("SAMPLER_STORE_IN_MEMORY"); v != "" {
		config.Store.InMemory = v == "true" || v == "1"
	}
}

// Validate checks that the configuration is valid.
//
// Description:
//
//	Field constraints are checked with struct tags; the cross-field rules
//	that tags cannot express are checked afterwards.
//
// Outputs:
//   - error: Non-nil if configuration is invalid.
func (c SamplerFullConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := validation.ValidateVariableNames(c.Space); err != nil {
		return fmt.Errorf("space: %w", err)
	}
	if c.IPMCMC.ConditionalNodes > c.IPMCMC.Nodes {
		return fmt.Errorf("ipmcmc.conditional_nodes (%d) must be <= ipmcmc.nodes (%d)",
			c.IPMCMC.ConditionalNodes, c.IPMCMC.Nodes)
	}
	if c.HMCDA.Adapts > c.Iterations {
		return fmt.Errorf("hmcda.adapts (%d) must be <= iterations (%d)", c.HMCDA.Adapts, c.Iterations)
	}
	if c.Observability.TraceExporter == "otlp" && c.Observability.OTLPEndpoint == "" {
		return fmt.Errorf("observability.otlp_endpoint is required for the otlp trace exporter")
	}
	return nil
}
