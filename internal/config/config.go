// Copyright 2025 The CloudWeave Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the engine's YAML configuration:
// logging, the scheduler, and the set of cloud providers available to
// the registry.
package config

import (
	"fmt"
	"os"
	"time"

	engineerrors "github.com/cloudweave/engine/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = fmt.Errorf("config: invalid configuration")

// Config represents the complete engine configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Store     StoreConfig     `yaml:"store"`
	Cron      CronConfig      `yaml:"cron,omitempty"`

	// Providers maps a provider instance name to its configuration.
	Providers ProvidersMap `yaml:"providers,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: json
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// SchedulerConfig configures the workflow scheduler's admission queue,
// concurrency cap, per-workflow timeout, and retention GC loop.
type SchedulerConfig struct {
	// MaxConcurrentWorkflows bounds how many workflows may run at once.
	// Default: 10
	MaxConcurrentWorkflows int `yaml:"max_concurrent_workflows"`

	// MaxWorkflowTimeout is the maximum duration a single workflow run
	// may take before the scheduler marks it FAILED.
	// Default: 1h
	MaxWorkflowTimeout time.Duration `yaml:"max_workflow_timeout"`

	// CleanupInterval is how often the retention GC loop runs.
	// Default: 24h
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// HistoryRetention is how long a completed workflow's state is kept
	// before the GC loop removes it.
	// Default: 720h (30 days)
	HistoryRetention time.Duration `yaml:"history_retention"`
}

// CronConfig configures recurring blueprint re-submission: a set of
// named cron schedules, each pointing at a blueprint file under
// BlueprintsDir. Optional; an empty Schedules list means no schedules
// run.
type CronConfig struct {
	// BlueprintsDir is the directory schedules' Blueprint names are
	// resolved against (and the current working directory, as a
	// fallback).
	BlueprintsDir string `yaml:"blueprints_dir,omitempty"`

	// Schedules defines the recurring blueprint submissions.
	Schedules []CronSchedule `yaml:"schedules,omitempty"`
}

// CronSchedule defines one recurring blueprint submission.
type CronSchedule struct {
	// Name is the unique identifier for this schedule.
	Name string `yaml:"name"`

	// Cron is a standard 5-field cron expression (minute hour
	// day-of-month month day-of-week), or one of the @hourly/@daily/
	// @weekly/@monthly/@yearly shorthands.
	Cron string `yaml:"cron"`

	// Blueprint is the blueprint file to submit, resolved against
	// BlueprintsDir.
	Blueprint string `yaml:"blueprint"`

	// Inputs are the inputs passed to each submitted run.
	Inputs map[string]any `yaml:"inputs,omitempty"`

	// Enabled controls whether this schedule fires.
	Enabled bool `yaml:"enabled"`

	// Timezone is the IANA timezone cron times are evaluated in.
	// Default: UTC
	Timezone string `yaml:"timezone,omitempty"`
}

// StoreConfig selects and configures the durable state store backend.
type StoreConfig struct {
	// Driver selects the store implementation: "memory" or "sqlite".
	// Default: memory
	Driver string `yaml:"driver"`

	// DSN is the sqlite data source (file path or ":memory:") when
	// Driver is "sqlite". Ignored otherwise.
	DSN string `yaml:"dsn,omitempty"`
}

// ProvidersMap maps provider instance names to their configuration.
type ProvidersMap map[string]ProviderConfig

// ProviderConfig configures one registered cloud provider instance,
// matching the shape the registry uses to construct and register it.
type ProviderConfig struct {
	// Type selects the provider implementation (e.g. "mock", "kubernetes").
	Type string `yaml:"type"`

	// Name is the human-readable provider instance name.
	Name string `yaml:"name"`

	// Description is an optional free-text description.
	Description string `yaml:"description,omitempty"`

	// Enabled controls whether the registry makes this provider available.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Default marks this as the provider used when a workflow run does
	// not specify one explicitly. At most one provider may set this.
	Default bool `yaml:"default"`

	// Timeout bounds a single provider operation call.
	// Default: 5m
	Timeout time.Duration `yaml:"timeout"`

	// RetryCount is how many times a failed operation is retried.
	// Default: 3
	RetryCount int `yaml:"retry_count"`

	// RetryInterval is the base delay between retries.
	// Default: 5s
	RetryInterval time.Duration `yaml:"retry_interval"`

	// Properties carries provider-specific configuration (endpoints,
	// credentials, region, ...). Credential values should never be
	// logged; use log.SanitizeSecret when surfacing them.
	Properties map[string]any `yaml:"properties,omitempty"`
}

// Validate checks a single provider configuration in isolation,
// mirroring the validation the registry performs before construction.
func (p ProviderConfig) Validate() error {
	if p.Type == "" {
		return &engineerrors.ValidationError{Field: "type", Message: "provider type must not be empty"}
	}
	if p.Name == "" {
		return &engineerrors.ValidationError{Field: "name", Message: "provider name must not be empty"}
	}
	if p.Timeout <= 0 {
		return &engineerrors.ValidationError{Field: "timeout", Message: "timeout must be greater than zero"}
	}
	if p.RetryCount < 0 {
		return &engineerrors.ValidationError{Field: "retry_count", Message: "retry count must not be negative"}
	}
	if p.RetryInterval <= 0 {
		return &engineerrors.ValidationError{Field: "retry_interval", Message: "retry interval must be greater than zero"}
	}
	return nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:     "info",
			Format:    "json",
			AddSource: false,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentWorkflows: 10,
			MaxWorkflowTimeout:     time.Hour,
			CleanupInterval:        24 * time.Hour,
			HistoryRetention:       30 * 24 * time.Hour,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Providers: ProvidersMap{},
	}
}

// Load loads configuration from a YAML file, applying defaults to any
// zero-valued field and overriding with environment variables.
// If configPath is empty, only defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &engineerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &engineerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Unmarshal over the current (default) value so omitted fields keep
	// their defaults instead of being zeroed.
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Scheduler.MaxConcurrentWorkflows == 0 {
		c.Scheduler.MaxConcurrentWorkflows = defaults.Scheduler.MaxConcurrentWorkflows
	}
	if c.Scheduler.MaxWorkflowTimeout == 0 {
		c.Scheduler.MaxWorkflowTimeout = defaults.Scheduler.MaxWorkflowTimeout
	}
	if c.Scheduler.CleanupInterval == 0 {
		c.Scheduler.CleanupInterval = defaults.Scheduler.CleanupInterval
	}
	if c.Scheduler.HistoryRetention == 0 {
		c.Scheduler.HistoryRetention = defaults.Scheduler.HistoryRetention
	}
	if c.Store.Driver == "" {
		c.Store.Driver = defaults.Store.Driver
	}
	if c.Providers == nil {
		c.Providers = ProvidersMap{}
	}

	for name, p := range c.Providers {
		if p.Timeout == 0 {
			p.Timeout = 5 * time.Minute
		}
		if p.RetryCount == 0 {
			p.RetryCount = 3
		}
		if p.RetryInterval == 0 {
			p.RetryInterval = 5 * time.Second
		}
		c.Providers[name] = p
	}
}

// loadFromEnv overrides configuration with environment variables.
// Environment variables take precedence over file-based configuration.
func (c *Config) loadFromEnv() {
	if level := os.Getenv("ENGINE_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	} else if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
	if os.Getenv("LOG_SOURCE") == "1" {
		c.Log.AddSource = true
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Scheduler.MaxConcurrentWorkflows <= 0 {
		errs = append(errs, fmt.Sprintf("scheduler.max_concurrent_workflows must be positive, got %d", c.Scheduler.MaxConcurrentWorkflows))
	}
	if c.Scheduler.MaxWorkflowTimeout <= 0 {
		errs = append(errs, "scheduler.max_workflow_timeout must be positive")
	}
	if c.Scheduler.CleanupInterval <= 0 {
		errs = append(errs, "scheduler.cleanup_interval must be positive")
	}
	if c.Scheduler.HistoryRetention <= 0 {
		errs = append(errs, "scheduler.history_retention must be positive")
	}

	validDrivers := map[string]bool{"memory": true, "sqlite": true}
	if !validDrivers[c.Store.Driver] {
		errs = append(errs, fmt.Sprintf("store.driver must be one of [memory, sqlite], got %q", c.Store.Driver))
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		errs = append(errs, "store.dsn is required when store.driver is \"sqlite\"")
	}

	seenSchedule := map[string]bool{}
	for i, sc := range c.Cron.Schedules {
		if sc.Name == "" {
			errs = append(errs, fmt.Sprintf("cron.schedules[%d].name must not be empty", i))
		} else if seenSchedule[sc.Name] {
			errs = append(errs, fmt.Sprintf("cron.schedules[%d]: duplicate schedule name %q", i, sc.Name))
		}
		seenSchedule[sc.Name] = true
		if sc.Cron == "" {
			errs = append(errs, fmt.Sprintf("cron.schedules[%d].cron must not be empty", i))
		}
		if sc.Blueprint == "" {
			errs = append(errs, fmt.Sprintf("cron.schedules[%d].blueprint must not be empty", i))
		}
	}

	defaultCount := 0
	for name, p := range c.Providers {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("providers[%q]: %v", name, err))
		}
		if p.Default {
			defaultCount++
		}
	}
	if defaultCount > 1 {
		errs = append(errs, fmt.Sprintf("at most one provider may set default=true, got %d", defaultCount))
	}

	if len(errs) > 0 {
		msg := errs[0]
		for _, e := range errs[1:] {
			msg += "\n  - " + e
		}
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, msg)
	}

	return nil
}
