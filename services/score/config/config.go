// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the run configuration for a scoring run.
//
// A RunConfig is sourced from a YAML file (crabscore.yaml in the project
// root by default) and then overridden by command-line flags. Validate must
// be called before the configuration is used; it returns a *ConfigError for
// every problem it finds.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the per-project configuration file looked up by LoadProject.
const DefaultFileName = "crabscore.yaml"

// DefaultProviderTimeout bounds each metric provider call.
const DefaultProviderTimeout = 30 * time.Second

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// RunConfig is the complete configuration of one scoring run.
type RunConfig struct {
	// Profile selects the industry profile. Empty means the registry default.
	Profile string `yaml:"profile" json:"profile"`

	// ProfilesFile optionally points to a YAML file with additional profiles.
	ProfilesFile string `yaml:"profiles_file" json:"profiles_file,omitempty"`

	// MinScore is the gate threshold. 0 disables the gate.
	MinScore float64 `yaml:"min_score" json:"min_score" validate:"gte=0,lte=100"`

	// Exclude lists glob patterns relative to the project root.
	Exclude []string `yaml:"exclude" json:"exclude" validate:"dive,required"`

	// ProviderTimeout bounds each metric provider independently.
	ProviderTimeout time.Duration `yaml:"provider_timeout" json:"provider_timeout" validate:"gt=0"`

	// Workers sizes the parse pool. 0 means runtime.NumCPU().
	Workers int `yaml:"workers" json:"workers" validate:"gte=0,lte=1024"`

	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Energy      EnergyConfig      `yaml:"energy" json:"energy"`
	Cost        CostConfig        `yaml:"cost" json:"cost"`
}

// CacheConfig controls the persistent finding cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir" validate:"required_if=Enabled true"`
}

// PerformanceConfig configures the benchmark provider.
//
// The provider is disabled when Binary is empty.
type PerformanceConfig struct {
	Binary     string   `yaml:"binary" json:"binary"`
	Args       []string `yaml:"args" json:"args"`
	Warmup     int      `yaml:"warmup" json:"warmup" validate:"gte=0,lte=100"`
	Iterations int      `yaml:"iterations" json:"iterations" validate:"gte=1,lte=1000"`
}

// EnergyConfig configures the RAPL energy provider.
type EnergyConfig struct {
	Disabled bool          `yaml:"disabled" json:"disabled"`
	RAPLPath string        `yaml:"rapl_path" json:"rapl_path"`
	Window   time.Duration `yaml:"window" json:"window" validate:"gte=0"`

	// CarbonIntensity is grams of CO2 per kWh of the host's supply.
	CarbonIntensity float64 `yaml:"carbon_intensity" json:"carbon_intensity" validate:"gte=0"`

	// RenewableFraction is the 0-1 renewable share of the host's supply.
	RenewableFraction float64 `yaml:"renewable_fraction" json:"renewable_fraction" validate:"gte=0,lte=1"`
}

// CostConfig configures the static cost-table provider.
//
// The provider is disabled when Table is empty.
type CostConfig struct {
	Table string `yaml:"table" json:"table"`
}

// DefaultExcludes are the exclude globs every run starts from. The walker
// applies them when a caller passes no patterns.
var DefaultExcludes = []string{
	"target/**",
	".git/**",
	"**/node_modules/**",
}

// Default returns the configuration used when no file is present.
func Default() RunConfig {
	return RunConfig{
		Exclude:         slices.Clone(DefaultExcludes),
		ProviderTimeout: DefaultProviderTimeout,
		Performance: PerformanceConfig{
			Warmup:     1,
			Iterations: 5,
		},
		Energy: EnergyConfig{
			RAPLPath: "/sys/class/powercap/intel-rapl:0/energy_uj",
			Window:   time.Second,
		},
	}
}

// Load reads a YAML run configuration on top of Default().
//
// Inputs:
//   - path: File to read.
//
// Outputs:
//   - RunConfig: The merged configuration (not yet validated).
//   - error: *ConfigError when the file cannot be read or parsed.
func Load(path string) (RunConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, NewConfigError(ErrInvalidConfig, "file", "read %s: %v", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, NewConfigError(ErrInvalidConfig, "file", "parse %s: %v", path, err)
	}

	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// LoadProject loads root/crabscore.yaml if it exists, Default() otherwise.
//
// Outputs:
//   - RunConfig: Configuration for the project.
//   - bool: True when a file was found and loaded.
//   - error: Non-nil when the file exists but cannot be loaded.
func LoadProject(root string) (RunConfig, bool, error) {
	path := filepath.Join(root, DefaultFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), false, nil
		}
		return Default(), false, NewConfigError(ErrInvalidConfig, "file", "stat %s: %v", path, err)
	}

	cfg, err := Load(path)
	if err != nil {
		return cfg, false, err
	}
	return cfg, true, nil
}

// resolvePaths makes file references relative to the config file's directory.
func (c *RunConfig) resolvePaths(base string) {
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "~") {
			return p
		}
		return filepath.Join(base, p)
	}
	c.ProfilesFile = rel(c.ProfilesFile)
	c.Cost.Table = rel(c.Cost.Table)
	c.Performance.Binary = rel(c.Performance.Binary)
	c.Cache.Dir = rel(c.Cache.Dir)
}

// Validate checks struct constraints and glob syntax.
//
// Outputs:
//   - error: *ConfigError wrapping ErrInvalidConfig (or ErrInvalidThresholds
//     for the gate threshold), nil when the configuration is usable.
func (c RunConfig) Validate() error {
	if math.IsNaN(c.MinScore) || math.IsInf(c.MinScore, 0) {
		return NewConfigError(ErrInvalidThresholds, "min_score", "must be a finite number")
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			cause := ErrInvalidConfig
			if fe.Field() == "MinScore" {
				cause = ErrInvalidThresholds
			}
			return NewConfigError(cause, yamlFieldName(fe.Namespace()), "failed %q constraint (value %v)", fe.Tag(), fe.Value())
		}
		return NewConfigError(ErrInvalidConfig, "", "%v", err)
	}

	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return NewConfigError(ErrInvalidConfig, "exclude", "bad glob %q", pattern)
		}
	}

	return nil
}

// yamlFieldName turns "RunConfig.Cache.Dir" into "cache.dir".
func yamlFieldName(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// String renders the configuration as YAML, for `crabscore config`.
func (c RunConfig) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		type plain RunConfig
		return fmt.Sprintf("%+v", plain(c))
	}
	return string(data)
}
