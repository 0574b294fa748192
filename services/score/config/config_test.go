// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultProviderTimeout, cfg.ProviderTimeout)
	assert.Contains(t, cfg.Exclude, "target/**")
}

func TestDefault_ExcludesAreCopied(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultExcludes, cfg.Exclude)

	cfg.Exclude[0] = "changed/**"
	assert.Equal(t, "target/**", DefaultExcludes[0])
	assert.Equal(t, "target/**", Default().Exclude[0])
}

func TestRunConfig_String(t *testing.T) {
	cfg := Default()
	cfg.Profile = "gaming"
	cfg.MinScore = 72.5

	out := cfg.String()
	assert.Contains(t, out, "profile: gaming")
	assert.Contains(t, out, "min_score: 72.5")
	assert.Contains(t, out, "- target/**")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *RunConfig)
		wantCause error
		wantField string
	}{
		{
			name:      "gate above 100",
			mutate:    func(c *RunConfig) { c.MinScore = 101 },
			wantCause: ErrInvalidThresholds,
			wantField: "min_score",
		},
		{
			name:      "gate NaN",
			mutate:    func(c *RunConfig) { c.MinScore = math.NaN() },
			wantCause: ErrInvalidThresholds,
			wantField: "min_score",
		},
		{
			name:      "zero timeout",
			mutate:    func(c *RunConfig) { c.ProviderTimeout = 0 },
			wantCause: ErrInvalidConfig,
			wantField: "provider_timeout",
		},
		{
			name:      "cache without dir",
			mutate:    func(c *RunConfig) { c.Cache.Enabled = true },
			wantCause: ErrInvalidConfig,
			wantField: "cache.dir",
		},
		{
			name:      "empty exclude entry",
			mutate:    func(c *RunConfig) { c.Exclude = append(c.Exclude, "") },
			wantCause: ErrInvalidConfig,
		},
		{
			name:      "malformed glob",
			mutate:    func(c *RunConfig) { c.Exclude = []string{"src/[a-"} },
			wantCause: ErrInvalidConfig,
			wantField: "exclude",
		},
		{
			name:      "unbalanced brace glob",
			mutate:    func(c *RunConfig) { c.Exclude = []string{"src/{gen,build"} },
			wantCause: ErrInvalidConfig,
			wantField: "exclude",
		},
		{
			name:      "zero iterations",
			mutate:    func(c *RunConfig) { c.Performance.Iterations = 0 },
			wantCause: ErrInvalidConfig,
			wantField: "performance.iterations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantCause), "got %v", err)
			assert.True(t, IsConfigError(err))

			if tt.wantField != "" {
				var cfgErr *ConfigError
				require.True(t, errors.As(err, &cfgErr))
				assert.Equal(t, tt.wantField, cfgErr.Field)
			}
		})
	}
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	content := `
profile: financial
min_score: 70
provider_timeout: 5s
cost:
  table: costs.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "financial", cfg.Profile)
	assert.Equal(t, 70.0, cfg.MinScore)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, filepath.Join(dir, "costs.yaml"), cfg.Cost.Table)
	assert.Equal(t, 5, cfg.Performance.Iterations, "defaults survive partial files")
	require.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("profile: [unterminated"), 0o644))
		_, err := Load(path)
		assert.True(t, IsConfigError(err))
	})
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()

	cfg, found, err := LoadProject(dir)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, Default().ProviderTimeout, cfg.ProviderTimeout)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("profile: gaming\n"), 0o644))
	cfg, found, err = LoadProject(dir)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "gaming", cfg.Profile)
}

func TestConfigError_Message(t *testing.T) {
	err := NewConfigError(ErrUnknownProfile, "profile", "%q is not registered", "Nonexistent")
	assert.Equal(t, `config profile: "Nonexistent" is not registered`, err.Error())
	assert.True(t, errors.Is(err, ErrUnknownProfile))
}
