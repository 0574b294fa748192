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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/crabscore/services/score/config"
)

const libSource = `//! Demo crate.

/// Adds two numbers.
pub fn add(a: i32, b: i32) -> i32 {
    a + b
}

#[cfg(test)]
mod tests {
    #[test]
    fn adds() {
        assert_eq!(super::add(1, 2), 3);
    }
}
`

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "lib.rs"), []byte(libSource), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Cargo.toml"), []byte("[package]\nname = \"demo\"\nversion = \"0.1.0\"\n"), 0o644))
	return root
}

// runCLI executes the CLI with telemetry exporters disabled.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	t.Setenv("OTEL_METRICS_EXPORTER", "none")

	var stdout, stderr bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	code := run(ctx, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "crabscore "+version+"\n", out)
}

func TestScore_Summary(t *testing.T) {
	root := newProject(t)

	code, out, errOut := runCLI(t, "score", "--no-energy", root)
	require.Equal(t, exitOK, code, errOut)

	assert.Contains(t, out, "overall\t")
	assert.Contains(t, out, "tier\t")
	assert.Contains(t, out, "profile\tweb-services\n")
	assert.Contains(t, out, "findings\tnone\n")
	assert.Contains(t, out, "Estimated categories")
	assert.Contains(t, out, "energy: not_configured")
}

func TestScore_JSONReport(t *testing.T) {
	root := newProject(t)

	code, out, errOut := runCLI(t, "score", "--no-energy", "--format", "json", root)
	require.Equal(t, exitOK, code, errOut)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "crabscore", doc["tool"])
	score := doc["score"].(map[string]any)
	assert.Equal(t, "web-services", score["profile"])
}

func TestScore_ReportFile(t *testing.T) {
	root := newProject(t)
	path := filepath.Join(t.TempDir(), "report.html")

	code, out, errOut := runCLI(t, "score", "--no-energy", "-f", "html", "-o", path, root)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "html report written to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<title>CrabScore Report</title>")
}

func TestScore_MetricsFile(t *testing.T) {
	root := newProject(t)
	path := filepath.Join(t.TempDir(), "crabscore.prom")

	code, _, errOut := runCLI(t, "score", "--no-energy", "--metrics-file", path, root)
	require.Equal(t, exitOK, code, errOut)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "crabscore_runs_total")
}

func TestScore_ExitCodes(t *testing.T) {
	root := newProject(t)

	tests := []struct {
		name    string
		args    []string
		code    int
		message string
	}{
		{"gate fails", []string{"score", "--no-energy", "--min-score", "99.9", root}, exitGate, "minimum score not reached"},
		{"unknown profile", []string{"score", "--no-energy", "--profile", "aerospace", root}, exitConfig, "aerospace"},
		{"bad format", []string{"score", "--format", "pdf", root}, exitConfig, "unknown report format"},
		{"missing root", []string{"score", "--no-energy", filepath.Join(root, "nope")}, exitConfig, "config root"},
		{"bad min score", []string{"score", "--no-energy", "--min-score", "150", root}, exitConfig, "min_score"},
		{"bad log level", []string{"--log-level", "loud", "version"}, exitConfig, "unknown log level"},
		{"unknown command", []string{"frobnicate"}, exitFailure, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, tt.args...)
			assert.Equal(t, tt.code, code, errOut)
			assert.Contains(t, errOut, tt.message)
		})
	}
}

func TestScore_ProjectConfigFile(t *testing.T) {
	root := newProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, config.DefaultFileName),
		[]byte("profile: financial\nenergy:\n  disabled: true\n"), 0o644))

	code, out, errOut := runCLI(t, "score", root)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "profile\tfinancial\n")

	// Flags override the file.
	code, out, errOut = runCLI(t, "score", "--profile", "gaming", root)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "profile\tgaming\n")
}

func TestProfiles(t *testing.T) {
	code, out, _ := runCLI(t, "profiles")
	require.Equal(t, exitOK, code)

	assert.Contains(t, out, "web_services__default_\tperformance=0.35 energy=0.25 cost=0.25 safety=0.15\n")
	for _, name := range []string{"financial", "gaming", "enterprise", "pioneer", "certified"} {
		assert.Contains(t, out, name)
	}
}

func TestProfiles_JSON(t *testing.T) {
	code, out, _ := runCLI(t, "profiles", "--json")
	require.Equal(t, exitOK, code)

	var doc struct {
		Default  string           `json:"default"`
		Profiles []map[string]any `json:"profiles"`
		Tiers    []map[string]any `json:"tiers"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "web-services", doc.Default)
	assert.GreaterOrEqual(t, len(doc.Profiles), 5)
	assert.Equal(t, "Pioneer", doc.Tiers[0]["name"])
}

func TestConfig(t *testing.T) {
	root := newProject(t)

	code, out, errOut := runCLI(t, "config", "--profile", "iot-embedded", "--exclude", "benches/**", root)
	require.Equal(t, exitOK, code, errOut)
	assert.True(t, strings.HasPrefix(out, "# source: defaults\n"))
	assert.Contains(t, out, "profile: iot-embedded")
	assert.Contains(t, out, "benches/**")

	code, _, errOut = runCLI(t, "config", "--profile", "nope", root)
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, errOut, "nope")
}

func TestRunFlags_Resolve(t *testing.T) {
	root := newProject(t)

	var f runFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.register(fs)
	require.NoError(t, fs.Parse([]string{
		"--min-score", "70",
		"--exclude", "benches/**",
		"--timeout", "5s",
		"--cache-dir", "/tmp/cs",
		"--no-energy",
		"--bench", "target/release/bench",
	}))

	cfg, source, err := f.resolve(root, fs)
	require.NoError(t, err)
	assert.Empty(t, source)
	assert.Equal(t, 70.0, cfg.MinScore)
	assert.Equal(t, append(config.Default().Exclude, "benches/**"), cfg.Exclude)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "/tmp/cs", cfg.Cache.Dir)
	assert.True(t, cfg.Energy.Disabled)
	assert.Equal(t, "target/release/bench", cfg.Performance.Binary)

	// Unset flags leave defaults alone.
	assert.Equal(t, config.Default().Workers, cfg.Workers)
	assert.Empty(t, cfg.Profile)
}

func TestRunFlags_NoCacheWins(t *testing.T) {
	var f runFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.register(fs)
	require.NoError(t, fs.Parse([]string{"--cache-dir", "/tmp/cs", "--no-cache"}))

	cfg, _, err := f.resolve(t.TempDir(), fs)
	require.NoError(t, err)
	assert.False(t, cfg.Cache.Enabled)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain", errors.New("boom"), exitFailure},
		{"gate", fmt.Errorf("%w: 10 < 20", errGateFailed), exitGate},
		{"config", config.NewConfigError(config.ErrUnknownProfile, "profile", "x"), exitConfig},
		{"explicit", &exitError{code: 7, err: errors.New("x")}, 7},
		{"cancelled", context.Canceled, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestScore_Cancelled(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	t.Setenv("OTEL_METRICS_EXPORTER", "none")
	root := newProject(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"score", "--no-energy", root}, &stdout, &stderr)
	assert.Equal(t, exitFailure, code)
	assert.NotContains(t, stdout.String(), "overall")
}
