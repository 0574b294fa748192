// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bench measures performance by repeatedly running a project binary.
//
// Each run is one request: latency percentiles come from the wall time of
// the timed runs, throughput is derived from the median and CPU efficiency
// from the child's user and system time.
package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/AleutianAI/crabscore/services/score/provider"
)

// ProviderName identifies the benchmark provider in logs and Degraded entries.
const ProviderName = "bench"

// waitDelay bounds how long a cancelled run may keep its stderr pipe open.
const waitDelay = 2 * time.Second

// maxStderr bounds the stderr excerpt carried in errors.
const maxStderr = 512

// Config selects the binary and the number of runs.
type Config struct {
	// Binary is the executable to run. Relative paths resolve against the
	// project root.
	Binary string

	Args []string

	// Warmup runs are executed and discarded.
	Warmup int

	// Iterations is the number of timed runs. Values below 1 are treated as 1.
	Iterations int
}

// Provider implements provider.Provider for the performance category.
//
// Thread Safety: Safe for concurrent use. Config is copied on construction.
type Provider struct {
	cfg Config
}

// New creates a benchmark provider.
func New(cfg Config) *Provider {
	cfg.Args = append([]string(nil), cfg.Args...)
	if cfg.Iterations < 1 {
		cfg.Iterations = 1
	}
	if cfg.Warmup < 0 {
		cfg.Warmup = 0
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Name() string                { return ProviderName }
func (p *Provider) Category() provider.Category { return provider.CategoryPerformance }

// Collect runs the binary Warmup+Iterations times from projectPath.
//
// Outputs:
//   - provider.Sample: *provider.PerformanceMetrics with Source "bench".
//   - error: provider.ErrNotConfigured without a binary,
//     provider.ErrUnavailable when it is not executable, the run error when
//     a run fails, ctx.Err() on cancellation.
func (p *Provider) Collect(ctx context.Context, projectPath string) (provider.Sample, error) {
	if p.cfg.Binary == "" {
		return nil, fmt.Errorf("%w: no benchmark binary", provider.ErrNotConfigured)
	}

	bin := p.cfg.Binary
	if !filepath.IsAbs(bin) {
		bin = filepath.Join(projectPath, bin)
	}
	if err := checkExecutable(bin); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", provider.ErrUnavailable, bin, err)
	}

	for i := 0; i < p.cfg.Warmup; i++ {
		if _, err := p.runOnce(ctx, bin, projectPath); err != nil {
			return nil, err
		}
	}

	runs := make([]run, 0, p.cfg.Iterations)
	for i := 0; i < p.cfg.Iterations; i++ {
		r, err := p.runOnce(ctx, bin, projectPath)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}

	m := summarize(runs)
	m.Score = provider.PerformanceScore(m)
	slog.Debug("benchmark complete",
		slog.String("binary", bin),
		slog.Int("iterations", len(runs)),
		slog.Float64("p50_ms", m.LatencyP50Ms),
		slog.Float64("score", m.Score))
	return m, nil
}

type run struct {
	wall time.Duration
	cpu  time.Duration
}

func (p *Provider) runOnce(ctx context.Context, bin, dir string) (run, error) {
	cmd := exec.CommandContext(ctx, bin, p.cfg.Args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	wall := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return run{}, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return run{}, fmt.Errorf("benchmark run failed with exit code %d: %s", exitErr.ExitCode(), excerpt(stderr.Bytes()))
		}
		return run{}, fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}

	r := run{wall: wall}
	if st := cmd.ProcessState; st != nil {
		r.cpu = st.UserTime() + st.SystemTime()
	}
	return r, nil
}

// summarize converts timed runs into performance metrics. ColdStartMs is the
// first timed run; percentiles are taken by index over the sorted latencies.
func summarize(runs []run) *provider.PerformanceMetrics {
	m := &provider.PerformanceMetrics{Source: ProviderName}
	if len(runs) == 0 {
		return m
	}

	latencies := make([]float64, len(runs))
	var wall, cpu time.Duration
	for i, r := range runs {
		latencies[i] = ms(r.wall)
		wall += r.wall
		cpu += r.cpu
	}
	m.ColdStartMs = latencies[0]
	sort.Float64s(latencies)

	m.LatencyP50Ms = Percentile(latencies, 50)
	m.LatencyP95Ms = Percentile(latencies, 95)
	m.LatencyP99Ms = Percentile(latencies, 99)
	if m.LatencyP50Ms > 0 {
		m.ThroughputRPS = 1000 / m.LatencyP50Ms
	}
	if wall > 0 {
		m.CPUEfficiency = math.Max(0, math.Min(1, cpu.Seconds()/wall.Seconds()))
	}
	return m
}

// Percentile returns the p-th percentile of sorted by index: the element at
// floor(p/100 × (n-1)). Empty input yields 0.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	p = math.Max(0, math.Min(100, p))
	idx := int(math.Floor(p / 100 * float64(len(sorted)-1)))
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func excerpt(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxStderr {
		b = b[:maxStderr]
	}
	return string(b)
}
