// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rapl reads package energy from the Linux powercap RAPL interface.
//
// The counter at energy_uj is a monotonically increasing microjoule count
// that wraps at max_energy_range_uj. Average power is the counter delta
// over a sampling window.
package rapl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/crabscore/services/score/provider"
)

// ProviderName identifies the energy provider in logs and Degraded entries.
const ProviderName = "rapl"

// DefaultPath is the package-0 counter on Intel hosts.
const DefaultPath = "/sys/class/powercap/intel-rapl:0/energy_uj"

// DefaultWindow is the sampling window used when none is configured.
const DefaultWindow = time.Second

// Config locates the counter and sets the sampling window.
type Config struct {
	// Path is the energy_uj file. Empty selects DefaultPath.
	Path string

	// Window is the time between the two counter reads.
	Window time.Duration

	// CarbonIntensity (gCO2/kWh) and RenewableFraction (0-1) describe the
	// host's energy source. They are reported as configured.
	CarbonIntensity   float64
	RenewableFraction float64
}

// Provider implements provider.Provider for the energy category.
//
// Thread Safety: Safe for concurrent use.
type Provider struct {
	cfg Config
}

// New creates a RAPL provider, filling defaults.
func New(cfg Config) *Provider {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Name() string                { return ProviderName }
func (p *Provider) Category() provider.Category { return provider.CategoryEnergy }

// Collect samples the counter twice, Window apart.
//
// Outputs:
//   - provider.Sample: *provider.EnergyMetrics with Source "rapl".
//   - error: provider.ErrUnavailable when the counter cannot be read,
//     ctx.Err() when cancelled during the window.
func (p *Provider) Collect(ctx context.Context, _ string) (provider.Sample, error) {
	first, err := readCounter(p.cfg.Path)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	timer := time.NewTimer(p.cfg.Window)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	second, err := readCounter(p.cfg.Path)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	delta := Delta(first, second, readMaxRange(p.cfg.Path))
	joules := float64(delta) / 1e6
	watts := 0.0
	if s := elapsed.Seconds(); s > 0 {
		watts = joules / s
	}

	m := &provider.EnergyMetrics{
		Source:            ProviderName,
		AverageWatts:      watts,
		PeakWatts:         watts,
		Joules:            joules,
		CarbonIntensity:   p.cfg.CarbonIntensity,
		RenewableFraction: p.cfg.RenewableFraction,
	}
	m.Score = provider.EnergyScore(m)

	slog.Debug("rapl sample",
		slog.String("path", p.cfg.Path),
		slog.Duration("window", elapsed),
		slog.Float64("watts", watts))
	return m, nil
}

// Delta returns the microjoules consumed between two counter reads,
// accounting for one wraparound at maxRange. A backwards counter with no
// known range yields 0.
func Delta(first, second, maxRange uint64) uint64 {
	if second >= first {
		return second - first
	}
	if maxRange == 0 || first > maxRange {
		return 0
	}
	return maxRange - first + second
}

func readCounter(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", provider.ErrUnavailable, path, err)
	}
	return v, nil
}

// readMaxRange reads max_energy_range_uj next to the counter, 0 if absent.
func readMaxRange(counterPath string) uint64 {
	v, err := readCounter(filepath.Join(filepath.Dir(counterPath), "max_energy_range_uj"))
	if err != nil {
		return 0
	}
	return v
}
