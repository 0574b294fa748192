// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rapl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/crabscore/services/score/provider"
)

func TestDelta(t *testing.T) {
	tests := []struct {
		name          string
		first, second uint64
		maxRange      uint64
		want          uint64
	}{
		{"increasing", 100, 350, 0, 250},
		{"unchanged", 42, 42, 1000, 0},
		{"wraparound", 900, 100, 1000, 200},
		{"backwards without range", 900, 100, 0, 0},
		{"first beyond range", 2000, 100, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Delta(tt.first, tt.second, tt.maxRange))
		})
	}
}

func TestProvider_Collect(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "energy_uj")
	require.NoError(t, os.WriteFile(counter, []byte("1000000\n"), 0o644))

	p := New(Config{Path: counter, Window: 20 * time.Millisecond, RenewableFraction: 0.5})
	assert.Equal(t, ProviderName, p.Name())
	assert.Equal(t, provider.CategoryEnergy, p.Category())

	// A constant counter means no measurable draw.
	s, err := p.Collect(context.Background(), dir)
	require.NoError(t, err)

	m, ok := s.(*provider.EnergyMetrics)
	require.True(t, ok)
	assert.Equal(t, ProviderName, m.Source)
	assert.Zero(t, m.Joules)
	assert.Zero(t, m.AverageWatts)
	assert.Equal(t, 0.5, m.RenewableFraction)
	assert.True(t, provider.ValidScore(m.SubScore()))
	assert.InDelta(t, provider.EnergyScore(m), m.Score, 1e-9)
}

func TestProvider_Unavailable(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "energy_uj")
	require.NoError(t, os.WriteFile(garbage, []byte("not a number"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{"missing counter", filepath.Join(dir, "missing", "energy_uj")},
		{"unparsable counter", garbage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Path: tt.path, Window: time.Millisecond}).Collect(context.Background(), dir)
			assert.ErrorIs(t, err, provider.ErrUnavailable)
		})
	}
}

func TestProvider_Cancelled(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "energy_uj")
	require.NoError(t, os.WriteFile(counter, []byte("5"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{Path: counter, Window: time.Hour}).Collect(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{})
	assert.Equal(t, DefaultPath, p.cfg.Path)
	assert.Equal(t, DefaultWindow, p.cfg.Window)
}

func TestReadMaxRange(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "energy_uj")
	assert.Zero(t, readMaxRange(counter))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "max_energy_range_uj"), []byte("262143328850\n"), 0o644))
	assert.Equal(t, uint64(262143328850), readMaxRange(counter))
}
