// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/crabscore/services/score/cache"
	"github.com/AleutianAI/crabscore/services/score/config"
	"github.com/AleutianAI/crabscore/services/score/engine"
	"github.com/AleutianAI/crabscore/services/score/provider"
	"github.com/AleutianAI/crabscore/services/score/safety"
)

// nineLineMain has one function, no findings and no doc comments.
const nineLineMain = `fn main() {
    let values = vec![1, 2, 3];
    let mut total = 0;
    for v in &values {
        total += v;
    }
    let label = "total";
    println!("{}: {}", label, total);
}
`

const riskyMain = `fn main() {
    let p = std::ptr::null::<u8>();
    unsafe { let _ = *p; }
    unsafe { let _ = *p; }
    unsafe { let _ = *p; }
    let a: Option<u8> = None;
    let _ = a.unwrap();
    let _ = a.unwrap();
    let _ = a.unwrap();
}
`

type stubProvider struct {
	name   string
	cat    provider.Category
	sample provider.Sample
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (s *stubProvider) Name() string                { return s.name }
func (s *stubProvider) Category() provider.Category { return s.cat }

func (s *stubProvider) Collect(ctx context.Context, _ string) (provider.Sample, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.sample, s.err
}

func unavailable(cat provider.Category) *stubProvider {
	return &stubProvider{name: "stub-" + string(cat), cat: cat, err: provider.ErrUnavailable}
}

func perf(score float64) *stubProvider {
	return &stubProvider{name: "stub-perf", cat: provider.CategoryPerformance, sample: &provider.PerformanceMetrics{Score: score, Source: "stub"}}
}

func energy(score float64) *stubProvider {
	return &stubProvider{name: "stub-energy", cat: provider.CategoryEnergy, sample: &provider.EnergyMetrics{Score: score, Source: "stub"}}
}

func cost(score float64) *stubProvider {
	return &stubProvider{name: "stub-cost", cat: provider.CategoryCost, sample: &provider.CostMetrics{Score: score, Source: "stub"}}
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func testConfig() config.RunConfig {
	cfg := config.Default()
	cfg.ProviderTimeout = 2 * time.Second
	cfg.Workers = 2
	return cfg
}

func categories(ds []provider.Degraded) []provider.Category {
	out := make([]provider.Category, len(ds))
	for i, d := range ds {
		out[i] = d.Category
	}
	return out
}

func TestRun_MinimalProjectWithFallbacks(t *testing.T) {
	root := writeProject(t, map[string]string{"src/main.rs": nineLineMain})

	r := NewRunner(WithProviders(
		unavailable(provider.CategoryPerformance),
		unavailable(provider.CategoryEnergy),
		cost(100),
	))
	res, err := r.Run(context.Background(), root, testConfig())
	require.NoError(t, err)

	b := res.Breakdown
	assert.Equal(t, "web-services", b.Profile)
	assert.True(t, b.IsDegraded())
	assert.Equal(t, []provider.Category{provider.CategoryPerformance, provider.CategoryEnergy}, categories(b.Degraded))
	for _, d := range b.Degraded {
		assert.Equal(t, provider.ErrUnavailable.Error(), d.Reason)
	}

	assert.Equal(t, 1, res.Static.Complexity.Files)
	assert.Equal(t, 9, res.Static.Complexity.TotalLines)
	assert.Equal(t, 1, res.Static.Complexity.Functions)
	assert.Equal(t, 0, res.Static.Complexity.Dependencies)
	assert.Empty(t, res.Static.Safety.Findings)

	assert.Equal(t, 100.0, b.SubScores.Cost)
	assert.Equal(t, 100.0, b.SubScores.Safety)
	est := provider.Estimate(provider.CategoryPerformance, res.Static.Complexity)
	assert.InDelta(t, est.SubScore(), b.SubScores.Performance, 1e-9)
	assert.Equal(t, provider.SourceFallback, res.Samples[provider.CategoryPerformance].(*provider.PerformanceMetrics).Source)

	bonuses := b.Entries(engine.AuditBonus)
	require.Len(t, bonuses, 2)
	assert.Equal(t, "Small Project Bonus", bonuses[0].Name)
	assert.Equal(t, "Zero Dependencies", bonuses[1].Name)
	assert.Len(t, b.Entries(engine.AuditFallback), 2)
	assert.Empty(t, b.Entries(engine.AuditPenalty))

	w := b.Weights
	base := w.Performance*b.SubScores.Performance + w.Energy*b.SubScores.Energy + w.Cost*100 + w.Safety*100
	assert.InDelta(t, base, b.Base, 1e-9)
	assert.InDelta(t, base+5, b.Overall, 1e-9)
	assert.Equal(t, "Certified", b.Tier)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, root, res.Root)
	assert.False(t, res.Gate.Enabled)
	assert.True(t, res.Gate.Passed)
}

func TestRun_FindingsLowerSafety(t *testing.T) {
	pad := strings.Repeat("// filler\n", 40)
	clean := writeProject(t, map[string]string{"src/main.rs": nineLineMain + pad})
	risky := writeProject(t, map[string]string{"src/main.rs": riskyMain + pad})

	run := func(root string) *engine.Breakdown {
		r := NewRunner(WithProviders(perf(70), energy(70), cost(70)))
		res, err := r.Run(context.Background(), root, testConfig())
		require.NoError(t, err)
		return res.Breakdown
	}

	cb, rb := run(clean), run(risky)
	assert.Equal(t, 100.0, cb.SubScores.Safety)
	assert.Less(t, rb.SubScores.Safety, cb.SubScores.Safety)
	assert.Greater(t, rb.Penalty, 0.0)
	assert.Less(t, rb.Overall, cb.Overall)
	assert.False(t, rb.IsDegraded())
}

func TestRun_UnknownProfile(t *testing.T) {
	root := writeProject(t, map[string]string{"src/main.rs": nineLineMain})
	stubs := []*stubProvider{perf(80), energy(80), cost(80)}

	cfg := testConfig()
	cfg.Profile = "Nonexistent"

	res, err := NewRunner(WithProviders(stubs[0], stubs[1], stubs[2])).Run(context.Background(), root, cfg)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, config.IsConfigError(err))
	assert.ErrorIs(t, err, config.ErrUnknownProfile)
	for _, s := range stubs {
		assert.Zero(t, s.calls.Load(), s.name)
	}
}

func TestRun_EnergyTimeout(t *testing.T) {
	root := writeProject(t, map[string]string{"src/main.rs": nineLineMain})

	slow := energy(99)
	slow.delay = 10 * time.Second

	cfg := testConfig()
	cfg.ProviderTimeout = 50 * time.Millisecond

	start := time.Now()
	res, err := NewRunner(WithProviders(perf(80), slow, cost(90))).Run(context.Background(), root, cfg)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	b := res.Breakdown
	require.Len(t, b.Degraded, 1)
	assert.Equal(t, provider.CategoryEnergy, b.Degraded[0].Category)
	assert.Equal(t, provider.ErrTimeout.Error(), b.Degraded[0].Reason)
	assert.Equal(t, 80.0, b.SubScores.Performance)
	assert.Equal(t, 90.0, b.SubScores.Cost)
	assert.NotEqual(t, 99.0, b.SubScores.Energy)
	assert.True(t, provider.ValidScore(b.Overall))
}

func TestRun_OutOfContractSampleDegrades(t *testing.T) {
	root := writeProject(t, map[string]string{"src/main.rs": nineLineMain})

	res, err := NewRunner(WithProviders(perf(150), energy(80), cost(80))).Run(context.Background(), root, testConfig())
	require.NoError(t, err)

	require.Len(t, res.Breakdown.Degraded, 1)
	assert.Equal(t, provider.CategoryPerformance, res.Breakdown.Degraded[0].Category)
	assert.Equal(t, provider.ErrOutOfContract.Error(), res.Breakdown.Degraded[0].Reason)
	assert.LessOrEqual(t, res.Breakdown.SubScores.Performance, 100.0)
}

func TestRun_Idempotent(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/main.rs": riskyMain,
		"src/lib.rs":  "/// Adds.\npub fn add(a: u32, b: u32) -> u32 { a / b }\n",
		"Cargo.toml":  "[package]\nname = \"demo\"\n\n[dependencies]\nserde = \"1\"\n",
	})
	r := NewRunner(WithProviders(perf(64.5), unavailable(provider.CategoryEnergy), cost(71.25)))

	var encoded [][]byte
	for i := 0; i < 2; i++ {
		res, err := r.Run(context.Background(), root, testConfig())
		require.NoError(t, err)
		data, err := json.Marshal(res.Breakdown)
		require.NoError(t, err)
		encoded = append(encoded, data)
	}
	assert.Equal(t, string(encoded[0]), string(encoded[1]))
}

func TestRun_Cancelled(t *testing.T) {
	root := writeProject(t, map[string]string{"src/main.rs": nineLineMain})

	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := NewRunner(WithProviders(perf(80), energy(80), cost(80))).Run(ctx, root, testConfig())
		assert.Nil(t, res)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("during collection", func(t *testing.T) {
		slow := cost(80)
		slow.delay = 10 * time.Second

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		res, err := NewRunner(WithProviders(perf(80), energy(80), slow)).Run(ctx, root, testConfig())
		assert.Nil(t, res)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRun_Gate(t *testing.T) {
	root := writeProject(t, map[string]string{"src/main.rs": nineLineMain})

	tests := []struct {
		name    string
		min     float64
		enabled bool
		passed  bool
	}{
		{"disabled", 0, false, true},
		{"passes", 50, true, true},
		{"fails", 99.5, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MinScore = tt.min

			res, err := NewRunner(WithProviders(perf(80), energy(80), cost(80))).Run(context.Background(), root, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, res.Gate.Enabled)
			assert.Equal(t, tt.passed, res.Gate.Passed)
			assert.Equal(t, tt.min, res.Gate.MinScore)
		})
	}
}

func TestNewGate(t *testing.T) {
	assert.Equal(t, Gate{Enabled: true, MinScore: 70, Passed: true}, NewGate(70, 70))
	assert.Equal(t, Gate{Enabled: true, MinScore: 70, Passed: false}, NewGate(70, 69.99))
	assert.Equal(t, Gate{Enabled: false, MinScore: 0, Passed: true}, NewGate(0, 0))
}

func TestRun_ConfigErrors(t *testing.T) {
	root := writeProject(t, map[string]string{"src/main.rs": nineLineMain})

	tests := []struct {
		name   string
		root   string
		mutate func(*config.RunConfig)
		is     error
	}{
		{"negative workers", root, func(c *config.RunConfig) { c.Workers = -1 }, config.ErrInvalidConfig},
		{"gate above 100", root, func(c *config.RunConfig) { c.MinScore = 101 }, config.ErrInvalidThresholds},
		{"missing root", filepath.Join(root, "absent"), func(*config.RunConfig) {}, config.ErrUnreadableRoot},
		{"root is a file", filepath.Join(root, "src", "main.rs"), func(*config.RunConfig) {}, config.ErrUnreadableRoot},
		{"missing profiles file", root, func(c *config.RunConfig) { c.ProfilesFile = filepath.Join(root, "nope.yaml") }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubs := []*stubProvider{perf(80), energy(80), cost(80)}
			cfg := testConfig()
			tt.mutate(&cfg)

			res, err := NewRunner(WithProviders(stubs[0], stubs[1], stubs[2])).Run(context.Background(), tt.root, cfg)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, config.IsConfigError(err), "got %T: %v", err, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			for _, s := range stubs {
				assert.Zero(t, s.calls.Load(), s.name)
			}
		})
	}
}

func TestRun_WithCache(t *testing.T) {
	root := writeProject(t, map[string]string{"src/main.rs": riskyMain})

	fc, err := cache.OpenInMemory()
	require.NoError(t, err)
	defer fc.Close()

	r := NewRunner(WithCache(fc), WithProviders(perf(80), energy(80), cost(80)))

	first, err := r.Run(context.Background(), root, testConfig())
	require.NoError(t, err)
	second, err := r.Run(context.Background(), root, testConfig())
	require.NoError(t, err)

	assert.Equal(t, first.Breakdown, second.Breakdown)
	assert.Equal(t, 3, second.Static.Safety.Count(safety.KindUnsafeBlock))
}

func TestRun_CacheDirFromConfig(t *testing.T) {
	root := writeProject(t, map[string]string{"src/main.rs": nineLineMain})

	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = filepath.Join(t.TempDir(), "cache")

	_, err := NewRunner(WithProviders(perf(80), energy(80), cost(80))).Run(context.Background(), root, cfg)
	require.NoError(t, err)

	entries, err := os.ReadDir(cfg.Cache.Dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestConfiguredProviders(t *testing.T) {
	dir := t.TempDir()
	table := filepath.Join(dir, "cost.yaml")
	require.NoError(t, os.WriteFile(table, []byte("infrastructure:\n  cloud_compute_usd: 10\n"), 0o644))

	t.Run("all enabled", func(t *testing.T) {
		cfg := config.Default()
		cfg.Performance.Binary = "target/release/app"
		cfg.Cost.Table = table

		ps, err := ConfiguredProviders(cfg)
		require.NoError(t, err)

		var cats []provider.Category
		for _, p := range ps {
			cats = append(cats, p.Category())
		}
		assert.Equal(t, []provider.Category{provider.CategoryPerformance, provider.CategoryEnergy, provider.CategoryCost}, cats)
	})

	t.Run("energy disabled, nothing else configured", func(t *testing.T) {
		cfg := config.Default()
		cfg.Energy.Disabled = true

		ps, err := ConfiguredProviders(cfg)
		require.NoError(t, err)
		assert.Empty(t, ps)
	})

	t.Run("bad cost table", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("infrastructure:\n  cloud_compute_usd: -3\n"), 0o644))

		cfg := config.Default()
		cfg.Cost.Table = bad

		_, err := ConfiguredProviders(cfg)
		require.Error(t, err)
		var cfgErr *config.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "cost.table", cfgErr.Field)
	})
}

func TestRun_UnconfiguredCategoriesFallBack(t *testing.T) {
	root := writeProject(t, map[string]string{"src/main.rs": nineLineMain})

	cfg := testConfig()
	cfg.Energy.Disabled = true

	res, err := NewRunner().Run(context.Background(), root, cfg)
	require.NoError(t, err)

	assert.Equal(t, []provider.Category{provider.CategoryPerformance, provider.CategoryEnergy, provider.CategoryCost},
		categories(res.Breakdown.Degraded))
	for _, d := range res.Breakdown.Degraded {
		assert.Equal(t, provider.ErrNotConfigured.Error(), d.Reason)
	}
}
