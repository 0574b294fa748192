// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs one complete scoring pass over a Rust project.
//
// A run validates the configuration and resolves the profile before any
// work starts, analyzes the source tree, collects the remaining metric
// categories concurrently, substitutes estimates for failed providers and
// hands everything to the scoring engine. A cancelled run returns ctx.Err()
// and never a partial result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/crabscore/services/score/analyzer"
	"github.com/AleutianAI/crabscore/services/score/ast"
	"github.com/AleutianAI/crabscore/services/score/cache"
	"github.com/AleutianAI/crabscore/services/score/config"
	"github.com/AleutianAI/crabscore/services/score/engine"
	"github.com/AleutianAI/crabscore/services/score/profile"
	"github.com/AleutianAI/crabscore/services/score/provider"
	"github.com/AleutianAI/crabscore/services/score/provider/bench"
	"github.com/AleutianAI/crabscore/services/score/provider/costtable"
	"github.com/AleutianAI/crabscore/services/score/provider/rapl"
)

var tracer = otel.Tracer("crabscore.pipeline")

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crabscore_runs_total",
		Help: "Scoring runs by outcome",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crabscore_run_duration_seconds",
		Help:    "Wall time of complete scoring runs",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	lastScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crabscore_overall_score",
		Help: "Overall score of the most recent successful run",
	}, []string{"profile"})
)

// Run outcomes used as metric labels.
const (
	outcomeScored    = "scored"
	outcomeGateFail  = "gate_failed"
	outcomeConfig    = "config_error"
	outcomeCancelled = "cancelled"
	outcomeError     = "error"
)

// Gate is the minimum-score check of a run.
type Gate struct {
	// Enabled is false when MinScore is 0.
	Enabled  bool    `json:"enabled"`
	MinScore float64 `json:"min_score"`
	Passed   bool    `json:"passed"`
}

// Result is the outcome of one run.
//
// Breakdown is deterministic for identical inputs. RunID, StartedAt and
// Duration identify the run and are kept out of the breakdown.
type Result struct {
	RunID     string        `json:"run_id"`
	Root      string        `json:"root"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`

	Breakdown *engine.Breakdown                     `json:"breakdown"`
	Static    *provider.StaticAnalysis              `json:"static"`
	Samples   map[provider.Category]provider.Sample `json:"samples"`
	Gate      Gate                                  `json:"gate"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithProviders replaces the configured performance, energy and cost
// providers. The static analysis provider is always added by the Runner.
func WithProviders(ps ...provider.Provider) Option {
	return func(r *Runner) {
		r.providers = append([]provider.Provider(nil), ps...)
		r.providersSet = true
	}
}

// WithCache supplies an open finding cache. The Runner does not close it.
func WithCache(c analyzer.FindingCache) Option {
	return func(r *Runner) {
		r.cache = c
	}
}

// WithRegistry supplies the profile registry instead of loading one from
// the run configuration.
func WithRegistry(reg *profile.Registry) Option {
	return func(r *Runner) {
		r.registry = reg
	}
}

// WithParser replaces the Rust parser used by the analyzer.
func WithParser(p ast.Parser) Option {
	return func(r *Runner) {
		r.parser = p
	}
}

// Runner executes scoring runs. It holds no per-run state.
//
// Thread Safety: Safe for concurrent use if its providers and cache are.
type Runner struct {
	providers    []provider.Provider
	providersSet bool
	cache        analyzer.FindingCache
	registry     *profile.Registry
	parser       ast.Parser
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run scores the project at root.
//
// Description:
//
//	Configuration problems (invalid values, unknown profile, unreadable
//	root, bad cost table) are detected before any provider is invoked.
//	Provider failures degrade the affected category to its estimate. The
//	static analysis provider is required and has no per-provider timeout.
//
// Inputs:
//
//	ctx - Cancels parsing and provider calls.
//	root - Project directory.
//	cfg - Run configuration. Validated here.
//
// Outputs:
//
//	*Result - The scored run. Nil on any error.
//	error - *config.ConfigError, *engine.InvariantError, a required
//	provider failure or ctx.Err().
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) Run(ctx context.Context, root string, cfg config.RunConfig) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Run",
		trace.WithAttributes(
			attribute.String("pipeline.root", root),
			attribute.String("pipeline.profile", cfg.Profile),
		))
	defer span.End()
	start := time.Now()

	res, err := r.run(ctx, root, cfg, start)
	if err != nil {
		outcome := outcomeError
		switch {
		case ctx.Err() != nil:
			outcome = outcomeCancelled
			err = ctx.Err()
		case config.IsConfigError(err):
			outcome = outcomeConfig
		}
		runsTotal.WithLabelValues(outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	outcome := outcomeScored
	if !res.Gate.Passed {
		outcome = outcomeGateFail
	}
	runsTotal.WithLabelValues(outcome).Inc()
	runDuration.Observe(res.Duration.Seconds())
	lastScore.WithLabelValues(res.Breakdown.Profile).Set(res.Breakdown.Overall)

	span.SetAttributes(
		attribute.Float64("pipeline.overall", res.Breakdown.Overall),
		attribute.String("pipeline.tier", res.Breakdown.Tier),
		attribute.Bool("pipeline.degraded", res.Breakdown.IsDegraded()),
	)
	slog.Info("score computed",
		slog.String("run_id", res.RunID),
		slog.String("root", root),
		slog.String("profile", res.Breakdown.Profile),
		slog.Float64("overall", res.Breakdown.Overall),
		slog.String("tier", res.Breakdown.Tier),
		slog.Int("degraded", len(res.Breakdown.Degraded)),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func (r *Runner) run(ctx context.Context, root string, cfg config.RunConfig, start time.Time) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg, err := r.loadRegistry(cfg)
	if err != nil {
		return nil, err
	}
	p, err := reg.Get(cfg.Profile)
	if err != nil {
		return nil, err
	}

	if err := checkRoot(root); err != nil {
		return nil, err
	}

	extra := r.providers
	if !r.providersSet {
		extra, err = ConfiguredProviders(cfg)
		if err != nil {
			return nil, err
		}
	}

	fc := r.cache
	if fc == nil && cfg.Cache.Enabled {
		opened, err := cache.Open(cache.DefaultStoreConfig(cfg.Cache.Dir))
		if err != nil {
			return nil, config.NewConfigError(config.ErrInvalidConfig, "cache.dir", "open %s: %v", cfg.Cache.Dir, err)
		}
		defer func() {
			if cerr := opened.Close(); cerr != nil {
				slog.Warn("closing finding cache", slog.String("error", cerr.Error()))
			}
		}()
		fc = opened
	}

	opts := []analyzer.Option{analyzer.WithWorkers(cfg.Workers)}
	if fc != nil {
		opts = append(opts, analyzer.WithCache(fc))
	}
	if r.parser != nil {
		opts = append(opts, analyzer.WithParser(r.parser))
	}
	static := analyzer.NewProvider(analyzer.New(opts...), cfg.Exclude)

	collector, err := provider.NewCollector(append([]provider.Provider{static}, extra...),
		provider.WithTimeout(cfg.ProviderTimeout),
		provider.WithRequired(provider.CategorySafety))
	if err != nil {
		return nil, err
	}

	col, err := collector.Collect(ctx, root)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, cfgErr
		}
		return nil, fmt.Errorf("collecting metrics: %w", err)
	}

	sa := col.Static()
	if sa == nil {
		return nil, &engine.InvariantError{Field: string(provider.CategorySafety), Reason: "no static analysis result"}
	}
	col.Fill(sa.Complexity)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, err := engine.FromCollection(col, p.Name)
	if err != nil {
		return nil, err
	}
	b, err := engine.New(reg).Score(in)
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:     uuid.NewString(),
		Root:      root,
		StartedAt: start.UTC(),
		Duration:  time.Since(start),
		Breakdown: b,
		Static:    sa,
		Samples:   col.Samples,
		Gate:      NewGate(cfg.MinScore, b.Overall),
	}, nil
}

// NewGate evaluates overall against minScore. A zero threshold disables
// the gate and always passes.
func NewGate(minScore, overall float64) Gate {
	return Gate{
		Enabled:  minScore > 0,
		MinScore: minScore,
		Passed:   overall >= minScore,
	}
}

func (r *Runner) loadRegistry(cfg config.RunConfig) (*profile.Registry, error) {
	if r.registry != nil {
		return r.registry, nil
	}
	if cfg.ProfilesFile != "" {
		return profile.LoadFile(cfg.ProfilesFile)
	}
	return profile.LoadBuiltin()
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return config.NewConfigError(config.ErrUnreadableRoot, "root", "%v", err)
	}
	if !info.IsDir() {
		return config.NewConfigError(config.ErrUnreadableRoot, "root", "%s is not a directory", root)
	}
	return nil
}

// ConfiguredProviders builds the performance, energy and cost providers
// enabled by cfg. A category without a provider is scored from its estimate.
//
// Outputs:
//   - []provider.Provider: Enabled providers.
//   - error: *config.ConfigError when the cost table cannot be loaded.
func ConfiguredProviders(cfg config.RunConfig) ([]provider.Provider, error) {
	var ps []provider.Provider

	if cfg.Performance.Binary != "" {
		ps = append(ps, bench.New(bench.Config{
			Binary:     cfg.Performance.Binary,
			Args:       cfg.Performance.Args,
			Warmup:     cfg.Performance.Warmup,
			Iterations: cfg.Performance.Iterations,
		}))
	}

	if !cfg.Energy.Disabled {
		ps = append(ps, rapl.New(rapl.Config{
			Path:              cfg.Energy.RAPLPath,
			Window:            cfg.Energy.Window,
			CarbonIntensity:   cfg.Energy.CarbonIntensity,
			RenewableFraction: cfg.Energy.RenewableFraction,
		}))
	}

	if cfg.Cost.Table != "" {
		table, err := costtable.Load(cfg.Cost.Table)
		if err != nil {
			return nil, config.NewConfigError(config.ErrInvalidConfig, "cost.table", "%v", err)
		}
		ps = append(ps, costtable.New(table))
	}

	return ps, nil
}
