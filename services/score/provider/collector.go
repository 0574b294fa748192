// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/crabscore/services/score/config"
)

var tracer = otel.Tracer("crabscore.provider")

var (
	// providerDuration tracks provider collection latency
	providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crabscore_provider_duration_seconds",
		Help:    "Provider collection duration by category",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"category"})

	// providerFailures counts categories that fell back to an estimate
	providerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crabscore_provider_failures_total",
		Help: "Total provider failures by category and reason",
	}, []string{"category", "reason"})
)

// Degraded records a category whose provider failed and whose sub-score
// was estimated from project complexity.
type Degraded struct {
	Category Category `json:"category"`
	Provider string   `json:"provider,omitempty"`
	Reason   string   `json:"reason"`
}

// Collection is the outcome of one Collect call.
type Collection struct {
	// Samples holds one sample per category that was measured. After Fill
	// every category except possibly safety is present.
	Samples map[Category]Sample

	// Errors holds the failure of every category that was not measured.
	Errors map[Category]*ProviderError
}

// Degraded lists failed categories in Categories order.
func (c *Collection) Degraded() []Degraded {
	out := make([]Degraded, 0, len(c.Errors))
	for _, cat := range Categories {
		if pe, ok := c.Errors[cat]; ok {
			out = append(out, Degraded{Category: cat, Provider: pe.Provider, Reason: pe.Reason()})
		}
	}
	return out
}

// Static returns the safety sample, or nil if it is absent.
func (c *Collection) Static() *StaticAnalysis {
	s, _ := c.Samples[CategorySafety].(*StaticAnalysis)
	return s
}

// Fill substitutes the deterministic estimate for every failed category.
//
// Fill must run after Collect returns because the estimates depend on
// the complexity produced by the safety provider.
func (c *Collection) Fill(complexity ProjectComplexity) {
	for cat := range c.Errors {
		if est := Estimate(cat, complexity); est != nil {
			c.Samples[cat] = est
		}
	}
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithTimeout sets the per-provider deadline. Non-positive values are ignored.
func WithTimeout(d time.Duration) CollectorOption {
	return func(c *Collector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRequired marks categories whose failure aborts collection. Required
// providers run under the caller's context without a per-provider deadline.
func WithRequired(cats ...Category) CollectorOption {
	return func(c *Collector) {
		for _, cat := range cats {
			c.required[cat] = true
		}
	}
}

// Collector runs providers concurrently.
//
// Description:
//
//	Each provider runs in its own goroutine under its own deadline. The
//	collector only uses the Provider interface; it never inspects the
//	concrete sample type beyond its category and sub-score.
//
// Thread Safety:
//
//	A Collector is immutable after construction and safe for concurrent use.
type Collector struct {
	providers map[Category]Provider
	timeout   time.Duration
	required  map[Category]bool
}

// NewCollector creates a Collector with at most one provider per category.
//
// Outputs:
//   - *Collector: Ready to use.
//   - error: *config.ConfigError if two providers claim the same category
//     or a provider reports an unknown category.
func NewCollector(providers []Provider, opts ...CollectorOption) (*Collector, error) {
	c := &Collector{
		providers: make(map[Category]Provider, len(providers)),
		timeout:   config.DefaultProviderTimeout,
		required:  map[Category]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, p := range providers {
		cat := p.Category()
		if !slices.Contains(Categories, cat) {
			return nil, config.NewConfigError(config.ErrInvalidConfig, "providers",
				"provider %s reports unknown category %q", p.Name(), cat)
		}
		if existing, ok := c.providers[cat]; ok {
			return nil, config.NewConfigError(config.ErrInvalidConfig, "providers",
				"providers %s and %s both report %s", existing.Name(), p.Name(), cat)
		}
		c.providers[cat] = p
	}
	return c, nil
}

// Collect gathers a sample for every category.
//
// Description:
//
//	Categories without a provider fail with ErrNotConfigured. A provider
//	that errors, times out, returns a sample for another category or a
//	sub-score outside [0,100] fails with a *ProviderError. Failures of
//	optional categories are recorded in Collection.Errors; a failure of a
//	required category cancels the remaining providers and is returned.
//
// Outputs:
//   - *Collection: Measured samples and recorded failures. Nil on error.
//   - error: ctx.Err() on cancellation, or the required category's
//     *ProviderError.
func (c *Collector) Collect(ctx context.Context, projectPath string) (*Collection, error) {
	ctx, span := tracer.Start(ctx, "Collector.Collect",
		trace.WithAttributes(attribute.Int("provider.count", len(c.providers))))
	defer span.End()

	for _, cat := range Categories {
		if _, ok := c.providers[cat]; !ok && c.required[cat] {
			err := &ProviderError{Category: cat, Cause: ErrNotConfigured}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	out := &Collection{
		Samples: make(map[Category]Sample, len(Categories)),
		Errors:  map[Category]*ProviderError{},
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, cat := range Categories {
		p, ok := c.providers[cat]
		if !ok {
			out.Errors[cat] = &ProviderError{Category: cat, Cause: ErrNotConfigured}
			providerFailures.WithLabelValues(string(cat), ErrNotConfigured.Error()).Inc()
			continue
		}

		g.Go(func() error {
			sample, err := c.collectOne(gctx, p, projectPath)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				out.Samples[cat] = sample
				return nil
			}

			var pe *ProviderError
			if !errors.As(err, &pe) {
				return err
			}
			if c.required[cat] {
				return pe
			}
			out.Errors[cat] = pe
			providerFailures.WithLabelValues(string(cat), pe.Reason()).Inc()
			slog.Warn("provider failed, using estimate",
				slog.String("provider", pe.Provider),
				slog.String("category", string(cat)),
				slog.String("reason", pe.Reason()),
				slog.String("error", pe.Error()))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("provider.degraded", len(out.Errors)))
	return out, nil
}

type collectResult struct {
	sample Sample
	err    error
}

// collectOne runs a single provider and classifies its outcome.
//
// The provider runs in its own goroutine so a provider that ignores its
// context still times out. Context errors of the parent are returned
// unwrapped; every other failure is a *ProviderError.
func (c *Collector) collectOne(ctx context.Context, p Provider, projectPath string) (Sample, error) {
	cat := p.Category()
	ctx, span := tracer.Start(ctx, "Provider.Collect",
		trace.WithAttributes(
			attribute.String("provider.name", p.Name()),
			attribute.String("provider.category", string(cat)),
		))
	defer span.End()

	pctx := ctx
	if !c.required[cat] {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan collectResult, 1)
	go func() {
		s, err := p.Collect(pctx, projectPath)
		done <- collectResult{sample: s, err: err}
	}()

	var res collectResult
	select {
	case res = <-done:
	case <-pctx.Done():
		res = collectResult{err: pctx.Err()}
	}
	providerDuration.WithLabelValues(string(cat)).Observe(time.Since(start).Seconds())

	fail := func(cause error) (Sample, error) {
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
		return nil, &ProviderError{Provider: p.Name(), Category: cat, Cause: cause}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) || pctx.Err() != nil {
			return fail(fmt.Errorf("%w after %s: %v", ErrTimeout, c.timeout, res.err))
		}
		return fail(res.err)
	}
	if res.sample == nil {
		return fail(fmt.Errorf("%w: nil sample", ErrOutOfContract))
	}
	if got := res.sample.Category(); got != cat {
		return fail(fmt.Errorf("%w: got %s, want %s", ErrCategoryMismatch, got, cat))
	}
	if score := res.sample.SubScore(); !ValidScore(score) {
		return fail(fmt.Errorf("%w: sub-score %v", ErrOutOfContract, score))
	}

	span.SetAttributes(attribute.Float64("provider.sub_score", res.sample.SubScore()))
	return res.sample, nil
}
