// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzer scans Rust sources for safety findings and gathers the
// project complexity the fallback estimators need.
//
// The analyzer is a syntactic pattern matcher over tree-sitter trees. It
// performs no data-flow or type analysis.
package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/crabscore/services/score/ast"
	"github.com/AleutianAI/crabscore/services/score/cache"
	"github.com/AleutianAI/crabscore/services/score/provider"
	"github.com/AleutianAI/crabscore/services/score/safety"
	"github.com/AleutianAI/crabscore/services/score/walker"
)

// Result is the outcome of a project analysis.
type Result = provider.StaticAnalysis

// FindingCache stores per-file results between runs.
//
// *cache.FindingCache implements it.
type FindingCache interface {
	Get(ctx context.Context, k cache.Key) (*cache.Entry, bool)
	Put(ctx context.Context, k cache.Key, e *cache.Entry) error
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithWorkers sets the parse pool size. Non-positive values select
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithCache enables the per-file result cache.
func WithCache(c FindingCache) Option {
	return func(a *Analyzer) {
		a.cache = c
	}
}

// WithParser replaces the Rust parser.
func WithParser(p ast.Parser) Option {
	return func(a *Analyzer) {
		if p != nil {
			a.parser = p
		}
	}
}

// Analyzer runs the detector set over every source file of a project.
//
// Description:
//
//	Files are parsed and scanned by a bounded worker pool. Each worker
//	owns the per-file result it produces; the results are combined in a
//	single reduction after all workers finish, so the outcome does not
//	depend on scheduling. A file that cannot be read or parsed yields one
//	parse_error finding and contributes only its line count.
//
// Thread Safety:
//
//	An Analyzer is immutable after construction and safe for concurrent use.
type Analyzer struct {
	parser  ast.Parser
	workers int
	cache   FindingCache
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		parser:  ast.NewRustParser(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze returns the safety metrics of the project at root using a
// default Analyzer.
func Analyze(ctx context.Context, root string, excludes []string) (*safety.Metrics, error) {
	res, err := New().AnalyzeProject(ctx, root, excludes)
	if err != nil {
		return nil, err
	}
	return res.Safety, nil
}

// AnalyzeProject analyzes the project at root using a default Analyzer.
func AnalyzeProject(ctx context.Context, root string, excludes []string) (*Result, error) {
	return New().AnalyzeProject(ctx, root, excludes)
}

// fileResult is one worker's output for one file.
type fileResult struct {
	metrics *safety.Metrics
	counts  fileCounts
}

// AnalyzeProject walks root, scans every .rs file and returns finalized
// safety metrics together with the project complexity.
//
// Inputs:
//   - ctx: Cancels the walk, pending parses and the scan.
//   - root: Project directory.
//   - excludes: Glob patterns relative to root. Nil selects the defaults.
//
// Outputs:
//   - *Result: Safety metrics and complexity. Nil on error.
//   - error: *config.ConfigError if root is unreadable, ctx.Err() on
//     cancellation. Per-file failures never surface here.
func (a *Analyzer) AnalyzeProject(ctx context.Context, root string, excludes []string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Analyzer.AnalyzeProject",
		trace.WithAttributes(attribute.String("analyzer.root", root)))
	defer span.End()
	start := time.Now()

	if excludes == nil {
		excludes = walker.DefaultExcludes
	}
	files, err := walker.Walk(ctx, root, excludes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r, err := a.analyzeFile(gctx, f)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parts := make([]*safety.Metrics, len(results))
	var counts fileCounts
	for i, r := range results {
		parts[i] = r.metrics
		counts.Functions += r.counts.Functions
		counts.TestFunctions += r.counts.TestFunctions
		counts.Modules += r.counts.Modules
		counts.DocLines += r.counts.DocLines
	}
	metrics := safety.Reduce(parts...)
	metrics.CatalogVersion = CatalogVersion
	metrics.Finalize()
	lines := metrics.ScannedLines

	deps, err := CountDependencies(root)
	if err != nil {
		slog.Warn("cannot read dependency manifest",
			slog.String("root", root),
			slog.String("error", err.Error()))
	}

	res := &Result{
		Safety: metrics,
		Complexity: provider.NewProjectComplexity(
			len(files), lines, counts.Functions, counts.TestFunctions,
			counts.Modules, counts.DocLines, deps),
	}

	recordAnalysis(ctx, len(files), metrics.ParseFailures, time.Since(start))
	span.SetAttributes(
		attribute.Int("analyzer.files", len(files)),
		attribute.Int("analyzer.findings", len(metrics.Findings)),
		attribute.Float64("analyzer.score", metrics.Score),
	)
	slog.Debug("analysis complete",
		slog.String("root", root),
		slog.Int("files", len(files)),
		slog.Int("lines", lines),
		slog.Int("findings", len(metrics.Findings)),
		slog.Int("parse_failures", metrics.ParseFailures))

	return res, nil
}

// analyzeFile produces the result for one file. It only returns an error
// when ctx is cancelled.
func (a *Analyzer) analyzeFile(ctx context.Context, f walker.SourceFile) (fileResult, error) {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		slog.Warn("cannot read source file",
			slog.String("file", f.Path),
			slog.String("error", err.Error()))
		return failedFile(f.Path, 0, ast.NewParseError(f.Path, 0, 0, err.Error(), ast.ErrUnreadable)), nil
	}
	lines := countLines(content)

	sum := sha256.Sum256(content)
	key := cache.Key{
		CatalogVersion: CatalogVersion,
		Path:           f.Path,
		SHA256:         hex.EncodeToString(sum[:]),
		ModTime:        f.ModTime.UnixNano(),
	}
	if a.cache != nil {
		if e, ok := a.cache.Get(ctx, key); ok {
			return fromEntry(e), nil
		}
	}

	res, err := a.scanContent(ctx, f.Path, content, lines)
	if err != nil {
		return fileResult{}, err
	}

	if a.cache != nil {
		if err := a.cache.Put(ctx, key, toEntry(res)); err != nil && ctx.Err() == nil {
			slog.Debug("cannot cache file result",
				slog.String("file", f.Path),
				slog.String("error", err.Error()))
		}
	}
	return res, nil
}

func (a *Analyzer) scanContent(ctx context.Context, path string, content []byte, lines int) (fileResult, error) {
	tree, err := a.parser.Parse(ctx, content, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fileResult{}, ctxErr
		}
		var parseErr *ast.ParseError
		if !errors.As(err, &parseErr) {
			parseErr = ast.NewParseError(path, 0, 0, err.Error(), ast.ErrParseFailed)
		}
		slog.Debug("excluding unparsable file",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return failedFile(path, lines, parseErr), nil
	}
	defer tree.Close()

	findings, counts, err := scanTree(ctx, path, tree.Root())
	if err != nil {
		return fileResult{}, err
	}
	return fileResult{
		metrics: safety.ForFile(lines, false, CatalogVersion, findings),
		counts:  counts,
	}, nil
}

// parseRules names the parse_error rule for each failure cause.
var parseRules = []struct {
	cause error
	rule  string
}{
	{ast.ErrSyntax, "syntax"},
	{ast.ErrInvalidContent, "invalid_content"},
	{ast.ErrFileTooLarge, "too_large"},
	{ast.ErrUnreadable, "unreadable"},
}

// failedFile is the result for a file that could not be parsed: one
// parse_error finding and the line count, nothing else.
func failedFile(path string, lines int, perr *ast.ParseError) fileResult {
	rule := "parse_failed"
	for _, r := range parseRules {
		if errors.Is(perr, r.cause) {
			rule = r.rule
			break
		}
	}

	line := max(perr.Line, 1)
	finding := safety.Finding{
		Kind:     safety.KindParseError,
		File:     path,
		Span:     ast.Span{StartLine: line, StartCol: perr.Column, EndLine: line, EndCol: perr.Column},
		Severity: safety.SeverityLow,
		Rule:     rule,
		Message:  fmt.Sprintf("file excluded from analysis: %s", perr.Message),
	}
	return fileResult{metrics: safety.ForFile(lines, true, CatalogVersion, []safety.Finding{finding})}
}

func toEntry(r fileResult) *cache.Entry {
	return &cache.Entry{
		Lines:         r.metrics.ScannedLines,
		ParseFailed:   r.metrics.ParseFailures > 0,
		Findings:      r.metrics.Findings,
		Functions:     r.counts.Functions,
		TestFunctions: r.counts.TestFunctions,
		Modules:       r.counts.Modules,
		DocLines:      r.counts.DocLines,
	}
}

func fromEntry(e *cache.Entry) fileResult {
	return fileResult{
		metrics: safety.ForFile(e.Lines, e.ParseFailed, CatalogVersion, e.Findings),
		counts: fileCounts{
			Functions:     e.Functions,
			TestFunctions: e.TestFunctions,
			Modules:       e.Modules,
			DocLines:      e.DocLines,
		},
	}
}
