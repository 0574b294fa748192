// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety defines safety findings and their order-independent reduction.
package safety

import (
	"cmp"
	"fmt"

	"github.com/AleutianAI/crabscore/services/score/ast"
)

// Kind classifies a finding.
type Kind string

const (
	// KindUnsafeBlock is a region that opts out of memory-safety checks.
	KindUnsafeBlock Kind = "unsafe_block"

	// KindFallibleUnwrap is a call that aborts when a wrapped value is absent.
	KindFallibleUnwrap Kind = "fallible_unwrap"

	// KindPanicPoint is an explicit or implicit runtime abort.
	KindPanicPoint Kind = "panic_point"

	// KindVulnerability is a match from the vulnerability pattern catalog.
	KindVulnerability Kind = "vulnerability_pattern"

	// KindParseError marks a file excluded from syntax-derived counts.
	KindParseError Kind = "parse_error"
)

// Kinds lists every kind in reporting order.
var Kinds = []Kind{KindUnsafeBlock, KindFallibleUnwrap, KindPanicPoint, KindVulnerability, KindParseError}

// Severity indicates how likely a finding is to matter at runtime.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities: low < medium < high.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Finding is a single detected occurrence of a safety-relevant pattern.
//
// Findings are values. Their identity is (File, Span, Kind, Rule), which is
// stable across runs over unchanged source.
type Finding struct {
	Kind     Kind     `json:"kind"`
	File     string   `json:"file"`
	Span     ast.Span `json:"span"`
	Severity Severity `json:"severity"`

	// Rule names the detector or catalog entry, e.g. "unwrap" or "RS-003".
	Rule string `json:"rule"`

	// Message is a short human-readable description.
	Message string `json:"message"`
}

// Key returns the stable identity of the finding.
func (f Finding) Key() string {
	return fmt.Sprintf("%s:%d:%d-%d:%d:%s:%s",
		f.File, f.Span.StartLine, f.Span.StartCol, f.Span.EndLine, f.Span.EndCol, f.Kind, f.Rule)
}

// Compare is the total order used for every finding list.
//
// Findings are ordered by file, then span, then kind, rule, severity and
// message, so two findings compare equal only if they are identical.
func Compare(a, b Finding) int {
	if c := cmp.Compare(a.File, b.File); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Span.StartLine, b.Span.StartLine); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Span.StartCol, b.Span.StartCol); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Span.EndLine, b.Span.EndLine); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Span.EndCol, b.Span.EndCol); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Rule, b.Rule); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Severity, b.Severity); c != 0 {
		return c
	}
	return cmp.Compare(a.Message, b.Message)
}
