// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"math"
	"slices"
)

// densityKLOC scales weighted findings to a per-thousand-lines density.
const densityKLOC = 1000.0

// halfScoreDensity is the weighted density at which the sub-score is 50.
const halfScoreDensity = 50.0

// Metrics aggregates findings for a set of files.
//
// Description:
//
//	Metrics values form a commutative monoid under Merge with Empty() as
//	identity: counts add, finding lists are merged in Compare order, and
//	the catalog version is the maximum of both sides. The order in which
//	per-file results are merged therefore never affects the outcome.
//	Score is only meaningful after Finalize.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. Merge does not mutate its inputs.
type Metrics struct {
	Counts         map[Kind]int     `json:"counts"`
	BySeverity     map[Severity]int `json:"by_severity"`
	ScannedFiles   int              `json:"scanned_files"`
	ScannedLines   int              `json:"scanned_lines"`
	ParseFailures  int              `json:"parse_failures"`
	Findings       []Finding        `json:"findings"`
	CatalogVersion string           `json:"catalog_version"`

	// Score is the 0-100 safety sub-score, set by Finalize.
	Score float64 `json:"score"`
}

// Empty returns the identity element for Merge.
func Empty() *Metrics {
	return &Metrics{
		Counts:     map[Kind]int{},
		BySeverity: map[Severity]int{},
		Findings:   []Finding{},
	}
}

// ForFile builds per-file metrics from an unordered finding list.
func ForFile(lines int, parseFailed bool, catalogVersion string, findings []Finding) *Metrics {
	m := Empty()
	m.ScannedFiles = 1
	m.ScannedLines = lines
	m.CatalogVersion = catalogVersion
	if parseFailed {
		m.ParseFailures = 1
	}

	m.Findings = append(m.Findings, findings...)
	slices.SortFunc(m.Findings, Compare)
	for _, f := range m.Findings {
		m.Counts[f.Kind]++
		m.BySeverity[f.Severity]++
	}
	return m
}

// Merge combines two metrics without mutating either.
//
// Nil arguments are treated as Empty().
func Merge(a, b *Metrics) *Metrics {
	if a == nil {
		a = Empty()
	}
	if b == nil {
		b = Empty()
	}

	out := &Metrics{
		Counts:         make(map[Kind]int, len(a.Counts)+len(b.Counts)),
		BySeverity:     make(map[Severity]int, len(a.BySeverity)+len(b.BySeverity)),
		ScannedFiles:   a.ScannedFiles + b.ScannedFiles,
		ScannedLines:   a.ScannedLines + b.ScannedLines,
		ParseFailures:  a.ParseFailures + b.ParseFailures,
		Findings:       mergeSorted(a.Findings, b.Findings),
		CatalogVersion: max(a.CatalogVersion, b.CatalogVersion),
	}
	for k, v := range a.Counts {
		out.Counts[k] += v
	}
	for k, v := range b.Counts {
		out.Counts[k] += v
	}
	for k, v := range a.BySeverity {
		out.BySeverity[k] += v
	}
	for k, v := range b.BySeverity {
		out.BySeverity[k] += v
	}
	return out
}

// Reduce merges any number of metrics.
func Reduce(parts ...*Metrics) *Metrics {
	acc := Empty()
	for _, p := range parts {
		acc = Merge(acc, p)
	}
	return acc
}

// mergeSorted merges two Compare-sorted slices into a new slice.
func mergeSorted(a, b []Finding) []Finding {
	out := make([]Finding, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if Compare(a[i], b[j]) <= 0 {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// Count returns the number of findings of kind k.
func (m *Metrics) Count(k Kind) int {
	return m.Counts[k]
}

// Finalize computes Score from the current findings and returns m.
func (m *Metrics) Finalize() *Metrics {
	m.Score = SubScore(m.Findings, m.ScannedLines)
	return m
}

// Weight returns the density weight of a finding for the safety sub-score.
//
// Unsafe blocks and high-severity vulnerability matches dominate; parse
// errors count lightly because they say nothing about runtime behaviour.
func Weight(f Finding) float64 {
	switch f.Kind {
	case KindUnsafeBlock:
		return 5
	case KindFallibleUnwrap:
		return bySeverity(f.Severity, 0.5, 1, 3)
	case KindPanicPoint:
		return bySeverity(f.Severity, 0.5, 1.5, 3)
	case KindVulnerability:
		return bySeverity(f.Severity, 1, 3, 6)
	case KindParseError:
		return 0.5
	default:
		return 0
	}
}

func bySeverity(s Severity, low, medium, high float64) float64 {
	switch s {
	case SeverityHigh:
		return high
	case SeverityMedium:
		return medium
	default:
		return low
	}
}

// SubScore maps weighted finding density to [0,100].
//
// density = Σ Weight / max(lines, 1) × 1000, score = 100 / (1 + density/50).
// No findings yields 100; each added finding strictly lowers the score for
// a fixed line count.
func SubScore(findings []Finding, lines int) float64 {
	total := 0.0
	for _, f := range findings {
		total += Weight(f)
	}
	if total == 0 {
		return 100
	}

	density := total / float64(max(lines, 1)) * densityKLOC
	score := 100 / (1 + density/halfScoreDensity)
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(100, score))
}
