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
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/crabscore/services/score/ast"
)

func finding(file string, line int, kind Kind, sev Severity) Finding {
	return Finding{
		Kind:     kind,
		File:     file,
		Span:     ast.Span{StartLine: line, EndLine: line, StartCol: 4, EndCol: 12},
		Severity: sev,
		Rule:     string(kind),
	}
}

func sampleFiles() []*Metrics {
	return []*Metrics{
		ForFile(50, false, "2026.10", []Finding{
			finding("src/a.rs", 9, KindUnsafeBlock, SeverityHigh),
			finding("src/a.rs", 3, KindFallibleUnwrap, SeverityMedium),
		}),
		ForFile(120, false, "2026.10", []Finding{
			finding("src/b.rs", 40, KindPanicPoint, SeverityHigh),
			finding("src/b.rs", 2, KindVulnerability, SeverityMedium),
			finding("src/b.rs", 2, KindFallibleUnwrap, SeverityLow),
		}),
		ForFile(7, true, "2026.10", []Finding{
			finding("src/c.rs", 1, KindParseError, SeverityLow),
		}),
		ForFile(0, false, "2026.10", nil),
	}
}

func mustJSON(t *testing.T, m *Metrics) string {
	t.Helper()
	data, err := json.Marshal(m.Finalize())
	require.NoError(t, err)
	return string(data)
}

func TestMerge_OrderIndependent(t *testing.T) {
	files := sampleFiles()
	want := mustJSON(t, Reduce(files...))

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]*Metrics(nil), files...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, mustJSON(t, Reduce(shuffled...)), "permutation %d", i)
	}
}

func TestMerge_Associative(t *testing.T) {
	f := sampleFiles()

	left := Merge(Merge(f[0], f[1]), f[2])
	right := Merge(f[0], Merge(f[1], f[2]))
	assert.Equal(t, mustJSON(t, left), mustJSON(t, right))
}

func TestMerge_IdentityAndNil(t *testing.T) {
	f := sampleFiles()[0]
	assert.Equal(t, mustJSON(t, ForFile(50, false, "2026.10", f.Findings)), mustJSON(t, Merge(Empty(), f)))
	assert.Equal(t, mustJSON(t, Merge(f, nil)), mustJSON(t, Merge(nil, f)))
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	f := sampleFiles()
	before := len(f[0].Findings)
	_ = Merge(f[0], f[1])
	assert.Len(t, f[0].Findings, before)
	assert.Equal(t, 1, f[0].Count(KindUnsafeBlock))
}

func TestReduce_Counts(t *testing.T) {
	m := Reduce(sampleFiles()...)

	assert.Equal(t, 4, m.ScannedFiles)
	assert.Equal(t, 177, m.ScannedLines)
	assert.Equal(t, 1, m.ParseFailures)
	assert.Equal(t, 1, m.Count(KindUnsafeBlock))
	assert.Equal(t, 2, m.Count(KindFallibleUnwrap))
	assert.Equal(t, 1, m.Count(KindPanicPoint))
	assert.Equal(t, 1, m.Count(KindVulnerability))
	assert.Equal(t, 1, m.Count(KindParseError))
	assert.Equal(t, 2, m.BySeverity[SeverityHigh])
	assert.Equal(t, "2026.10", m.CatalogVersion)

	require.Len(t, m.Findings, 6)
	assert.Equal(t, "src/a.rs", m.Findings[0].File)
	assert.Equal(t, 3, m.Findings[0].Span.StartLine)
	for i := 1; i < len(m.Findings); i++ {
		assert.LessOrEqual(t, Compare(m.Findings[i-1], m.Findings[i]), 0)
	}
}

func TestSubScore_NoFindingsIsPerfect(t *testing.T) {
	assert.Equal(t, 100.0, SubScore(nil, 0))
	assert.Equal(t, 100.0, SubScore(nil, 10_000))
	assert.Equal(t, 100.0, Empty().Finalize().Score)
}

func TestSubScore_MonotonicInUnsafeBlocks(t *testing.T) {
	var findings []Finding
	prev := SubScore(findings, 500)
	for i := 1; i <= 50; i++ {
		findings = append(findings, finding("src/lib.rs", i, KindUnsafeBlock, SeverityHigh))
		got := SubScore(findings, 500)
		assert.Less(t, got, prev, "adding unsafe block %d", i)
		assert.GreaterOrEqual(t, got, 0.0)
		prev = got
	}
}

func TestSubScore_DirtyFileScoresLower(t *testing.T) {
	var dirty []Finding
	for i := 0; i < 5; i++ {
		dirty = append(dirty, finding("src/main.rs", i+1, KindUnsafeBlock, SeverityHigh))
	}
	for i := 0; i < 10; i++ {
		dirty = append(dirty, finding("src/main.rs", i+10, KindFallibleUnwrap, SeverityMedium))
	}

	clean := ForFile(50, false, "2026.10", nil).Finalize().Score
	dirtyScore := ForFile(50, false, "2026.10", dirty).Finalize().Score

	assert.Equal(t, 100.0, clean)
	assert.Less(t, dirtyScore, clean)
}

func TestSubScore_Bounds(t *testing.T) {
	for _, lines := range []int{0, 1, 10, 1_000_000_000} {
		for _, n := range []int{0, 1, 1000} {
			t.Run(fmt.Sprintf("lines=%d/n=%d", lines, n), func(t *testing.T) {
				fs := make([]Finding, n)
				for i := range fs {
					fs[i] = finding("x.rs", i, KindVulnerability, SeverityHigh)
				}
				s := SubScore(fs, lines)
				assert.GreaterOrEqual(t, s, 0.0)
				assert.LessOrEqual(t, s, 100.0)
			})
		}
	}
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Zero(t, Severity("bogus").Rank())
}

func TestFindingKey_Stable(t *testing.T) {
	f := finding("src/a.rs", 3, KindFallibleUnwrap, SeverityMedium)
	assert.Equal(t, "src/a.rs:3:4-3:12:fallible_unwrap:fallible_unwrap", f.Key())
}
