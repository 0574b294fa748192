// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine reduces category sub-scores, project complexity and an
// industry profile into one audited score breakdown.
//
// The engine is a pure function of its inputs. It performs no I/O, keeps
// no state between calls and may be shared between goroutines.
package engine

import (
	"math"

	"github.com/AleutianAI/crabscore/services/score/profile"
	"github.com/AleutianAI/crabscore/services/score/provider"
	"github.com/AleutianAI/crabscore/services/score/safety"
)

// Inputs are everything one scoring call depends on.
type Inputs struct {
	// Profile names the industry profile. Empty selects the default.
	Profile string

	// Performance, Energy and Cost are sub-scores in [0,100], real or
	// fallback.
	Performance float64
	Energy      float64
	Cost        float64

	// Safety holds the finalized safety metrics. Its Score is the safety
	// sub-score and its findings drive the penalty.
	Safety *safety.Metrics

	Complexity provider.ProjectComplexity

	// Degraded lists the categories scored from fallback estimates.
	Degraded []provider.Degraded
}

// FromCollection builds Inputs from a filled provider collection.
//
// Outputs:
//   - Inputs: Scoring inputs.
//   - error: *InvariantError if a category sample is missing.
func FromCollection(col *provider.Collection, profileName string) (Inputs, error) {
	in := Inputs{Profile: profileName, Degraded: col.Degraded()}

	static := col.Static()
	if static == nil || static.Safety == nil {
		return Inputs{}, &InvariantError{Field: string(provider.CategorySafety), Value: math.NaN(), Reason: "no static analysis result"}
	}
	in.Safety = static.Safety
	in.Complexity = static.Complexity

	for _, c := range []struct {
		cat provider.Category
		dst *float64
	}{
		{provider.CategoryPerformance, &in.Performance},
		{provider.CategoryEnergy, &in.Energy},
		{provider.CategoryCost, &in.Cost},
	} {
		s, ok := col.Samples[c.cat]
		if !ok || s == nil {
			return Inputs{}, &InvariantError{Field: string(c.cat), Value: math.NaN(), Reason: "no sample or fallback"}
		}
		*c.dst = s.SubScore()
	}
	return in, nil
}

// Engine scores inputs against the profiles of a registry.
//
// Thread Safety: Safe for concurrent use.
type Engine struct {
	registry *profile.Registry
}

// New creates an Engine over an immutable registry.
func New(registry *profile.Registry) *Engine {
	return &Engine{registry: registry}
}

// Score computes the breakdown for in.
//
// Description:
//
//	 1. Resolve the profile and validate every sub-score is in [0,100].
//	 2. base = Σ weight × sub-score.
//	 3. For each bonus dimension apply the single most generous matching
//	    tier, then cap the total at the table's max_total.
//	 4. Penalty per finding kind = Σ weight / lines × scale, capped in
//	    total at max_penalty. No lines means no penalty.
//	 5. overall = clamp(base + bonus − penalty, 0, 100).
//	 6. The certification tier is the highest band overall reaches.
//	 7. The audit trail lists bonuses and their cap, then penalties and
//	    their cap, then fallback categories, then any clamp.
//
// Outputs:
//   - *Breakdown: The result. Nil on error.
//   - error: *config.ConfigError for an unknown profile, *InvariantError
//     for out-of-contract inputs.
func (e *Engine) Score(in Inputs) (*Breakdown, error) {
	p, err := e.registry.Get(in.Profile)
	if err != nil {
		return nil, err
	}
	if in.Safety == nil {
		return nil, &InvariantError{Field: string(provider.CategorySafety), Value: math.NaN(), Reason: "safety metrics missing"}
	}

	sub := SubScores{
		Performance: in.Performance,
		Energy:      in.Energy,
		Cost:        in.Cost,
		Safety:      in.Safety.Score,
	}
	if err := checkSubScores(sub); err != nil {
		return nil, err
	}
	if err := checkComplexity(in.Complexity); err != nil {
		return nil, err
	}

	b := &Breakdown{
		Profile:   p.Name,
		Weights:   p.Weights,
		SubScores: sub,
		Degraded:  append([]provider.Degraded{}, in.Degraded...),
		Audit:     []AuditEntry{},
	}

	w := p.Weights
	b.Base = w.Performance*sub.Performance + w.Energy*sub.Energy + w.Cost*sub.Cost + w.Safety*sub.Safety

	b.Bonus = applyBonuses(b, p.Bonus, in.Complexity)
	b.Penalty = applyPenalty(b, p.Penalty, in.Safety)

	for _, d := range b.Degraded {
		b.Audit = append(b.Audit, AuditEntry{Kind: AuditFallback, Subject: string(d.Category), Name: d.Reason})
	}

	raw := b.Base + b.Bonus - b.Penalty
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return nil, &InvariantError{Field: "overall", Value: raw, Reason: "not finite"}
	}
	b.Overall = clamp(raw)
	if b.Overall != raw {
		b.Audit = append(b.Audit, AuditEntry{Kind: AuditClamp, Subject: "overall", Value: raw, Points: b.Overall - raw})
	}

	b.Tier = e.registry.Tiers().Assign(b.Overall)
	return b, nil
}

func checkSubScores(s SubScores) error {
	for _, v := range []struct {
		field string
		value float64
	}{
		{string(provider.CategoryPerformance), s.Performance},
		{string(provider.CategoryEnergy), s.Energy},
		{string(provider.CategoryCost), s.Cost},
		{string(provider.CategorySafety), s.Safety},
	} {
		if !provider.ValidScore(v.value) {
			return &InvariantError{Field: v.field, Value: v.value, Reason: "sub-score outside [0,100]"}
		}
	}
	return nil
}

func checkComplexity(c provider.ProjectComplexity) error {
	for _, v := range []struct {
		field string
		value float64
	}{
		{"complexity.doc_coverage", c.DocCoverage},
		{"complexity.test_ratio", c.TestRatio},
		{"complexity.total_lines", float64(c.TotalLines)},
		{"complexity.dependencies", float64(c.Dependencies)},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) || v.value < 0 {
			return &InvariantError{Field: v.field, Value: v.value, Reason: "must be finite and non-negative"}
		}
	}
	return nil
}

// dimensionValue returns the complexity measure a bonus dimension tests.
func dimensionValue(d profile.Dimension, c provider.ProjectComplexity) float64 {
	switch d {
	case profile.DimensionSize:
		return float64(c.TotalLines)
	case profile.DimensionDocs:
		return c.DocCoverage
	case profile.DimensionTests:
		return c.TestRatio
	case profile.DimensionDependencies:
		return float64(c.Dependencies)
	default:
		return math.NaN()
	}
}

// applyBonuses appends one audit entry per applied tier and returns the
// capped bonus total.
func applyBonuses(b *Breakdown, table *profile.BonusTable, c provider.ProjectComplexity) float64 {
	if table == nil {
		return 0
	}

	total := 0.0
	for _, dim := range profile.Dimensions {
		for _, rule := range table.Rules {
			if rule.Dimension != dim {
				continue
			}
			value := dimensionValue(dim, c)
			tier, ok := rule.Match(value)
			if !ok || tier.Points == 0 {
				continue
			}
			total += tier.Points
			b.Audit = append(b.Audit, AuditEntry{
				Kind:    AuditBonus,
				Subject: string(dim),
				Name:    tier.Name,
				Value:   value,
				Points:  tier.Points,
			})
		}
	}

	if table.MaxTotal > 0 && total > table.MaxTotal {
		b.Audit = append(b.Audit, AuditEntry{Kind: AuditBonusCap, Subject: "bonus", Value: total, Points: table.MaxTotal - total})
		total = table.MaxTotal
	}
	return total
}

// applyPenalty appends one audit entry per contributing finding kind and
// returns the capped penalty total.
func applyPenalty(b *Breakdown, policy *profile.PenaltyPolicy, m *safety.Metrics) float64 {
	if policy == nil || m.ScannedLines <= 0 || len(m.Findings) == 0 {
		return 0
	}

	weights := make(map[safety.Kind]float64, len(safety.Kinds))
	for _, f := range m.Findings {
		weights[f.Kind] += policy.Weight(f)
	}

	lines := float64(max(m.ScannedLines, 1))
	total := 0.0
	for _, kind := range safety.Kinds {
		contribution := weights[kind] / lines * policy.Scale
		if !(contribution > 0) {
			continue
		}
		total += contribution
		b.Audit = append(b.Audit, AuditEntry{
			Kind:    AuditPenalty,
			Subject: string(kind),
			Value:   float64(m.Count(kind)),
			Points:  -contribution,
		})
	}

	if total > policy.MaxPenalty {
		b.Audit = append(b.Audit, AuditEntry{Kind: AuditPenaltyCap, Subject: "penalty", Value: total, Points: total - policy.MaxPenalty})
		total = policy.MaxPenalty
	}
	return total
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
