// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"github.com/AleutianAI/crabscore/services/score/profile"
	"github.com/AleutianAI/crabscore/services/score/provider"
)

// SubScores are the four category sub-scores, each in [0,100].
type SubScores struct {
	Performance float64 `json:"performance"`
	Energy      float64 `json:"energy"`
	Cost        float64 `json:"cost"`
	Safety      float64 `json:"safety"`
}

// AuditKind classifies an audit trail entry.
type AuditKind string

const (
	// AuditBonus is one applied bonus tier.
	AuditBonus AuditKind = "bonus"

	// AuditBonusCap records the bonus total being reduced to the table's max_total.
	AuditBonusCap AuditKind = "bonus_cap"

	// AuditPenalty is the penalty contribution of one finding kind.
	AuditPenalty AuditKind = "penalty"

	// AuditPenaltyCap records the penalty total being reduced to max_penalty.
	AuditPenaltyCap AuditKind = "penalty_cap"

	// AuditFallback is a category scored from a fallback estimate.
	AuditFallback AuditKind = "fallback"

	// AuditClamp records the overall score being clamped into [0,100].
	AuditClamp AuditKind = "clamp"
)

// AuditEntry is one contribution to the overall score.
//
// Points is signed: positive for bonuses, negative for penalties and
// for downward adjustments.
type AuditEntry struct {
	Kind AuditKind `json:"kind"`

	// Subject is the bonus dimension, finding kind or metric category.
	Subject string `json:"subject"`

	// Name is the bonus tier name or the fallback reason.
	Name string `json:"name,omitempty"`

	// Value is the measured input (line count, ratio, finding count).
	Value float64 `json:"value"`

	Points float64 `json:"points"`
}

// Breakdown is the fully audited result of one scoring call.
//
// It contains no timestamps or run identifiers: identical inputs yield a
// byte-identical JSON encoding.
type Breakdown struct {
	Profile   string          `json:"profile"`
	Weights   profile.Weights `json:"weights"`
	SubScores SubScores       `json:"sub_scores"`

	// Base is the weighted sum of the sub-scores.
	Base float64 `json:"base"`

	Bonus   float64 `json:"bonus"`
	Penalty float64 `json:"penalty"`

	// Overall is clamp(Base + Bonus - Penalty, 0, 100).
	Overall float64 `json:"overall"`
	Tier    string  `json:"tier"`

	Degraded []provider.Degraded `json:"degraded"`
	Audit    []AuditEntry        `json:"audit"`
}

// IsDegraded reports whether any category was scored from a fallback.
func (b *Breakdown) IsDegraded() bool {
	return len(b.Degraded) > 0
}

// Entries returns the audit entries of the given kind, in trail order.
func (b *Breakdown) Entries(kind AuditKind) []AuditEntry {
	var out []AuditEntry
	for _, e := range b.Audit {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
