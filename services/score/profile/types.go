// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package profile

import (
	"math"

	"github.com/AleutianAI/crabscore/services/score/safety"
)

// WeightEpsilon is the tolerance on the sum of a profile's weights.
const WeightEpsilon = 0.0001

// Weights are the per-category weights of a profile.
type Weights struct {
	Performance float64 `yaml:"performance" json:"performance" validate:"gte=0,lte=1"`
	Energy      float64 `yaml:"energy" json:"energy" validate:"gte=0,lte=1"`
	Cost        float64 `yaml:"cost" json:"cost" validate:"gte=0,lte=1"`
	Safety      float64 `yaml:"safety" json:"safety" validate:"gte=0,lte=1"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Performance + w.Energy + w.Cost + w.Safety
}

// Valid reports whether every weight is finite and the sum is 1 within
// WeightEpsilon.
func (w Weights) Valid() bool {
	for _, v := range []float64{w.Performance, w.Energy, w.Cost, w.Safety} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return math.Abs(w.Sum()-1) <= WeightEpsilon
}

// Profile is one industry weighting configuration.
//
// Thread Safety:
//
//	A Profile obtained from a Registry is shared and must not be modified.
type Profile struct {
	// Name is the canonical kebab-case name (e.g. "web-services").
	Name string `yaml:"name" json:"name" validate:"required"`

	DisplayName string   `yaml:"display_name" json:"display_name"`
	Description string   `yaml:"description" json:"description"`
	Aliases     []string `yaml:"aliases" json:"aliases,omitempty" validate:"dive,required"`
	Weights     Weights  `yaml:"weights" json:"weights"`

	// BonusTableName and PenaltyName reference entries of the same
	// registry. Empty selects "standard".
	BonusTableName string `yaml:"bonus_table" json:"bonus_table"`
	PenaltyName    string `yaml:"penalty" json:"penalty"`

	// Resolved references, set by NewRegistry.
	Bonus   *BonusTable    `yaml:"-" json:"-"`
	Penalty *PenaltyPolicy `yaml:"-" json:"-"`
}

// StandardPolicy names the built-in bonus table and penalty policy.
const StandardPolicy = "standard"

// Dimension is a project property a bonus rule is evaluated against.
type Dimension string

const (
	// DimensionSize is the total line count.
	DimensionSize Dimension = "size"

	// DimensionDocs is the doc-comment coverage ratio.
	DimensionDocs Dimension = "docs"

	// DimensionTests is the test-to-function ratio.
	DimensionTests Dimension = "tests"

	// DimensionDependencies is the Cargo dependency count.
	DimensionDependencies Dimension = "dependencies"
)

// Dimensions lists every bonus dimension in evaluation order.
var Dimensions = []Dimension{DimensionSize, DimensionDocs, DimensionTests, DimensionDependencies}

// Op is a threshold comparison.
type Op string

const (
	OpLT  Op = "lt"
	OpLTE Op = "lte"
	OpGT  Op = "gt"
	OpGTE Op = "gte"
	OpEQ  Op = "eq"
)

// Holds reports whether "value op threshold" is true.
func (o Op) Holds(value, threshold float64) bool {
	switch o {
	case OpLT:
		return value < threshold
	case OpLTE:
		return value <= threshold
	case OpGT:
		return value > threshold
	case OpGTE:
		return value >= threshold
	case OpEQ:
		return value == threshold
	default:
		return false
	}
}

// BonusTier is one (predicate, points) step of a bonus rule.
type BonusTier struct {
	Name      string  `yaml:"name" json:"name" validate:"required"`
	Op        Op      `yaml:"op" json:"op" validate:"oneof=lt lte gt gte eq"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Points    float64 `yaml:"points" json:"points" validate:"gte=0"`
}

// BonusRule holds the tiers of one dimension, sorted by Points
// descending once loaded. At most one tier applies.
type BonusRule struct {
	Dimension Dimension   `yaml:"dimension" json:"dimension" validate:"oneof=size docs tests dependencies"`
	Tiers     []BonusTier `yaml:"tiers" json:"tiers" validate:"required,min=1,dive"`
}

// Match returns the most generous tier whose predicate holds for value.
func (r BonusRule) Match(value float64) (BonusTier, bool) {
	for _, t := range r.Tiers {
		if t.Op.Holds(value, t.Threshold) {
			return t, true
		}
	}
	return BonusTier{}, false
}

// BonusTable is a named set of bonus rules, one per dimension.
type BonusTable struct {
	Name string `yaml:"name" json:"name" validate:"required"`

	// MaxTotal caps the summed bonus. 0 means uncapped.
	MaxTotal float64     `yaml:"max_total" json:"max_total" validate:"gte=0,lte=100"`
	Rules    []BonusRule `yaml:"rules" json:"rules" validate:"dive"`
}

// PenaltyWeights are the per-finding weights of a penalty policy.
type PenaltyWeights struct {
	Unsafe            float64 `yaml:"unsafe" json:"unsafe" validate:"gte=0"`
	PanicHigh         float64 `yaml:"panic_high" json:"panic_high" validate:"gte=0"`
	Panic             float64 `yaml:"panic" json:"panic" validate:"gte=0"`
	Unwrap            float64 `yaml:"unwrap" json:"unwrap" validate:"gte=0"`
	VulnerabilityHigh float64 `yaml:"vulnerability_high" json:"vulnerability_high" validate:"gte=0"`
	Vulnerability     float64 `yaml:"vulnerability" json:"vulnerability" validate:"gte=0"`
	ParseError        float64 `yaml:"parse_error" json:"parse_error" validate:"gte=0"`
}

// PenaltyPolicy turns finding density into score points.
//
// contribution(kind) = Σ weight / max(lines, 1) × Scale, and the total
// over all kinds is capped at MaxPenalty.
type PenaltyPolicy struct {
	Name       string         `yaml:"name" json:"name" validate:"required"`
	Scale      float64        `yaml:"scale" json:"scale" validate:"gt=0"`
	MaxPenalty float64        `yaml:"max_penalty" json:"max_penalty" validate:"gte=0,lte=100"`
	Weights    PenaltyWeights `yaml:"weights" json:"weights"`
}

// Weight returns the penalty weight of one finding.
func (p *PenaltyPolicy) Weight(f safety.Finding) float64 {
	w := p.Weights
	switch f.Kind {
	case safety.KindUnsafeBlock:
		return w.Unsafe
	case safety.KindPanicPoint:
		if f.Severity == safety.SeverityHigh {
			return w.PanicHigh
		}
		return w.Panic
	case safety.KindFallibleUnwrap:
		return w.Unwrap
	case safety.KindVulnerability:
		if f.Severity == safety.SeverityHigh {
			return w.VulnerabilityHigh
		}
		return w.Vulnerability
	case safety.KindParseError:
		return w.ParseError
	default:
		return 0
	}
}

// Tier is one certification band.
type Tier struct {
	Name string  `yaml:"name" json:"name" validate:"required"`
	Min  float64 `yaml:"min" json:"min" validate:"gte=0,lte=100"`
}

// TierTable is sorted by Min descending and always ends with a band at 0.
type TierTable []Tier

// Assign returns the name of the highest band whose Min is at most score.
func (t TierTable) Assign(score float64) string {
	for _, tier := range t {
		if score >= tier.Min {
			return tier.Name
		}
	}
	return ""
}

// Document is the on-disk form of profiles and policies. The built-in
// files and user profile files share it; every section is optional in a
// user file.
type Document struct {
	Default     string          `yaml:"default" json:"default,omitempty"`
	Profiles    []Profile       `yaml:"profiles" json:"profiles" validate:"dive"`
	BonusTables []BonusTable    `yaml:"bonus_tables" json:"bonus_tables" validate:"dive"`
	Penalties   []PenaltyPolicy `yaml:"penalties" json:"penalties" validate:"dive"`
	Tiers       []Tier          `yaml:"tiers" json:"tiers" validate:"dive"`
}
