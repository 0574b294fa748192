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
	"errors"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/crabscore/services/score/config"
)

var validate = validator.New()

// validateDocument checks doc and sorts its bonus tiers and certification
// table in place.
func validateDocument(doc *Document) error {
	if err := validate.Struct(doc); err != nil {
		return structError(err)
	}
	if len(doc.Profiles) == 0 {
		return config.NewConfigError(config.ErrInvalidConfig, "profiles", "no profiles defined")
	}

	if err := validateTables(doc); err != nil {
		return err
	}
	if err := validatePenalties(doc); err != nil {
		return err
	}
	if err := validateTiers(doc); err != nil {
		return err
	}
	return validateProfiles(doc)
}

// structError converts the first validator failure into a ConfigError.
func structError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return config.NewConfigError(config.ErrInvalidConfig, "profiles", "%v", err)
	}
	fe := verrs[0]
	ns := fe.Namespace()

	cause := config.ErrInvalidConfig
	switch {
	case strings.Contains(ns, ".Weights."):
		if strings.Contains(ns, "Penalties") {
			cause = config.ErrInvalidThresholds
		} else {
			cause = config.ErrInvalidWeights
		}
	case strings.Contains(ns, "BonusTables"), strings.Contains(ns, "Penalties"), strings.Contains(ns, "Tiers"):
		cause = config.ErrInvalidThresholds
	}
	field := strings.TrimPrefix(ns, "Document.")
	return config.NewConfigError(cause, field, "failed %q constraint (value %v)", fe.Tag(), fe.Value())
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func validateTables(doc *Document) error {
	seen := make(map[string]bool, len(doc.BonusTables))
	for i := range doc.BonusTables {
		t := &doc.BonusTables[i]
		field := "bonus_tables." + t.Name
		if seen[t.Name] {
			return config.NewConfigError(config.ErrInvalidThresholds, field, "duplicate bonus table")
		}
		seen[t.Name] = true

		dims := make(map[Dimension]bool, len(t.Rules))
		for j := range t.Rules {
			r := &t.Rules[j]
			if dims[r.Dimension] {
				return config.NewConfigError(config.ErrInvalidThresholds, field,
					"dimension %s has more than one rule", r.Dimension)
			}
			dims[r.Dimension] = true

			for _, tier := range r.Tiers {
				if !finite(tier.Threshold, tier.Points) {
					return config.NewConfigError(config.ErrInvalidThresholds, field,
						"tier %q of %s must have finite threshold and points", tier.Name, r.Dimension)
				}
			}
			sort.SliceStable(r.Tiers, func(a, b int) bool {
				return r.Tiers[a].Points > r.Tiers[b].Points
			})
		}
	}
	return nil
}

func validatePenalties(doc *Document) error {
	seen := make(map[string]bool, len(doc.Penalties))
	for _, p := range doc.Penalties {
		field := "penalties." + p.Name
		if seen[p.Name] {
			return config.NewConfigError(config.ErrInvalidThresholds, field, "duplicate penalty policy")
		}
		seen[p.Name] = true

		w := p.Weights
		if !finite(p.Scale, p.MaxPenalty, w.Unsafe, w.PanicHigh, w.Panic, w.Unwrap,
			w.VulnerabilityHigh, w.Vulnerability, w.ParseError) {
			return config.NewConfigError(config.ErrInvalidThresholds, field, "weights and limits must be finite")
		}
	}
	return nil
}

func validateTiers(doc *Document) error {
	if len(doc.Tiers) == 0 {
		return config.NewConfigError(config.ErrInvalidThresholds, "tiers", "no certification tiers defined")
	}

	sort.SliceStable(doc.Tiers, func(a, b int) bool {
		return doc.Tiers[a].Min > doc.Tiers[b].Min
	})

	names := make(map[string]bool, len(doc.Tiers))
	for i, t := range doc.Tiers {
		if names[t.Name] {
			return config.NewConfigError(config.ErrInvalidThresholds, "tiers", "duplicate tier %q", t.Name)
		}
		names[t.Name] = true
		if i > 0 && doc.Tiers[i-1].Min == t.Min {
			return config.NewConfigError(config.ErrInvalidThresholds, "tiers",
				"tiers %q and %q share threshold %v", doc.Tiers[i-1].Name, t.Name, t.Min)
		}
	}
	if last := doc.Tiers[len(doc.Tiers)-1]; last.Min != 0 {
		return config.NewConfigError(config.ErrInvalidThresholds, "tiers",
			"lowest tier %q must start at 0, not %v", last.Name, last.Min)
	}
	return nil
}

func validateProfiles(doc *Document) error {
	tables := make(map[string]bool, len(doc.BonusTables))
	for _, t := range doc.BonusTables {
		tables[t.Name] = true
	}
	penalties := make(map[string]bool, len(doc.Penalties))
	for _, p := range doc.Penalties {
		penalties[p.Name] = true
	}

	keys := make(map[string]string, len(doc.Profiles)*2)
	claim := func(key, owner string) error {
		if prev, ok := keys[key]; ok && prev != owner {
			return config.NewConfigError(config.ErrInvalidConfig, "profiles."+owner,
				"name or alias %q collides with profile %q", key, prev)
		}
		keys[key] = owner
		return nil
	}

	for _, p := range doc.Profiles {
		field := "profiles." + p.Name
		if strings.IndexFunc(p.Name, unicode.IsSpace) >= 0 {
			return config.NewConfigError(config.ErrInvalidConfig, field, "name must not contain whitespace")
		}
		if _, dup := keys[normalize(p.Name)]; dup {
			return config.NewConfigError(config.ErrInvalidConfig, field, "duplicate profile")
		}
		if err := claim(normalize(p.Name), p.Name); err != nil {
			return err
		}
		for _, alias := range p.Aliases {
			if err := claim(normalize(alias), p.Name); err != nil {
				return err
			}
		}

		if !p.Weights.Valid() {
			return config.NewConfigError(config.ErrInvalidWeights, field+".weights",
				"weights sum to %.6f, want 1.0 ± %v", p.Weights.Sum(), WeightEpsilon)
		}
		if !tables[orStandard(p.BonusTableName)] {
			return config.NewConfigError(config.ErrInvalidConfig, field+".bonus_table",
				"bonus table %q is not defined", orStandard(p.BonusTableName))
		}
		if !penalties[orStandard(p.PenaltyName)] {
			return config.NewConfigError(config.ErrInvalidConfig, field+".penalty",
				"penalty policy %q is not defined", orStandard(p.PenaltyName))
		}
	}
	return nil
}
