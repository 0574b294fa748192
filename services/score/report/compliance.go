// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/AleutianAI/crabscore/services/score/pipeline"
	"github.com/AleutianAI/crabscore/services/score/provider"
	"github.com/AleutianAI/crabscore/services/score/safety"
)

// CRAPassScore is the overall score a project needs for a CRA "PASS".
const CRAPassScore = 70.0

// CSRD is a sustainability reporting envelope.
type CSRD struct {
	Standard      string    `json:"standard"`
	Overall       float64   `json:"overall"`
	Energy        float64   `json:"energy"`
	Certification string    `json:"certification"`
	Timestamp     time.Time `json:"timestamp"`

	// Measured is false when the energy sub-score is an estimate.
	Measured          bool    `json:"measured"`
	AverageWatts      float64 `json:"average_watts"`
	CarbonIntensity   float64 `json:"carbon_intensity"`
	RenewableFraction float64 `json:"renewable_fraction"`
}

// NewCSRD builds the CSRD envelope for res.
func NewCSRD(res *pipeline.Result) *CSRD {
	b := res.Breakdown
	c := &CSRD{
		Standard:      "CSRD",
		Overall:       b.Overall,
		Energy:        b.SubScores.Energy,
		Certification: b.Tier,
		Timestamp:     res.StartedAt,
		Measured:      !degraded(res, provider.CategoryEnergy),
	}
	if e, ok := res.Samples[provider.CategoryEnergy].(*provider.EnergyMetrics); ok {
		c.AverageWatts = e.AverageWatts
		c.CarbonIntensity = e.CarbonIntensity
		c.RenewableFraction = e.RenewableFraction
	}
	return c
}

// SBOM is an SPDX annotation fragment carrying the score.
type SBOM struct {
	SPDXID      string           `json:"SPDXID"`
	Name        string           `json:"name"`
	Summary     string           `json:"summary"`
	Annotations []SBOMAnnotation `json:"annotations"`
}

// SBOMAnnotation is one SPDX review annotation.
type SBOMAnnotation struct {
	AnnotationType string    `json:"annotationType"`
	Annotator      string    `json:"annotator"`
	AnnotationDate time.Time `json:"annotationDate"`
	Comment        string    `json:"comment"`
}

// NewSBOM builds the SPDX fragment for res.
func NewSBOM(res *pipeline.Result, version string) *SBOM {
	b := res.Breakdown
	return &SBOM{
		SPDXID:  "SPDXRef-CrabScore",
		Name:    "CrabScore Report: " + filepath.Base(res.Root),
		Summary: fmt.Sprintf("Overall %.1f (%s)", b.Overall, b.Tier),
		Annotations: []SBOMAnnotation{{
			AnnotationType: "REVIEW",
			Annotator:      "Tool: crabscore-" + version,
			AnnotationDate: res.StartedAt,
			Comment: fmt.Sprintf("profile=%s performance=%.1f energy=%.1f cost=%.1f safety=%.1f",
				b.Profile, b.SubScores.Performance, b.SubScores.Energy, b.SubScores.Cost, b.SubScores.Safety),
		}},
	}
}

// CRA is a Cyber Resilience Act envelope.
type CRA struct {
	Standard   string  `json:"standard"`
	Score      float64 `json:"score"`
	Safety     float64 `json:"safety"`
	Compliance string  `json:"compliance"`

	// Findings counts safety findings by kind.
	Findings map[safety.Kind]int `json:"findings"`

	// HighSeverity counts high-severity findings of every kind.
	HighSeverity int `json:"high_severity"`
}

// NewCRA builds the CRA envelope for res. Compliance is "PASS" at
// CRAPassScore or above.
func NewCRA(res *pipeline.Result) *CRA {
	b := res.Breakdown
	c := &CRA{
		Standard:   "EU CRA",
		Score:      b.Overall,
		Safety:     b.SubScores.Safety,
		Compliance: "FAIL",
		Findings:   map[safety.Kind]int{},
	}
	if b.Overall >= CRAPassScore {
		c.Compliance = "PASS"
	}
	if res.Static != nil && res.Static.Safety != nil {
		m := res.Static.Safety
		for _, k := range safety.Kinds {
			c.Findings[k] = m.Count(k)
		}
		for _, f := range m.Findings {
			if f.Severity == safety.SeverityHigh {
				c.HighSeverity++
			}
		}
	}
	return c
}

func degraded(res *pipeline.Result, cat provider.Category) bool {
	for _, d := range res.Breakdown.Degraded {
		if d.Category == cat {
			return true
		}
	}
	return false
}
