// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package provider defines the metric provider contract, the four metric
// categories and the collector that gathers them with per-provider timeouts.
package provider

import (
	"context"
	"math"

	"github.com/AleutianAI/crabscore/services/score/safety"
)

// Category identifies one of the four scored dimensions.
type Category string

const (
	CategoryPerformance Category = "performance"
	CategoryEnergy      Category = "energy"
	CategoryCost        Category = "cost"
	CategorySafety      Category = "safety"
)

// Categories lists every category in scoring order.
var Categories = []Category{CategoryPerformance, CategoryEnergy, CategoryCost, CategorySafety}

// SourceFallback is the Source of metrics estimated from project complexity.
const SourceFallback = "fallback"

// Provider supplies metrics for exactly one category.
//
// Description:
//
//	Collect must honour ctx: the collector runs each provider under its own
//	deadline and treats a late return as a timeout. A provider never
//	computes the overall score.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type Provider interface {
	// Name is a short identifier used in logs and in Degraded entries.
	Name() string

	// Category is the single category this provider reports.
	Category() Category

	// Collect gathers metrics for the project rooted at projectPath.
	Collect(ctx context.Context, projectPath string) (Sample, error)
}

// Sample is a category-tagged metric set with a normalized sub-score.
type Sample interface {
	Category() Category

	// SubScore returns the 0-100 sub-score for the category.
	SubScore() float64
}

// PerformanceMetrics are latency, throughput and resource measurements.
type PerformanceMetrics struct {
	Score  float64 `json:"score"`
	Source string  `json:"source"`

	LatencyP50Ms  float64 `json:"latency_p50_ms"`
	LatencyP95Ms  float64 `json:"latency_p95_ms"`
	LatencyP99Ms  float64 `json:"latency_p99_ms"`
	ColdStartMs   float64 `json:"cold_start_ms"`
	ThroughputRPS float64 `json:"throughput_rps"`

	// CPUEfficiency is 0-1, higher is better.
	CPUEfficiency float64 `json:"cpu_efficiency"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
}

func (m *PerformanceMetrics) Category() Category { return CategoryPerformance }
func (m *PerformanceMetrics) SubScore() float64  { return m.Score }

// EnergyMetrics are power draw and carbon measurements.
type EnergyMetrics struct {
	Score  float64 `json:"score"`
	Source string  `json:"source"`

	AverageWatts float64 `json:"average_watts"`
	PeakWatts    float64 `json:"peak_watts"`
	IdleWatts    float64 `json:"idle_watts"`
	Joules       float64 `json:"joules"`

	// CarbonIntensity is grams of CO2 per kWh of the energy source.
	CarbonIntensity float64 `json:"carbon_intensity"`

	// RenewableFraction is 0-1.
	RenewableFraction float64 `json:"renewable_fraction"`
}

func (m *EnergyMetrics) Category() Category { return CategoryEnergy }
func (m *EnergyMetrics) SubScore() float64  { return m.Score }

// CostMetrics are monthly infrastructure and operational costs in USD.
type CostMetrics struct {
	Score  float64 `json:"score"`
	Source string  `json:"source"`

	ComputeUSD float64 `json:"compute_usd"`
	StorageUSD float64 `json:"storage_usd"`
	EgressUSD  float64 `json:"egress_usd"`

	// OperationalOverhead is the 0-1 share of spend lost to operations.
	OperationalOverhead  float64 `json:"operational_overhead"`
	MTTRMinutes          float64 `json:"mttr_minutes"`
	DevelopmentUSD       float64 `json:"development_usd"`
	CustomerSatisfaction float64 `json:"customer_satisfaction"`
}

func (m *CostMetrics) Category() Category { return CategoryCost }
func (m *CostMetrics) SubScore() float64  { return m.Score }

// ProjectComplexity summarizes the size and shape of the analyzed project.
//
// The derived fields are filled by NewProjectComplexity and are always
// finite: an empty project has zero coverage, ratio and factor.
type ProjectComplexity struct {
	Files         int `json:"files"`
	TotalLines    int `json:"total_lines"`
	Functions     int `json:"functions"`
	TestFunctions int `json:"test_functions"`
	Modules       int `json:"modules"`
	DocLines      int `json:"doc_lines"`
	Dependencies  int `json:"dependencies"`

	DocCoverage      float64 `json:"doc_coverage"`
	TestRatio        float64 `json:"test_ratio"`
	ComplexityFactor float64 `json:"complexity_factor"`
}

// maxComplexityFactor caps ComplexityFactor at 10 (10k lines).
const maxComplexityFactor = 10.0

// NewProjectComplexity builds a ProjectComplexity and computes its ratios.
func NewProjectComplexity(files, lines, functions, tests, modules, docLines, deps int) ProjectComplexity {
	c := ProjectComplexity{
		Files:         files,
		TotalLines:    lines,
		Functions:     functions,
		TestFunctions: tests,
		Modules:       modules,
		DocLines:      docLines,
		Dependencies:  deps,
	}
	if lines > 0 {
		c.DocCoverage = float64(docLines) / float64(lines)
		c.ComplexityFactor = math.Min(float64(lines)/1000, maxComplexityFactor)
	}
	if functions > 0 {
		c.TestRatio = float64(tests) / float64(functions)
	}
	return c
}

// StaticAnalysis is the safety category sample. It also carries the
// project complexity every fallback estimate is derived from.
type StaticAnalysis struct {
	Safety     *safety.Metrics   `json:"safety"`
	Complexity ProjectComplexity `json:"complexity"`
}

func (s *StaticAnalysis) Category() Category { return CategorySafety }

// SubScore returns the finalized safety score, or 100 for an empty result.
func (s *StaticAnalysis) SubScore() float64 {
	if s.Safety == nil {
		return 100
	}
	return s.Safety.Score
}
