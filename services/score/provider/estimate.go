// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import "math"

// EstimatePerformance derives performance metrics from project size.
//
// Smaller projects are assumed to have lower latency: base latency is
// 10ms plus 5ms per complexity factor unit.
func EstimatePerformance(c ProjectComplexity) *PerformanceMetrics {
	cf := c.ComplexityFactor
	base := 10 + cf*5

	m := &PerformanceMetrics{
		Source:        SourceFallback,
		LatencyP50Ms:  base,
		LatencyP95Ms:  base * 1.5,
		LatencyP99Ms:  base * 2,
		ColdStartMs:   base * 3,
		ThroughputRPS: 1000 / base,
		CPUEfficiency: 0.8 - math.Min(cf*0.05, 0.5),
		CacheHitRate:  0.9 - math.Min(cf*0.02, 0.3),
	}
	m.Score = PerformanceScore(m)
	return m
}

// EstimateEnergy derives power draw from project size, assuming a grid
// intensity of 400 gCO2/kWh and a 30% renewable share.
func EstimateEnergy(c ProjectComplexity) *EnergyMetrics {
	cf := c.ComplexityFactor

	m := &EnergyMetrics{
		Source:            SourceFallback,
		AverageWatts:      5 + cf*2,
		PeakWatts:         10 + cf*5,
		IdleWatts:         2 + cf*0.5,
		CarbonIntensity:   400,
		RenewableFraction: 0.3,
	}
	m.Score = EnergyScore(m)
	return m
}

// EstimateCost derives monthly costs from project size and function count.
func EstimateCost(c ProjectComplexity) *CostMetrics {
	cf := c.ComplexityFactor
	maintenance := float64(c.Functions) / 10

	m := &CostMetrics{
		Source:               SourceFallback,
		ComputeUSD:           10 + cf*20,
		StorageUSD:           1 + cf*2,
		EgressUSD:            5 + cf*5,
		OperationalOverhead:  0.1 + math.Min(cf*0.02, 0.3),
		MTTRMinutes:          30 + maintenance*10,
		CustomerSatisfaction: 80 - cf*2,
	}
	m.Score = CostScore(m)
	return m
}

// Estimate returns the fallback sample for a category. The safety
// category has no fallback and returns nil.
func Estimate(cat Category, c ProjectComplexity) Sample {
	switch cat {
	case CategoryPerformance:
		return EstimatePerformance(c)
	case CategoryEnergy:
		return EstimateEnergy(c)
	case CategoryCost:
		return EstimateCost(c)
	default:
		return nil
	}
}
