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

// PerformanceScore normalizes raw performance measurements to [0,100].
//
// The score is the mean of a latency term 100/(1+p95/100), a throughput
// term rps/(rps+1000)×100 and a resource term 100×cpu. p95 is floored at
// 1ms so a zero or negative latency cannot exceed the scale.
func PerformanceScore(m *PerformanceMetrics) float64 {
	latency := 100 / (1 + math.Max(m.LatencyP95Ms, 1)/100)

	rps := math.Max(m.ThroughputRPS, 0)
	throughput := rps / (rps + 1000) * 100

	resource := 100 * clampUnit(m.CPUEfficiency)

	return clampScore((latency + throughput + resource) / 3)
}

// EnergyScore is the mean of a power term 100/(1+watts/100) and the
// renewable share as a percentage.
func EnergyScore(m *EnergyMetrics) float64 {
	power := 100 / (1 + math.Max(m.AverageWatts, 1)/100)
	renewable := 100 * clampUnit(m.RenewableFraction)
	return clampScore((power + renewable) / 2)
}

// CostScore is the mean of an infrastructure term 100/(1+compute/1000)
// and an operations term 100/(1+overhead).
func CostScore(m *CostMetrics) float64 {
	infra := 100 / (1 + math.Max(m.ComputeUSD, 0)/1000)
	ops := 100 / (1 + math.Max(m.OperationalOverhead, 0))
	return clampScore((infra + ops) / 2)
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

// ValidScore reports whether v is a finite value in [0,100].
func ValidScore(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 100
}
