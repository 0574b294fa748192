// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("crabscore.analyzer")
	meter  = otel.Meter("crabscore.analyzer")
)

var (
	analysisLatency metric.Float64Histogram
	filesScanned    metric.Int64Counter
	filesFailed     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analysisLatency, err = meter.Float64Histogram(
			"crabscore_analysis_duration_seconds",
			metric.WithDescription("Duration of a whole-project analysis"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesScanned, err = meter.Int64Counter(
			"crabscore_files_scanned_total",
			metric.WithDescription("Total number of source files analyzed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesFailed, err = meter.Int64Counter(
			"crabscore_files_unparsable_total",
			metric.WithDescription("Total number of source files excluded as unparsable"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordAnalysis(ctx context.Context, files, failed int, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	analysisLatency.Record(ctx, d.Seconds())
	filesScanned.Add(ctx, int64(files))
	filesFailed.Add(ctx, int64(failed))
}
