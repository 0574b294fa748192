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

	"github.com/AleutianAI/crabscore/services/score/provider"
)

// ProviderName is the Name of the static analysis provider.
const ProviderName = "static-analysis"

// Provider adapts an Analyzer to the provider contract for the safety
// category. The collector should mark the safety category required.
type Provider struct {
	analyzer *Analyzer
	excludes []string
}

// NewProvider creates the safety provider. Nil excludes select the defaults.
func NewProvider(a *Analyzer, excludes []string) *Provider {
	if a == nil {
		a = New()
	}
	return &Provider{analyzer: a, excludes: excludes}
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) Category() provider.Category { return provider.CategorySafety }

// Collect analyzes projectPath and returns a *provider.StaticAnalysis.
func (p *Provider) Collect(ctx context.Context, projectPath string) (provider.Sample, error) {
	res, err := p.analyzer.AnalyzeProject(ctx, projectPath, p.excludes)
	if err != nil {
		return nil, err
	}
	return res, nil
}
