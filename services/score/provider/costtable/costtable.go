// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package costtable provides cost metrics from a user-maintained table.
//
// The table is a YAML or JSON document with four sections. Named resources
// under infrastructure are summed into the compute, storage and egress
// totals, so a table can list each service separately:
//
//	infrastructure:
//	  cloud_compute_usd: 40
//	  resources:
//	    api:    {compute_usd: 120, count: 2}
//	    bucket: {storage_usd: 15}
//	operations:
//	  overhead_percentage: 12
//	  mttr_minutes: 45
package costtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/crabscore/services/score/provider"
)

// ProviderName identifies the cost provider in logs and Degraded entries.
const ProviderName = "cost-table"

// MaxFileSize bounds the table file.
const MaxFileSize = 1 << 20

// ErrInvalidTable is wrapped by every Load failure.
var ErrInvalidTable = errors.New("invalid cost table")

var validate = validator.New()

// Table is the decoded cost document. Amounts are monthly USD.
type Table struct {
	Infrastructure Infrastructure `yaml:"infrastructure" json:"infrastructure"`
	Operations     Operations     `yaml:"operations" json:"operations"`
	Development    Development    `yaml:"development" json:"development"`
	BusinessImpact BusinessImpact `yaml:"business_impact" json:"business_impact"`
}

// Infrastructure holds hosting costs.
type Infrastructure struct {
	CloudComputeUSD   float64 `yaml:"cloud_compute_usd" json:"cloud_compute_usd" validate:"gte=0"`
	StorageUSD        float64 `yaml:"storage_usd" json:"storage_usd" validate:"gte=0"`
	NetworkEgressUSD  float64 `yaml:"network_egress_usd" json:"network_egress_usd" validate:"gte=0"`
	CostPerMillionOps float64 `yaml:"cost_per_million_ops" json:"cost_per_million_ops" validate:"gte=0"`

	// Resources are added to the totals above, each multiplied by its count.
	Resources map[string]Resource `yaml:"resources" json:"resources" validate:"dive"`
}

// Resource is one named line item.
type Resource struct {
	ComputeUSD float64 `yaml:"compute_usd" json:"compute_usd" validate:"gte=0"`
	StorageUSD float64 `yaml:"storage_usd" json:"storage_usd" validate:"gte=0"`
	EgressUSD  float64 `yaml:"egress_usd" json:"egress_usd" validate:"gte=0"`

	// Count multiplies the amounts. 0 counts as 1.
	Count int `yaml:"count" json:"count" validate:"gte=0"`
}

// Operations holds running costs of the service.
type Operations struct {
	MTTRMinutes       float64 `yaml:"mttr_minutes" json:"mttr_minutes" validate:"gte=0"`
	IncidentsPerMonth float64 `yaml:"incidents_per_month" json:"incidents_per_month" validate:"gte=0"`

	// OverheadPercentage is the share of spend lost to operations, 0-100.
	OverheadPercentage float64 `yaml:"overhead_percentage" json:"overhead_percentage" validate:"gte=0,lte=100"`
	MonitoringUSD      float64 `yaml:"monitoring_usd" json:"monitoring_usd" validate:"gte=0"`
}

// Development holds engineering effort figures.
type Development struct {
	MonthlyUSD           float64 `yaml:"monthly_usd" json:"monthly_usd" validate:"gte=0"`
	LOC                  int     `yaml:"loc" json:"loc" validate:"gte=0"`
	CyclomaticComplexity float64 `yaml:"cyclomatic_complexity" json:"cyclomatic_complexity" validate:"gte=0"`
	CodeChurn            float64 `yaml:"code_churn" json:"code_churn" validate:"gte=0"`
	OnboardingDays       float64 `yaml:"onboarding_days" json:"onboarding_days" validate:"gte=0"`
}

// BusinessImpact holds customer-facing figures.
type BusinessImpact struct {
	RevenuePer100msLatency float64 `yaml:"revenue_per_100ms_latency" json:"revenue_per_100ms_latency"`
	CSATScore              float64 `yaml:"csat_score" json:"csat_score" validate:"gte=0,lte=100"`
	SLACompliance          float64 `yaml:"sla_compliance" json:"sla_compliance" validate:"gte=0,lte=100"`
	CompetitiveAdvantage   float64 `yaml:"competitive_advantage" json:"competitive_advantage"`
}

// Load reads a cost table. Files ending in .json are decoded as JSON,
// everything else as YAML. Unknown keys are rejected.
//
// Outputs:
//   - *Table: The validated table.
//   - error: Wraps ErrInvalidTable.
func Load(path string) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrInvalidTable, path, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}

	var t Table
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&t)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidTable, path, err)
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTable, path, err)
	}
	return &t, nil
}

// Validate checks that every amount is finite and within its range.
func (t *Table) Validate() error {
	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q constraint (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	for name, v := range t.amounts() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	return nil
}

func (t *Table) amounts() map[string]float64 {
	out := map[string]float64{
		"infrastructure.cloud_compute_usd":          t.Infrastructure.CloudComputeUSD,
		"infrastructure.storage_usd":                t.Infrastructure.StorageUSD,
		"infrastructure.network_egress_usd":         t.Infrastructure.NetworkEgressUSD,
		"operations.overhead_percentage":            t.Operations.OverheadPercentage,
		"operations.mttr_minutes":                   t.Operations.MTTRMinutes,
		"development.monthly_usd":                   t.Development.MonthlyUSD,
		"business_impact.csat_score":                t.BusinessImpact.CSATScore,
		"business_impact.revenue_per_100ms_latency": t.BusinessImpact.RevenuePer100msLatency,
	}
	for name, r := range t.Infrastructure.Resources {
		out["infrastructure.resources."+name+".compute_usd"] = r.ComputeUSD
		out["infrastructure.resources."+name+".storage_usd"] = r.StorageUSD
		out["infrastructure.resources."+name+".egress_usd"] = r.EgressUSD
	}
	return out
}

// Totals returns compute, storage and egress with every resource summed in.
// Resources are added in name order so the float sum is deterministic.
func (t *Table) Totals() (compute, storage, egress float64) {
	compute = t.Infrastructure.CloudComputeUSD
	storage = t.Infrastructure.StorageUSD
	egress = t.Infrastructure.NetworkEgressUSD

	names := make([]string, 0, len(t.Infrastructure.Resources))
	for name := range t.Infrastructure.Resources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := t.Infrastructure.Resources[name]
		n := float64(max(r.Count, 1))
		compute += r.ComputeUSD * n
		storage += r.StorageUSD * n
		egress += r.EgressUSD * n
	}
	return compute, storage, egress
}

// Metrics converts the table into scored cost metrics.
func (t *Table) Metrics() *provider.CostMetrics {
	compute, storage, egress := t.Totals()
	m := &provider.CostMetrics{
		Source:               ProviderName,
		ComputeUSD:           compute,
		StorageUSD:           storage,
		EgressUSD:            egress,
		OperationalOverhead:  t.Operations.OverheadPercentage / 100,
		MTTRMinutes:          t.Operations.MTTRMinutes,
		DevelopmentUSD:       t.Development.MonthlyUSD,
		CustomerSatisfaction: t.BusinessImpact.CSATScore,
	}
	m.Score = provider.CostScore(m)
	return m
}

// Provider implements provider.Provider for the cost category.
//
// Thread Safety: Safe for concurrent use. The table is never mutated.
type Provider struct {
	table *Table
}

// New creates a provider over a loaded table.
func New(table *Table) *Provider {
	return &Provider{table: table}
}

func (p *Provider) Name() string                { return ProviderName }
func (p *Provider) Category() provider.Category { return provider.CategoryCost }

// Collect returns the table's metrics. It does not touch projectPath.
func (p *Provider) Collect(ctx context.Context, _ string) (provider.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.table == nil {
		return nil, fmt.Errorf("%w: no cost table", provider.ErrNotConfigured)
	}
	return p.table.Metrics(), nil
}
