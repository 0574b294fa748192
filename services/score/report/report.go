// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders scoring results for people and for compliance
// tooling.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/crabscore/services/score/engine"
	"github.com/AleutianAI/crabscore/services/score/pipeline"
	"github.com/AleutianAI/crabscore/services/score/provider"
	"github.com/AleutianAI/crabscore/services/score/safety"
)

// Format selects an output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatCSRD Format = "csrd"
	FormatSBOM Format = "sbom"
	FormatCRA  Format = "cra"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatHTML, FormatCSRD, FormatSBOM, FormatCRA}

// ParseFormat resolves a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	names := make([]string, len(Formats))
	for i, known := range Formats {
		names[i] = string(known)
	}
	return "", fmt.Errorf("unknown report format %q (available: %s)", s, strings.Join(names, ", "))
}

// Report is the JSON document written for FormatJSON.
type Report struct {
	Tool        string                                `json:"tool"`
	Version     string                                `json:"version"`
	RunID       string                                `json:"run_id"`
	Root        string                                `json:"root"`
	GeneratedAt time.Time                             `json:"generated_at"`
	Score       *engine.Breakdown                     `json:"score"`
	Complexity  provider.ProjectComplexity            `json:"complexity"`
	Safety      *safety.Metrics                       `json:"safety"`
	Metrics     map[provider.Category]provider.Sample `json:"metrics"`
	Gate        pipeline.Gate                         `json:"gate"`
}

// New builds the JSON report for res.
func New(res *pipeline.Result, version string) *Report {
	r := &Report{
		Tool:        "crabscore",
		Version:     version,
		RunID:       res.RunID,
		Root:        res.Root,
		GeneratedAt: res.StartedAt,
		Score:       res.Breakdown,
		Metrics:     res.Samples,
		Gate:        res.Gate,
	}
	if res.Static != nil {
		r.Complexity = res.Static.Complexity
		r.Safety = res.Static.Safety
	}
	return r
}

// Write renders res to w in format f.
func Write(w io.Writer, res *pipeline.Result, f Format, version string) error {
	if res == nil || res.Breakdown == nil {
		return fmt.Errorf("report: no result to render")
	}

	switch f {
	case FormatJSON:
		return writeJSON(w, New(res, version))
	case FormatHTML:
		return writeHTML(w, New(res, version))
	case FormatCSRD:
		return writeJSON(w, NewCSRD(res))
	case FormatSBOM:
		return writeJSON(w, NewSBOM(res, version))
	case FormatCRA:
		return writeJSON(w, NewCRA(res))
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

// WriteFile renders res into path, replacing any existing file.
func WriteFile(path string, res *pipeline.Result, f Format, version string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report: %w", cerr)
		}
	}()
	return Write(file, res, f, version)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
