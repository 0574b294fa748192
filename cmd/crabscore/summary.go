// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/crabscore/pkg/ux"
	"github.com/AleutianAI/crabscore/services/score/engine"
	"github.com/AleutianAI/crabscore/services/score/pipeline"
	"github.com/AleutianAI/crabscore/services/score/safety"
)

const barWidth = 20

// printSummary renders the human-readable result of one run.
func printSummary(p *ux.Printer, res *pipeline.Result) {
	b := res.Breakdown

	p.Title(fmt.Sprintf("%s CrabScore %s", ux.IconCrab, res.Root))
	if p.Level() == ux.LevelFull {
		p.Box(b.Tier, fmt.Sprintf("%s %s / 100", ux.ScoreBar(b.Overall, barWidth), ux.Number(b.Overall)))
	}

	p.KeyValue("Overall", ux.Number(b.Overall))
	p.KeyValue("Tier", b.Tier)
	p.KeyValue("Profile", b.Profile)
	p.KeyValue("Performance", subScore(p, b.SubScores.Performance, b.Weights.Performance))
	p.KeyValue("Energy", subScore(p, b.SubScores.Energy, b.Weights.Energy))
	p.KeyValue("Cost", subScore(p, b.SubScores.Cost, b.Weights.Cost))
	p.KeyValue("Safety", subScore(p, b.SubScores.Safety, b.Weights.Safety))
	p.KeyValue("Bonus", "+"+ux.Number(b.Bonus))
	p.KeyValue("Penalty", "-"+ux.Number(b.Penalty))

	if sa := res.Static; sa != nil {
		p.KeyValue("Files", ux.Count(sa.Complexity.Files))
		p.KeyValue("Lines", ux.Count(sa.Complexity.TotalLines))
		if sa.Safety != nil {
			p.KeyValue("Findings", findingCounts(sa.Safety))
		}
	}
	p.KeyValue("Duration", res.Duration.Round(time.Millisecond).String())

	if b.IsDegraded() {
		lines := make([]string, len(b.Degraded))
		for i, d := range b.Degraded {
			lines[i] = fmt.Sprintf("%s %s: %s", ux.IconBullet, d.Category, d.Reason)
		}
		p.WarningBox("Estimated categories", strings.Join(lines, "\n"))
	}

	if bonuses := b.Entries(engine.AuditBonus); len(bonuses) > 0 && p.Level() != ux.LevelMachine {
		names := make([]string, len(bonuses))
		for i, e := range bonuses {
			names[i] = fmt.Sprintf("%s (+%s)", e.Name, ux.Number(e.Points))
		}
		p.KeyValue("Bonuses", strings.Join(names, ", "))
	}

	if res.Gate.Enabled {
		msg := fmt.Sprintf("minimum score %s", ux.Number(res.Gate.MinScore))
		if res.Gate.Passed {
			p.Success(msg + " reached")
		} else {
			p.Error(msg + " not reached")
		}
	}
}

func subScore(p *ux.Printer, score, weight float64) string {
	s := fmt.Sprintf("%s (weight %s)", ux.Number(score), ux.Number(weight))
	if p.Level() == ux.LevelFull {
		return ux.ScoreBar(score, barWidth/2) + " " + s
	}
	return s
}

func findingCounts(m *safety.Metrics) string {
	parts := make([]string, 0, len(safety.Kinds))
	for _, k := range safety.Kinds {
		if n := m.Count(k); n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
