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
	"html/template"
	"io"
)

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>CrabScore Report</title>
<style>
body { background: #18191c; color: #f7f7f7; font-family: 'JetBrains Mono', monospace; padding: 2rem; }
h1 { color: #ff5522; text-align: center; }
.score { font-size: 2rem; text-align: center; }
table { border-collapse: collapse; width: 100%; margin-top: 1.5rem; }
th, td { border: 1px solid #333; padding: 6px 10px; text-align: left; }
th { background: #111; }
.degraded { color: #f0ad4e; }
.neg { color: #e06c75; }
.pos { color: #98c379; }
</style>
</head>
<body>
<h1>CRABSCORE REPORT</h1>

<div class="score">{{printf "%.1f" .Score.Overall}} / 100 &middot; {{.Score.Tier}}</div>
<p>Profile <strong>{{.Score.Profile}}</strong> &middot; {{.Root}} &middot; {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
{{if .Gate.Enabled}}<p>Gate: minimum {{printf "%.1f" .Gate.MinScore}}, {{if .Gate.Passed}}passed{{else}}<span class="neg">failed</span>{{end}}</p>{{end}}

<h2>Sub-scores</h2>
<table>
<tr><th>Category</th><th>Score</th><th>Weight</th></tr>
<tr><td>Performance</td><td>{{printf "%.1f" .Score.SubScores.Performance}}</td><td>{{printf "%.2f" .Score.Weights.Performance}}</td></tr>
<tr><td>Energy</td><td>{{printf "%.1f" .Score.SubScores.Energy}}</td><td>{{printf "%.2f" .Score.Weights.Energy}}</td></tr>
<tr><td>Cost</td><td>{{printf "%.1f" .Score.SubScores.Cost}}</td><td>{{printf "%.2f" .Score.Weights.Cost}}</td></tr>
<tr><td>Safety</td><td>{{printf "%.1f" .Score.SubScores.Safety}}</td><td>{{printf "%.2f" .Score.Weights.Safety}}</td></tr>
</table>
<p>Base {{printf "%.2f" .Score.Base}}, bonus <span class="pos">+{{printf "%.2f" .Score.Bonus}}</span>, penalty <span class="neg">-{{printf "%.2f" .Score.Penalty}}</span></p>

{{if .Score.Degraded}}
<h2 class="degraded">Estimated categories</h2>
<ul>
{{range .Score.Degraded}}<li class="degraded">{{.Category}}: {{.Reason}}</li>
{{end}}</ul>
{{end}}

<h2>Audit trail</h2>
<table>
<tr><th>Kind</th><th>Subject</th><th>Detail</th><th>Value</th><th>Points</th></tr>
{{range .Score.Audit}}<tr><td>{{.Kind}}</td><td>{{.Subject}}</td><td>{{.Name}}</td><td>{{printf "%.3g" .Value}}</td><td>{{printf "%+.2f" .Points}}</td></tr>
{{end}}</table>

{{with .Safety}}
<h2>Findings ({{len .Findings}})</h2>
{{if .Findings}}
<table>
<tr><th>Severity</th><th>Kind</th><th>Location</th><th>Rule</th><th>Message</th></tr>
{{range .Findings}}<tr><td>{{.Severity}}</td><td>{{.Kind}}</td><td>{{.File}}:{{.Span.StartLine}}</td><td>{{.Rule}}</td><td>{{.Message}}</td></tr>
{{end}}</table>
{{else}}
<p>No findings.</p>
{{end}}
{{end}}
</body>
</html>
`

var htmlReport = template.Must(template.New("report").Parse(htmlTemplate))

func writeHTML(w io.Writer, r *Report) error {
	if err := htmlReport.Execute(w, r); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
