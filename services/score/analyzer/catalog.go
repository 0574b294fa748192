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
	"regexp"
	"strings"

	"github.com/AleutianAI/crabscore/services/score/safety"
)

// CatalogVersion identifies the detector set. It is part of every cache
// key, so bumping it invalidates cached findings.
const CatalogVersion = "2026.10"

// VulnerabilityPattern describes one catalog entry.
//
// Thread Safety:
//
//	VulnerabilityPattern is an immutable value type, safe for concurrent use.
type VulnerabilityPattern struct {
	// ID is the rule identifier recorded on findings (e.g. RS-001).
	ID string

	// Name is a short snake_case name.
	Name string

	// CWE is the Common Weakness Enumeration ID.
	CWE string

	// Severity is the default severity. Detectors may raise or lower it.
	Severity safety.Severity

	Description string
	Remediation string
}

// Catalog lists the vulnerability patterns in ID order.
var Catalog = []VulnerabilityPattern{
	{
		ID:          "RS-001",
		Name:        "unchecked_deserialization",
		CWE:         "CWE-502",
		Severity:    safety.SeverityMedium,
		Description: "Deserialization of external data; high when the result is unwrapped immediately",
		Remediation: "Propagate the error with ? and bound input size before decoding",
	},
	{
		ID:          "RS-002",
		Name:        "command_injection",
		CWE:         "CWE-78",
		Severity:    safety.SeverityHigh,
		Description: "Process spawned from a non-literal program name, a shell, or a formatted argument",
		Remediation: "Use a fixed program path and pass untrusted values as separate arguments",
	},
	{
		ID:          "RS-003",
		Name:        "hardcoded_credential",
		CWE:         "CWE-798",
		Severity:    safety.SeverityHigh,
		Description: "Credential-shaped string literal in source",
		Remediation: "Load secrets from the environment or a secret manager",
	},
	{
		ID:          "RS-004",
		Name:        "sql_format",
		CWE:         "CWE-89",
		Severity:    safety.SeverityMedium,
		Description: "SQL statement built with format!",
		Remediation: "Use bound query parameters",
	},
	{
		ID:          "RS-005",
		Name:        "transmute",
		CWE:         "CWE-843",
		Severity:    safety.SeverityHigh,
		Description: "mem::transmute reinterprets bits without type checking",
		Remediation: "Prefer from_ne_bytes, pointer casts or bytemuck-style safe conversions",
	},
}

// Pattern returns the catalog entry for id.
func Pattern(id string) (VulnerabilityPattern, bool) {
	for _, p := range Catalog {
		if p.ID == id {
			return p, true
		}
	}
	return VulnerabilityPattern{}, false
}

// deserializers are path suffixes of decoding entry points (RS-001).
var deserializers = []string{
	"serde_json::from_str",
	"serde_json::from_slice",
	"serde_json::from_reader",
	"serde_json::from_value",
	"serde_yaml::from_str",
	"serde_yaml::from_slice",
	"serde_yaml::from_reader",
	"bincode::deserialize",
	"bincode::deserialize_from",
	"rmp_serde::from_slice",
	"rmp_serde::from_read",
	"ron::from_str",
	"toml::from_str",
	"postcard::from_bytes",
	"ciborium::from_reader",
}

// shells are program names that interpret their arguments (RS-002).
var shells = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "fish": true,
	"cmd": true, "powershell": true, "pwsh": true,
}

// credentialPattern is a secret shape matched against literal contents (RS-003).
type credentialPattern struct {
	Type    string
	Pattern *regexp.Regexp
}

var credentialPatterns = []credentialPattern{
	{"aws_access_key", regexp.MustCompile(`(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`)},
	{"private_key", regexp.MustCompile(`-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY`)},
	{"github_token", regexp.MustCompile(`(?:ghp|gho|ghu|ghs|ghr)_[a-zA-Z0-9]{36,}`)},
	{"github_pat", regexp.MustCompile(`github_pat_[a-zA-Z0-9]{22}_[a-zA-Z0-9]{59}`)},
	{"slack_token", regexp.MustCompile(`xox[baprs]-[0-9a-zA-Z-]{10,}`)},
	{"stripe_key", regexp.MustCompile(`(?:sk|pk)_(?:live|test)_[0-9a-zA-Z]{24,}`)},
	{"gcp_api_key", regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`)},
	{"database_url", regexp.MustCompile(`(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^:/\s@]+:[^@/\s]+@`)},
}

// credentialNames are binding-name fragments that mark a literal as a secret.
var credentialNames = []string{"password", "passwd", "secret", "token", "api_key", "apikey"}

// minCredentialLen is the shortest literal a named binding is reported for.
const minCredentialLen = 8

// falsePositiveHints mark literals that are documentation, not secrets.
var falsePositiveHints = []string{"example", "placeholder", "changeme", "xxxx", "dummy", "<", "${"}

func looksLikePlaceholder(s string) bool {
	lower := strings.ToLower(s)
	for _, hint := range falsePositiveHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// matchCredential returns the type of the first credential pattern that
// matches s, ignoring placeholders.
func matchCredential(s string) (string, bool) {
	if looksLikePlaceholder(s) {
		return "", false
	}
	for _, p := range credentialPatterns {
		if p.Pattern.MatchString(s) {
			return p.Type, true
		}
	}
	return "", false
}

// sqlStatement matches the start of a DML statement (RS-004).
var sqlStatement = regexp.MustCompile(`(?is)\b(?:select\b.+\bfrom|insert\s+into|update\s+\S+\s+set|delete\s+from)\b`)
