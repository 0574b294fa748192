// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package walker

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/AleutianAI/crabscore/services/score/config"
)

// DefaultExcludes are applied when the caller passes no patterns.
var DefaultExcludes = config.DefaultExcludes

// Matcher decides whether a slash-separated relative path is excluded.
//
// Patterns use doublestar syntax:
//   - * matches any sequence of non-separator characters
//   - ** matches any sequence of path segments, including none
//   - ? matches any single non-separator character
//   - [abc] and {a,b} match alternatives
//
// A pattern without a separator also matches against the base name, so
// "*.generated.rs" excludes generated files in every directory.
//
// Thread Safety: Matcher is safe for concurrent use after creation.
type Matcher struct {
	excludes []string
}

// NewMatcher creates a matcher over the given exclude patterns. Invalid
// patterns never match; config validation rejects them earlier.
func NewMatcher(excludes []string) *Matcher {
	cleaned := make([]string, 0, len(excludes))
	for _, p := range excludes {
		p = strings.TrimPrefix(strings.TrimSpace(p), "./")
		if p != "" && doublestar.ValidatePattern(p) {
			cleaned = append(cleaned, p)
		}
	}
	return &Matcher{excludes: cleaned}
}

// Excluded reports whether relPath matches any exclude pattern.
func (m *Matcher) Excluded(relPath string) bool {
	for _, pattern := range m.excludes {
		if matchGlob(pattern, relPath) {
			return true
		}
	}
	return false
}

// ExcludesDir reports whether an entire directory can be skipped.
//
// A directory is skipped when the directory itself matches, or when a
// "dir/**" pattern covers it.
func (m *Matcher) ExcludesDir(relDir string) bool {
	return m.Excluded(relDir)
}

// matchGlob matches a slash path against a pattern. "dir/**" also matches
// dir itself, and patterns without a separator match the base name.
func matchGlob(pattern, name string) bool {
	if doublestar.MatchUnvalidated(pattern, name) {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok && doublestar.MatchUnvalidated(prefix, name) {
		return true
	}
	if !strings.Contains(pattern, "/") {
		return doublestar.MatchUnvalidated(pattern, path.Base(name))
	}
	return false
}
