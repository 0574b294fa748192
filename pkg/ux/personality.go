// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// EnvOutputLevel overrides terminal detection.
const EnvOutputLevel = "CRABSCORE_OUTPUT"

// Level defines the richness of CLI output.
type Level string

const (
	// LevelFull enables colors, boxes and the score bar.
	LevelFull Level = "full"

	// LevelMinimal uses icons and plain text.
	LevelMinimal Level = "minimal"

	// LevelMachine outputs tab-separated key/value lines for scripts.
	LevelMachine Level = "machine"
)

// ParseLevel converts a string to a Level. Unknown values select LevelFull.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "m":
		return LevelMinimal
	case "machine", "quiet", "q", "plain":
		return LevelMachine
	default:
		return LevelFull
	}
}

// DetectLevel picks the output level for f.
//
// Description:
//
//	CRABSCORE_OUTPUT wins when set. Otherwise a terminal gets LevelFull
//	and anything else (pipes, files, CI logs) gets LevelMachine.
func DetectLevel(f *os.File) Level {
	if env := os.Getenv(EnvOutputLevel); env != "" {
		return ParseLevel(env)
	}
	if IsTerminal(f) {
		return LevelFull
	}
	return LevelMachine
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
