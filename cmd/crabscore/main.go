// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command crabscore scores a Rust project for performance, energy, cost and
// safety against an industry profile.
//
// Usage:
//
//	crabscore score [path]
//	crabscore score --profile financial --min-score 80 .
//	crabscore score --format html --output report.html .
//	crabscore watch [path]
//	crabscore profiles
//	crabscore config [path]
//	crabscore version
//
// Exit codes:
//
//	0  scored (gate passed or disabled)
//	1  runtime failure or cancellation
//	2  minimum-score gate failed
//	3  configuration error
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
