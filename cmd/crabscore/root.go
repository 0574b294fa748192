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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/crabscore/pkg/logging"
	"github.com/AleutianAI/crabscore/pkg/ux"
	"github.com/AleutianAI/crabscore/services/score/config"
	"github.com/AleutianAI/crabscore/services/score/telemetry"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitGate    = 2
	exitConfig  = 3
)

// shutdownTimeout bounds telemetry flushing on exit.
const shutdownTimeout = 5 * time.Second

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// errGateFailed marks a run whose score is below --min-score.
var errGateFailed = errors.New("minimum score not reached")

// app holds process-wide state shared by the subcommands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	logLevel    string
	logJSON     bool
	logDir      string
	outputLevel string

	logger   *logging.Logger
	shutdown func(context.Context) error
}

// printer returns a ux.Printer for stdout at the selected output level.
func (a *app) printer() *ux.Printer {
	level := ux.LevelMachine
	switch {
	case a.outputLevel != "":
		level = ux.ParseLevel(a.outputLevel)
	case a.stdout == os.Stdout:
		level = ux.DetectLevel(os.Stdout)
	}
	return ux.NewPrinter(a.stdout, level)
}

// setup installs the default logger and telemetry providers.
func (a *app) setup(ctx context.Context) error {
	level, ok := logging.ParseLevel(a.logLevel)
	if !ok {
		return &exitError{code: exitConfig, err: fmt.Errorf("unknown log level %q", a.logLevel)}
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  a.logDir,
		Service: "crabscore",
		JSON:    a.logJSON,
		Output:  a.stderr,
	})
	slog.SetDefault(a.logger.Slog())

	tcfg := telemetry.DefaultConfig(version)
	tcfg.Writer = a.stderr
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return &exitError{code: exitConfig, err: fmt.Errorf("telemetry: %w", err)}
	}
	a.shutdown = shutdown
	return nil
}

// close flushes telemetry and closes the log file.
func (a *app) close() {
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
		cancel()
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "crabscore",
		Short: "Score Rust projects for performance, energy, cost and safety",
		Long: `CrabScore analyzes a Rust project, collects runtime metrics where
they are available and combines them into a single 0-100 score weighted
for an industry profile, with a certification tier and an audit trail.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.BoolVar(&a.logJSON, "log-json", false, "write logs as JSON")
	pf.StringVar(&a.logDir, "log-dir", "", "also write daily JSON log files to this directory")
	pf.StringVar(&a.outputLevel, "output-style", "", "terminal output style (full, minimal, machine); detected by default")

	root.AddCommand(
		newScoreCmd(a),
		newWatchCmd(a),
		newProfilesCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the crabscore version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "crabscore %s\n", version)
		},
	}
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(stderr, "crabscore: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var ee *exitError
	switch {
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, errGateFailed):
		return exitGate
	case config.IsConfigError(err):
		return exitConfig
	default:
		return exitFailure
	}
}
