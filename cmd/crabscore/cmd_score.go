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
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/crabscore/services/score/config"
	"github.com/AleutianAI/crabscore/services/score/pipeline"
	"github.com/AleutianAI/crabscore/services/score/report"
	"github.com/AleutianAI/crabscore/services/score/telemetry"
)

// runFlags are the flags shared by score and watch. Values only override
// the loaded configuration when the flag was set.
type runFlags struct {
	configPath   string
	profile      string
	profilesFile string
	minScore     float64
	exclude      []string
	timeout      time.Duration
	workers      int
	noCache      bool
	cacheDir     string
	noEnergy     bool
	benchBinary  string
	costTable    string
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "run configuration file (default <path>/"+config.DefaultFileName+" when present)")
	fs.StringVarP(&f.profile, "profile", "p", "", "industry profile (see 'crabscore profiles')")
	fs.StringVar(&f.profilesFile, "profiles-file", "", "YAML file with additional profiles, bonus tables or tiers")
	fs.Float64Var(&f.minScore, "min-score", 0, "fail with exit code 2 when the overall score is below this value")
	fs.StringSliceVarP(&f.exclude, "exclude", "e", nil, "additional glob patterns to skip (repeatable)")
	fs.DurationVar(&f.timeout, "timeout", 0, "per-provider timeout (default 30s)")
	fs.IntVar(&f.workers, "workers", 0, "parser workers (default number of CPUs)")
	fs.BoolVar(&f.noCache, "no-cache", false, "disable the finding cache")
	fs.StringVar(&f.cacheDir, "cache-dir", "", "enable the finding cache in this directory")
	fs.BoolVar(&f.noEnergy, "no-energy", false, "skip RAPL sampling and estimate energy")
	fs.StringVar(&f.benchBinary, "bench", "", "benchmark binary for the performance provider")
	fs.StringVar(&f.costTable, "cost-table", "", "YAML or JSON cost table for the cost provider")
}

// resolve loads the configuration for root and applies the flags that were
// set on fs.
//
// Outputs:
//   - config.RunConfig: The effective configuration, not yet validated.
//   - string: The configuration file used, empty for defaults.
//   - error: *config.ConfigError when the file cannot be loaded.
func (f *runFlags) resolve(root string, fs *pflag.FlagSet) (config.RunConfig, string, error) {
	var (
		cfg    config.RunConfig
		source string
		err    error
	)
	if f.configPath != "" {
		cfg, err = config.Load(f.configPath)
		source = f.configPath
	} else {
		var found bool
		cfg, found, err = config.LoadProject(root)
		if found {
			source = filepath.Join(root, config.DefaultFileName)
		}
	}
	if err != nil {
		return cfg, source, err
	}

	if fs.Changed("profile") {
		cfg.Profile = f.profile
	}
	if fs.Changed("profiles-file") {
		cfg.ProfilesFile = f.profilesFile
	}
	if fs.Changed("min-score") {
		cfg.MinScore = f.minScore
	}
	if fs.Changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, f.exclude...)
	}
	if fs.Changed("timeout") {
		cfg.ProviderTimeout = f.timeout
	}
	if fs.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fs.Changed("cache-dir") {
		cfg.Cache.Enabled = true
		cfg.Cache.Dir = f.cacheDir
	}
	if f.noCache {
		cfg.Cache.Enabled = false
	}
	if f.noEnergy {
		cfg.Energy.Disabled = true
	}
	if fs.Changed("bench") {
		cfg.Performance.Binary = f.benchBinary
	}
	if fs.Changed("cost-table") {
		cfg.Cost.Table = f.costTable
	}
	return cfg, source, nil
}

func projectRoot(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", config.NewConfigError(config.ErrUnreadableRoot, "root", "%v", err)
	}
	return abs, nil
}

func newScoreCmd(a *app) *cobra.Command {
	var (
		flags       runFlags
		format      string
		output      string
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "score [path]",
		Short: "Score a Rust project",
		Long: `Score analyzes the Rust sources under path (default ".") and prints
a summary, or writes a report when --format is given.

Categories whose provider is not configured or fails are scored from an
estimate and listed as degraded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var f report.Format
			if format != "" {
				parsed, err := report.ParseFormat(format)
				if err != nil {
					return &exitError{code: exitConfig, err: err}
				}
				f = parsed
			}

			root, err := projectRoot(args)
			if err != nil {
				return err
			}
			cfg, source, err := flags.resolve(root, cmd.Flags())
			if err != nil {
				return err
			}
			if source != "" {
				slog.Debug("loaded run configuration", slog.String("file", source))
			}

			res, err := pipeline.NewRunner().Run(cmd.Context(), root, cfg)
			if err != nil {
				return err
			}

			if metricsFile != "" {
				if err := telemetry.WriteTextfile(metricsFile, prometheus.DefaultGatherer); err != nil {
					slog.Warn("writing metrics file", slog.String("path", metricsFile), slog.String("error", err.Error()))
				}
			}

			switch {
			case f != "" && output != "":
				if err := report.WriteFile(output, res, f, version); err != nil {
					return err
				}
				printSummary(a.printer(), res)
				a.printer().Success(fmt.Sprintf("%s report written to %s", f, output))
			case f != "":
				if err := report.Write(a.stdout, res, f, version); err != nil {
					return err
				}
			default:
				printSummary(a.printer(), res)
			}

			return gateError(res)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&format, "format", "f", "", "report format (json, html, csrd, sbom, cra)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to this file instead of stdout")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics in textfile format after the run")
	return cmd
}

// gateError returns errGateFailed when the gate is enabled and failed.
func gateError(res *pipeline.Result) error {
	if res.Gate.Passed {
		return nil
	}
	return fmt.Errorf("%w: score %.1f is below %.1f", errGateFailed, res.Breakdown.Overall, res.Gate.MinScore)
}
