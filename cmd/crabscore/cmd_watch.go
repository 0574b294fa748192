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
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/crabscore/services/score/cache"
	"github.com/AleutianAI/crabscore/services/score/config"
	"github.com/AleutianAI/crabscore/services/score/pipeline"
	"github.com/AleutianAI/crabscore/services/score/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		flags       runFlags
		debounce    time.Duration
		minInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Re-score a project whenever its sources change",
		Long: `Watch scores the project once, then re-scores it after changes to
.rs files, Cargo.toml or crabscore.yaml. Runs never overlap and are spaced
at least --min-interval apart. Stop with Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(args)
			if err != nil {
				return err
			}
			s := &watchSession{app: a, root: root, flags: &flags, fs: cmd.Flags()}
			if err := s.reload(); err != nil {
				return err
			}
			defer s.close()

			w, err := watch.New(root, watch.Options{
				Debounce:    debounce,
				MinInterval: minInterval,
				Excludes:    s.cfg.Exclude,
			})
			if err != nil {
				return config.NewConfigError(config.ErrUnreadableRoot, "root", "%v", err)
			}

			ctx := cmd.Context()
			s.score(ctx)
			a.printer().Success(fmt.Sprintf("watching %s", root))

			err = w.Run(ctx, s.onChange)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "quiet period before a batch of changes is scored")
	cmd.Flags().DurationVar(&minInterval, "min-interval", 2*time.Second, "minimum time between two runs")
	return cmd
}

// watchSession carries the configuration and the finding cache across
// runs so unchanged files are not parsed again.
type watchSession struct {
	app   *app
	root  string
	flags *runFlags
	fs    *pflag.FlagSet

	cfg   config.RunConfig
	cache *cache.FindingCache
}

// reload resolves the configuration and opens the cache it names. The
// previous cache is closed first.
func (s *watchSession) reload() error {
	cfg, _, err := s.flags.resolve(s.root, s.fs)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.close()
	if cfg.Cache.Enabled {
		fc, err := cache.Open(cache.DefaultStoreConfig(cfg.Cache.Dir))
		if err != nil {
			return config.NewConfigError(config.ErrInvalidConfig, "cache.dir", "open %s: %v", cfg.Cache.Dir, err)
		}
		s.cache = fc
	}
	s.cfg = cfg
	return nil
}

func (s *watchSession) close() {
	if s.cache == nil {
		return
	}
	if err := s.cache.Close(); err != nil {
		slog.Warn("closing finding cache", slog.String("error", err.Error()))
	}
	s.cache = nil
}

// score runs the pipeline and prints the result. Failures are printed and
// the session continues.
func (s *watchSession) score(ctx context.Context) {
	var opts []pipeline.Option
	if s.cache != nil {
		opts = append(opts, pipeline.WithCache(s.cache))
	}

	res, err := pipeline.NewRunner(opts...).Run(ctx, s.root, s.cfg)
	if err != nil {
		if ctx.Err() == nil {
			s.app.printer().Error(err.Error())
		}
		return
	}
	printSummary(s.app.printer(), res)
}

func (s *watchSession) onChange(ctx context.Context, changes []watch.Change) error {
	for _, c := range changes {
		if c.Path == config.DefaultFileName && s.flags.configPath == "" {
			if err := s.reload(); err != nil {
				return fmt.Errorf("reloading %s: %w", config.DefaultFileName, err)
			}
			break
		}
	}

	slog.Info("re-scoring", slog.Int("changes", len(changes)))
	s.score(ctx)
	return nil
}
