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

	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "config [path]",
		Short: "Validate and print the effective run configuration",
		Long: `Config resolves the configuration score would use for path: the
project's crabscore.yaml (or --config) with flag overrides applied. The
result is validated and printed as YAML.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(args)
			if err != nil {
				return err
			}
			cfg, source, err := flags.resolve(root, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			reg, err := loadRegistry(cfg.ProfilesFile)
			if err != nil {
				return err
			}
			if _, err := reg.Get(cfg.Profile); err != nil {
				return err
			}

			if source == "" {
				source = "defaults"
			}
			fmt.Fprintf(a.stdout, "# source: %s\n%s", source, cfg)
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}
