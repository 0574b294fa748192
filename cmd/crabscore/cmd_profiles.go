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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/crabscore/pkg/ux"
	"github.com/AleutianAI/crabscore/services/score/profile"
)

func newProfilesCmd(a *app) *cobra.Command {
	var (
		profilesFile string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List industry profiles and certification tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(profilesFile)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Default  string             `json:"default"`
					Profiles []*profile.Profile `json:"profiles"`
					Tiers    profile.TierTable  `json:"tiers"`
				}{reg.Default().Name, reg.Profiles(), reg.Tiers()})
			}

			printProfiles(a.printer(), reg)
			return nil
		},
	}
	cmd.Flags().StringVar(&profilesFile, "profiles-file", "", "YAML file with additional profiles")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func loadRegistry(path string) (*profile.Registry, error) {
	if path != "" {
		return profile.LoadFile(path)
	}
	return profile.LoadBuiltin()
}

func printProfiles(p *ux.Printer, reg *profile.Registry) {
	def := reg.Default().Name

	p.Title("Profiles")
	for _, pr := range reg.Profiles() {
		w := pr.Weights
		name := pr.Name
		if name == def {
			name += " (default)"
		}
		p.KeyValue(name, fmt.Sprintf("performance=%s energy=%s cost=%s safety=%s",
			ux.Number(w.Performance), ux.Number(w.Energy), ux.Number(w.Cost), ux.Number(w.Safety)))
	}

	p.Title("Certification tiers")
	for _, t := range reg.Tiers() {
		p.KeyValue(t.Name, ">= "+ux.Number(t.Min))
	}
}
