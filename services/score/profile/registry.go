// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package profile provides the industry profile registry together with
// the bonus tables, penalty policies and certification tiers profiles
// refer to.
//
// The built-in definitions are embedded YAML parsed once per process.
// A Registry is immutable after NewRegistry returns and is passed by
// pointer to the scoring engine.
//
// Thread Safety:
//
//	All exported functions and types are safe for concurrent use.
package profile

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/crabscore/services/score/config"
)

// MaxFileSize is the largest profile file LoadFile accepts (1MB).
const MaxFileSize = 1024 * 1024

//go:embed builtin/*.yaml
var builtinFS embed.FS

// builtinFiles are merged in this order.
var builtinFiles = []string{"builtin/profiles.yaml", "builtin/policy.yaml"}

// Registry maps profile names to profiles.
//
// Thread Safety: Safe for concurrent use; never modified after creation.
type Registry struct {
	// profiles is keyed by normalized name and alias.
	profiles map[string]*Profile

	// names holds canonical names, sorted.
	names []string

	defaultName string
	tiers       TierTable
	doc         Document
}

var (
	builtinOnce sync.Once
	builtinReg  *Registry
	builtinErr  error
)

// LoadBuiltin returns the registry of built-in profiles.
//
// The embedded files are parsed on the first call only.
func LoadBuiltin() (*Registry, error) {
	builtinOnce.Do(func() {
		doc, err := builtinDocument()
		if err != nil {
			builtinErr = err
			return
		}
		builtinReg, builtinErr = NewRegistry(doc)
	})
	return builtinReg, builtinErr
}

func builtinDocument() (Document, error) {
	var doc Document
	for _, name := range builtinFiles {
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return Document{}, fmt.Errorf("reading embedded %s: %w", name, err)
		}
		part, err := decode(data, name)
		if err != nil {
			return Document{}, err
		}
		doc = overlay(doc, part)
	}
	return doc, nil
}

// LoadFile returns the built-in registry extended with the profiles and
// policies of a user YAML file.
//
// Description:
//
//	Entries in the file replace built-in entries of the same name. A
//	tiers section replaces the whole certification table. The merged
//	result is validated as a whole, so a user profile may reference a
//	built-in bonus table and vice versa.
//
// Outputs:
//   - *Registry: The merged registry.
//   - error: *config.ConfigError for unreadable, oversized, malformed or
//     invalid files.
func LoadFile(path string) (*Registry, error) {
	base, err := LoadBuiltin()
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, config.NewConfigError(config.ErrInvalidConfig, "profiles_file", "stat %s: %v", path, err)
	}
	if info.Size() > MaxFileSize {
		return nil, config.NewConfigError(config.ErrInvalidConfig, "profiles_file",
			"%s is too large: %d bytes (max %d)", path, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, config.NewConfigError(config.ErrInvalidConfig, "profiles_file", "read %s: %v", path, err)
	}

	user, err := decode(data, path)
	if err != nil {
		return nil, err
	}

	reg, err := NewRegistry(overlay(base.doc, user))
	if err != nil {
		return nil, err
	}
	slog.Debug("loaded profile file",
		slog.String("path", path),
		slog.Int("profiles", len(user.Profiles)),
		slog.Int("registered", len(reg.names)))
	return reg, nil
}

// decode parses one YAML document, rejecting unknown fields.
func decode(data []byte, source string) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, config.NewConfigError(config.ErrInvalidConfig, "profiles_file", "parse %s: %v", source, err)
	}
	return doc, nil
}

// overlay returns base with the entries of top added or replaced by name.
func overlay(base, top Document) Document {
	out := Document{
		Default:     base.Default,
		Profiles:    replaceByName(base.Profiles, top.Profiles, func(p Profile) string { return normalize(p.Name) }),
		BonusTables: replaceByName(base.BonusTables, top.BonusTables, func(t BonusTable) string { return t.Name }),
		Penalties:   replaceByName(base.Penalties, top.Penalties, func(p PenaltyPolicy) string { return p.Name }),
		Tiers:       base.Tiers,
	}
	if top.Default != "" {
		out.Default = top.Default
	}
	if len(top.Tiers) > 0 {
		out.Tiers = top.Tiers
	}
	return out
}

func replaceByName[T any](base, top []T, key func(T) string) []T {
	out := make([]T, 0, len(base)+len(top))
	replaced := make(map[string]bool, len(top))
	for _, t := range top {
		replaced[key(t)] = true
	}
	for _, b := range base {
		if !replaced[key(b)] {
			out = append(out, b)
		}
	}
	return append(out, top...)
}

// NewRegistry validates doc and builds a registry from it.
//
// Description:
//
//	Every profile must have weights summing to 1 within WeightEpsilon and
//	must reference an existing bonus table and penalty policy. Bonus tiers
//	are sorted by points descending and the certification table by Min
//	descending. The registry deep-copies doc; later changes to doc have
//	no effect.
//
// Outputs:
//   - *Registry: The registry. Nil on error.
//   - error: *config.ConfigError wrapping ErrInvalidWeights,
//     ErrInvalidThresholds, ErrUnknownProfile or ErrInvalidConfig.
func NewRegistry(doc Document) (*Registry, error) {
	doc = clone(doc)
	if err := validateDocument(&doc); err != nil {
		return nil, err
	}

	tables := make(map[string]*BonusTable, len(doc.BonusTables))
	for i := range doc.BonusTables {
		tables[doc.BonusTables[i].Name] = &doc.BonusTables[i]
	}
	penalties := make(map[string]*PenaltyPolicy, len(doc.Penalties))
	for i := range doc.Penalties {
		penalties[doc.Penalties[i].Name] = &doc.Penalties[i]
	}

	r := &Registry{
		profiles: make(map[string]*Profile, len(doc.Profiles)*2),
		tiers:    TierTable(doc.Tiers),
		doc:      doc,
	}
	for i := range doc.Profiles {
		p := doc.Profiles[i]
		p.Bonus = tables[orStandard(p.BonusTableName)]
		p.Penalty = penalties[orStandard(p.PenaltyName)]

		r.profiles[normalize(p.Name)] = &p
		for _, alias := range p.Aliases {
			r.profiles[normalize(alias)] = &p
		}
		r.names = append(r.names, p.Name)
	}
	sort.Strings(r.names)

	def, ok := r.profiles[normalize(doc.Default)]
	if !ok {
		return nil, config.NewConfigError(config.ErrUnknownProfile, "default", "default profile %q is not defined", doc.Default)
	}
	r.defaultName = def.Name
	return r, nil
}

// Get returns the profile registered under name or one of its aliases.
// An empty name selects the default profile.
//
// Outputs:
//   - *Profile: Shared, read-only profile.
//   - error: *config.ConfigError wrapping ErrUnknownProfile.
func (r *Registry) Get(name string) (*Profile, error) {
	if strings.TrimSpace(name) == "" {
		return r.Default(), nil
	}
	p, ok := r.profiles[normalize(name)]
	if !ok {
		return nil, config.NewConfigError(config.ErrUnknownProfile, "profile",
			"%q is not registered (available: %s)", name, strings.Join(r.names, ", "))
	}
	return p, nil
}

// Default returns the default profile.
func (r *Registry) Default() *Profile {
	return r.profiles[normalize(r.defaultName)]
}

// Names returns the canonical profile names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Profiles returns every profile, sorted by name.
func (r *Registry) Profiles() []*Profile {
	out := make([]*Profile, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.profiles[normalize(n)])
	}
	return out
}

// Tiers returns the certification table, highest band first.
func (r *Registry) Tiers() TierTable {
	return r.tiers
}

// normalize folds case and drops '-', '_' and spaces so that
// "WebServices", "web_services" and "web-services" are the same key.
func normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r == '-' || r == '_' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func orStandard(name string) string {
	if name == "" {
		return StandardPolicy
	}
	return name
}

// clone deep-copies the slices of doc that NewRegistry sorts or keeps.
func clone(doc Document) Document {
	out := doc
	out.Profiles = make([]Profile, len(doc.Profiles))
	for i, p := range doc.Profiles {
		p.Aliases = append([]string(nil), p.Aliases...)
		p.Bonus, p.Penalty = nil, nil
		out.Profiles[i] = p
	}
	out.BonusTables = make([]BonusTable, len(doc.BonusTables))
	for i, t := range doc.BonusTables {
		rules := make([]BonusRule, len(t.Rules))
		for j, r := range t.Rules {
			r.Tiers = append([]BonusTier(nil), r.Tiers...)
			rules[j] = r
		}
		t.Rules = rules
		out.BonusTables[i] = t
	}
	out.Penalties = append([]PenaltyPolicy(nil), doc.Penalties...)
	out.Tiers = append([]Tier(nil), doc.Tiers...)
	return out
}
