// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration failures.
//
// Every ConfigError wraps exactly one of these so callers can branch
// with errors.Is without inspecting messages.
var (
	// ErrUnknownProfile indicates a profile name that is not registered.
	ErrUnknownProfile = errors.New("unknown profile")

	// ErrInvalidWeights indicates profile weights that do not sum to 1.0.
	ErrInvalidWeights = errors.New("profile weights must sum to 1.0")

	// ErrInvalidThresholds indicates a malformed bonus or certification table.
	ErrInvalidThresholds = errors.New("invalid threshold table")

	// ErrUnreadableRoot indicates the project root cannot be enumerated.
	ErrUnreadableRoot = errors.New("project root is not readable")

	// ErrInvalidConfig indicates a run configuration that failed validation.
	ErrInvalidConfig = errors.New("invalid run configuration")
)

// ConfigError describes a fatal configuration problem.
//
// Description:
//
//	ConfigError is returned before any scoring work starts. A run that
//	fails with a ConfigError never produces a score, partial or otherwise.
//
// Example:
//
//	var cfgErr *config.ConfigError
//	if errors.As(err, &cfgErr) {
//	    fmt.Fprintf(os.Stderr, "config: %s: %s\n", cfgErr.Field, cfgErr.Reason)
//	}
type ConfigError struct {
	// Field names the offending setting (e.g. "profile", "weights.safety").
	Field string

	// Reason is a human-readable explanation.
	Reason string

	// Cause is the sentinel or underlying error.
	Cause error
}

// Error returns "config <field>: <reason>".
func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a ConfigError with a formatted reason.
func NewConfigError(cause error, field, format string, args ...any) *ConfigError {
	return &ConfigError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
		Cause:  cause,
	}
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
