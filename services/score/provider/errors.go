// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for provider failures.
var (
	// ErrNotConfigured means no provider is registered for a category.
	ErrNotConfigured = errors.New("not_configured")

	// ErrTimeout means the provider did not return before its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrUnavailable means the measurement source does not exist on this host.
	ErrUnavailable = errors.New("unavailable")

	// ErrCategoryMismatch means a provider returned a sample for another category.
	ErrCategoryMismatch = errors.New("category_mismatch")

	// ErrOutOfContract means a sample's sub-score is outside [0,100] or not finite.
	ErrOutOfContract = errors.New("out_of_contract")
)

// ProviderError records why a category could not be measured.
//
// Description:
//
//	ProviderError is recoverable: the collector substitutes the fallback
//	estimate for the category and records a Degraded entry. It is fatal
//	only for a required category.
type ProviderError struct {
	Provider string
	Category Category
	Cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("provider for %s: %v", e.Category, e.Cause)
	}
	return fmt.Sprintf("provider %s (%s): %v", e.Provider, e.Category, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Reason returns the short machine-readable failure reason.
func (e *ProviderError) Reason() string {
	for _, sentinel := range []error{ErrNotConfigured, ErrTimeout, ErrUnavailable, ErrCategoryMismatch, ErrOutOfContract} {
		if errors.Is(e.Cause, sentinel) {
			return sentinel.Error()
		}
	}
	return "failed"
}

// IsProviderError reports whether err is or wraps a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
