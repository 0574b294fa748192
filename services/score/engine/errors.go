// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"fmt"
)

// ErrInvariant is wrapped by every InvariantError.
var ErrInvariant = errors.New("scoring invariant violated")

// InvariantError reports a value outside its contract, such as a
// sub-score outside [0,100] or a non-finite intermediate result.
//
// It marks a defect in a provider or in the analyzer, never a user error,
// and no Breakdown is produced alongside it.
type InvariantError struct {
	// Field names the offending value (e.g. "performance", "overall").
	Field string

	Value float64

	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%v: %s = %v: %s", ErrInvariant, e.Field, e.Value, e.Reason)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

// IsInvariantError reports whether err is or wraps an InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
