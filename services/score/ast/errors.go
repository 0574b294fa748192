// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"errors"
	"fmt"
)

// Sentinel errors for parse failure conditions.
//
// These errors can be checked using errors.Is() to determine the
// category of failure without inspecting error messages.
var (
	// ErrSyntax indicates the source contains syntax errors. The tree-sitter
	// grammar still produced a tree, but it contains ERROR or MISSING nodes.
	ErrSyntax = errors.New("syntax error")

	// ErrInvalidContent indicates content that is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge indicates content above the parser's size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")

	// ErrUnreadable indicates the file could not be read from disk.
	ErrUnreadable = errors.New("file unreadable")

	// ErrParseFailed indicates the parser library itself failed.
	ErrParseFailed = errors.New("parse failed")
)

// ParseError provides detailed information about a parse failure.
//
// ParseError wraps one of the sentinel errors above with the location of
// the first problem in the file. The analyzer turns every ParseError into
// a parse_error finding; it never aborts a run.
//
// Example:
//
//	tree, err := parser.Parse(ctx, content, "src/lib.rs")
//	var parseErr *ParseError
//	if errors.As(err, &parseErr) {
//	    fmt.Printf("%s:%d: %s\n", parseErr.FilePath, parseErr.Line, parseErr.Message)
//	}
type ParseError struct {
	// FilePath is the slash-separated path relative to the project root.
	FilePath string

	// Line is the 1-indexed line of the first error, 0 if unknown.
	Line int

	// Column is the 0-indexed column of the first error.
	Column int

	// Message describes the error in human-readable form.
	Message string

	// Cause is the sentinel or underlying error.
	Cause error
}

// Error returns a formatted error message including file location.
//
// Format depends on available location information:
//   - With line and column: "lib.rs:10:5: unexpected token"
//   - With line only:       "lib.rs:10: unexpected token"
//   - Without location:     "lib.rs: unexpected token"
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a ParseError wrapping cause.
//
// Parameters:
//   - filePath: Path to the file where the error occurred.
//   - line: 1-indexed line number (0 if unknown).
//   - column: 0-indexed column number (0 if unknown).
//   - message: Human-readable error description.
//   - cause: Sentinel or underlying error.
func NewParseError(filePath string, line, column int, message string, cause error) *ParseError {
	return &ParseError{
		FilePath: filePath,
		Line:     line,
		Column:   column,
		Message:  message,
		Cause:    cause,
	}
}

// IsParseError checks if an error is or wraps a ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}
