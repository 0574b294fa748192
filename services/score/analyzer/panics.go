// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzer

import (
	"strings"

	"github.com/AleutianAI/crabscore/services/score/ast"
	"github.com/AleutianAI/crabscore/services/score/safety"
)

// branchKinds are the node kinds that make a panic conditional.
var branchKinds = []string{"match_arm", "if_expression", "else_clause"}

// checkMacro dispatches panic macros and the format! SQL check.
func (s *fileScanner) checkMacro(n ast.Node, ancestors []ast.Node) {
	name := macroName(n)

	if name == "format" {
		s.checkSQLFormat(n)
		return
	}
	if s.inTest() {
		return
	}

	switch name {
	case "panic", "todo", "unimplemented":
		sev := safety.SeverityHigh
		if enclosing(ancestors, branchKinds...) {
			sev = safety.SeverityMedium
		}
		s.add(n, safety.KindPanicPoint, sev, name, name+"! aborts the thread")
	case "unreachable":
		sev := safety.SeverityMedium
		if enclosing(ancestors, "match_arm") {
			sev = safety.SeverityLow
		}
		s.add(n, safety.KindPanicPoint, sev, name, "unreachable! aborts if reached")
	case "assert", "assert_eq", "assert_ne":
		s.add(n, safety.KindPanicPoint, safety.SeverityMedium, name, name+"! aborts when the condition fails")
	case "debug_assert", "debug_assert_eq", "debug_assert_ne":
		s.add(n, safety.KindPanicPoint, safety.SeverityLow, name, name+"! aborts in debug builds")
	}
}

// checkIndex reports slice and map indexing, which aborts when out of bounds.
func (s *fileScanner) checkIndex(n ast.Node) {
	if s.inTest() {
		return
	}
	children := ast.NamedChildren(n)
	if len(children) < 2 {
		return
	}
	idx := children[len(children)-1]

	switch {
	case idx.Kind() == "range_expression" && strings.TrimSpace(idx.Text()) == "..":
		return
	case idx.Kind() == "integer_literal":
		s.add(n, safety.KindPanicPoint, safety.SeverityLow, "index", "constant index may be out of bounds")
	default:
		s.add(n, safety.KindPanicPoint, safety.SeverityMedium, "index", "index may be out of bounds")
	}
}

// checkDivision reports integer division and remainder by a value that
// may be zero. Float operands and non-zero integer literals are skipped.
func (s *fileScanner) checkDivision(n ast.Node) {
	if s.inTest() {
		return
	}
	op := n.Field("operator")
	if op == nil {
		return
	}

	var rule string
	switch op.Text() {
	case "/", "/=":
		rule = "division"
	case "%", "%=":
		rule = "remainder"
	default:
		return
	}

	left, right := n.Field("left"), n.Field("right")
	if right == nil || isFloatOperand(left) || isFloatOperand(right) {
		return
	}

	if right.Kind() == "integer_literal" {
		if isZeroLiteral(right.Text()) {
			s.add(n, safety.KindPanicPoint, safety.SeverityHigh, rule, rule+" by literal zero")
		}
		return
	}
	s.add(n, safety.KindPanicPoint, safety.SeverityMedium, rule, rule+" by a value that may be zero")
}

// isFloatOperand reports whether n is syntactically a float: a float
// literal, a negated one, or a cast to f32/f64.
func isFloatOperand(n ast.Node) bool {
	if n == nil {
		return false
	}
	switch n.Kind() {
	case "float_literal":
		return true
	case "unary_expression", "parenthesized_expression":
		for _, c := range ast.NamedChildren(n) {
			if isFloatOperand(c) {
				return true
			}
		}
	case "type_cast_expression":
		if t := n.Field("type"); t != nil {
			return t.Text() == "f32" || t.Text() == "f64"
		}
	}
	return false
}

// integerSuffixes are the type suffixes an integer literal may carry.
var integerSuffixes = []string{"i128", "u128", "isize", "usize", "i64", "u64", "i32", "u32", "i16", "u16", "i8", "u8"}

// isZeroLiteral reports whether an integer literal denotes zero in any base.
func isZeroLiteral(text string) bool {
	s := strings.ToLower(strings.ReplaceAll(text, "_", ""))
	for _, suffix := range integerSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	for _, prefix := range []string{"0x", "0o", "0b"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	return s != "" && strings.Trim(s, "0") == ""
}
