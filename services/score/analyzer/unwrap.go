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

// unwrapSeverity maps each fallible-unwrap method to its severity.
//
// expect carries a message and is the least severe; the unchecked
// variants are undefined behaviour on the failure path.
var unwrapSeverity = map[string]safety.Severity{
	"expect":               safety.SeverityLow,
	"expect_err":           safety.SeverityLow,
	"unwrap":               safety.SeverityMedium,
	"unwrap_err":           safety.SeverityMedium,
	"unwrap_unchecked":     safety.SeverityHigh,
	"unwrap_err_unchecked": safety.SeverityHigh,
}

// checkUnwrapCall reports x.unwrap() and Option::unwrap(x) style calls.
func (s *fileScanner) checkUnwrapCall(n ast.Node) {
	if s.inTest() {
		return
	}
	fn := n.Field("function")
	if name := methodName(fn); name != "" {
		// Span from the method name so chained unwraps get distinct starts.
		s.reportUnwrapSpan(stripGeneric(fn).Field("field"), n, name)
		return
	}
	s.reportUnwrap(n, pathName(fn))
}

func (s *fileScanner) reportUnwrap(n ast.Node, name string) {
	sev, ok := unwrapSeverity[name]
	if !ok {
		return
	}
	msg := name + "() aborts on None or Err"
	if strings.HasSuffix(name, "_unchecked") {
		msg = name + "() is undefined behaviour on None or Err"
	}
	s.add(n, safety.KindFallibleUnwrap, sev, name, msg)
}

// checkTokenTree reports .unwrap(...) sequences inside macro arguments,
// which tree-sitter leaves as unparsed token trees.
func (s *fileScanner) checkTokenTree(n ast.Node) {
	if s.inTest() {
		return
	}
	count := n.ChildCount()
	for i := 1; i+1 < count; i++ {
		id := n.Child(i)
		if id == nil || id.Kind() != "identifier" {
			continue
		}
		if _, ok := unwrapSeverity[id.Text()]; !ok {
			continue
		}
		dot, args := n.Child(i-1), n.Child(i+1)
		if dot == nil || dot.Kind() != "." || args == nil || args.Kind() != "token_tree" {
			continue
		}
		if !strings.HasPrefix(args.Text(), "(") {
			continue
		}
		s.reportUnwrapSpan(id, args, id.Text())
	}
}

// reportUnwrapSpan reports an unwrap whose span runs from the method name
// to the end of its argument list.
func (s *fileScanner) reportUnwrapSpan(from, to ast.Node, name string) {
	before := len(s.findings)
	s.reportUnwrap(from, name)
	if len(s.findings) > before {
		end := to.Span()
		f := &s.findings[len(s.findings)-1]
		f.Span.EndLine = end.EndLine
		f.Span.EndCol = end.EndCol
	}
}
