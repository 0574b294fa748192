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
	"context"
	"strings"

	"github.com/AleutianAI/crabscore/services/score/ast"
	"github.com/AleutianAI/crabscore/services/score/safety"
)

// fileCounts are the syntax-derived complexity counts of one file.
type fileCounts struct {
	Functions     int `json:"functions"`
	TestFunctions int `json:"test_functions"`
	Modules       int `json:"modules"`
	DocLines      int `json:"doc_lines"`
}

// fileScanner runs every detector and the complexity pass in one walk.
//
// It is owned by a single worker and never shared.
type fileScanner struct {
	path     string
	findings []safety.Finding
	counts   fileCounts

	// testDepth is the ancestor depth of the enclosing test item, or -1.
	testDepth int
}

// scanTree walks root once and returns its findings and counts.
func scanTree(ctx context.Context, path string, root ast.Node) ([]safety.Finding, fileCounts, error) {
	s := &fileScanner{path: path, testDepth: -1}
	if err := ast.Walk(ctx, root, s.visit); err != nil {
		return nil, fileCounts{}, err
	}
	return s.findings, s.counts, nil
}

func (s *fileScanner) visit(n ast.Node, ancestors []ast.Node) bool {
	depth := len(ancestors)
	if s.testDepth >= 0 && depth <= s.testDepth {
		s.testDepth = -1
	}

	switch n.Kind() {
	case "function_item":
		s.counts.Functions++
		if isTestItem(n) {
			s.counts.TestFunctions++
			s.enterTest(depth)
		}
		s.checkUnsafeItem(n)
	case "mod_item":
		s.counts.Modules++
		if isTestItem(n) {
			s.enterTest(depth)
		}
	case "inner_attribute_item":
		if isTestAttribute(attributeBody(n, "#![")) {
			s.enterTest(enclosingDepth(ancestors))
		}
		return false
	case "line_comment", "block_comment":
		s.counts.DocLines += docLines(n)
		return false
	case "unsafe_block":
		s.checkUnsafeBlock(n)
	case "impl_item", "trait_item", "function_signature_item":
		s.checkUnsafeItem(n)
	case "call_expression":
		s.checkUnwrapCall(n)
		s.checkDangerousCall(n, ancestors)
	case "macro_invocation":
		s.checkMacro(n, ancestors)
	case "token_tree":
		s.checkTokenTree(n)
	case "index_expression":
		s.checkIndex(n)
	case "binary_expression", "compound_assignment_expr":
		s.checkDivision(n)
	case "string_literal", "raw_string_literal":
		s.checkCredentialLiteral(n)
		return false
	case "let_declaration", "const_item", "static_item":
		s.checkCredentialBinding(n)
	}
	return true
}

func (s *fileScanner) enterTest(depth int) {
	if s.testDepth < 0 {
		s.testDepth = depth
	}
}

// inTest reports whether the current node is inside test-only code.
func (s *fileScanner) inTest() bool {
	return s.testDepth >= 0
}

func (s *fileScanner) add(n ast.Node, kind safety.Kind, sev safety.Severity, rule, msg string) {
	s.findings = append(s.findings, safety.Finding{
		Kind:     kind,
		File:     s.path,
		Span:     n.Span(),
		Severity: sev,
		Rule:     rule,
		Message:  msg,
	})
}

// testAttributes are attribute bodies that mark an item as test-only.
// Parameterized forms such as tokio::test(flavor = "multi_thread") match
// by prefix.
var testAttributes = []string{
	"test",
	"tokio::test",
	"async_std::test",
	"actix_rt::test",
	"rstest",
	"test_case",
	"quickcheck",
	"bench",
	"cfg(test)",
}

// isTestItem reports whether the outer attributes of n mark it as test code.
func isTestItem(n ast.Node) bool {
	for _, attr := range outerAttributes(n) {
		if isTestAttribute(attr) {
			return true
		}
	}
	return false
}

func isTestAttribute(body string) bool {
	for _, t := range testAttributes {
		if body == t || strings.HasPrefix(body, t+"(") {
			return true
		}
	}
	return false
}

// enclosingDepth returns the depth of the item an inner attribute applies
// to. At file level that is the root; inside a module body it is the
// mod_item that owns the declaration list.
func enclosingDepth(ancestors []ast.Node) int {
	depth := len(ancestors) - 1
	if depth > 0 && ancestors[depth].Kind() == "declaration_list" {
		depth--
	}
	return depth
}

// attributeBody strips the attribute delimiters and all whitespace.
func attributeBody(n ast.Node, open string) string {
	body := strings.Join(strings.Fields(n.Text()), "")
	body = strings.TrimPrefix(body, open)
	return strings.TrimSuffix(body, "]")
}

// outerAttributes returns the bodies of the #[...] attributes directly
// preceding n, with whitespace removed. Comments between attributes are
// skipped.
func outerAttributes(n ast.Node) []string {
	var attrs []string
	for p := n.Prev(); p != nil; p = p.Prev() {
		switch p.Kind() {
		case "attribute_item":
			attrs = append(attrs, attributeBody(p, "#["))
		case "line_comment", "block_comment":
		default:
			return attrs
		}
	}
	return attrs
}

// docLines returns the number of documentation lines a comment contributes.
func docLines(n ast.Node) int {
	text := n.Text()
	switch {
	case strings.HasPrefix(text, "////"):
		return 0
	case strings.HasPrefix(text, "///"), strings.HasPrefix(text, "//!"):
		return 1
	case strings.HasPrefix(text, "/**/"), strings.HasPrefix(text, "/***"):
		return 0
	case strings.HasPrefix(text, "/**"), strings.HasPrefix(text, "/*!"):
		sp := n.Span()
		return sp.EndLine - sp.StartLine + 1
	default:
		return 0
	}
}

// stripGeneric returns the function of a turbofish call (f::<T>).
func stripGeneric(fn ast.Node) ast.Node {
	for fn != nil && fn.Kind() == "generic_function" {
		fn = fn.Field("function")
	}
	return fn
}

// methodName returns the name of a method call's callee (x.name(...)).
func methodName(fn ast.Node) string {
	fn = stripGeneric(fn)
	if fn == nil || fn.Kind() != "field_expression" {
		return ""
	}
	if f := fn.Field("field"); f != nil {
		return f.Text()
	}
	return ""
}

// pathName returns the final segment of a path call (a::b::name(...)).
func pathName(fn ast.Node) string {
	fn = stripGeneric(fn)
	if fn == nil || fn.Kind() != "scoped_identifier" {
		return ""
	}
	if nm := fn.Field("name"); nm != nil {
		return nm.Text()
	}
	return ""
}

// calleePath returns the callee of a plain or path call with whitespace
// removed ("std::mem::transmute"), or "" for method calls.
func calleePath(fn ast.Node) string {
	fn = stripGeneric(fn)
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier", "scoped_identifier":
		return strings.Join(strings.Fields(fn.Text()), "")
	default:
		return ""
	}
}

// hasPathSuffix reports whether path is suffix or ends with "::"+suffix.
func hasPathSuffix(path, suffix string) bool {
	return path == suffix || strings.HasSuffix(path, "::"+suffix)
}

// macroName returns the final segment of a macro_invocation's path.
func macroName(n ast.Node) string {
	m := n.Field("macro")
	if m == nil {
		return ""
	}
	if m.Kind() == "scoped_identifier" {
		if nm := m.Field("name"); nm != nil {
			return nm.Text()
		}
	}
	return m.Text()
}

// firstArgument returns the first named child of a call's argument list.
func firstArgument(call ast.Node) ast.Node {
	args := call.Field("arguments")
	if args == nil {
		return nil
	}
	for _, c := range ast.NamedChildren(args) {
		if c.Kind() != "line_comment" && c.Kind() != "block_comment" && c.Kind() != "attribute_item" {
			return c
		}
	}
	return nil
}

// literalValue returns the contents of a string or raw string literal.
func literalValue(text string) string {
	text = strings.TrimPrefix(text, "b")
	if strings.HasPrefix(text, "r") {
		text = strings.TrimPrefix(text, "r")
		text = strings.Trim(text, "#")
	}
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		return text[1 : len(text)-1]
	}
	return text
}

// isStringLiteral reports whether n is a string or raw string literal.
func isStringLiteral(n ast.Node) bool {
	return n != nil && (n.Kind() == "string_literal" || n.Kind() == "raw_string_literal")
}

// enclosing scans ancestors from the innermost outward, stopping at the
// nearest function or closure boundary, and reports whether any ancestor
// kind is in kinds.
func enclosing(ancestors []ast.Node, kinds ...string) bool {
	for i := len(ancestors) - 1; i >= 0; i-- {
		k := ancestors[i].Kind()
		if k == "function_item" || k == "closure_expression" {
			return false
		}
		for _, want := range kinds {
			if k == want {
				return true
			}
		}
	}
	return false
}
