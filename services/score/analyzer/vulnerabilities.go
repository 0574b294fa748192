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
	"path"
	"strings"

	"github.com/AleutianAI/crabscore/services/score/ast"
	"github.com/AleutianAI/crabscore/services/score/safety"
)

// checkDangerousCall runs the call-shaped catalog entries: RS-001,
// RS-002 and RS-005.
func (s *fileScanner) checkDangerousCall(n ast.Node, ancestors []ast.Node) {
	fn := n.Field("function")
	callee := calleePath(fn)

	switch {
	case callee == "":
		s.checkCommandArg(n, fn)
	case hasPathSuffix(callee, "mem::transmute") || callee == "transmute":
		s.add(n, safety.KindVulnerability, safety.SeverityHigh, "RS-005", "mem::transmute")
	case hasPathSuffix(callee, "Command::new"):
		s.checkCommandNew(n)
	default:
		for _, d := range deserializers {
			if hasPathSuffix(callee, d) {
				s.checkDeserialize(n, ancestors, d)
				return
			}
		}
	}
}

// checkDeserialize reports decoding of external data, high when the
// result is unwrapped in the same expression.
func (s *fileScanner) checkDeserialize(n ast.Node, ancestors []ast.Node, fn string) {
	sev := safety.SeverityMedium
	msg := fn + " on external input"
	if len(ancestors) > 0 {
		parent := ancestors[len(ancestors)-1]
		if parent.Kind() == "field_expression" {
			if f := parent.Field("field"); f != nil {
				if _, ok := unwrapSeverity[f.Text()]; ok {
					sev = safety.SeverityHigh
					msg = fn + " result unwrapped"
				}
			}
		}
	}
	s.add(n, safety.KindVulnerability, sev, "RS-001", msg)
}

// checkCommandNew reports Command::new with a non-literal program (high)
// or a shell interpreter (medium).
func (s *fileScanner) checkCommandNew(n ast.Node) {
	arg := firstArgument(n)
	if arg == nil {
		return
	}
	if !isStringLiteral(arg) {
		s.add(n, safety.KindVulnerability, safety.SeverityHigh, "RS-002", "Command::new with non-literal program")
		return
	}

	prog := strings.ToLower(path.Base(strings.ReplaceAll(literalValue(arg.Text()), `\\`, "/")))
	prog = strings.TrimSuffix(prog, ".exe")
	if shells[prog] {
		s.add(n, safety.KindVulnerability, safety.SeverityMedium, "RS-002", "Command::new spawns shell "+prog)
	}
}

// checkCommandArg reports cmd.arg(format!(...)) on a Command receiver.
func (s *fileScanner) checkCommandArg(n, fn ast.Node) {
	name := methodName(fn)
	if name != "arg" && name != "args" {
		return
	}
	recv := stripGeneric(fn).Field("value")
	if recv == nil || !strings.Contains(recv.Text(), "Command") {
		return
	}
	arg := firstArgument(n)
	if arg == nil || arg.Kind() != "macro_invocation" || macroName(arg) != "format" {
		return
	}
	s.add(n, safety.KindVulnerability, safety.SeverityHigh, "RS-002", "Command argument built with format!")
}

// checkSQLFormat reports format! calls whose template is a DML statement
// with interpolation (RS-004).
func (s *fileScanner) checkSQLFormat(n ast.Node) {
	var tt ast.Node
	for _, c := range ast.NamedChildren(n) {
		if c.Kind() == "token_tree" {
			tt = c
			break
		}
	}
	if tt == nil {
		return
	}

	for _, c := range ast.NamedChildren(tt) {
		if !isStringLiteral(c) {
			continue
		}
		tmpl := literalValue(c.Text())
		if strings.Contains(tmpl, "{") && sqlStatement.MatchString(tmpl) {
			s.add(n, safety.KindVulnerability, safety.SeverityMedium, "RS-004", "SQL statement built with format!")
		}
		return
	}
}

// checkCredentialLiteral reports literals shaped like a known secret (RS-003).
func (s *fileScanner) checkCredentialLiteral(n ast.Node) {
	if typ, ok := matchCredential(literalValue(n.Text())); ok {
		s.add(n, safety.KindVulnerability, safety.SeverityHigh, "RS-003", "hardcoded "+typ)
	}
}

// checkCredentialBinding reports a password-like binding initialised with
// a string literal (RS-003). Literals already matched by a credential
// pattern are reported by checkCredentialLiteral instead.
func (s *fileScanner) checkCredentialBinding(n ast.Node) {
	var nameNode ast.Node
	if n.Kind() == "let_declaration" {
		nameNode = n.Field("pattern")
	} else {
		nameNode = n.Field("name")
	}
	value := n.Field("value")
	if nameNode == nil || !isStringLiteral(value) {
		return
	}

	name := strings.ToLower(nameNode.Text())
	matched := false
	for _, frag := range credentialNames {
		if strings.Contains(name, frag) {
			matched = true
			break
		}
	}
	if !matched {
		return
	}

	lit := literalValue(value.Text())
	if len(lit) < minCredentialLen || looksLikePlaceholder(lit) {
		return
	}
	if _, ok := matchCredential(lit); ok {
		return
	}
	s.add(n, safety.KindVulnerability, safety.SeverityMedium, "RS-003", "hardcoded value for "+nameNode.Text())
}
