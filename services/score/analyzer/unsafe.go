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
	"github.com/AleutianAI/crabscore/services/score/ast"
	"github.com/AleutianAI/crabscore/services/score/safety"
)

func (s *fileScanner) checkUnsafeBlock(n ast.Node) {
	s.add(n, safety.KindUnsafeBlock, safety.SeverityHigh, "unsafe_block", "unsafe block")
}

// checkUnsafeItem reports unsafe fn, unsafe impl and unsafe trait items.
//
// For functions the keyword sits inside function_modifiers; for impl and
// trait items it is a direct anonymous child.
func (s *fileScanner) checkUnsafeItem(n ast.Node) {
	if !hasUnsafeKeyword(n) {
		return
	}

	switch n.Kind() {
	case "function_item", "function_signature_item":
		name := "fn"
		if nm := n.Field("name"); nm != nil {
			name = nm.Text()
		}
		s.add(n, safety.KindUnsafeBlock, safety.SeverityHigh, "unsafe_fn", "unsafe fn "+name)
	case "impl_item":
		s.add(n, safety.KindUnsafeBlock, safety.SeverityHigh, "unsafe_impl", "unsafe impl")
	case "trait_item":
		name := "trait"
		if nm := n.Field("name"); nm != nil {
			name = nm.Text()
		}
		s.add(n, safety.KindUnsafeBlock, safety.SeverityHigh, "unsafe_trait", "unsafe trait "+name)
	}
}

func hasUnsafeKeyword(n ast.Node) bool {
	for i := 0; i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "unsafe":
			return true
		case "function_modifiers":
			for j := 0; j < c.ChildCount(); j++ {
				if m := c.Child(j); m != nil && m.Kind() == "unsafe" {
					return true
				}
			}
		}
	}
	return false
}
