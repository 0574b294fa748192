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
	"context"
	"log/slog"
)

// MaxWalkDepth bounds tree traversal. Deeper subtrees are skipped.
const MaxWalkDepth = 512

// ctxCheckInterval is how many nodes are visited between ctx checks.
const ctxCheckInterval = 256

// Span locates a node in its source file.
//
// Lines are 1-indexed, columns are 0-indexed byte offsets within the line.
type Span struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// Node is the minimal syntax-tree contract the analyzer depends on.
//
// Description:
//
//	Node exposes kind, location and child iteration over a concrete
//	syntax tree. Kinds are grammar node type names ("unsafe_block",
//	"call_expression", ...). Anonymous tokens ("unsafe", "!") are
//	children too, with IsNamed() false.
//
//	Child, Field and Prev return nil when there is no such node.
//
// Thread Safety:
//
//	Nodes are read-only but are only valid until the owning Tree is
//	closed. Do not retain nodes past Tree.Close().
type Node interface {
	// Kind returns the grammar node type.
	Kind() string

	// Span returns the node's source location.
	Span() Span

	// ChildCount returns the number of children, named and anonymous.
	ChildCount() int

	// Child returns the i-th child or nil.
	Child(i int) Node

	// Field returns the child bound to a grammar field name or nil.
	Field(name string) Node

	// Prev returns the previous named sibling or nil.
	Prev() Node

	// Text returns the node's source text.
	Text() string

	// IsNamed reports whether this is a named grammar node.
	IsNamed() bool
}

// VisitFunc is called for every node in pre-order.
//
// ancestors holds the path from the root to the node's parent, root first.
// The slice is reused between calls and must not be retained. Returning
// false skips the node's children.
type VisitFunc func(n Node, ancestors []Node) bool

// Walk traverses root in pre-order without recursion.
//
// Description:
//
//	Uses an explicit stack so deeply nested expressions cannot overflow
//	the goroutine stack. Subtrees deeper than MaxWalkDepth are skipped.
//	The context is checked every few hundred nodes.
//
// Inputs:
//   - ctx: Cancels the walk.
//   - root: Starting node. Nil is a no-op.
//   - fn: Visitor.
//
// Outputs:
//   - error: ctx.Err() if cancelled, nil otherwise.
func Walk(ctx context.Context, root Node, fn VisitFunc) error {
	if root == nil {
		return nil
	}

	type frame struct {
		node Node
		next int
	}

	stack := make([]frame, 0, 64)
	ancestors := make([]Node, 0, 64)

	visited := 0
	if fn(root, ancestors) {
		stack = append(stack, frame{node: root})
	}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= top.node.ChildCount() {
			stack = stack[:len(stack)-1]
			continue
		}

		child := top.node.Child(top.next)
		top.next++
		if child == nil {
			continue
		}

		visited++
		if visited%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		ancestors = ancestors[:0]
		for _, f := range stack {
			ancestors = append(ancestors, f.node)
		}

		if !fn(child, ancestors) {
			continue
		}

		if len(stack) >= MaxWalkDepth {
			slog.Debug("max walk depth reached",
				slog.String("kind", child.Kind()),
				slog.Int("line", child.Span().StartLine))
			continue
		}
		stack = append(stack, frame{node: child})
	}

	return ctx.Err()
}

// Find returns the first node in pre-order for which pred returns true.
func Find(root Node, pred func(Node) bool) Node {
	var found Node
	_ = Walk(context.Background(), root, func(n Node, _ []Node) bool {
		if found != nil {
			return false
		}
		if pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// NamedChildren returns the named children of n.
func NamedChildren(n Node) []Node {
	if n == nil {
		return nil
	}
	out := make([]Node, 0, n.ChildCount())
	for i := 0; i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && c.IsNamed() {
			out = append(out, c)
		}
	}
	return out
}
