// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast adapts the tree-sitter Rust grammar to a minimal node contract.
package ast

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

const (
	// DefaultMaxFileSize is the maximum file size the parser will accept (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the threshold at which a warning is logged (1MB).
	WarnFileSize = 1 * 1024 * 1024
)

// Parser produces syntax trees for one language.
type Parser interface {
	// Parse returns a tree for content, or a *ParseError.
	//
	// Thread Safety: Implementations must be safe for concurrent use.
	Parse(ctx context.Context, content []byte, filePath string) (*Tree, error)

	// Language returns the canonical lowercase language name.
	Language() string

	// Extensions returns the file extensions handled, with leading dot.
	Extensions() []string
}

// RustParserOption configures a RustParser instance.
type RustParserOption func(*RustParser)

// WithMaxFileSize sets the maximum file size the parser will accept.
//
// Example:
//
//	parser := NewRustParser(WithMaxFileSize(5 * 1024 * 1024)) // 5MB limit
func WithMaxFileSize(bytes int64) RustParserOption {
	return func(p *RustParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// RustParser implements Parser for Rust using tree-sitter.
//
// Description:
//
//	Each Parse call creates its own tree-sitter parser, so one RustParser
//	can be shared by every worker in the analysis pool. Files whose tree
//	contains ERROR or MISSING nodes are rejected with ErrSyntax: a
//	partial tree would make counts depend on error recovery.
//
// Thread Safety:
//
//	RustParser instances are safe for concurrent use.
type RustParser struct {
	maxFileSize int64
}

// NewRustParser creates a RustParser with the given options.
func NewRustParser(opts ...RustParserOption) *RustParser {
	p := &RustParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Language returns "rust".
func (p *RustParser) Language() string {
	return "rust"
}

// Extensions returns []string{".rs"}.
func (p *RustParser) Extensions() []string {
	return []string{".rs"}
}

// Parse parses Rust source into a Tree.
//
// Description:
//
//	Validates size and encoding, parses with tree-sitter and rejects
//	trees containing syntax errors. The caller owns the returned Tree
//	and must Close it.
//
// Inputs:
//   - ctx: Cancels the parse. tree-sitter checks it while parsing.
//   - content: Raw source bytes.
//   - filePath: Relative path, used in errors and spans.
//
// Outputs:
//   - *Tree: Parsed tree. Nil on error.
//   - error: *ParseError wrapping ErrFileTooLarge, ErrInvalidContent,
//     ErrParseFailed or ErrSyntax; or a context error on cancellation.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *RustParser) Parse(ctx context.Context, content []byte, filePath string) (*Tree, error) {
	ctx, span := startParseSpan(ctx, "rust", filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, "rust", time.Since(start), false)
		return nil, NewParseError(filePath, 0, 0,
			fmt.Sprintf("size %d exceeds limit %d", len(content), p.maxFileSize), ErrFileTooLarge)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(ctx, "rust", time.Since(start), false)
		return nil, NewParseError(filePath, 0, 0, "content is not valid UTF-8", ErrInvalidContent)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		recordParseMetrics(ctx, "rust", time.Since(start), false)
		return nil, NewParseError(filePath, 0, 0, err.Error(), ErrParseFailed)
	}

	if err := ctx.Err(); err != nil {
		tree.Close()
		return nil, err
	}

	root := tree.RootNode()
	if root == nil {
		tree.Close()
		recordParseMetrics(ctx, "rust", time.Since(start), false)
		return nil, NewParseError(filePath, 0, 0, "tree-sitter returned nil root node", ErrParseFailed)
	}

	if root.HasError() {
		line, col := firstErrorPosition(root)
		tree.Close()
		recordParseMetrics(ctx, "rust", time.Since(start), false)
		setParseSpanResult(span, 1)
		return nil, NewParseError(filePath, line, col, "source contains syntax errors", ErrSyntax)
	}

	setParseSpanResult(span, 0)
	recordParseMetrics(ctx, "rust", time.Since(start), true)

	return &Tree{
		tree:    tree,
		root:    wrap(root, content),
		content: content,
	}, nil
}

// firstErrorPosition locates the first ERROR or MISSING node.
func firstErrorPosition(root *sitter.Node) (int, int) {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.IsError() || n.IsMissing() {
			pt := n.StartPoint()
			return int(pt.Row) + 1, int(pt.Column)
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if c := n.Child(i); c != nil && (c.HasError() || c.IsMissing()) {
				stack = append(stack, c)
			}
		}
	}
	pt := root.StartPoint()
	return int(pt.Row) + 1, int(pt.Column)
}

// Tree owns a parsed syntax tree.
//
// Close releases the native tree-sitter memory; nodes obtained from Root
// must not be used afterwards.
type Tree struct {
	tree    *sitter.Tree
	root    Node
	content []byte
}

// Root returns the root node.
func (t *Tree) Root() Node {
	return t.root
}

// Content returns the parsed source.
func (t *Tree) Content() []byte {
	return t.content
}

// Close releases the tree. Safe to call multiple times.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// sitterNode adapts *sitter.Node to Node.
type sitterNode struct {
	n   *sitter.Node
	src []byte
}

func wrap(n *sitter.Node, src []byte) Node {
	if n == nil {
		return nil
	}
	return sitterNode{n: n, src: src}
}

func (s sitterNode) Kind() string { return s.n.Type() }

func (s sitterNode) Span() Span {
	start, end := s.n.StartPoint(), s.n.EndPoint()
	return Span{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column),
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column),
	}
}

func (s sitterNode) ChildCount() int { return int(s.n.ChildCount()) }

func (s sitterNode) Child(i int) Node { return wrap(s.n.Child(i), s.src) }

func (s sitterNode) Field(name string) Node { return wrap(s.n.ChildByFieldName(name), s.src) }

func (s sitterNode) Prev() Node { return wrap(s.n.PrevNamedSibling(), s.src) }

func (s sitterNode) Text() string { return s.n.Content(s.src) }

func (s sitterNode) IsNamed() bool { return s.n.IsNamed() }
