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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRust = `use std::collections::HashMap;

/// Adds one.
pub fn add_one(x: i32) -> i32 {
    x + 1
}

fn main() {
    let v = vec![1, 2, 3];
    let first = v.first().unwrap();
    unsafe {
        println!("{}", first);
    }
}
`

func parseSample(t *testing.T, src string) *Tree {
	t.Helper()
	tree, err := NewRustParser().Parse(context.Background(), []byte(src), "src/main.rs")
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

func TestRustParser_Metadata(t *testing.T) {
	p := NewRustParser()
	assert.Equal(t, "rust", p.Language())
	assert.Equal(t, []string{".rs"}, p.Extensions())

	var _ Parser = p
}

func TestRustParser_Parse(t *testing.T) {
	tree := parseSample(t, sampleRust)

	root := tree.Root()
	require.NotNil(t, root)
	assert.Equal(t, "source_file", root.Kind())
	assert.Equal(t, 1, root.Span().StartLine)

	kinds := map[string]int{}
	err := Walk(context.Background(), root, func(n Node, _ []Node) bool {
		kinds[n.Kind()]++
		return true
	})
	require.NoError(t, err)

	assert.Equal(t, 2, kinds["function_item"])
	assert.Equal(t, 1, kinds["unsafe_block"])
	assert.GreaterOrEqual(t, kinds["call_expression"], 2)
	assert.GreaterOrEqual(t, kinds["macro_invocation"], 2)
}

func TestRustParser_SpansAndFields(t *testing.T) {
	tree := parseSample(t, sampleRust)

	unsafeBlock := Find(tree.Root(), func(n Node) bool { return n.Kind() == "unsafe_block" })
	require.NotNil(t, unsafeBlock)
	assert.Equal(t, 11, unsafeBlock.Span().StartLine)
	assert.Equal(t, 13, unsafeBlock.Span().EndLine)
	assert.True(t, strings.HasPrefix(unsafeBlock.Text(), "unsafe {"))

	fn := Find(tree.Root(), func(n Node) bool { return n.Kind() == "function_item" })
	require.NotNil(t, fn)
	name := fn.Field("name")
	require.NotNil(t, name)
	assert.Equal(t, "add_one", name.Text())

	prev := fn.Prev()
	require.NotNil(t, prev)
	assert.Equal(t, "line_comment", prev.Kind())

	assert.Nil(t, fn.Field("no_such_field"))
	assert.Nil(t, fn.Child(10_000))
}

func TestWalk_Ancestors(t *testing.T) {
	tree := parseSample(t, sampleRust)

	var path []string
	_ = Walk(context.Background(), tree.Root(), func(n Node, ancestors []Node) bool {
		if n.Kind() == "unsafe_block" {
			for _, a := range ancestors {
				path = append(path, a.Kind())
			}
			return false
		}
		return true
	})

	require.NotEmpty(t, path)
	assert.Equal(t, "source_file", path[0])
	assert.Contains(t, path, "function_item")
	assert.Equal(t, "expression_statement", path[len(path)-1])
}

func TestWalk_SkipChildren(t *testing.T) {
	tree := parseSample(t, sampleRust)

	sawInsideFn := false
	_ = Walk(context.Background(), tree.Root(), func(n Node, ancestors []Node) bool {
		for _, a := range ancestors {
			if a.Kind() == "function_item" {
				sawInsideFn = true
			}
		}
		return n.Kind() != "function_item"
	})
	assert.False(t, sawInsideFn)
}

func TestWalk_Cancelled(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 400; i++ {
		b.WriteString("fn f() { let x = 1 + 2 * 3; }\n")
	}
	tree := parseSample(t, b.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Walk(ctx, tree.Root(), func(Node, []Node) bool { return true })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRustParser_Errors(t *testing.T) {
	tests := []struct {
		name     string
		content  []byte
		opts     []RustParserOption
		want     error
		wantLine int
	}{
		{
			name:     "syntax error",
			content:  []byte("fn main() {\n    let x = ;\n}\n"),
			want:     ErrSyntax,
			wantLine: 2,
		},
		{
			name:    "invalid utf8",
			content: []byte{'f', 'n', ' ', 0xff, 0xfe},
			want:    ErrInvalidContent,
		},
		{
			name:    "too large",
			content: []byte("fn main() {}\n"),
			opts:    []RustParserOption{WithMaxFileSize(4)},
			want:    ErrFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := NewRustParser(tt.opts...).Parse(context.Background(), tt.content, "src/bad.rs")
			require.Error(t, err)
			assert.Nil(t, tree)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, IsParseError(err))

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, "src/bad.rs", parseErr.FilePath)
			if tt.wantLine > 0 {
				assert.Equal(t, tt.wantLine, parseErr.Line)
			}
		})
	}
}

func TestRustParser_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRustParser().Parse(ctx, []byte("fn main() {}"), "main.rs")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsParseError(err))
}

func TestParseError_Format(t *testing.T) {
	assert.Equal(t, "a.rs:3:4: boom", NewParseError("a.rs", 3, 4, "boom", ErrSyntax).Error())
	assert.Equal(t, "a.rs:3: boom", NewParseError("a.rs", 3, 0, "boom", ErrSyntax).Error())
	assert.Equal(t, "a.rs: boom", NewParseError("a.rs", 0, 0, "boom", ErrSyntax).Error())
}

func TestNamedChildren(t *testing.T) {
	tree := parseSample(t, "fn a() {}\nfn b() {}\n")
	children := NamedChildren(tree.Root())
	require.Len(t, children, 2)
	assert.Equal(t, "function_item", children[0].Kind())
	assert.Nil(t, NamedChildren(nil))
}
