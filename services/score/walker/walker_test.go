// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package walker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/crabscore/services/score/config"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func paths(files []SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestWalk_FindsRustFilesSorted(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/main.rs":          "fn main() {}",
		"src/lib.rs":           "",
		"src/util/mod.rs":      "",
		"README.md":            "# readme",
		"target/debug/out.rs":  "",
		"benches/bench.rs":     "",
		"vendor/dep/src/x.rs":  "",
		".git/hooks/sample.rs": "",
	})

	files, err := Walk(context.Background(), root, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"benches/bench.rs",
		"src/lib.rs",
		"src/main.rs",
		"src/util/mod.rs",
		"vendor/dep/src/x.rs",
	}, paths(files))

	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.AbsPath))
		assert.False(t, f.ModTime.IsZero())
	}
}

func TestWalk_CustomExcludes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/main.rs":             "",
		"src/gen/api.rs":          "",
		"src/schema.generated.rs": "",
		"examples/demo.rs":        "",
	})

	files, err := Walk(context.Background(), root, []string{"examples/**", "**/gen/**", "*.generated.rs"})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.rs"}, paths(files))
}

func TestWalk_EmptyProject(t *testing.T) {
	files, err := Walk(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWalk_UnreadableRootIsConfigError(t *testing.T) {
	_, err := Walk(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrUnreadableRoot))
	assert.True(t, config.IsConfigError(err))

	file := filepath.Join(t.TempDir(), "file.rs")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = Walk(context.Background(), file, nil)
	assert.True(t, errors.Is(err, config.ErrUnreadableRoot))
}

func TestWalk_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"src/main.rs": ""})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Walk(ctx, root, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatcher(t *testing.T) {
	m := NewMatcher([]string{"target/**", "./tests/fixtures/**", "**/*_pb.rs", "build.rs"})

	tests := []struct {
		path string
		want bool
	}{
		{"target/release/main.rs", true},
		{"target", true},
		{"src/target.rs", false},
		{"tests/fixtures/bad.rs", true},
		{"tests/it.rs", false},
		{"src/proto/msg_pb.rs", true},
		{"msg_pb.rs", true},
		{"build.rs", true},
		{"crates/a/build.rs", true},
		{"src/main.rs", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Excluded(tt.path))
		})
	}

	assert.True(t, m.ExcludesDir("target"))
	assert.True(t, m.ExcludesDir("target/debug/deps"))
	assert.True(t, m.ExcludesDir("tests/fixtures"))
	assert.False(t, m.ExcludesDir("tests"))
}

func TestMatcher_DoublestarSyntax(t *testing.T) {
	m := NewMatcher([]string{"src/{gen,proto}/**", "**/benches/*.rs", "src/[a-"})

	tests := []struct {
		path string
		want bool
	}{
		{"src/gen/a.rs", true},
		{"src/proto/deep/b.rs", true},
		{"src/lib.rs", false},
		{"benches/speed.rs", true},
		{"crates/x/benches/speed.rs", true},
		{"crates/x/benches/data/speed.rs", false},
		{"src/[a-", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Excluded(tt.path))
		})
	}
	assert.True(t, m.ExcludesDir("src/gen"))
}

func TestDefaultExcludes_MatchConfig(t *testing.T) {
	assert.Equal(t, config.Default().Exclude, DefaultExcludes)
}
