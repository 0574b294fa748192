// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "target", "debug"), 0o755))
	return root
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, filepath.FromSlash(rel)), []byte(content), 0o644))
}

func paths(cs []Change) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Path
	}
	return out
}

// start runs w in the background and returns the batch channel and the
// Run result channel.
func start(t *testing.T, w *Watcher) (<-chan []Change, <-chan error, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	batches := make(chan []Change, 10)
	result := make(chan error, 1)
	go func() {
		result <- w.Run(ctx, func(_ context.Context, cs []Change) error {
			batches <- cs
			return nil
		})
	}()
	// Give Run time to register the tree.
	time.Sleep(100 * time.Millisecond)
	t.Cleanup(cancel)
	return batches, result, cancel
}

func TestWatcher_DeliversRelevantChanges(t *testing.T) {
	root := newProject(t)
	w, err := New(root, Options{Debounce: 100 * time.Millisecond, MinInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	batches, result, cancel := start(t, w)

	write(t, root, "README.md", "# demo\n")
	write(t, root, "target/debug/gen.rs", "fn gen() {}\n")
	write(t, root, "src/lib.rs", "pub fn a() {}\n")
	write(t, root, "Cargo.toml", "[package]\nname = \"demo\"\n")

	select {
	case cs := <-batches:
		assert.Equal(t, []string{"Cargo.toml", "src/lib.rs"}, paths(cs))
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}

	cancel()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_RateLimited(t *testing.T) {
	root := newProject(t)
	w, err := New(root, Options{Debounce: 20 * time.Millisecond, MinInterval: 400 * time.Millisecond})
	require.NoError(t, err)

	batches, _, _ := start(t, w)

	write(t, root, "src/a.rs", "fn a() {}\n")
	var first time.Time
	select {
	case <-batches:
		first = time.Now()
	case <-time.After(5 * time.Second):
		t.Fatal("no first batch")
	}

	write(t, root, "src/b.rs", "fn b() {}\n")
	select {
	case cs := <-batches:
		assert.Contains(t, paths(cs), "src/b.rs")
		assert.GreaterOrEqual(t, time.Since(first), 300*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("no second batch")
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := newProject(t)
	w, err := New(root, Options{Debounce: 50 * time.Millisecond, MinInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	batches, _, _ := start(t, w)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "net"), 0o755))
	time.Sleep(200 * time.Millisecond)
	write(t, root, "src/net/mod.rs", "pub mod tcp;\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cs := <-batches:
			if assert.NotEmpty(t, cs) && contains(paths(cs), "src/net/mod.rs") {
				return
			}
		case <-deadline:
			t.Fatal("change in new directory not delivered")
		}
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func TestWatcher_HandlerErrorKeepsWatching(t *testing.T) {
	root := newProject(t)
	w, err := New(root, Options{Debounce: 20 * time.Millisecond, MinInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 10)
	go func() {
		_ = w.Run(ctx, func(context.Context, []Change) error {
			calls <- struct{}{}
			return errors.New("scoring failed")
		})
	}()
	time.Sleep(100 * time.Millisecond)

	for i, name := range []string{"src/a.rs", "src/b.rs"} {
		write(t, root, name, "fn x() {}\n")
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatalf("handler call %d missing", i+1)
		}
	}
}

func TestWatcher_StopAndReuse(t *testing.T) {
	root := newProject(t)
	w, err := New(root, Options{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), func(context.Context, []Change) error { return nil }) }()
	time.Sleep(50 * time.Millisecond)

	w.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.ErrorIs(t, w.Run(context.Background(), nil), ErrClosed)
	w.Stop()
}

func TestNew_Errors(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), Options{})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "main.rs")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, Options{})
	assert.Error(t, err)
}

func TestRelevant(t *testing.T) {
	tests := map[string]bool{
		"src/lib.rs":          true,
		"Cargo.toml":          true,
		"crates/a/Cargo.toml": true,
		"crabscore.yaml":      true,
		"README.md":           false,
		"Cargo.lock":          false,
		"src/lib.rs.orig":     false,
	}
	for path, want := range tests {
		assert.Equal(t, want, Relevant(path), path)
	}
}

func TestDedupe(t *testing.T) {
	t0 := time.Unix(100, 0)
	got := Dedupe([]Change{
		{Path: "src/b.rs", Op: OpCreate, Time: t0},
		{Path: "src/a.rs", Op: OpWrite, Time: t0},
		{Path: "src/b.rs", Op: OpWrite, Time: t0.Add(time.Second)},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "src/a.rs", got[0].Path)
	assert.Equal(t, "src/b.rs", got[1].Path)
	assert.Equal(t, OpWrite, got[1].Op)
	assert.Empty(t, Dedupe(nil))
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "write", OpWrite.String())
	assert.Equal(t, "remove", OpRemove.String())
	assert.Equal(t, "rename", OpRename.String())
	assert.Equal(t, "unknown", Op(42).String())
}
