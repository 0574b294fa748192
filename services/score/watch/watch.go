// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch re-runs a callback when the sources of a Rust project change.
//
// Changes to .rs files, Cargo.toml and crabscore.yaml are collected into
// batches using a debounce window, and batches are handed to the callback
// no more often than a minimum interval allows. The callback runs on the
// watcher's goroutine, so two runs never overlap.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/crabscore/services/score/walker"
)

// Op is the kind of file change.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

// String returns the lowercase operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Change is one file system event after filtering.
type Change struct {
	// Path is slash-separated and relative to the watched root.
	Path string
	Op   Op
	Time time.Time
}

// Handler receives a deduplicated batch of changes. An error is logged and
// watching continues.
type Handler func(ctx context.Context, changes []Change) error

// ErrClosed is returned by Run on a watcher that was already stopped.
var ErrClosed = errors.New("watcher closed")

// Options configures a Watcher.
type Options struct {
	// Debounce is how long to wait for more changes before a batch is
	// delivered. Default 300ms.
	Debounce time.Duration

	// MinInterval is the minimum time between two handler calls.
	// Default 2s.
	MinInterval time.Duration

	// Excludes are glob patterns relative to the root. Nil selects
	// walker.DefaultExcludes.
	Excludes []string

	// BufferSize bounds pending events. Default 1000.
	BufferSize int
}

// DefaultOptions returns the defaults used for zero fields.
func DefaultOptions() Options {
	return Options{
		Debounce:    300 * time.Millisecond,
		MinInterval: 2 * time.Second,
		Excludes:    walker.DefaultExcludes,
		BufferSize:  1000,
	}
}

// Watcher watches one project tree.
//
// Thread Safety: Run may be called once. Stop is safe from any goroutine.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	matcher  *walker.Matcher
	debounce time.Duration
	limiter  *rate.Limiter

	changes  chan Change
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher for root. Call Run to start delivering changes.
//
// Outputs:
//   - *Watcher: Ready to Run.
//   - error: Non-nil if root is not a directory or fsnotify cannot start.
func New(root string, opts Options) (*Watcher, error) {
	def := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = def.Debounce
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = def.MinInterval
	}
	if opts.Excludes == nil {
		opts.Excludes = def.Excludes
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "watch", Path: root, Err: errors.New("not a directory")}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:     root,
		watcher:  fw,
		matcher:  walker.NewMatcher(opts.Excludes),
		debounce: opts.Debounce,
		limiter:  rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		changes:  make(chan Change, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Run watches until ctx is cancelled or Stop is called, delivering batches
// to h.
//
// Outputs:
//   - error: ctx.Err() on cancellation, nil after Stop, or the error from
//     registering the directory tree.
func (w *Watcher) Run(ctx context.Context, h Handler) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	defer w.Stop()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)
	return w.deliver(ctx, h)
}

// Stop ends Run and releases the fsnotify watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if err := w.watcher.Close(); err != nil {
			slog.Debug("closing fsnotify watcher", slog.String("error", err.Error()))
		}
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(p); ok && rel != "." && w.matcher.ExcludesDir(rel) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

// rel returns path relative to the root in slash form.
func (w *Watcher) rel(p string) (string, bool) {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Relevant reports whether a change to the slash-separated relative path
// can affect the score.
func Relevant(rel string) bool {
	switch path.Base(rel) {
	case "Cargo.toml", "crabscore.yaml":
		return true
	}
	return path.Ext(rel) == walker.SourceExtension
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						slog.Warn("watching new directory", slog.String("path", event.Name), slog.String("error", err.Error()))
					}
					continue
				}
			}

			rel, ok := w.rel(event.Name)
			if !ok || w.matcher.Excluded(rel) || !Relevant(rel) {
				continue
			}

			select {
			case w.changes <- Change{Path: rel, Op: convertOp(event.Op), Time: time.Now()}:
			default:
				slog.Warn("watch buffer full, dropping change", slog.String("path", rel))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Write):
		return OpWrite
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

// deliver batches changes and calls h after each debounce window, waiting
// on the rate limiter first.
func (w *Watcher) deliver(ctx context.Context, h Handler) error {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case c := <-w.changes:
			batch = append(batch, c)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			if err := w.limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return err
			}

			// Changes that arrived while waiting belong to this run.
			batch = drain(w.changes, batch)
			changes := Dedupe(batch)
			batch = batch[:0]

			if err := h(ctx, changes); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("watch handler failed", slog.Int("changes", len(changes)), slog.String("error", err.Error()))
			}
		}
	}
}

func drain(ch <-chan Change, batch []Change) []Change {
	for {
		select {
		case c := <-ch:
			batch = append(batch, c)
		default:
			return batch
		}
	}
}

// Dedupe keeps the latest change per path and sorts the result by path.
func Dedupe(changes []Change) []Change {
	latest := make(map[string]Change, len(changes))
	for _, c := range changes {
		latest[c.Path] = c
	}
	out := make([]Change, 0, len(latest))
	for _, c := range latest {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
