// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package walker enumerates Rust source files under a project root.
package walker

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/AleutianAI/crabscore/services/score/config"
)

// SourceExtension is the only extension handed to the analyzer.
const SourceExtension = ".rs"

// SourceFile is one candidate file for analysis.
type SourceFile struct {
	// Path is slash-separated and relative to the project root.
	Path string

	// AbsPath is the absolute filesystem path.
	AbsPath string

	// Size is the file size in bytes at walk time.
	Size int64

	// ModTime is the modification time at walk time.
	ModTime time.Time
}

// Walk enumerates .rs files under root, applying exclude patterns.
//
// Description:
//
//	Walks the tree with filepath.WalkDir. Excluded directories are pruned
//	with fs.SkipDir so their contents are never read. Symlinks are not
//	followed. Subdirectories that cannot be read are skipped with a
//	warning; only an unreadable root is fatal.
//
// Inputs:
//   - ctx: Checked between entries for cancellation.
//   - root: Project root directory.
//   - excludes: Glob patterns relative to root. Nil means DefaultExcludes.
//
// Outputs:
//   - []SourceFile: Candidates sorted by Path.
//   - error: *config.ConfigError for a missing or unreadable root,
//     ctx.Err() on cancellation.
func Walk(ctx context.Context, root string, excludes []string) ([]SourceFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, config.NewConfigError(config.ErrUnreadableRoot, "root", "resolve %s: %v", root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, config.NewConfigError(config.ErrUnreadableRoot, "root", "%v", err)
	}
	if !info.IsDir() {
		return nil, config.NewConfigError(config.ErrUnreadableRoot, "root", "%s is not a directory", absRoot)
	}
	if _, err := os.ReadDir(absRoot); err != nil {
		return nil, config.NewConfigError(config.ErrUnreadableRoot, "root", "%v", err)
	}

	if excludes == nil {
		excludes = DefaultExcludes
	}
	matcher := NewMatcher(excludes)

	var files []SourceFile
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == absRoot {
				return err
			}
			slog.Warn("skipping unreadable path",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath != "." && matcher.ExcludesDir(relPath) {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || filepath.Ext(path) != SourceExtension {
			return nil
		}
		if matcher.Excluded(relPath) {
			return nil
		}

		fi, infoErr := d.Info()
		if infoErr != nil {
			slog.Warn("skipping file without stat info",
				slog.String("file", relPath),
				slog.String("error", infoErr.Error()))
			return nil
		}

		files = append(files, SourceFile{
			Path:    relPath,
			AbsPath: path,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})

	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, config.NewConfigError(config.ErrUnreadableRoot, "root", "walk %s: %v", absRoot, walkErr)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// String implements fmt.Stringer for log output.
func (f SourceFile) String() string {
	return fmt.Sprintf("%s (%d bytes)", f.Path, f.Size)
}
