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
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// ManifestFileName is the Cargo manifest read for the dependency count.
const ManifestFileName = "Cargo.toml"

// cargoManifest is the subset of Cargo.toml the dependency count needs.
type cargoManifest struct {
	Dependencies map[string]any `toml:"dependencies"`
}

// CountDependencies returns the number of entries in root/Cargo.toml's
// [dependencies] table. A missing manifest counts as zero.
//
// Outputs:
//   - int: Number of declared dependencies.
//   - error: Non-nil if the manifest exists but cannot be read or decoded.
func CountDependencies(root string) (int, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading %s: %w", ManifestFileName, err)
	}

	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return 0, fmt.Errorf("decoding %s: %w", ManifestFileName, err)
	}
	return len(m.Dependencies), nil
}

// countLines returns the number of lines in content. A final line without
// a trailing newline counts; empty content has zero lines.
func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
