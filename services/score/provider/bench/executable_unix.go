// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package bench

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// checkExecutable reports an error unless bin is a regular file the
// current user may execute.
func checkExecutable(bin string) error {
	info, err := os.Stat(bin)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.New("not a regular file")
	}
	return unix.Access(bin, unix.X_OK)
}
