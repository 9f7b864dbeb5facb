// Package fsutil provides the small filesystem helpers shared by the
// download and extraction stages.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDirectory makes sure the directory for destination exists, creating
// all missing intermediate segments. When isDirectory is false, destination
// is treated as a file path and its parent directory is created instead.
// It is idempotent and returns whether anything was actually created; the
// return value is for observability only.
func EnsureDirectory(destination string, isDirectory bool) (created bool, err error) {
	abs, err := filepath.Abs(destination)
	if err != nil {
		return false, fmt.Errorf("resolve path %s: %w", destination, err)
	}

	dir := abs
	if !isDirectory {
		dir = filepath.Dir(abs)
	}

	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("path exists and is not a directory: %s", dir)
		}
		return false, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	return true, nil
}
