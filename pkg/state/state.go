// Package state manages the canonical runtime folder layout under the DB
// path.
package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds the resolved runtime directories.
type Paths struct {
	Store     string
	Retention string
	Crash     string
	Tmp       string
}

// PathsVar is populated by EnsureStateDirs at startup.
var PathsVar Paths

// EnsureStateDirs ensures the runtime folder layout exists under dbPath. It
// rejects symlinks and permissive modes and verifies the process can write
// to each directory.
func EnsureStateDirs(dbPath string) error {
	p := Paths{
		Store:     filepath.Join(dbPath, "store"),
		Retention: filepath.Join(dbPath, "state", "retention"),
		Crash:     filepath.Join(dbPath, "state", "crash"),
		Tmp:       filepath.Join(dbPath, "state", "tmp"),
	}

	for _, dir := range []string{p.Store, p.Retention, p.Crash, p.Tmp} {
		if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", dir, err)
		}
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", dir)
			}
			if fi.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode (group/other write): %s", dir)
			}
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", dir, err)
		}
		tmp, err := os.CreateTemp(dir, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", dir, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	PathsVar = p
	return nil
}
