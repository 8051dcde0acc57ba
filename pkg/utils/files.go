package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// CleanupFile removes path if it exists and reports whether anything was removed.
func CleanupFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to cleanup file %s: %w", path, err)
	}
	return true, nil
}

// ExecutableDir returns the directory holding the running binary, symlinks resolved.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}
