// Package cache manages the local directory that mirrors playlist files.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"precache/pkg/utils"
)

var (
	ErrNotDirectory = errors.New("cache directory does not exist")
	ErrNotWritable  = errors.New("cache directory is not writable")
	ErrLocked       = errors.New("file is locked by another process")
)

const probePattern = ".precache-probe-*"

type Dir struct {
	root string
}

// Open checks that root exists, is a directory and accepts new files.
func Open(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
		}
		return nil, fmt.Errorf("cannot access %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a file", ErrNotDirectory, abs)
	}

	probe, err := os.CreateTemp(abs, probePattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotWritable, abs, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &Dir{root: abs}, nil
}

func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) Path(basename string) string {
	return filepath.Join(d.root, basename)
}

// Remove deletes a cached file and reports whether one was there.
func (d *Dir) Remove(basename string) (bool, error) {
	return utils.CleanupFile(d.Path(basename))
}

// File is a cache file held under an exclusive lock while it is written.
type File struct {
	*os.File
	path string
}

// Create opens basename for writing, takes an exclusive lock without blocking
// and only then truncates, so a file another process is writing is never
// clobbered. A held lock yields ErrLocked.
func (d *Dir) Create(basename string) (*File, error) {
	path := d.Path(basename)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if err := f.Truncate(0); err != nil {
		unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("failed to truncate %s: %w", path, err)
	}
	return &File{File: f, path: path}, nil
}

// Commit flushes and releases the file.
func (f *File) Commit() error {
	syncErr := f.Sync()
	unlockFile(f.File)
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", f.path, err)
	}
	if syncErr != nil {
		return fmt.Errorf("failed to flush %s: %w", f.path, syncErr)
	}
	return nil
}

// Discard releases the file and deletes what was written so far.
func (f *File) Discard() error {
	unlockFile(f.File)
	f.Close()
	_, err := utils.CleanupFile(f.path)
	return err
}
