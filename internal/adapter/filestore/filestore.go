// Package filestore writes uploaded images into the watched directory.
//
// Files are first written to a hidden staging name and synced. Publish then
// hard-links the staging file to its final name, which fails instead of
// replacing an existing entry. The directory scanner ignores dot-files, so it
// never observes a partially written upload.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidName = errors.New("invalid file name")
	ErrExists      = errors.New("file already exists")
)

// FileStore manages image files inside one directory.
type FileStore struct {
	dir string
}

// New creates the directory if needed.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the managed directory.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// Staged is a fully written file that is not yet visible under its final name.
type Staged struct {
	Name string
	Size int64

	tmpPath   string
	finalPath string
	published bool
	done      bool
}

// Stage copies r into a hidden file and fsyncs it. name must be a plain base
// name without a leading dot.
func (fs *FileStore) Stage(r io.Reader, name string) (*Staged, error) {
	if name == "" || strings.HasPrefix(name, ".") || name != filepath.Base(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	tmpPath := filepath.Join(fs.dir, "."+uuid.NewString()+".part")
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to sync upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to close upload: %w", err)
	}

	return &Staged{
		Name:      name,
		Size:      size,
		tmpPath:   tmpPath,
		finalPath: filepath.Join(fs.dir, name),
	}, nil
}

// Publish makes the file visible under its final name. An existing file or
// directory with that name is left untouched and ErrExists is returned; the
// staging file is removed on any failure.
func (s *Staged) Publish() error {
	if s.done || s.published {
		return nil
	}
	if err := os.Link(s.tmpPath, s.finalPath); err != nil {
		s.done = true
		os.Remove(s.tmpPath)
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, s.Name)
		}
		return fmt.Errorf("failed to publish %s: %w", s.Name, err)
	}
	s.published = true
	return nil
}

// Commit publishes the file if needed and drops the staging name. Once the
// file is published, an error only means a hidden staging file was left
// behind.
func (s *Staged) Commit() error {
	if s.done {
		return nil
	}
	if err := s.Publish(); err != nil {
		return err
	}
	s.done = true
	if err := os.Remove(s.tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staging file: %w", err)
	}
	return nil
}

// Discard removes the staged file and, if it was published, its final name.
// It is a no-op after Commit.
func (s *Staged) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	var errs []error
	if s.published {
		if err := os.Remove(s.finalPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", s.Name, err))
		}
	}
	if err := os.Remove(s.tmpPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove staged file: %w", err))
	}
	return errors.Join(errs...)
}
