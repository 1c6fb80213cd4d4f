// Package filestore is a durable.Store that keeps one file per key
// in a directory of an afero.Fs.
package filestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/IvanBrykalov/tagcache/durable"
)

const (
	dirPerm = 0o750
	fileExt = ".snap"
)

// Store writes values atomically: data goes to a temp file in the same
// directory which is then renamed over the target.
type Store struct {
	fs  afero.Fs
	dir string
}

// New creates dir on fsys (if needed) and returns a Store rooted there.
// Pass afero.NewOsFs() for the real filesystem or afero.NewMemMapFs() in tests.
func New(fsys afero.Fs, dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("filestore: directory cannot be empty")
	}
	if err := fsys.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("filestore: create directory: %w", err)
	}
	return &Store{fs: fsys, dir: dir}, nil
}

// Get reads the file for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := afero.ReadFile(s.fs, s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, durable.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read %q: %w", key, err)
	}
	return b, nil
}

// Set replaces the file for key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := afero.TempFile(s.fs, s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(name)
		return fmt.Errorf("filestore: write %q: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(name)
		return fmt.Errorf("filestore: sync %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(name)
		return fmt.Errorf("filestore: close %q: %w", key, err)
	}
	if err := s.fs.Rename(name, s.path(key)); err != nil {
		_ = s.fs.Remove(name)
		return fmt.Errorf("filestore: rename %q: %w", key, err)
	}
	return nil
}

// Remove deletes the file for key; a missing file is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filestore: remove %q: %w", key, err)
	}
	return nil
}

// Close is a no-op; the Fs is owned by the caller.
func (s *Store) Close() error { return nil }

// path maps an arbitrary key to a file name that is safe on every platform.
func (s *Store) path(key string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileExt)
}

var _ durable.Store = (*Store)(nil)
