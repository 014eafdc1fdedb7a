// Package storage copies dataset files into the managed storage area.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

var ErrOutsideRoot = errors.New("path escapes the storage root")

// Store owns the files below root.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string {
	return s.root
}

// CopyFiles copies files into root/prefix and returns the new paths in the same order.
func (s *Store) CopyFiles(ctx context.Context, prefix string, files ...string) ([]string, error) {
	dir, err := s.dir(prefix)
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	copied := make([]string, 0, len(files))

	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return nil, multierr.Append(err, s.Remove(copied...))
		}

		dst := filepath.Join(dir, filepath.Base(src))

		err = copyFile(src, dst)
		if err != nil {
			return nil, multierr.Append(err, s.Remove(copied...))
		}

		copied = append(copied, dst)
	}

	return copied, nil
}

// Save writes r to root/prefix/name.
func (s *Store) Save(prefix, name string, r io.Reader) (string, error) {
	dir, err := s.dir(prefix)
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(dir, 0o750)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	dst := filepath.Join(dir, filepath.Base(name))

	f, err := os.Create(dst) // #nosec G304 -- dst is below the storage root
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}

	_, err = io.Copy(f, r)

	return dst, multierr.Append(err, f.Close())
}

// Remove deletes paths below root. Missing files are ignored.
func (s *Store) Remove(paths ...string) error {
	var errs error

	for _, p := range paths {
		if !s.contains(p) {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p, ErrOutsideRoot))

			continue
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (s *Store) dir(prefix string) (string, error) {
	dir := filepath.Join(s.root, prefix)
	if !s.contains(dir) {
		return "", fmt.Errorf("%s: %w", prefix, ErrOutsideRoot)
	}

	return dir, nil
}

func (s *Store) contains(path string) bool {
	rel, err := filepath.Rel(filepath.Clean(s.root), filepath.Clean(path))

	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src) // #nosec G304 -- source comes from the resource files
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	defer func() { err = multierr.Append(err, out.Close()) }()

	_, err = io.Copy(out, in)
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}

	return nil
}
