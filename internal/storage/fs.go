package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/para"
)

// FS implements Provider backed by the local file system.
type FS struct {
	paths *para.Resolver
}

// NewFS creates a new FS provider over the resolver's root.
func NewFS(paths *para.Resolver) *FS {
	return &FS{paths: paths}
}

// ReadFile returns the text of a vault file.
func (f *FS) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	abs, err := f.paths.Abs(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperr.New(apperr.KindNotFound, path, nil)
		}
		return "", fmt.Errorf("storage: read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile atomically replaces content: tmp file, fsync, rename.
func (f *FS) WriteFile(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := f.paths.Abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return apperr.New(apperr.KindWriteFailed, path, fmt.Errorf("mkdir: %w", err))
	}
	if err := atomic.WriteFile(abs, strings.NewReader(content)); err != nil {
		return apperr.New(apperr.KindWriteFailed, path, err)
	}
	return nil
}

// Exists reports whether a regular file exists at path.
func (f *FS) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	abs, err := f.paths.Abs(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
}

// ListFiles walks dir and returns every document file below it. Hidden
// directories are skipped.
func (f *FS) ListFiles(ctx context.Context, dir string) ([]string, error) {
	base := f.paths.Root()
	if dir != "" {
		abs, err := f.paths.Abs(dir)
		if err != nil {
			return nil, err
		}
		base = abs
	}

	var out []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == base && errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !para.IsDocument(d.Name()) {
			return nil
		}
		rel, err := f.paths.Rel(p)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// DeleteFile removes a file from the vault.
func (f *FS) DeleteFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := f.paths.Abs(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.New(apperr.KindNotFound, path, nil)
		}
		return apperr.New(apperr.KindWriteFailed, path, fmt.Errorf("delete: %w", err))
	}
	return nil
}
