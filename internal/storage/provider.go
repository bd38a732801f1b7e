// Package storage defines the vault file-system abstraction.
package storage

import "context"

// Provider is the injected file capability the vault core runs on. Paths are
// slash-separated and relative to the vault root; implementations validate
// them before touching anything.
type Provider interface {
	// ReadFile returns the text at path. A missing file is apperr.ErrNotFound.
	ReadFile(ctx context.Context, path string) (string, error)
	// WriteFile atomically replaces the file at path, creating parent
	// directories. Failures are apperr.ErrWriteFailed or apperr.ErrPathEscape.
	WriteFile(ctx context.Context, path, content string) error
	// Exists reports whether a file exists at path.
	Exists(ctx context.Context, path string) (bool, error)
	// ListFiles returns every document file under dir ("" for the whole vault),
	// sorted.
	ListFiles(ctx context.Context, dir string) ([]string, error)
	// DeleteFile removes the file at path. A missing file is apperr.ErrNotFound.
	DeleteFile(ctx context.Context, path string) error
}
