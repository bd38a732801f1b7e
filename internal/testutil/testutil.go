// Package testutil provides shared test helpers for setting up vaults and services.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/noteservice"
	"github.com/starford/paravault/internal/para"
	"github.com/starford/paravault/internal/storage"
)

// TestVault creates a temporary vault with the four category directories and
// the given files (relative path → content).
func TestVault(t *testing.T, files map[string]string) (*para.Resolver, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	for _, c := range models.Categories {
		if err := os.MkdirAll(filepath.Join(dir, string(c)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for p, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	paths, err := para.NewResolver(dir)
	if err != nil {
		t.Fatal(err)
	}
	return paths, storage.NewFS(paths)
}

// TestService builds a loaded service over a temporary vault seeded with files.
func TestService(t *testing.T, files map[string]string, opts ...noteservice.Option) (*noteservice.Service, *para.Resolver) {
	t.Helper()
	paths, store := TestVault(t, files)
	opts = append([]noteservice.Option{noteservice.WithLogger(DiscardLogger())}, opts...)
	svc := noteservice.NewService(store, paths, opts...)
	if _, err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return svc, paths
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
