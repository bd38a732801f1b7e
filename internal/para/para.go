// Package para maps vault paths onto the four PARA categories and keeps every
// path inside the vault root.
package para

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/models"
)

// DocumentExts lists the file extensions treated as documents.
var DocumentExts = []string{".md", ".markdown"}

// Resolver validates relative vault paths against a fixed root. It is
// immutable after construction and safe for concurrent use.
type Resolver struct {
	root string // absolute
}

// NewResolver creates a Resolver rooted at root. The directory must exist.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("para: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("para: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("para: root is not a directory: %s", abs)
	}
	return &Resolver{root: abs}, nil
}

// Root returns the absolute vault root.
func (r *Resolver) Root() string { return r.root }

// Validate cleans p into a slash-separated path relative to the root.
// Absolute paths and paths normalising outside the root fail with
// apperr.ErrPathEscape.
func (r *Resolver) Validate(p string) (string, error) {
	return Clean(p)
}

// Abs returns the absolute file-system location of a validated path.
func (r *Resolver) Abs(p string) (string, error) {
	rel, err := Clean(p)
	if err != nil {
		return "", err
	}
	abs := filepath.Join(r.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(abs, r.root+string(filepath.Separator)) && abs != r.root {
		return "", apperr.New(apperr.KindPathEscape, p, nil)
	}
	return abs, nil
}

// Rel converts an absolute file-system path under the root back into a vault
// path.
func (r *Resolver) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", apperr.New(apperr.KindPathEscape, abs, err)
	}
	return Clean(filepath.ToSlash(rel))
}

// CategoryOf returns the category named by the leading segment of p. An
// unrecognised leading segment is apperr.ErrInvalidPath.
func (r *Resolver) CategoryOf(p string) (models.Category, error) {
	rel, err := Clean(p)
	if err != nil {
		return "", err
	}
	return categoryOf(rel)
}

// Resolve builds the document path for name inside category c. A missing
// extension defaults to ".md".
func (r *Resolver) Resolve(c models.Category, name string) (string, error) {
	if !c.Valid() {
		return "", apperr.Newf(apperr.KindInvalidPath, string(c), "unknown category %q", c)
	}
	rel, err := Clean(name)
	if err != nil {
		return "", err
	}
	if !IsDocument(rel) {
		rel += ".md"
	}
	return string(c) + "/" + rel, nil
}

// DocumentPath validates p as a document location: inside a category
// directory and carrying a document extension.
func (r *Resolver) DocumentPath(p string) (string, models.Category, error) {
	rel, err := Clean(p)
	if err != nil {
		return "", "", err
	}
	c, err := categoryOf(rel)
	if err != nil {
		return "", "", err
	}
	if !strings.Contains(rel, "/") {
		return "", "", apperr.Newf(apperr.KindInvalidPath, p, "category directory is not a document")
	}
	if !IsDocument(rel) {
		return "", "", apperr.Newf(apperr.KindInvalidPath, p, "not a document file")
	}
	return rel, c, nil
}

// Clean normalises p to a relative slash path without consulting a root.
func Clean(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", apperr.Newf(apperr.KindInvalidPath, p, "path contains NUL")
	}
	s := strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if s == "" {
		return "", apperr.Newf(apperr.KindInvalidPath, p, "empty path")
	}
	if strings.HasPrefix(s, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", apperr.New(apperr.KindPathEscape, p, nil)
	}
	s = path.Clean(s)
	if s == ".." || strings.HasPrefix(s, "../") {
		return "", apperr.New(apperr.KindPathEscape, p, nil)
	}
	if s == "." {
		return "", apperr.Newf(apperr.KindInvalidPath, p, "path names the root")
	}
	return s, nil
}

// IsDocument reports whether p carries a document extension.
func IsDocument(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range DocumentExts {
		if ext == e {
			return true
		}
	}
	return false
}

func categoryOf(rel string) (models.Category, error) {
	head, _, _ := strings.Cut(rel, "/")
	c := models.Category(head)
	if !c.Valid() {
		return "", apperr.Newf(apperr.KindInvalidPath, rel, "unknown category %q", head)
	}
	return c, nil
}

// EffectiveCategory returns the category a document belongs to: the header
// override when it names a valid category, otherwise the path's category.
// It returns "" when neither applies.
func EffectiveCategory(p string, m models.Metadata) models.Category {
	if m.Category.Valid() {
		return m.Category
	}
	rel, err := Clean(p)
	if err != nil {
		return ""
	}
	c, err := categoryOf(rel)
	if err != nil {
		return ""
	}
	return c
}
