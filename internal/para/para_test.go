package para

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/models"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(t.TempDir())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestNewResolver_MissingRoot(t *testing.T) {
	if _, err := NewResolver(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestValidate(t *testing.T) {
	r := newResolver(t)
	tests := []struct {
		in   string
		want string
		err  error
	}{
		{"projects/a.md", "projects/a.md", nil},
		{"projects/./sub/../a.md", "projects/a.md", nil},
		{`areas\health.md`, "areas/health.md", nil},
		{"../etc/passwd", "", apperr.ErrPathEscape},
		{"projects/../../x.md", "", apperr.ErrPathEscape},
		{"/etc/passwd", "", apperr.ErrPathEscape},
		{"", "", apperr.ErrInvalidPath},
		{".", "", apperr.ErrInvalidPath},
		{"a\x00b", "", apperr.ErrInvalidPath},
	}
	for _, tt := range tests {
		got, err := r.Validate(tt.in)
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Errorf("Validate(%q) err = %v, want %v", tt.in, err, tt.err)
			}
			if apperr.PathOf(err) != tt.in {
				t.Errorf("Validate(%q) error path = %q", tt.in, apperr.PathOf(err))
			}
			continue
		}
		if err != nil {
			t.Errorf("Validate(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Validate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAbsStaysUnderRoot(t *testing.T) {
	r := newResolver(t)
	abs, err := r.Abs("resources/go/tips.md")
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	if want := filepath.Join(r.Root(), "resources", "go", "tips.md"); abs != want {
		t.Errorf("Abs = %q, want %q", abs, want)
	}
	rel, err := r.Rel(abs)
	if err != nil || rel != "resources/go/tips.md" {
		t.Errorf("Rel = %q, %v", rel, err)
	}
	if _, err := r.Rel(filepath.Dir(r.Root())); !errors.Is(err, apperr.ErrPathEscape) {
		t.Errorf("Rel outside root err = %v", err)
	}
}

func TestCategoryOf(t *testing.T) {
	r := newResolver(t)
	for _, c := range models.Categories {
		got, err := r.CategoryOf(string(c) + "/note.md")
		if err != nil || got != c {
			t.Errorf("CategoryOf(%s/note.md) = %q, %v", c, got, err)
		}
	}
	if _, err := r.CategoryOf("inbox/note.md"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("unknown category err = %v, want ErrInvalidPath", err)
	}
	if _, err := r.CategoryOf("Projects/note.md"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("category match is exact, got err = %v", err)
	}
}

func TestResolve(t *testing.T) {
	r := newResolver(t)
	got, err := r.Resolve(models.CategoryAreas, "health/sleep")
	if err != nil || got != "areas/health/sleep.md" {
		t.Errorf("Resolve = %q, %v", got, err)
	}
	got, err = r.Resolve(models.CategoryProjects, "plan.markdown")
	if err != nil || got != "projects/plan.markdown" {
		t.Errorf("Resolve = %q, %v", got, err)
	}
	if _, err := r.Resolve("inbox", "x"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("bad category err = %v", err)
	}
	if _, err := r.Resolve(models.CategoryAreas, "../../x"); !errors.Is(err, apperr.ErrPathEscape) {
		t.Errorf("escaping name err = %v", err)
	}
}

func TestDocumentPath(t *testing.T) {
	r := newResolver(t)
	rel, c, err := r.DocumentPath("archives/2023/q1.md")
	if err != nil || rel != "archives/2023/q1.md" || c != models.CategoryArchives {
		t.Errorf("DocumentPath = %q, %q, %v", rel, c, err)
	}
	for _, bad := range []string{"archives", "archives/img.png", "README.md"} {
		if _, _, err := r.DocumentPath(bad); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("DocumentPath(%q) err = %v, want ErrInvalidPath", bad, err)
		}
	}
}

func TestEffectiveCategory(t *testing.T) {
	if got := EffectiveCategory("projects/a.md", models.Metadata{}); got != models.CategoryProjects {
		t.Errorf("path category = %q", got)
	}
	if got := EffectiveCategory("projects/a.md", models.Metadata{Category: models.CategoryArchives}); got != models.CategoryArchives {
		t.Errorf("override = %q", got)
	}
	if got := EffectiveCategory("projects/a.md", models.Metadata{Category: "inbox"}); got != models.CategoryProjects {
		t.Errorf("invalid override should fall back, got %q", got)
	}
	if got := EffectiveCategory("README.md", models.Metadata{}); got != "" {
		t.Errorf("no category = %q", got)
	}
}
