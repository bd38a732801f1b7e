package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIsSentinel(t *testing.T) {
	err := New(KindNotFound, "projects/a.md", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("typed error should match its sentinel")
	}
	if errors.Is(err, ErrAlreadyExists) {
		t.Error("typed error should not match another sentinel")
	}
}

func TestErrorWrapped(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("update: %w", New(KindWriteFailed, "areas/x.md", cause))

	if !errors.Is(err, ErrWriteFailed) {
		t.Error("wrapped typed error should match sentinel")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if got := KindOf(err); got != KindWriteFailed {
		t.Errorf("KindOf = %q, want %q", got, KindWriteFailed)
	}
	if got := PathOf(err); got != "areas/x.md" {
		t.Errorf("PathOf = %q", got)
	}
	if !strings.Contains(err.Error(), "areas/x.md") || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("message = %q, want path and cause", err.Error())
	}
}

func TestKindOfSentinel(t *testing.T) {
	err := fmt.Errorf("storage: %w", ErrPathEscape)
	if got := KindOf(err); got != KindPathEscape {
		t.Errorf("KindOf = %q, want %q", got, KindPathEscape)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}
