package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	s.valid = true
	return nil
}

func TestExpand(t *testing.T) {
	t.Setenv("CFG_SET", "value")
	t.Setenv("CFG_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"${CFG_SET}", "value"},
		{"$CFG_SET", "value"},
		{"${CFG_MISSING}", ""},
		{"${CFG_MISSING:-fallback}", "fallback"},
		{"${CFG_EMPTY:-fallback}", "fallback"},
		{"${CFG_SET:-fallback}", "value"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := Expand(tt.in); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_KeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("name: vault\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := &sample{Port: 8080}
	if err := Load(path, s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "vault" || s.Port != 8080 || !s.valid {
		t.Errorf("got %+v", *s)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if err := Load(filepath.Join(dir, "missing.yaml"), &sample{}); err == nil {
		t.Error("missing file should fail")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("name: [unterminated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Load(bad, &sample{}); err == nil {
		t.Error("malformed yaml should fail")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("port: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Load(invalid, &sample{}); err == nil {
		t.Error("validation failure should surface")
	}
}

func TestLoadOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	s := &sample{Name: "defaults"}
	if err := LoadOptional(missing, s); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if !s.valid {
		t.Error("defaults should still be validated")
	}

	if err := LoadOptional(missing, &sample{}); err == nil {
		t.Error("invalid defaults should fail")
	}
}
