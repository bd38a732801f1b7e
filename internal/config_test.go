package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	pkgconfig "github.com/starford/paravault/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestApplicationConfig_Transport(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.Transport = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty transport should default: %v", err)
	}
	if cfg.App.Transport != TransportHTTP {
		t.Errorf("transport = %q, want %q", cfg.App.Transport, TransportHTTP)
	}

	cfg.App.Transport = "grpc"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown transport should fail validation")
	}
}

func TestConfig_SectionErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"export without path", func(c *Config) { c.Snapshot.Path = ""; c.Snapshot.ExportOnStart = true }, "export_on_start"},
		{"default above max", func(c *Config) { c.Search.DefaultLimit = 500 }, "exceeds max_limit"},
		{"graph depth", func(c *Config) { c.Graph.MaxDepth = 11 }, "graph"},
		{"too many workers", func(c *Config) { c.Load.Workers = 1000 }, "load"},
		{"negative lock timeout", func(c *Config) { c.Locks.Timeout = -time.Second }, "locks"},
		{"negative throttle", func(c *Config) { c.Events.GraphThrottle = -time.Second }, "events"},
		{"empty vault", func(c *Config) { c.Vault.Path = "" }, "blank"},
		{"bad port", func(c *Config) { c.App.HTTP.Port = 70000 }, "65535"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestConfig_LoadYAML(t *testing.T) {
	t.Setenv("PARAVAULT_TEST_PORT", "9090")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: debug
  transport: mcp
  http:
    port: ${PARAVAULT_TEST_PORT}
vault:
  path: /srv/vault
  watch: false
search:
  default_limit: 10
locks:
  timeout: 3s
events:
  graph_throttle: 500ms
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := NewDefaultConfig()
	want.App.LogLevel = slog.LevelDebug
	want.App.Transport = TransportMCP
	want.App.HTTP.Port = 9090
	want.Vault = VaultConfig{Path: "/srv/vault"}
	want.Search.DefaultLimit = 10
	want.Locks.Timeout = 3 * time.Second
	want.Events.GraphThrottle = 500 * time.Millisecond

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_LoadYAMLInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  mode: token\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := pkgconfig.Load(path, NewDefaultConfig())
	if err == nil || !strings.Contains(err.Error(), "config validation failed") {
		t.Fatalf("Load error = %v, want validation failure", err)
	}
}
