package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Transports.
const (
	TransportHTTP = "http"
	TransportMCP  = "mcp"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Vault    VaultConfig       `yaml:"vault"`
	Snapshot SnapshotConfig    `yaml:"snapshot"`
	Auth     AuthConfig        `yaml:"auth"`
	Search   SearchConfig      `yaml:"search"`
	Graph    GraphConfig       `yaml:"graph"`
	Load     LoadConfig        `yaml:"load"`
	Locks    LocksConfig       `yaml:"locks"`
	Events   EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&c.App, &c.Vault, &c.Snapshot, &c.Auth, &c.Search, &c.Graph, &c.Load, &c.Locks, &c.Events,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// Transport selects the outer surface: the REST API or MCP over stdio.
	Transport string     `yaml:"transport"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Transport == "" {
		c.Transport = TransportHTTP
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Transport, validation.In(TransportHTTP, TransportMCP)),
	); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
	// Watch feeds edits made outside the service back into memory.
	Watch bool `yaml:"watch"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SnapshotConfig controls the SQLite renderer snapshot.
type SnapshotConfig struct {
	// Path of the SQLite file. Empty disables export.
	Path          string `yaml:"path"`
	IncludeDrafts bool   `yaml:"include_drafts"`
	// ExportOnStart writes a snapshot right after the initial load.
	ExportOnStart bool `yaml:"export_on_start"`
}

// Validate validates the snapshot configuration.
func (c *SnapshotConfig) Validate() error {
	if c.ExportOnStart && c.Path == "" {
		return fmt.Errorf("snapshot: export_on_start needs a path")
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// SearchConfig holds result paging and snippet settings.
type SearchConfig struct {
	DefaultLimit  int `yaml:"default_limit"`
	MaxLimit      int `yaml:"max_limit"`
	SnippetRadius int `yaml:"snippet_radius"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DefaultLimit, validation.Min(0)),
		validation.Field(&c.MaxLimit, validation.Min(0)),
		validation.Field(&c.SnippetRadius, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if c.MaxLimit > 0 && c.DefaultLimit > c.MaxLimit {
		return fmt.Errorf("search: default_limit %d exceeds max_limit %d", c.DefaultLimit, c.MaxLimit)
	}
	return nil
}

// GraphConfig caps neighborhood traversals.
type GraphConfig struct {
	MaxDepth int `yaml:"max_depth"`
	MaxNodes int `yaml:"max_nodes"`
}

// Validate validates the graph configuration.
func (c *GraphConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.MaxDepth, validation.Min(0), validation.Max(10)),
		validation.Field(&c.MaxNodes, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	return nil
}

// LoadConfig controls the startup and reindex load.
type LoadConfig struct {
	Workers int `yaml:"workers"`
}

// Validate validates the load configuration.
func (c *LoadConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(0), validation.Max(256)),
	); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	return nil
}

// LocksConfig bounds how long a mutation waits for its path locks.
type LocksConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the locks configuration.
func (c *LocksConfig) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("locks: timeout must not be negative")
	}
	return nil
}

// EventsConfig controls the change stream.
type EventsConfig struct {
	// GraphThrottle is the minimum gap between graph.updated events.
	GraphThrottle time.Duration `yaml:"graph_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	if c.GraphThrottle < 0 {
		return fmt.Errorf("events: graph_throttle must not be negative")
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			Transport: TransportHTTP,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:  "./vault",
			Watch: true,
		},
		Snapshot: SnapshotConfig{
			Path: "./snapshot.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Search: SearchConfig{
			DefaultLimit:  20,
			MaxLimit:      100,
			SnippetRadius: 80,
		},
		Graph: GraphConfig{
			MaxDepth: 5,
			MaxNodes: 200,
		},
		Load: LoadConfig{
			Workers: 8,
		},
		Locks: LocksConfig{
			Timeout: 5 * time.Second,
		},
		Events: EventsConfig{
			GraphThrottle: 2 * time.Second,
		},
	}
}
