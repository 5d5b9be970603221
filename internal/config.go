package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/casetree/internal/caseservice"
	"github.com/starford/casetree/internal/dedupe"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Case     CaseConfig        `yaml:"case"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Defaults DefaultsConfig    `yaml:"defaults"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Case.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Defaults.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
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

// CaseConfig points at the folder of case manifests.
type CaseConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// Validate validates the case folder configuration.
func (c *CaseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
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

// DefaultsConfig holds the option values used when a request leaves them
// unset.
type DefaultsConfig struct {
	ChunkSize   int    `yaml:"chunk_size"`
	ItemsBefore int    `yaml:"items_before"`
	ItemsAfter  int    `yaml:"items_after"`
	TieBreaker  string `yaml:"tie_breaker"`
}

// Validate validates the defaults.
func (c *DefaultsConfig) Validate() error {
	names := make([]any, len(dedupe.Names))
	for i, n := range dedupe.Names {
		names[i] = n
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.ChunkSize, validation.Min(0)),
		validation.Field(&c.ItemsBefore, validation.Min(0)),
		validation.Field(&c.ItemsAfter, validation.Min(0)),
		validation.Field(&c.TieBreaker, validation.In(names...)),
	)
}

// Service converts the defaults for the case service.
func (c *DefaultsConfig) Service() caseservice.Defaults {
	return caseservice.Defaults{
		ChunkSize:   c.ChunkSize,
		ItemsBefore: c.ItemsBefore,
		ItemsAfter:  c.ItemsAfter,
		TieBreaker:  c.TieBreaker,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Case: CaseConfig{
			Path:  "./cases",
			Watch: true,
		},
		SQLite: SQLiteConfig{
			Path: "./casetree.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Defaults: DefaultsConfig{
			ChunkSize:   500,
			ItemsBefore: 2,
			ItemsAfter:  2,
			TieBreaker:  dedupe.Earliest,
		},
	}
}
