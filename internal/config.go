package internal

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Duration is a time.Duration that unmarshals from YAML strings like "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Drop   DropConfig        `yaml:"drop"`
	AI     AIConfig          `yaml:"ai"`
	Mongo  MongoConfig       `yaml:"mongo"`
	Ledger LedgerConfig      `yaml:"ledger"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Drop.Validate(); err != nil {
		return err
	}
	if err := c.AI.Validate(); err != nil {
		return err
	}
	if err := c.Mongo.Validate(); err != nil {
		return err
	}
	if err := c.Ledger.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// DropConfig holds drop-folder and pipeline settings.
//
// QuietPeriod is the minimum interval with no filesystem events before a
// file is considered fully written and safe to read. Workers bounds how
// many files may be processed concurrently.
type DropConfig struct {
	Path        string   `yaml:"path"`
	Extensions  []string `yaml:"extensions"`
	QuietPeriod Duration `yaml:"quiet_period"`
	Workers     int      `yaml:"workers"`
}

// Validate validates the drop-folder configuration.
func (c *DropConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Extensions, validation.Required),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
	); err != nil {
		return err
	}
	if c.QuietPeriod.Std() <= 0 {
		return fmt.Errorf("drop: quiet_period must be positive")
	}
	return nil
}

// AIConfig holds the upstream inference endpoint settings.
type AIConfig struct {
	Endpoint    string   `yaml:"endpoint"`
	Model       string   `yaml:"model"`
	Timeout     Duration `yaml:"timeout"`
	MaxAttempts int      `yaml:"max_attempts"`
}

// Validate validates the AI configuration.
func (c *AIConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1), validation.Max(10)),
	); err != nil {
		return err
	}
	if c.Timeout.Std() <= 0 {
		return fmt.Errorf("ai: timeout must be positive")
	}
	return nil
}

// MongoConfig holds the note archive connection settings.
//
// StorageAttempts bounds how many times the pipeline retries an upsert
// before marking the drop failed; the source file stays on disk so a
// later sweep can re-attempt it.
type MongoConfig struct {
	URI             string `yaml:"uri"`
	Database        string `yaml:"database"`
	Collection      string `yaml:"collection"`
	StorageAttempts int    `yaml:"storage_attempts"`
}

// Validate validates the Mongo configuration.
func (c *MongoConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URI, validation.Required),
		validation.Field(&c.Database, validation.Required),
		validation.Field(&c.Collection, validation.Required),
		validation.Field(&c.StorageAttempts, validation.Required, validation.Min(1), validation.Max(10)),
	)
}

// LedgerConfig holds the local ingest journal settings.
type LedgerConfig struct {
	Path      string `yaml:"path"`
	CacheSize int    `yaml:"cache_size"`
}

// Validate validates the ledger configuration.
func (c *LedgerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.CacheSize, validation.Required, validation.Min(16)),
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// NewDefaultConfig returns a new Config with sensible default values.
// The three required connection parameters (Mongo URI, AI endpoint, model
// name) are seeded from the environment so a config file is optional;
// validation fails at startup when no source provides them.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Drop: DropConfig{
			Path:        "./drops",
			Extensions:  []string{".txt"},
			QuietPeriod: Duration(2 * time.Second),
			Workers:     4,
		},
		AI: AIConfig{
			Endpoint:    os.Getenv("AI_ENDPOINT"),
			Model:       os.Getenv("MODEL_NAME"),
			Timeout:     Duration(120 * time.Second),
			MaxAttempts: 3,
		},
		Mongo: MongoConfig{
			URI:             os.Getenv("MONGO_URI"),
			Database:        "munin",
			Collection:      "notes",
			StorageAttempts: 3,
		},
		Ledger: LedgerConfig{
			Path:      "./munin.db",
			CacheSize: 1024,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
