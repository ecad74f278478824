package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: BYPASS_SERVER__PORT sets server.port.
const EnvPrefix = "BYPASS_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Auth      AuthConfig      `koanf:"auth"`
	Bypasses  BypassesConfig  `koanf:"bypasses"`
	Chains    ChainsConfig    `koanf:"chains"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite, postgres
	SQLite SQLiteConfig `koanf:"sqlite"`
	// Database is the generic database configuration used for postgres.
	Database DatabaseConfig `koanf:"database"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type DatabaseConfig struct {
	DSN string `koanf:"dsn"`
}

// AuthConfig lists the API users allowed to call the service.
type AuthConfig struct {
	// Disabled turns authentication off; every request acts as "anonymous".
	Disabled bool         `koanf:"disabled"`
	Users    []UserConfig `koanf:"users"`
}

type UserConfig struct {
	Name    string `koanf:"name"`
	KeyHash string `koanf:"key_hash"` // hex SHA-256 of the API key
}

// BypassesConfig controls which bundled modules are exposed.
type BypassesConfig struct {
	// Disabled lists "category/name" references hidden from the registry.
	Disabled []string `koanf:"disabled"`
}

type ChainsConfig struct {
	// SeedFile is a YAML chain file imported at start-up.
	SeedFile string `koanf:"seed_file"`
}

type TelemetryConfig struct {
	Tracing     bool   `koanf:"tracing"`
	ServiceName string `koanf:"service_name"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads DefaultPath and the environment.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads the YAML file at path, overlays BYPASS_ environment
// variables and applies defaults. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	defaults := map[string]any{
		"server.port":            8080,
		"server.request_timeout": "60s",
		"storage.type":           "memory",
		"storage.sqlite.path":    "bypassd.db",
		"telemetry.service_name": "bypassd",
		"log.level":              "info",
		"log.format":             "json",
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Storage.Database.DSN = substituteEnvVars(cfg.Storage.Database.DSN)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.type: unsupported value %q", c.Storage.Type)
	}
	if c.Storage.Type == "postgres" && c.Storage.Database.DSN == "" {
		return errors.New("storage.database.dsn: required for postgres")
	}
	for i, u := range c.Auth.Users {
		if u.Name == "" || u.KeyHash == "" {
			return fmt.Errorf("auth.users[%d]: name and key_hash required", i)
		}
	}
	for _, ref := range c.Bypasses.Disabled {
		if !strings.Contains(ref, "/") {
			return fmt.Errorf("bypasses.disabled: %q is not a category/name reference", ref)
		}
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
