// Package config provides configuration loading and management for the
// registry server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	// DriverSQLite stores documents in a local SQLite database.
	DriverSQLite = "sqlite"

	// DriverMemory keeps documents in memory; data is lost on restart.
	// Intended for development and tests.
	DriverMemory = "memory"
)

const (
	defaultAddress = ":8080"
	defaultBaseURL = "http://localhost:8080"
	defaultDBPath  = "data/layerhub.db"
	defaultBlobDir = "data/blobs"
)

// Config is the root configuration for the registry server.
type Config struct {
	// Address is the listen address for the HTTP server.
	Address string `yaml:"address,omitempty"`

	// BaseURL is the externally visible server address used to build
	// artifact URLs.
	BaseURL string `yaml:"baseURL,omitempty"`

	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Admin    AdminConfig    `yaml:"admin,omitempty"`
	CORS     CORSConfig     `yaml:"cors,omitempty"`
}

// DatabaseConfig selects and configures the document store backend.
type DatabaseConfig struct {
	// Driver is one of "sqlite" or "memory".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file path. Ignored for the memory driver.
	Path string `yaml:"path,omitempty"`
}

// StorageConfig configures the artifact blob store.
type StorageConfig struct {
	// Path is the directory blobs are stored under.
	Path string `yaml:"path,omitempty"`

	// SigningKeyFile is the path to a file containing the URL signing key.
	// This is the recommended approach for production deployments.
	SigningKeyFile string `yaml:"signingKeyFile,omitempty"`
}

// AdminConfig configures the admin capability check for license issuance.
type AdminConfig struct {
	// KeyFile is the path to a file containing the shared admin key.
	KeyFile string `yaml:"keyFile,omitempty"`
}

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// Load reads and validates configuration from a YAML file. An empty path
// yields the default configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		// filepath.Clean prevents path traversal through the flag value.
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = defaultAddress
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		c.Database.Path = defaultDBPath
	}
	if c.Storage.Path == "" {
		c.Storage.Path = defaultBlobDir
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q",
			DriverSQLite, DriverMemory, c.Database.Driver)
	}

	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("baseURL must be an http(s) URL, got %q", c.BaseURL)
	}

	return nil
}

// AdminKey returns the shared admin key using the following priority:
// 1. the configured key file, 2. the LHUB_ADMIN_KEY environment variable.
// The key from file has surrounding whitespace trimmed.
func (c *Config) AdminKey() (string, error) {
	if c.Admin.KeyFile != "" {
		data, err := os.ReadFile(filepath.Clean(c.Admin.KeyFile))
		if err != nil {
			return "", fmt.Errorf("failed to read admin key from file %s: %w", c.Admin.KeyFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if key := os.Getenv("LHUB_ADMIN_KEY"); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no admin key configured: set admin.keyFile or LHUB_ADMIN_KEY environment variable")
}

// SigningKey returns the artifact URL signing key using the same file-first,
// then LHUB_SIGNING_KEY environment variable priority as AdminKey.
func (c *Config) SigningKey() ([]byte, error) {
	if c.Storage.SigningKeyFile != "" {
		data, err := os.ReadFile(filepath.Clean(c.Storage.SigningKeyFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key from file %s: %w", c.Storage.SigningKeyFile, err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return nil, fmt.Errorf("signing key file %s is empty", c.Storage.SigningKeyFile)
		}
		return []byte(key), nil
	}
	if key := os.Getenv("LHUB_SIGNING_KEY"); key != "" {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("no signing key configured: set storage.signingKeyFile or LHUB_SIGNING_KEY environment variable")
}
