package config

import (
	"fmt"
	"os"
)

// Supported store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
)

// Config holds all runtime configuration for a visitload run.
type Config struct {
	DSN         string
	Driver      string // "postgres", "mongo" or "sqlite"
	FilePath    string
	ProfilePath string
	LogFormat   string // "text" or "json"
	LogLevel    string
	DryRun      bool
	Archive     bool
	Migrate     bool
	Addr        string
	MaxUploadMB int64
	OutPath     string
	Profile     Profile
}

// LoadProfile fills c.Profile from ProfilePath, or with the built-in
// defaults when no profile file is configured.
func (c *Config) LoadProfile() error {
	if c.ProfilePath == "" {
		c.Profile = DefaultProfile()
		return nil
	}
	p, err := LoadProfileFile(c.ProfilePath)
	if err != nil {
		return err
	}
	c.Profile = p
	return nil
}

// Validate checks required fields and returns an error if the config is invalid.
func (c *Config) Validate() error {
	if c.FilePath == "" {
		return fmt.Errorf("--file is required")
	}
	if _, err := os.Stat(c.FilePath); err != nil {
		return fmt.Errorf("file not accessible: %w", err)
	}
	return nil
}

// ValidateWithDSN checks both file and store fields.
func (c *Config) ValidateWithDSN() error {
	if err := c.Validate(); err != nil {
		return err
	}
	return c.ValidateStore()
}

// ValidateStore checks the driver and DSN only.
func (c *Config) ValidateStore() error {
	switch c.Driver {
	case DriverPostgres, DriverMongo, DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q (want postgres, mongo or sqlite)", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("--dsn or DATABASE_URL is required")
	}
	return nil
}
