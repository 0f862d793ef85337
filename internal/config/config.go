// Package config loads sealtrack settings from SEALTRACK_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	apperrors "github.com/sadopc/sealtrack/internal/errors"
)

// Prefix of every environment variable, e.g. SEALTRACK_DATA_DIR.
const Prefix = "SEALTRACK"

// Config holds process configuration. Per-account behavior lives in the
// encrypted settings document, not here.
type Config struct {
	// DataDir holds the account registry and one database per account.
	// Defaults to <user config dir>/sealtrack.
	DataDir string `envconfig:"DATA_DIR" default:""`
	AppName string `envconfig:"APP_NAME" default:"sealtrack"`

	// LockAfter is the inactivity timeout; 0 disables auto-lock.
	LockAfter     time.Duration `envconfig:"LOCK_AFTER" default:"15m"`
	SyncInterval  time.Duration `envconfig:"SYNC_INTERVAL" default:"30s"`
	RemoteTimeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
	// LogFile receives logs while the terminal UI owns the screen. Defaults
	// to <DataDir>/sealtrack.log.
	LogFile string `envconfig:"LOG_FILE" default:""`

	ReplicaAddr string `envconfig:"REPLICA_ADDR" default:":5984"`
	// ReplicaDir stores served databases; empty keeps them in memory.
	ReplicaDir string `envconfig:"REPLICA_DIR" default:""`
}

// New parses the environment and resolves defaults.
func New() (*Config, error) {
	return Load()
}

// Load parses the environment, applies overrides such as command line flags,
// then resolves defaults so derived paths follow the overridden values.
func Load(overrides ...func(*Config)) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveDefaults fills derived paths and validates values.
func (c *Config) ResolveDefaults() error {
	if c.AppName == "" {
		c.AppName = "sealtrack"
	}
	if c.DataDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return apperrors.Configuration("no data dir: %v", err)
		}
		c.DataDir = filepath.Join(dir, c.AppName)
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, c.AppName+".log")
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return apperrors.Configuration("unsupported LOG_FORMAT: %s", c.LogFormat)
	}
	if c.LockAfter < 0 {
		return apperrors.Configuration("LOCK_AFTER must not be negative")
	}
	if c.SyncInterval <= 0 {
		return apperrors.Configuration("SYNC_INTERVAL must be positive")
	}
	if c.RemoteTimeout <= 0 {
		return apperrors.Configuration("REMOTE_TIMEOUT must be positive")
	}
	return nil
}

// AccountsPath is the account registry file.
func (c *Config) AccountsPath() string {
	return filepath.Join(c.DataDir, "accounts.toml")
}

// NewForTesting returns a config rooted at dir with auto-lock disabled.
func NewForTesting(dir string) *Config {
	return &Config{
		DataDir:       dir,
		AppName:       "sealtrack",
		LockAfter:     0,
		SyncInterval:  time.Second,
		RemoteTimeout: 2 * time.Second,
		LogLevel:      "debug",
		LogFormat:     "console",
		LogFile:       filepath.Join(dir, "sealtrack.log"),
		ReplicaAddr:   "127.0.0.1:0",
	}
}
