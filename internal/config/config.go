// Package config loads the assetlens YAML configuration.
//
// Config file locations (priority order):
//  1. $ASSETLENS_CONFIG
//  2. ./assetlens.yaml
//  3. $XDG_CONFIG_HOME/assetlens/config.yaml
//  4. ~/.config/assetlens/config.yaml
//  5. /etc/assetlens/config.yaml
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"assetlens/internal/domain"
)

const (
	defaultDatabasePath     = "./assetlens.db"
	defaultExecutionTimeout = 5 * time.Minute
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path. Unknown keys are rejected.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = defaultDatabasePath
	}
	if c.Correlation.ExecutionTimeout == 0 {
		c.Correlation.ExecutionTimeout = Duration(defaultExecutionTimeout)
	}

	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.SSH.MaxConcurrent == 0 {
		c.SSH.MaxConcurrent = 5
	}
	if c.SSH.ConnectTimeout == 0 {
		c.SSH.ConnectTimeout = Duration(10 * time.Second)
	}
	if c.SSH.CommandTimeout == 0 {
		c.SSH.CommandTimeout = Duration(30 * time.Second)
	}

	if c.Nmap.InstanceID == "" {
		c.Nmap.InstanceID = "nmap"
	}
	if c.Nmap.Timeout == 0 {
		c.Nmap.Timeout = Duration(10 * time.Minute)
	}

	if c.TCPScan.InstanceID == "" {
		c.TCPScan.InstanceID = "tcpscan"
	}
	if c.TCPScan.Timeout == 0 {
		c.TCPScan.Timeout = Duration(time.Second)
	}
	if c.TCPScan.MaxConcurrent == 0 {
		c.TCPScan.MaxConcurrent = 200
	}
}

// Validate checks the config for values no component can run with
func (c *Config) Validate() error {
	var errs []error

	if c.Correlation.ExecutionTimeout < 0 {
		errs = append(errs, fmt.Errorf("correlation.execution_timeout must be positive"))
	}
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		errs = append(errs, fmt.Errorf("ssh.port %d out of range", c.SSH.Port))
	}
	if c.SSH.Enabled && c.SSH.User == "" {
		errs = append(errs, fmt.Errorf("ssh.user is required when ssh is enabled"))
	}
	if c.SSH.Enabled && c.SSH.KeyPath == "" && c.SSH.Password == "" {
		errs = append(errs, fmt.Errorf("ssh needs key_path or password"))
	}
	if c.SSH.DialRate < 0 {
		errs = append(errs, fmt.Errorf("ssh.dial_rate must not be negative"))
	}

	seen := make(map[string]string)
	claim := func(id, owner string) {
		if prev, ok := seen[id]; ok {
			errs = append(errs, fmt.Errorf("duplicate instance id %q (%s and %s)", id, prev, owner))
			return
		}
		seen[id] = owner
	}
	if c.Nmap.Enabled {
		claim(c.Nmap.InstanceID, "nmap")
	}
	if c.TCPScan.Enabled {
		claim(c.TCPScan.InstanceID, "tcpscan")
	}

	for i, src := range c.Sources {
		owner := fmt.Sprintf("sources[%d]", i)
		if src.Kind == "" {
			errs = append(errs, fmt.Errorf("%s: kind is required", owner))
		}
		if src.InstanceID == "" {
			errs = append(errs, fmt.Errorf("%s: instance_id is required", owner))
			continue
		}
		claim(src.InstanceID, owner)
		for osKey := range src.Commands {
			if !domain.OSType(osKey).IsKnown() {
				errs = append(errs, fmt.Errorf("%s: unknown os type %q in commands", owner, osKey))
			}
		}
	}

	return errors.Join(errs...)
}

// CommandTable returns the configured commands keyed by OS type
func (s SourceConfig) CommandTable() map[domain.OSType]string {
	if len(s.Commands) == 0 {
		return nil
	}
	table := make(map[domain.OSType]string, len(s.Commands))
	for osKey, cmd := range s.Commands {
		table[domain.OSType(osKey)] = cmd
	}
	return table
}
