package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version     int               `yaml:"version"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Correlation CorrelationConfig `yaml:"correlation"`
	SSH         SSHConfig         `yaml:"ssh"`
	Nmap        NmapConfig        `yaml:"nmap"`
	TCPScan     TCPScanConfig     `yaml:"tcpscan"`
	Sources     []SourceConfig    `yaml:"sources,omitempty"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CorrelationConfig holds correlator settings
type CorrelationConfig struct {
	ExecutionTimeout Duration `yaml:"execution_timeout"`
}

// SSHConfig configures the SSH execution channel
type SSHConfig struct {
	Enabled        bool     `yaml:"enabled"`
	User           string   `yaml:"user"`
	KeyPath        string   `yaml:"key_path,omitempty"`
	Passphrase     string   `yaml:"passphrase,omitempty"`
	Password       string   `yaml:"password,omitempty"`
	Port           int      `yaml:"port"`
	Kinds          []string `yaml:"kinds,omitempty"` // source kinds reachable over SSH
	KnownHosts     string   `yaml:"known_hosts,omitempty"`
	MaxConcurrent  int      `yaml:"max_concurrent"`
	DialRate       float64  `yaml:"dial_rate,omitempty"` // connection attempts per second
	DialBurst      int      `yaml:"dial_burst,omitempty"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	CommandTimeout Duration `yaml:"command_timeout"`
}

// NmapConfig configures the nmap scanner source
type NmapConfig struct {
	Enabled           bool     `yaml:"enabled"`
	InstanceID        string   `yaml:"instance_id"`
	Targets           []string `yaml:"targets,omitempty"`
	Ports             string   `yaml:"ports,omitempty"`
	OSDetection       bool     `yaml:"os_detection"`
	SkipHostDiscovery bool     `yaml:"skip_host_discovery"`
	Timeout           Duration `yaml:"timeout"`
}

// TCPScanConfig configures the built-in TCP connect scanner source
type TCPScanConfig struct {
	Enabled       bool     `yaml:"enabled"`
	InstanceID    string   `yaml:"instance_id"`
	Targets       []string `yaml:"targets,omitempty"`
	Ports         []int    `yaml:"ports,omitempty"`
	Timeout       Duration `yaml:"timeout"`
	MaxConcurrent int      `yaml:"max_concurrent"`
}

// SourceConfig registers a connector instance running outside this process
type SourceConfig struct {
	Kind       string            `yaml:"kind"`
	InstanceID string            `yaml:"instance_id"`
	Scanner    bool              `yaml:"scanner,omitempty"`
	Disabled   bool              `yaml:"disabled,omitempty"`
	Commands   map[string]string `yaml:"commands,omitempty"` // OS type -> identification command
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
