package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1h".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// TLSConfig configures transport security for the stream connection.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CAFile             string `yaml:"ca_file,omitempty"`
	CertFile           string `yaml:"cert_file,omitempty"`
	KeyFile            string `yaml:"key_file,omitempty"`
	ServerName         string `yaml:"server_name,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
}

// ServerConfig describes how to reach the perception server.
type ServerConfig struct {
	Host       string    `yaml:"host"`
	StreamPort int       `yaml:"stream_port,omitempty"`
	RESTPort   int       `yaml:"rest_port,omitempty"`
	Timeout    Duration  `yaml:"timeout,omitempty"`
	TLS        TLSConfig `yaml:"tls,omitempty"`
}

// ListenerConfig tunes the output-message subscription.
type ListenerConfig struct {
	Kind           string   `yaml:"kind,omitempty"`
	DialTimeout    Duration `yaml:"dial_timeout,omitempty"`
	ReconnectMin   Duration `yaml:"reconnect_min,omitempty"`
	ReconnectMax   Duration `yaml:"reconnect_max,omitempty"`
	PingInterval   Duration `yaml:"ping_interval,omitempty"`
	MaxMessageSize int64    `yaml:"max_message_size,omitempty"`
}

// ResidencyConfig holds the analytic thresholds for the dwell tracker.
type ResidencyConfig struct {
	WatchedZones []int    `yaml:"watched_zones"`
	NoiseFloor   Duration `yaml:"noise_floor,omitempty"`
	MaxResidency Duration `yaml:"max_residency,omitempty"`
	DoorHeight   float64  `yaml:"door_height,omitempty"`
}

// RuleConfig is a single alert rule evaluated against completed residencies.
type RuleConfig struct {
	ID         string `yaml:"id"`
	Expression string `yaml:"expression"`
	Severity   string `yaml:"severity,omitempty"`
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig controls the metrics endpoint.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
	Listen   string `yaml:"listen,omitempty"`
}

// Config is the root configuration structure for the monitor.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Listener  ListenerConfig  `yaml:"listener"`
	Residency ResidencyConfig `yaml:"residency"`
	Rules     []RuleConfig    `yaml:"rules"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	HotReload bool            `yaml:"hot_reload,omitempty"`
}

// Load reads and decodes the configuration file from disk.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

const (
	defaultStreamPort = 5050
	defaultRESTPort   = 9080

	// DefaultNoiseFloor filters out instantaneous false detections at
	// zone exits.
	DefaultNoiseFloor = 2 * time.Second
	// DefaultMaxResidency force-evicts records that never receive a loss
	// event.
	DefaultMaxResidency = time.Hour
	// DefaultDoorHeight is the minimum bounding-box height, in length
	// units, above which a track is assumed to be a door rather than a
	// person.
	DefaultDoorHeight = 2.5
)

// StreamPort returns the configured websocket port.
func (c *Config) StreamPort() int {
	if c == nil || c.Server.StreamPort <= 0 {
		return defaultStreamPort
	}
	return c.Server.StreamPort
}

// RESTPort returns the configured settings API port.
func (c *Config) RESTPort() int {
	if c == nil || c.Server.RESTPort <= 0 {
		return defaultRESTPort
	}
	return c.Server.RESTPort
}

// NoiseFloor returns the minimum dwell duration counted by a zone tracker.
func (c *Config) NoiseFloor() time.Duration {
	if c == nil || c.Residency.NoiseFloor.Duration <= 0 {
		return DefaultNoiseFloor
	}
	return c.Residency.NoiseFloor.Duration
}

// MaxResidency returns the forced-eviction age for residency records.
func (c *Config) MaxResidency() time.Duration {
	if c == nil || c.Residency.MaxResidency.Duration <= 0 {
		return DefaultMaxResidency
	}
	return c.Residency.MaxResidency.Duration
}

// DoorHeight returns the door classification threshold.
func (c *Config) DoorHeight() float64 {
	if c == nil || c.Residency.DoorHeight <= 0 {
		return DefaultDoorHeight
	}
	return c.Residency.DoorHeight
}

// Validate reports structural configuration errors that do not require any
// network access to detect.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config must not be nil")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host is required")
	}
	seen := make(map[int]struct{}, len(c.Residency.WatchedZones))
	for _, id := range c.Residency.WatchedZones {
		if id < 0 {
			return fmt.Errorf("watched zone id %d must not be negative", id)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("watched zone id %d listed twice", id)
		}
		seen[id] = struct{}{}
	}
	ruleIDs := make(map[string]struct{}, len(c.Rules))
	for _, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule id must not be empty")
		}
		if rule.Expression == "" {
			return fmt.Errorf("rule %s: expression must not be empty", rule.ID)
		}
		if _, ok := ruleIDs[rule.ID]; ok {
			return fmt.Errorf("duplicate rule id %q", rule.ID)
		}
		ruleIDs[rule.ID] = struct{}{}
	}
	return nil
}
