package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFull(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `server:
  host: sensor-lab.local
  stream_port: 6050
  rest_port: 9081
listener:
  kind: output
  reconnect_min: 500ms
  reconnect_max: 30s
residency:
  watched_zones: [1007, 1008, 1009, 1010, 1011]
  noise_floor: 2s
  max_residency: 1h
  door_height: 2.5
rules:
  - id: lingering
    expression: dwell_seconds > 3600
    severity: warn
logging:
  level: debug
telemetry:
  enabled: true
  listen: ":2112"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Host != "sensor-lab.local" {
		t.Fatalf("host = %q", cfg.Server.Host)
	}
	if cfg.StreamPort() != 6050 || cfg.RESTPort() != 9081 {
		t.Fatalf("ports = %d/%d", cfg.StreamPort(), cfg.RESTPort())
	}
	if len(cfg.Residency.WatchedZones) != 5 {
		t.Fatalf("expected 5 watched zones, got %d", len(cfg.Residency.WatchedZones))
	}
	if cfg.NoiseFloor() != 2*time.Second {
		t.Fatalf("noise floor = %s", cfg.NoiseFloor())
	}
	if cfg.MaxResidency() != time.Hour {
		t.Fatalf("max residency = %s", cfg.MaxResidency())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestDefaultsApplyWhenUnset(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Host: "localhost"}}
	if cfg.StreamPort() != 5050 {
		t.Fatalf("stream port = %d", cfg.StreamPort())
	}
	if cfg.RESTPort() != 9080 {
		t.Fatalf("rest port = %d", cfg.RESTPort())
	}
	if cfg.NoiseFloor() != DefaultNoiseFloor {
		t.Fatalf("noise floor = %s", cfg.NoiseFloor())
	}
	if cfg.MaxResidency() != DefaultMaxResidency {
		t.Fatalf("max residency = %s", cfg.MaxResidency())
	}
	if cfg.DoorHeight() != DefaultDoorHeight {
		t.Fatalf("door height = %v", cfg.DoorHeight())
	}
}

func TestValidateRejectsDuplicates(t *testing.T) {
	cfg := &Config{
		Server:    ServerConfig{Host: "localhost"},
		Residency: ResidencyConfig{WatchedZones: []int{1007, 1007}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected duplicate zone error")
	}

	cfg = &Config{
		Server: ServerConfig{Host: "localhost"},
		Rules: []RuleConfig{
			{ID: "a", Expression: "true"},
			{ID: "a", Expression: "false"},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected duplicate rule error")
	}
}

func TestValidateRequiresHost(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing host error")
	}
}

func TestDurationUnmarshalRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("listener:\n  dial_timeout: soon\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected duration parse error")
	}
}
