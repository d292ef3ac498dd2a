package service

import (
	"io"

	"zonewatch/internal/zones"
	"zonewatch/telemetry"
)

// Option customises service construction.
type Option func(s *settings) error

type settings struct {
	factory   zones.ClientFactory
	collector telemetry.Collector
	output    io.Writer
}

// WithZoneClientFactory overrides how the settings-API client is built,
// typically with a fake in tests.
func WithZoneClientFactory(factory zones.ClientFactory) Option {
	return func(s *settings) error {
		if s == nil || factory == nil {
			return nil
		}
		s.factory = factory
		return nil
	}
}

// WithTelemetry injects a collector instance.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(s *settings) error {
		if s == nil {
			return nil
		}
		if collector == nil {
			collector = telemetry.Noop()
		}
		s.collector = collector
		return nil
	}
}

// WithOutput redirects the console report lines, stdout by default.
func WithOutput(w io.Writer) Option {
	return func(s *settings) error {
		if s == nil || w == nil {
			return nil
		}
		s.output = w
		return nil
	}
}
