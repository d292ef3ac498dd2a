package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"zonewatch/internal/config"
	"zonewatch/internal/residency"
	"zonewatch/internal/rules"
	"zonewatch/internal/stream"
	"zonewatch/internal/zones"
	"zonewatch/telemetry"
)

// Service wires the zone directory, the stream listener, the residency
// tracker and the alert rules into one runnable monitor.
type Service struct {
	cfg       *config.Config
	logger    zerolog.Logger
	factory   zones.ClientFactory
	collector telemetry.Collector
	reporter  residency.Reporter
	engine    *rules.Engine

	metricsSrv *http.Server
}

// New builds a service from configuration and dependencies.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	applied := settings{
		factory:   zones.NewHTTPClientFactory(),
		collector: telemetry.Noop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&applied); err != nil {
			return nil, err
		}
	}

	engine, err := rules.NewEngine(cfg.Rules, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:       cfg,
		logger:    logger,
		factory:   applied.factory,
		collector: applied.collector,
		reporter:  residency.NewConsoleReporter(applied.output),
		engine:    engine,
	}, nil
}

// Validate performs a dry-run validation of the configuration without any
// network access.
func Validate(cfg *config.Config, logger zerolog.Logger) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := rules.NewEngine(cfg.Rules, logger); err != nil {
		return err
	}
	if _, err := stream.NewListener(stream.SettingsFromConfig(cfg), logger, nil, stream.Callbacks{}); err != nil {
		return err
	}
	return nil
}

// Run fetches the zone directory, starts the optional metrics endpoint and
// pumps the output stream until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	client, err := s.factory(zones.Settings{
		Host:    s.cfg.Server.Host,
		Port:    s.cfg.RESTPort(),
		Timeout: s.cfg.Server.Timeout.Duration,
	})
	if err != nil {
		return fmt.Errorf("create zone client: %w", err)
	}
	directory, err := zones.FetchDirectory(ctx, client)
	closeErr := client.Close()
	if err != nil {
		return fmt.Errorf("fetch zone directory: %w", err)
	}
	if closeErr != nil {
		s.logger.Warn().Err(closeErr).Msg("closing zone client")
	}
	s.logger.Info().Int("zones", len(directory)).Msg("zone directory loaded")

	tracker := residency.NewTracker(residency.Params{
		WatchedZones: s.cfg.Residency.WatchedZones,
		NoiseFloor:   s.cfg.NoiseFloor(),
		MaxResidency: s.cfg.MaxResidency(),
		DoorHeight:   s.cfg.DoorHeight(),
	}, directory, s.reporter, s.logger, s.collector)
	tracker.OnCompleted(func(res residency.Residency) {
		s.engine.Evaluate(res)
	})

	if s.cfg.Telemetry.Enabled && s.cfg.Telemetry.Listen != "" {
		if err := s.startMetrics(s.cfg.Telemetry.Listen); err != nil {
			return err
		}
	}
	defer s.Close()

	listener, err := stream.NewListener(stream.SettingsFromConfig(s.cfg), s.logger, s.collector, stream.Callbacks{
		OnOutput: tracker.HandleOutput,
		OnError: func(err error) {
			s.logger.Warn().Err(err).Msg("stream interrupted, tracker state retained")
		},
	})
	if err != nil {
		return err
	}
	return listener.Run(ctx)
}

func (s *Service) startMetrics(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}
	s.metricsSrv = srv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Str("listen", listen).Msg("metrics endpoint failed")
		}
	}()
	s.logger.Info().Str("listen", listen).Msg("metrics endpoint started")
	return nil
}

// Close releases all background resources held by the service.
func (s *Service) Close() error {
	if s == nil || s.metricsSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.metricsSrv.Shutdown(shutdownCtx)
	s.metricsSrv = nil
	return err
}
