package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"zonewatch/internal/config"
	"zonewatch/internal/logging"
	"zonewatch/internal/reload"
	"zonewatch/internal/service"
	"zonewatch/telemetry"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	flag.Parse()

	if *configCheck {
		if err := executeConfigCheck(*cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration check completed successfully.")
		os.Exit(0)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector, err := newTelemetryCollector(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		collector = telemetry.Noop()
	}

	if cfg.HotReload {
		if err := runWithHotReload(ctx, *cfgPath, cfg, collector); err != nil {
			if err == context.Canceled {
				return
			}
			log.Fatal().Err(err).Msg("service stopped")
		}
		return
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	srv, err := service.New(cfg, logger, service.WithTelemetry(collector))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create service")
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("service stopped with error")
	}
}

func executeConfigCheck(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	return service.Validate(cfg, zerolog.Nop())
}

func runWithHotReload(ctx context.Context, cfgPath string, initialCfg *config.Config, collector telemetry.Collector) error {
	if collector == nil {
		collector = telemetry.Noop()
	}
	watcher, err := reload.NewWatcher(cfgPath)
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	cfg := initialCfg
	for {
		logger, cleanup, err := logging.Setup(cfg.Logging)
		if err != nil {
			return err
		}
		log.Logger = logger

		srv, err := service.New(cfg, logger, service.WithTelemetry(collector))
		if err != nil {
			cleanup()
			return err
		}

		runCtx, cancelRun := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Run(runCtx)
		}()

		reloadRequested := false

	loop:
		for {
			select {
			case <-ctx.Done():
				cancelRun()
				if err := <-errCh; err != nil && err != context.Canceled && err != context.DeadlineExceeded {
					srv.Close()
					cleanup()
					return err
				}
				srv.Close()
				cleanup()
				return ctx.Err()
			case err := <-errCh:
				cancelRun()
				srv.Close()
				cleanup()
				return err
			case <-ticker.C:
				if !watcher.Changed() {
					continue
				}
				newCfg, err := config.Load(cfgPath)
				if err != nil {
					logger.Error().Err(err).Msg("failed to reload configuration")
					continue
				}
				if err := service.Validate(newCfg, logger); err != nil {
					logger.Error().Err(err).Msg("reloaded configuration invalid")
					continue
				}
				cancelRun()
				if err := <-errCh; err != nil && err != context.Canceled && err != context.DeadlineExceeded {
					logger.Error().Err(err).Msg("service stopped during reload")
				}
				srv.Close()
				cleanup()
				watcher.Reset()
				cfg = newCfg
				reloadRequested = true
				break loop
			}
		}

		if !reloadRequested {
			return nil
		}
		collector.IncHotReload(watcher.Path())
		reloadRequested = false
	}
}

func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		return telemetry.NewPrometheusCollector(nil)
	default:
		return telemetry.Noop(), fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}
