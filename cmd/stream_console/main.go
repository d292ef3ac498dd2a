package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"zonewatch/internal/console"
	"zonewatch/internal/stream"
)

// stream_console dumps one server subscription to stdout, one of the sample
// listeners selected with -mode.
func main() {
	host := flag.String("host", "localhost", "Perception server host")
	port := flag.Int("port", 5050, "Stream websocket port")
	mode := flag.String("mode", "zone", "Listener mode: zone, object, health, time or point")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	log.Logger = logger

	printer := console.NewPrinter(os.Stdout)

	kind := stream.KindOutput
	cb := stream.Callbacks{
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("stream interrupted")
		},
	}
	switch *mode {
	case "zone":
		cb.OnOutput = printer.ZoneEvents
	case "object":
		cb.OnOutput = printer.Objects
	case "health":
		cb.OnOutput = printer.Health
	case "time":
		cb.OnOutput = printer.Latency
	case "point":
		kind = stream.KindPoints
		cb.OnPointResult = printer.Points
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		flag.Usage()
		os.Exit(2)
	}

	listener, err := stream.NewListener(stream.Settings{
		Host: *host,
		Port: *port,
		Kind: kind,
	}, logger, nil, cb)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create listener")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := listener.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("listener stopped with error")
	}
}
