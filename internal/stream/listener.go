package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"zonewatch/internal/config"
	"zonewatch/telemetry"
)

// Kind selects the server subscription the listener attaches to.
type Kind string

const (
	// KindOutput subscribes to tracked objects, zone events and health.
	KindOutput Kind = "output"
	// KindPoints subscribes to per-frame point-cloud partitions.
	KindPoints Kind = "points"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultReconnectMin = 500 * time.Millisecond
	defaultReconnectMax = 30 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultMaxMessage   = 16 << 20
)

// Callbacks are invoked synchronously from the read loop: a message is fully
// handled before the next one is read.
type Callbacks struct {
	OnOutput      func(*OutputMessage)
	OnPointResult func(*PointResult)
	OnError       func(error)
}

// Settings carries the connection parameters for a Listener.
type Settings struct {
	Host           string
	Port           int
	Kind           Kind
	TLS            config.TLSConfig
	DialTimeout    time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

// SettingsFromConfig derives listener settings from the root configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	kind := Kind(cfg.Listener.Kind)
	if kind == "" {
		kind = KindOutput
	}
	return Settings{
		Host:           cfg.Server.Host,
		Port:           cfg.StreamPort(),
		Kind:           kind,
		TLS:            cfg.Server.TLS,
		DialTimeout:    cfg.Listener.DialTimeout.Duration,
		ReconnectMin:   cfg.Listener.ReconnectMin.Duration,
		ReconnectMax:   cfg.Listener.ReconnectMax.Duration,
		PingInterval:   cfg.Listener.PingInterval.Duration,
		MaxMessageSize: cfg.Listener.MaxMessageSize,
	}
}

// Listener maintains a websocket subscription to the perception server and
// dispatches decoded messages to its callbacks. Reconnection is handled
// internally with jittered exponential backoff; tracker state owned by the
// callbacks is untouched across reconnects.
type Listener struct {
	settings Settings
	cb       Callbacks
	logger   zerolog.Logger
	metrics  telemetry.Collector
	session  string
}

// NewListener validates the settings and prepares a listener.
func NewListener(settings Settings, logger zerolog.Logger, collector telemetry.Collector, cb Callbacks) (*Listener, error) {
	if settings.Host == "" {
		return nil, fmt.Errorf("stream: host is required")
	}
	switch settings.Kind {
	case KindOutput, KindPoints:
	case "":
		settings.Kind = KindOutput
	default:
		return nil, fmt.Errorf("stream: unknown subscription kind %q", settings.Kind)
	}
	if settings.Port <= 0 {
		return nil, fmt.Errorf("stream: port must be positive")
	}
	if settings.DialTimeout <= 0 {
		settings.DialTimeout = defaultDialTimeout
	}
	if settings.ReconnectMin <= 0 {
		settings.ReconnectMin = defaultReconnectMin
	}
	if settings.ReconnectMax <= 0 {
		settings.ReconnectMax = defaultReconnectMax
	}
	if settings.PingInterval <= 0 {
		settings.PingInterval = defaultPingInterval
	}
	if settings.MaxMessageSize <= 0 {
		settings.MaxMessageSize = defaultMaxMessage
	}
	if collector == nil {
		collector = telemetry.Noop()
	}
	session := uuid.NewString()
	return &Listener{
		settings: settings,
		cb:       cb,
		logger:   logger.With().Str("component", "listener").Str("session", session).Logger(),
		metrics:  collector,
		session:  session,
	}, nil
}

// Session returns the identifier attached to this listener's log events.
func (l *Listener) Session() string {
	return l.session
}

// URL returns the websocket endpoint the listener dials.
func (l *Listener) URL() string {
	scheme := "ws"
	if l.settings.TLS.Enabled {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   l.settings.Host + ":" + strconv.Itoa(l.settings.Port),
		Path:   "/" + string(l.settings.Kind),
	}
	return u.String()
}

// Run dials the server and pumps messages until the context is cancelled.
// Connection errors trigger the error callback and a reconnect attempt; only
// context cancellation ends the loop.
func (l *Listener) Run(ctx context.Context) error {
	retry := &backoff.Backoff{
		Min:    l.settings.ReconnectMin,
		Max:    l.settings.ReconnectMax,
		Jitter: true,
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		conn, err := l.dial(ctx)
		if err != nil {
			l.logger.Warn().Err(err).Str("url", l.URL()).Msg("connect failed")
			if l.cb.OnError != nil {
				l.cb.OnError(err)
			}
			if !l.sleep(ctx, retry.Duration()) {
				return nil
			}
			l.metrics.IncReconnects()
			continue
		}
		retry.Reset()
		l.logger.Info().Str("url", l.URL()).Msg("connected")

		err = l.pump(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn().Err(err).Msg("connection lost")
		if l.cb.OnError != nil {
			l.cb.OnError(err)
		}
		if !l.sleep(ctx, retry.Duration()) {
			return nil
		}
		l.metrics.IncReconnects()
	}
}

func (l *Listener) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: l.settings.DialTimeout}
	if l.settings.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(l.settings.TLS)
		if err != nil {
			return nil, err
		}
		dialer.TLSClientConfig = tlsCfg
	}
	dialCtx, cancel := context.WithTimeout(ctx, l.settings.DialTimeout)
	defer cancel()
	conn, _, err := dialer.DialContext(dialCtx, l.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("stream: dial %s: %w", l.URL(), err)
	}
	return conn, nil
}

// pump reads messages until the connection breaks or the context is
// cancelled. Dispatch happens inline, so the in-flight handler always
// completes before teardown.
func (l *Listener) pump(ctx context.Context, conn *websocket.Conn) error {
	pongWait := 2 * l.settings.PingInterval
	conn.SetReadLimit(l.settings.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var writeMu sync.Mutex
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(l.settings.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"),
					time.Now().Add(time.Second))
				writeMu.Unlock()
				_ = conn.Close()
				return
			case <-done:
				_ = conn.Close()
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream: read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := l.dispatch(payload); err != nil {
			l.logger.Warn().Err(err).Msg("discarding malformed message")
		}
	}
}

func (l *Listener) dispatch(payload []byte) error {
	switch l.settings.Kind {
	case KindPoints:
		var msg PointResult
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("stream: decode point result: %w", err)
		}
		l.metrics.IncMessages("point")
		if l.cb.OnPointResult != nil {
			l.cb.OnPointResult(&msg)
		}
	default:
		var msg OutputMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("stream: decode output message: %w", err)
		}
		if msg.Stream != nil {
			l.metrics.IncMessages("stream")
		}
		if msg.Event != nil {
			l.metrics.IncMessages("event")
		}
		if l.cb.OnOutput != nil {
			l.cb.OnOutput(&msg)
		}
	}
	return nil
}

func (l *Listener) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
