package main

import (
	"context"
	"encoding/json"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"zonewatch/internal/stream"
	"zonewatch/internal/zones"
)

// zonesim is a local stand-in for the perception server. It serves the
// output and point subscriptions over websocket plus the settings REST API,
// with a handful of simulated pedestrians wandering through fixed zones.

type zoneRect struct {
	info zones.Info
	minX float64
	minY float64
	maxX float64
	maxY float64
}

var simZones = []zoneRect{
	{info: zones.Info{ID: 1007, Name: "ATM Lobby"}, minX: -10, minY: -10, maxX: -4, maxY: -4},
	{info: zones.Info{ID: 1008, Name: "ATM East"}, minX: 4, minY: -10, maxX: 10, maxY: -4},
	{info: zones.Info{ID: 1009, Name: "ATM West"}, minX: -10, minY: 4, maxX: -4, maxY: 10},
	{info: zones.Info{ID: 1010, Name: "ATM North"}, minX: 4, minY: 4, maxX: 10, maxY: 10},
	{info: zones.Info{ID: 1011, Name: "Service Desk"}, minX: -3, minY: -3, maxX: 3, maxY: 3},
}

const arenaHalf = 15.0

type walker struct {
	id      uint32
	pos     stream.Vec3
	vel     stream.Vec3
	label   stream.Label
	inZones map[int]bool
	expires time.Time
}

type simulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	walkers []*walker
	nextID  uint32
}

func newSimulator(seed int64, count int) *simulator {
	sim := &simulator{rng: rand.New(rand.NewSource(seed)), nextID: 1}
	for i := 0; i < count; i++ {
		sim.walkers = append(sim.walkers, sim.spawn(time.Now()))
	}
	return sim
}

func (s *simulator) spawn(now time.Time) *walker {
	label := stream.LabelPedestrian
	if s.rng.Float64() < 0.1 {
		label = stream.LabelMisc
	}
	w := &walker{
		id:      s.nextID,
		pos:     stream.Vec3{X: s.rng.Float64()*2*arenaHalf - arenaHalf, Y: s.rng.Float64()*2*arenaHalf - arenaHalf},
		vel:     stream.Vec3{X: s.rng.Float64()*2 - 1, Y: s.rng.Float64()*2 - 1},
		label:   label,
		inZones: make(map[int]bool),
		expires: now.Add(time.Duration(20+s.rng.Intn(60)) * time.Second),
	}
	s.nextID++
	return w
}

// step advances all walkers by dt and produces one output frame with the
// snapshot batch and any zone or losing events that fell out of the motion.
func (s *simulator) step(now time.Time, dt float64) *stream.OutputMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &stream.OutputMessage{Timestamp: now, Stream: &stream.StreamMessage{}}
	var events stream.EventMessage

	for i, w := range s.walkers {
		if now.After(w.expires) {
			events.Losing = append(events.Losing, stream.LosingEvent{ObjectID: w.id, Timestamp: now})
			s.walkers[i] = s.spawn(now)
			continue
		}

		w.vel.X += (s.rng.Float64()*2 - 1) * 0.3
		w.vel.Y += (s.rng.Float64()*2 - 1) * 0.3
		w.pos.X += w.vel.X * dt
		w.pos.Y += w.vel.Y * dt
		if w.pos.X < -arenaHalf || w.pos.X > arenaHalf {
			w.vel.X = -w.vel.X
		}
		if w.pos.Y < -arenaHalf || w.pos.Y > arenaHalf {
			w.vel.Y = -w.vel.Y
		}

		var current []int
		for _, zone := range simZones {
			inside := w.pos.X >= zone.minX && w.pos.X <= zone.maxX &&
				w.pos.Y >= zone.minY && w.pos.Y <= zone.maxY
			if inside {
				current = append(current, zone.info.ID)
			}
			if inside && !w.inZones[zone.info.ID] {
				w.inZones[zone.info.ID] = true
				events.Zone = append(events.Zone, stream.ZoneEvent{
					Type: stream.ZoneEntry, ZoneID: zone.info.ID, ObjectID: w.id, Timestamp: now,
				})
			}
			if !inside && w.inZones[zone.info.ID] {
				delete(w.inZones, zone.info.ID)
				events.Zone = append(events.Zone, stream.ZoneEvent{
					Type: stream.ZoneExit, ZoneID: zone.info.ID, ObjectID: w.id, Timestamp: now,
				})
			}
		}

		height := 1.6 + s.rng.Float64()*0.4
		msg.Stream.Objects = append(msg.Stream.Objects, stream.Object{
			ID:       w.id,
			Label:    w.label,
			Tracking: stream.TrackingTracking,
			BBox: stream.BoundingBox{
				Position: stream.Vec3{X: w.pos.X, Y: w.pos.Y, Z: height / 2},
				Size:     stream.Vec3{X: 0.6, Y: 0.6, Z: height},
			},
			Velocity:  w.vel,
			ZoneIDs:   current,
			NumPoints: 40 + s.rng.Intn(80),
		})
	}

	msg.Stream.Health = &stream.Health{
		Master: "good",
		Nodes: map[string]stream.NodeHealth{
			"sim-node": {Status: "good", Sensors: map[string]stream.SensorHealth{"sim-lidar": "good"}},
		},
	}
	if len(events.Zone) > 0 || len(events.Losing) > 0 {
		msg.Event = &events
	}
	return msg
}

func (s *simulator) points(now time.Time) *stream.PointResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	intensities := make([]float64, 16)
	for i := range intensities {
		intensities[i] = s.rng.Float64() * 255
	}
	return &stream.PointResult{
		Timestamp: now,
		Clouds: []stream.PointCloud{
			{Type: stream.PointCloudRaw, ID: "sim-lidar", NumPoints: 20000 + s.rng.Intn(5000), Intensities: intensities},
			{Type: stream.PointCloudGround, NumPoints: 12000 + s.rng.Intn(3000)},
			{Type: stream.PointCloudBackground, NumPoints: 6000 + s.rng.Intn(2000)},
		},
	}
}

// hub fans identical frames out to every subscriber of one endpoint.
type hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}

func subscribeHandler(h *hub, logger zerolog.Logger, endpoint string) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Str("endpoint", endpoint).Msg("upgrade failed")
			return
		}
		logger.Info().Str("endpoint", endpoint).Str("remote", r.RemoteAddr).Msg("subscriber connected")
		h.add(conn)
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

func settingsHandler(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if raw := r.URL.Query().Get("zone-id"); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "invalid zone-id", http.StatusBadRequest)
				return
			}
			for _, zone := range simZones {
				if zone.info.ID == id {
					json.NewEncoder(w).Encode(zone.info)
					return
				}
			}
			http.Error(w, "unknown zone", http.StatusNotFound)
			return
		}
		ids := make([]int, 0, len(simZones))
		for _, zone := range simZones {
			ids = append(ids, zone.info.ID)
		}
		if err := json.NewEncoder(w).Encode(ids); err != nil {
			logger.Warn().Err(err).Msg("encode zone list")
		}
	}
}

func main() {
	streamListen := flag.String("stream-listen", ":5050", "Websocket listen address")
	restListen := flag.String("rest-listen", ":9080", "Settings API listen address")
	interval := flag.Duration("interval", 100*time.Millisecond, "Frame interval")
	count := flag.Int("walkers", 5, "Number of simulated objects")
	seed := flag.Int64("seed", 0, "Random seed, 0 for time-based")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "zonesim").Logger()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	sim := newSimulator(*seed, *count)

	outputHub := newHub()
	pointHub := newHub()

	streamMux := http.NewServeMux()
	streamMux.HandleFunc("/output", subscribeHandler(outputHub, logger, "output"))
	streamMux.HandleFunc("/points", subscribeHandler(pointHub, logger, "points"))
	streamSrv := &http.Server{Addr: *streamListen, Handler: streamMux}

	restMux := http.NewServeMux()
	restMux.HandleFunc("/settings/zone", settingsHandler(logger))
	restSrv := &http.Server{Addr: *restListen, Handler: restMux}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info().Str("listen", *streamListen).Msg("stream endpoint started")
		if err := streamSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("stream endpoint failed")
			cancel()
		}
	}()
	go func() {
		logger.Info().Str("listen", *restListen).Msg("settings endpoint started")
		if err := restSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("settings endpoint failed")
			cancel()
		}
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			streamSrv.Shutdown(shutdownCtx)
			restSrv.Shutdown(shutdownCtx)
			shutdownCancel()
			outputHub.closeAll()
			pointHub.closeAll()
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now

			frame, err := json.Marshal(sim.step(now, dt))
			if err != nil {
				logger.Error().Err(err).Msg("encode output frame")
				continue
			}
			outputHub.broadcast(frame)

			points, err := json.Marshal(sim.points(now))
			if err != nil {
				logger.Error().Err(err).Msg("encode point frame")
				continue
			}
			pointHub.broadcast(points)
		}
	}
}
