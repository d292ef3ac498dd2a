package residency

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"zonewatch/internal/stream"
	"zonewatch/telemetry"
)

// NoZoneName is reported when a record never entered a known zone.
const NoZoneName = "No Zone"

// ZoneNamer resolves zone identifiers to human-readable names. The lookup
// is expected to be fully populated before streaming begins.
type ZoneNamer interface {
	Lookup(id int) (string, bool)
}

// Params are the analytic thresholds of the tracker.
type Params struct {
	WatchedZones []int
	NoiseFloor   time.Duration
	MaxResidency time.Duration
	DoorHeight   float64
}

// Tracker consumes the output-message stream and maintains residency
// records, per-watched-zone dwell timers and the global dwell average. All
// state is owned by the dispatch loop; methods must be called from a single
// goroutine.
type Tracker struct {
	params   Params
	records  map[uint32]*Record
	atms     map[int]*ZoneTracker
	avg      RunningAverage
	zones    ZoneNamer
	reporter Reporter
	logger   zerolog.Logger
	metrics  telemetry.Collector

	// onCompleted is invoked for every residency that contributed to the
	// global average, after reporting.
	onCompleted func(Residency)
}

// NewTracker builds a tracker with one ZoneTracker per watched zone.
func NewTracker(params Params, zones ZoneNamer, reporter Reporter, logger zerolog.Logger, collector telemetry.Collector) *Tracker {
	if reporter == nil {
		reporter = NewConsoleReporter(nil)
	}
	if collector == nil {
		collector = telemetry.Noop()
	}
	atms := make(map[int]*ZoneTracker, len(params.WatchedZones))
	for _, zoneID := range params.WatchedZones {
		atms[zoneID] = NewZoneTracker(zoneID, params.NoiseFloor)
	}
	return &Tracker{
		params:   params,
		records:  make(map[uint32]*Record),
		atms:     atms,
		zones:    zones,
		reporter: reporter,
		logger:   logger.With().Str("component", "residency").Logger(),
		metrics:  collector,
	}
}

// OnCompleted registers a hook called for every counted residency.
func (t *Tracker) OnCompleted(fn func(Residency)) {
	t.onCompleted = fn
}

// HandleOutput dispatches one output message: snapshot batches feed the
// records, zone events feed the watched-zone timers, losing events close
// residencies.
func (t *Tracker) HandleOutput(msg *stream.OutputMessage) {
	if msg == nil {
		return
	}
	if msg.Stream != nil {
		for _, obj := range msg.Stream.Objects {
			t.observe(obj, msg.Timestamp)
		}
	}
	if msg.Event != nil {
		for _, event := range msg.Event.Zone {
			switch event.Type {
			case stream.ZoneEntry:
				t.handleEntry(event)
			case stream.ZoneExit:
				t.handleExit(event)
			default:
				t.logger.Warn().Str("type", string(event.Type)).Msg("unknown zone event type")
			}
		}
		for _, event := range msg.Event.Losing {
			t.handleLoss(event)
		}
	}
}

func (t *Tracker) observe(obj stream.Object, ts time.Time) {
	rec, ok := t.records[obj.ID]
	if !ok {
		t.records[obj.ID] = NewRecord(obj.ID, obj, ts)
		t.metrics.SetActiveResidents(len(t.records))
		return
	}
	rec.Observe(obj)
	if rec.Age(ts) > t.params.MaxResidency {
		delete(t.records, obj.ID)
		t.metrics.SetActiveResidents(len(t.records))
		t.metrics.IncEvictions()
		t.logger.Info().Uint32("object", obj.ID).Dur("age", rec.Age(ts)).Msg("residency exceeded maximum, evicting")
		t.reporter.Evicted(obj.ID)
	}
}

func (t *Tracker) handleEntry(event stream.ZoneEvent) {
	atm, ok := t.atms[event.ZoneID]
	if !ok {
		return
	}
	atm.Enter(event.ObjectID, event.Timestamp)
}

func (t *Tracker) handleExit(event stream.ZoneEvent) {
	atm, ok := t.atms[event.ZoneID]
	if !ok {
		return
	}
	dwell, counted, err := atm.Exit(event.ObjectID, event.Timestamp)
	if err != nil {
		t.logger.Warn().Uint32("object", event.ObjectID).Int("zone", event.ZoneID).Msg("exit without matching entry")
		t.metrics.IncAnomalies("missing_entry")
		return
	}
	if counted {
		t.metrics.ObserveDwell(strconv.Itoa(event.ZoneID), dwell.Seconds())
	}
	t.reporter.ATMUpdated(atm.ZoneID(), atm.Average())
}

func (t *Tracker) handleLoss(event stream.LosingEvent) {
	rec, ok := t.records[event.ObjectID]
	if !ok {
		// The source should never emit a loss for an untracked object.
		t.logger.Warn().Uint32("object", event.ObjectID).Msg("loss event for unknown object")
		t.metrics.IncAnomalies("unknown_loss")
		return
	}
	delete(t.records, event.ObjectID)
	t.metrics.SetActiveResidents(len(t.records))

	if rec.IsMisc() {
		t.reporter.ResidencyDiscarded(event.ObjectID, "misc")
		return
	}
	if rec.IsDoor(t.params.DoorHeight) {
		t.reporter.ResidencyDiscarded(event.ObjectID, "door")
		return
	}

	dwell := rec.Dwell(event.Timestamp)
	t.avg.Update(dwell.Seconds())

	res := Residency{
		ObjectID: event.ObjectID,
		Dwell:    dwell.Seconds(),
		Average:  t.avg.Value(),
		ZoneName: NoZoneName,
	}
	if zoneID, ok := rec.FirstZone(); ok {
		res.ZoneID = zoneID
		res.HasZone = true
		if name, found := t.zoneName(zoneID); found {
			res.ZoneName = name
		}
		t.metrics.ObserveDwell(strconv.Itoa(zoneID), res.Dwell)
	} else {
		t.metrics.ObserveDwell("none", res.Dwell)
	}

	t.reporter.ResidencyCompleted(res)
	if t.onCompleted != nil {
		t.onCompleted(res)
	}
}

func (t *Tracker) zoneName(id int) (string, bool) {
	if t.zones == nil {
		return "", false
	}
	return t.zones.Lookup(id)
}

// ActiveResidents returns the number of in-progress residency records.
func (t *Tracker) ActiveResidents() int {
	return len(t.records)
}

// GlobalAverage returns the mean counted dwell time in seconds.
func (t *Tracker) GlobalAverage() float64 {
	return t.avg.Value()
}

// ATM returns the tracker for a watched zone, if configured.
func (t *Tracker) ATM(zoneID int) (*ZoneTracker, bool) {
	atm, ok := t.atms[zoneID]
	return atm, ok
}
