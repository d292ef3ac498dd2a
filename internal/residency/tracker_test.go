package residency

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"zonewatch/internal/stream"
)

type atmUpdate struct {
	zoneID int
	avg    float64
}

type capturedReport struct {
	atmUpdates []atmUpdate
	completed  []Residency
	discarded  map[uint32]string
	evicted    []uint32
}

func (c *capturedReport) ATMUpdated(zoneID int, avg float64) {
	c.atmUpdates = append(c.atmUpdates, atmUpdate{zoneID: zoneID, avg: avg})
}

func (c *capturedReport) ResidencyCompleted(res Residency) {
	c.completed = append(c.completed, res)
}

func (c *capturedReport) ResidencyDiscarded(objectID uint32, reason string) {
	if c.discarded == nil {
		c.discarded = make(map[uint32]string)
	}
	c.discarded[objectID] = reason
}

func (c *capturedReport) Evicted(objectID uint32) {
	c.evicted = append(c.evicted, objectID)
}

type staticZones map[int]string

func (z staticZones) Lookup(id int) (string, bool) {
	name, ok := z[id]
	return name, ok
}

func defaultParams() Params {
	return Params{
		WatchedZones: []int{1007, 1008},
		NoiseFloor:   2 * time.Second,
		MaxResidency: time.Hour,
		DoorHeight:   2.5,
	}
}

func newTestTracker(params Params, zones ZoneNamer, report Reporter) *Tracker {
	return NewTracker(params, zones, report, zerolog.Nop(), nil)
}

func person(id uint32, height float64, zoneIDs ...int) stream.Object {
	return stream.Object{
		ID:      id,
		Label:   stream.LabelPedestrian,
		BBox:    stream.BoundingBox{Size: stream.Vec3{X: 0.5, Y: 0.5, Z: height}},
		ZoneIDs: zoneIDs,
	}
}

func snapshotAt(ts time.Time, objects ...stream.Object) *stream.OutputMessage {
	return &stream.OutputMessage{
		Timestamp: ts,
		Stream:    &stream.StreamMessage{Objects: objects},
	}
}

func lossAt(ts time.Time, id uint32) *stream.OutputMessage {
	return &stream.OutputMessage{
		Timestamp: ts,
		Event:     &stream.EventMessage{Losing: []stream.LosingEvent{{ObjectID: id, Timestamp: ts}}},
	}
}

func TestCompletedResidencyResolvesStartingZone(t *testing.T) {
	report := &capturedReport{}
	tracker := newTestTracker(defaultParams(), staticZones{1007: "ATM Lobby"}, report)

	tracker.HandleOutput(snapshotAt(at(0), person(5, 1.7, 1007)))
	tracker.HandleOutput(snapshotAt(at(10), person(5, 1.7)))
	tracker.HandleOutput(lossAt(at(30), 5))

	if len(report.completed) != 1 {
		t.Fatalf("completed = %d", len(report.completed))
	}
	res := report.completed[0]
	if res.Dwell != 30 {
		t.Fatalf("dwell = %v", res.Dwell)
	}
	if res.ZoneName != "ATM Lobby" || !res.HasZone || res.ZoneID != 1007 {
		t.Fatalf("starting zone = %+v", res)
	}
	if tracker.ActiveResidents() != 0 {
		t.Fatalf("record must be removed after loss")
	}
}

func TestUnknownStartingZoneUsesSentinel(t *testing.T) {
	report := &capturedReport{}
	tracker := newTestTracker(defaultParams(), staticZones{}, report)

	// First zone id 2001 is not in the directory.
	tracker.HandleOutput(snapshotAt(at(0), person(7, 1.7, 2001)))
	tracker.HandleOutput(lossAt(at(10), 7))

	if len(report.completed) != 1 {
		t.Fatalf("completed = %d", len(report.completed))
	}
	if report.completed[0].ZoneName != NoZoneName {
		t.Fatalf("zone name = %q", report.completed[0].ZoneName)
	}

	// No zone membership at all.
	tracker.HandleOutput(snapshotAt(at(0), person(8, 1.7)))
	tracker.HandleOutput(lossAt(at(10), 8))
	if report.completed[1].ZoneName != NoZoneName || report.completed[1].HasZone {
		t.Fatalf("zone = %+v", report.completed[1])
	}
}

func TestMiscNeverContributesToAverage(t *testing.T) {
	report := &capturedReport{}
	tracker := newTestTracker(defaultParams(), staticZones{}, report)

	misc := stream.Object{ID: 9, Label: stream.LabelMisc, BBox: stream.BoundingBox{Size: stream.Vec3{Z: 1.0}}}
	tracker.HandleOutput(snapshotAt(at(0), misc))
	tracker.HandleOutput(snapshotAt(at(5), misc))
	tracker.HandleOutput(lossAt(at(10), 9))

	if tracker.GlobalAverage() != 0 {
		t.Fatalf("misc record updated the average: %v", tracker.GlobalAverage())
	}
	if report.discarded[9] != "misc" {
		t.Fatalf("discard reason = %q", report.discarded[9])
	}
}

func TestSingleNonMiscSnapshotDisqualifiesMisc(t *testing.T) {
	report := &capturedReport{}
	tracker := newTestTracker(defaultParams(), staticZones{}, report)

	misc := stream.Object{ID: 9, Label: stream.LabelMisc, BBox: stream.BoundingBox{Size: stream.Vec3{Z: 1.0}}}
	tracker.HandleOutput(snapshotAt(at(0), misc))
	tracker.HandleOutput(snapshotAt(at(5), person(9, 1.7)))
	tracker.HandleOutput(lossAt(at(10), 9))

	if len(report.completed) != 1 {
		t.Fatalf("record with a pedestrian snapshot must be counted")
	}
}

func TestDoorNeverContributesToAverage(t *testing.T) {
	report := &capturedReport{}
	tracker := newTestTracker(defaultParams(), staticZones{}, report)

	tracker.HandleOutput(snapshotAt(at(0), person(11, 2.8)))
	tracker.HandleOutput(snapshotAt(at(5), person(11, 3.0)))
	tracker.HandleOutput(lossAt(at(60), 11))

	if tracker.GlobalAverage() != 0 {
		t.Fatalf("door record updated the average: %v", tracker.GlobalAverage())
	}
	if report.discarded[11] != "door" {
		t.Fatalf("discard reason = %q", report.discarded[11])
	}
}

func TestDipBelowDoorHeightMakesTrackAPerson(t *testing.T) {
	report := &capturedReport{}
	tracker := newTestTracker(defaultParams(), staticZones{}, report)

	tracker.HandleOutput(snapshotAt(at(0), person(12, 2.8)))
	tracker.HandleOutput(snapshotAt(at(5), person(12, 2.4)))
	tracker.HandleOutput(lossAt(at(20), 12))

	if len(report.completed) != 1 {
		t.Fatalf("minimum height 2.4 must classify as person")
	}
}

func TestForcedEvictionSkipsAverage(t *testing.T) {
	params := defaultParams()
	params.MaxResidency = 10 * time.Second
	report := &capturedReport{}
	tracker := newTestTracker(params, staticZones{}, report)

	tracker.HandleOutput(snapshotAt(at(0), person(13, 1.7)))
	tracker.HandleOutput(snapshotAt(at(5), person(13, 1.7)))
	tracker.HandleOutput(snapshotAt(at(11), person(13, 1.7)))

	if len(report.evicted) != 1 || report.evicted[0] != 13 {
		t.Fatalf("evicted = %v", report.evicted)
	}
	if tracker.GlobalAverage() != 0 {
		t.Fatalf("eviction must not update the average")
	}
	if tracker.ActiveResidents() != 0 {
		t.Fatalf("evicted record must be dropped")
	}

	// A later loss event for the evicted object is an anomaly, not a crash.
	tracker.HandleOutput(lossAt(at(12), 13))
	if len(report.completed) != 0 {
		t.Fatalf("evicted object must not complete")
	}
}

func TestLossForUnknownObjectIsSkipped(t *testing.T) {
	report := &capturedReport{}
	tracker := newTestTracker(defaultParams(), staticZones{}, report)

	tracker.HandleOutput(lossAt(at(0), 99))

	if len(report.completed) != 0 || len(report.discarded) != 0 {
		t.Fatalf("unknown loss must be a no-op, got %+v", report)
	}
}

func TestZoneEventsOnlyReachWatchedZones(t *testing.T) {
	report := &capturedReport{}
	tracker := newTestTracker(defaultParams(), staticZones{}, report)

	msg := &stream.OutputMessage{
		Timestamp: at(0),
		Event: &stream.EventMessage{Zone: []stream.ZoneEvent{
			{Type: stream.ZoneEntry, ZoneID: 1007, ObjectID: 5, Timestamp: at(0)},
			{Type: stream.ZoneEntry, ZoneID: 5555, ObjectID: 6, Timestamp: at(0)},
		}},
	}
	tracker.HandleOutput(msg)

	atm, ok := tracker.ATM(1007)
	if !ok || atm.Pending() != 1 {
		t.Fatalf("watched zone must hold the entry")
	}
	if _, ok := tracker.ATM(5555); ok {
		t.Fatalf("unwatched zone must not create a tracker")
	}
}

func TestATMUpdateEmittedOnExit(t *testing.T) {
	report := &capturedReport{}
	tracker := newTestTracker(defaultParams(), staticZones{}, report)

	tracker.HandleOutput(&stream.OutputMessage{
		Timestamp: at(0),
		Event: &stream.EventMessage{Zone: []stream.ZoneEvent{
			{Type: stream.ZoneEntry, ZoneID: 1007, ObjectID: 5, Timestamp: at(0)},
		}},
	})
	tracker.HandleOutput(&stream.OutputMessage{
		Timestamp: at(5),
		Event: &stream.EventMessage{Zone: []stream.ZoneEvent{
			{Type: stream.ZoneExit, ZoneID: 1007, ObjectID: 5, Timestamp: at(5)},
		}},
	})

	if len(report.atmUpdates) != 1 {
		t.Fatalf("atm updates = %d", len(report.atmUpdates))
	}
	if report.atmUpdates[0].zoneID != 1007 || report.atmUpdates[0].avg != 5.0 {
		t.Fatalf("atm update = %+v", report.atmUpdates[0])
	}

	// Exit without entry: logged anomaly, no ATM line.
	tracker.HandleOutput(&stream.OutputMessage{
		Timestamp: at(6),
		Event: &stream.EventMessage{Zone: []stream.ZoneEvent{
			{Type: stream.ZoneExit, ZoneID: 1007, ObjectID: 42, Timestamp: at(6)},
		}},
	})
	if len(report.atmUpdates) != 1 {
		t.Fatalf("missing-entry exit must not emit an ATM update")
	}
}

func TestGlobalAverageAcrossResidencies(t *testing.T) {
	report := &capturedReport{}
	tracker := newTestTracker(defaultParams(), staticZones{}, report)

	tracker.HandleOutput(snapshotAt(at(0), person(1, 1.6), person(2, 1.8)))
	tracker.HandleOutput(lossAt(at(10), 1))
	tracker.HandleOutput(lossAt(at(30), 2))

	if got, want := tracker.GlobalAverage(), 20.0; got != want {
		t.Fatalf("global average = %v, want %v", got, want)
	}
	if report.completed[1].Average != 20.0 {
		t.Fatalf("reported average = %v", report.completed[1].Average)
	}
}

func TestConsoleReporterFormats(t *testing.T) {
	var sb strings.Builder
	reporter := NewConsoleReporter(&sb)

	reporter.ATMUpdated(1007, 6.0)
	reporter.ResidencyCompleted(Residency{ObjectID: 5, Dwell: 30, Average: 20, ZoneName: "ATM Lobby"})
	reporter.ResidencyDiscarded(9, "misc")
	reporter.Evicted(13)

	out := sb.String()
	for _, want := range []string{
		"ATM(1007) avg: 6.00s.\n",
		"Obj(5) resident_time: 30.00, Avg: 20.00, Starting Zone: ATM Lobby\n",
		"Obj(9) is misc.\n",
		"Obj(13) stayed too long, dropping track.\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
