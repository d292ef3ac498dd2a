package residency

import (
	"errors"
	"time"
)

// ErrNoEntry is returned by Exit when no matching entry is pending. The
// condition is non-fatal; tracker state is unaffected beyond the no-op.
var ErrNoEntry = errors.New("residency: no entry recorded for object")

// ZoneTracker times dwell per object for one watched zone. Entries are
// created on zone-entry events and consumed on matching exits; dwells at or
// below the noise floor are treated as false detections and excluded from
// the average.
type ZoneTracker struct {
	zoneID     int
	noiseFloor time.Duration
	pending    map[uint32]time.Time
	avg        RunningAverage
}

// NewZoneTracker builds a tracker for the given zone id.
func NewZoneTracker(zoneID int, noiseFloor time.Duration) *ZoneTracker {
	return &ZoneTracker{
		zoneID:     zoneID,
		noiseFloor: noiseFloor,
		pending:    make(map[uint32]time.Time),
	}
}

// Enter records the entry time for an object. Duplicate entries for a
// still-present object are ignored; the first timestamp wins.
func (t *ZoneTracker) Enter(objectID uint32, ts time.Time) {
	if _, ok := t.pending[objectID]; ok {
		return
	}
	t.pending[objectID] = ts
}

// Exit closes the pending entry for an object. The returned dwell is valid
// only when err is nil; counted reports whether it cleared the noise floor
// and updated the average. The entry is removed in either case.
func (t *ZoneTracker) Exit(objectID uint32, ts time.Time) (dwell time.Duration, counted bool, err error) {
	entered, ok := t.pending[objectID]
	if !ok {
		return 0, false, ErrNoEntry
	}
	delete(t.pending, objectID)
	dwell = ts.Sub(entered)
	if dwell <= t.noiseFloor {
		return dwell, false, nil
	}
	t.avg.Update(dwell.Seconds())
	return dwell, true, nil
}

// Average returns the mean dwell time in seconds across counted exits.
func (t *ZoneTracker) Average() float64 {
	return t.avg.Value()
}

// ZoneID returns the watched zone's identifier.
func (t *ZoneTracker) ZoneID() int {
	return t.zoneID
}

// Pending returns the number of objects currently inside the zone.
func (t *ZoneTracker) Pending() int {
	return len(t.pending)
}
