package residency

import (
	"time"

	"zonewatch/internal/stream"
)

// Record is the in-progress residency of one tracked object: its first
// observation time, the full snapshot history, and the first zone it was
// seen in. Records are created on first observation and destroyed on loss
// or forced eviction.
type Record struct {
	id        uint32
	born      time.Time
	firstZone int
	hasZone   bool
	history   []stream.Object
}

// NewRecord starts a residency from the object's first snapshot.
func NewRecord(id uint32, obj stream.Object, ts time.Time) *Record {
	rec := &Record{id: id, born: ts}
	rec.push(obj)
	return rec
}

// Observe appends a snapshot to the history.
func (r *Record) Observe(obj stream.Object) {
	r.push(obj)
}

func (r *Record) push(obj stream.Object) {
	r.history = append(r.history, obj)
	if !r.hasZone {
		for _, zoneID := range obj.ZoneIDs {
			r.firstZone = zoneID
			r.hasZone = true
			break
		}
	}
}

// ID returns the tracked object id.
func (r *Record) ID() uint32 {
	return r.id
}

// BornAt returns the first observation timestamp.
func (r *Record) BornAt() time.Time {
	return r.born
}

// FirstZone returns the first zone the object was observed in, if any
// snapshot carried a zone membership so far.
func (r *Record) FirstZone() (int, bool) {
	return r.firstZone, r.hasZone
}

// Age returns how long the object has been tracked as of now.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.born)
}

// Dwell returns the residency duration ending at the loss timestamp.
func (r *Record) Dwell(loss time.Time) time.Duration {
	return loss.Sub(r.born)
}

// IsDoor reports whether the track is likely a door rather than a person:
// even its smallest observed bounding box is taller than the threshold.
func (r *Record) IsDoor(heightThreshold float64) bool {
	minHeight := 999.0
	for _, obj := range r.history {
		if obj.BBox.Size.Z < minHeight {
			minHeight = obj.BBox.Size.Z
		}
	}
	return minHeight > heightThreshold
}

// IsMisc reports whether every snapshot was classified as miscellaneous.
func (r *Record) IsMisc() bool {
	for _, obj := range r.history {
		if obj.Label != stream.LabelMisc {
			return false
		}
	}
	return true
}
