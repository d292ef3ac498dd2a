package residency

import (
	"fmt"
	"io"
	"os"
)

// Residency is a completed, counted dwell ready for reporting.
type Residency struct {
	ObjectID uint32
	Dwell    float64
	Average  float64
	ZoneID   int
	ZoneName string
	HasZone  bool
}

// Reporter receives the human-readable output of the tracker. The console
// line formats are presentation only, not a wire contract.
type Reporter interface {
	ATMUpdated(zoneID int, avg float64)
	ResidencyCompleted(res Residency)
	ResidencyDiscarded(objectID uint32, reason string)
	Evicted(objectID uint32)
}

type consoleReporter struct {
	w io.Writer
}

// NewConsoleReporter writes one line per completed residency or ATM update.
// A nil writer defaults to stdout.
func NewConsoleReporter(w io.Writer) Reporter {
	if w == nil {
		w = os.Stdout
	}
	return &consoleReporter{w: w}
}

func (r *consoleReporter) ATMUpdated(zoneID int, avg float64) {
	fmt.Fprintf(r.w, "ATM(%d) avg: %.2fs.\n", zoneID, avg)
}

func (r *consoleReporter) ResidencyCompleted(res Residency) {
	fmt.Fprintf(r.w, "Obj(%d) resident_time: %.2f, Avg: %.2f, Starting Zone: %s\n",
		res.ObjectID, res.Dwell, res.Average, res.ZoneName)
}

func (r *consoleReporter) ResidencyDiscarded(objectID uint32, reason string) {
	fmt.Fprintf(r.w, "Obj(%d) is %s.\n", objectID, reason)
}

func (r *consoleReporter) Evicted(objectID uint32) {
	fmt.Fprintf(r.w, "Obj(%d) stayed too long, dropping track.\n", objectID)
}
