package console

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"zonewatch/internal/stream"
)

// Printer renders one subscription's messages as human-readable lines.
// Printers are fed directly from the listener callbacks and therefore run
// on the dispatch goroutine.
type Printer struct {
	w   io.Writer
	now func() time.Time
}

// NewPrinter writes to the given writer, stdout when nil.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w, now: time.Now}
}

// ZoneEvents prints one line per zone entry or exit.
func (p *Printer) ZoneEvents(msg *stream.OutputMessage) {
	if msg == nil || msg.Event == nil {
		return
	}
	for _, event := range msg.Event.Zone {
		switch event.Type {
		case stream.ZoneEntry:
			fmt.Fprintf(p.w, "Entering zone (%d) : obj (%d)\n", event.ZoneID, event.ObjectID)
		case stream.ZoneExit:
			fmt.Fprintf(p.w, "Exiting zone (%d) : obj (%d)\n", event.ZoneID, event.ObjectID)
		}
	}
}

// Objects prints a summary block per tracked object snapshot.
func (p *Printer) Objects(msg *stream.OutputMessage) {
	if msg == nil || msg.Stream == nil {
		return
	}
	for _, obj := range msg.Stream.Objects {
		fmt.Fprintf(p.w, "Obj (%d): point no. %d\n", obj.ID, obj.NumPoints)
		if len(obj.Intensities) > 0 {
			min, median, max := intensitySummary(obj.Intensities)
			fmt.Fprintf(p.w, "Obj (%d): point intensity [min, median, max] is [%g, %g, %g]\n", obj.ID, min, median, max)
		}
		fmt.Fprintf(p.w, "Obj (%d): velocity (%.2f, %.2f, %.2f)\n", obj.ID, obj.Velocity.X, obj.Velocity.Y, obj.Velocity.Z)
		fmt.Fprintf(p.w, "Obj (%d): bbox pos (%.2f, %.2f, %.2f) size (%.2f, %.2f, %.2f)\n", obj.ID,
			obj.BBox.Position.X, obj.BBox.Position.Y, obj.BBox.Position.Z,
			obj.BBox.Size.X, obj.BBox.Size.Y, obj.BBox.Size.Z)
		fmt.Fprintf(p.w, "Obj (%d): tracking status %s\n", obj.ID, obj.Tracking)
		fmt.Fprintf(p.w, "Obj (%d): object type %s\n", obj.ID, obj.Label)
	}
}

// Health prints the system health tree carried in stream messages.
func (p *Printer) Health(msg *stream.OutputMessage) {
	if msg == nil || msg.Stream == nil || msg.Stream.Health == nil {
		return
	}
	health := msg.Stream.Health
	fmt.Fprintf(p.w, "System health: %s\n", health.Master)
	if len(health.Nodes) == 0 {
		fmt.Fprintln(p.w, "  No nodes are connected")
		return
	}
	nodeKeys := make([]string, 0, len(health.Nodes))
	for key := range health.Nodes {
		nodeKeys = append(nodeKeys, key)
	}
	sort.Strings(nodeKeys)
	for _, key := range nodeKeys {
		node := health.Nodes[key]
		fmt.Fprintf(p.w, "  Node (%s) health: %s\n", key, node.Status)
		if len(node.Sensors) == 0 {
			fmt.Fprintln(p.w, "    No sensors are connected")
			continue
		}
		sensorKeys := make([]string, 0, len(node.Sensors))
		for sensor := range node.Sensors {
			sensorKeys = append(sensorKeys, sensor)
		}
		sort.Strings(sensorKeys)
		for _, sensor := range sensorKeys {
			fmt.Fprintf(p.w, "    Sensor (%s) health: %s\n", sensor, node.Sensors[sensor])
		}
	}
}

// Latency prints the difference between wall clock and message timestamp.
func (p *Printer) Latency(msg *stream.OutputMessage) {
	if msg == nil {
		return
	}
	diff := p.now().Sub(msg.Timestamp)
	fmt.Fprintf(p.w, "Diff: %d ms\n", diff.Milliseconds())
}

// Points prints a summary per point-cloud partition.
func (p *Printer) Points(msg *stream.PointResult) {
	if msg == nil {
		return
	}
	for _, cloud := range msg.Clouds {
		switch cloud.Type {
		case stream.PointCloudRaw:
			fmt.Fprintf(p.w, "Topic (%s) no. of points - %d\n", cloud.ID, cloud.NumPoints)
		case stream.PointCloudGround:
			fmt.Fprintf(p.w, "Ground points no. of points - %d\n", cloud.NumPoints)
		case stream.PointCloudBackground:
			fmt.Fprintf(p.w, "Environment points no. of points - %d\n", cloud.NumPoints)
		default:
			fmt.Fprintf(p.w, "Points (%s) no. of points - %d\n", cloud.Type, cloud.NumPoints)
		}
		if len(cloud.Intensities) > 0 {
			min, median, max := intensitySummary(cloud.Intensities)
			fmt.Fprintf(p.w, "Intensity [min, median, max] is [%g, %g, %g]\n", min, median, max)
		}
	}
}

func intensitySummary(values []float64) (min, median, max float64) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	min = floats.Min(sorted)
	max = floats.Max(sorted)
	median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return min, median, max
}
