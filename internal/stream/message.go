package stream

import "time"

// Label classifies a tracked object.
type Label string

const (
	LabelCar        Label = "car"
	LabelPedestrian Label = "pedestrian"
	LabelCyclist    Label = "cyclist"
	LabelMisc       Label = "misc"
)

// TrackingStatus describes the tracker's confidence in an object.
type TrackingStatus string

const (
	TrackingInitialized TrackingStatus = "initialized"
	TrackingTracking    TrackingStatus = "tracking"
	TrackingDrifting    TrackingStatus = "drifting"
	TrackingLost        TrackingStatus = "lost"
)

// Vec3 is a point or extent in the sensor coordinate frame.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// BoundingBox is an axis-aligned object extent.
type BoundingBox struct {
	Position Vec3 `json:"position"`
	Size     Vec3 `json:"size"`
}

// Object is one observed state of a tracked object.
type Object struct {
	ID          uint32         `json:"id"`
	Label       Label          `json:"label"`
	BBox        BoundingBox    `json:"bbox"`
	Velocity    Vec3           `json:"velocity"`
	Tracking    TrackingStatus `json:"tracking_status"`
	ZoneIDs     []int          `json:"zone_ids,omitempty"`
	NumPoints   int            `json:"num_points,omitempty"`
	Intensities []float64      `json:"intensities,omitempty"`
}

// SensorHealth is the per-sensor status string reported by a node.
type SensorHealth string

// NodeHealth reports the status of one processing node and its sensors.
type NodeHealth struct {
	Status  string                  `json:"status"`
	Sensors map[string]SensorHealth `json:"sensors,omitempty"`
}

// Health is the system health tree carried inside stream messages.
type Health struct {
	Master string                `json:"master"`
	Nodes  map[string]NodeHealth `json:"nodes,omitempty"`
}

// StreamMessage carries the tracked-object snapshot batch for one frame.
type StreamMessage struct {
	Objects []Object `json:"objects,omitempty"`
	Health  *Health  `json:"health,omitempty"`
}

// ZoneEventType discriminates entry from exit events.
type ZoneEventType string

const (
	ZoneEntry ZoneEventType = "entry"
	ZoneExit  ZoneEventType = "exit"
)

// ZoneEvent reports an object crossing a zone boundary.
type ZoneEvent struct {
	Type      ZoneEventType `json:"type"`
	ZoneID    int           `json:"id"`
	ObjectID  uint32        `json:"object_id"`
	Timestamp time.Time     `json:"timestamp"`
}

// LosingEvent reports that the tracker dropped an object.
type LosingEvent struct {
	ObjectID  uint32    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// EventMessage groups the edge-triggered events for one frame.
type EventMessage struct {
	Zone   []ZoneEvent   `json:"zone,omitempty"`
	Losing []LosingEvent `json:"losing,omitempty"`
}

// OutputMessage is the top-level payload of the output subscription. Frames
// may carry a snapshot batch, events, or both.
type OutputMessage struct {
	Timestamp time.Time      `json:"timestamp"`
	Stream    *StreamMessage `json:"stream,omitempty"`
	Event     *EventMessage  `json:"event,omitempty"`
}

// PointCloudType discriminates the point-cloud partitions published on the
// point subscription.
type PointCloudType string

const (
	PointCloudRaw        PointCloudType = "raw"
	PointCloudGround     PointCloudType = "ground"
	PointCloudBackground PointCloudType = "background"
)

// PointCloud is one partition of points for a frame.
type PointCloud struct {
	ID          string         `json:"id,omitempty"`
	Type        PointCloudType `json:"type"`
	NumPoints   int            `json:"num_points"`
	Intensities []float64      `json:"intensities,omitempty"`
}

// PointResult is the top-level payload of the point subscription.
type PointResult struct {
	Timestamp time.Time    `json:"timestamp"`
	Clouds    []PointCloud `json:"points,omitempty"`
}
