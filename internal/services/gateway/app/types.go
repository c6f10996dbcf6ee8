package app

import (
	"encoding/json"
	"time"
)

// Sample is the latest position of a device as served by the persistence service.
type Sample struct {
	DeviceName  string    `json:"device_name"`
	SectorID    string    `json:"sector_id,omitempty"`
	Status      string    `json:"status"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Pressure    *float64  `json:"pressure,omitempty"`
	Bearing     *float64  `json:"bearing,omitempty"`
	Irrigating  bool      `json:"irrigating"`
	Moving      bool      `json:"moving"`
	RotationSeq int       `json:"rotation_seq"`
	Timestamp   time.Time `json:"timestamp"`
	Stale       bool      `json:"stale"`
}

// Irrigation is one sector or rotation event from the event service.
type Irrigation struct {
	Device      string  `json:"device"`
	SectorID    string  `json:"sector_id,omitempty"`
	EventType   string  `json:"event_type"`
	VolumeL     float64 `json:"volume_l"`
	DepthMm     float64 `json:"depth_mm"`
	DurationMin float64 `json:"duration_min"`
	Rotation    int64   `json:"rotation"`
	Time        string  `json:"time"`
}

type DeviceDashboard struct {
	Device string `json:"device"`
	// State is the tracker view (rotation, progress, direction, open sector) as is.
	State   json.RawMessage   `json:"state,omitempty"`
	Latest  *Sample           `json:"latest,omitempty"`
	Events  []Irrigation      `json:"events"`
	Sources map[string]Source `json:"sources"`
}

type FleetStats struct {
	Devices    int     `json:"devices"`
	Irrigating int     `json:"irrigating"`
	Moving     int     `json:"moving"`
	Stale      int     `json:"stale"`
	VolumeL    float64 `json:"volume_l"` // sum over the listed exit events
}

type FleetDashboard struct {
	Devices     []Sample          `json:"devices"`
	Irrigations []Irrigation      `json:"irrigations"`
	Stats       FleetStats        `json:"stats"`
	Sources     map[string]Source `json:"sources"`
}
