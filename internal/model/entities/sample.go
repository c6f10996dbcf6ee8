package entities

import "time"

// PositionSample is one persisted telemetry point. One per (device, timestamp).
type PositionSample struct {
	DeviceID     string      `json:"device_id"`
	Timestamp    time.Time   `json:"timestamp"`
	SectorID     string      `json:"sector_id,omitempty"` // "" = outside every sector
	Lat          float64     `json:"lat"`
	Lon          float64     `json:"lon"`
	Altitude     float64     `json:"altitude"`
	Speed        float64     `json:"speed"` // km/h
	Course       float64     `json:"course"`
	Pressure     *float64    `json:"pressure,omitempty"`
	Bearing      *float64    `json:"bearing,omitempty"`
	DistanceM    *float64    `json:"distance_m,omitempty"`
	WithinSector bool        `json:"within_sector"`
	State        DeviceState `json:"state"`
	RotationSeq  int         `json:"rotation_seq,omitempty"`
	ExternalID   string      `json:"external_id,omitempty"`
}
