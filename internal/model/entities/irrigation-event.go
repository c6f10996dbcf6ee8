package entities

import "time"

type EventKind string

const (
	EventEnter             EventKind = "enter"
	EventExit              EventKind = "exit"
	EventRotationCompleted EventKind = "rotation_completed"
)

// IrrigationEvent is the append-only audit log of transitions.
type IrrigationEvent struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	SectorID    string    `json:"sector_id,omitempty"`
	RotationID  string    `json:"rotation_id"`
	Kind        EventKind `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
	VolumeL     float64   `json:"volume_l,omitempty"`
	DepthMm     float64   `json:"depth_mm,omitempty"`
	DurationMin float64   `json:"duration_min,omitempty"`
}
