package messages

import "time"

// IrrigationEventMessage is published by the tracker after a sector entry/exit or a
// rotation completion has been committed. Aligned with SampleMessage below.
type IrrigationEventMessage struct {
	EventID     string    `json:"event_id"`
	Kind        string    `json:"kind"` // "enter" | "exit" | "rotation_completed"
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	SectorID    string    `json:"sector_id,omitempty"`
	RotationID  string    `json:"rotation_id"`
	RotationSeq int       `json:"rotation_seq"`
	VolumeL     float64   `json:"volume_l"`
	DepthMm     float64   `json:"depth_mm"`
	DurationMin float64   `json:"duration_min"`
	Timestamp   time.Time `json:"timestamp"`
}
