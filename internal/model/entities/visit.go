package entities

import "time"

// SectorVisit is one pass of the device through a sector within a rotation.
// Metrics are only meaningful once Completed is set; a closed visit never changes.
type SectorVisit struct {
	ID         string       `json:"id"`
	RotationID string       `json:"rotation_id"`
	SectorID   string       `json:"sector_id"`
	DeviceID   string       `json:"device_id"`
	Order      int          `json:"order"`
	EnteredAt  time.Time    `json:"entered_at"`
	EntryAngle float64      `json:"entry_angle"`
	ExitedAt   *time.Time   `json:"exited_at,omitempty"`
	Completed  bool         `json:"completed"`
	Metrics    VisitMetrics `json:"metrics"`
}

type VisitMetrics struct {
	DurationMin float64     `json:"duration_min"`
	VolumeL     float64     `json:"volume_l"`
	DepthMm     float64     `json:"depth_mm"` // lamina
	AreaM2      float64     `json:"area_m2"`
	Samples     int         `json:"samples"`
	Pressure    SeriesStats `json:"pressure"`
	Speed       SeriesStats `json:"speed"`
}

type SeriesStats struct {
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}
