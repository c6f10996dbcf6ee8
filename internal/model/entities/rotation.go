package entities

import "time"

// Rotation is one 360° sweep of a device.
// At most one uncompleted Rotation exists per device.
type Rotation struct {
	ID          string         `json:"id"`
	DeviceID    string         `json:"device_id"`
	Seq         int            `json:"seq"`
	StartedAt   time.Time      `json:"started_at"`
	StartAngle  float64        `json:"start_angle"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
	EndAngle    *float64       `json:"end_angle,omitempty"`
	Completed   bool           `json:"completed"`
	ProgressPct float64        `json:"progress_pct"`
	Direction   Direction      `json:"direction"`
	DurationMin float64        `json:"duration_min"`
	Totals      RotationTotals `json:"totals"`
}

// RotationTotals are aggregated from the closed SectorVisits of the rotation.
type RotationTotals struct {
	IrrigatedMin float64 `json:"irrigated_min"`
	VolumeL      float64 `json:"volume_l"`
	AreaM2       float64 `json:"area_m2"`
	DepthMm      float64 `json:"depth_mm"` // area-weighted mean
	PressureAvg  float64 `json:"pressure_avg"`
	Visits       int     `json:"visits"`
}
