package entities

import "time"

type SectorStatus string

const (
	SectorPending    SectorStatus = "pending"
	SectorInProgress SectorStatus = "in_progress"
	SectorCompleted  SectorStatus = "completed"
)

// SectorState is the cross-rotation status of a sector.
// ProgressPct is not guaranteed monotonic between samples.
type SectorState struct {
	SectorID    string       `json:"sector_id"`
	Status      SectorStatus `json:"status"`
	ProgressPct float64      `json:"progress_pct"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	EndedAt     *time.Time   `json:"ended_at,omitempty"`
	WaterL      float64      `json:"water_l"` // acqua cumulata
	UpdatedAt   time.Time    `json:"updated_at"`
}
