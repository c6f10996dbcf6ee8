package tracker

import (
	"context"
	"time"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

// Store is the durable read/write contract of the tracker. Implementations must make
// every lookup that returns (value, bool, error) report false for a missing row
// instead of an error.
type Store interface {
	ActiveDevice(ctx context.Context, name string) (entities.Device, bool, error)
	ActiveSectors(ctx context.Context, deviceID string) ([]entities.Sector, error)

	OpenRotation(ctx context.Context, deviceID string) (entities.Rotation, bool, error)
	// CreateOrFetchRotation inserts a new open rotation unless one already exists for the
	// device, in which case the existing one is returned with created=false.
	CreateOrFetchRotation(ctx context.Context, deviceID string, startAngle float64, ts time.Time) (rot entities.Rotation, created bool, err error)
	UpdateRotationProgress(ctx context.Context, rotationID string, percent float64, dir entities.Direction) error
	// RecomputeRotationTotals aggregates the closed visits of the rotation and stores the result.
	RecomputeRotationTotals(ctx context.Context, rotationID string) (entities.RotationTotals, error)
	// CloseRotation marks an open rotation completed; closed=false if it was already closed.
	CloseRotation(ctx context.Context, rotationID string, endAngle float64, endTs time.Time) (closed bool, err error)

	// InsertPositionSample is idempotent on (device, timestamp).
	InsertPositionSample(ctx context.Context, s entities.PositionSample) (inserted bool, err error)
	LastPositionSample(ctx context.Context, deviceID string) (entities.PositionSample, bool, error)
	SamplesBetween(ctx context.Context, deviceID string, from, to time.Time) ([]entities.PositionSample, error)

	// OpenSectorVisit returns the open visit for (rotation, sector) or creates one with
	// order = max(order in rotation) + 1.
	OpenSectorVisit(ctx context.Context, v entities.SectorVisit) (visit entities.SectorVisit, created bool, err error)
	OpenVisit(ctx context.Context, rotationID, sectorID string) (entities.SectorVisit, bool, error)
	// CloseSectorVisit is a no-op (closed=false) for a visit that is already closed.
	CloseSectorVisit(ctx context.Context, visitID string, exitTs time.Time, m entities.VisitMetrics) (closed bool, err error)

	SectorState(ctx context.Context, sectorID string) (entities.SectorState, bool, error)
	UpsertSectorState(ctx context.Context, st entities.SectorState) error

	// AppendIrrigationEvent is idempotent on (device, sector, kind, timestamp).
	AppendIrrigationEvent(ctx context.Context, ev entities.IrrigationEvent) error

	// Atomic runs fn in a single transaction; fn must only use the Store it receives.
	Atomic(ctx context.Context, fn func(Store) error) error
}
