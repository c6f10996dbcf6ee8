package tracker

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

// SectorEventTracker opens and closes sector visits and keeps SectorState current.
type SectorEventTracker struct {
	cfg     Config
	logger  *log.Logger
	metrics *Metrics
}

func NewSectorEventTracker(cfg Config, logger *log.Logger, m *Metrics) *SectorEventTracker {
	if logger == nil {
		logger = log.Default()
	}
	return &SectorEventTracker{cfg: cfg, logger: logger, metrics: m}
}

// OnEnter opens a visit for (rot, sector). A visit already open is returned as is and
// no event is emitted.
func (t *SectorEventTracker) OnEnter(ctx context.Context, st Store, rot entities.Rotation, sector entities.Sector, angle float64, ts time.Time) (entities.SectorVisit, *entities.IrrigationEvent, error) {
	if rot.ID == "" || rot.Completed {
		return entities.SectorVisit{}, nil, ErrNoOpenRotation
	}

	var (
		visit entities.SectorVisit
		event *entities.IrrigationEvent
	)
	err := st.Atomic(ctx, func(tx Store) error {
		v, created, err := tx.OpenSectorVisit(ctx, entities.SectorVisit{
			ID:         uuid.NewString(),
			RotationID: rot.ID,
			SectorID:   sector.ID,
			DeviceID:   rot.DeviceID,
			EnteredAt:  ts,
			EntryAngle: angle,
		})
		if err != nil {
			return fmt.Errorf("open visit of sector %s: %w", sector.ID, err)
		}
		visit = v
		if !created {
			return nil
		}

		cur, ok, err := tx.SectorState(ctx, sector.ID)
		if err != nil {
			return fmt.Errorf("load state of sector %s: %w", sector.ID, err)
		}
		if !ok || cur.Status != entities.SectorInProgress {
			cur = entities.SectorState{
				SectorID:  sector.ID,
				Status:    entities.SectorInProgress,
				StartedAt: &ts,
				WaterL:    cur.WaterL,
			}
		}
		cur.UpdatedAt = ts
		if err := tx.UpsertSectorState(ctx, cur); err != nil {
			return fmt.Errorf("update state of sector %s: %w", sector.ID, err)
		}

		ev := entities.IrrigationEvent{
			ID:         uuid.NewString(),
			DeviceID:   rot.DeviceID,
			SectorID:   sector.ID,
			RotationID: rot.ID,
			Kind:       entities.EventEnter,
			Timestamp:  ts,
		}
		if err := tx.AppendIrrigationEvent(ctx, ev); err != nil {
			return fmt.Errorf("append enter event: %w", err)
		}
		event = &ev
		return nil
	})
	if err != nil {
		return entities.SectorVisit{}, nil, err
	}
	return visit, event, nil
}

// OnExit closes the open visit of (rot, sector) with its applied-water metrics, marks the
// sector completed and refreshes the rotation totals. Without an open visit it is a no-op.
func (t *SectorEventTracker) OnExit(ctx context.Context, st Store, device entities.Device, rot entities.Rotation, sector entities.Sector, ts time.Time) (*entities.SectorVisit, *entities.IrrigationEvent, error) {
	var (
		visit *entities.SectorVisit
		event *entities.IrrigationEvent
	)
	err := st.Atomic(ctx, func(tx Store) error {
		v, ok, err := t.closeOpenVisit(ctx, tx, device, rot, sector, ts)
		if err != nil || !ok {
			return err
		}
		visit = &v

		cur, _, err := tx.SectorState(ctx, sector.ID)
		if err != nil {
			return fmt.Errorf("load state of sector %s: %w", sector.ID, err)
		}
		cur.SectorID = sector.ID
		cur.Status = entities.SectorCompleted
		cur.ProgressPct = 100
		cur.EndedAt = &ts
		cur.WaterL += v.Metrics.VolumeL
		cur.UpdatedAt = ts
		if cur.StartedAt == nil {
			entered := v.EnteredAt
			cur.StartedAt = &entered
		}
		if err := tx.UpsertSectorState(ctx, cur); err != nil {
			return fmt.Errorf("update state of sector %s: %w", sector.ID, err)
		}

		ev := entities.IrrigationEvent{
			ID:          uuid.NewString(),
			DeviceID:    device.ID,
			SectorID:    sector.ID,
			RotationID:  rot.ID,
			Kind:        entities.EventExit,
			Timestamp:   ts,
			VolumeL:     v.Metrics.VolumeL,
			DepthMm:     v.Metrics.DepthMm,
			DurationMin: v.Metrics.DurationMin,
		}
		if err := tx.AppendIrrigationEvent(ctx, ev); err != nil {
			return fmt.Errorf("append exit event: %w", err)
		}
		event = &ev

		if _, err := tx.RecomputeRotationTotals(ctx, rot.ID); err != nil {
			return fmt.Errorf("recompute totals of rotation %s: %w", rot.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if visit != nil {
		t.metrics.VisitClosed(visit.Metrics.VolumeL)
	}
	return visit, event, nil
}

// CloseAtBoundary closes the open visit of a rotation that is about to complete without
// marking the sector done; ReopenAtBoundary continues it in the successor. The water of
// the closed part is credited to the sector and to the rotation totals.
func (t *SectorEventTracker) CloseAtBoundary(ctx context.Context, st Store, device entities.Device, rot entities.Rotation, sector entities.Sector, ts time.Time) (bool, error) {
	var visit *entities.SectorVisit
	err := st.Atomic(ctx, func(tx Store) error {
		v, ok, err := t.closeOpenVisit(ctx, tx, device, rot, sector, ts)
		if err != nil || !ok {
			return err
		}
		visit = &v

		cur, _, err := tx.SectorState(ctx, sector.ID)
		if err != nil {
			return fmt.Errorf("load state of sector %s: %w", sector.ID, err)
		}
		cur.SectorID = sector.ID
		cur.Status = entities.SectorInProgress
		cur.WaterL += v.Metrics.VolumeL
		cur.UpdatedAt = ts
		if cur.StartedAt == nil {
			entered := v.EnteredAt
			cur.StartedAt = &entered
		}
		if err := tx.UpsertSectorState(ctx, cur); err != nil {
			return fmt.Errorf("update state of sector %s: %w", sector.ID, err)
		}

		if _, err := tx.RecomputeRotationTotals(ctx, rot.ID); err != nil {
			return fmt.Errorf("recompute totals of rotation %s: %w", rot.ID, err)
		}
		return nil
	})
	if err != nil || visit == nil {
		return false, err
	}
	t.metrics.VisitClosed(visit.Metrics.VolumeL)
	return true, nil
}

func (t *SectorEventTracker) ReopenAtBoundary(ctx context.Context, st Store, next entities.Rotation, sector entities.Sector, angle float64, ts time.Time) (entities.SectorVisit, error) {
	v, _, err := st.OpenSectorVisit(ctx, entities.SectorVisit{
		ID:         uuid.NewString(),
		RotationID: next.ID,
		SectorID:   sector.ID,
		DeviceID:   next.DeviceID,
		EnteredAt:  ts,
		EntryAngle: angle,
	})
	if err != nil {
		return entities.SectorVisit{}, fmt.Errorf("reopen visit of sector %s: %w", sector.ID, err)
	}
	return v, nil
}

// UpdateSectorProgress estimates how far the device is through the sector as the larger
// of elapsed time over expected time and angle swept over angular span, each capped.
func (t *SectorEventTracker) UpdateSectorProgress(ctx context.Context, st Store, device entities.Device, sector entities.Sector, visit entities.SectorVisit, dir entities.Direction, bearing float64, ts time.Time) (float64, error) {
	span := sector.Span()
	if span <= 0 {
		return 0, nil
	}

	var timePct float64
	if full := device.RotationDuration(); full > 0 {
		expected := full.Seconds() * span / 360
		timePct = ts.Sub(visit.EnteredAt).Seconds() / expected * 100
	}

	eff := dir
	if eff != entities.Clockwise && eff != entities.Counterclockwise {
		eff = t.cfg.DefaultDirection
	}
	swept := coverage(visit.EntryAngle, bearing, eff)
	if swept > span {
		// moved backwards past the entry angle
		swept = 0
	}
	sweepPct := swept / span * 100

	pct := math.Max(math.Min(timePct, t.cfg.ProgressCap), math.Min(sweepPct, t.cfg.ProgressCap))

	cur, ok, err := st.SectorState(ctx, sector.ID)
	if err != nil {
		return 0, fmt.Errorf("load state of sector %s: %w", sector.ID, err)
	}
	if !ok {
		entered := visit.EnteredAt
		cur = entities.SectorState{SectorID: sector.ID, StartedAt: &entered}
	}
	if cur.Status != entities.SectorInProgress {
		cur.Status = entities.SectorInProgress
	}
	cur.ProgressPct = pct
	cur.UpdatedAt = ts
	if err := st.UpsertSectorState(ctx, cur); err != nil {
		return 0, fmt.Errorf("update state of sector %s: %w", sector.ID, err)
	}
	return pct, nil
}

func (t *SectorEventTracker) closeOpenVisit(ctx context.Context, st Store, device entities.Device, rot entities.Rotation, sector entities.Sector, ts time.Time) (entities.SectorVisit, bool, error) {
	v, ok, err := st.OpenVisit(ctx, rot.ID, sector.ID)
	if err != nil {
		return entities.SectorVisit{}, false, fmt.Errorf("load open visit of sector %s: %w", sector.ID, err)
	}
	if !ok {
		return entities.SectorVisit{}, false, nil
	}

	m, err := t.visitMetrics(ctx, st, device, sector, v, ts)
	if err != nil {
		return entities.SectorVisit{}, false, err
	}
	closed, err := st.CloseSectorVisit(ctx, v.ID, ts, m)
	if err != nil {
		return entities.SectorVisit{}, false, fmt.Errorf("close visit %s: %w", v.ID, err)
	}
	if !closed {
		return entities.SectorVisit{}, false, nil
	}
	v.ExitedAt = &ts
	v.Completed = true
	v.Metrics = m
	return v, true, nil
}

// visitMetrics computes applied water over [entry, exit] and the pressure/speed statistics
// of the samples recorded inside the sector in that window.
func (t *SectorEventTracker) visitMetrics(ctx context.Context, st Store, device entities.Device, sector entities.Sector, v entities.SectorVisit, exit time.Time) (entities.VisitMetrics, error) {
	minutes := exit.Sub(v.EnteredAt).Minutes()
	if minutes < 0 {
		minutes = 0
	}
	m := entities.VisitMetrics{DurationMin: minutes}
	m.VolumeL = geo.AppliedVolumeLiters(device.FlowLpm, minutes, sector.Coefficient)

	area, err := geo.SectorAreaM2(sector.Wedge())
	if err != nil {
		t.logger.Printf("sectors: sector %s has no area: %v", sector.ID, err)
	}
	m.AreaM2 = area
	m.DepthMm = geo.AppliedDepthMm(m.VolumeL, area)

	samples, err := st.SamplesBetween(ctx, device.ID, v.EnteredAt, exit)
	if err != nil {
		return m, fmt.Errorf("load samples of visit %s: %w", v.ID, err)
	}
	var pressures, speeds []float64
	for _, s := range samples {
		if s.SectorID != sector.ID {
			continue
		}
		speeds = append(speeds, s.Speed)
		if s.Pressure != nil {
			pressures = append(pressures, *s.Pressure)
		}
	}
	m.Samples = len(speeds)
	m.Pressure = seriesStats(pressures)
	m.Speed = seriesStats(speeds)
	return m, nil
}

func seriesStats(xs []float64) entities.SeriesStats {
	if len(xs) == 0 {
		return entities.SeriesStats{}
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) < 2 {
		std = 0
	}
	return entities.SeriesStats{Mean: mean, Min: floats.Min(xs), Max: floats.Max(xs), StdDev: std}
}
