package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

func (s *Store) SectorState(ctx context.Context, sectorID string) (entities.SectorState, bool, error) {
	var (
		st             entities.SectorState
		status         string
		started, ended sql.NullInt64
		updated        int64
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT sector_id, status, progress_pct, started_at, ended_at, water_l, updated_at
		FROM sector_states WHERE sector_id = ?`, sectorID).
		Scan(&st.SectorID, &status, &st.ProgressPct, &started, &ended, &st.WaterL, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.SectorState{}, false, nil
	}
	if err != nil {
		return entities.SectorState{}, false, fmt.Errorf("select state of sector %s: %w", sectorID, err)
	}
	st.Status = entities.SectorStatus(status)
	st.StartedAt, st.EndedAt = timePtr(started), timePtr(ended)
	st.UpdatedAt = fromNanos(updated)
	return st, true, nil
}

func (s *Store) UpsertSectorState(ctx context.Context, st entities.SectorState) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sector_states (sector_id, status, progress_pct, started_at, ended_at, water_l, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sector_id) DO UPDATE SET
			status = excluded.status,
			progress_pct = excluded.progress_pct,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			water_l = excluded.water_l,
			updated_at = excluded.updated_at`,
		st.SectorID, string(st.Status), st.ProgressPct, nullNanos(st.StartedAt), nullNanos(st.EndedAt), st.WaterL, nanos(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert state of sector %s: %w", st.SectorID, err)
	}
	return nil
}

// AppendIrrigationEvent ignores an event already recorded for (device, sector, kind, ts).
func (s *Store) AppendIrrigationEvent(ctx context.Context, ev entities.IrrigationEvent) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO irrigation_events (id, device_id, sector_id, rotation_id, kind, ts, volume_l, depth_mm, duration_min)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		ev.ID, ev.DeviceID, ev.SectorID, ev.RotationID, string(ev.Kind), nanos(ev.Timestamp), ev.VolumeL, ev.DepthMm, ev.DurationMin)
	if err != nil {
		return fmt.Errorf("append %s event of %s: %w", ev.Kind, ev.DeviceID, err)
	}
	return nil
}

// IrrigationEvents returns the events of a device in time order.
func (s *Store) IrrigationEvents(ctx context.Context, deviceID string) ([]entities.IrrigationEvent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, device_id, sector_id, rotation_id, kind, ts, volume_l, depth_mm, duration_min
		FROM irrigation_events WHERE device_id = ? ORDER BY ts, rowid`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("select events of %s: %w", deviceID, err)
	}
	defer rows.Close()
	var out []entities.IrrigationEvent
	for rows.Next() {
		var (
			ev   entities.IrrigationEvent
			kind string
			ts   int64
		)
		if err := rows.Scan(&ev.ID, &ev.DeviceID, &ev.SectorID, &ev.RotationID, &kind, &ts, &ev.VolumeL, &ev.DepthMm, &ev.DurationMin); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = entities.EventKind(kind)
		ev.Timestamp = fromNanos(ts)
		out = append(out, ev)
	}
	return out, rows.Err()
}
