package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/internal/services/tracker"
)

const rotationColumns = `id, device_id, seq, started_at, start_angle, ended_at, end_angle, completed,
	progress_pct, direction, duration_min, irrigated_min, volume_l, area_m2, depth_mm, pressure_avg, visits`

func scanRotation(row interface{ Scan(...any) error }) (entities.Rotation, error) {
	var (
		r        entities.Rotation
		started  int64
		ended    sql.NullInt64
		endAngle sql.NullFloat64
		dir      string
	)
	err := row.Scan(&r.ID, &r.DeviceID, &r.Seq, &started, &r.StartAngle, &ended, &endAngle, &r.Completed,
		&r.ProgressPct, &dir, &r.DurationMin, &r.Totals.IrrigatedMin, &r.Totals.VolumeL, &r.Totals.AreaM2,
		&r.Totals.DepthMm, &r.Totals.PressureAvg, &r.Totals.Visits)
	r.StartedAt = fromNanos(started)
	r.EndedAt = timePtr(ended)
	r.EndAngle = floatPtr(endAngle)
	r.Direction = entities.Direction(dir)
	return r, err
}

func (s *Store) OpenRotation(ctx context.Context, deviceID string) (entities.Rotation, bool, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+rotationColumns+` FROM rotations WHERE device_id = ? AND completed = 0`, deviceID)
	r, err := scanRotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Rotation{}, false, nil
	}
	if err != nil {
		return entities.Rotation{}, false, fmt.Errorf("select open rotation of %s: %w", deviceID, err)
	}
	return r, true, nil
}

// Rotation loads a rotation by id.
func (s *Store) Rotation(ctx context.Context, id string) (entities.Rotation, bool, error) {
	r, err := scanRotation(s.q.QueryRowContext(ctx, `SELECT `+rotationColumns+` FROM rotations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Rotation{}, false, nil
	}
	if err != nil {
		return entities.Rotation{}, false, fmt.Errorf("select rotation %s: %w", id, err)
	}
	return r, true, nil
}

// Rotations lists the rotations of a device by sequence number.
func (s *Store) Rotations(ctx context.Context, deviceID string) ([]entities.Rotation, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+rotationColumns+` FROM rotations WHERE device_id = ? ORDER BY seq`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("select rotations of %s: %w", deviceID, err)
	}
	defer rows.Close()
	var out []entities.Rotation
	for rows.Next() {
		r, err := scanRotation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rotation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateOrFetchRotation relies on the partial unique index over open rotations: the
// insert is a no-op when another rotation is open, and that one is returned instead.
func (s *Store) CreateOrFetchRotation(ctx context.Context, deviceID string, startAngle float64, ts time.Time) (entities.Rotation, bool, error) {
	var seq int
	if err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM rotations WHERE device_id = ?`, deviceID).Scan(&seq); err != nil {
		return entities.Rotation{}, false, fmt.Errorf("next rotation seq of %s: %w", deviceID, err)
	}

	r := entities.Rotation{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		Seq:        seq,
		StartedAt:  ts.UTC(),
		StartAngle: startAngle,
	}
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO rotations (id, device_id, seq, started_at, start_angle)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		r.ID, r.DeviceID, r.Seq, nanos(ts), r.StartAngle)
	if err != nil {
		return entities.Rotation{}, false, fmt.Errorf("insert rotation of %s: %w", deviceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return entities.Rotation{}, false, fmt.Errorf("insert rotation of %s: %w", deviceID, err)
	}
	if n == 1 {
		return r, true, nil
	}

	winner, ok, err := s.OpenRotation(ctx, deviceID)
	if err != nil {
		return entities.Rotation{}, false, err
	}
	if !ok {
		return entities.Rotation{}, false, tracker.ErrRotationConflict
	}
	return winner, false, nil
}

func (s *Store) UpdateRotationProgress(ctx context.Context, rotationID string, percent float64, dir entities.Direction) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE rotations SET progress_pct = ?, direction = ? WHERE id = ? AND completed = 0`,
		percent, string(dir), rotationID)
	if err != nil {
		return fmt.Errorf("update rotation %s: %w", rotationID, err)
	}
	return nil
}

func (s *Store) RecomputeRotationTotals(ctx context.Context, rotationID string) (entities.RotationTotals, error) {
	visits, err := s.RotationVisits(ctx, rotationID)
	if err != nil {
		return entities.RotationTotals{}, err
	}
	t := tracker.AggregateTotals(visits)
	_, err = s.q.ExecContext(ctx, `
		UPDATE rotations
		SET irrigated_min = ?, volume_l = ?, area_m2 = ?, depth_mm = ?, pressure_avg = ?, visits = ?
		WHERE id = ?`,
		t.IrrigatedMin, t.VolumeL, t.AreaM2, t.DepthMm, t.PressureAvg, t.Visits, rotationID)
	if err != nil {
		return t, fmt.Errorf("store totals of rotation %s: %w", rotationID, err)
	}
	return t, nil
}

func (s *Store) CloseRotation(ctx context.Context, rotationID string, endAngle float64, endTs time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE rotations
		SET completed = 1,
		    ended_at = ?,
		    end_angle = ?,
		    progress_pct = 100,
		    duration_min = (? - started_at) / 60000000000.0
		WHERE id = ? AND completed = 0`,
		nanos(endTs), endAngle, nanos(endTs), rotationID)
	if err != nil {
		return false, fmt.Errorf("close rotation %s: %w", rotationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close rotation %s: %w", rotationID, err)
	}
	return n == 1, nil
}
