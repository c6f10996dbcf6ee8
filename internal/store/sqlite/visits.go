package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

const visitColumns = `id, rotation_id, sector_id, device_id, visit_order, entered_at, entry_angle, exited_at, completed,
	duration_min, volume_l, depth_mm, area_m2, samples,
	pressure_mean, pressure_min, pressure_max, pressure_std, speed_mean, speed_min, speed_max, speed_std`

func scanVisit(row interface{ Scan(...any) error }) (entities.SectorVisit, error) {
	var (
		v       entities.SectorVisit
		entered int64
		exited  sql.NullInt64
	)
	m := &v.Metrics
	err := row.Scan(&v.ID, &v.RotationID, &v.SectorID, &v.DeviceID, &v.Order, &entered, &v.EntryAngle, &exited,
		&v.Completed, &m.DurationMin, &m.VolumeL, &m.DepthMm, &m.AreaM2, &m.Samples,
		&m.Pressure.Mean, &m.Pressure.Min, &m.Pressure.Max, &m.Pressure.StdDev,
		&m.Speed.Mean, &m.Speed.Min, &m.Speed.Max, &m.Speed.StdDev)
	v.EnteredAt = fromNanos(entered)
	v.ExitedAt = timePtr(exited)
	return v, err
}

func (s *Store) OpenVisit(ctx context.Context, rotationID, sectorID string) (entities.SectorVisit, bool, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+visitColumns+` FROM sector_visits
		WHERE rotation_id = ? AND sector_id = ? AND completed = 0`, rotationID, sectorID)
	v, err := scanVisit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.SectorVisit{}, false, nil
	}
	if err != nil {
		return entities.SectorVisit{}, false, fmt.Errorf("select open visit: %w", err)
	}
	return v, true, nil
}

// OpenSectorVisit inserts v with the next order of its rotation unless a visit is already
// open for (rotation, sector), which is then returned with created=false.
func (s *Store) OpenSectorVisit(ctx context.Context, v entities.SectorVisit) (entities.SectorVisit, bool, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO sector_visits (id, rotation_id, sector_id, device_id, visit_order, entered_at, entry_angle)
		SELECT ?, ?, ?, ?, COALESCE(MAX(visit_order), 0) + 1, ?, ?
		FROM sector_visits WHERE rotation_id = ?
		ON CONFLICT DO NOTHING`,
		v.ID, v.RotationID, v.SectorID, v.DeviceID, nanos(v.EnteredAt), v.EntryAngle, v.RotationID)
	if err != nil {
		return entities.SectorVisit{}, false, fmt.Errorf("insert visit of sector %s: %w", v.SectorID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return entities.SectorVisit{}, false, fmt.Errorf("insert visit of sector %s: %w", v.SectorID, err)
	}
	open, ok, err := s.OpenVisit(ctx, v.RotationID, v.SectorID)
	if err != nil {
		return entities.SectorVisit{}, false, err
	}
	if !ok {
		return entities.SectorVisit{}, false, fmt.Errorf("visit of sector %s in rotation %s vanished", v.SectorID, v.RotationID)
	}
	return open, n == 1, nil
}

func (s *Store) CloseSectorVisit(ctx context.Context, visitID string, exitTs time.Time, m entities.VisitMetrics) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE sector_visits SET
			completed = 1, exited_at = ?,
			duration_min = ?, volume_l = ?, depth_mm = ?, area_m2 = ?, samples = ?,
			pressure_mean = ?, pressure_min = ?, pressure_max = ?, pressure_std = ?,
			speed_mean = ?, speed_min = ?, speed_max = ?, speed_std = ?
		WHERE id = ? AND completed = 0`,
		nanos(exitTs), m.DurationMin, m.VolumeL, m.DepthMm, m.AreaM2, m.Samples,
		m.Pressure.Mean, m.Pressure.Min, m.Pressure.Max, m.Pressure.StdDev,
		m.Speed.Mean, m.Speed.Min, m.Speed.Max, m.Speed.StdDev, visitID)
	if err != nil {
		return false, fmt.Errorf("close visit %s: %w", visitID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close visit %s: %w", visitID, err)
	}
	return n == 1, nil
}

// RotationVisits lists every visit of a rotation in entry order.
func (s *Store) RotationVisits(ctx context.Context, rotationID string) ([]entities.SectorVisit, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+visitColumns+` FROM sector_visits
		WHERE rotation_id = ? ORDER BY visit_order`, rotationID)
	if err != nil {
		return nil, fmt.Errorf("select visits of rotation %s: %w", rotationID, err)
	}
	defer rows.Close()
	var out []entities.SectorVisit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeviceVisits lists every visit of a device across rotations.
func (s *Store) DeviceVisits(ctx context.Context, deviceID string) ([]entities.SectorVisit, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+visitColumns+` FROM sector_visits
		WHERE device_id = ? ORDER BY entered_at, visit_order`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("select visits of %s: %w", deviceID, err)
	}
	defer rows.Close()
	var out []entities.SectorVisit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
