package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

const sampleColumns = `device_id, ts, sector_id, lat, lon, altitude, speed, course, pressure, bearing, distance_m,
	within_sector, is_on, irrigating, moving, status, rotation_seq, external_id`

func scanSample(row interface{ Scan(...any) error }) (entities.PositionSample, error) {
	var (
		p                     entities.PositionSample
		ts                    int64
		sector                sql.NullString
		pressure, bearing, dm sql.NullFloat64
		status                string
	)
	err := row.Scan(&p.DeviceID, &ts, &sector, &p.Lat, &p.Lon, &p.Altitude, &p.Speed, &p.Course,
		&pressure, &bearing, &dm, &p.WithinSector, &p.State.On, &p.State.Irrigating, &p.State.Moving,
		&status, &p.RotationSeq, &p.ExternalID)
	p.Timestamp = fromNanos(ts)
	p.SectorID = sector.String
	p.Pressure, p.Bearing, p.DistanceM = floatPtr(pressure), floatPtr(bearing), floatPtr(dm)
	p.State.Status = entities.Status(status)
	return p, err
}

// InsertPositionSample is a no-op returning false when (device, ts) already exists.
func (s *Store) InsertPositionSample(ctx context.Context, p entities.PositionSample) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO position_samples (`+sampleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, ts) DO NOTHING`,
		p.DeviceID, nanos(p.Timestamp), nullString(p.SectorID), p.Lat, p.Lon, p.Altitude, p.Speed, p.Course,
		nullFloat(p.Pressure), nullFloat(p.Bearing), nullFloat(p.DistanceM),
		boolInt(p.WithinSector), boolInt(p.State.On), boolInt(p.State.Irrigating), boolInt(p.State.Moving),
		string(p.State.Status), p.RotationSeq, p.ExternalID)
	if err != nil {
		return false, fmt.Errorf("insert sample of %s: %w", p.DeviceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert sample of %s: %w", p.DeviceID, err)
	}
	return n == 1, nil
}

func (s *Store) LastPositionSample(ctx context.Context, deviceID string) (entities.PositionSample, bool, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+sampleColumns+` FROM position_samples
		WHERE device_id = ? ORDER BY ts DESC LIMIT 1`, deviceID)
	p, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.PositionSample{}, false, nil
	}
	if err != nil {
		return entities.PositionSample{}, false, fmt.Errorf("select last sample of %s: %w", deviceID, err)
	}
	return p, true, nil
}

// SamplesBetween returns the samples in [from, to] ordered by time.
func (s *Store) SamplesBetween(ctx context.Context, deviceID string, from, to time.Time) ([]entities.PositionSample, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+sampleColumns+` FROM position_samples
		WHERE device_id = ? AND ts BETWEEN ? AND ?
		ORDER BY ts`, deviceID, nanos(from), nanos(to))
	if err != nil {
		return nil, fmt.Errorf("select samples of %s: %w", deviceID, err)
	}
	defer rows.Close()
	var out []entities.PositionSample
	for rows.Next() {
		p, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountSamples is the number of persisted samples of a device.
func (s *Store) CountSamples(ctx context.Context, deviceID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM position_samples WHERE device_id = ?`, deviceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count samples of %s: %w", deviceID, err)
	}
	return n, nil
}
