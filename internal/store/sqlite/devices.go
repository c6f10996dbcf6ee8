package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

const deviceColumns = `id, name, center_lat, center_lon, radius_m, flow_lpm, rotation_hours, active`

func scanDevice(row interface{ Scan(...any) error }) (entities.Device, error) {
	var (
		d        entities.Device
		lat, lon sql.NullFloat64
	)
	err := row.Scan(&d.ID, &d.Name, &lat, &lon, &d.RadiusM, &d.FlowLpm, &d.RotationHours, &d.Active)
	d.CenterLat, d.CenterLon = floatPtr(lat), floatPtr(lon)
	return d, err
}

func (s *Store) ActiveDevice(ctx context.Context, name string) (entities.Device, bool, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE name = ? AND active = 1`, name)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Device{}, false, nil
	}
	if err != nil {
		return entities.Device{}, false, fmt.Errorf("select device %q: %w", name, err)
	}
	return d, true, nil
}

// Devices lists every registered device, active or not, by name.
func (s *Store) Devices(ctx context.Context) ([]entities.Device, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select devices: %w", err)
	}
	defer rows.Close()
	var out []entities.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertDevice registers or updates a device by id.
func (s *Store) UpsertDevice(ctx context.Context, d entities.Device) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			center_lat = excluded.center_lat,
			center_lon = excluded.center_lon,
			radius_m = excluded.radius_m,
			flow_lpm = excluded.flow_lpm,
			rotation_hours = excluded.rotation_hours,
			active = excluded.active`,
		d.ID, d.Name, nullFloat(d.CenterLat), nullFloat(d.CenterLon), d.RadiusM, d.FlowLpm, d.RotationHours, boolInt(d.Active))
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", d.ID, err)
	}
	return nil
}

const sectorColumns = `id, device_id, lot_id, name, start_angle, end_angle, inner_radius_m, outer_radius_m,
	active, coefficient, priority, color, position`

// ActiveSectors returns the active sectors of the device in registration order.
func (s *Store) ActiveSectors(ctx context.Context, deviceID string) ([]entities.Sector, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+sectorColumns+`
		FROM sectors
		WHERE device_id = ? AND active = 1
		ORDER BY position, rowid`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("select sectors of %s: %w", deviceID, err)
	}
	defer rows.Close()

	var out []entities.Sector
	for rows.Next() {
		var sc entities.Sector
		if err := rows.Scan(&sc.ID, &sc.DeviceID, &sc.LotID, &sc.Name, &sc.StartAngle, &sc.EndAngle,
			&sc.InnerRadiusM, &sc.OuterRadiusM, &sc.Active, &sc.Coefficient, &sc.Priority, &sc.Color, &sc.Position); err != nil {
			return nil, fmt.Errorf("scan sector: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// UpsertSector registers or updates a sector by id.
func (s *Store) UpsertSector(ctx context.Context, sc entities.Sector) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sectors (`+sectorColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			device_id = excluded.device_id,
			lot_id = excluded.lot_id,
			name = excluded.name,
			start_angle = excluded.start_angle,
			end_angle = excluded.end_angle,
			inner_radius_m = excluded.inner_radius_m,
			outer_radius_m = excluded.outer_radius_m,
			active = excluded.active,
			coefficient = excluded.coefficient,
			priority = excluded.priority,
			color = excluded.color,
			position = excluded.position`,
		sc.ID, sc.DeviceID, sc.LotID, sc.Name, sc.StartAngle, sc.EndAngle, sc.InnerRadiusM, sc.OuterRadiusM,
		boolInt(sc.Active), sc.Coefficient, sc.Priority, sc.Color, sc.Position)
	if err != nil {
		return fmt.Errorf("upsert sector %s: %w", sc.ID, err)
	}
	return nil
}
