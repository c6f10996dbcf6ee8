package tracker

import (
	"io"
	"log"
	"math"
	"time"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model"
	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

var (
	t0     = time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	center = geo.Point{Lat: -34.6037, Lon: -58.3816}

	quietLogger = log.New(io.Discard, "", 0)
)

// rawIrrigating inverts to ~26.8 psi on the default curve.
const rawIrrigating = 40.0

func f64(v float64) *float64 { return &v }

func testDevice() entities.Device {
	return entities.Device{
		ID:            "dev-1",
		Name:          "pivot-north",
		CenterLat:     f64(center.Lat),
		CenterLon:     f64(center.Lon),
		RadiusM:       300,
		FlowLpm:       100,
		RotationHours: 24,
		Active:        true,
	}
}

// quadrants splits the circle into four 90° wedges of radius 300 m.
func quadrants() []entities.Sector {
	return []entities.Sector{
		{ID: "s-a", Name: "A", StartAngle: 0, EndAngle: 90, OuterRadiusM: 300, Coefficient: 1},
		{ID: "s-b", Name: "B", StartAngle: 90, EndAngle: 180, OuterRadiusM: 300, Coefficient: 1},
		{ID: "s-c", Name: "C", StartAngle: 180, EndAngle: 270, OuterRadiusM: 300, Coefficient: 1},
		{ID: "s-d", Name: "D", StartAngle: 270, EndAngle: 0, OuterRadiusM: 300, Coefficient: 1},
	}
}

// fiveThousandSquareMeters is a 90° wedge with an area of exactly 5000 m².
func fiveThousandSquareMeters() entities.Sector {
	return entities.Sector{
		ID: "s-lot", Name: "lot", StartAngle: 0, EndAngle: 90,
		OuterRadiusM: math.Sqrt(4 * 5000 / math.Pi), Coefficient: 1,
	}
}

// irrigatingAt is a moving, irrigating record 50 m from the center at bearing.
func irrigatingAt(bearing float64, ts time.Time) model.TelemetryRecord {
	p := geo.Destination(center, bearing, 50)
	return model.TelemetryRecord{
		DeviceName:  "pivot-north",
		Timestamp:   ts,
		Lat:         p.Lat,
		Lon:         p.Lon,
		Speed:       0.3,
		RawPressure: f64(rawIrrigating),
	}
}

func dryAt(bearing float64, ts time.Time) model.TelemetryRecord {
	r := irrigatingAt(bearing, ts)
	r.RawPressure = f64(0)
	return r
}

func testConfig() Config { return DefaultConfig() }
