package entities

import "github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"

// Sector is a polar wedge around a device center, mapped to a field lot.
// EndAngle < StartAngle means the wedge crosses 0°.
type Sector struct {
	ID           string  `json:"id"`
	DeviceID     string  `json:"device_id"`
	LotID        string  `json:"lot_id"`
	Name         string  `json:"name"`
	StartAngle   float64 `json:"start_angle"`
	EndAngle     float64 `json:"end_angle"`
	InnerRadiusM float64 `json:"inner_radius_m"`
	OuterRadiusM float64 `json:"outer_radius_m"`
	Active       bool    `json:"active"`
	Coefficient  float64 `json:"coefficient"` // coefficiente di irrigazione
	Priority     int     `json:"priority"`
	Color        string  `json:"color,omitempty"`
	Position     int     `json:"position"` // registration order
}

func (s Sector) Wedge() geo.Wedge {
	return geo.Wedge{
		StartDeg: s.StartAngle,
		EndDeg:   s.EndAngle,
		InnerM:   s.InnerRadiusM,
		OuterM:   s.OuterRadiusM,
	}
}

// Span is the wrap-aware angular width in degrees.
func (s Sector) Span() float64 {
	return geo.AngularSpan(s.StartAngle, s.EndAngle)
}
