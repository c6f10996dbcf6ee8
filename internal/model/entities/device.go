package entities

import (
	"time"

	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

// Device represents a center-pivot machine. Owned by the field registry, read-only here.
type Device struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	CenterLat     *float64 `json:"center_lat,omitempty"`
	CenterLon     *float64 `json:"center_lon,omitempty"`
	RadiusM       float64  `json:"radius_m"`       // raggio di copertura [m]
	FlowLpm       float64  `json:"flow_lpm"`       // portata impianto [litri/min]
	RotationHours float64  `json:"rotation_hours"` // durata stimata di una rotazione completa [h]
	Active        bool     `json:"active"`
}

// HasCenter reports whether the pivot center is configured.
func (d Device) HasCenter() bool {
	return d.CenterLat != nil && d.CenterLon != nil
}

// Center returns the pivot point; only meaningful when HasCenter is true.
func (d Device) Center() geo.Point {
	if !d.HasCenter() {
		return geo.Point{}
	}
	return geo.Point{Lat: *d.CenterLat, Lon: *d.CenterLon}
}

// RotationDuration is the estimated time of a full 360° sweep, zero if unknown.
func (d Device) RotationDuration() time.Duration {
	if d.RotationHours <= 0 {
		return 0
	}
	return time.Duration(d.RotationHours * float64(time.Hour))
}
