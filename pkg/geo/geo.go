// Package geo holds the polar geometry used to follow a center-pivot machine:
// pressure inversion, bearing, distance, wedge containment and applied water.
package geo

import (
	"fmt"
	"math"
)

const earthRadiusM = 6371000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Wedge is a polar "pie slice" around a pivot center.
// EndDeg < StartDeg means the wedge crosses 0°.
type Wedge struct {
	StartDeg float64
	EndDeg   float64
	InnerM   float64
	OuterM   float64
}

// GeometryError reports a degenerate wedge definition.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string { return "geometry: " + e.Reason }

// Validate rejects wedges that cannot contain anything.
func (w Wedge) Validate() error {
	switch {
	case !finite(w.StartDeg, w.EndDeg, w.InnerM, w.OuterM):
		return &GeometryError{Reason: "non-finite sector bounds"}
	case w.StartDeg < 0 || w.StartDeg >= 360 || w.EndDeg < 0 || w.EndDeg >= 360:
		return &GeometryError{Reason: fmt.Sprintf("angles out of [0,360): start=%.2f end=%.2f", w.StartDeg, w.EndDeg)}
	case w.StartDeg == w.EndDeg:
		return &GeometryError{Reason: fmt.Sprintf("zero angular span at %.2f°", w.StartDeg)}
	case w.InnerM < 0:
		return &GeometryError{Reason: fmt.Sprintf("negative inner radius %.2f", w.InnerM)}
	case w.InnerM >= w.OuterM:
		return &GeometryError{Reason: fmt.Sprintf("inner radius %.2f >= outer radius %.2f", w.InnerM, w.OuterM)}
	}
	return nil
}

// Curve is the quadratic response of the pressure-proxy channel: raw = A·p² + B·p + C.
type Curve struct {
	A float64 `yaml:"a" json:"a"`
	B float64 `yaml:"b" json:"b"`
	C float64 `yaml:"c" json:"c"`
}

// DefaultCurve saturates at raw 160 (≈200 psi).
var DefaultCurve = Curve{A: -0.004, B: 1.6, C: 0}

// PressureFromRaw inverts the sensor curve. ok is false for an absent or negative
// reading and for readings outside the physical range of the curve.
func PressureFromRaw(raw *float64, c Curve) (float64, bool) {
	if raw == nil || *raw < 0 || !finite(*raw) {
		return 0, false
	}
	r := *raw
	if c.A == 0 {
		if c.B == 0 {
			return 0, false
		}
		p := (r - c.C) / c.B
		return p, p >= 0
	}
	disc := c.B*c.B + 4*c.A*(r-c.C)
	if disc < 0 {
		return 0, false
	}
	p := (-c.B + math.Sqrt(disc)) / (2 * c.A)
	if p < 0 || !finite(p) {
		return 0, false
	}
	return p, true
}

// Bearing returns the great-circle initial bearing from center to p in [0,360).
func Bearing(center, p Point) float64 {
	phi1 := rad(center.Lat)
	phi2 := rad(p.Lat)
	dLon := rad(p.Lon - center.Lon)

	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)
	return Normalize(deg(math.Atan2(y, x)))
}

// HaversineMeters is the great-circle distance between two points.
func HaversineMeters(p1, p2 Point) float64 {
	dLat := rad(p2.Lat - p1.Lat)
	dLon := rad(p2.Lon - p1.Lon)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(p1.Lat))*math.Cos(rad(p2.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Destination is the point reached from origin after distanceM along bearingDeg.
func Destination(origin Point, bearingDeg, distanceM float64) Point {
	delta := distanceM / earthRadiusM
	theta := rad(bearingDeg)
	phi1 := rad(origin.Lat)
	lambda1 := rad(origin.Lon)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)
	return Point{Lat: deg(phi2), Lon: math.Mod(deg(lambda2)+540, 360) - 180}
}

// Normalize maps any angle into [0,360).
func Normalize(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

// SignedDelta is the shortest signed rotation from -> to, in (-180,180].
func SignedDelta(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// AngularSpan is the wrap-aware width of [start,end] in degrees.
func AngularSpan(start, end float64) float64 {
	if end >= start {
		return end - start
	}
	return end + 360 - start
}

// InAngularRange reports whether bearing lies in [start,end], crossing 0° when end < start.
func InAngularRange(bearing, start, end float64) bool {
	if end < start {
		return bearing >= start || bearing <= end
	}
	return bearing >= start && bearing <= end
}

// PointInSector holds when p is inside the radius band and the angular range of w.
func PointInSector(p, center Point, w Wedge) bool {
	d := HaversineMeters(center, p)
	if d < w.InnerM || d > w.OuterM {
		return false
	}
	return InAngularRange(Bearing(center, p), w.StartDeg, w.EndDeg)
}

// SectorAreaM2 is the area of the annulus wedge.
func SectorAreaM2(w Wedge) (float64, error) {
	if err := w.Validate(); err != nil {
		return 0, err
	}
	span := AngularSpan(w.StartDeg, w.EndDeg)
	return span / 360 * math.Pi * (w.OuterM*w.OuterM - w.InnerM*w.InnerM), nil
}

// AppliedVolumeLiters = flow [L/min] · minutes · coefficient.
func AppliedVolumeLiters(flowLpm, minutes, coefficient float64) float64 {
	return flowLpm * minutes * coefficient
}

// AppliedDepthMm converts a volume over an area into millimetres (1 L/m² = 1 mm).
func AppliedDepthMm(volumeL, areaM2 float64) float64 {
	if areaM2 <= 0 {
		return 0
	}
	return volumeL * 0.001 / areaM2 * 1000
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
