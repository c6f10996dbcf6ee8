package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var center = Point{Lat: -34.6037, Lon: -58.3816}

func ptr(v float64) *float64 { return &v }

func TestPressureFromRaw(t *testing.T) {
	p, ok := PressureFromRaw(ptr(0), DefaultCurve)
	require.True(t, ok)
	assert.InDelta(t, 0, p, 1e-9)

	p, ok = PressureFromRaw(ptr(16), DefaultCurve)
	require.True(t, ok)
	assert.InDelta(t, 10.26, p, 0.01)

	// forward curve round-trip
	want := 42.0
	raw := DefaultCurve.A*want*want + DefaultCurve.B*want + DefaultCurve.C
	p, ok = PressureFromRaw(&raw, DefaultCurve)
	require.True(t, ok)
	assert.InDelta(t, want, p, 1e-6)

	_, ok = PressureFromRaw(nil, DefaultCurve)
	assert.False(t, ok, "absent channel")
	_, ok = PressureFromRaw(ptr(-1), DefaultCurve)
	assert.False(t, ok, "negative channel")
	_, ok = PressureFromRaw(ptr(200), DefaultCurve)
	assert.False(t, ok, "negative discriminant")
}

func TestPressureFromRaw_Linear(t *testing.T) {
	p, ok := PressureFromRaw(ptr(25), Curve{B: 2, C: 5})
	require.True(t, ok)
	assert.InDelta(t, 10, p, 1e-9)

	_, ok = PressureFromRaw(ptr(25), Curve{})
	assert.False(t, ok)
}

func TestHaversineSamePointIsZero(t *testing.T) {
	assert.Equal(t, 0.0, HaversineMeters(center, center))
}

func TestHaversineKnownDistance(t *testing.T) {
	// one degree of latitude is ~111.19 km on a 6371 km sphere
	d := HaversineMeters(Point{Lat: 0, Lon: 0}, Point{Lat: 1, Lon: 0})
	assert.InDelta(t, 111195, d, 1)
}

func TestBearingRange(t *testing.T) {
	for b := 0.0; b < 360; b += 7.5 {
		p := Destination(center, b, 300)
		got := Bearing(center, p)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.Less(t, got, 360.0)
		assert.InDelta(t, 0, SignedDelta(b, got), 1e-6, "bearing %.1f", b)
	}
	// point due north and due west
	assert.InDelta(t, 0, Bearing(center, Point{Lat: center.Lat + 0.01, Lon: center.Lon}), 1e-9)
	assert.InDelta(t, 270, Bearing(center, Point{Lat: center.Lat, Lon: center.Lon - 0.01}), 0.01)
}

func TestPointInSectorWrapsZero(t *testing.T) {
	w := Wedge{StartDeg: 350, EndDeg: 10, InnerM: 0, OuterM: 500}

	assert.True(t, PointInSector(Destination(center, 355, 200), center, w))
	assert.True(t, PointInSector(Destination(center, 5, 200), center, w))
	assert.False(t, PointInSector(Destination(center, 180, 200), center, w))
	assert.False(t, PointInSector(Destination(center, 355, 800), center, w), "outside outer radius")
}

func TestPointInSectorRadiusBand(t *testing.T) {
	w := Wedge{StartDeg: 90, EndDeg: 180, InnerM: 100, OuterM: 300}

	assert.False(t, PointInSector(Destination(center, 120, 50), center, w))
	assert.True(t, PointInSector(Destination(center, 120, 200), center, w))
	assert.False(t, PointInSector(Destination(center, 200, 200), center, w))
}

func TestSectorArea(t *testing.T) {
	a, err := SectorAreaM2(Wedge{StartDeg: 0, EndDeg: 90, OuterM: 100})
	require.NoError(t, err)
	assert.InDelta(t, math.Pi*10000/4, a, 1e-6)

	// span across 0° uses the same rule as containment
	a, err = SectorAreaM2(Wedge{StartDeg: 350, EndDeg: 10, InnerM: 50, OuterM: 100})
	require.NoError(t, err)
	assert.InDelta(t, 20.0/360*math.Pi*(10000-2500), a, 1e-6)
}

func TestSectorAreaDegenerate(t *testing.T) {
	cases := []Wedge{
		{StartDeg: 40, EndDeg: 40, OuterM: 100},
		{StartDeg: 0, EndDeg: 90, InnerM: 100, OuterM: 100},
		{StartDeg: 0, EndDeg: 90, InnerM: -1, OuterM: 100},
		{StartDeg: 0, EndDeg: 360, OuterM: 100},
	}
	for _, w := range cases {
		_, err := SectorAreaM2(w)
		var gerr *GeometryError
		assert.ErrorAs(t, err, &gerr, "%+v", w)
	}
}

func TestAppliedWater(t *testing.T) {
	v := AppliedVolumeLiters(100, 30, 1.0)
	assert.InDelta(t, 3000, v, 1e-9)
	assert.InDelta(t, 0.6, AppliedDepthMm(v, 5000), 1e-9)
	assert.Equal(t, 0.0, AppliedDepthMm(v, 0))
}

func TestSignedDelta(t *testing.T) {
	assert.InDelta(t, 20, SignedDelta(350, 10), 1e-9)
	assert.InDelta(t, -20, SignedDelta(10, 350), 1e-9)
	assert.InDelta(t, 180, SignedDelta(0, 180), 1e-9)
	assert.InDelta(t, 180, SignedDelta(180, 0), 1e-9)
}

func TestNormalize(t *testing.T) {
	assert.InDelta(t, 350, Normalize(-10), 1e-9)
	assert.InDelta(t, 0, Normalize(720), 1e-9)
	assert.InDelta(t, 10, Normalize(370), 1e-9)
}
