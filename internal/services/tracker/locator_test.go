package tracker

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

func TestLocate(t *testing.T) {
	st := newMemStore()
	dev := testDevice()
	st.addDevice(dev, quadrants()...)
	l := NewSectorLocator(quietLogger)
	ctx := context.Background()

	cases := []struct {
		bearing float64
		dist    float64
		want    string
	}{
		{45, 100, "s-a"},
		{135, 100, "s-b"},
		{225, 100, "s-c"},
		{315, 100, "s-d"},
		{359.5, 100, "s-d"},
		{45, 400, ""},
	}
	for _, tc := range cases {
		s, ok, err := l.Locate(ctx, st, dev, geo.Destination(center, tc.bearing, tc.dist))
		require.NoError(t, err)
		assert.Equal(t, tc.want != "", ok, "bearing %.1f", tc.bearing)
		assert.Equal(t, tc.want, s.ID, "bearing %.1f", tc.bearing)
	}
}

func TestLocateSkipsDegenerateAndPrefersFirst(t *testing.T) {
	var buf bytes.Buffer
	l := NewSectorLocator(log.New(&buf, "", 0))

	sectors := []entities.Sector{
		{ID: "broken", StartAngle: 30, EndAngle: 30, OuterRadiusM: 300},
		{ID: "first", StartAngle: 0, EndAngle: 90, OuterRadiusM: 300},
		{ID: "overlap", StartAngle: 20, EndAngle: 60, OuterRadiusM: 300},
	}
	s, ok := l.locateIn(sectors, center, geo.Destination(center, 30, 100))
	require.True(t, ok)
	assert.Equal(t, "first", s.ID)
	assert.Contains(t, buf.String(), "skip sector broken")
}
