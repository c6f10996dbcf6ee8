package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

func newSectorFixture(t *testing.T) (*memStore, *SectorEventTracker, entities.Device, entities.Sector, entities.Rotation) {
	t.Helper()
	st := newMemStore()
	dev := testDevice()
	st.addDevice(dev, fiveThousandSquareMeters())
	rot, _, err := st.CreateOrFetchRotation(context.Background(), dev.ID, 350, t0.Add(-time.Hour))
	require.NoError(t, err)
	return st, NewSectorEventTracker(testConfig(), quietLogger, nil), dev, st.sectors[dev.ID][0], rot
}

func TestOnEnterRequiresOpenRotation(t *testing.T) {
	st, tr, _, sector, rot := newSectorFixture(t)
	ctx := context.Background()

	_, _, err := tr.OnEnter(ctx, st, entities.Rotation{}, sector, 10, t0)
	assert.ErrorIs(t, err, ErrNoOpenRotation)

	rot.Completed = true
	_, _, err = tr.OnEnter(ctx, st, rot, sector, 10, t0)
	assert.ErrorIs(t, err, ErrNoOpenRotation)
	assert.Empty(t, st.visits)
}

func TestOnEnterIsIdempotent(t *testing.T) {
	st, tr, _, sector, rot := newSectorFixture(t)
	ctx := context.Background()

	v, ev, err := tr.OnEnter(ctx, st, rot, sector, 10, t0)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, entities.EventEnter, ev.Kind)
	assert.Equal(t, 1, v.Order)

	again, ev, err := tr.OnEnter(ctx, st, rot, sector, 12, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, v.ID, again.ID)
	assert.Len(t, st.visits, 1)

	state := st.states[sector.ID]
	assert.Equal(t, entities.SectorInProgress, state.Status)
	require.NotNil(t, state.StartedAt)
	assert.Equal(t, t0, *state.StartedAt)
}

func TestOnExitComputesVisitMetrics(t *testing.T) {
	st, tr, dev, sector, rot := newSectorFixture(t)
	ctx := context.Background()

	_, _, err := tr.OnEnter(ctx, st, rot, sector, 10, t0)
	require.NoError(t, err)
	for i, p := range []float64{20, 22, 24} {
		_, err := st.InsertPositionSample(ctx, entities.PositionSample{
			DeviceID: dev.ID, Timestamp: t0.Add(time.Duration(i) * 10 * time.Minute),
			SectorID: sector.ID, Speed: 0.3, Pressure: f64(p),
		})
		require.NoError(t, err)
	}
	// outside the sector, ignored by the statistics
	_, err = st.InsertPositionSample(ctx, entities.PositionSample{DeviceID: dev.ID, Timestamp: t0.Add(30 * time.Minute), Speed: 9, Pressure: f64(90)})
	require.NoError(t, err)

	v, ev, err := tr.OnExit(ctx, st, dev, rot, sector, t0.Add(30*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, v)
	require.NotNil(t, ev)

	m := v.Metrics
	assert.InDelta(t, 30, m.DurationMin, 1e-9)
	assert.InDelta(t, 3000, m.VolumeL, 1e-9)
	assert.InDelta(t, 5000, m.AreaM2, 1e-6)
	assert.InDelta(t, 0.6, m.DepthMm, 1e-9)
	assert.Equal(t, 3, m.Samples)
	assert.InDelta(t, 22, m.Pressure.Mean, 1e-9)
	assert.Equal(t, 20.0, m.Pressure.Min)
	assert.Equal(t, 24.0, m.Pressure.Max)
	assert.InDelta(t, 2, m.Pressure.StdDev, 1e-9)
	assert.InDelta(t, 0.3, m.Speed.Mean, 1e-9)
	assert.InDelta(t, 0, m.Speed.StdDev, 1e-9)

	assert.Equal(t, entities.EventExit, ev.Kind)
	assert.InDelta(t, 3000, ev.VolumeL, 1e-9)

	state := st.states[sector.ID]
	assert.Equal(t, entities.SectorCompleted, state.Status)
	assert.Equal(t, 100.0, state.ProgressPct)
	assert.InDelta(t, 3000, state.WaterL, 1e-9)

	totals := st.rotations[rot.ID].Totals
	assert.Equal(t, 1, totals.Visits)
	assert.InDelta(t, 3000, totals.VolumeL, 1e-9)
	assert.InDelta(t, 0.6, totals.DepthMm, 1e-9)

	// already closed: nothing happens
	v, ev, err = tr.OnExit(ctx, st, dev, rot, sector, t0.Add(40*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Nil(t, ev)
	assert.InDelta(t, 3000, st.states[sector.ID].WaterL, 1e-9)
}

func TestReenterKeepsAccumulatedWater(t *testing.T) {
	st, tr, dev, sector, rot := newSectorFixture(t)
	ctx := context.Background()

	_, _, err := tr.OnEnter(ctx, st, rot, sector, 10, t0)
	require.NoError(t, err)
	_, _, err = tr.OnExit(ctx, st, dev, rot, sector, t0.Add(10*time.Minute))
	require.NoError(t, err)

	v, ev, err := tr.OnEnter(ctx, st, rot, sector, 10, t0.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, 2, v.Order)
	state := st.states[sector.ID]
	assert.Equal(t, entities.SectorInProgress, state.Status)
	assert.InDelta(t, 1000, state.WaterL, 1e-9)
	assert.Nil(t, state.EndedAt)
}

func TestUpdateSectorProgress(t *testing.T) {
	st, tr, dev, sector, rot := newSectorFixture(t)
	ctx := context.Background()

	visit, _, err := tr.OnEnter(ctx, st, rot, sector, 0, t0)
	require.NoError(t, err)

	// 90° of a 24 h rotation is expected to take 6 h
	cases := []struct {
		name    string
		bearing float64
		after   time.Duration
		want    float64
	}{
		{"sweep ahead of time", 45, time.Hour, 50},
		{"time ahead of sweep", 10, time.Hour, 100.0 / 6},
		{"capped", 89, 10 * time.Hour, 99},
		{"moved back past the entry", 350, time.Hour, 100.0 / 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pct, err := tr.UpdateSectorProgress(ctx, st, dev, sector, visit, entities.Counterclockwise, tc.bearing, t0.Add(tc.after))
			require.NoError(t, err)
			assert.InDelta(t, tc.want, pct, 1e-6)
			assert.InDelta(t, tc.want, st.states[sector.ID].ProgressPct, 1e-6)
		})
	}
}

func TestBoundarySplit(t *testing.T) {
	st, tr, dev, sector, rot := newSectorFixture(t)
	ctx := context.Background()

	_, _, err := tr.OnEnter(ctx, st, rot, sector, 10, t0)
	require.NoError(t, err)
	split, err := tr.CloseAtBoundary(ctx, st, dev, rot, sector, t0.Add(20*time.Minute))
	require.NoError(t, err)
	assert.True(t, split)
	assert.Equal(t, entities.SectorInProgress, st.states[sector.ID].Status, "boundary close keeps the sector in progress")

	next := entities.Rotation{ID: "r-next", DeviceID: dev.ID, Seq: 2}
	v, err := tr.ReopenAtBoundary(ctx, st, next, sector, 40, t0.Add(20*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, v.Order)
	assert.Equal(t, "r-next", v.RotationID)
	assert.Len(t, st.eventsOf(entities.EventExit), 0)

	split, err = tr.CloseAtBoundary(ctx, st, dev, rot, sector, t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.False(t, split)
}

func TestBoundarySplitCreditsSectorWater(t *testing.T) {
	st, tr, dev, sector, rot := newSectorFixture(t)
	ctx := context.Background()

	_, _, err := tr.OnEnter(ctx, st, rot, sector, 10, t0)
	require.NoError(t, err)
	_, err = tr.CloseAtBoundary(ctx, st, dev, rot, sector, t0.Add(20*time.Minute))
	require.NoError(t, err)

	assert.InDelta(t, 2000, st.states[sector.ID].WaterL, 1e-6)
	assert.Equal(t, entities.SectorInProgress, st.states[sector.ID].Status)
	assert.InDelta(t, 2000, st.rotations[rot.ID].Totals.VolumeL, 1e-6)

	closed, err := st.CloseRotation(ctx, rot.ID, 40, t0.Add(20*time.Minute))
	require.NoError(t, err)
	require.True(t, closed)
	next, created, err := st.CreateOrFetchRotation(ctx, dev.ID, 40, t0.Add(20*time.Minute))
	require.NoError(t, err)
	require.True(t, created)

	_, err = tr.ReopenAtBoundary(ctx, st, next, sector, 40, t0.Add(20*time.Minute))
	require.NoError(t, err)
	v, _, err := tr.OnExit(ctx, st, dev, next, sector, t0.Add(30*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.InDelta(t, 1000, v.Metrics.VolumeL, 1e-6)

	var visits float64
	for _, cv := range st.closedVisits() {
		visits += cv.Metrics.VolumeL
	}
	assert.InDelta(t, 3000, visits, 1e-6)
	assert.InDelta(t, 3000, st.states[sector.ID].WaterL, 1e-6, "no water lost across the boundary")
	assert.Equal(t, entities.SectorCompleted, st.states[sector.ID].Status)
}
