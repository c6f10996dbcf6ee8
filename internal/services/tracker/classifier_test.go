package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

func TestClassify(t *testing.T) {
	on, off := true, false
	cfg := testConfig()

	cases := []struct {
		name     string
		ignition *bool
		pressure *float64
		speed    float64
		want     entities.DeviceState
	}{
		{"irrigating and moving", nil, f64(25), 0.3,
			entities.DeviceState{On: true, Irrigating: true, Moving: true, Status: entities.StatusIrrigatingMoving}},
		{"irrigating stationary", nil, f64(25), 0,
			entities.DeviceState{On: true, Irrigating: true, Status: entities.StatusIrrigatingStationary}},
		{"moving dry", nil, f64(2), 0.3,
			entities.DeviceState{On: true, Moving: true, Status: entities.StatusMovingDry}},
		{"no signals", nil, nil, 0,
			entities.DeviceState{Status: entities.StatusOff}},
		{"ignition on but idle", &on, f64(0), 0,
			entities.DeviceState{On: true, Status: entities.StatusStationary}},
		{"ignition off wins", &off, f64(25), 0.3,
			entities.DeviceState{Irrigating: true, Moving: true, Status: entities.StatusOff}},
		{"threshold is exclusive", nil, f64(10), 0.01,
			entities.DeviceState{Status: entities.StatusOff}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.ignition, tc.pressure, tc.speed, cfg))
		})
	}
}
