package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

func historyOf(angles ...float64) AngleHistory {
	h := NewAngleHistory(len(angles))
	for i, a := range angles {
		h.Record(a, t0.Add(time.Duration(i)*time.Minute))
	}
	return h
}

func TestInferDirection(t *testing.T) {
	// eight of ten deltas decreasing
	h := historyOf(100, 95, 90, 85, 80, 75, 70, 65, 66, 67, 62)
	assert.Equal(t, entities.Clockwise, InferDirection(h, 0.7, 0.5))

	h = historyOf(350, 355, 0, 5, 10)
	assert.Equal(t, entities.Counterclockwise, InferDirection(h, 0.7, 0.5), "increasing across 0°")

	h = historyOf(10, 5, 0, 355)
	assert.Equal(t, entities.Clockwise, InferDirection(h, 0.7, 0.5), "decreasing across 0°")

	// five up, five down
	h = historyOf(0, 5, 10, 15, 20, 25, 20, 15, 10, 5, 0)
	assert.Equal(t, entities.Ambiguous, InferDirection(h, 0.7, 0.5))

	h = historyOf(40, 40.2, 40.1, 40.3)
	assert.Equal(t, entities.Ambiguous, InferDirection(h, 0.7, 0.5), "jitter below min delta")

	assert.Equal(t, entities.Ambiguous, InferDirection(NewAngleHistory(10), 0.7, 0.5))
}

func TestAngleHistoryRing(t *testing.T) {
	h := NewAngleHistory(3)
	for i := 0; i < 5; i++ {
		h.Record(float64(i*10), t0.Add(time.Duration(i)*time.Minute))
	}
	assert.Equal(t, 3, h.Len())
	pts := h.Points()
	assert.Equal(t, []float64{20, 30, 40}, []float64{pts[0].Angle, pts[1].Angle, pts[2].Angle})

	// a copy does not alias the original
	c := h
	c.Record(50, t0)
	assert.Equal(t, 20.0, h.Points()[0].Angle)
	assert.Equal(t, 30.0, c.Points()[0].Angle)
}

func TestCoverage(t *testing.T) {
	assert.InDelta(t, 20, coverage(350, 10, entities.Counterclockwise), 1e-9)
	assert.InDelta(t, 340, coverage(350, 10, entities.Clockwise), 1e-9)
	assert.InDelta(t, 30, coverage(40, 10, entities.Clockwise), 1e-9)
	assert.InDelta(t, 0, coverage(40, 40, entities.Clockwise), 1e-9)
}
