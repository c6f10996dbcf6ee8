package tracker

import (
	"math"
	"time"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

const maxHistory = 32

type AnglePoint struct {
	Angle float64
	At    time.Time
}

// AngleHistory is a fixed-size ring of recent bearings. It is a value type so a
// cache entry can be copied and discarded without aliasing.
type AngleHistory struct {
	pts  [maxHistory]AnglePoint
	size int
	head int
	n    int
}

func NewAngleHistory(size int) AngleHistory {
	if size <= 0 || size > maxHistory {
		size = maxHistory
	}
	return AngleHistory{size: size}
}

// Record appends a point, silently dropping the oldest once full.
func (h *AngleHistory) Record(angle float64, at time.Time) {
	if h.size == 0 {
		h.size = maxHistory
	}
	h.pts[(h.head+h.n)%h.size] = AnglePoint{Angle: angle, At: at}
	if h.n < h.size {
		h.n++
	} else {
		h.head = (h.head + 1) % h.size
	}
}

func (h AngleHistory) Len() int { return h.n }

// Points returns the history oldest first.
func (h AngleHistory) Points() []AnglePoint {
	out := make([]AnglePoint, 0, h.n)
	for i := 0; i < h.n; i++ {
		out = append(out, h.pts[(h.head+i)%h.size])
	}
	return out
}

// InferDirection classifies the sweep from signed pairwise deltas. Decreasing
// bearings are reported as clockwise.
func InferDirection(h AngleHistory, agreement, minDelta float64) entities.Direction {
	return inferFromPoints(h.Points(), agreement, minDelta)
}

func inferFromPoints(pts []AnglePoint, agreement, minDelta float64) entities.Direction {
	var pos, neg int
	for i := 1; i < len(pts); i++ {
		d := geo.SignedDelta(pts[i-1].Angle, pts[i].Angle)
		if math.Abs(d) <= minDelta {
			continue
		}
		if d > 0 {
			pos++
		} else {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return entities.Ambiguous
	}
	switch {
	case float64(neg)/float64(total) >= agreement:
		return entities.Clockwise
	case float64(pos)/float64(total) >= agreement:
		return entities.Counterclockwise
	}
	return entities.Ambiguous
}

// coverage is how far the device has swept from start towards current, in [0,360).
func coverage(start, current float64, dir entities.Direction) float64 {
	if dir == entities.Clockwise {
		return geo.Normalize(start - current)
	}
	return geo.Normalize(current - start)
}
