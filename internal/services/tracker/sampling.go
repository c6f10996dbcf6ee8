package tracker

import (
	"time"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

// GateDecision explains why a sample was or was not persisted.
type GateDecision struct {
	Persist  bool
	Reason   string
	Elapsed  time.Duration
	Interval time.Duration
}

// SamplingGate bounds storage volume without ever missing a state transition.
type SamplingGate struct {
	short time.Duration
	long  time.Duration
}

func NewSamplingGate(cfg Config) SamplingGate {
	return SamplingGate{short: cfg.ShortInterval, long: cfg.LongInterval}
}

// ShouldPersist compares next against the last persisted sample of the device.
func (g SamplingGate) ShouldPersist(last *entities.PositionSample, next entities.PositionSample) GateDecision {
	if last == nil {
		return GateDecision{Persist: true, Reason: "first sample"}
	}
	elapsed := next.Timestamp.Sub(last.Timestamp)
	if !last.State.SameFlags(next.State) {
		return GateDecision{Persist: true, Reason: "state changed", Elapsed: elapsed}
	}

	interval := g.long
	if next.State.Irrigating || next.State.Moving {
		interval = g.short
	}
	if elapsed >= interval {
		return GateDecision{Persist: true, Reason: "interval elapsed", Elapsed: elapsed, Interval: interval}
	}
	return GateDecision{Persist: false, Reason: "within sampling interval", Elapsed: elapsed, Interval: interval}
}
