package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

// Completion is the outcome of a completion check on the open rotation.
type Completion struct {
	Completed    bool
	ProgressPct  float64
	CoveragePct  float64
	Direction    entities.Direction // effective direction, never ambiguous
	Elapsed      time.Duration
	SafetyReject bool // coverage reached but duration floor not
}

// RotationClose is what CompleteRotation produced.
type RotationClose struct {
	Closed entities.Rotation
	Next   entities.Rotation
	// Fresh is false when rot had already been closed by an earlier attempt.
	Fresh bool
	Event *entities.IrrigationEvent
}

// RotationTracker drives the lifecycle of the open 360° sweep of each device.
type RotationTracker struct {
	cfg     Config
	logger  *log.Logger
	metrics *Metrics
}

func NewRotationTracker(cfg Config, logger *log.Logger, m *Metrics) *RotationTracker {
	if logger == nil {
		logger = log.Default()
	}
	return &RotationTracker{cfg: cfg, logger: logger, metrics: m}
}

// EnsureRotation returns the open rotation of the device, creating it at angle/ts if
// none exists. The entry is updated with the result.
func (t *RotationTracker) EnsureRotation(ctx context.Context, st Store, e *deviceEntry, deviceID string, angle float64, ts time.Time) (entities.Rotation, bool, error) {
	if e.HasRotation && !e.Rotation.Completed {
		return e.Rotation, false, nil
	}

	rot, ok, err := st.OpenRotation(ctx, deviceID)
	if err != nil {
		return entities.Rotation{}, false, fmt.Errorf("load open rotation of %s: %w", deviceID, err)
	}
	if !ok {
		var created bool
		rot, created, err = t.createOrFetch(ctx, st, deviceID, angle, ts)
		var race *raceRecoveryError
		if errors.As(err, &race) {
			t.metrics.RotationRace()
			t.logger.Printf("rotation: %v, retrying", err)
			rot, created, err = t.createOrFetch(ctx, st, deviceID, angle, ts)
			if errors.As(err, &race) {
				err = fmt.Errorf("%w for device %s after retry", ErrRotationConflict, deviceID)
			}
		}
		if err != nil {
			return entities.Rotation{}, false, err
		}
		if !created {
			t.metrics.RotationRace()
		}
		e.Rotation, e.HasRotation = rot, true
		return rot, created, nil
	}

	e.Rotation, e.HasRotation = rot, true
	return rot, false, nil
}

func (t *RotationTracker) createOrFetch(ctx context.Context, st Store, deviceID string, angle float64, ts time.Time) (entities.Rotation, bool, error) {
	rot, created, err := st.CreateOrFetchRotation(ctx, deviceID, angle, ts)
	if errors.Is(err, ErrRotationConflict) {
		return entities.Rotation{}, false, &raceRecoveryError{deviceID: deviceID}
	}
	if err != nil {
		return entities.Rotation{}, false, fmt.Errorf("create rotation for %s: %w", deviceID, err)
	}
	return rot, created, nil
}

// CheckCompletion measures coverage since rot.StartAngle. An ambiguous direction falls
// back to the configured default. A step that carries the arm past the start angle
// between two fixes counts as a full sweep.
func (t *RotationTracker) CheckCompletion(rot entities.Rotation, dir entities.Direction, angle float64, ts time.Time) Completion {
	eff := t.effective(dir)
	cov := coverage(rot.StartAngle, angle, eff) / 360
	if cov < t.cfg.CompletionThreshold && wrapped(rot, eff, cov, t.effective(rot.Direction)) {
		cov = 1
	}
	c := Completion{
		ProgressPct: cov * 100,
		CoveragePct: cov * 100,
		Direction:   eff,
		Elapsed:     ts.Sub(rot.StartedAt),
	}
	if cov < t.cfg.CompletionThreshold {
		return c
	}
	if c.Elapsed >= t.cfg.MinRotationDuration {
		c.Completed = true
		c.ProgressPct = 100
		return c
	}

	c.SafetyReject = true
	c.ProgressPct = math.Min(c.ProgressPct, t.cfg.SafetyCapPercent)
	t.metrics.SafetyReject()
	t.logger.Printf("rotation: device=%s seq=%d coverage=%.1f%% after %s, below floor %s, not completing",
		rot.DeviceID, rot.Seq, c.CoveragePct, c.Elapsed.Round(time.Minute), t.cfg.MinRotationDuration)
	return c
}

// CompleteRotation closes rot with its aggregated totals and opens the successor at the
// same angle and time, in one transaction.
func (t *RotationTracker) CompleteRotation(ctx context.Context, st Store, rot entities.Rotation, endAngle float64, endTs time.Time) (RotationClose, error) {
	var out RotationClose
	err := st.Atomic(ctx, func(tx Store) error {
		totals, err := tx.RecomputeRotationTotals(ctx, rot.ID)
		if err != nil {
			return fmt.Errorf("recompute totals of rotation %s: %w", rot.ID, err)
		}
		closed, err := tx.CloseRotation(ctx, rot.ID, endAngle, endTs)
		if err != nil {
			return fmt.Errorf("close rotation %s: %w", rot.ID, err)
		}

		out.Closed = rot
		out.Closed.Completed = true
		out.Closed.EndedAt = &endTs
		out.Closed.EndAngle = &endAngle
		out.Closed.ProgressPct = 100
		out.Closed.DurationMin = endTs.Sub(rot.StartedAt).Minutes()
		out.Closed.Totals = totals
		out.Fresh = closed

		if !closed {
			next, ok, err := tx.OpenRotation(ctx, rot.DeviceID)
			if err != nil {
				return fmt.Errorf("load successor of rotation %s: %w", rot.ID, err)
			}
			if ok {
				out.Next = next
				return nil
			}
		}

		next, _, err := tx.CreateOrFetchRotation(ctx, rot.DeviceID, endAngle, endTs)
		if err != nil {
			return fmt.Errorf("create successor of rotation %s: %w", rot.ID, err)
		}
		out.Next = next

		if closed {
			ev := entities.IrrigationEvent{
				ID:          uuid.NewString(),
				DeviceID:    rot.DeviceID,
				RotationID:  rot.ID,
				Kind:        entities.EventRotationCompleted,
				Timestamp:   endTs,
				VolumeL:     totals.VolumeL,
				DepthMm:     totals.DepthMm,
				DurationMin: out.Closed.DurationMin,
			}
			if err := tx.AppendIrrigationEvent(ctx, ev); err != nil {
				return fmt.Errorf("append rotation event: %w", err)
			}
			out.Event = &ev
		}
		return nil
	})
	if err != nil {
		return RotationClose{}, err
	}
	if out.Fresh {
		t.metrics.RotationCompleted()
		t.logger.Printf("rotation: device=%s seq=%d completed in %.0f min, %.0f L, next seq=%d",
			rot.DeviceID, rot.Seq, out.Closed.DurationMin, out.Closed.Totals.VolumeL, out.Next.Seq)
	}
	return out, nil
}

// UpdateProgress persists the latest estimate; it may go down between samples.
func (t *RotationTracker) UpdateProgress(ctx context.Context, st Store, rot *entities.Rotation, percent float64, dir entities.Direction) error {
	if err := st.UpdateRotationProgress(ctx, rot.ID, percent, dir); err != nil {
		return fmt.Errorf("update progress of rotation %s: %w", rot.ID, err)
	}
	rot.ProgressPct = percent
	rot.Direction = dir
	return nil
}

// wrapped reports whether coverage fell by more than half a lap since the last stored
// progress without a change of direction, which only a forward pass over the start explains.
func wrapped(rot entities.Rotation, eff entities.Direction, cov float64, prevDir entities.Direction) bool {
	prev := rot.ProgressPct / 100
	return prevDir == eff && prev >= 0.5 && cov < prev-0.5
}

func (t *RotationTracker) effective(dir entities.Direction) entities.Direction {
	if dir == entities.Clockwise || dir == entities.Counterclockwise {
		return dir
	}
	return t.cfg.DefaultDirection
}
