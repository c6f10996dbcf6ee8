package tracker

import (
	"errors"
	"fmt"

	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

// ValidationError rejects a telemetry record before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid telemetry: %s %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown device or sector reference.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// GeometryError is a degenerate sector definition.
type GeometryError = geo.GeometryError

// ErrNoOpenRotation is returned by sector entry when the device has no open rotation.
var ErrNoOpenRotation = errors.New("no open rotation")

// ErrRotationConflict is returned by a Store when an insert lost the create race and the
// winning rotation could not be read back in the same call.
var ErrRotationConflict = errors.New("rotation create conflict")

// raceRecoveryError marks a lost create race whose winner could not be re-read.
// It is retried internally and never returned from Ingest.
type raceRecoveryError struct {
	deviceID string
}

func (e *raceRecoveryError) Error() string {
	return fmt.Sprintf("rotation create race for device %s: winner not visible yet", e.deviceID)
}
