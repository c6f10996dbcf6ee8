package tracker

import "github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"

// Classify derives the machine state from the raw signals. Without an ignition
// flag the machine counts as on when it irrigates or moves.
func Classify(ignition *bool, pressure *float64, speed float64, cfg Config) entities.DeviceState {
	irrigating := pressure != nil && *pressure > cfg.IrrigationPressure
	moving := speed > cfg.MovementSpeed
	on := irrigating || moving
	if ignition != nil {
		on = *ignition
	}

	st := entities.DeviceState{On: on, Irrigating: irrigating, Moving: moving}
	switch {
	case !on:
		st.Status = entities.StatusOff
	case irrigating && moving:
		st.Status = entities.StatusIrrigatingMoving
	case irrigating:
		st.Status = entities.StatusIrrigatingStationary
	case moving:
		st.Status = entities.StatusMovingDry
	default:
		st.Status = entities.StatusStationary
	}
	return st
}
