package entities

// Status is the textual machine status derived from the raw signals.
type Status string

const (
	StatusOff                  Status = "off"
	StatusIrrigatingMoving     Status = "irrigating_moving"
	StatusIrrigatingStationary Status = "irrigating_stationary"
	StatusMovingDry            Status = "moving_dry"
	StatusStationary           Status = "stationary"
)

// DeviceState is the classified state of one telemetry sample.
type DeviceState struct {
	On         bool   `json:"on"`
	Irrigating bool   `json:"irrigating"`
	Moving     bool   `json:"moving"`
	Status     Status `json:"status"`
}

// SameFlags compares the three flags, ignoring the status text.
func (s DeviceState) SameFlags(o DeviceState) bool {
	return s.On == o.On && s.Irrigating == o.Irrigating && s.Moving == o.Moving
}

// Direction is the inferred sweep direction of the pivot.
type Direction string

const (
	Clockwise        Direction = "clockwise"
	Counterclockwise Direction = "counterclockwise"
	Ambiguous        Direction = "ambiguous"
)
