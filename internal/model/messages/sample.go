package messages

import "time"

// SampleMessage mirrors a persisted position sample on the bus for the time-series store.
type SampleMessage struct {
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	SectorID    string    `json:"sector_id,omitempty"`
	Status      string    `json:"status"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Speed       float64   `json:"speed"`
	Pressure    *float64  `json:"pressure,omitempty"`
	Bearing     *float64  `json:"bearing,omitempty"`
	DistanceM   *float64  `json:"distance_m,omitempty"`
	Irrigating  bool      `json:"irrigating"`
	Moving      bool      `json:"moving"`
	RotationSeq int       `json:"rotation_seq"`
	Timestamp   time.Time `json:"timestamp"`
}
