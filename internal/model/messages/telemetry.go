package messages

import "time"

// TelemetryRecord is the normalized record the transport layer hands to the tracker,
// already decoded from the provider-specific payload.
type TelemetryRecord struct {
	DeviceName  string    `json:"device_name"`
	Timestamp   time.Time `json:"timestamp"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Altitude    float64   `json:"altitude"`
	Speed       float64   `json:"speed"` // km/h
	Course      float64   `json:"course"`
	RawPressure *float64  `json:"raw_pressure,omitempty"` // canale analogico grezzo
	Ignition    *bool     `json:"ignition,omitempty"`
	ExternalID  string    `json:"external_id,omitempty"`
}
