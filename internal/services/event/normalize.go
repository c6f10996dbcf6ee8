package event

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const Measurement = "irrigation_event"

// EventToPoint maps a CommonEvent onto one InfluxDB point.
func EventToPoint(evt CommonEvent) *write.Point {
	tags := map[string]string{
		"event_type": evt.EventType,
		"device":     evt.DeviceName,
	}
	if evt.DeviceID != "" {
		tags["device_id"] = evt.DeviceID
	}
	if evt.SectorID != "" {
		tags["sector_id"] = evt.SectorID
	}

	fields := map[string]interface{}{}
	for k, v := range evt.Fields {
		fields[k] = v
	}
	if len(fields) == 0 {
		fields["count"] = int64(1)
	}

	return influxdb2.NewPoint(Measurement, tags, fields, evt.Timestamp)
}
