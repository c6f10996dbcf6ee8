package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model"
)

const TopicPrefix = "event/irrigation/"

// CommonEvent is the storage-neutral form of a tracker notification.
type CommonEvent struct {
	EventType   string // irrigation.enter | irrigation.exit | rotation.completed
	EventID     string
	DeviceID    string
	DeviceName  string
	SectorID    string
	RotationSeq int
	Fields      map[string]interface{}
	Timestamp   time.Time
}

var eventTypes = map[string]string{
	"enter":              "irrigation.enter",
	"exit":               "irrigation.exit",
	"rotation_completed": "rotation.completed",
}

// MQTTHandler turns MQTT deliveries into CommonEvents and hands them to sink.
type MQTTHandler struct{ sink func(CommonEvent) }

func NewMQTTHandler(sink func(CommonEvent)) *MQTTHandler { return &MQTTHandler{sink: sink} }

func (h *MQTTHandler) Handle(_ string, m mqtt.Message) error {
	topic := m.Topic()
	if !strings.HasPrefix(topic, TopicPrefix) {
		return nil
	}
	evt, err := decodeIrrigation(topic, m.Payload())
	if err != nil {
		return err
	}
	if h.sink != nil {
		h.sink(evt)
	}
	return nil
}

func decodeIrrigation(topic string, payload []byte) (CommonEvent, error) {
	var e model.IrrigationEventMessage
	if err := json.Unmarshal(payload, &e); err != nil {
		return CommonEvent{}, fmt.Errorf("irrigation event: %w", err)
	}
	device, kind := pickIDs(topic, e.DeviceName, e.Kind)
	if device == "" {
		return CommonEvent{}, fmt.Errorf("irrigation event on %s: missing device", topic)
	}
	eventType, ok := eventTypes[kind]
	if !ok {
		return CommonEvent{}, fmt.Errorf("irrigation event on %s: unknown kind %q", topic, kind)
	}
	if e.Timestamp.IsZero() {
		return CommonEvent{}, fmt.Errorf("irrigation event on %s: missing timestamp", topic)
	}

	fields := map[string]interface{}{
		"volume_l":     e.VolumeL,
		"depth_mm":     e.DepthMm,
		"duration_min": e.DurationMin,
		"rotation":     int64(e.RotationSeq),
	}
	if e.EventID != "" {
		fields["event_id"] = e.EventID
	}
	return CommonEvent{
		EventType:   eventType,
		EventID:     e.EventID,
		DeviceID:    e.DeviceID,
		DeviceName:  device,
		SectorID:    e.SectorID,
		RotationSeq: e.RotationSeq,
		Fields:      fields,
		Timestamp:   e.Timestamp,
	}, nil
}

// pickIDs prefers the payload, then the topic "event/irrigation/{device}/{kind}".
func pickIDs(topic, device, kind string) (string, string) {
	parts := strings.Split(strings.TrimPrefix(topic, TopicPrefix), "/")
	if strings.TrimSpace(device) == "" && len(parts) >= 1 {
		device = parts[0]
	}
	if strings.TrimSpace(kind) == "" && len(parts) >= 2 {
		kind = parts[1]
	}
	return strings.TrimSpace(device), strings.TrimSpace(kind)
}
