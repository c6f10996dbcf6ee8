package event

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestHandleDecodesIrrigationEvents(t *testing.T) {
	var got []CommonEvent
	h := NewMQTTHandler(func(e CommonEvent) { got = append(got, e) })

	msg := fakeMessage{
		topic: "event/irrigation/pivot-north/exit",
		payload: []byte(`{"event_id":"ev-1","device_id":"dev-1","sector_id":"s-a","rotation_seq":2,
			"volume_l":3000,"depth_mm":0.6,"duration_min":30,"timestamp":"2025-03-01T06:30:00Z"}`),
	}
	require.NoError(t, h.Handle(msg.topic, msg))
	require.Len(t, got, 1)

	e := got[0]
	assert.Equal(t, "irrigation.exit", e.EventType, "kind taken from the topic")
	assert.Equal(t, "pivot-north", e.DeviceName, "device taken from the topic")
	assert.Equal(t, "s-a", e.SectorID)
	assert.Equal(t, 2, e.RotationSeq)
	assert.Equal(t, 3000.0, e.Fields["volume_l"])
	assert.Equal(t, int64(2), e.Fields["rotation"])
	assert.Equal(t, time.Date(2025, 3, 1, 6, 30, 0, 0, time.UTC), e.Timestamp)
}

func TestHandleRejectsBadEvents(t *testing.T) {
	h := NewMQTTHandler(func(CommonEvent) { t.Fatal("sink must not be called") })

	for _, m := range []fakeMessage{
		{topic: "event/irrigation/pivot-north/exit", payload: []byte(`{`)},
		{topic: "event/irrigation/pivot-north/flood", payload: []byte(`{"timestamp":"2025-03-01T06:30:00Z"}`)},
		{topic: "event/irrigation/pivot-north/exit", payload: []byte(`{}`)},
	} {
		assert.Error(t, h.Handle(m.topic, m), m.topic)
	}
	assert.NoError(t, h.Handle("pivot/sample/x", fakeMessage{topic: "pivot/sample/x", payload: []byte(`{}`)}), "other topics are ignored")
}

func TestEventToPoint(t *testing.T) {
	ts := time.Date(2025, 3, 1, 6, 30, 0, 0, time.UTC)
	p := EventToPoint(CommonEvent{
		EventType:  "rotation.completed",
		DeviceID:   "dev-1",
		DeviceName: "pivot-north",
		Fields:     map[string]interface{}{"volume_l": 77000.0},
		Timestamp:  ts,
	})
	assert.Equal(t, Measurement, p.Name())
	assert.Equal(t, ts, p.Time())

	tags := map[string]string{}
	for _, tg := range p.TagList() {
		tags[tg.Key] = tg.Value
	}
	assert.Equal(t, map[string]string{"event_type": "rotation.completed", "device": "pivot-north", "device_id": "dev-1"}, tags)
	require.Len(t, p.FieldList(), 1)
	assert.Equal(t, "volume_l", p.FieldList()[0].Key)

	empty := EventToPoint(CommonEvent{EventType: "irrigation.enter", DeviceName: "pivot-north", Timestamp: ts})
	require.Len(t, empty.FieldList(), 1)
	assert.Equal(t, "count", empty.FieldList()[0].Key)
}

func TestBuildFlux(t *testing.T) {
	r := httptest.NewRequest("GET", "/events/irrigation/latest?device=pivot-north&kind=exit&limit=9999&minutes=60", nil)
	p := parseIrr(r, 1440, 20, 2000)
	assert.Equal(t, 500, p.Limit)
	assert.Equal(t, 60, p.Minutes)
	assert.Equal(t, "irrigation.exit", p.EventType)

	q := buildFlux("events", p)
	assert.Contains(t, q, `r.device == "pivot-north"`)
	assert.Contains(t, q, `r.event_type == "irrigation.exit"`)
	assert.Contains(t, q, `r._measurement == "irrigation_event"`)
	assert.Contains(t, q, "limit(n:500)")

	r = httptest.NewRequest("GET", `/events/irrigation/latest?device=x%22%29%20or%20true`, nil)
	p = parseIrr(r, 1440, 20, 2000)
	assert.Empty(t, p.Device, "unsafe names are ignored")
	assert.NotContains(t, buildFlux("events", p), "r.device")
}
