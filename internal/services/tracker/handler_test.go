package tracker

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/pivot_tracker/pkg/dedup"
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

func TestDecodeTelemetry(t *testing.T) {
	rec, err := DecodeTelemetry("telemetry/pivot-south/position",
		[]byte(`{"timestamp":"2025-03-01T06:00:00Z","lat":-34.6,"lon":-58.4,"speed":0.2,"raw_pressure":40}`))
	require.NoError(t, err)
	assert.Equal(t, "pivot-south", rec.DeviceName, "falls back to the topic")
	assert.Equal(t, t0, rec.Timestamp)
	require.NotNil(t, rec.RawPressure)
	assert.Equal(t, 40.0, *rec.RawPressure)
	assert.Nil(t, rec.Ignition)

	rec, err = DecodeTelemetry("telemetry/other/position", []byte(`{"device_name":"pivot-north","timestamp":"2025-03-01T06:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "pivot-north", rec.DeviceName)

	rec, err = DecodeTelemetry("devices/x", []byte(`{"timestamp":"2025-03-01T06:00:00Z"}`))
	require.NoError(t, err)
	assert.Empty(t, rec.DeviceName)

	_, err = DecodeTelemetry("telemetry/x/position", []byte(`{"lat":`))
	assert.Error(t, err)
}

func newTestHandler(t *testing.T, st *memStore) (*MQTTHandler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	ing := newTestIngestor(t, st, nil)
	return NewMQTTHandler(ing, dedup.New(time.Minute, 100), time.Second, log.New(&buf, "", 0)), &buf
}

func telemetryMessage(t *testing.T, bearing float64, ts time.Time) fakeMessage {
	t.Helper()
	raw, err := json.Marshal(irrigatingAt(bearing, ts))
	require.NoError(t, err)
	return fakeMessage{topic: "telemetry/pivot-north/position", payload: raw}
}

func TestHandleIngestsAndDedups(t *testing.T) {
	st := newMemStore()
	st.addDevice(testDevice(), fiveThousandSquareMeters())
	h, buf := newTestHandler(t, st)

	msg := telemetryMessage(t, 10, t0)
	require.NoError(t, h.Handle(msg.topic, msg))
	require.NoError(t, h.Handle(msg.topic, msg))
	assert.Len(t, st.samples["dev-1"], 1)
	assert.Contains(t, buf.String(), "event=enter")
}

func TestHandleDropsPoisonMessages(t *testing.T) {
	st := newMemStore()
	st.addDevice(testDevice())
	h, buf := newTestHandler(t, st)

	assert.NoError(t, h.Handle("telemetry/pivot-north/position", fakeMessage{topic: "telemetry/pivot-north/position", payload: []byte("not json")}))
	assert.NoError(t, h.Handle("telemetry/pivot-north/position", fakeMessage{topic: "telemetry/pivot-north/position", payload: []byte(`{"lat":10}`)}))
	assert.Contains(t, buf.String(), "drop message")
	assert.Contains(t, buf.String(), "drop record")

	unknown := fakeMessage{topic: "telemetry/ghost/position", payload: []byte(`{"timestamp":"2025-03-01T06:00:00Z"}`)}
	assert.NoError(t, h.Handle(unknown.topic, unknown))
	assert.Contains(t, buf.String(), "ghost: device not found")
}

func TestHandleStoreErrorAllowsRedelivery(t *testing.T) {
	st := newMemStore()
	st.addDevice(testDevice(), fiveThousandSquareMeters())
	h, _ := newTestHandler(t, st)

	boom := errors.New("locked")
	st.fail["InsertPositionSample"] = boom
	msg := telemetryMessage(t, 10, t0)
	err := h.Handle(msg.topic, msg)
	require.ErrorIs(t, err, boom)

	require.NoError(t, h.Handle(msg.topic, msg))
	assert.Len(t, st.samples["dev-1"], 1)
}
