package pivot_simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model"
	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

var (
	t0     = time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	center = geo.Point{Lat: -34.6037, Lon: -58.3816}
)

func spec() PivotSpec {
	return PivotSpec{
		Name:          "pivot-north",
		Center:        center,
		RadiusM:       250,
		RotationHours: 24,
		StartDeg:      10,
		RawPressure:   40,
	}
}

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

type fakePublisher struct {
	topics  []string
	records []model.TelemetryRecord
}

func (p *fakePublisher) Publish(topic string, payload any) error {
	p.topics = append(p.topics, topic)
	p.records = append(p.records, payload.(model.TelemetryRecord))
	return nil
}
func (p *fakePublisher) Close() {}

func TestGeneratorAdvancesCounterclockwise(t *testing.T) {
	g := NewGenerator(spec(), 1)

	rec := g.Next(t0)
	assert.InDelta(t, 10, g.Angle(), 1e-9)
	assert.InDelta(t, 10, geo.Bearing(center, geo.Point{Lat: rec.Lat, Lon: rec.Lon}), 1e-6)
	assert.InDelta(t, 250, geo.HaversineMeters(center, geo.Point{Lat: rec.Lat, Lon: rec.Lon}), 0.01)

	g.Next(t0.Add(time.Hour))
	assert.InDelta(t, 25, g.Angle(), 1e-9)
}

func TestGeneratorClockwiseWrapsZero(t *testing.T) {
	s := spec()
	s.Direction = entities.Clockwise
	g := NewGenerator(s, 1)
	g.Next(t0)
	g.Next(t0.Add(time.Hour))
	assert.InDelta(t, 355, g.Angle(), 1e-9)
}

func TestGeneratorPressureAndSpeed(t *testing.T) {
	g := NewGenerator(spec(), 1)
	rec := g.Next(t0)
	require.NotNil(t, rec.RawPressure)
	assert.Equal(t, 40.0, *rec.RawPressure)
	assert.Greater(t, rec.Speed, 0.0)

	g.set(false, false, entities.Counterclockwise)
	rec = g.Next(t0.Add(time.Hour))
	assert.Equal(t, 0.0, *rec.RawPressure)
	assert.Equal(t, 0.0, rec.Speed)
	assert.InDelta(t, 10, g.Angle(), 1e-9, "stopped arm does not move")
}

func TestPublishOnceUsesTelemetryTopic(t *testing.T) {
	pub := &fakePublisher{}
	sim := NewPivotSimulator(nil, pub, NewGenerator(spec(), 1))
	sim.now = func() time.Time { return t0 }

	require.NoError(t, sim.PublishOnce())
	assert.Equal(t, []string{"telemetry/pivot-north/position"}, pub.topics)
	assert.Equal(t, "pivot-north", pub.records[0].DeviceName)
	assert.Equal(t, t0, pub.records[0].Timestamp)
}

func TestCommands(t *testing.T) {
	g := NewGenerator(spec(), 1)
	sim := NewPivotSimulator(nil, &fakePublisher{}, g)

	require.NoError(t, sim.handleMessage("pivot/command/pivot-north", fakeMessage{topic: "pivot/command/pivot-north", payload: []byte(`{"action":"stop"}`)}))
	running, _, _ := g.state()
	assert.False(t, running)

	// other devices are ignored
	require.NoError(t, sim.handleMessage("pivot/command/pivot-south", fakeMessage{topic: "pivot/command/pivot-south", payload: []byte(`{"action":"start"}`)}))
	running, _, _ = g.state()
	assert.False(t, running)

	require.NoError(t, sim.handleMessage("pivot/command/pivot-north", fakeMessage{topic: "pivot/command/pivot-north", payload: []byte(`{"action":"reverse"}`)}))
	_, _, dir := g.state()
	assert.Equal(t, entities.Clockwise, dir)

	assert.Error(t, sim.handleMessage("pivot/command/pivot-north", fakeMessage{topic: "pivot/command/pivot-north", payload: []byte(`{"action":"fly"}`)}))
	assert.Error(t, sim.handleMessage("pivot/command/pivot-north", fakeMessage{topic: "pivot/command/pivot-north", payload: []byte(`{bad`)}))
}

func TestTimedCommandReverts(t *testing.T) {
	g := NewGenerator(spec(), 1)
	sim := NewPivotSimulator(nil, &fakePublisher{}, g)

	require.NoError(t, sim.apply(Command{Device: "pivot-north", Action: "dry", Duration: 20 * time.Millisecond}))
	_, water, _ := g.state()
	assert.False(t, water)

	assert.Eventually(t, func() bool {
		_, water, _ := g.state()
		return water
	}, time.Second, 5*time.Millisecond)
}
