package tracker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model"
	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/rabbitmq"
)

// Notifier is told about committed results. Failures never undo an ingest.
type Notifier interface {
	SamplePersisted(ctx context.Context, device entities.Device, s entities.PositionSample) error
	IrrigationEvent(ctx context.Context, device entities.Device, rotationSeq int, ev entities.IrrigationEvent) error
}

const (
	SampleTopicPrefix = "pivot/sample/"
	EventTopicPrefix  = "event/irrigation/"
)

// BreakerSettings tunes the circuit breaker in front of the bus.
type BreakerSettings struct {
	Fails    int
	Open     time.Duration
	Interval time.Duration
}

// BusNotifier publishes samples and irrigation events on the MQTT bus behind a
// circuit breaker, so a stalled broker costs one fast failure per publish.
type BusNotifier struct {
	pub    rabbitmq.IPublisher
	cb     *gobreaker.CircuitBreaker
	logger *log.Logger
}

var _ Notifier = (*BusNotifier)(nil)

func NewBusNotifier(pub rabbitmq.IPublisher, bs BreakerSettings, logger *log.Logger) *BusNotifier {
	if logger == nil {
		logger = log.Default()
	}
	if bs.Fails <= 0 {
		bs.Fails = 5
	}
	if bs.Open <= 0 {
		bs.Open = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "tracker-bus",
		Interval: bs.Interval,
		Timeout:  bs.Open,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(bs.Fails)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("notifier: breaker %s %s -> %s", name, from, to)
		},
	})
	return &BusNotifier{pub: pub, cb: cb, logger: logger}
}

func (n *BusNotifier) SamplePersisted(_ context.Context, device entities.Device, s entities.PositionSample) error {
	msg := model.SampleMessage{
		DeviceID:    device.ID,
		DeviceName:  device.Name,
		SectorID:    s.SectorID,
		Status:      string(s.State.Status),
		Lat:         s.Lat,
		Lon:         s.Lon,
		Speed:       s.Speed,
		Pressure:    s.Pressure,
		Bearing:     s.Bearing,
		DistanceM:   s.DistanceM,
		Irrigating:  s.State.Irrigating,
		Moving:      s.State.Moving,
		RotationSeq: s.RotationSeq,
		Timestamp:   s.Timestamp,
	}
	return n.publish(SampleTopicPrefix+device.Name, msg)
}

func (n *BusNotifier) IrrigationEvent(_ context.Context, device entities.Device, rotationSeq int, ev entities.IrrigationEvent) error {
	msg := model.IrrigationEventMessage{
		EventID:     ev.ID,
		Kind:        string(ev.Kind),
		DeviceID:    device.ID,
		DeviceName:  device.Name,
		SectorID:    ev.SectorID,
		RotationID:  ev.RotationID,
		RotationSeq: rotationSeq,
		VolumeL:     ev.VolumeL,
		DepthMm:     ev.DepthMm,
		DurationMin: ev.DurationMin,
		Timestamp:   ev.Timestamp,
	}
	return n.publish(fmt.Sprintf("%s%s/%s", EventTopicPrefix, device.Name, ev.Kind), msg)
}

func (n *BusNotifier) publish(topic string, payload any) error {
	_, err := n.cb.Execute(func() (any, error) {
		return nil, n.pub.Publish(topic, payload)
	})
	return err
}

func (n *BusNotifier) State() gobreaker.State { return n.cb.State() }
