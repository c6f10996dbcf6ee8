package pivot_simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/dedup"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/rabbitmq"
)

const CommandTopicPrefix = "pivot/command/"

// Command changes the machine state, optionally for a limited time.
type Command struct {
	Device   string        `json:"device"`
	Action   string        `json:"action"` // "stop" | "start" | "dry" | "wet" | "reverse"
	Duration time.Duration `json:"duration"`
}

type PivotSimulator struct {
	mu        sync.Mutex
	timer     *time.Timer
	generator *Generator
	publisher rabbitmq.IPublisher
	consumer  rabbitmq.IConsumer
	deduper   *dedup.Deduper
	name      string
	now       func() time.Time
}

func NewPivotSimulator(consumer rabbitmq.IConsumer, publisher rabbitmq.IPublisher, gen *Generator) *PivotSimulator {
	return &PivotSimulator{
		generator: gen,
		publisher: publisher,
		consumer:  consumer,
		deduper:   dedup.New(2*time.Minute, 10000),
		name:      gen.spec.Name,
		now:       time.Now,
	}
}

func TelemetryTopic(device string) string { return "telemetry/" + device + "/position" }

// Start publishes one record every interval and applies commands until ctx is done.
func (s *PivotSimulator) Start(ctx context.Context, interval time.Duration) {
	if s.consumer != nil {
		s.consumer.SetHandler(s.handleMessage)
		go s.consumer.ConsumeMessage(ctx)
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.publisher.Close()
			return
		case <-t.C:
			if err := s.PublishOnce(); err != nil {
				log.Printf("pivot-sim: publish error: %v", err)
			}
		}
	}
}

func (s *PivotSimulator) PublishOnce() error {
	rec := s.generator.Next(s.now())
	log.Printf("pivot-sim: %s lat=%.6f lon=%.6f angle=%.1f", rec.DeviceName, rec.Lat, rec.Lon, s.generator.Angle())
	return s.publisher.Publish(TelemetryTopic(rec.DeviceName), rec)
}

func (s *PivotSimulator) handleMessage(topic string, msg mqtt.Message) error {
	if s.deduper != nil && !s.deduper.ShouldProcess(dedup.Key(msg.Payload())) {
		return nil
	}
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		return fmt.Errorf("invalid pivot command: %w", err)
	}
	if cmd.Device == "" {
		cmd.Device = strings.TrimPrefix(topic, CommandTopicPrefix)
	}
	if cmd.Device != s.name {
		return nil
	}
	return s.apply(cmd)
}

func (s *PivotSimulator) apply(cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	running, water, dir := s.generator.state()
	prevRunning, prevWater, prevDir := running, water, dir

	switch cmd.Action {
	case "stop":
		running = false
	case "start":
		running = true
	case "dry":
		water = false
	case "wet":
		water = true
	case "reverse":
		if dir == entities.Clockwise {
			dir = entities.Counterclockwise
		} else {
			dir = entities.Clockwise
		}
	default:
		return fmt.Errorf("unknown pivot action %q", cmd.Action)
	}

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generator.set(running, water, dir)
	log.Printf("pivot-sim: %s -> %s for %s", s.name, cmd.Action, cmd.Duration)

	if cmd.Duration > 0 {
		s.timer = time.AfterFunc(cmd.Duration, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.generator.set(prevRunning, prevWater, prevDir)
			log.Printf("pivot-sim: %s reverted after %s", s.name, cmd.Action)
			s.timer = nil
		})
	}
	return nil
}
