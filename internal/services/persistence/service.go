package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/rabbitmq"
)

const TopicPrefix = "pivot/sample/"

type InfluxConfig struct {
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	Measurement  string // default "pivot_position"
}

// PointWriter is satisfied by api.WriteAPIBlocking.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type Service struct {
	consumer    rabbitmq.IConsumer
	writer      PointWriter
	query       api.QueryAPI
	bucket      string
	measurement string

	mu     sync.RWMutex
	latest map[string]model.SampleMessage
}

func NewService(consumer rabbitmq.IConsumer, client influxdb2.Client, cfg InfluxConfig) (*Service, error) {
	if cfg.InfluxURL == "" || cfg.InfluxToken == "" || cfg.InfluxOrg == "" || cfg.InfluxBucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	s := newService(consumer, client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket), cfg.Measurement)
	s.query = client.QueryAPI(cfg.InfluxOrg)
	s.bucket = cfg.InfluxBucket
	return s, nil
}

func newService(consumer rabbitmq.IConsumer, w PointWriter, measurement string) *Service {
	if measurement == "" {
		measurement = "pivot_position"
	}
	return &Service{
		consumer:    consumer,
		writer:      w,
		measurement: sanitizeMeasurement(measurement),
		latest:      make(map[string]model.SampleMessage),
	}
}

// Start consumes until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.consumer.SetHandler(func(topic string, msg mqtt.Message) error {
		return s.handle(ctx, topic, msg.Payload())
	})
	s.consumer.ConsumeMessage(ctx)
}

func (s *Service) handle(ctx context.Context, topic string, payload []byte) error {
	var m model.SampleMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		log.Printf("persistence: invalid JSON on %s: %v", topic, err)
		return nil
	}
	if m.DeviceName == "" {
		m.DeviceName = strings.TrimPrefix(topic, TopicPrefix)
	}
	if m.DeviceName == "" || m.Timestamp.IsZero() {
		log.Printf("persistence: drop sample on %s: missing device or timestamp", topic)
		return nil
	}

	if err := s.writer.WritePoint(ctx, SampleToPoint(m, s.measurement)); err != nil {
		log.Printf("persistence: write error: %v", err)
		return err
	}
	s.remember(m)
	log.Printf("persistence: wrote %s device=%s sector=%s status=%s", s.measurement, m.DeviceName, m.SectorID, m.Status)
	return nil
}

func (s *Service) remember(m model.SampleMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.latest[m.DeviceName]; ok && !m.Timestamp.After(cur.Timestamp) {
		return
	}
	s.latest[m.DeviceName] = m
}

// LatestCache returns the newest sample seen per device since start.
func (s *Service) LatestCache() []model.SampleMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SampleMessage, 0, len(s.latest))
	for _, m := range s.latest {
		out = append(out, m)
	}
	return out
}

// SampleToPoint maps a persisted sample onto one InfluxDB point.
func SampleToPoint(m model.SampleMessage, measurement string) *write.Point {
	tags := map[string]string{
		"device": m.DeviceName,
		"status": m.Status,
	}
	if m.DeviceID != "" {
		tags["device_id"] = m.DeviceID
	}
	if m.SectorID != "" {
		tags["sector"] = m.SectorID
	}
	fields := map[string]interface{}{
		"lat":        m.Lat,
		"lon":        m.Lon,
		"speed":      m.Speed,
		"irrigating": m.Irrigating,
		"moving":     m.Moving,
		"rotation":   int64(m.RotationSeq),
	}
	if m.Pressure != nil {
		fields["pressure"] = *m.Pressure
	}
	if m.Bearing != nil {
		fields["bearing"] = *m.Bearing
	}
	if m.DistanceM != nil {
		fields["distance"] = *m.DistanceM
	}
	return influxdb2.NewPoint(measurement, tags, fields, m.Timestamp)
}

// QueryLatestFromInflux reads the last sample of every device in the window.
func (s *Service) QueryLatestFromInflux(ctx context.Context, minutes int) ([]model.SampleMessage, error) {
	if s.query == nil {
		return nil, fmt.Errorf("influx query not configured")
	}
	res, err := s.query.Query(ctx, latestFlux(s.bucket, s.measurement, minutes))
	if err != nil {
		return nil, fmt.Errorf("query latest samples: %w", err)
	}
	defer res.Close()

	var out []model.SampleMessage
	for res.Next() {
		rec := res.Record()
		m := model.SampleMessage{
			DeviceName: str(rec.ValueByKey("device")),
			DeviceID:   str(rec.ValueByKey("device_id")),
			SectorID:   str(rec.ValueByKey("sector")),
			Status:     str(rec.ValueByKey("status")),
			Lat:        num(rec.ValueByKey("lat")),
			Lon:        num(rec.ValueByKey("lon")),
			Speed:      num(rec.ValueByKey("speed")),
			Pressure:   optNum(rec.ValueByKey("pressure")),
			Bearing:    optNum(rec.ValueByKey("bearing")),
			DistanceM:  optNum(rec.ValueByKey("distance")),
			Timestamp:  rec.Time().UTC(),
		}
		m.Irrigating, _ = rec.ValueByKey("irrigating").(bool)
		m.Moving, _ = rec.ValueByKey("moving").(bool)
		m.RotationSeq = int(num(rec.ValueByKey("rotation")))
		out = append(out, m)
	}
	if err := res.Err(); err != nil {
		return out, fmt.Errorf("iterate latest samples: %w", err)
	}
	return out, nil
}

func latestFlux(bucket, measurement string, minutes int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q)
  |> last()
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
`, bucket, minutes, measurement)
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	}
	return 0
}

func optNum(v interface{}) *float64 {
	if v == nil {
		return nil
	}
	f := num(v)
	return &f
}

func sanitizeMeasurement(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == ':', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// staleAfter marks a cached sample as old in the HTTP answer.
const staleAfter = 30 * time.Minute
