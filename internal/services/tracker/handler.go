package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/dedup"
)

const TelemetryTopicPrefix = "telemetry/"

// MQTTHandler feeds telemetry deliveries into the Ingestor. QoS1 redeliveries of an
// identical payload are dropped before decoding.
type MQTTHandler struct {
	ingestor *Ingestor
	dedup    *dedup.Deduper
	timeout  time.Duration
	logger   *log.Logger
}

func NewMQTTHandler(ing *Ingestor, d *dedup.Deduper, timeout time.Duration, logger *log.Logger) *MQTTHandler {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MQTTHandler{ingestor: ing, dedup: d, timeout: timeout, logger: logger}
}

// Handle drops undecodable or invalid records after logging them, so a poisoned message
// cannot stall the stream. Store failures are returned and the payload is forgotten by
// the deduper so that a redelivery is processed again.
func (h *MQTTHandler) Handle(_ string, m mqtt.Message) error {
	key := dedup.Key(m.Payload())
	if h.dedup != nil && !h.dedup.ShouldProcess(key) {
		return nil
	}

	rec, err := DecodeTelemetry(m.Topic(), m.Payload())
	if err != nil {
		h.logger.Printf("tracker: drop message on %s: %v", m.Topic(), err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	res, err := h.ingestor.Ingest(ctx, rec)
	var verr *ValidationError
	if errors.As(err, &verr) {
		h.logger.Printf("tracker: drop record of %q: %v", rec.DeviceName, err)
		return nil
	}
	if err != nil {
		if h.dedup != nil {
			h.dedup.Forget(key)
		}
		return fmt.Errorf("ingest %s at %s: %w", rec.DeviceName, rec.Timestamp.Format(time.RFC3339), err)
	}

	if !res.Processed {
		h.logger.Printf("tracker: %s: %s", rec.DeviceName, res.Reason)
	}
	for _, ev := range res.Events {
		h.logger.Printf("tracker: device=%s event=%s sector=%s volume=%.0fL depth=%.2fmm",
			rec.DeviceName, ev.Kind, ev.SectorID, ev.VolumeL, ev.DepthMm)
	}
	return nil
}

// DecodeTelemetry reads a TelemetryRecord. The device name falls back to the topic
// segment of "telemetry/{device}/position" when the payload omits it.
func DecodeTelemetry(topic string, payload []byte) (model.TelemetryRecord, error) {
	var rec model.TelemetryRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return rec, fmt.Errorf("decode telemetry: %w", err)
	}
	if strings.TrimSpace(rec.DeviceName) == "" {
		parts := strings.Split(strings.TrimPrefix(topic, TelemetryTopicPrefix), "/")
		if strings.HasPrefix(topic, TelemetryTopicPrefix) && len(parts) >= 1 {
			rec.DeviceName = parts[0]
		}
	}
	return rec, nil
}
