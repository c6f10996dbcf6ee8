package tracker

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model"
	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

// Reasons of an IngestResult that was not saved.
const (
	ReasonDeviceNotFound = "device not found"
	ReasonDuplicate      = "duplicate or out-of-order"
)

// IngestResult is the structured answer of Ingest. It is returned for every expected
// outcome, including unknown devices and gated samples.
type IngestResult struct {
	Processed         bool                       `json:"processed"`
	Saved             bool                       `json:"saved"`
	Reason            string                     `json:"reason,omitempty"`
	Elapsed           time.Duration              `json:"elapsed,omitempty"`
	DeviceID          string                     `json:"device_id,omitempty"`
	Sector            string                     `json:"sector,omitempty"`
	State             entities.DeviceState       `json:"state"`
	Pressure          *float64                   `json:"pressure,omitempty"`
	Bearing           *float64                   `json:"bearing,omitempty"`
	DistanceM         *float64                   `json:"distance_m,omitempty"`
	RotationNumber    int                        `json:"rotation_number,omitempty"`
	RotationProgress  float64                    `json:"rotation_progress,omitempty"`
	RotationCompleted bool                       `json:"rotation_completed,omitempty"`
	Events            []entities.IrrigationEvent `json:"events,omitempty"`

	sample entities.PositionSample
}

// Options are the optional collaborators of an Ingestor.
type Options struct {
	Logger   *log.Logger
	Metrics  *Metrics
	Notifier Notifier
	Cache    *DeviceCache
}

// Ingestor turns normalized telemetry into samples, rotations and sector visits.
type Ingestor struct {
	cfg       Config
	store     Store
	cache     *DeviceCache
	gate      SamplingGate
	locator   *SectorLocator
	rotations *RotationTracker
	sectors   *SectorEventTracker
	notifier  Notifier
	metrics   *Metrics
	logger    *log.Logger
}

func NewIngestor(st Store, cfg Config, opts Options) (*Ingestor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tracker config: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Cache == nil {
		opts.Cache = NewDeviceCache()
	}
	return &Ingestor{
		cfg:       cfg,
		store:     st,
		cache:     opts.Cache,
		gate:      NewSamplingGate(cfg),
		locator:   NewSectorLocator(opts.Logger),
		rotations: NewRotationTracker(cfg, opts.Logger, opts.Metrics),
		sectors:   NewSectorEventTracker(cfg, opts.Logger, opts.Metrics),
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}, nil
}

func (i *Ingestor) Cache() *DeviceCache { return i.cache }

// Ingest processes one telemetry record. Durable writes of a call happen in a single
// transaction and the device cache is only updated after it commits, so a failed call
// can be retried as is.
func (i *Ingestor) Ingest(ctx context.Context, rec model.TelemetryRecord) (IngestResult, error) {
	start := time.Now()
	outcome := "error"
	defer func() { i.metrics.Ingest(outcome, time.Since(start)) }()

	if err := validateRecord(rec); err != nil {
		outcome = "invalid"
		return IngestResult{Reason: err.Error()}, err
	}

	dev, ok, err := i.store.ActiveDevice(ctx, rec.DeviceName)
	if err != nil {
		return IngestResult{}, fmt.Errorf("lookup device %q: %w", rec.DeviceName, err)
	}
	if !ok {
		outcome = "unknown_device"
		return IngestResult{Processed: false, Reason: ReasonDeviceNotFound}, nil
	}

	unlock := i.cache.Lock(dev.ID)
	defer unlock()

	cached, hit := i.cache.get(dev.ID)
	var (
		entry deviceEntry
		res   IngestResult
	)
	err = i.store.Atomic(ctx, func(tx Store) error {
		entry = cached
		if !hit {
			loaded, err := i.coldStart(ctx, tx, dev.ID)
			if err != nil {
				return err
			}
			entry = loaded
		}
		var err error
		res, err = i.process(ctx, tx, dev, &entry, rec)
		return err
	})
	if err != nil {
		return IngestResult{DeviceID: dev.ID}, err
	}
	i.cache.put(dev.ID, entry)

	switch {
	case res.Saved:
		outcome = "saved"
	case res.Reason == ReasonDuplicate:
		outcome = "duplicate"
	default:
		outcome = "gated"
	}
	i.notify(ctx, dev, res)
	return res, nil
}

func (i *Ingestor) coldStart(ctx context.Context, st Store, deviceID string) (deviceEntry, error) {
	e := deviceEntry{Loaded: true, History: NewAngleHistory(i.cfg.HistorySize)}
	last, ok, err := st.LastPositionSample(ctx, deviceID)
	if err != nil {
		return e, fmt.Errorf("load last sample of %s: %w", deviceID, err)
	}
	if ok {
		e.HasSample, e.LastSample, e.LastSeen = true, last, last.Timestamp
	}
	rot, ok, err := st.OpenRotation(ctx, deviceID)
	if err != nil {
		return e, fmt.Errorf("load open rotation of %s: %w", deviceID, err)
	}
	if ok {
		e.HasRotation, e.Rotation, e.Direction = true, rot, rot.Direction
	}
	return e, nil
}

func (i *Ingestor) process(ctx context.Context, tx Store, dev entities.Device, e *deviceEntry, rec model.TelemetryRecord) (IngestResult, error) {
	ts := rec.Timestamp.UTC()
	res := IngestResult{Processed: true, DeviceID: dev.ID}
	if !e.LastSeen.IsZero() && !ts.After(e.LastSeen) {
		res.Reason = ReasonDuplicate
		return res, nil
	}

	var pressure *float64
	if p, ok := geo.PressureFromRaw(rec.RawPressure, i.cfg.PressureCurve); ok {
		pressure = &p
	}
	state := Classify(rec.Ignition, pressure, rec.Speed, i.cfg)
	res.State, res.Pressure = state, pressure

	sample := entities.PositionSample{
		DeviceID:   dev.ID,
		Timestamp:  ts,
		Lat:        rec.Lat,
		Lon:        rec.Lon,
		Altitude:   rec.Altitude,
		Speed:      rec.Speed,
		Course:     rec.Course,
		Pressure:   pressure,
		State:      state,
		ExternalID: rec.ExternalID,
	}

	var (
		sector   entities.Sector
		inSector bool
		bearing  float64
	)
	if dev.HasCenter() {
		p := geo.Point{Lat: rec.Lat, Lon: rec.Lon}
		bearing = geo.Bearing(dev.Center(), p)
		dist := geo.HaversineMeters(dev.Center(), p)
		sample.Bearing, sample.DistanceM = &bearing, &dist
		res.Bearing, res.DistanceM = &bearing, &dist

		var err error
		sector, inSector, err = i.locator.Locate(ctx, tx, dev, p)
		if err != nil {
			return res, err
		}
		if inSector {
			sample.SectorID, sample.WithinSector = sector.ID, true
			res.Sector = sector.ID
		}
	}

	if state.Irrigating && dev.HasCenter() {
		if err := i.trackRotation(ctx, tx, dev, e, bearing, ts, &res); err != nil {
			return res, err
		}
	}
	if e.HasRotation {
		sample.RotationSeq = e.Rotation.Seq
		res.RotationNumber, res.RotationProgress = e.Rotation.Seq, e.Rotation.ProgressPct
	}

	var last *entities.PositionSample
	if e.HasSample {
		l := e.LastSample
		last = &l
	}
	dec := i.gate.ShouldPersist(last, sample)
	res.Reason, res.Elapsed = dec.Reason, dec.Elapsed
	e.LastSeen = ts
	if !dec.Persist {
		return res, nil
	}

	inserted, err := tx.InsertPositionSample(ctx, sample)
	if err != nil {
		return res, fmt.Errorf("insert sample of %s at %s: %w", dev.Name, ts.Format(time.RFC3339), err)
	}
	if !inserted {
		res.Reason = ReasonDuplicate
		return res, nil
	}
	res.Saved, res.sample = true, sample

	if err := i.trackSectors(ctx, tx, dev, e, last, sample, sector, inSector, bearing, &res); err != nil {
		return res, err
	}
	e.HasSample, e.LastSample = true, sample
	return res, nil
}

func (i *Ingestor) trackRotation(ctx context.Context, tx Store, dev entities.Device, e *deviceEntry, bearing float64, ts time.Time, res *IngestResult) error {
	rot, created, err := i.rotations.EnsureRotation(ctx, tx, e, dev.ID, bearing, ts)
	if err != nil {
		return err
	}
	if created {
		i.logger.Printf("tracker: device=%s rotation seq=%d opened at %.1f°", dev.Name, rot.Seq, bearing)
	}

	if e.History.size == 0 {
		e.History = NewAngleHistory(i.cfg.HistorySize)
	}
	e.History.Record(bearing, ts)
	dir := InferDirection(e.History, i.cfg.DirectionAgreement, i.cfg.MinAngleDelta)
	if dir == entities.Ambiguous && (e.Direction == entities.Clockwise || e.Direction == entities.Counterclockwise) {
		// too few fixes since a restart or a pause; keep the last known sweep
		dir = e.Direction
	}
	e.Direction = dir

	c := i.rotations.CheckCompletion(rot, dir, bearing, ts)
	if !c.Completed {
		return i.rotations.UpdateProgress(ctx, tx, &e.Rotation, c.ProgressPct, dir)
	}

	// a visit still open at the boundary is split between the two rotations
	var carried *entities.Sector
	if e.HasSample && e.LastSample.SectorID != "" && e.LastSample.State.Irrigating {
		s, ok, err := i.sectorByID(ctx, tx, dev, e.LastSample.SectorID)
		if err != nil {
			return err
		}
		if ok {
			split, err := i.sectors.CloseAtBoundary(ctx, tx, dev, rot, s, ts)
			if err != nil {
				return err
			}
			if split {
				carried = &s
			}
		}
	}

	rc, err := i.rotations.CompleteRotation(ctx, tx, rot, bearing, ts)
	if err != nil {
		return err
	}
	if carried != nil {
		if _, err := i.sectors.ReopenAtBoundary(ctx, tx, rc.Next, *carried, bearing, ts); err != nil {
			return err
		}
	}
	e.Rotation, e.HasRotation = rc.Next, true
	res.RotationCompleted = rc.Fresh
	if rc.Event != nil {
		res.Events = append(res.Events, *rc.Event)
	}
	return nil
}

// trackSectors closes the previous visit when the device leaves its sector or stops
// irrigating, and opens one when it enters a sector or starts irrigating inside one.
func (i *Ingestor) trackSectors(ctx context.Context, tx Store, dev entities.Device, e *deviceEntry, last *entities.PositionSample, sample entities.PositionSample, sector entities.Sector, inSector bool, bearing float64, res *IngestResult) error {
	var prevID string
	var prevIrrigating bool
	if last != nil {
		prevID, prevIrrigating = last.SectorID, last.State.Irrigating
	}
	wasIn := prevID != "" && prevIrrigating
	isIn := inSector && sample.State.Irrigating
	changed := prevID != sample.SectorID

	if wasIn && (!isIn || changed) {
		if err := i.exitSector(ctx, tx, dev, e, prevID, sample.Timestamp, res); err != nil {
			return err
		}
	}
	if !isIn {
		return nil
	}

	if !wasIn || changed {
		_, ev, err := i.sectors.OnEnter(ctx, tx, e.Rotation, sector, bearing, sample.Timestamp)
		if err != nil {
			return fmt.Errorf("enter sector %s: %w", sector.ID, err)
		}
		if ev != nil {
			res.Events = append(res.Events, *ev)
		}
	}

	visit, ok, err := tx.OpenVisit(ctx, e.Rotation.ID, sector.ID)
	if err != nil {
		return fmt.Errorf("load open visit of sector %s: %w", sector.ID, err)
	}
	if !ok {
		return nil
	}
	_, err = i.sectors.UpdateSectorProgress(ctx, tx, dev, sector, visit, e.Direction, bearing, sample.Timestamp)
	return err
}

func (i *Ingestor) exitSector(ctx context.Context, tx Store, dev entities.Device, e *deviceEntry, sectorID string, ts time.Time, res *IngestResult) error {
	s, ok, err := i.sectorByID(ctx, tx, dev, sectorID)
	if err != nil {
		return err
	}
	if !ok {
		i.logger.Printf("tracker: device=%s left %s", dev.Name, (&NotFoundError{Kind: "sector", ID: sectorID}).Error())
		return nil
	}

	rot := e.Rotation
	if !e.HasRotation {
		open, found, err := tx.OpenRotation(ctx, dev.ID)
		if err != nil {
			return fmt.Errorf("load open rotation of %s: %w", dev.Name, err)
		}
		if !found {
			return nil
		}
		rot = open
	}

	_, ev, err := i.sectors.OnExit(ctx, tx, dev, rot, s, ts)
	if err != nil {
		return fmt.Errorf("exit sector %s: %w", sectorID, err)
	}
	if ev != nil {
		res.Events = append(res.Events, *ev)
	}
	return nil
}

func (i *Ingestor) sectorByID(ctx context.Context, tx Store, dev entities.Device, id string) (entities.Sector, bool, error) {
	sectors, err := tx.ActiveSectors(ctx, dev.ID)
	if err != nil {
		return entities.Sector{}, false, fmt.Errorf("load sectors of %s: %w", dev.Name, err)
	}
	s, ok := findSector(sectors, id)
	return s, ok, nil
}

func (i *Ingestor) notify(ctx context.Context, dev entities.Device, res IngestResult) {
	if i.notifier == nil {
		return
	}
	if res.Saved {
		if err := i.notifier.SamplePersisted(ctx, dev, res.sample); err != nil {
			i.metrics.PublishError()
			i.logger.Printf("tracker: publish sample of %s: %v", dev.Name, err)
		}
	}
	for _, ev := range res.Events {
		if err := i.notifier.IrrigationEvent(ctx, dev, res.RotationNumber, ev); err != nil {
			i.metrics.PublishError()
			i.logger.Printf("tracker: publish %s event of %s: %v", ev.Kind, dev.Name, err)
		}
	}
}

func validateRecord(r model.TelemetryRecord) error {
	switch {
	case strings.TrimSpace(r.DeviceName) == "":
		return &ValidationError{Field: "device_name", Reason: "is required"}
	case r.Timestamp.IsZero():
		return &ValidationError{Field: "timestamp", Reason: "is required"}
	case math.IsNaN(r.Lat) || r.Lat < -90 || r.Lat > 90:
		return &ValidationError{Field: "lat", Reason: fmt.Sprintf("%v out of [-90,90]", r.Lat)}
	case math.IsNaN(r.Lon) || r.Lon < -180 || r.Lon > 180:
		return &ValidationError{Field: "lon", Reason: fmt.Sprintf("%v out of [-180,180]", r.Lon)}
	case math.IsNaN(r.Speed) || math.IsInf(r.Speed, 0) || r.Speed < 0:
		return &ValidationError{Field: "speed", Reason: fmt.Sprintf("%v must be a non-negative number", r.Speed)}
	case math.IsNaN(r.Altitude) || math.IsInf(r.Altitude, 0) || math.IsNaN(r.Course) || math.IsInf(r.Course, 0):
		return &ValidationError{Field: "altitude/course", Reason: "must be finite"}
	}
	return nil
}
