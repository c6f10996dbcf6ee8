package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

// memStore is an in-memory Store for unit tests. Atomic snapshots the whole state and
// restores it when fn fails. It is not safe for concurrent use outside Atomic.
type memStore struct {
	mu sync.Mutex

	devices   map[string]entities.Device
	sectors   map[string][]entities.Sector
	rotations map[string]entities.Rotation
	samples   map[string][]entities.PositionSample
	visits    map[string]entities.SectorVisit
	states    map[string]entities.SectorState
	events    []entities.IrrigationEvent

	// fail makes the named method return the error once
	fail map[string]error
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		devices:   map[string]entities.Device{},
		sectors:   map[string][]entities.Sector{},
		rotations: map[string]entities.Rotation{},
		samples:   map[string][]entities.PositionSample{},
		visits:    map[string]entities.SectorVisit{},
		states:    map[string]entities.SectorState{},
		fail:      map[string]error{},
	}
}

func (s *memStore) addDevice(d entities.Device, sectors ...entities.Sector) {
	s.devices[d.Name] = d
	for i := range sectors {
		sectors[i].DeviceID = d.ID
		sectors[i].Active = true
		sectors[i].Position = i + 1
	}
	s.sectors[d.ID] = sectors
}

func (s *memStore) check(op string) error {
	if err, ok := s.fail[op]; ok {
		delete(s.fail, op)
		return err
	}
	return nil
}

type memSnapshot struct {
	rotations map[string]entities.Rotation
	samples   map[string][]entities.PositionSample
	visits    map[string]entities.SectorVisit
	states    map[string]entities.SectorState
	events    []entities.IrrigationEvent
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		rotations: map[string]entities.Rotation{},
		samples:   map[string][]entities.PositionSample{},
		visits:    map[string]entities.SectorVisit{},
		states:    map[string]entities.SectorState{},
		events:    append([]entities.IrrigationEvent(nil), s.events...),
	}
	for k, v := range s.rotations {
		snap.rotations[k] = v
	}
	for k, v := range s.samples {
		snap.samples[k] = append([]entities.PositionSample(nil), v...)
	}
	for k, v := range s.visits {
		snap.visits[k] = v
	}
	for k, v := range s.states {
		snap.states[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.rotations, s.samples, s.visits, s.states, s.events = snap.rotations, snap.samples, snap.visits, snap.states, snap.events
}

type memTx struct{ *memStore }

func (t memTx) Atomic(_ context.Context, fn func(Store) error) error { return fn(t) }

func (s *memStore) Atomic(_ context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(memTx{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) ActiveDevice(_ context.Context, name string) (entities.Device, bool, error) {
	if err := s.check("ActiveDevice"); err != nil {
		return entities.Device{}, false, err
	}
	d, ok := s.devices[name]
	if !ok || !d.Active {
		return entities.Device{}, false, nil
	}
	return d, true, nil
}

func (s *memStore) ActiveSectors(_ context.Context, deviceID string) ([]entities.Sector, error) {
	var out []entities.Sector
	for _, sc := range s.sectors[deviceID] {
		if sc.Active {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *memStore) OpenRotation(_ context.Context, deviceID string) (entities.Rotation, bool, error) {
	for _, r := range s.rotations {
		if r.DeviceID == deviceID && !r.Completed {
			return r, true, nil
		}
	}
	return entities.Rotation{}, false, nil
}

func (s *memStore) rotationsOf(deviceID string) []entities.Rotation {
	var out []entities.Rotation
	for _, r := range s.rotations {
		if r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (s *memStore) CreateOrFetchRotation(ctx context.Context, deviceID string, startAngle float64, ts time.Time) (entities.Rotation, bool, error) {
	if err := s.check("CreateOrFetchRotation"); err != nil {
		return entities.Rotation{}, false, err
	}
	if r, ok, _ := s.OpenRotation(ctx, deviceID); ok {
		return r, false, nil
	}
	r := entities.Rotation{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		Seq:        len(s.rotationsOf(deviceID)) + 1,
		StartedAt:  ts,
		StartAngle: startAngle,
	}
	s.rotations[r.ID] = r
	return r, true, nil
}

func (s *memStore) UpdateRotationProgress(_ context.Context, rotationID string, percent float64, dir entities.Direction) error {
	r, ok := s.rotations[rotationID]
	if !ok || r.Completed {
		return nil
	}
	r.ProgressPct, r.Direction = percent, dir
	s.rotations[rotationID] = r
	return nil
}

func (s *memStore) visitsOf(rotationID string) []entities.SectorVisit {
	var out []entities.SectorVisit
	for _, v := range s.visits {
		if v.RotationID == rotationID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (s *memStore) RecomputeRotationTotals(_ context.Context, rotationID string) (entities.RotationTotals, error) {
	if err := s.check("RecomputeRotationTotals"); err != nil {
		return entities.RotationTotals{}, err
	}
	t := AggregateTotals(s.visitsOf(rotationID))
	r, ok := s.rotations[rotationID]
	if !ok {
		return t, fmt.Errorf("rotation %s not found", rotationID)
	}
	r.Totals = t
	s.rotations[rotationID] = r
	return t, nil
}

func (s *memStore) CloseRotation(_ context.Context, rotationID string, endAngle float64, endTs time.Time) (bool, error) {
	r, ok := s.rotations[rotationID]
	if !ok || r.Completed {
		return false, nil
	}
	r.Completed, r.EndAngle, r.EndedAt, r.ProgressPct = true, &endAngle, &endTs, 100
	r.DurationMin = endTs.Sub(r.StartedAt).Minutes()
	s.rotations[rotationID] = r
	return true, nil
}

func (s *memStore) InsertPositionSample(_ context.Context, p entities.PositionSample) (bool, error) {
	if err := s.check("InsertPositionSample"); err != nil {
		return false, err
	}
	for _, q := range s.samples[p.DeviceID] {
		if q.Timestamp.Equal(p.Timestamp) {
			return false, nil
		}
	}
	list := append(s.samples[p.DeviceID], p)
	sort.Slice(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	s.samples[p.DeviceID] = list
	return true, nil
}

func (s *memStore) LastPositionSample(_ context.Context, deviceID string) (entities.PositionSample, bool, error) {
	list := s.samples[deviceID]
	if len(list) == 0 {
		return entities.PositionSample{}, false, nil
	}
	return list[len(list)-1], true, nil
}

func (s *memStore) SamplesBetween(_ context.Context, deviceID string, from, to time.Time) ([]entities.PositionSample, error) {
	var out []entities.PositionSample
	for _, p := range s.samples[deviceID] {
		if !p.Timestamp.Before(from) && !p.Timestamp.After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) OpenSectorVisit(ctx context.Context, v entities.SectorVisit) (entities.SectorVisit, bool, error) {
	if open, ok, _ := s.OpenVisit(ctx, v.RotationID, v.SectorID); ok {
		return open, false, nil
	}
	maxOrder := 0
	for _, o := range s.visitsOf(v.RotationID) {
		if o.Order > maxOrder {
			maxOrder = o.Order
		}
	}
	v.Order = maxOrder + 1
	v.Completed, v.ExitedAt = false, nil
	s.visits[v.ID] = v
	return v, true, nil
}

func (s *memStore) OpenVisit(_ context.Context, rotationID, sectorID string) (entities.SectorVisit, bool, error) {
	for _, v := range s.visits {
		if v.RotationID == rotationID && v.SectorID == sectorID && !v.Completed {
			return v, true, nil
		}
	}
	return entities.SectorVisit{}, false, nil
}

func (s *memStore) CloseSectorVisit(_ context.Context, visitID string, exitTs time.Time, m entities.VisitMetrics) (bool, error) {
	if err := s.check("CloseSectorVisit"); err != nil {
		return false, err
	}
	v, ok := s.visits[visitID]
	if !ok || v.Completed {
		return false, nil
	}
	v.Completed, v.ExitedAt, v.Metrics = true, &exitTs, m
	s.visits[visitID] = v
	return true, nil
}

func (s *memStore) SectorState(_ context.Context, sectorID string) (entities.SectorState, bool, error) {
	st, ok := s.states[sectorID]
	return st, ok, nil
}

func (s *memStore) UpsertSectorState(_ context.Context, st entities.SectorState) error {
	s.states[st.SectorID] = st
	return nil
}

func (s *memStore) AppendIrrigationEvent(_ context.Context, ev entities.IrrigationEvent) error {
	for _, e := range s.events {
		if e.DeviceID == ev.DeviceID && e.SectorID == ev.SectorID && e.Kind == ev.Kind && e.Timestamp.Equal(ev.Timestamp) {
			return nil
		}
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memStore) closedVisits() []entities.SectorVisit {
	var out []entities.SectorVisit
	for _, v := range s.visits {
		if v.Completed {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnteredAt.Before(out[j].EnteredAt) })
	return out
}

func (s *memStore) eventsOf(kind entities.EventKind) []entities.IrrigationEvent {
	var out []entities.IrrigationEvent
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
