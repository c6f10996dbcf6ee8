package tracker

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

const cacheStripes = 64

// deviceEntry is the per-device working state. It is copied out of the cache, mutated
// during one ingest and written back only after the durable writes committed.
type deviceEntry struct {
	Loaded      bool
	HasSample   bool
	LastSample  entities.PositionSample // last persisted
	LastSeen    time.Time               // last processed, persisted or not
	HasRotation bool
	Rotation    entities.Rotation
	History     AngleHistory
	Direction   entities.Direction
}

// DeviceView is the read-only snapshot served over HTTP.
type DeviceView struct {
	DeviceID    string                   `json:"device_id"`
	LastSeen    time.Time                `json:"last_seen"`
	LastSample  *entities.PositionSample `json:"last_sample,omitempty"`
	Rotation    *entities.Rotation       `json:"rotation,omitempty"`
	Direction   entities.Direction       `json:"direction,omitempty"`
	HistorySize int                      `json:"history_size"`
}

// DeviceCache is the process-wide keyed state of the ingestor. Writers for one key are
// serialized through a striped lock; the map itself has its own mutex.
type DeviceCache struct {
	stripes [cacheStripes]sync.Mutex

	mu      sync.RWMutex
	entries map[string]deviceEntry
}

func NewDeviceCache() *DeviceCache {
	return &DeviceCache{entries: make(map[string]deviceEntry)}
}

// Lock acquires the writer lock of the key and returns its release func.
func (c *DeviceCache) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &c.stripes[h.Sum32()%cacheStripes]
	m.Lock()
	return m.Unlock
}

func (c *DeviceCache) get(key string) (deviceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *DeviceCache) put(key string, e deviceEntry) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Forget drops the entry so the next ingest reloads it from the store.
func (c *DeviceCache) Forget(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *DeviceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *DeviceCache) View(key string) (DeviceView, bool) {
	e, ok := c.get(key)
	if !ok {
		return DeviceView{}, false
	}
	v := DeviceView{DeviceID: key, LastSeen: e.LastSeen, Direction: e.Direction, HistorySize: e.History.Len()}
	if e.HasSample {
		s := e.LastSample
		v.LastSample = &s
	}
	if e.HasRotation {
		r := e.Rotation
		v.Rotation = &r
	}
	return v, true
}
