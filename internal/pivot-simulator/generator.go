package pivot_simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model"
	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

// PivotSpec describes the simulated machine.
type PivotSpec struct {
	Name          string
	Center        geo.Point
	RadiusM       float64 // distance of the GPS unit from the center
	RotationHours float64 // duration of a full sweep at nominal speed
	StartDeg      float64
	Direction     entities.Direction
	RawPressure   float64 // analog reading while the valve is open
	JitterDeg     float64 // uniform bearing noise, 0 disables
}

// Generator advances the arm angle with wall time and produces telemetry.
type Generator struct {
	mu      sync.Mutex
	spec    PivotSpec
	angle   float64
	last    time.Time
	running bool
	water   bool
	rnd     *rand.Rand
}

func NewGenerator(spec PivotSpec, seed int64) *Generator {
	if spec.Direction != entities.Clockwise {
		spec.Direction = entities.Counterclockwise
	}
	return &Generator{
		spec:    spec,
		angle:   geo.Normalize(spec.StartDeg),
		running: true,
		water:   true,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

// degPerMin is the nominal angular speed.
func (g *Generator) degPerMin() float64 {
	if g.spec.RotationHours <= 0 {
		return 0
	}
	return 360 / (g.spec.RotationHours * 60)
}

// Next advances the state to now and returns the record a GPS tracker would send.
func (g *Generator) Next(now time.Time) model.TelemetryRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	now = now.UTC()
	if !g.last.IsZero() && g.running {
		dt := now.Sub(g.last).Minutes()
		if dt > 0 {
			step := g.degPerMin() * dt
			if g.spec.Direction == entities.Clockwise {
				step = -step
			}
			g.angle = geo.Normalize(g.angle + step)
		}
	}
	g.last = now

	bearing := g.angle
	if g.spec.JitterDeg > 0 {
		bearing = geo.Normalize(bearing + (g.rnd.Float64()*2-1)*g.spec.JitterDeg)
	}
	p := geo.Destination(g.spec.Center, bearing, g.spec.RadiusM)

	speed := 0.0
	if g.running {
		// km/h of the GPS unit along its arc
		speed = 2 * math.Pi * g.spec.RadiusM / (g.spec.RotationHours * 3600) * 3.6
	}
	raw := 0.0
	if g.water {
		raw = g.spec.RawPressure
	}
	ignition := g.running
	return model.TelemetryRecord{
		DeviceName:  g.spec.Name,
		Timestamp:   now,
		Lat:         p.Lat,
		Lon:         p.Lon,
		Speed:       speed,
		Course:      geo.Normalize(bearing + 90),
		RawPressure: &raw,
		Ignition:    &ignition,
	}
}

// Angle is the current noise-free arm bearing.
func (g *Generator) Angle() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.angle
}

func (g *Generator) state() (running, water bool, dir entities.Direction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running, g.water, g.spec.Direction
}

func (g *Generator) set(running, water bool, dir entities.Direction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running, g.water, g.spec.Direction = running, water, dir
}
