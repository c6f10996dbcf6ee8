package tracker

import (
	"context"
	"fmt"
	"log"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

// SectorLocator finds the configured sector containing a position.
// Sectors are expected not to overlap; when they do the first registered one wins.
type SectorLocator struct {
	logger *log.Logger
}

func NewSectorLocator(logger *log.Logger) *SectorLocator {
	if logger == nil {
		logger = log.Default()
	}
	return &SectorLocator{logger: logger}
}

// Locate returns the containing sector, or ok=false when the point is outside all of them.
func (l *SectorLocator) Locate(ctx context.Context, st Store, device entities.Device, p geo.Point) (entities.Sector, bool, error) {
	sectors, err := st.ActiveSectors(ctx, device.ID)
	if err != nil {
		return entities.Sector{}, false, fmt.Errorf("load sectors of %s: %w", device.Name, err)
	}
	s, ok := l.locateIn(sectors, device.Center(), p)
	return s, ok, nil
}

func (l *SectorLocator) locateIn(sectors []entities.Sector, center, p geo.Point) (entities.Sector, bool) {
	for _, s := range sectors {
		if err := s.Wedge().Validate(); err != nil {
			l.logger.Printf("locator: skip sector %s: %v", s.ID, err)
			continue
		}
		if geo.PointInSector(p, center, s.Wedge()) {
			return s, true
		}
	}
	return entities.Sector{}, false
}

func findSector(sectors []entities.Sector, id string) (entities.Sector, bool) {
	for _, s := range sectors {
		if s.ID == id {
			return s, true
		}
	}
	return entities.Sector{}, false
}
