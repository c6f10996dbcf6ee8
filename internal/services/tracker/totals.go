package tracker

import (
	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

// AggregateTotals rolls the closed visits of one rotation up into its totals. Depth is
// the area-weighted mean over the distinct sectors visited, so a visit split at a
// rotation boundary does not dilute it. Open visits are ignored.
func AggregateTotals(visits []entities.SectorVisit) entities.RotationTotals {
	var (
		t            entities.RotationTotals
		areaBySector = make(map[string]float64)
		pSum         float64
		pN           int
	)
	for _, v := range visits {
		if !v.Completed {
			continue
		}
		t.Visits++
		t.IrrigatedMin += v.Metrics.DurationMin
		t.VolumeL += v.Metrics.VolumeL
		if v.Metrics.AreaM2 > areaBySector[v.SectorID] {
			areaBySector[v.SectorID] = v.Metrics.AreaM2
		}
		if v.Metrics.Pressure.Mean > 0 && v.Metrics.Samples > 0 {
			pSum += v.Metrics.Pressure.Mean * float64(v.Metrics.Samples)
			pN += v.Metrics.Samples
		}
	}
	for _, a := range areaBySector {
		t.AreaM2 += a
	}
	t.DepthMm = geo.AppliedDepthMm(t.VolumeL, t.AreaM2)
	if pN > 0 {
		t.PressureAvg = pSum / float64(pN)
	}
	return t
}
