package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// Irrigation is one row of /events/irrigation/latest.
type Irrigation struct {
	Device      string  `json:"device"`
	SectorID    string  `json:"sector_id,omitempty"`
	EventType   string  `json:"event_type"`
	VolumeL     float64 `json:"volume_l"`
	DepthMm     float64 `json:"depth_mm"`
	DurationMin float64 `json:"duration_min"`
	Rotation    int64   `json:"rotation"`
	Time        string  `json:"time"` // RFC3339
}

type irrQueryParams struct {
	Device    string
	EventType string
	Minutes   int
	Limit     int
	TimeoutMS int
}

// names are interpolated into Flux, so only a conservative charset is accepted
var safeName = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

func parseIrr(r *http.Request, defMin, defLim, defTOms int) irrQueryParams {
	q := r.URL.Query()
	get := func(k string, def, min, max int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < min {
					return min
				}
				if max > 0 && n > max {
					return max
				}
				return n
			}
		}
		return def
	}
	p := irrQueryParams{
		Minutes:   get("minutes", defMin, 1, 7*24*60),
		Limit:     get("limit", defLim, 1, 500),
		TimeoutMS: get("timeout_ms", defTOms, 200, 5000),
	}
	if d := strings.TrimSpace(q.Get("device")); safeName.MatchString(d) {
		p.Device = d
	}
	if k := strings.TrimSpace(q.Get("kind")); k != "" {
		p.EventType = eventTypes[k]
	}
	return p
}

func buildFlux(bucket string, p irrQueryParams) string {
	var filters strings.Builder
	if p.Device != "" {
		fmt.Fprintf(&filters, "\n  |> filter(fn: (r) => r.device == %q)", p.Device)
	}
	if p.EventType != "" {
		fmt.Fprintf(&filters, "\n  |> filter(fn: (r) => r.event_type == %q)", p.EventType)
	}
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q)%s
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, p.Minutes, Measurement, filters.String(), p.Limit)
}

func runIrr(w http.ResponseWriter, r *http.Request, influx influxdb2.Client, org, bucket string, defMin, defLim int) {
	p := parseIrr(r, defMin, defLim, 2000)

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
	defer cancel()

	res, err := influx.QueryAPI(org).Query(ctx, buildFlux(bucket, p))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Error", "influx-query-error")
		_, _ = w.Write([]byte("[]"))
		return
	}
	defer res.Close()

	out := make([]Irrigation, 0, p.Limit)
	for res.Next() {
		rec := res.Record()
		out = append(out, Irrigation{
			Device:      str(rec.ValueByKey("device")),
			SectorID:    str(rec.ValueByKey("sector_id")),
			EventType:   str(rec.ValueByKey("event_type")),
			VolumeL:     num(rec.ValueByKey("volume_l")),
			DepthMm:     num(rec.ValueByKey("depth_mm")),
			DurationMin: num(rec.ValueByKey("duration_min")),
			Rotation:    int64(num(rec.ValueByKey("rotation"))),
			Time:        rec.Time().UTC().Format(time.RFC3339),
		})
	}
	if res.Err() != nil {
		w.Header().Set("X-Error", "influx-iter-error")
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func num(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	return 0
}

// NewIrrigationLatestHandler serves
// GET /events/irrigation/latest?limit=20[&minutes=1440][&device=pivot-north][&kind=exit]
func NewIrrigationLatestHandler(influx influxdb2.Client, org, bucket string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runIrr(w, r, influx, org, bucket, 1440, 20)
	})
}
