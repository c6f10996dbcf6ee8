package persistence

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model"
)

type latestSample struct {
	model.SampleMessage
	Stale bool `json:"stale"`
}

func NewHTTPMux(svc *Service) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	// GET /samples/latest
	//   source=auto|influx|cache   (auto: Influx first, cache as fallback)
	//   minutes=<int>              (Influx window, default 1440)
	//   device=<name>              (optional filter)
	mux.HandleFunc("/samples/latest", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		source := strings.ToLower(q.Get("source"))
		if source == "" {
			source = "auto"
		}
		minutes := 60 * 24
		if s := q.Get("minutes"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				minutes = n
			}
		}
		device := strings.TrimSpace(q.Get("device"))

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		var (
			list []model.SampleMessage
			used string
		)
		if source == "influx" || source == "auto" {
			l, err := svc.QueryLatestFromInflux(ctx, minutes)
			if err == nil && len(l) > 0 {
				list, used = l, "influx"
			}
		}
		if used == "" {
			list, used = svc.LatestCache(), "cache"
		}

		now := time.Now()
		out := make([]latestSample, 0, len(list))
		for _, m := range list {
			if device != "" && m.DeviceName != device {
				continue
			}
			out = append(out, latestSample{SampleMessage: m, Stale: now.Sub(m.Timestamp) > staleAfter})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].DeviceName < out[j].DeviceName })

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Data-Source", used)
		_ = json.NewEncoder(w).Encode(out)
	})

	return mux
}
