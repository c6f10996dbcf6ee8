package app

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"
)

var safeDevice = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

func (g *Gateway) HandleDevice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := r.PathValue("device")
	if !safeDevice.MatchString(name) {
		http.Error(w, "invalid device name", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.HTTPTimeout)
	defer cancel()

	data := DeviceDashboard{Device: name, Events: []Irrigation{}, Sources: map[string]Source{}}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		state   json.RawMessage
		samples []Sample
		events  []Irrigation
	)
	q := url.Values{"device": {name}}
	wg.Add(3)
	go func() {
		defer wg.Done()
		src, _ := g.tracker.GetJSON(ctx, "/devices/"+url.PathEscape(name)+"/state", &state)
		mu.Lock()
		data.Sources["tracker"] = src
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		src, _ := g.persistence.GetJSON(ctx, "/samples/latest?"+q.Encode(), &samples)
		mu.Lock()
		data.Sources["persistence"] = src
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		eq := url.Values{"device": {name}, "limit": {strconv.Itoa(g.cfg.EventsLimit)}}
		src, _ := g.events.GetJSON(ctx, "/events/irrigation/latest?"+eq.Encode(), &events)
		mu.Lock()
		data.Sources["events"] = src
		mu.Unlock()
	}()
	wg.Wait()

	if len(state) > 0 && string(state) != "null" {
		data.State = state
	}
	for i := range samples {
		if samples[i].DeviceName == name {
			s := samples[i]
			data.Latest = &s
			break
		}
	}
	if events != nil {
		data.Events = events
	}

	if data.State == nil && data.Latest == nil && len(data.Events) == 0 {
		writeJSON(w, http.StatusNotFound, data)
	} else {
		writeJSON(w, http.StatusOK, data)
	}
	g.cfg.Logger.Printf("GET /dashboard/%s [%dms] cb[tracker]=%v cb[pers]=%v cb[events]=%v",
		name, time.Since(start).Milliseconds(), g.tracker.State(), g.persistence.State(), g.events.State())
}

func (g *Gateway) HandleFleet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.HTTPTimeout)
	defer cancel()

	data := FleetDashboard{Devices: []Sample{}, Irrigations: []Irrigation{}, Sources: map[string]Source{}}
	var (
		wg      sync.WaitGroup
		samples []Sample
		events  []Irrigation
		ps, es  Source
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ps, _ = g.persistence.GetJSON(ctx, "/samples/latest", &samples)
	}()
	go func() {
		defer wg.Done()
		es, _ = g.events.GetJSON(ctx, "/events/irrigation/latest?limit="+strconv.Itoa(g.cfg.EventsLimit), &events)
	}()
	wg.Wait()
	data.Sources["persistence"], data.Sources["events"] = ps, es

	if samples != nil {
		data.Devices = samples
	}
	if events != nil {
		data.Irrigations = events
	}
	sort.Slice(data.Devices, func(i, j int) bool { return data.Devices[i].DeviceName < data.Devices[j].DeviceName })
	data.Stats = fleetStats(data.Devices, data.Irrigations)

	writeJSON(w, http.StatusOK, data)
	g.cfg.Logger.Printf("GET /dashboard/data [%dms] cb[pers]=%v cb[events]=%v devices=%d events=%d",
		time.Since(start).Milliseconds(), g.persistence.State(), g.events.State(), len(data.Devices), len(data.Irrigations))
}

func fleetStats(samples []Sample, events []Irrigation) FleetStats {
	st := FleetStats{Devices: len(samples)}
	for _, s := range samples {
		if s.Irrigating {
			st.Irrigating++
		}
		if s.Moving {
			st.Moving++
		}
		if s.Stale {
			st.Stale++
		}
	}
	for _, e := range events {
		if e.EventType == "irrigation.exit" {
			st.VolumeL += e.VolumeL
		}
	}
	st.VolumeL = math.Round(st.VolumeL*10) / 10
	return st
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
