package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Pinger is the liveness probe of the durable store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthHandler struct {
	mqtt  mqtt.Client
	store Pinger
	cache *DeviceCache
}

func NewHealthHandler(m mqtt.Client, st Pinger, cache *DeviceCache) http.Handler {
	return &healthHandler{mqtt: m, store: st, cache: cache}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type status struct {
		Status        string `json:"status"`
		MQTTConnected bool   `json:"mqtt_connected"`
		StoreOK       bool   `json:"store_ok"`
		Devices       int    `json:"cached_devices"`
	}
	st := status{
		MQTTConnected: h.mqtt != nil && h.mqtt.IsConnectionOpen(),
		StoreOK:       pingOK(r.Context(), h.store),
	}
	if h.cache != nil {
		st.Devices = h.cache.Len()
	}
	switch {
	case st.MQTTConnected && st.StoreOK:
		st.Status = "ok"
	case st.StoreOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	writeJSON(w, http.StatusOK, st)
}

type readyHandler struct {
	mqtt  mqtt.Client
	store Pinger
}

// NewReadyHandler answers 200 only if the broker and the store are both reachable.
func NewReadyHandler(m mqtt.Client, st Pinger) http.Handler {
	return &readyHandler{mqtt: m, store: st}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ready := h.mqtt != nil && h.mqtt.IsConnectionOpen() && pingOK(r.Context(), h.store)
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, struct {
		Ready bool `json:"ready"`
	}{Ready: ready})
}

// NewDeviceStateHandler serves GET /devices/{name}/state from the ingestor cache.
func NewDeviceStateHandler(st Store, cache *DeviceCache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		dev, ok, err := st.ActiveDevice(r.Context(), name)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": (&NotFoundError{Kind: "device", ID: name}).Error()})
			return
		}
		view, ok := cache.View(dev.ID)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no telemetry processed yet for " + name})
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Name string `json:"name"`
			DeviceView
		}{Name: dev.Name, DeviceView: view})
	})
}

func pingOK(ctx context.Context, p Pinger) bool {
	if p == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Ping(ctx) == nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
