package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	cache := NewDeviceCache()
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("closed") })

	for _, tc := range []struct {
		name  string
		store Pinger
		want  string
	}{
		{"store up, broker down", ok, "degraded"},
		{"store down", down, "down"},
		{"no store", nil, "down"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(nil, tc.store, cache).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			var body map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.want, body["status"])
		})
	}
}

func TestReadyHandlerWithoutBroker(t *testing.T) {
	rec := httptest.NewRecorder()
	NewReadyHandler(nil, pingerFunc(func(context.Context) error { return nil })).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDeviceStateHandler(t *testing.T) {
	st := newMemStore()
	st.addDevice(testDevice(), fiveThousandSquareMeters())
	ing := newTestIngestor(t, st, nil)

	mux := http.NewServeMux()
	mux.Handle("GET /devices/{name}/state", NewDeviceStateHandler(st, ing.Cache()))
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusNotFound, get("/devices/ghost/state").Code)
	assert.Equal(t, http.StatusNotFound, get("/devices/pivot-north/state").Code, "nothing processed yet")

	_, err := ing.Ingest(context.Background(), irrigatingAt(10, t0))
	require.NoError(t, err)

	rec := get("/devices/pivot-north/state")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Name        string `json:"name"`
		DeviceID    string `json:"device_id"`
		HistorySize int    `json:"history_size"`
		Rotation    *struct {
			Seq int `json:"seq"`
		} `json:"rotation"`
		LastSample *struct {
			SectorID string `json:"sector_id"`
		} `json:"last_sample"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "pivot-north", body.Name)
	assert.Equal(t, "dev-1", body.DeviceID)
	assert.Equal(t, 1, body.HistorySize)
	require.NotNil(t, body.Rotation)
	assert.Equal(t, 1, body.Rotation.Seq)
	require.NotNil(t, body.LastSample)
	assert.Equal(t, "s-lot", body.LastSample.SectorID)
}

func TestDeviceCacheForget(t *testing.T) {
	c := NewDeviceCache()
	unlock := c.Lock("dev-1")
	c.put("dev-1", deviceEntry{Loaded: true})
	unlock()
	assert.Equal(t, 1, c.Len())

	c.Forget("dev-1")
	_, ok := c.View("dev-1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
