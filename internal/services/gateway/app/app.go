// Package app serves the operator dashboard by aggregating the tracker, persistence
// and event services behind one circuit breaker each.
package app

import (
	"log"
	"net/http"
	"time"
)

type Config struct {
	TrackerBaseURL     string
	PersistenceBaseURL string
	EventsBaseURL      string
	HTTPTimeout        time.Duration
	EventsLimit        int

	BreakerFailures int
	BreakerOpenFor  time.Duration
	BreakerInterval time.Duration

	Logger *log.Logger
}

type Gateway struct {
	cfg         Config
	tracker     *Upstream
	persistence *Upstream
	events      *Upstream
}

func NewGateway(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 3 * time.Second
	}
	if cfg.EventsLimit <= 0 {
		cfg.EventsLimit = 20
	}
	mk := func(name, base string) *Upstream {
		cb := mkCB(name, cfg.BreakerFailures, cfg.BreakerOpenFor, cfg.BreakerInterval)
		return NewUpstream(name, base, cfg.HTTPTimeout, cb)
	}
	return &Gateway{
		cfg:         cfg,
		tracker:     mk("tracker", cfg.TrackerBaseURL),
		persistence: mk("persistence", cfg.PersistenceBaseURL),
		events:      mk("events", cfg.EventsBaseURL),
	}
}

func (g *Gateway) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	mux.HandleFunc("GET /dashboard/data", g.HandleFleet)
	mux.HandleFunc("GET /dashboard/{device}", g.HandleDevice)
	return mux
}
