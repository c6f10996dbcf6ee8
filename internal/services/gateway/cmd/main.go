package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/services/gateway/app"
)

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("gateway: .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g := app.NewGateway(app.Config{
		TrackerBaseURL:     getenv("TRACKER_URL", "http://tracker:8080"),
		PersistenceBaseURL: getenv("PERSISTENCE_URL", "http://persistence:8080"),
		EventsBaseURL:      getenv("EVENT_URL", "http://event-service:8080"),
		HTTPTimeout:        time.Duration(getenvInt("TIMEOUT_MS", 3000)) * time.Millisecond,
		EventsLimit:        getenvInt("EVENTS_LIMIT", 20),
		BreakerFailures:    getenvInt("CB_FAILS", 3),
		BreakerOpenFor:     time.Duration(getenvInt("CB_OPEN_MS", 15000)) * time.Millisecond,
		BreakerInterval:    time.Duration(getenvInt("CB_INTERVAL_MS", 60000)) * time.Millisecond,
	})

	addr := ":" + getenv("PORT", "5009")
	srv := &http.Server{
		Addr:              addr,
		Handler:           g.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("gateway listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	log.Println("gateway: shutdown complete")
}
