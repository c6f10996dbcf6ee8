package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/services/tracker"
	"github.com/LeonardoBeccarini/pivot_tracker/internal/store/sqlite"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/dedup"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/rabbitmq"
)

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("tracker: ignoring invalid %s=%q", key, v)
	}
	return def
}

func envList(key, def string) []string {
	parts := strings.Split(env(key, def), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("tracker: .env: %v", err)
	}

	// === Config ===
	cfg := struct {
		Rabbit rabbitmq.RabbitMQConfig

		DBPath        string
		TrackerConfig string
		Topics        []string

		IngestTimeout  time.Duration
		DedupTTL       time.Duration
		DedupMax       int
		PublishTimeout time.Duration
		Breaker        tracker.BreakerSettings

		HTTPPort       int
		GRPCPort       int
		HealthInterval time.Duration
		ShutdownGrace  time.Duration
	}{
		Rabbit: rabbitmq.RabbitMQConfig{
			Host:       env("RABBITMQ_HOST", "localhost"),
			Port:       envInt("RABBITMQ_PORT", 1883),
			User:       env("RABBITMQ_USER", "guest"),
			Password:   env("RABBITMQ_PASSWORD", "guest"),
			ClientID:   env("HOSTNAME", "pivot-tracker"),
			MaxRetries: envInt("RABBITMQ_MAX_RETRIES", 5),
			MaxElapsed: envDuration("RABBITMQ_MAX_ELAPSED", 30*time.Second),
		},

		DBPath:        env("TRACKER_DB_PATH", "pivot-tracker.db"),
		TrackerConfig: env("TRACKER_CONFIG", ""),
		Topics:        envList("TELEMETRY_TOPICS", tracker.TelemetryTopicPrefix+"+/position"),

		IngestTimeout:  envDuration("INGEST_TIMEOUT", 10*time.Second),
		DedupTTL:       envDuration("DEDUP_TTL", 10*time.Minute),
		DedupMax:       envInt("DEDUP_MAX", 20000),
		PublishTimeout: envDuration("PUBLISH_TIMEOUT", 5*time.Second),
		Breaker: tracker.BreakerSettings{
			Fails:    envInt("CB_FAILS", 5),
			Open:     envDuration("CB_OPEN", 30*time.Second),
			Interval: envDuration("CB_INTERVAL", time.Minute),
		},

		HTTPPort:       envInt("HTTP_PORT", 8080),
		GRPCPort:       envInt("GRPC_PORT", 50051),
		HealthInterval: envDuration("HEALTH_INTERVAL", 10*time.Second),
		ShutdownGrace:  5 * time.Second,
	}

	trackerCfg, err := tracker.LoadConfig(cfg.TrackerConfig)
	if err != nil {
		log.Fatalf("tracker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === Store ===
	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Fatalf("tracker: open store: %v", err)
	}
	defer store.Close()

	// === MQTT ===
	mqttClient, err := rabbitmq.NewRabbitMQConn(&cfg.Rabbit, ctx)
	if err != nil {
		log.Fatalf("tracker: mqtt connection error: %v", err)
	}
	defer rabbitmq.CloseRabbitMQConn(mqttClient)

	// === Ingestor ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := tracker.NewMetrics(reg)

	pub := rabbitmq.NewPublisher(mqttClient, cfg.PublishTimeout)
	defer pub.Close()
	notifier := tracker.NewBusNotifier(pub, cfg.Breaker, log.Default())

	ing, err := tracker.NewIngestor(store, trackerCfg, tracker.Options{
		Metrics:  metrics,
		Notifier: notifier,
	})
	if err != nil {
		log.Fatalf("tracker: %v", err)
	}

	// === HTTP ===
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", tracker.NewHealthHandler(mqttClient, store, ing.Cache()))
	mux.Handle("GET /readyz", tracker.NewReadyHandler(mqttClient, store))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("GET /devices/{name}/state", tracker.NewDeviceStateHandler(store, ing.Cache()))

	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("tracker: HTTP listening on :%d", cfg.HTTPPort)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("tracker: http server error: %v", err)
		}
	}()

	// === gRPC health ===
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.GRPCPort))
	if err != nil {
		log.Fatalf("tracker: listen grpc: %v", err)
	}
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	go func() {
		log.Printf("tracker: gRPC health on :%d", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("tracker: gRPC serve error: %v", err)
		}
	}()
	go watchHealth(ctx, healthSrv, cfg.HealthInterval, func(ctx context.Context) bool {
		return mqttClient.IsConnectionOpen() && store.Ping(ctx) == nil
	})

	// === Consumer ===
	h := tracker.NewMQTTHandler(ing, dedup.New(cfg.DedupTTL, cfg.DedupMax), cfg.IngestTimeout, log.Default())
	consumer := rabbitmq.NewMultiConsumer(mqttClient, cfg.Topics, h.Handle)
	go consumer.ConsumeMessage(ctx)

	// === Wait for signal ===
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Printf("tracker: shutting down...")

	healthSrv.Shutdown()
	cancel()

	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shCancel()
	_ = hs.Shutdown(shCtx)
	grpcServer.GracefulStop()
}

// watchHealth mirrors broker and store reachability into the gRPC health service.
func watchHealth(ctx context.Context, hs *health.Server, every time.Duration, ready func(context.Context) bool) {
	set := func() {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if ready(pctx) {
			status = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus("pivot.tracker", status)
	}
	set()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			set()
		}
	}
}
