package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	pivotSimulator "github.com/LeonardoBeccarini/pivot_tracker/internal/pivot-simulator"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/rabbitmq"
)

func main() {
	name := flag.String("device", "pivot-north", "device name used in topics")
	clientID := flag.String("client-id", "pivotPublisher1", "MQTT client ID")
	host := flag.String("host", "localhost", "broker host")
	port := flag.Int("port", 1883, "broker port")
	interval := flag.Duration("interval", 10*time.Second, "publish interval")
	lat := flag.Float64("lat", -34.6037, "pivot center latitude")
	lon := flag.Float64("lon", -58.3816, "pivot center longitude")
	radius := flag.Float64("radius", 250, "GPS distance from center in meters")
	hours := flag.Float64("rotation-hours", 24, "hours per full sweep")
	start := flag.Float64("start", 0, "initial bearing")
	clockwise := flag.Bool("clockwise", false, "sweep clockwise")
	raw := flag.Float64("raw-pressure", 40, "analog pressure reading while irrigating")
	jitter := flag.Float64("jitter", 0.2, "bearing noise in degrees")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &rabbitmq.RabbitMQConfig{
		Host:     *host,
		Port:     *port,
		User:     "guest",
		Password: "guest",
		ClientID: *clientID,
	}
	client, err := rabbitmq.NewRabbitMQConn(cfg, ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer rabbitmq.CloseRabbitMQConn(client)

	dir := entities.Counterclockwise
	if *clockwise {
		dir = entities.Clockwise
	}
	gen := pivotSimulator.NewGenerator(pivotSimulator.PivotSpec{
		Name:          *name,
		Center:        geo.Point{Lat: *lat, Lon: *lon},
		RadiusM:       *radius,
		RotationHours: *hours,
		StartDeg:      *start,
		Direction:     dir,
		RawPressure:   *raw,
		JitterDeg:     *jitter,
	}, time.Now().UnixNano())

	publisher := rabbitmq.NewPublisher(client, 5*time.Second)
	consumer := rabbitmq.NewConsumer(client, pivotSimulator.CommandTopicPrefix+*name, nil)
	pivotSimulator.NewPivotSimulator(consumer, publisher, gen).Start(ctx, *interval)
}
