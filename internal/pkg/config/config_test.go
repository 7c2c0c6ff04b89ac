package config_test

import (
	"strings"
	"testing"

	"github.com/samirrijal/shoptrip/internal/pkg/config"
)

func validConfig() config.Config {
	return config.Config{
		Server:   config.ServerConfig{Port: 8080, ReadTimeout: 10, WriteTimeout: 35},
		Database: config.DatabaseConfig{Host: "db", Port: 5432, User: "shoptrip", DBName: "shoptrip"},
		Routing:  config.RoutingConfig{BaseURL: "http://routing", TimeoutSeconds: 30, MaxWaypoints: 25, Mode: "driving"},
		Trip:     config.TripConfig{MaxStops: 10, StorageKey: "trip_planner_stops"},
	}
}

func TestValidate_OK(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	c := validConfig()
	c.Server.Port = 0
	c.Routing.Mode = "FLYING"
	c.Trip.MaxStops = 40

	err := c.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.port", "routing.mode", "trip.max_stops (40)"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}

func TestValidate_OptionalBackends(t *testing.T) {
	c := validConfig()
	c.Routing.RatePerSecond = 2
	c.Kafka.Brokers = []string{"kafka:9092"}

	err := c.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"routing.burst", "kafka.topic"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}

	c.Routing.Burst = 1
	c.Kafka.Topic = "trips"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SHOPTRIP_TRIP_MAX_STOPS", "5")
	t.Setenv("SHOPTRIP_ROUTING_MODE", "WALKING")

	cfg, err := config.Load("shoptrip-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Trip.MaxStops != 5 || cfg.Routing.Mode != "WALKING" {
		t.Fatalf("env not applied: %+v %+v", cfg.Trip, cfg.Routing)
	}
	if cfg.Routing.Timeout().Seconds() != 30 || cfg.Telemetry.ServiceName != "shoptrip-test" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Routing.RatePerSecond != 0 || cfg.Routing.Burst != 5 || len(cfg.Kafka.Brokers) != 0 {
		t.Fatalf("unexpected optional defaults: %+v %+v", cfg.Routing, cfg.Kafka)
	}
}

func TestDSN(t *testing.T) {
	d := config.DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	if got := d.DSN(); got != "postgres://u:p@h:5432/n?sslmode=disable" {
		t.Fatalf("unexpected dsn %q", got)
	}
}
