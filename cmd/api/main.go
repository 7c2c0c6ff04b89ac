package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/samirrijal/shoptrip/internal/adapters/http"
	kafkaadapter "github.com/samirrijal/shoptrip/internal/adapters/kafka"
	"github.com/samirrijal/shoptrip/internal/adapters/memstore"
	natsadapter "github.com/samirrijal/shoptrip/internal/adapters/nats"
	"github.com/samirrijal/shoptrip/internal/adapters/postgres"
	"github.com/samirrijal/shoptrip/internal/adapters/routing"
	"github.com/samirrijal/shoptrip/internal/adapters/valkey"
	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/ports"
	"github.com/samirrijal/shoptrip/internal/core/usecases"
	"github.com/samirrijal/shoptrip/internal/pkg/config"
	"github.com/samirrijal/shoptrip/internal/pkg/geospatial"
	"github.com/samirrijal/shoptrip/internal/pkg/logging"
	"github.com/samirrijal/shoptrip/internal/pkg/metrics"
	"github.com/samirrijal/shoptrip/internal/pkg/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg, err := config.Load("shoptrip-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Location catalog
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Trip records and the catalog cache share one store. Without Valkey the
	// records live in process memory and do not survive a restart.
	var kv ports.KeyValueStore
	var storePinger http.Pinger
	if cfg.Valkey.Addr != "" {
		store, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable, trips kept in memory", "error", err)
		} else {
			defer store.Close()
			kv, storePinger = store, store
		}
	}
	if kv == nil {
		kv = memstore.New(cfg.Trip.MaxRecordBytes)
	}

	// Events go to NATS for live clients and, when configured, to Kafka for
	// downstream consumers.
	var natsEvents, kafkaEvents ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, live trip events disabled", "error", err)
	} else {
		defer pub.Close()
		natsEvents = pub
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := kafkaadapter.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kp.Close(); err != nil {
				slog.Warn("kafka close", "error", err)
			}
		}()
		kafkaEvents = kp
	}
	events := usecases.NewFanoutPublisher(natsEvents, kafkaEvents)

	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	recorder := metrics.Recorder{}

	locations := usecases.NewLocationService(
		postgres.NewLocationRepo(db), kv, cfg.Catalog.CacheTTLSeconds,
		geospatial.Calculator{}, cfg.Catalog.Categories,
	)

	router := usecases.NewRouteCoordinator(
		routing.New(routing.Config{
			BaseURL: cfg.Routing.BaseURL,
			APIKey:  cfg.Routing.APIKey,
			Timeout: cfg.Routing.Timeout(),
		}, routing.WithRateLimit(cfg.Routing.RatePerSecond, cfg.Routing.Burst)),
		usecases.WithRouteTimeout(cfg.Routing.Timeout()),
		usecases.WithMaxWaypoints(cfg.Routing.MaxWaypoints),
		usecases.WithTravelMode(domain.RouteMode(cfg.Routing.Mode)),
		usecases.WithRouteObserver(recorder),
		usecases.WithRouteLogger(slog.Default().With("component", "routing")),
	)

	sessionOpts := []usecases.SessionOption{
		usecases.WithSessionObserver(recorder),
		usecases.WithStorageErrorHook(recorder.StorageError),
		usecases.WithSessionLogger(logger),
	}
	if events != nil {
		sessionOpts = append(sessionOpts, usecases.WithSessionEvents(events))
	}
	sessions := usecases.NewSessionService(kv, router, locations, usecases.SessionConfig{
		Planner: usecases.PlannerConfig{
			MaxStops:     cfg.Trip.MaxStops,
			MaxWaypoints: cfg.Routing.MaxWaypoints,
			ShareBaseURL: cfg.Trip.ShareBaseURL,
		},
		StorageKeyPrefix: cfg.Trip.StorageKey,
		StorageTTL:       cfg.Trip.StorageTTLSeconds,
		IdleTimeout:      time.Duration(cfg.Trip.IdleMinutes) * time.Minute,
		KnownCategories:  cfg.Catalog.Categories,
	}, sessionOpts...)

	// Warm the pool so the first request does not pay for it.
	if pool, err := locations.Load(ctx); err != nil {
		slog.Warn("initial catalog load failed", "error", err)
	} else {
		metrics.CatalogSize.Set(float64(len(pool)))
	}

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("catalog subscriber unavailable", "error", err)
	} else {
		defer sub.Close()
		err := sub.SubscribeCatalogUpdates(ctx, func(ctx context.Context) error {
			locations.Invalidate(ctx)
			pool, err := locations.Load(ctx)
			if err != nil {
				return err
			}
			metrics.CatalogReloads.Inc()
			metrics.CatalogSize.Set(float64(len(pool)))
			slog.Info("catalog reloaded", "locations", len(pool))
			return nil
		})
		if err != nil {
			slog.Warn("catalog subscribe failed", "error", err)
		}
	}

	go sessions.Run(ctx, time.Minute)

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Stat())
				metrics.ActiveSessions.Set(float64(sessions.Count()))
			}
		}
	}()

	deps := &http.Dependencies{
		Locations:  locations,
		Sessions:   sessions,
		Directions: router,
		NATS:       natsConn,
		DB:         db,
		Store:      storePinger,
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "ShopTrip API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://localhost:5173",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
