package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/shoptrip/internal/pkg/metrics"
)

const (
	readTimeout  = 10 * time.Second
	routeTimeout = 35 * time.Second
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/locations", timeout.NewWithContext(ListLocationsHandler(deps), readTimeout))
	v1.Get("/locations/:id", timeout.NewWithContext(GetLocationHandler(deps), readTimeout))
	v1.Get("/categories", timeout.NewWithContext(ListCategoriesHandler(deps), readTimeout))
	v1.Get("/directions", timeout.NewWithContext(DirectionsHandler(deps), routeTimeout))

	trips := v1.Group("/trips")
	trips.Post("/", timeout.NewWithContext(CreateTripHandler(deps), readTimeout))
	trips.Get("/:session", timeout.NewWithContext(GetTripHandler(deps), readTimeout))
	trips.Delete("/:session", timeout.NewWithContext(ClearTripHandler(deps), readTimeout))
	trips.Post("/:session/stops", timeout.NewWithContext(AddStopHandler(deps), readTimeout))
	trips.Delete("/:session/stops/:stopId", timeout.NewWithContext(RemoveStopHandler(deps), readTimeout))
	trips.Post("/:session/reorder", timeout.NewWithContext(ReorderStopsHandler(deps), readTimeout))
	trips.Post("/:session/optimize", timeout.NewWithContext(ToggleOptimizationHandler(deps), readTimeout))
	trips.Post("/:session/route", timeout.NewWithContext(CalculateRouteHandler(deps), routeTimeout))
	trips.Get("/:session/share", timeout.NewWithContext(ShareTripHandler(deps), readTimeout))
	trips.Get("/:session/storage", timeout.NewWithContext(StorageSizeHandler(deps), readTimeout))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, deps.DocsPath)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/trips/:session", websocket.New(WebSocketHandler(deps)))
}
