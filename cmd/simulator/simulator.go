package main

import (
	"context"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seu-repo/ocpp-swarm/internal/adapter/http/fiber/handlers"
	"github.com/seu-repo/ocpp-swarm/internal/adapter/http/fiber/middleware"
	wsadapter "github.com/seu-repo/ocpp-swarm/internal/adapter/websocket"
	"github.com/seu-repo/ocpp-swarm/internal/fleet"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
	"github.com/seu-repo/ocpp-swarm/pkg/config"
)

// ControlPlane bundles everything the simulator's HTTP surface needs:
// the fleet manager behind the REST API, the scenario runner, and the
// hub feeding /ws/updates.
type ControlPlane struct {
	cfg     *config.Config
	log     *zap.Logger
	manager *fleet.Manager
	runner  *fleet.Runner
	runCtx  context.Context
	hub     *wsadapter.Hub
	auth    ports.AuthService
	db      *gorm.DB
}

// App assembles the fiber application: middleware, health probes,
// metrics, the versioned API, and the WebSocket feed.
func (cp *ControlPlane) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cp.cfg.App.Name + "-simulator",
		ReadTimeout:           cp.cfg.HTTP.ReadTimeout,
		WriteTimeout:          cp.cfg.HTTP.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(cp.log),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	if cp.cfg.CORS.Enabled {
		app.Use(middleware.NewCORS(cp.cfg.CORS))
	}
	if cp.cfg.RateLimiting.Enabled {
		app.Use(middleware.RateLimit(cp.cfg.RateLimiting))
	}
	if cp.cfg.CircuitBreaker.Enabled {
		app.Use(middleware.CircuitBreaker(cp.cfg.CircuitBreaker, cp.log))
	}

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		if cp.db != nil {
			sqlDB, err := cp.db.DB()
			if err != nil || sqlDB.Ping() != nil {
				return c.Status(fiber.StatusServiceUnavailable).SendString("Database not ready")
			}
		}
		return c.SendString("Ready")
	})

	if cp.cfg.Metrics.Enabled {
		metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		app.Get(cp.cfg.Metrics.Path, func(c *fiber.Ctx) error {
			metricsHandler(c.Context())
			return nil
		})
	}

	v1 := app.Group("/api/v1")

	if cp.auth != nil {
		authHandler := handlers.NewAuthHandler(cp.auth, cp.log)
		v1.Post("/auth/login", authHandler.Login)
		v1.Get("/auth/me", middleware.AuthRequired(cp.auth), authHandler.Me)
	}

	api := v1.Group("")
	if cp.auth != nil {
		api.Use(middleware.AuthRequired(cp.auth))
	}

	fleetHandler := handlers.NewFleetHandler(cp.manager, cp.log)
	api.Get("/stations", fleetHandler.ListStations)
	api.Get("/stations/:id", fleetHandler.GetStation)
	api.Post("/stations/:id/start", fleetHandler.StartStation)
	api.Post("/stations/:id/stop", fleetHandler.StopStation)
	api.Delete("/stations/:id", fleetHandler.RemoveStation)
	api.Get("/stations/:id/logs", fleetHandler.StationLogs)
	api.Put("/stations/:id/battery", fleetHandler.SetBattery)
	api.Post("/fleet/scale", fleetHandler.Scale)
	api.Post("/fleet/start", fleetHandler.StartAll)
	api.Post("/fleet/stop", fleetHandler.StopAll)
	api.Get("/fleet/price", fleetHandler.GetPrice)
	api.Put("/fleet/price", fleetHandler.SetPrice)
	api.Get("/fleet/totals", fleetHandler.Totals)
	api.Get("/profiles", fleetHandler.Profiles)

	// Smart-charging calls ride through the fleet manager to the CSMS
	// admin API, so the breaker in the client shields the dashboard.
	chargingHandler := handlers.NewChargingHandler(cp.manager, cp.log)
	api.Post("/stations/:id/charging-profiles", chargingHandler.SendProfile)
	api.Delete("/stations/:id/charging-profiles", chargingHandler.ClearProfile)
	api.Get("/stations/:id/composite-schedule", chargingHandler.CompositeSchedule)
	api.Post("/stations/:id/test-profile", chargingHandler.TestProfile)

	faultHandler := handlers.NewFaultHandler(cp.manager, cp.log)
	api.Get("/faults", faultHandler.ListRules)
	api.Post("/faults", faultHandler.AddRule)
	api.Delete("/faults/:id", faultHandler.RemoveRule)
	api.Post("/stations/:id/faults", faultHandler.Inject)

	scenarioHandler := handlers.NewScenarioHandler(cp.runner, cp.runCtx, cp.log)
	api.Post("/scenario/load", scenarioHandler.Load)
	api.Post("/scenario/start", scenarioHandler.Start)
	api.Post("/scenario/stop", scenarioHandler.Stop)
	api.Get("/scenario", scenarioHandler.Status)

	// The live feed stays open; it is read-only and carries no secrets.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/updates", websocket.New(func(c *websocket.Conn) {
		cp.hub.ServeClient(c)
	}))

	return app
}
