// The server binary is the central system (CSMS): an OCPP 1.6J WebSocket
// endpoint for stations, an admin REST API for operators, and the security
// monitor watching the message flow.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/seu-repo/ocpp-swarm/internal/adapter/cache"
	grpcserver "github.com/seu-repo/ocpp-swarm/internal/adapter/grpc/server"
	"github.com/seu-repo/ocpp-swarm/internal/adapter/http/fiber/handlers"
	"github.com/seu-repo/ocpp-swarm/internal/adapter/http/fiber/middleware"
	"github.com/seu-repo/ocpp-swarm/internal/adapter/queue"
	"github.com/seu-repo/ocpp-swarm/internal/adapter/storage"
	"github.com/seu-repo/ocpp-swarm/internal/adapter/storage/postgres"
	"github.com/seu-repo/ocpp-swarm/internal/adapter/vault"
	"github.com/seu-repo/ocpp-swarm/internal/csms"
	"github.com/seu-repo/ocpp-swarm/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
	"github.com/seu-repo/ocpp-swarm/internal/security"
	"github.com/seu-repo/ocpp-swarm/internal/service/alerts"
	"github.com/seu-repo/ocpp-swarm/internal/service/auth"
	"github.com/seu-repo/ocpp-swarm/pkg/config"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// 2. Initialize Logger
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting CSMS",
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	// 3. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.Tracing.Enabled {
		tracerProvider, err := telemetry.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 4. Resolve Secrets (Vault)
	if cfg.Vault.Enabled {
		secrets, err := vault.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token)
		if err != nil {
			logger.Fatal("Failed to connect to Vault", zap.Error(err))
		}
		if dsn, err := secrets.GetDatabaseDSN(); err == nil && dsn != "" {
			cfg.Database.URL = dsn
		} else if err != nil {
			logger.Warn("Vault database DSN unavailable, using config value", zap.Error(err))
		}
		if key, err := secrets.GetSendGridKey(); err == nil && key != "" {
			cfg.Alerts.SendGridKey = key
		}
	}

	// 5. Initialize Cache (Redis or in-process)
	var cacheAdapter ports.Cache
	if cfg.Redis.Enabled {
		cacheAdapter, err = cache.NewRedisCache(cfg.Redis.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
	} else {
		cacheAdapter = cache.NewLocalCache(5*time.Minute, logger)
	}
	defer cacheAdapter.Close()

	// 6. Initialize Message Queue
	messageQueue, err := queue.New(cfg.Queue.Provider, cfg.Queue.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to message queue", zap.Error(err))
	}
	defer messageQueue.Close()

	// 7. Initialize History Repository (PostgreSQL or no-op)
	var history ports.HistoryRepository
	var db *gorm.DB
	if cfg.Database.Enabled {
		db, err = postgres.NewConnection(cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer postgres.Close(db)
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		history = postgres.NewHistoryRepository(db, logger)
	} else {
		history = storage.NewNoopHistory()
	}

	// 8. Initialize Alert Delivery
	alertSender, err := alerts.NewService(alerts.Config{
		Provider:    cfg.Alerts.Provider,
		From:        cfg.Alerts.From,
		To:          cfg.Alerts.To,
		SendGridKey: cfg.Alerts.SendGridKey,
		SMTPAddr:    cfg.Alerts.SMTPAddr,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize alerts", zap.Error(err))
	}

	// 9. Initialize Security Monitor
	rules := security.DefaultRules()
	if cfg.Security.RulesPath != "" {
		rules, err = security.LoadRules(cfg.Security.RulesPath)
		if err != nil {
			logger.Fatal("Failed to load security rules", zap.Error(err))
		}
	}
	monitor := security.NewMonitor(security.Config{
		RingSize: cfg.Security.RingSize,
		Rules:    rules,
		History:  history,
		Alerts:   alertSender,
		Queue:    messageQueue,
		Logger:   logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Run(ctx)

	// 10. Initialize Central System
	server := csms.NewServer(csms.Config{
		HeartbeatInterval: cfg.OCPP.HeartbeatInterval,
		CallTimeout:       cfg.OCPP.CallTimeout,
		ReplaceExisting:   cfg.OCPP.ReplaceExisting,
		BlockedTags:       cfg.OCPP.BlockedTags,
		AuthCacheTTL:      cfg.CSMS.AuthCacheTTL,
		Logger:            logger,
		Cache:             cacheAdapter,
		History:           history,
		Queue:             messageQueue,
		Security:          monitor,
	})

	// 11. Start OCPP WebSocket Listener
	ocppMux := http.NewServeMux()
	ocppMux.HandleFunc("/ocpp/", server.HandleOCPP)
	ocppSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.OCPP.Port),
		Handler: ocppMux,
	}
	go func() {
		logger.Info("Starting OCPP WebSocket listener", zap.Int("port", cfg.OCPP.Port))
		if err := ocppSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("OCPP listener failed", zap.Error(err))
		}
	}()

	// 12. Initialize Auth Service (optional)
	var authService ports.AuthService
	if cfg.Auth.Enabled {
		keys := make([]auth.APIKey, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			keys = append(keys, auth.APIKey{Name: k.Name, Hash: k.Hash})
		}
		authService = auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer, keys, logger)
	}

	// 13. Initialize Admin API (Fiber)
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name + "-csms",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	if cfg.CORS.Enabled {
		app.Use(middleware.NewCORS(cfg.CORS))
	}
	if cfg.RateLimiting.Enabled {
		app.Use(middleware.RateLimit(cfg.RateLimiting))
	}
	if cfg.CircuitBreaker.Enabled {
		app.Use(middleware.CircuitBreaker(cfg.CircuitBreaker, logger))
	}

	// Health Check Endpoints
	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		if err := cacheAdapter.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Cache not ready")
		}
		if db != nil {
			sqlDB, err := db.DB()
			if err != nil || sqlDB.Ping() != nil {
				return c.Status(fiber.StatusServiceUnavailable).SendString("Database not ready")
			}
		}
		return c.SendString("Ready")
	})

	// Metrics endpoint for Prometheus
	if cfg.Metrics.Enabled {
		metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		app.Get(cfg.Metrics.Path, func(c *fiber.Ctx) error {
			metricsHandler(c.Context())
			return nil
		})
	}

	// API v1 Routes
	v1 := app.Group("/api/v1")

	if authService != nil {
		authHandler := handlers.NewAuthHandler(authService, logger)
		v1.Post("/auth/login", authHandler.Login)
		v1.Get("/auth/me", middleware.AuthRequired(authService), authHandler.Me)
	}

	admin := v1.Group("/csms")
	if authService != nil {
		admin.Use(middleware.AuthRequired(authService))
	}

	csmsHandler := handlers.NewCSMSHandler(server, history, logger)
	admin.Get("/stations", csmsHandler.ListStations)
	admin.Get("/stations/:id", csmsHandler.GetStation)
	admin.Get("/stations/:id/transactions", csmsHandler.Transactions)
	admin.Post("/stations/:id/remote-start", csmsHandler.RemoteStart)
	admin.Post("/stations/:id/remote-stop", csmsHandler.RemoteStop)
	admin.Post("/stations/:id/reset", csmsHandler.Reset)
	admin.Post("/stations/:id/availability", csmsHandler.ChangeAvailability)
	admin.Post("/stations/:id/trigger", csmsHandler.TriggerMessage)
	admin.Get("/sessions", csmsHandler.RecentSessions)

	chargingHandler := handlers.NewChargingHandler(server, logger)
	admin.Post("/stations/:id/charging-profiles", chargingHandler.SendProfile)
	admin.Delete("/stations/:id/charging-profiles", chargingHandler.ClearProfile)
	admin.Get("/stations/:id/composite-schedule", chargingHandler.CompositeSchedule)
	admin.Post("/stations/:id/test-profile", chargingHandler.TestProfile)

	securityHandler := handlers.NewSecurityHandler(monitor, logger)
	admin.Get("/security/events", securityHandler.Events)
	admin.Delete("/security/events", securityHandler.ClearEvents)
	admin.Get("/security/stats", securityHandler.Stats)
	admin.Get("/security/flow", securityHandler.Flow)
	admin.Get("/security/rules", securityHandler.Rules)
	admin.Put("/security/rules", securityHandler.ReplaceRules)

	// 14. Initialize gRPC Server (ops plane, optional)
	var grpcSrv *grpcserver.GRPCServer
	if cfg.GRPC.Enabled {
		grpcSrv = grpcserver.NewGRPCServer(authService, logger)
		go func() {
			logger.Info("Starting gRPC server", zap.Int("port", cfg.GRPC.Port))
			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
			if err != nil {
				logger.Fatal("Failed to listen for gRPC", zap.Error(err))
			}
			grpcSrv.SetServing("", true)
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Fatal("gRPC server failed", zap.Error(err))
			}
		}()
	}

	// 15. Start Admin HTTP Server
	go func() {
		logger.Info("Starting admin API", zap.Int("port", cfg.CSMS.HTTPPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.CSMS.HTTPPort)); err != nil {
			logger.Fatal("Admin API failed", zap.Error(err))
		}
	}()

	// 16. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down CSMS...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Admin API forced to shutdown", zap.Error(err))
	}
	if err := ocppSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("OCPP listener forced to shutdown", zap.Error(err))
	}
	server.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.Stop()
	}

	logger.Info("CSMS exited gracefully")
}

// newLogger builds the zap logger described by the logging section:
// JSON at the configured level by default, console format for local runs.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.Level); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zapCfg.Build()
}
