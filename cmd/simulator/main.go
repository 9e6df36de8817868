// The simulator binary runs the station fleet: virtual charge points
// speaking OCPP 1.6J against a CSMS, plus the control-plane API and the
// live dashboard feed.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/seu-repo/ocpp-swarm/internal/adapter/csmsclient"
	"github.com/seu-repo/ocpp-swarm/internal/adapter/storage"
	"github.com/seu-repo/ocpp-swarm/internal/adapter/storage/postgres"
	wsadapter "github.com/seu-repo/ocpp-swarm/internal/adapter/websocket"
	"github.com/seu-repo/ocpp-swarm/internal/fleet"
	"github.com/seu-repo/ocpp-swarm/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
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

	logger.Info("Starting simulator",
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("csms_url", cfg.Simulator.CSMSURL),
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

	// 4. Initialize History Sink (PostgreSQL or no-op)
	var history ports.HistoryRepository
	var db *gorm.DB
	if cfg.Fleet.HistoryEnabled && cfg.Database.Enabled {
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

	// 5. Initialize Smart-Charging Backend (CSMS admin client)
	csmsClient := csmsclient.New(csmsclient.Config{
		BaseURL:          cfg.Simulator.CSMSAdminURL,
		AuthToken:        cfg.Simulator.CSMSAdminToken,
		Timeout:          cfg.Simulator.CallTimeout,
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
		Interval:         cfg.CircuitBreaker.Interval,
		BreakerTimeout:   cfg.CircuitBreaker.Timeout,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
	}, logger)

	// 6. Initialize Fleet Manager
	manager := fleet.NewManager(fleet.Config{
		CSMSURL:      cfg.Simulator.CSMSURL,
		InitialPrice: cfg.Fleet.InitialPrice,
		CallTimeout:  cfg.Simulator.CallTimeout,
		Voltage:      cfg.Simulator.Voltage,
		Charging:     csmsClient,
		History:      history,
		Logger:       logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Run(ctx)

	// 7. Initialize Scenario Runner
	runner := fleet.NewRunner(manager, logger)
	if cfg.Fleet.ScenarioPath != "" {
		if _, err := runner.Load(cfg.Fleet.ScenarioPath); err != nil {
			logger.Fatal("Failed to load scenario", zap.String("path", cfg.Fleet.ScenarioPath), zap.Error(err))
		}
		logger.Info("Scenario loaded", zap.String("path", cfg.Fleet.ScenarioPath))
	}

	// 8. Initialize Live Feed (WebSocket hub + publisher)
	hub := wsadapter.NewHub()
	go hub.Run(ctx)
	publisher := wsadapter.NewPublisher(hub, manager, cfg.Fleet.FeedInterval)
	go publisher.Run(ctx)

	// 9. Initialize Auth Service (optional)
	var authService ports.AuthService
	if cfg.Auth.Enabled {
		keys := make([]auth.APIKey, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			keys = append(keys, auth.APIKey{Name: k.Name, Hash: k.Hash})
		}
		authService = auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer, keys, logger)
	}

	// 10. Assemble Control Plane (Fiber)
	cp := &ControlPlane{
		cfg:     cfg,
		log:     logger,
		manager: manager,
		runner:  runner,
		runCtx:  ctx,
		hub:     hub,
		auth:    authService,
		db:      db,
	}
	app := cp.App()

	// 11. Boot Initial Fleet
	if cfg.Simulator.Stations > 0 {
		started, err := manager.Scale(cfg.Simulator.Stations, cfg.Simulator.Profile)
		if err != nil {
			logger.Fatal("Failed to start initial fleet", zap.Error(err))
		}
		logger.Info("Initial fleet started",
			zap.Int("stations", started),
			zap.String("profile", cfg.Simulator.Profile),
		)
	}

	// 12. Start HTTP Server
	go func() {
		logger.Info("Starting control plane", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("Control plane failed", zap.Error(err))
		}
	}()

	// 13. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down simulator...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Control plane forced to shutdown", zap.Error(err))
	}
	runner.Stop()
	manager.Shutdown()

	logger.Info("Simulator exited gracefully")
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
