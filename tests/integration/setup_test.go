package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seu-repo/ocpp-swarm/internal/adapter/cache"
	"github.com/seu-repo/ocpp-swarm/internal/adapter/storage/postgres"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

// TestEnv holds the containerized backends shared by the integration tests.
type TestEnv struct {
	DB                *gorm.DB
	PostgresURL       string
	History           ports.HistoryRepository
	Cache             ports.Cache
	PostgresContainer testcontainers.Container
	RedisContainer    testcontainers.Container
	Logger            *zap.Logger
	ctx               context.Context
}

var testEnv *TestEnv

func TestMain(m *testing.M) {
	code := m.Run()
	teardown()
	os.Exit(code)
}

// SetupTestEnvironment initializes the test environment. It returns nil
// when no backends are reachable, and callers skip.
func SetupTestEnvironment(t *testing.T) *TestEnv {
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Check if using external services (CI environment)
	if os.Getenv("DATABASE_URL") != "" {
		return setupExternalServices(t, ctx)
	}

	// Use testcontainers for local testing
	return setupContainers(t, ctx)
}

func setupExternalServices(t *testing.T, ctx context.Context) *TestEnv {
	logger, _ := zap.NewDevelopment()

	db, err := postgres.NewConnection(os.Getenv("DATABASE_URL"), logger)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	if err := postgres.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	redisCache, err := cache.NewRedisCache(redisURL, logger)
	if err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	testEnv = &TestEnv{
		DB:          db,
		PostgresURL: os.Getenv("DATABASE_URL"),
		History:     postgres.NewHistoryRepository(db, logger),
		Cache:       redisCache,
		Logger:      logger,
		ctx:         ctx,
	}
	return testEnv
}

func setupContainers(t *testing.T, ctx context.Context) *TestEnv {
	logger, _ := zap.NewDevelopment()

	// Start Postgres container
	postgresContainer, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		tcpostgres.WithDatabase("ocppsim_test"),
		tcpostgres.WithUsername("ocppsim"),
		tcpostgres.WithPassword("ocppsim_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Logf("Failed to start postgres container: %v", err)
		return nil
	}

	pgHost, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get postgres host: %v", err)
	}
	pgPort, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get postgres port: %v", err)
	}
	pgURL := fmt.Sprintf("postgres://ocppsim:ocppsim_test@%s:%s/ocppsim_test?sslmode=disable", pgHost, pgPort.Port())

	db, err := postgres.NewConnection(pgURL, logger)
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	if err := postgres.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	// Start Redis container
	redisContainer, err := tcredis.RunContainer(ctx,
		testcontainers.WithImage("redis:7-alpine"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		postgresContainer.Terminate(ctx)
		t.Logf("Failed to start redis container: %v", err)
		return nil
	}

	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get redis host: %v", err)
	}
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get redis port: %v", err)
	}

	redisCache, err := cache.NewRedisCache(fmt.Sprintf("redis://%s:%s/0", redisHost, redisPort.Port()), logger)
	if err != nil {
		t.Fatalf("Failed to connect to redis: %v", err)
	}

	testEnv = &TestEnv{
		DB:                db,
		PostgresURL:       pgURL,
		History:           postgres.NewHistoryRepository(db, logger),
		Cache:             redisCache,
		PostgresContainer: postgresContainer,
		RedisContainer:    redisContainer,
		Logger:            logger,
		ctx:               ctx,
	}
	return testEnv
}

func teardown() {
	if testEnv == nil {
		return
	}
	ctx := context.Background()

	if testEnv.Cache != nil {
		testEnv.Cache.Close()
	}
	if testEnv.DB != nil {
		postgres.Close(testEnv.DB)
	}
	if testEnv.PostgresContainer != nil {
		testEnv.PostgresContainer.Terminate(ctx)
	}
	if testEnv.RedisContainer != nil {
		testEnv.RedisContainer.Terminate(ctx)
	}
	testEnv = nil
}

// CleanDatabase truncates the history tables between tests.
func CleanDatabase(t *testing.T, db *gorm.DB) {
	tables := []string{
		"charging_sessions",
		"energy_snapshots",
		"security_events",
	}
	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s", table)).Error; err != nil {
			t.Logf("Failed to truncate %s: %v", table, err)
		}
	}
}
