package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
)

// TestHistory_MigrationsCreateSchema checks the migrated tables exist,
// through a plain database/sql connection independent of gorm.
func TestHistory_MigrationsCreateSchema(t *testing.T) {
	env := SetupTestEnvironment(t)
	if env == nil || env.DB == nil {
		t.Skip("Database not available")
	}

	db, err := sql.Open("postgres", env.PostgresURL)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"charging_sessions", "energy_snapshots", "security_events"} {
		var exists bool
		err := db.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table,
		).Scan(&exists)
		if err != nil {
			t.Fatalf("Failed to query schema for %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Expected table %s to exist after migrations", table)
		}
	}
}

// TestHistory_SessionRoundTrip persists completed sessions and reads them
// back newest-first through the repository.
func TestHistory_SessionRoundTrip(t *testing.T) {
	env := SetupTestEnvironment(t)
	if env == nil || env.DB == nil {
		t.Skip("Database not available")
	}

	CleanDatabase(t, env.DB)
	ctx := context.Background()

	started := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	sessions := []struct {
		txID    int
		station string
		stopped time.Time
	}{
		{1, "PY-SIM-0001", started.Add(30 * time.Minute)},
		{2, "PY-SIM-0002", started.Add(45 * time.Minute)},
		{3, "PY-SIM-0001", started.Add(60 * time.Minute)},
	}

	for _, s := range sessions {
		rec := &domain.SessionRecord{
			TransactionID: s.txID,
			StationID:     s.station,
			ConnectorID:   1,
			IDTag:         "ABC123",
			MeterStart:    0,
			MeterStop:     10000,
			EnergyKWh:     10.0,
			StartedAt:     started,
			StoppedAt:     s.stopped,
			StopReason:    "Local",
		}
		if err := env.History.SaveSession(ctx, rec); err != nil {
			t.Fatalf("Failed to save session %d: %v", s.txID, err)
		}
	}

	t.Run("NewestFirst", func(t *testing.T) {
		got, err := env.History.RecentSessions(ctx, 10)
		if err != nil {
			t.Fatalf("Failed to read sessions: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("Expected 3 sessions, got %d", len(got))
		}
		if got[0].TransactionID != 3 {
			t.Errorf("Expected transaction 3 first, got %d", got[0].TransactionID)
		}
		if got[0].StationID != "PY-SIM-0001" {
			t.Errorf("Expected station PY-SIM-0001, got %s", got[0].StationID)
		}
		if got[0].MeterStop != 10000 {
			t.Errorf("Expected meterStop 10000, got %d", got[0].MeterStop)
		}
		if got[0].StopReason != "Local" {
			t.Errorf("Expected stop reason Local, got %s", got[0].StopReason)
		}
	})

	t.Run("LimitApplies", func(t *testing.T) {
		got, err := env.History.RecentSessions(ctx, 2)
		if err != nil {
			t.Fatalf("Failed to read sessions: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("Expected 2 sessions, got %d", len(got))
		}
	})
}

// TestHistory_EnergySnapshots persists periodic fleet aggregates.
func TestHistory_EnergySnapshots(t *testing.T) {
	env := SetupTestEnvironment(t)
	if env == nil || env.DB == nil {
		t.Skip("Database not available")
	}

	CleanDatabase(t, env.DB)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		snap := &domain.EnergySnapshot{
			Stations:       5,
			Running:        4,
			TotalEnergyKWh: float64(i) * 1.5,
			TotalEarnings:  float64(i) * 30.0,
			PricePerKWh:    20.0,
			TakenAt:        time.Now().UTC(),
		}
		if err := env.History.SaveEnergySnapshot(ctx, snap); err != nil {
			t.Fatalf("Failed to save snapshot %d: %v", i, err)
		}
	}

	var count int64
	if err := env.DB.Table("energy_snapshots").Count(&count).Error; err != nil {
		t.Fatalf("Failed to count snapshots: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 snapshots, got %d", count)
	}

	var total float64
	err := env.DB.Table("energy_snapshots").
		Select("COALESCE(MAX(total_energy_kwh), 0)").Scan(&total).Error
	if err != nil {
		t.Fatalf("Failed to read max energy: %v", err)
	}
	if total != 3.0 {
		t.Errorf("Expected max energy 3.0, got %f", total)
	}
}

// TestHistory_SecurityEvents persists monitor events with their type and
// severity preserved.
func TestHistory_SecurityEvents(t *testing.T) {
	env := SetupTestEnvironment(t)
	if env == nil || env.DB == nil {
		t.Skip("Database not available")
	}

	CleanDatabase(t, env.DB)
	ctx := context.Background()

	events := []*domain.SecurityEvent{
		{
			StationID: "PY-SIM-0007",
			Type:      domain.SecurityAuthFailure,
			Severity:  domain.SeverityWarning,
			Message:   "Authorize denied for tag BAD001",
			Timestamp: time.Now().UTC(),
		},
		{
			StationID: "PY-SIM-0007",
			Type:      domain.SecurityHeartbeatFlood,
			Severity:  domain.SeverityCritical,
			Message:   "heartbeat_flood: heartbeat rate excessive (120/60 in 60s)",
			Timestamp: time.Now().UTC(),
		},
	}
	for _, ev := range events {
		if err := env.History.SaveSecurityEvent(ctx, ev); err != nil {
			t.Fatalf("Failed to save security event: %v", err)
		}
	}

	var row struct {
		EventType string
		Severity  string
	}
	err := env.DB.Table("security_events").
		Select("event_type, severity").
		Where("station_id = ? AND severity = ?", "PY-SIM-0007", "critical").
		Scan(&row).Error
	if err != nil {
		t.Fatalf("Failed to read security event: %v", err)
	}
	if row.EventType != "heartbeat_flood" {
		t.Errorf("Expected event type heartbeat_flood, got %s", row.EventType)
	}

	var count int64
	if err := env.DB.Table("security_events").Where("station_id = ?", "PY-SIM-0007").Count(&count).Error; err != nil {
		t.Fatalf("Failed to count security events: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events, got %d", count)
	}
}
