package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/adapter/cache"
	"github.com/seu-repo/ocpp-swarm/internal/csms"
	"github.com/seu-repo/ocpp-swarm/internal/fleet"
	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

// startSwarm wires a real fleet manager against a real CSMS over
// websockets, the same path the two binaries take. No containers needed.
func startSwarm(t *testing.T, stations int) (*fleet.Manager, *csms.Server) {
	t.Helper()
	logger := zap.NewNop()

	server := csms.NewServer(csms.Config{
		HeartbeatInterval: time.Second,
		CallTimeout:       5 * time.Second,
		Logger:            logger,
		Cache:             cache.NewLocalCache(time.Minute, logger),
	})
	hs := httptest.NewServer(http.HandlerFunc(server.HandleOCPP))
	t.Cleanup(hs.Close)

	manager := fleet.NewManager(fleet.Config{
		CSMSURL:     "ws" + strings.TrimPrefix(hs.URL, "http") + "/ocpp",
		CallTimeout: 5 * time.Second,
		Charging:    server,
		Logger:      logger,
	})
	t.Cleanup(manager.Shutdown)

	if got, err := manager.Scale(stations, "default"); err != nil || got != stations {
		t.Fatalf("Scale(%d) = %d, %v", stations, got, err)
	}
	return manager, server
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// TestSwarm_StationsRegisterWithCSMS scales a small fleet and watches every
// agent boot against the central system.
func TestSwarm_StationsRegisterWithCSMS(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping swarm test in short mode")
	}

	manager, server := startSwarm(t, 3)

	waitFor(t, 15*time.Second, "3 connected stations", func() bool {
		return len(server.Stations()) == 3
	})

	seen := make(map[string]bool)
	for _, info := range server.Stations() {
		seen[info.StationID] = true
	}
	for _, id := range []string{"PY-SIM-0001", "PY-SIM-0002", "PY-SIM-0003"} {
		if !seen[id] {
			t.Errorf("Station %s not registered with CSMS", id)
		}
	}

	for _, snap := range manager.Snapshots() {
		if !snap.Running {
			t.Errorf("Station %s should be running", snap.ID)
		}
	}
}

// TestSwarm_SmartChargingThroughManager drives a SetChargingProfile /
// ClearChargingProfile round trip through the manager facade, across the
// CSMS and down into the station's profile manager.
func TestSwarm_SmartChargingThroughManager(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping swarm test in short mode")
	}

	manager, server := startSwarm(t, 1)

	waitFor(t, 15*time.Second, "station connection", func() bool {
		return len(server.Stations()) == 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	profile := v16.ChargingProfile{
		ChargingProfileID:      99,
		StackLevel:             0,
		ChargingProfilePurpose: v16.PurposeChargePointMax,
		ChargingProfileKind:    v16.KindAbsolute,
		ChargingSchedule: v16.ChargingSchedule{
			ChargingRateUnit: v16.RateUnitWatts,
			ChargingSchedulePeriod: []v16.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 7400},
			},
		},
	}

	sent, err := manager.SendChargingProfile(ctx, "PY-SIM-0001", 1, profile)
	if err != nil {
		t.Fatalf("SendChargingProfile failed: %v", err)
	}
	if sent.Status != string(v16.ProfileAccepted) {
		t.Fatalf("Expected Accepted, got %s", sent.Status)
	}
	if sent.ProfileID != 99 {
		t.Errorf("Expected profile id 99, got %d", sent.ProfileID)
	}

	sched, err := manager.GetCompositeSchedule(ctx, "PY-SIM-0001", 1, 300, v16.RateUnitWatts)
	if err != nil {
		t.Fatalf("GetCompositeSchedule failed: %v", err)
	}
	if sched.Schedule == nil || len(sched.Schedule.ChargingSchedulePeriod) == 0 {
		t.Fatal("Expected a non-empty composite schedule")
	}
	if got := sched.Schedule.ChargingSchedulePeriod[0].Limit; got != 7400 {
		t.Errorf("Expected composite limit 7400, got %f", got)
	}

	pid := 99
	cleared, err := manager.ClearChargingProfile(ctx, "PY-SIM-0001", ports.ClearFilters{ProfileID: &pid})
	if err != nil {
		t.Fatalf("ClearChargingProfile failed: %v", err)
	}
	if cleared.Status != string(v16.ClearAccepted) {
		t.Errorf("Expected Accepted, got %s", cleared.Status)
	}
}

// TestSwarm_ScaleDownDisconnects shrinks the fleet and watches the CSMS
// registry follow.
func TestSwarm_ScaleDownDisconnects(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping swarm test in short mode")
	}

	manager, server := startSwarm(t, 2)

	waitFor(t, 15*time.Second, "2 connected stations", func() bool {
		return len(server.Stations()) == 2
	})

	if got, err := manager.Scale(1, ""); err != nil || got != 1 {
		t.Fatalf("Scale(1) = %d, %v", got, err)
	}

	waitFor(t, 10*time.Second, "scale-down disconnect", func() bool {
		return len(server.Stations()) == 1
	})
	if server.Stations()[0].StationID != "PY-SIM-0001" {
		t.Errorf("Expected PY-SIM-0001 to survive scale-down, got %s", server.Stations()[0].StationID)
	}
}
