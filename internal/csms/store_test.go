package csms

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
)

type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return "", fmt.Errorf("key not found: %s", key)
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = fmt.Sprintf("%v", value)
	c.sets++
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeCache) Ping() error  { return nil }
func (c *fakeCache) Close() error { return nil }

type fakeHistory struct {
	mu       sync.Mutex
	sessions []domain.SessionRecord
}

func (h *fakeHistory) SaveSession(_ context.Context, rec *domain.SessionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = append(h.sessions, *rec)
	return nil
}

func (h *fakeHistory) SaveEnergySnapshot(context.Context, *domain.EnergySnapshot) error { return nil }
func (h *fakeHistory) SaveSecurityEvent(context.Context, *domain.SecurityEvent) error  { return nil }

func (h *fakeHistory) RecentSessions(context.Context, int) ([]domain.SessionRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.SessionRecord, len(h.sessions))
	copy(out, h.sessions)
	return out, nil
}

func (h *fakeHistory) Close() error { return nil }

func (h *fakeHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func startReq(connector int, tag string) v16.StartTransactionRequest {
	return v16.StartTransactionRequest{
		ConnectorID: connector,
		IdTag:       tag,
		MeterStart:  0,
		Timestamp:   v16.Timestamp(time.Now()),
	}
}

func TestStoreAllocatesMonotonicTransactionIDs(t *testing.T) {
	// Arrange
	st := NewStore(nil, nil, nil, nil)

	// Act
	first, _ := st.BeginTransaction("CP-1", startReq(1, "TAG"))
	second, _ := st.BeginTransaction("CP-2", startReq(1, "TAG"))
	third, _ := st.BeginTransaction("CP-1", startReq(2, "TAG"))

	// Assert
	if first.ID != 1 || second.ID != 2 || third.ID != 3 {
		t.Fatalf("expected ids 1,2,3, got %d,%d,%d", first.ID, second.ID, third.ID)
	}
}

func TestStoreFinishTransaction(t *testing.T) {
	// Arrange
	st := NewStore(nil, nil, nil, nil)
	rec, dup := st.BeginTransaction("CP-1", startReq(1, "ABC123"))
	if dup {
		t.Fatalf("expected no duplicate on first start")
	}

	// Act
	done, ok := st.FinishTransaction("CP-1", v16.StopTransactionRequest{
		TransactionID: rec.ID,
		MeterStop:     5000,
		Timestamp:     v16.Timestamp(time.Now()),
		Reason:        v16.ReasonLocal,
	})

	// Assert
	if !ok {
		t.Fatalf("expected the transaction to be known")
	}
	if done.Active {
		t.Fatalf("expected the record to be inactive after stop")
	}
	if done.MeterStop == nil || *done.MeterStop != 5000 {
		t.Fatalf("expected meterStop 5000, got %v", done.MeterStop)
	}
	if done.EnergyWh != 5000 {
		t.Fatalf("expected energy 5000 Wh, got %v", done.EnergyWh)
	}
	if done.StopReason != "Local" {
		t.Fatalf("expected reason Local, got %q", done.StopReason)
	}
	if _, active := st.ActiveTransaction("CP-1"); active {
		t.Fatalf("expected no active transaction after stop")
	}
}

func TestStoreFlagsDuplicateStart(t *testing.T) {
	// Arrange
	st := NewStore(nil, nil, nil, nil)
	st.BeginTransaction("CP-1", startReq(1, "TAG"))

	// Act
	_, dupSameConnector := st.BeginTransaction("CP-1", startReq(1, "TAG"))
	_, dupOtherConnector := st.BeginTransaction("CP-1", startReq(2, "TAG"))
	_, dupOtherStation := st.BeginTransaction("CP-2", startReq(1, "TAG"))

	// Assert
	if !dupSameConnector {
		t.Fatalf("expected a duplicate flag for the same connector")
	}
	if dupOtherConnector {
		t.Fatalf("expected no duplicate flag for another connector")
	}
	if dupOtherStation {
		t.Fatalf("expected no duplicate flag for another station")
	}
}

func TestStoreRecordsMeterAggregates(t *testing.T) {
	// Arrange
	st := NewStore(nil, nil, nil, nil)
	rec, _ := st.BeginTransaction("CP-1", startReq(1, "TAG"))
	txID := rec.ID

	// Act
	st.RecordMeterValues("CP-1", v16.MeterValuesRequest{
		ConnectorID:   1,
		TransactionID: &txID,
		MeterValue: []v16.MeterValue{{
			Timestamp: v16.Timestamp(time.Now()),
			SampledValue: []v16.SampledValue{
				{Value: "1250.5", Measurand: "Energy.Active.Import.Register", Unit: "Wh"},
				{Value: "7400.0", Measurand: "Power.Active.Import", Unit: "W"},
			},
		}},
	})

	// Assert
	list := st.Transactions("CP-1")
	if len(list) != 1 {
		t.Fatalf("expected one record, got %d", len(list))
	}
	if list[0].EnergyWh != 1250.5 {
		t.Fatalf("expected energy 1250.5, got %v", list[0].EnergyWh)
	}
	if list[0].PowerW != 7400 {
		t.Fatalf("expected power 7400, got %v", list[0].PowerW)
	}
}

func TestStoreIgnoresMeterValuesForUnknownTransaction(t *testing.T) {
	// Arrange
	st := NewStore(nil, nil, nil, nil)
	unknown := 99

	// Act
	st.RecordMeterValues("CP-1", v16.MeterValuesRequest{
		ConnectorID:   1,
		TransactionID: &unknown,
		MeterValue: []v16.MeterValue{{
			SampledValue: []v16.SampledValue{
				{Value: "100", Measurand: "Energy.Active.Import.Register"},
			},
		}},
	})

	// Assert
	if got := len(st.Transactions("")); got != 0 {
		t.Fatalf("expected no records, got %d", got)
	}
}

func TestStoreFinishUnknownTransaction(t *testing.T) {
	// Arrange
	st := NewStore(nil, nil, nil, nil)

	// Act
	_, ok := st.FinishTransaction("CP-1", v16.StopTransactionRequest{TransactionID: 42, MeterStop: 100})

	// Assert
	if ok {
		t.Fatalf("expected an unknown transaction to report false")
	}
}

func TestStoreAuthorizeBlocklist(t *testing.T) {
	// Arrange
	st := NewStore([]string{"BADTAG"}, nil, nil, nil)

	// Act / Assert
	if got := st.Authorize(context.Background(), "BADTAG"); got != v16.AuthorizationBlocked {
		t.Fatalf("expected Blocked, got %s", got)
	}
	if got := st.Authorize(context.Background(), "GOODTAG"); got != v16.AuthorizationAccepted {
		t.Fatalf("expected Accepted, got %s", got)
	}
}

func TestStoreAuthorizeUsesCache(t *testing.T) {
	// Arrange
	cache := newFakeCache()
	cache.data[authCachePrefix+"CACHED"] = string(v16.AuthorizationBlocked)
	st := NewStore(nil, cache, nil, nil)

	// Act
	cached := st.Authorize(context.Background(), "CACHED")
	fresh := st.Authorize(context.Background(), "FRESH")

	// Assert
	if cached != v16.AuthorizationBlocked {
		t.Fatalf("expected the cached verdict, got %s", cached)
	}
	if fresh != v16.AuthorizationAccepted {
		t.Fatalf("expected Accepted for an uncached tag, got %s", fresh)
	}
	cache.mu.Lock()
	stored := cache.data[authCachePrefix+"FRESH"]
	cache.mu.Unlock()
	if stored != string(v16.AuthorizationAccepted) {
		t.Fatalf("expected the fresh verdict to be cached, got %q", stored)
	}
}

func TestStoreRecordsStatus(t *testing.T) {
	// Arrange
	st := NewStore(nil, nil, nil, nil)

	// Act
	st.RecordStatus("CP-1", v16.StatusNotificationRequest{
		ConnectorID: 1,
		ErrorCode:   v16.ErrorNoError,
		Status:      v16.StatusCharging,
	})

	// Assert
	status, ok := st.StationStatus("CP-1")
	if !ok {
		t.Fatalf("expected a recorded status")
	}
	if status.Status != v16.StatusCharging || status.ConnectorID != 1 {
		t.Fatalf("unexpected status record: %+v", status)
	}
	if _, ok := st.StationStatus("CP-2"); ok {
		t.Fatalf("expected no status for an unknown station")
	}
}

func TestStorePersistsFinishedSessions(t *testing.T) {
	// Arrange
	history := &fakeHistory{}
	st := NewStore(nil, nil, history, nil)
	rec, _ := st.BeginTransaction("CP-1", startReq(1, "ABC123"))

	// Act
	st.FinishTransaction("CP-1", v16.StopTransactionRequest{
		TransactionID: rec.ID,
		MeterStop:     3000,
		Timestamp:     v16.Timestamp(time.Now()),
		Reason:        v16.ReasonRemote,
	})

	// Assert
	waitFor(t, 2*time.Second, "history write", func() bool { return history.count() == 1 })
	saved, _ := history.RecentSessions(context.Background(), 10)
	if saved[0].TransactionID != rec.ID || saved[0].StationID != "CP-1" {
		t.Fatalf("unexpected session record: %+v", saved[0])
	}
	if saved[0].EnergyKWh != 3.0 {
		t.Fatalf("expected 3.0 kWh, got %v", saved[0].EnergyKWh)
	}
	if saved[0].StopReason != "Remote" {
		t.Fatalf("expected reason Remote, got %q", saved[0].StopReason)
	}
}
