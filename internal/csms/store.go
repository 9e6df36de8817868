// Package csms implements the central-system side of the OCPP 1.6J link:
// a WebSocket endpoint that hosts one session per station, in-memory
// transaction bookkeeping, and the smart-charging operations the control
// plane drives.
package csms

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

const (
	authCachePrefix     = "ocpp:auth:"
	defaultAuthCacheTTL = 5 * time.Minute
	cacheOpTimeout      = 2 * time.Second
	historyTimeout      = 5 * time.Second
)

// TransactionRecord is the CSMS-side view of one charging transaction.
type TransactionRecord struct {
	ID          int        `json:"transaction_id"`
	StationID   string     `json:"station_id"`
	ConnectorID int        `json:"connector_id"`
	IDTag       string     `json:"id_tag"`
	MeterStart  int        `json:"meter_start"`
	MeterStop   *int       `json:"meter_stop,omitempty"`
	EnergyWh    float64    `json:"energy_wh"`
	PowerW      float64    `json:"power_w"`
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
	StopReason  string     `json:"stop_reason,omitempty"`
	Active      bool       `json:"active"`
}

// StationStatus is the latest StatusNotification received from a station.
type StationStatus struct {
	ConnectorID int                      `json:"connector_id"`
	Status      v16.ChargePointStatus    `json:"status"`
	ErrorCode   v16.ChargePointErrorCode `json:"error_code"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// Store keeps the central system's in-memory state: the transaction-id
// allocator, per-transaction records, and last-reported station status.
// The blocklist is fixed at construction; authorization verdicts go
// through the cache when one is configured.
type Store struct {
	log     *zap.Logger
	cache   ports.Cache
	history ports.HistoryRepository
	blocked map[string]struct{}
	authTTL time.Duration

	txSeq atomic.Int64

	mu           sync.RWMutex
	transactions map[int]*TransactionRecord
	status       map[string]StationStatus
}

// NewStore creates an empty store. cache and history may be nil.
func NewStore(blockedTags []string, cache ports.Cache, history ports.HistoryRepository, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	blocked := make(map[string]struct{}, len(blockedTags))
	for _, tag := range blockedTags {
		blocked[tag] = struct{}{}
	}
	return &Store{
		log:          log,
		cache:        cache,
		history:      history,
		blocked:      blocked,
		authTTL:      defaultAuthCacheTTL,
		transactions: make(map[int]*TransactionRecord),
		status:       make(map[string]StationStatus),
	}
}

// Authorize resolves an idTag against the blocklist, consulting the
// authorization cache first when one is configured.
func (st *Store) Authorize(ctx context.Context, idTag string) v16.AuthorizationStatus {
	if st.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
		defer cancel()
		if v, err := st.cache.Get(cctx, authCachePrefix+idTag); err == nil && v != "" {
			return v16.AuthorizationStatus(v)
		}
	}

	status := v16.AuthorizationAccepted
	if _, ok := st.blocked[idTag]; ok {
		status = v16.AuthorizationBlocked
	}

	if st.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
		defer cancel()
		if err := st.cache.Set(cctx, authCachePrefix+idTag, string(status), st.authTTL); err != nil {
			st.log.Debug("authorization cache write failed", zap.String("id_tag", idTag), zap.Error(err))
		}
	}
	return status
}

// Blocked reports whether an idTag is on the configured blocklist.
func (st *Store) Blocked(idTag string) bool {
	_, ok := st.blocked[idTag]
	return ok
}

// BeginTransaction allocates the next transaction id and records the new
// session. The second return value reports whether the station already had
// an active transaction on the same connector.
func (st *Store) BeginTransaction(stationID string, req v16.StartTransactionRequest) (TransactionRecord, bool) {
	startedAt := time.Now().UTC()
	if t, err := v16.ParseTimestamp(req.Timestamp); err == nil {
		startedAt = t
	}

	rec := &TransactionRecord{
		ID:          int(st.txSeq.Add(1)),
		StationID:   stationID,
		ConnectorID: req.ConnectorID,
		IDTag:       req.IdTag,
		MeterStart:  req.MeterStart,
		StartedAt:   startedAt,
		Active:      true,
	}

	st.mu.Lock()
	duplicate := false
	for _, existing := range st.transactions {
		if existing.Active && existing.StationID == stationID && existing.ConnectorID == req.ConnectorID {
			duplicate = true
			break
		}
	}
	st.transactions[rec.ID] = rec
	st.mu.Unlock()

	return *rec, duplicate
}

// RecordMeterValues folds a MeterValues payload into the transaction's
// aggregates. Unknown transactions are ignored.
func (st *Store) RecordMeterValues(stationID string, req v16.MeterValuesRequest) {
	if req.TransactionID == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	rec, ok := st.transactions[*req.TransactionID]
	if !ok || rec.StationID != stationID {
		return
	}
	for _, mv := range req.MeterValue {
		for _, sv := range mv.SampledValue {
			value, err := strconv.ParseFloat(sv.Value, 64)
			if err != nil {
				continue
			}
			switch sv.Measurand {
			case "Energy.Active.Import.Register":
				rec.EnergyWh = value
			case "Power.Active.Import":
				rec.PowerW = value
			}
		}
	}
}

// FinishTransaction finalizes a session record and hands it to the history
// repository when one is configured. Returns false for unknown ids.
func (st *Store) FinishTransaction(stationID string, req v16.StopTransactionRequest) (TransactionRecord, bool) {
	stoppedAt := time.Now().UTC()
	if t, err := v16.ParseTimestamp(req.Timestamp); err == nil {
		stoppedAt = t
	}

	st.mu.Lock()
	rec, ok := st.transactions[req.TransactionID]
	if !ok || rec.StationID != stationID {
		st.mu.Unlock()
		return TransactionRecord{}, false
	}
	meterStop := req.MeterStop
	rec.MeterStop = &meterStop
	rec.StoppedAt = &stoppedAt
	rec.StopReason = string(req.Reason)
	rec.EnergyWh = float64(req.MeterStop - rec.MeterStart)
	rec.PowerW = 0
	rec.Active = false
	snapshot := *rec
	st.mu.Unlock()

	if st.history != nil {
		go st.persistSession(snapshot)
	}
	return snapshot, true
}

func (st *Store) persistSession(rec TransactionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	session := &domain.SessionRecord{
		TransactionID: rec.ID,
		StationID:     rec.StationID,
		ConnectorID:   rec.ConnectorID,
		IDTag:         rec.IDTag,
		MeterStart:    rec.MeterStart,
		EnergyKWh:     rec.EnergyWh / 1000,
		StartedAt:     rec.StartedAt,
		StopReason:    rec.StopReason,
	}
	if rec.MeterStop != nil {
		session.MeterStop = *rec.MeterStop
	}
	if rec.StoppedAt != nil {
		session.StoppedAt = *rec.StoppedAt
	}
	if err := st.history.SaveSession(ctx, session); err != nil {
		st.log.Warn("session history write failed",
			zap.Int("transaction_id", rec.ID),
			zap.String("station_id", rec.StationID),
			zap.Error(err),
		)
	}
}

// RecordStatus stores the latest StatusNotification for a station.
func (st *Store) RecordStatus(stationID string, req v16.StatusNotificationRequest) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.status[stationID] = StationStatus{
		ConnectorID: req.ConnectorID,
		Status:      req.Status,
		ErrorCode:   req.ErrorCode,
		UpdatedAt:   time.Now().UTC(),
	}
}

// StationStatus returns the last status a station reported.
func (st *Store) StationStatus(stationID string) (StationStatus, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.status[stationID]
	return s, ok
}

// Transactions returns copies of all records, ordered by transaction id.
// An empty stationID matches every station.
func (st *Store) Transactions(stationID string) []TransactionRecord {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]TransactionRecord, 0, len(st.transactions))
	for _, rec := range st.transactions {
		if stationID != "" && rec.StationID != stationID {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveTransaction returns the station's open transaction, if any.
func (st *Store) ActiveTransaction(stationID string) (TransactionRecord, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	for _, rec := range st.transactions {
		if rec.Active && rec.StationID == stationID {
			return *rec, true
		}
	}
	return TransactionRecord{}, false
}
