package csms

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

const (
	defaultHeartbeatInterval = 60 * time.Second
	defaultCallTimeout       = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:      func(r *http.Request) bool { return true },
	Subprotocols:     []string{v16.Subprotocol},
	HandshakeTimeout: 10 * time.Second,
}

// Config assembles a central system.
type Config struct {
	// HeartbeatInterval is handed to stations in the BootNotification reply.
	HeartbeatInterval time.Duration
	// CallTimeout bounds CSMS-originated calls. Zero keeps the default.
	CallTimeout time.Duration
	// ReplaceExisting lets a reconnecting station displace its old session
	// instead of being rejected with 409.
	ReplaceExisting bool
	// BlockedTags lists idTags that fail authorization.
	BlockedTags []string
	// AuthCacheTTL bounds how long authorization verdicts stay cached.
	// Zero keeps the default of five minutes.
	AuthCacheTTL time.Duration

	Logger   *zap.Logger
	Cache    ports.Cache
	History  ports.HistoryRepository
	Queue    ports.MessageQueue
	Security SecurityRecorder
}

// Server is the central system: one WebSocket endpoint, a session per
// station, and the smart-charging operations layered on top.
type Server struct {
	cfg      Config
	log      *zap.Logger
	store    *Store
	registry *Registry
	security SecurityRecorder
	queue    ports.MessageQueue
}

// NewServer wires a central system from its configuration.
func NewServer(cfg Config) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	store := NewStore(cfg.BlockedTags, cfg.Cache, cfg.History, log)
	if cfg.AuthCacheTTL > 0 {
		store.authTTL = cfg.AuthCacheTTL
	}
	return &Server{
		cfg:      cfg,
		log:      log,
		store:    store,
		registry: NewRegistry(),
		security: cfg.Security,
		queue:    cfg.Queue,
	}
}

// Store exposes the transaction bookkeeping, for the admin surface.
func (srv *Server) Store() *Store { return srv.store }

// Registry exposes the session registry.
func (srv *Server) Registry() *Registry { return srv.registry }

// Stations lists the connected stations with their last known status.
func (srv *Server) Stations() []SessionInfo {
	sessions := srv.registry.All()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		info := s.Info()
		if status, ok := srv.store.StationStatus(s.StationID()); ok {
			info.Status = &status
		}
		out = append(out, info)
	}
	return out
}

// HandleOCPP upgrades one station connection and serves its session until
// the socket dies. Mount it under a prefix so the station id is the last
// path segment, e.g. /ocpp/{stationId}.
func (srv *Server) HandleOCPP(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/") {
		http.Error(w, "missing station ID", http.StatusBadRequest)
		return
	}
	stationID := path.Base(r.URL.Path)

	if _, taken := srv.registry.Get(stationID); taken && !srv.cfg.ReplaceExisting {
		srv.log.Warn("rejecting duplicate station connection", zap.String("station_id", stationID))
		http.Error(w, "station already connected", http.StatusConflict)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.log.Error("WebSocket upgrade failed", zap.String("station_id", stationID), zap.Error(err))
		return
	}

	session := newSession(stationID, conn, srv)
	displaced, err := srv.registry.register(session, srv.cfg.ReplaceExisting)
	if err != nil {
		// Lost the race against a concurrent connect for the same id.
		session.close(websocket.ClosePolicyViolation, "station already connected")
		return
	}
	if displaced != nil {
		srv.log.Info("replacing station session", zap.String("station_id", stationID))
		displaced.close(websocket.ClosePolicyViolation, "replaced by new connection")
	}

	telemetry.ConnectedStations.Inc()
	srv.log.Info("station connected",
		zap.String("station_id", stationID),
		zap.String("subprotocol", conn.Subprotocol()),
	)
	srv.publishEvent("ocpp.events.station.connected", map[string]string{"station_id": stationID})

	defer func() {
		session.close(websocket.CloseNormalClosure, "")
		srv.registry.unregister(session)
		telemetry.ConnectedStations.Dec()
		srv.log.Info("station disconnected", zap.String("station_id", stationID))
		srv.publishEvent("ocpp.events.station.disconnected", map[string]string{"station_id": stationID})
	}()

	session.run()
}

// Shutdown closes every session; in-flight calls fail with
// ErrStationDisconnected.
func (srv *Server) Shutdown(ctx context.Context) {
	for _, s := range srv.registry.All() {
		s.close(websocket.CloseGoingAway, "server shutting down")
	}
	srv.log.Info("central system stopped")
}

func (srv *Server) publishEvent(subject string, payload interface{}) {
	if srv.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := srv.queue.Publish(subject, data); err != nil {
		srv.log.Debug("event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// session resolves a station id or fails with ErrStationDisconnected.
func (srv *Server) session(stationID string) (*Session, error) {
	s, ok := srv.registry.Get(stationID)
	if !ok {
		return nil, v16.ErrStationDisconnected
	}
	return s, nil
}

// ---- smart-charging facade (ports.SmartCharging) ----

// SendChargingProfile issues SetChargingProfile to a connected station.
func (srv *Server) SendChargingProfile(ctx context.Context, stationID string, connectorID int, profile v16.ChargingProfile) (*ports.ProfileSendResult, error) {
	s, err := srv.session(stationID)
	if err != nil {
		return nil, err
	}

	srv.log.Info("sending charging profile",
		zap.String("station_id", stationID),
		zap.Int("connector_id", connectorID),
		zap.Int("profile_id", profile.ChargingProfileID),
		zap.String("purpose", string(profile.ChargingProfilePurpose)),
	)
	status, err := s.setChargingProfile(ctx, connectorID, profile)
	if err != nil {
		return nil, err
	}
	return &ports.ProfileSendResult{
		Status:      string(status),
		StationID:   stationID,
		ConnectorID: connectorID,
		ProfileID:   profile.ChargingProfileID,
	}, nil
}

// GetCompositeSchedule asks a station for its merged schedule.
func (srv *Server) GetCompositeSchedule(ctx context.Context, stationID string, connectorID, durationSec int, unit v16.ChargingRateUnit) (*ports.CompositeScheduleResult, error) {
	s, err := srv.session(stationID)
	if err != nil {
		return nil, err
	}
	if unit == "" {
		unit = v16.RateUnitWatts
	}

	resp, err := s.getCompositeSchedule(ctx, connectorID, durationSec, unit)
	if err != nil {
		return nil, err
	}
	result := &ports.CompositeScheduleResult{
		Status:        string(resp.Status),
		StationID:     stationID,
		ConnectorID:   connectorID,
		ScheduleStart: resp.ScheduleStart,
		Schedule:      resp.ChargingSchedule,
	}
	if resp.ConnectorID != nil {
		result.ConnectorID = *resp.ConnectorID
	}
	return result, nil
}

// ClearChargingProfile removes profiles matching the filters from a
// station.
func (srv *Server) ClearChargingProfile(ctx context.Context, stationID string, filters ports.ClearFilters) (*ports.ClearProfileResult, error) {
	s, err := srv.session(stationID)
	if err != nil {
		return nil, err
	}

	req := v16.ClearChargingProfileRequest{
		ID:          filters.ProfileID,
		ConnectorID: filters.ConnectorID,
		StackLevel:  filters.StackLevel,
	}
	if filters.Purpose != "" {
		req.ChargingProfilePurpose = v16.ChargingProfilePurpose(filters.Purpose)
	}

	status, err := s.clearChargingProfile(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ports.ClearProfileResult{
		Status:    string(status),
		StationID: stationID,
		Filters:   filters,
	}, nil
}

// ---- other CSMS-originated operations ----

// Reset asks a station to reboot.
func (srv *Server) Reset(ctx context.Context, stationID string, t v16.ResetType) (v16.GenericStatus, error) {
	s, err := srv.session(stationID)
	if err != nil {
		return "", err
	}
	return s.reset(ctx, t)
}

// ChangeAvailability toggles a station connector operative/inoperative.
func (srv *Server) ChangeAvailability(ctx context.Context, stationID string, connectorID int, t v16.AvailabilityType) (v16.AvailabilityStatus, error) {
	s, err := srv.session(stationID)
	if err != nil {
		return "", err
	}
	return s.changeAvailability(ctx, connectorID, t)
}

// TriggerMessage asks a station to send one of its notifications now.
func (srv *Server) TriggerMessage(ctx context.Context, stationID string, requested v16.MessageTrigger) (v16.TriggerMessageStatus, error) {
	s, err := srv.session(stationID)
	if err != nil {
		return "", err
	}
	return s.triggerMessage(ctx, requested, nil)
}

// RemoteStartTransaction asks a station to begin charging.
func (srv *Server) RemoteStartTransaction(ctx context.Context, stationID, idTag string) (v16.GenericStatus, error) {
	s, err := srv.session(stationID)
	if err != nil {
		return "", err
	}
	return s.remoteStartTransaction(ctx, idTag, nil)
}

// RemoteStopTransaction asks a station to end a running transaction.
func (srv *Server) RemoteStopTransaction(ctx context.Context, stationID string, transactionID int) (v16.GenericStatus, error) {
	s, err := srv.session(stationID)
	if err != nil {
		return "", err
	}
	return s.remoteStopTransaction(ctx, transactionID)
}
