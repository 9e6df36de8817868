package csms

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/observability/telemetry"
)

// SecurityRecorder receives security-relevant observations from sessions.
// Observe feeds the per-station flow tracker; Record stores a concrete
// event.
type SecurityRecorder interface {
	Observe(stationID, action string)
	Record(ev domain.SecurityEvent)
}

// SessionInfo is the admin-facing view of one connected station.
type SessionInfo struct {
	StationID   string         `json:"station_id"`
	Vendor      string         `json:"vendor,omitempty"`
	Model       string         `json:"model,omitempty"`
	Firmware    string         `json:"firmware,omitempty"`
	ConnectedAt time.Time      `json:"connected_at"`
	LastSeen    time.Time      `json:"last_seen"`
	Status      *StationStatus `json:"status,omitempty"`
}

// Session is the central system's agent for one connected station. It owns
// the socket: a single read loop dispatches inbound CALLs and resolves
// replies, while CSMS-originated calls serialize on callMu so at most one
// is in flight per station.
type Session struct {
	stationID string
	conn      *websocket.Conn
	log       *zap.Logger
	store     *Store
	security  SecurityRecorder
	publish   func(subject string, payload interface{})

	heartbeatSecs int
	callTimeout   time.Duration
	handlers      map[string]sessionHandler

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *v16.Message

	callMu sync.Mutex

	mu          sync.RWMutex
	vendor      string
	model       string
	firmware    string
	connectedAt time.Time
	lastSeen    time.Time

	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(stationID string, conn *websocket.Conn, srv *Server) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		stationID:     stationID,
		conn:          conn,
		log:           srv.log.With(zap.String("station_id", stationID)),
		store:         srv.store,
		security:      srv.security,
		publish:       srv.publishEvent,
		heartbeatSecs: int(srv.cfg.HeartbeatInterval / time.Second),
		callTimeout:   srv.cfg.CallTimeout,
		ctx:           ctx,
		cancel:        cancel,
		pending:       make(map[string]chan *v16.Message),
		connectedAt:   time.Now().UTC(),
		lastSeen:      time.Now().UTC(),
		closed:        make(chan struct{}),
	}
	s.handlers = s.buildHandlers()
	return s
}

// StationID returns the station this session serves.
func (s *Session) StationID() string { return s.stationID }

// Info returns the session's admin view. Status is filled by the server.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionInfo{
		StationID:   s.stationID,
		Vendor:      s.vendor,
		Model:       s.model,
		Firmware:    s.firmware,
		ConnectedAt: s.connectedAt,
		LastSeen:    s.lastSeen,
	}
}

// run reads frames until the socket dies. It must be called exactly once;
// the caller owns registry cleanup.
func (s *Session) run() {
	defer s.cancel()
	defer s.failPending()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug("session read loop ended", zap.Error(err))
			return
		}
		s.touch()

		msg, err := v16.Decode(data)
		if err != nil {
			s.log.Warn("malformed frame from station", zap.Error(err))
			s.recordEvent(domain.SecurityMalformedMessage, domain.SeverityWarning,
				fmt.Sprintf("malformed frame: %v", err))
			s.close(websocket.CloseProtocolError, "malformed frame")
			return
		}

		switch msg.Type {
		case v16.CallMessage:
			telemetry.OCPPMessagesTotal.WithLabelValues(msg.Action, "received").Inc()
			if s.security != nil {
				s.security.Observe(s.stationID, msg.Action)
			}
			s.handleCall(msg)
		case v16.CallResultMessage, v16.CallErrorMessage:
			s.resolvePending(msg)
		}
	}
}

// handleCall answers one station-originated CALL on the read loop.
func (s *Session) handleCall(msg *v16.Message) {
	h, ok := s.handlers[msg.Action]
	if !ok {
		s.recordEvent(domain.SecurityUnauthorizedCommand, domain.SeverityWarning,
			fmt.Sprintf("unsupported action %s", msg.Action))
		s.replyError(msg.UniqueID, v16.ErrorCodeNotImplemented,
			fmt.Sprintf("Action %s not implemented", msg.Action))
		return
	}

	result, cerr := h(msg.Payload)
	if cerr != nil {
		s.replyError(msg.UniqueID, cerr.Code, cerr.Description)
		return
	}

	frame, err := v16.MarshalCallResult(msg.UniqueID, result)
	if err != nil {
		s.replyError(msg.UniqueID, v16.ErrorCodeInternalError, err.Error())
		return
	}
	if err := s.writeFrame(frame); err != nil {
		s.log.Warn("call result write failed", zap.String("action", msg.Action), zap.Error(err))
	}
}

func (s *Session) replyError(uniqueID, code, description string) {
	frame, err := v16.MarshalCallError(uniqueID, code, description, nil)
	if err != nil {
		return
	}
	if err := s.writeFrame(frame); err != nil {
		s.log.Warn("call error write failed", zap.Error(err))
	}
}

// call issues a CSMS-originated CALL and waits for the reply. Calls to the
// same station are serialized; queued callers block on callMu. A closed
// session fails with ErrStationDisconnected, a missing reply with
// ErrCallTimeout, and ctx cancellation with ErrCancelled.
func (s *Session) call(ctx context.Context, action string, req, out interface{}) error {
	select {
	case <-s.closed:
		return v16.ErrStationDisconnected
	default:
	}

	s.callMu.Lock()
	defer s.callMu.Unlock()

	id := uuid.New().String()
	ch := make(chan *v16.Message, 1)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	frame, err := v16.MarshalCall(id, action, req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", action, err)
	}
	if err := s.writeFrame(frame); err != nil {
		return fmt.Errorf("write %s: %w", action, err)
	}
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "sent").Inc()
	start := time.Now()

	timer := time.NewTimer(s.callTimeout)
	defer timer.Stop()
	select {
	case msg, ok := <-ch:
		if !ok {
			return v16.ErrStationDisconnected
		}
		telemetry.OCPPCallDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
		if msg.Type == v16.CallErrorMessage {
			telemetry.OCPPCallErrorsTotal.WithLabelValues(action, msg.ErrorCode).Inc()
			return &v16.CallError{
				Code:        msg.ErrorCode,
				Description: msg.ErrorDescription,
				Details:     msg.ErrorDetails,
			}
		}
		if out != nil {
			if err := json.Unmarshal(msg.Payload, out); err != nil {
				return fmt.Errorf("decode %s result: %w", action, err)
			}
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%s: %w", action, v16.ErrCallTimeout)
	case <-ctx.Done():
		return v16.ErrCancelled
	}
}

func (s *Session) resolvePending(msg *v16.Message) {
	s.pendingMu.Lock()
	ch, ok := s.pending[msg.UniqueID]
	if ok {
		delete(s.pending, msg.UniqueID)
	}
	s.pendingMu.Unlock()
	if !ok {
		s.log.Debug("reply for unknown call", zap.String("unique_id", msg.UniqueID))
		return
	}
	ch <- msg
}

// failPending closes every pending completion channel so blocked callers
// observe the disconnect instead of waiting out their timeout.
func (s *Session) failPending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

func (s *Session) writeFrame(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// close sends a close frame and tears down the socket. Safe to call more
// than once; the read loop exits on its own after the underlying Close.
func (s *Session) close(code int, reason string) {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.conn.Close()
	})
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) setBootInfo(req v16.BootNotificationRequest) {
	s.mu.Lock()
	s.vendor = req.ChargePointVendor
	s.model = req.ChargePointModel
	s.firmware = req.FirmwareVersion
	s.mu.Unlock()
}

func (s *Session) recordEvent(t domain.SecurityEventType, sev domain.SecuritySeverity, msg string) {
	if s.security == nil {
		return
	}
	s.security.Record(domain.SecurityEvent{
		StationID: s.stationID,
		Type:      t,
		Severity:  sev,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	})
}

// ---- CSMS-originated operations ----

func (s *Session) setChargingProfile(ctx context.Context, connectorID int, p v16.ChargingProfile) (v16.ChargingProfileStatus, error) {
	req := v16.SetChargingProfileRequest{ConnectorID: connectorID, CsChargingProfiles: p}
	var resp v16.SetChargingProfileResponse
	if err := s.call(ctx, v16.ActionSetChargingProfile, req, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (s *Session) getCompositeSchedule(ctx context.Context, connectorID, duration int, unit v16.ChargingRateUnit) (*v16.GetCompositeScheduleResponse, error) {
	req := v16.GetCompositeScheduleRequest{ConnectorID: connectorID, Duration: duration, ChargingRateUnit: unit}
	var resp v16.GetCompositeScheduleResponse
	if err := s.call(ctx, v16.ActionGetCompositeSchedule, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Session) clearChargingProfile(ctx context.Context, req v16.ClearChargingProfileRequest) (v16.ClearChargingProfileStatus, error) {
	var resp v16.ClearChargingProfileResponse
	if err := s.call(ctx, v16.ActionClearChargingProfile, req, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (s *Session) reset(ctx context.Context, t v16.ResetType) (v16.GenericStatus, error) {
	var resp v16.ResetResponse
	if err := s.call(ctx, v16.ActionReset, v16.ResetRequest{Type: t}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (s *Session) changeAvailability(ctx context.Context, connectorID int, t v16.AvailabilityType) (v16.AvailabilityStatus, error) {
	req := v16.ChangeAvailabilityRequest{ConnectorID: connectorID, Type: t}
	var resp v16.ChangeAvailabilityResponse
	if err := s.call(ctx, v16.ActionChangeAvailability, req, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (s *Session) triggerMessage(ctx context.Context, requested v16.MessageTrigger, connectorID *int) (v16.TriggerMessageStatus, error) {
	req := v16.TriggerMessageRequest{RequestedMessage: requested, ConnectorID: connectorID}
	var resp v16.TriggerMessageResponse
	if err := s.call(ctx, v16.ActionTriggerMessage, req, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (s *Session) remoteStartTransaction(ctx context.Context, idTag string, connectorID *int) (v16.GenericStatus, error) {
	req := v16.RemoteStartTransactionRequest{IdTag: idTag, ConnectorID: connectorID}
	var resp v16.RemoteStartTransactionResponse
	if err := s.call(ctx, v16.ActionRemoteStartTransaction, req, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (s *Session) remoteStopTransaction(ctx context.Context, transactionID int) (v16.GenericStatus, error) {
	req := v16.RemoteStopTransactionRequest{TransactionID: transactionID}
	var resp v16.RemoteStopTransactionResponse
	if err := s.call(ctx, v16.ActionRemoteStopTransaction, req, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}
