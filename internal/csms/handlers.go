package csms

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/observability/telemetry"
)

// sessionHandler answers one station-originated CALL. A non-nil
// *v16.CallError becomes a CALLERROR frame.
type sessionHandler func(payload json.RawMessage) (interface{}, *v16.CallError)

func (s *Session) buildHandlers() map[string]sessionHandler {
	return map[string]sessionHandler{
		v16.ActionBootNotification:   s.handleBootNotification,
		v16.ActionHeartbeat:          s.handleHeartbeat,
		v16.ActionAuthorize:          s.handleAuthorize,
		v16.ActionStartTransaction:   s.handleStartTransaction,
		v16.ActionMeterValues:        s.handleMeterValues,
		v16.ActionStopTransaction:    s.handleStopTransaction,
		v16.ActionStatusNotification: s.handleStatusNotification,
	}
}

func (s *Session) handleBootNotification(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.BootNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}

	s.setBootInfo(req)
	s.log.Info("BootNotification",
		zap.String("vendor", req.ChargePointVendor),
		zap.String("model", req.ChargePointModel),
		zap.String("firmware", req.FirmwareVersion),
	)

	return v16.BootNotificationResponse{
		Status:      v16.RegistrationAccepted,
		CurrentTime: v16.Timestamp(time.Now()),
		Interval:    s.heartbeatSecs,
	}, nil
}

func (s *Session) handleHeartbeat(json.RawMessage) (interface{}, *v16.CallError) {
	s.log.Debug("Heartbeat")
	return v16.HeartbeatResponse{CurrentTime: v16.Timestamp(time.Now())}, nil
}

func (s *Session) handleAuthorize(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.AuthorizeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}

	status := s.store.Authorize(s.ctx, req.IdTag)
	if status != v16.AuthorizationAccepted {
		s.log.Warn("authorization rejected", zap.String("id_tag", req.IdTag), zap.String("status", string(status)))
		s.recordEvent(domain.SecurityAuthFailure, domain.SeverityWarning,
			"authorization rejected for tag "+req.IdTag)
	} else {
		s.log.Info("Authorize", zap.String("id_tag", req.IdTag))
	}

	return v16.AuthorizeResponse{IdTagInfo: v16.IdTagInfo{Status: status}}, nil
}

func (s *Session) handleStartTransaction(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.StartTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}

	if s.store.Blocked(req.IdTag) {
		s.recordEvent(domain.SecurityAuthFailure, domain.SeverityWarning,
			"transaction refused for blocked tag "+req.IdTag)
		return v16.StartTransactionResponse{
			IdTagInfo: v16.IdTagInfo{Status: v16.AuthorizationBlocked},
		}, nil
	}

	rec, duplicate := s.store.BeginTransaction(s.stationID, req)
	if duplicate {
		s.recordEvent(domain.SecurityDuplicateTransaction, domain.SeverityWarning,
			"start while a transaction was already active on connector")
	}
	telemetry.CSMSTransactionsTotal.Inc()

	s.log.Info("StartTransaction",
		zap.Int("transaction_id", rec.ID),
		zap.Int("connector_id", req.ConnectorID),
		zap.String("id_tag", req.IdTag),
		zap.Int("meter_start", req.MeterStart),
	)
	if s.publish != nil {
		s.publish("ocpp.events.transaction.started", rec)
	}

	return v16.StartTransactionResponse{
		TransactionID: rec.ID,
		IdTagInfo:     v16.IdTagInfo{Status: v16.AuthorizationAccepted},
	}, nil
}

func (s *Session) handleMeterValues(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.MeterValuesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}

	s.store.RecordMeterValues(s.stationID, req)
	if req.TransactionID != nil {
		s.log.Debug("MeterValues", zap.Int("transaction_id", *req.TransactionID))
	}
	return v16.MeterValuesResponse{}, nil
}

func (s *Session) handleStopTransaction(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.StopTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}

	rec, ok := s.store.FinishTransaction(s.stationID, req)
	if !ok {
		s.log.Warn("stop for unknown transaction", zap.Int("transaction_id", req.TransactionID))
	} else {
		s.log.Info("StopTransaction",
			zap.Int("transaction_id", rec.ID),
			zap.Int("meter_stop", req.MeterStop),
			zap.String("reason", string(req.Reason)),
		)
		if s.publish != nil {
			s.publish("ocpp.events.transaction.stopped", rec)
		}
	}

	return v16.StopTransactionResponse{
		IdTagInfo: &v16.IdTagInfo{Status: v16.AuthorizationAccepted},
	}, nil
}

func (s *Session) handleStatusNotification(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.StatusNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}

	s.store.RecordStatus(s.stationID, req)
	s.log.Info("StatusNotification",
		zap.Int("connector_id", req.ConnectorID),
		zap.String("status", string(req.Status)),
		zap.String("error_code", string(req.ErrorCode)),
	)
	return v16.StatusNotificationResponse{}, nil
}
