package station

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/profile"
)

// callHandler answers one inbound CALL. A non-nil *v16.CallError turns into
// a CALLERROR frame instead of a CALLRESULT.
type callHandler func(payload json.RawMessage) (interface{}, *v16.CallError)

// buildHandlers wires the fixed action table. Dispatch is a map lookup, so
// adding an action means adding a row here.
func (a *Agent) buildHandlers() map[string]callHandler {
	return map[string]callHandler{
		v16.ActionSetChargingProfile:     a.handleSetChargingProfile,
		v16.ActionGetCompositeSchedule:   a.handleGetCompositeSchedule,
		v16.ActionClearChargingProfile:   a.handleClearChargingProfile,
		v16.ActionReset:                  a.handleReset,
		v16.ActionChangeAvailability:     a.handleChangeAvailability,
		v16.ActionTriggerMessage:         a.handleTriggerMessage,
		v16.ActionRemoteStartTransaction: a.handleRemoteStart,
		v16.ActionRemoteStopTransaction:  a.handleRemoteStop,
	}
}

// dispatch answers one inbound CALL on the read loop. Handlers are
// in-memory operations, so replying synchronously preserves per-session
// ordering without stalling the socket.
func (a *Agent) dispatch(conn *websocket.Conn, msg *v16.Message) {
	h, ok := a.handlers[msg.Action]
	if !ok {
		a.replyError(conn, msg.UniqueID, v16.ErrorCodeNotImplemented,
			fmt.Sprintf("Action %s not implemented", msg.Action))
		return
	}

	result, cerr := h(msg.Payload)
	if cerr != nil {
		a.replyError(conn, msg.UniqueID, cerr.Code, cerr.Description)
		return
	}

	frame, err := v16.MarshalCallResult(msg.UniqueID, result)
	if err != nil {
		a.replyError(conn, msg.UniqueID, v16.ErrorCodeInternalError, err.Error())
		return
	}
	if err := a.writeFrame(conn, frame); err != nil {
		a.log.Warn("call result write failed",
			zap.String("station_id", a.id),
			zap.String("action", msg.Action),
			zap.Error(err),
		)
	}
}

func (a *Agent) replyError(conn *websocket.Conn, uniqueID, code, description string) {
	frame, err := v16.MarshalCallError(uniqueID, code, description, nil)
	if err != nil {
		return
	}
	if err := a.writeFrame(conn, frame); err != nil {
		a.log.Warn("call error write failed", zap.String("station_id", a.id), zap.Error(err))
	}
}

func (a *Agent) handleSetChargingProfile(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.SetChargingProfileRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}

	if err := a.profiles.SetProfile(req.ConnectorID, req.CsChargingProfiles, time.Now()); err != nil {
		a.log.Info("charging profile rejected",
			zap.String("station_id", a.id),
			zap.Int("profile_id", req.CsChargingProfiles.ChargingProfileID),
			zap.Error(err),
		)
		return v16.SetChargingProfileResponse{Status: v16.ProfileRejected}, nil
	}

	p := req.CsChargingProfiles
	a.buf.Appendf("Charging profile %d set (%s, stack %d)",
		p.ChargingProfileID, p.ChargingProfilePurpose, p.StackLevel)
	a.log.Info("charging profile set",
		zap.String("station_id", a.id),
		zap.Int("profile_id", p.ChargingProfileID),
		zap.String("purpose", string(p.ChargingProfilePurpose)),
		zap.Int("stack_level", p.StackLevel),
	)
	return v16.SetChargingProfileResponse{Status: v16.ProfileAccepted}, nil
}

func (a *Agent) handleGetCompositeSchedule(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.GetCompositeScheduleRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}

	unit := req.ChargingRateUnit
	if unit == "" {
		unit = v16.RateUnitWatts
	}
	now := time.Now()
	periods := a.profiles.GetCompositeSchedule(req.ConnectorID, req.Duration, unit, a.activeTransaction(), now)
	if len(periods) == 0 {
		return v16.GetCompositeScheduleResponse{Status: v16.CompositeRejected}, nil
	}

	schedulePeriods := make([]v16.ChargingSchedulePeriod, len(periods))
	for i, p := range periods {
		schedulePeriods[i] = v16.ChargingSchedulePeriod{StartPeriod: p.StartOffset, Limit: p.Limit}
	}
	connID := req.ConnectorID
	duration := req.Duration
	return v16.GetCompositeScheduleResponse{
		Status:        v16.CompositeAccepted,
		ConnectorID:   &connID,
		ScheduleStart: v16.Timestamp(now),
		ChargingSchedule: &v16.ChargingSchedule{
			Duration:               &duration,
			StartSchedule:          v16.Timestamp(now),
			ChargingRateUnit:       unit,
			ChargingSchedulePeriod: schedulePeriods,
		},
	}, nil
}

func (a *Agent) handleClearChargingProfile(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.ClearChargingProfileRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}

	removed := a.profiles.ClearProfiles(profile.ClearFilter{
		ProfileID:   req.ID,
		ConnectorID: req.ConnectorID,
		StackLevel:  req.StackLevel,
		Purpose:     req.ChargingProfilePurpose,
	})
	if removed == 0 {
		return v16.ClearChargingProfileResponse{Status: v16.ClearUnknown}, nil
	}

	a.buf.Appendf("Cleared %d charging profile(s)", removed)
	a.log.Info("charging profiles cleared",
		zap.String("station_id", a.id),
		zap.Int("removed", removed),
	)
	return v16.ClearChargingProfileResponse{Status: v16.ClearAccepted}, nil
}

func (a *Agent) handleReset(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.ResetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}
	if req.Type != v16.ResetHard && req.Type != v16.ResetSoft {
		return nil, &v16.CallError{
			Code:        v16.ErrorCodePropertyConstraint,
			Description: fmt.Sprintf("unknown reset type %q", req.Type),
		}
	}

	a.buf.Appendf("Reset requested (%s)", req.Type)
	a.log.Info("reset requested",
		zap.String("station_id", a.id),
		zap.String("type", string(req.Type)),
	)
	select {
	case a.resetCh <- req.Type:
	default:
		// A reset is already queued.
	}
	return v16.ResetResponse{Status: v16.GenericAccepted}, nil
}

func (a *Agent) handleChangeAvailability(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.ChangeAvailabilityRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}

	switch req.Type {
	case v16.AvailabilityOperative:
		a.operative.Store(true)
		a.buf.Append("Availability changed to Operative")
		return v16.ChangeAvailabilityResponse{Status: v16.AvailabilityAccepted}, nil
	case v16.AvailabilityInoperative:
		a.operative.Store(false)
		a.buf.Append("Availability changed to Inoperative")
		if a.hasActiveTransaction() {
			// Takes effect once the running transaction ends.
			return v16.ChangeAvailabilityResponse{Status: v16.AvailabilityScheduled}, nil
		}
		return v16.ChangeAvailabilityResponse{Status: v16.AvailabilityAccepted}, nil
	default:
		return nil, &v16.CallError{
			Code:        v16.ErrorCodePropertyConstraint,
			Description: fmt.Sprintf("unknown availability type %q", req.Type),
		}
	}
}

func (a *Agent) handleTriggerMessage(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.TriggerMessageRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}

	switch req.RequestedMessage {
	case v16.TriggerBootNotification, v16.TriggerHeartbeat,
		v16.TriggerStatusNotification, v16.TriggerMeterValues:
		// Send from a fresh goroutine; the read loop must stay free to
		// process the reply to the triggered call.
		go a.sendTriggered(req.RequestedMessage)
		return v16.TriggerMessageResponse{Status: v16.TriggerAccepted}, nil
	default:
		return v16.TriggerMessageResponse{Status: v16.TriggerNotImplemented}, nil
	}
}

func (a *Agent) handleRemoteStart(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.RemoteStartTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}
	// Sessions are self-scheduled by the lifecycle loop.
	a.log.Info("remote start rejected",
		zap.String("station_id", a.id),
		zap.String("id_tag", req.IdTag),
	)
	return v16.RemoteStartTransactionResponse{Status: v16.GenericRejected}, nil
}

func (a *Agent) handleRemoteStop(payload json.RawMessage) (interface{}, *v16.CallError) {
	var req v16.RemoteStopTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &v16.CallError{Code: v16.ErrorCodeFormationViolation, Description: err.Error()}
	}

	a.mu.RLock()
	txID := a.txID
	a.mu.RUnlock()
	if txID == 0 || txID != req.TransactionID {
		return v16.RemoteStopTransactionResponse{Status: v16.GenericRejected}, nil
	}

	a.buf.Appendf("Remote stop requested (transaction %d)", req.TransactionID)
	select {
	case a.remoteStopCh <- struct{}{}:
	default:
	}
	return v16.RemoteStopTransactionResponse{Status: v16.GenericAccepted}, nil
}

// sendTriggered emits the message requested by a TriggerMessage call.
func (a *Agent) sendTriggered(kind v16.MessageTrigger) {
	switch kind {
	case v16.TriggerBootNotification:
		req := v16.BootNotificationRequest{
			ChargePointVendor: a.vendor,
			ChargePointModel:  a.model,
			FirmwareVersion:   a.firmware,
		}
		a.buf.Append("BootNotification sent")
		var resp v16.BootNotificationResponse
		if err := a.call(a.runCtx, v16.ActionBootNotification, req, &resp); err != nil {
			a.log.Warn("triggered boot failed", zap.String("station_id", a.id), zap.Error(err))
		}
	case v16.TriggerHeartbeat:
		var resp v16.HeartbeatResponse
		if err := a.call(a.runCtx, v16.ActionHeartbeat, v16.HeartbeatRequest{}, &resp); err != nil {
			a.log.Warn("triggered heartbeat failed", zap.String("station_id", a.id), zap.Error(err))
			return
		}
		a.buf.Append("Heartbeat sent")
	case v16.TriggerStatusNotification:
		a.sendStatus(a.runCtx, a.currentStatus())
	case v16.TriggerMeterValues:
		a.mu.RLock()
		sessionWh := a.sessionWh
		txID := a.txID
		a.mu.RUnlock()

		mv := v16.MeterValuesRequest{
			ConnectorID: connectorID,
			MeterValue: []v16.MeterValue{{
				Timestamp: v16.Timestamp(time.Now()),
				SampledValue: []v16.SampledValue{{
					Value:     fmt.Sprintf("%.1f", sessionWh),
					Measurand: "Energy.Active.Import.Register",
					Unit:      "Wh",
				}},
			}},
		}
		if txID != 0 {
			mv.TransactionID = &txID
		}
		if err := a.call(a.runCtx, v16.ActionMeterValues, mv, nil); err != nil {
			a.log.Warn("triggered meter values failed", zap.String("station_id", a.id), zap.Error(err))
		}
	}
}
