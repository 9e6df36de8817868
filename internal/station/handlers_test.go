package station

import (
	"encoding/json"
	"testing"
	"time"

	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
)

func newBareAgent() *Agent {
	return New(Config{
		ID:      "PY-TEST-0001",
		CSMSURL: "ws://127.0.0.1:0",
		Profile: testProfile(),
		Logger:  newTestLogger(),
	})
}

func mustPayload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return data
}

func maxProfilePayload(limit float64) v16.SetChargingProfileRequest {
	return v16.SetChargingProfileRequest{
		ConnectorID: 0,
		CsChargingProfiles: v16.ChargingProfile{
			ChargingProfileID:      1,
			StackLevel:             0,
			ChargingProfilePurpose: v16.PurposeChargePointMax,
			ChargingProfileKind:    v16.KindAbsolute,
			ChargingSchedule: v16.ChargingSchedule{
				ChargingRateUnit: v16.RateUnitWatts,
				ChargingSchedulePeriod: []v16.ChargingSchedulePeriod{
					{StartPeriod: 0, Limit: limit},
				},
			},
		},
	}
}

func TestHandleSetChargingProfileAccepted(t *testing.T) {
	// Arrange
	a := newBareAgent()
	payload := mustPayload(t, maxProfilePayload(7400))

	// Act
	result, cerr := a.handleSetChargingProfile(payload)

	// Assert
	if cerr != nil {
		t.Fatalf("expected no call error, got %v", cerr)
	}
	resp, ok := result.(v16.SetChargingProfileResponse)
	if !ok {
		t.Fatalf("expected SetChargingProfileResponse, got %T", result)
	}
	if resp.Status != v16.ProfileAccepted {
		t.Errorf("expected status 'Accepted', got '%s'", resp.Status)
	}
	if got := a.Profiles().Count(); got != 1 {
		t.Errorf("expected 1 stored profile, got %d", got)
	}
}

func TestHandleSetChargingProfileInvalidRejected(t *testing.T) {
	// Arrange: non-positive limit fails validation
	req := maxProfilePayload(-5)
	a := newBareAgent()

	// Act
	result, cerr := a.handleSetChargingProfile(mustPayload(t, req))

	// Assert
	if cerr != nil {
		t.Fatalf("expected no call error, got %v", cerr)
	}
	resp := result.(v16.SetChargingProfileResponse)
	if resp.Status != v16.ProfileRejected {
		t.Errorf("expected status 'Rejected', got '%s'", resp.Status)
	}
	if got := a.Profiles().Count(); got != 0 {
		t.Errorf("expected no stored profiles, got %d", got)
	}
}

func TestHandleSetChargingProfileMalformedPayload(t *testing.T) {
	// Arrange
	a := newBareAgent()

	// Act
	_, cerr := a.handleSetChargingProfile(json.RawMessage(`{"connectorId": "one"}`))

	// Assert
	if cerr == nil {
		t.Fatal("expected a call error for malformed payload")
	}
	if cerr.Code != v16.ErrorCodeFormationViolation {
		t.Errorf("expected code 'FormationViolation', got '%s'", cerr.Code)
	}
}

func TestHandleGetCompositeScheduleNoProfiles(t *testing.T) {
	// Arrange
	a := newBareAgent()
	payload := mustPayload(t, v16.GetCompositeScheduleRequest{ConnectorID: 1, Duration: 600})

	// Act
	result, cerr := a.handleGetCompositeSchedule(payload)

	// Assert
	if cerr != nil {
		t.Fatalf("expected no call error, got %v", cerr)
	}
	resp := result.(v16.GetCompositeScheduleResponse)
	if resp.Status != v16.CompositeRejected {
		t.Errorf("expected status 'Rejected', got '%s'", resp.Status)
	}
	if resp.ChargingSchedule != nil {
		t.Error("expected no schedule in a rejected response")
	}
}

func TestHandleGetCompositeScheduleWithProfile(t *testing.T) {
	// Arrange
	a := newBareAgent()
	if _, cerr := a.handleSetChargingProfile(mustPayload(t, maxProfilePayload(7400))); cerr != nil {
		t.Fatalf("expected no call error, got %v", cerr)
	}
	payload := mustPayload(t, v16.GetCompositeScheduleRequest{ConnectorID: 1, Duration: 600})

	// Act
	result, cerr := a.handleGetCompositeSchedule(payload)

	// Assert
	if cerr != nil {
		t.Fatalf("expected no call error, got %v", cerr)
	}
	resp := result.(v16.GetCompositeScheduleResponse)
	if resp.Status != v16.CompositeAccepted {
		t.Fatalf("expected status 'Accepted', got '%s'", resp.Status)
	}
	if resp.ChargingSchedule == nil {
		t.Fatal("expected a schedule in the response")
	}
	periods := resp.ChargingSchedule.ChargingSchedulePeriod
	if len(periods) != 1 {
		t.Fatalf("expected 1 period, got %d", len(periods))
	}
	if periods[0].StartPeriod != 0 || periods[0].Limit != 7400 {
		t.Errorf("expected period (0, 7400), got (%d, %.0f)", periods[0].StartPeriod, periods[0].Limit)
	}
	if resp.ConnectorID == nil || *resp.ConnectorID != 1 {
		t.Error("expected connector id 1 echoed in response")
	}
}

func TestHandleClearChargingProfile(t *testing.T) {
	// Arrange
	a := newBareAgent()
	if _, cerr := a.handleSetChargingProfile(mustPayload(t, maxProfilePayload(7400))); cerr != nil {
		t.Fatalf("expected no call error, got %v", cerr)
	}
	clearAll := mustPayload(t, v16.ClearChargingProfileRequest{})

	// Act
	result, cerr := a.handleClearChargingProfile(clearAll)

	// Assert
	if cerr != nil {
		t.Fatalf("expected no call error, got %v", cerr)
	}
	if got := result.(v16.ClearChargingProfileResponse).Status; got != v16.ClearAccepted {
		t.Errorf("expected status 'Accepted', got '%s'", got)
	}
	if got := a.Profiles().Count(); got != 0 {
		t.Errorf("expected no stored profiles, got %d", got)
	}

	// Act again: nothing left to remove
	result, _ = a.handleClearChargingProfile(clearAll)

	// Assert
	if got := result.(v16.ClearChargingProfileResponse).Status; got != v16.ClearUnknown {
		t.Errorf("expected status 'Unknown', got '%s'", got)
	}
}

func TestHandleResetQueuesReset(t *testing.T) {
	// Arrange
	a := newBareAgent()
	payload := mustPayload(t, v16.ResetRequest{Type: v16.ResetHard})

	// Act
	result, cerr := a.handleReset(payload)

	// Assert
	if cerr != nil {
		t.Fatalf("expected no call error, got %v", cerr)
	}
	if got := result.(v16.ResetResponse).Status; got != v16.GenericAccepted {
		t.Errorf("expected status 'Accepted', got '%s'", got)
	}
	rt, ok := a.takeReset()
	if !ok {
		t.Fatal("expected a queued reset")
	}
	if rt != v16.ResetHard {
		t.Errorf("expected reset type 'Hard', got '%s'", rt)
	}
}

func TestHandleResetUnknownType(t *testing.T) {
	// Arrange
	a := newBareAgent()

	// Act
	_, cerr := a.handleReset(json.RawMessage(`{"type": "Warm"}`))

	// Assert
	if cerr == nil {
		t.Fatal("expected a call error for unknown reset type")
	}
	if cerr.Code != v16.ErrorCodePropertyConstraint {
		t.Errorf("expected code 'PropertyConstraintViolation', got '%s'", cerr.Code)
	}
}

func TestHandleChangeAvailability(t *testing.T) {
	// Arrange
	a := newBareAgent()

	// Act: inoperative while idle
	result, cerr := a.handleChangeAvailability(mustPayload(t, v16.ChangeAvailabilityRequest{
		ConnectorID: 1,
		Type:        v16.AvailabilityInoperative,
	}))

	// Assert
	if cerr != nil {
		t.Fatalf("expected no call error, got %v", cerr)
	}
	if got := result.(v16.ChangeAvailabilityResponse).Status; got != v16.AvailabilityAccepted {
		t.Errorf("expected status 'Accepted', got '%s'", got)
	}
	if a.operative.Load() {
		t.Error("expected agent to be inoperative")
	}

	// Act: back to operative
	result, _ = a.handleChangeAvailability(mustPayload(t, v16.ChangeAvailabilityRequest{
		ConnectorID: 1,
		Type:        v16.AvailabilityOperative,
	}))

	// Assert
	if got := result.(v16.ChangeAvailabilityResponse).Status; got != v16.AvailabilityAccepted {
		t.Errorf("expected status 'Accepted', got '%s'", got)
	}
	if !a.operative.Load() {
		t.Error("expected agent to be operative")
	}
}

func TestHandleChangeAvailabilityScheduledDuringTransaction(t *testing.T) {
	// Arrange: transaction in flight
	a := newBareAgent()
	a.mu.Lock()
	a.txID = 42
	a.txStarted = time.Now()
	a.mu.Unlock()

	// Act
	result, cerr := a.handleChangeAvailability(mustPayload(t, v16.ChangeAvailabilityRequest{
		ConnectorID: 1,
		Type:        v16.AvailabilityInoperative,
	}))

	// Assert
	if cerr != nil {
		t.Fatalf("expected no call error, got %v", cerr)
	}
	if got := result.(v16.ChangeAvailabilityResponse).Status; got != v16.AvailabilityScheduled {
		t.Errorf("expected status 'Scheduled', got '%s'", got)
	}
}

func TestHandleTriggerMessageUnsupported(t *testing.T) {
	// Arrange
	a := newBareAgent()
	payload := mustPayload(t, v16.TriggerMessageRequest{RequestedMessage: "DiagnosticsStatusNotification"})

	// Act
	result, cerr := a.handleTriggerMessage(payload)

	// Assert
	if cerr != nil {
		t.Fatalf("expected no call error, got %v", cerr)
	}
	if got := result.(v16.TriggerMessageResponse).Status; got != v16.TriggerNotImplemented {
		t.Errorf("expected status 'NotImplemented', got '%s'", got)
	}
}

func TestHandleRemoteStartRejected(t *testing.T) {
	// Arrange
	a := newBareAgent()
	payload := mustPayload(t, v16.RemoteStartTransactionRequest{IdTag: "ABC123"})

	// Act
	result, cerr := a.handleRemoteStart(payload)

	// Assert
	if cerr != nil {
		t.Fatalf("expected no call error, got %v", cerr)
	}
	if got := result.(v16.RemoteStartTransactionResponse).Status; got != v16.GenericRejected {
		t.Errorf("expected status 'Rejected', got '%s'", got)
	}
}

func TestHandleRemoteStop(t *testing.T) {
	// Arrange
	a := newBareAgent()

	// Act: no transaction running
	result, _ := a.handleRemoteStop(mustPayload(t, v16.RemoteStopTransactionRequest{TransactionID: 7}))

	// Assert
	if got := result.(v16.RemoteStopTransactionResponse).Status; got != v16.GenericRejected {
		t.Errorf("expected status 'Rejected', got '%s'", got)
	}

	// Arrange: matching transaction
	a.mu.Lock()
	a.txID = 7
	a.mu.Unlock()

	// Act
	result, _ = a.handleRemoteStop(mustPayload(t, v16.RemoteStopTransactionRequest{TransactionID: 7}))

	// Assert
	if got := result.(v16.RemoteStopTransactionResponse).Status; got != v16.GenericAccepted {
		t.Errorf("expected status 'Accepted', got '%s'", got)
	}
	if !a.takeRemoteStop() {
		t.Error("expected a queued remote stop")
	}

	// Act: mismatched transaction id
	result, _ = a.handleRemoteStop(mustPayload(t, v16.RemoteStopTransactionRequest{TransactionID: 99}))

	// Assert
	if got := result.(v16.RemoteStopTransactionResponse).Status; got != v16.GenericRejected {
		t.Errorf("expected status 'Rejected', got '%s'", got)
	}
}

func TestBuildHandlersCoversInboundActions(t *testing.T) {
	// Arrange
	a := newBareAgent()
	want := []string{
		v16.ActionSetChargingProfile,
		v16.ActionGetCompositeSchedule,
		v16.ActionClearChargingProfile,
		v16.ActionReset,
		v16.ActionChangeAvailability,
		v16.ActionTriggerMessage,
		v16.ActionRemoteStartTransaction,
		v16.ActionRemoteStopTransaction,
	}

	// Assert
	if len(a.handlers) != len(want) {
		t.Errorf("expected %d handlers, got %d", len(want), len(a.handlers))
	}
	for _, action := range want {
		if _, ok := a.handlers[action]; !ok {
			t.Errorf("expected a handler for action '%s'", action)
		}
	}
}
