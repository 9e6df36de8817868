package v16

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodeCall(t *testing.T) {
	// Arrange
	raw := []byte(`[2,"msg-1","BootNotification",{"chargePointVendor":"PySim","chargePointModel":"SwarmSim"}]`)

	// Act
	msg, err := Decode(raw)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.Type != CallMessage {
		t.Errorf("expected type %d, got %d", CallMessage, msg.Type)
	}
	if msg.UniqueID != "msg-1" {
		t.Errorf("expected unique id 'msg-1', got '%s'", msg.UniqueID)
	}
	if msg.Action != ActionBootNotification {
		t.Errorf("expected action 'BootNotification', got '%s'", msg.Action)
	}

	var req BootNotificationRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		t.Fatalf("expected payload to decode, got %v", err)
	}
	if req.ChargePointVendor != "PySim" {
		t.Errorf("expected vendor 'PySim', got '%s'", req.ChargePointVendor)
	}
}

func TestDecodeCallResult(t *testing.T) {
	raw := []byte(`[3,"msg-2",{"status":"Accepted","currentTime":"2026-01-08T10:00:00Z","interval":60}]`)

	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.Type != CallResultMessage {
		t.Errorf("expected type %d, got %d", CallResultMessage, msg.Type)
	}

	var resp BootNotificationResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		t.Fatalf("expected payload to decode, got %v", err)
	}
	if resp.Status != RegistrationAccepted {
		t.Errorf("expected status 'Accepted', got '%s'", resp.Status)
	}
	if resp.Interval != 60 {
		t.Errorf("expected interval 60, got %d", resp.Interval)
	}
}

func TestDecodeCallError(t *testing.T) {
	raw := []byte(`[4,"msg-3","InternalError","boom",{"hint":"retry"}]`)

	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.Type != CallErrorMessage {
		t.Errorf("expected type %d, got %d", CallErrorMessage, msg.Type)
	}
	if msg.ErrorCode != "InternalError" {
		t.Errorf("expected error code 'InternalError', got '%s'", msg.ErrorCode)
	}
	if msg.ErrorDescription != "boom" {
		t.Errorf("expected description 'boom', got '%s'", msg.ErrorDescription)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not an array", `{"foo":1}`},
		{"too short", `[2,"id"]`},
		{"call without payload", `[2,"id","Heartbeat"]`},
		{"unknown type", `[7,"id",{}]`},
		{"empty unique id", `[2,"","Heartbeat",{}]`},
		{"empty action", `[2,"id","",{}]`},
		{"callerror too short", `[4,"id","GenericError"]`},
		{"non-string id", `[2,42,"Heartbeat",{}]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrProtocolViolation) {
				t.Errorf("expected ErrProtocolViolation, got %v", err)
			}
		})
	}
}

func TestCallRoundTrip(t *testing.T) {
	// Every action implemented on the wire round-trips through its envelope.
	payloads := map[string]interface{}{
		ActionBootNotification:   BootNotificationRequest{ChargePointVendor: "PySim", ChargePointModel: "SwarmSim", FirmwareVersion: "1.0.0"},
		ActionHeartbeat:          HeartbeatRequest{},
		ActionStatusNotification: StatusNotificationRequest{ConnectorID: 1, ErrorCode: ErrorNoError, Status: StatusCharging},
		ActionAuthorize:          AuthorizeRequest{IdTag: "ABC123"},
		ActionStartTransaction:   StartTransactionRequest{ConnectorID: 1, IdTag: "ABC123", MeterStart: 0, Timestamp: "2026-01-08T10:00:00Z"},
		ActionMeterValues: MeterValuesRequest{ConnectorID: 1, MeterValue: []MeterValue{
			{Timestamp: "2026-01-08T10:00:10Z", SampledValue: []SampledValue{{Value: "120", Measurand: "Energy.Active.Import.Register", Unit: "Wh"}}},
		}},
		ActionStopTransaction:      StopTransactionRequest{TransactionID: 7, MeterStop: 5000, Timestamp: "2026-01-08T10:30:00Z", Reason: ReasonLocal},
		ActionSetChargingProfile:   SetChargingProfileRequest{ConnectorID: 1, CsChargingProfiles: ChargingProfile{ChargingProfileID: 1, StackLevel: 0, ChargingProfilePurpose: PurposeChargePointMax, ChargingProfileKind: KindAbsolute, ChargingSchedule: ChargingSchedule{ChargingRateUnit: RateUnitWatts, ChargingSchedulePeriod: []ChargingSchedulePeriod{{StartPeriod: 0, Limit: 7400}}}}},
		ActionGetCompositeSchedule: GetCompositeScheduleRequest{ConnectorID: 1, Duration: 3600},
		ActionClearChargingProfile: ClearChargingProfileRequest{},
		ActionReset:                ResetRequest{Type: ResetSoft},
		ActionChangeAvailability:   ChangeAvailabilityRequest{ConnectorID: 0, Type: AvailabilityOperative},
		ActionTriggerMessage:       TriggerMessageRequest{RequestedMessage: TriggerHeartbeat},
	}

	for action, payload := range payloads {
		t.Run(action, func(t *testing.T) {
			raw, err := MarshalCall("uid-"+action, action, payload)
			if err != nil {
				t.Fatalf("expected marshal to succeed, got %v", err)
			}

			msg, err := Decode(raw)
			if err != nil {
				t.Fatalf("expected decode to succeed, got %v", err)
			}
			if msg.Action != action {
				t.Errorf("expected action '%s', got '%s'", action, msg.Action)
			}

			want, _ := json.Marshal(payload)
			if string(msg.Payload) != string(want) {
				t.Errorf("payload changed across round trip:\nwant %s\ngot  %s", want, msg.Payload)
			}
		})
	}
}

func TestMarshalCallResultNilPayload(t *testing.T) {
	raw, err := MarshalCallResult("id-1", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(raw) != `[3,"id-1",{}]` {
		t.Errorf("expected empty-object payload, got %s", raw)
	}
}

func TestMarshalCallError(t *testing.T) {
	raw, err := MarshalCallError("id-2", ErrorCodeNotImplemented, "no handler", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("expected decode to succeed, got %v", err)
	}
	if msg.ErrorCode != ErrorCodeNotImplemented {
		t.Errorf("expected code 'NotImplemented', got '%s'", msg.ErrorCode)
	}
}

func TestTimestampFormat(t *testing.T) {
	// OCPP wants ISO-8601 UTC with a trailing Z regardless of the input zone.
	loc := time.FixedZone("UTC+5", 5*3600)
	ts := Timestamp(time.Date(2026, 1, 8, 15, 0, 0, 0, loc))

	if !strings.HasSuffix(ts, "Z") {
		t.Errorf("expected trailing Z, got '%s'", ts)
	}
	if ts != "2026-01-08T10:00:00Z" {
		t.Errorf("expected '2026-01-08T10:00:00Z', got '%s'", ts)
	}

	parsed, err := ParseTimestamp(ts)
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}
	if !parsed.Equal(time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("expected 10:00 UTC, got %v", parsed)
	}
}

func TestCallErrorError(t *testing.T) {
	e := &CallError{Code: "GenericError", Description: "something failed"}
	if !strings.Contains(e.Error(), "GenericError") {
		t.Errorf("expected code in message, got '%s'", e.Error())
	}

	bare := &CallError{Code: "NotSupported"}
	if !strings.Contains(bare.Error(), "NotSupported") {
		t.Errorf("expected code in message, got '%s'", bare.Error())
	}
}
