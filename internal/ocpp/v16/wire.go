package v16

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OCPP 1.6 message types
const (
	CallMessage       = 2
	CallResultMessage = 3
	CallErrorMessage  = 4
)

// OCPP 1.6 RPC error codes
const (
	ErrorCodeNotImplemented       = "NotImplemented"
	ErrorCodeNotSupported         = "NotSupported"
	ErrorCodeInternalError        = "InternalError"
	ErrorCodeProtocolError        = "ProtocolError"
	ErrorCodeSecurityError        = "SecurityError"
	ErrorCodeFormationViolation   = "FormationViolation"
	ErrorCodePropertyConstraint   = "PropertyConstraintViolation"
	ErrorCodeOccurrenceConstraint = "OccurenceConstraintViolation"
	ErrorCodeTypeConstraint       = "TypeConstraintViolation"
	ErrorCodeGenericError         = "GenericError"
)

// Subprotocol is the WebSocket subprotocol negotiated on every OCPP 1.6J link.
const Subprotocol = "ocpp1.6"

// Failure classes shared by the charge-point and CSMS sides.
var (
	ErrCallTimeout         = errors.New("ocpp: call timed out")
	ErrCancelled           = errors.New("ocpp: call cancelled")
	ErrStationDisconnected = errors.New("ocpp: station not connected")
	ErrProtocolViolation   = errors.New("ocpp: protocol violation")
	ErrDuplicateStation    = errors.New("ocpp: station id already connected")
)

// Message is a decoded OCPP envelope. Type selects which fields are set:
// CALL carries Action and Payload, CALLRESULT carries Payload, CALLERROR
// carries the error triple.
type Message struct {
	Type             int
	UniqueID         string
	Action           string
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// CallError is the application-level error produced when the peer answers a
// CALL with a CALLERROR frame.
type CallError struct {
	Code        string
	Description string
	Details     json.RawMessage
}

func (e *CallError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("ocpp: call error %s", e.Code)
	}
	return fmt.Sprintf("ocpp: call error %s: %s", e.Code, e.Description)
}

// Decode parses a raw frame into a Message, validating the envelope shape.
// Format: [2, UniqueId, Action, Payload] for CALL,
// [3, UniqueId, Payload] for CALLRESULT,
// [4, UniqueId, ErrorCode, ErrorDescription, ErrorDetails] for CALLERROR.
func Decode(raw []byte) (*Message, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: not a JSON array: %v", ErrProtocolViolation, err)
	}
	if len(elems) < 3 {
		return nil, fmt.Errorf("%w: envelope too short (%d elements)", ErrProtocolViolation, len(elems))
	}

	msg := &Message{}
	if err := json.Unmarshal(elems[0], &msg.Type); err != nil {
		return nil, fmt.Errorf("%w: invalid message type: %v", ErrProtocolViolation, err)
	}
	if err := json.Unmarshal(elems[1], &msg.UniqueID); err != nil {
		return nil, fmt.Errorf("%w: invalid unique id: %v", ErrProtocolViolation, err)
	}
	if msg.UniqueID == "" {
		return nil, fmt.Errorf("%w: empty unique id", ErrProtocolViolation)
	}

	switch msg.Type {
	case CallMessage:
		if len(elems) < 4 {
			return nil, fmt.Errorf("%w: CALL envelope requires 4 elements", ErrProtocolViolation)
		}
		if err := json.Unmarshal(elems[2], &msg.Action); err != nil {
			return nil, fmt.Errorf("%w: invalid action: %v", ErrProtocolViolation, err)
		}
		if msg.Action == "" {
			return nil, fmt.Errorf("%w: empty action", ErrProtocolViolation)
		}
		msg.Payload = elems[3]
	case CallResultMessage:
		msg.Payload = elems[2]
	case CallErrorMessage:
		if len(elems) < 5 {
			return nil, fmt.Errorf("%w: CALLERROR envelope requires 5 elements", ErrProtocolViolation)
		}
		if err := json.Unmarshal(elems[2], &msg.ErrorCode); err != nil {
			return nil, fmt.Errorf("%w: invalid error code: %v", ErrProtocolViolation, err)
		}
		if err := json.Unmarshal(elems[3], &msg.ErrorDescription); err != nil {
			return nil, fmt.Errorf("%w: invalid error description: %v", ErrProtocolViolation, err)
		}
		msg.ErrorDetails = elems[4]
	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrProtocolViolation, msg.Type)
	}

	return msg, nil
}

// MarshalCall builds a CALL frame.
func MarshalCall(uniqueID, action string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{CallMessage, uniqueID, action, payload})
}

// MarshalCallResult builds a CALLRESULT frame.
func MarshalCallResult(uniqueID string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{CallResultMessage, uniqueID, payload})
}

// MarshalCallError builds a CALLERROR frame.
func MarshalCallError(uniqueID, code, description string, details map[string]interface{}) ([]byte, error) {
	if details == nil {
		details = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{CallErrorMessage, uniqueID, code, description, details})
}
