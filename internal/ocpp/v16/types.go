package v16

import "time"

// Actions initiated by the charge point.
const (
	ActionBootNotification   = "BootNotification"
	ActionHeartbeat          = "Heartbeat"
	ActionStatusNotification = "StatusNotification"
	ActionAuthorize          = "Authorize"
	ActionStartTransaction   = "StartTransaction"
	ActionMeterValues        = "MeterValues"
	ActionStopTransaction    = "StopTransaction"
)

// Actions initiated by the CSMS.
const (
	ActionSetChargingProfile     = "SetChargingProfile"
	ActionGetCompositeSchedule   = "GetCompositeSchedule"
	ActionClearChargingProfile   = "ClearChargingProfile"
	ActionReset                  = "Reset"
	ActionChangeAvailability     = "ChangeAvailability"
	ActionTriggerMessage         = "TriggerMessage"
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
)

// RegistrationStatus is the BootNotification outcome.
type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

// AuthorizationStatus is the idTag verdict.
type AuthorizationStatus string

const (
	AuthorizationAccepted     AuthorizationStatus = "Accepted"
	AuthorizationBlocked      AuthorizationStatus = "Blocked"
	AuthorizationExpired      AuthorizationStatus = "Expired"
	AuthorizationInvalid      AuthorizationStatus = "Invalid"
	AuthorizationConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

// ChargePointStatus is the connector status reported via StatusNotification.
type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
)

// ChargePointErrorCode accompanies StatusNotification.
type ChargePointErrorCode string

const (
	ErrorNoError      ChargePointErrorCode = "NoError"
	ErrorInternal     ChargePointErrorCode = "InternalError"
	ErrorOtherError   ChargePointErrorCode = "OtherError"
	ErrorPowerMeter   ChargePointErrorCode = "PowerMeterFailure"
	ErrorPowerSwitch  ChargePointErrorCode = "PowerSwitchFailure"
	ErrorOverCurrent  ChargePointErrorCode = "OverCurrentFailure"
	ErrorWeakSignal   ChargePointErrorCode = "WeakSignal"
	ErrorConnectorLok ChargePointErrorCode = "ConnectorLockFailure"
)

// Reason explains a StopTransaction.
type Reason string

const (
	ReasonLocal        Reason = "Local"
	ReasonRemote       Reason = "Remote"
	ReasonHardReset    Reason = "HardReset"
	ReasonSoftReset    Reason = "SoftReset"
	ReasonPowerLoss    Reason = "PowerLoss"
	ReasonReboot       Reason = "Reboot"
	ReasonEVDisconnect Reason = "EVDisconnected"
	ReasonOther        Reason = "Other"
)

// ChargingProfilePurpose ranks profiles: TxProfile overrides TxDefaultProfile
// overrides ChargePointMaxProfile.
type ChargingProfilePurpose string

const (
	PurposeChargePointMax ChargingProfilePurpose = "ChargePointMaxProfile"
	PurposeTxDefault      ChargingProfilePurpose = "TxDefaultProfile"
	PurposeTx             ChargingProfilePurpose = "TxProfile"
)

// ChargingProfileKind anchors a schedule in time.
type ChargingProfileKind string

const (
	KindAbsolute  ChargingProfileKind = "Absolute"
	KindRecurring ChargingProfileKind = "Recurring"
	KindRelative  ChargingProfileKind = "Relative"
)

// RecurrencyKind selects the recurrence period for Recurring profiles.
type RecurrencyKind string

const (
	RecurrencyDaily  RecurrencyKind = "Daily"
	RecurrencyWeekly RecurrencyKind = "Weekly"
)

// ChargingRateUnit is the unit of schedule limits.
type ChargingRateUnit string

const (
	RateUnitWatts ChargingRateUnit = "W"
	RateUnitAmps  ChargingRateUnit = "A"
)

// ChargingProfileStatus is the SetChargingProfile outcome.
type ChargingProfileStatus string

const (
	ProfileAccepted     ChargingProfileStatus = "Accepted"
	ProfileRejected     ChargingProfileStatus = "Rejected"
	ProfileNotSupported ChargingProfileStatus = "NotSupported"
)

// ClearChargingProfileStatus is the ClearChargingProfile outcome.
type ClearChargingProfileStatus string

const (
	ClearAccepted ClearChargingProfileStatus = "Accepted"
	ClearUnknown  ClearChargingProfileStatus = "Unknown"
)

// GetCompositeScheduleStatus is the GetCompositeSchedule outcome.
type GetCompositeScheduleStatus string

const (
	CompositeAccepted GetCompositeScheduleStatus = "Accepted"
	CompositeRejected GetCompositeScheduleStatus = "Rejected"
)

// ResetType selects hard or soft reset.
type ResetType string

const (
	ResetHard ResetType = "Hard"
	ResetSoft ResetType = "Soft"
)

// GenericStatus covers Accepted/Rejected replies.
type GenericStatus string

const (
	GenericAccepted GenericStatus = "Accepted"
	GenericRejected GenericStatus = "Rejected"
)

// AvailabilityType is the requested ChangeAvailability mode.
type AvailabilityType string

const (
	AvailabilityOperative   AvailabilityType = "Operative"
	AvailabilityInoperative AvailabilityType = "Inoperative"
)

// AvailabilityStatus is the ChangeAvailability outcome.
type AvailabilityStatus string

const (
	AvailabilityAccepted  AvailabilityStatus = "Accepted"
	AvailabilityRejected  AvailabilityStatus = "Rejected"
	AvailabilityScheduled AvailabilityStatus = "Scheduled"
)

// TriggerMessageStatus is the TriggerMessage outcome.
type TriggerMessageStatus string

const (
	TriggerAccepted       TriggerMessageStatus = "Accepted"
	TriggerRejected       TriggerMessageStatus = "Rejected"
	TriggerNotImplemented TriggerMessageStatus = "NotImplemented"
)

// MessageTrigger names the message a TriggerMessage requests.
type MessageTrigger string

const (
	TriggerBootNotification   MessageTrigger = "BootNotification"
	TriggerHeartbeat          MessageTrigger = "Heartbeat"
	TriggerMeterValues        MessageTrigger = "MeterValues"
	TriggerStatusNotification MessageTrigger = "StatusNotification"
)

// Timestamp renders t in the ISO-8601 UTC form OCPP 1.6J expects.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTimestamp reads an OCPP timestamp back into a time.Time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// ---- Charge point → CSMS payloads ----

type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	Iccid                   string `json:"iccid,omitempty"`
	Imsi                    string `json:"imsi,omitempty"`
	MeterType               string `json:"meterType,omitempty"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty"`
}

type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status"`
	CurrentTime string             `json:"currentTime"`
	Interval    int                `json:"interval"`
}

type HeartbeatRequest struct{}

type HeartbeatResponse struct {
	CurrentTime string `json:"currentTime"`
}

type StatusNotificationRequest struct {
	ConnectorID int                  `json:"connectorId"`
	ErrorCode   ChargePointErrorCode `json:"errorCode"`
	Status      ChargePointStatus    `json:"status"`
	Timestamp   string               `json:"timestamp,omitempty"`
	Info        string               `json:"info,omitempty"`
}

type StatusNotificationResponse struct{}

type IdTagInfo struct {
	Status      AuthorizationStatus `json:"status"`
	ExpiryDate  string              `json:"expiryDate,omitempty"`
	ParentIdTag string              `json:"parentIdTag,omitempty"`
}

type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

type StartTransactionRequest struct {
	ConnectorID   int    `json:"connectorId"`
	IdTag         string `json:"idTag"`
	MeterStart    int    `json:"meterStart"`
	Timestamp     string `json:"timestamp"`
	ReservationID *int   `json:"reservationId,omitempty"`
}

type StartTransactionResponse struct {
	TransactionID int       `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Format    string `json:"format,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

type MeterValue struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

type MeterValuesRequest struct {
	ConnectorID   int          `json:"connectorId"`
	TransactionID *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}

type MeterValuesResponse struct{}

type StopTransactionRequest struct {
	TransactionID int    `json:"transactionId"`
	IdTag         string `json:"idTag,omitempty"`
	MeterStop     int    `json:"meterStop"`
	Timestamp     string `json:"timestamp"`
	Reason        Reason `json:"reason,omitempty"`
}

type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// ---- Smart charging structures ----

type ChargingSchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod"`
	Limit        float64 `json:"limit"`
	NumberPhases *int    `json:"numberPhases,omitempty"`
}

type ChargingSchedule struct {
	Duration               *int                     `json:"duration,omitempty"`
	StartSchedule          string                   `json:"startSchedule,omitempty"`
	ChargingRateUnit       ChargingRateUnit         `json:"chargingRateUnit"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty"`
}

type ChargingProfile struct {
	ChargingProfileID      int                    `json:"chargingProfileId"`
	TransactionID          *int                   `json:"transactionId,omitempty"`
	StackLevel             int                    `json:"stackLevel"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose"`
	ChargingProfileKind    ChargingProfileKind    `json:"chargingProfileKind"`
	RecurrencyKind         RecurrencyKind         `json:"recurrencyKind,omitempty"`
	ValidFrom              string                 `json:"validFrom,omitempty"`
	ValidTo                string                 `json:"validTo,omitempty"`
	ChargingSchedule       ChargingSchedule       `json:"chargingSchedule"`
}

// ---- CSMS → charge point payloads ----

type SetChargingProfileRequest struct {
	ConnectorID        int             `json:"connectorId"`
	CsChargingProfiles ChargingProfile `json:"csChargingProfiles"`
}

type SetChargingProfileResponse struct {
	Status ChargingProfileStatus `json:"status"`
}

type GetCompositeScheduleRequest struct {
	ConnectorID      int              `json:"connectorId"`
	Duration         int              `json:"duration"`
	ChargingRateUnit ChargingRateUnit `json:"chargingRateUnit,omitempty"`
}

type GetCompositeScheduleResponse struct {
	Status           GetCompositeScheduleStatus `json:"status"`
	ConnectorID      *int                       `json:"connectorId,omitempty"`
	ScheduleStart    string                     `json:"scheduleStart,omitempty"`
	ChargingSchedule *ChargingSchedule          `json:"chargingSchedule,omitempty"`
}

type ClearChargingProfileRequest struct {
	ID                     *int                   `json:"id,omitempty"`
	ConnectorID            *int                   `json:"connectorId,omitempty"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose,omitempty"`
	StackLevel             *int                   `json:"stackLevel,omitempty"`
}

type ClearChargingProfileResponse struct {
	Status ClearChargingProfileStatus `json:"status"`
}

type ResetRequest struct {
	Type ResetType `json:"type"`
}

type ResetResponse struct {
	Status GenericStatus `json:"status"`
}

type ChangeAvailabilityRequest struct {
	ConnectorID int              `json:"connectorId"`
	Type        AvailabilityType `json:"type"`
}

type ChangeAvailabilityResponse struct {
	Status AvailabilityStatus `json:"status"`
}

type TriggerMessageRequest struct {
	RequestedMessage MessageTrigger `json:"requestedMessage"`
	ConnectorID      *int           `json:"connectorId,omitempty"`
}

type TriggerMessageResponse struct {
	Status TriggerMessageStatus `json:"status"`
}

type RemoteStartTransactionRequest struct {
	IdTag           string           `json:"idTag"`
	ConnectorID     *int             `json:"connectorId,omitempty"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
}

type RemoteStartTransactionResponse struct {
	Status GenericStatus `json:"status"`
}

type RemoteStopTransactionRequest struct {
	TransactionID int `json:"transactionId"`
}

type RemoteStopTransactionResponse struct {
	Status GenericStatus `json:"status"`
}
