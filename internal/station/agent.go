// Package station implements the charge-point side of OCPP 1.6J: a
// WebSocket agent that boots against a central system, runs simulated
// charging sessions, and obeys both its local charging policy and any
// charging profiles installed over OCPP.
package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-swarm/internal/policy"
	"github.com/seu-repo/ocpp-swarm/internal/profile"
)

const (
	connectorID = 1

	defaultCallTimeout  = 30 * time.Second
	defaultBootRetry    = 30 * time.Second
	policyRetryDelay    = 60 * time.Second
	unavailablePollGap  = 5 * time.Second
	maxBackoff          = 60 * time.Second
	shutdownCallTimeout = 3 * time.Second
	stopGrace           = 5 * time.Second
	softFloorWh         = 10.0
)

// Config assembles a station agent.
type Config struct {
	ID       string
	CSMSURL  string // base endpoint; the station id is appended as a path segment
	Profile  domain.StationProfile
	Vendor   string
	Model    string
	Firmware string

	// InitialPrice seeds the observed energy price before the first fan-out.
	InitialPrice float64
	// Voltage overrides the nominal grid voltage used for ampere limits.
	Voltage float64
	// CallTimeout overrides the per-call deadline. Zero keeps the default.
	CallTimeout time.Duration

	Logger *zap.Logger
}

type loopExit int

const (
	exitNone loopExit = iota
	exitStop
	exitConnLost
	exitOffline
)

type meterResult struct {
	exit   loopExit
	reason v16.Reason
	reboot bool
}

// atomicFloat is a lock-free float64 cell, used for the published price.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }

// Agent is one simulated charge point. It owns its WebSocket connection,
// its charging-profile manager, and three goroutines: a read loop, a
// lifecycle loop, and a heartbeat loop.
type Agent struct {
	id       string
	csmsURL  string
	vendor   string
	model    string
	firmware string
	profile  domain.StationProfile
	rules    policy.Rules

	log      *zap.Logger
	buf      *LogBuffer
	profiles *profile.Manager

	callTimeout time.Duration

	price     atomicFloat
	operative atomic.Bool
	running   atomic.Bool

	// Injected faults, consumed by the next matching frame.
	dropNextReply atomic.Bool
	dropNextSend  atomic.Bool
	corruptNext   atomic.Bool

	mu        sync.RWMutex
	conn      *websocket.Conn
	transport domain.TransportState
	status    v16.ChargePointStatus
	txID      int
	txStarted time.Time
	idTag     string
	sessionWh float64
	meterWh   float64
	usageKW   float64
	mode      domain.ControlMode
	battery   *Battery
	heartbeat time.Duration
	outage    time.Duration

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *v16.Message

	handlers map[string]callHandler

	resetCh      chan v16.ResetType
	remoteStopCh chan struct{}

	runCtx    context.Context
	cancelRun context.CancelFunc
	stopOnce  sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds an agent from cfg. The agent does not touch the network until
// Start is called.
func New(cfg Config) *Agent {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Vendor == "" {
		cfg.Vendor = "SwarmSim"
	}
	if cfg.Model == "" {
		cfg.Model = "VirtualCP"
	}
	if cfg.Firmware == "" {
		cfg.Firmware = "1.6.0"
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	hb := cfg.Profile.HeartbeatInterval
	if hb <= 0 {
		hb = 60 * time.Second
	}

	var opts []profile.Option
	if cfg.Voltage > 0 {
		opts = append(opts, profile.WithVoltage(cfg.Voltage))
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		id:           cfg.ID,
		csmsURL:      cfg.CSMSURL,
		vendor:       cfg.Vendor,
		model:        cfg.Model,
		firmware:     cfg.Firmware,
		profile:      cfg.Profile,
		log:          log,
		buf:          NewLogBuffer(DefaultLogCapacity),
		profiles:     profile.NewManager(opts...),
		callTimeout:  cfg.CallTimeout,
		transport:    domain.TransportDisconnected,
		status:       v16.StatusUnavailable,
		mode:         domain.ControlModePolicy,
		heartbeat:    hb,
		pending:      make(map[string]chan *v16.Message),
		resetCh:      make(chan v16.ResetType, 1),
		remoteStopCh: make(chan struct{}, 1),
		runCtx:       ctx,
		cancelRun:    cancel,
		stopChan:     make(chan struct{}),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	a.rules = policy.Rules{
		ChargeIfPriceBelow: cfg.Profile.ChargeIfPriceBelow,
		MaxEnergyKWh:       cfg.Profile.MaxEnergyKWh,
		AllowPeakHours:     cfg.Profile.AllowPeakHours,
		PeakHours:          cfg.Profile.PeakHours,
	}
	a.price.Store(cfg.InitialPrice)
	a.operative.Store(true)
	a.handlers = a.buildHandlers()
	return a
}

// ID returns the station identifier.
func (a *Agent) ID() string { return a.id }

// ProfileName returns the name of the behavior preset the agent runs.
func (a *Agent) ProfileName() string { return a.profile.Name }

// Profiles exposes the agent's charging-profile manager.
func (a *Agent) Profiles() *profile.Manager { return a.profiles }

// Running reports whether the lifecycle loop is active.
func (a *Agent) Running() bool { return a.running.Load() }

// Start launches the agent. It is idempotent; a stopped agent stays stopped.
func (a *Agent) Start() {
	select {
	case <-a.stopChan:
		return
	default:
	}
	if !a.running.CompareAndSwap(false, true) {
		return
	}
	a.buf.Append("Station initialized")
	a.log.Info("station initialized",
		zap.String("station_id", a.id),
		zap.String("profile", a.profile.Name),
	)
	telemetry.StationsRunning.Inc()
	a.wg.Add(1)
	go a.run()
}

// Stop shuts the agent down: no new sessions are scheduled, an active
// transaction is stopped with reason HardReset, and the socket is closed
// with a normal close frame. Stop blocks until shutdown completes or the
// grace period elapses. A stopped agent cannot be restarted.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopChan)
		a.cancelRun()
	})

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		a.log.Warn("station stop timed out, forcing close", zap.String("station_id", a.id))
		a.closeConn()
	}
	if a.running.CompareAndSwap(true, false) {
		telemetry.StationsRunning.Dec()
	}
}

// ApplyPrice publishes a new observed energy price to the agent.
func (a *Agent) ApplyPrice(p float64) {
	a.price.Store(p)
}

// Price returns the price the agent currently observes.
func (a *Agent) Price() float64 {
	return a.price.Load()
}

// Logs returns a copy of the station log, oldest first.
func (a *Agent) Logs() []string {
	return a.buf.Entries()
}

// InjectFault arms a failure for the next matching frame, or drops the
// connection immediately for FaultDisconnect.
func (a *Agent) InjectFault(kind domain.FaultKind) error {
	switch kind {
	case domain.FaultDisconnect:
		a.buf.Append("Injected fault: disconnect")
		a.closeConn()
	case domain.FaultTimeout:
		a.dropNextReply.Store(true)
	case domain.FaultDropMessage:
		a.dropNextSend.Store(true)
	case domain.FaultCorruptPayload:
		a.corruptNext.Store(true)
	default:
		return fmt.Errorf("unknown fault kind %q", kind)
	}
	a.log.Warn("fault injected",
		zap.String("station_id", a.id),
		zap.String("kind", string(kind)),
	)
	return nil
}

// Snapshot returns the station's current control-plane view.
func (a *Agent) Snapshot() domain.StationSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	percent := 0.0
	if a.profile.MaxEnergyKWh > 0 {
		percent = a.sessionWh / 1000 / a.profile.MaxEnergyKWh * 100
	}
	snap := domain.StationSnapshot{
		ID:                 a.id,
		Profile:            a.profile.Name,
		Running:            a.running.Load(),
		Status:             string(a.status),
		Transport:          a.transport,
		UsageKW:            a.usageKW,
		EnergyKWh:          a.sessionWh / 1000,
		MaxEnergyKWh:       a.profile.MaxEnergyKWh,
		EnergyPercent:      percent,
		ChargeIfPriceBelow: a.rules.ChargeIfPriceBelow,
		AllowPeak:          a.rules.AllowPeakHours,
		ControlMode:        a.mode,
		ActiveTransaction:  a.txID,
		ProfileCount:       a.profiles.Count(),
	}
	if a.battery != nil {
		soc := a.battery.SoC()
		snap.BatterySoC = &soc
	}
	return snap
}

// ---- connection lifecycle ----

func (a *Agent) run() {
	defer a.wg.Done()

	attempt := 0
	for {
		if a.stopRequested() {
			a.finalize(nil)
			return
		}

		a.setTransport(domain.TransportConnecting)
		conn, err := a.dial()
		if err != nil {
			attempt++
			telemetry.ReconnectsTotal.Inc()
			delay := a.backoff(attempt)
			a.log.Warn("connect failed",
				zap.String("station_id", a.id),
				zap.Error(err),
				zap.Duration("retry_in", delay),
			)
			if !a.wait(delay, nil) {
				a.finalize(nil)
				return
			}
			continue
		}

		a.setConn(conn)
		a.setTransport(domain.TransportConnected)
		a.log.Info("connected to central system",
			zap.String("station_id", a.id),
			zap.String("url", a.endpoint()),
		)

		connDone := make(chan struct{})
		a.wg.Add(1)
		go a.readLoop(conn, connDone)

		if err := a.boot(connDone); err != nil {
			a.closeConn()
			<-connDone
			if a.stopRequested() {
				a.finalize(nil)
				return
			}
			attempt++
			if !a.wait(a.backoff(attempt), nil) {
				a.finalize(nil)
				return
			}
			continue
		}
		attempt = 0

		a.wg.Add(1)
		go a.heartbeatLoop(connDone)

		switch a.sessionLoop(connDone) {
		case exitStop:
			a.finalize(connDone)
			return
		case exitOffline:
			a.closeConn()
			<-connDone
			a.setTransport(domain.TransportDisconnected)
			d := a.takeOutage()
			a.buf.Appendf("Going offline for %.0fs (simulated)", d.Seconds())
			a.log.Info("simulating offline window",
				zap.String("station_id", a.id),
				zap.Duration("duration", d),
			)
			if !a.wait(d, nil) {
				a.finalize(nil)
				return
			}
		default: // connection lost
			a.closeConn()
			<-connDone
			a.setTransport(domain.TransportDisconnected)
			telemetry.ReconnectsTotal.Inc()
		}
	}
}

func (a *Agent) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{v16.Subprotocol},
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.Dial(a.endpoint(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", a.endpoint(), err)
	}
	return conn, nil
}

func (a *Agent) endpoint() string {
	return a.csmsURL + "/" + a.id
}

// backoff returns the reconnect delay for the given attempt: 1 s, 2 s, 4 s,
// doubling with ±20 % jitter, never above 60 s.
func (a *Agent) backoff(attempt int) time.Duration {
	d := maxBackoff
	if attempt >= 1 && attempt < 7 {
		d = time.Duration(1<<uint(attempt-1)) * time.Second
	}
	jitter := 0.8 + 0.4*a.randFloat()
	d = time.Duration(float64(d) * jitter)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (a *Agent) boot(connDone chan struct{}) error {
	for {
		req := v16.BootNotificationRequest{
			ChargePointVendor: a.vendor,
			ChargePointModel:  a.model,
			FirmwareVersion:   a.firmware,
		}
		a.buf.Append("BootNotification sent")
		var resp v16.BootNotificationResponse
		if err := a.call(a.runCtx, v16.ActionBootNotification, req, &resp); err != nil {
			return fmt.Errorf("boot: %w", err)
		}

		if resp.Status == v16.RegistrationAccepted {
			if resp.Interval > 0 {
				a.setHeartbeatInterval(time.Duration(resp.Interval) * time.Second)
			}
			a.buf.Append("BootNotification accepted")
			a.log.Info("boot accepted",
				zap.String("station_id", a.id),
				zap.Int("heartbeat_interval", resp.Interval),
			)
			a.sendStatus(a.runCtx, v16.StatusAvailable)
			return nil
		}

		a.buf.Appendf("BootNotification rejected: %s", resp.Status)
		a.log.Warn("boot not accepted",
			zap.String("station_id", a.id),
			zap.String("status", string(resp.Status)),
		)
		retry := defaultBootRetry
		if resp.Interval > 0 {
			retry = time.Duration(resp.Interval) * time.Second
		}
		if !a.wait(retry, connDone) {
			return v16.ErrCancelled
		}
	}
}

func (a *Agent) heartbeatLoop(connDone chan struct{}) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.heartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-a.stopChan:
			return
		case <-connDone:
			return
		case <-ticker.C:
			var resp v16.HeartbeatResponse
			if err := a.call(a.runCtx, v16.ActionHeartbeat, v16.HeartbeatRequest{}, &resp); err != nil {
				a.log.Warn("heartbeat failed", zap.String("station_id", a.id), zap.Error(err))
				continue
			}
			a.buf.Append("Heartbeat sent")
		}
	}
}

// ---- session lifecycle ----

func (a *Agent) sessionLoop(connDone chan struct{}) loopExit {
	for {
		select {
		case <-a.stopChan:
			return exitStop
		case <-connDone:
			return exitConnLost
		default:
		}

		if _, ok := a.takeReset(); ok {
			// Reset while idle: drop the link and let the run loop reboot.
			a.closeConn()
			return exitConnLost
		}

		if !a.operative.Load() {
			if a.currentStatus() != v16.StatusUnavailable {
				a.sendStatus(a.runCtx, v16.StatusUnavailable)
			}
			a.wait(unavailablePollGap, connDone)
			continue
		}
		if a.currentStatus() == v16.StatusUnavailable {
			a.sendStatus(a.runCtx, v16.StatusAvailable)
		}

		if a.hasActiveTransaction() {
			// Reconnected mid-transaction; resume metering without a new
			// StartTransaction.
			res := a.meterLoop(connDone)
			if res.exit != exitNone {
				return res.exit
			}
			a.finishSession(res.reason)
			if res.reboot {
				a.closeConn()
				return exitConnLost
			}
			continue
		}

		if !a.profile.EnableTransactions {
			a.wait(a.randDuration(a.profile.IdleMin, a.profile.IdleMax), connDone)
			continue
		}

		idTag := a.pickTag()

		decision := policy.Evaluate(policy.StationState{}, a.rules, a.policyEnv(time.Now()))
		if decision.Action != policy.ActionCharge {
			a.buf.Appendf("%s - waiting", decision.Reason)
			a.log.Info("session deferred",
				zap.String("station_id", a.id),
				zap.String("reason", decision.Reason),
			)
			a.wait(policyRetryDelay, connDone)
			continue
		}

		if !a.startSession(idTag) {
			a.wait(a.randDuration(a.profile.IdleMin, a.profile.IdleMax), connDone)
			continue
		}

		res := a.meterLoop(connDone)
		if res.exit != exitNone {
			return res.exit
		}
		a.finishSession(res.reason)
		if res.reboot {
			a.closeConn()
			return exitConnLost
		}

		if !a.wait(a.randDuration(a.profile.IdleMin, a.profile.IdleMax), connDone) {
			continue
		}
		if d := a.maybeOffline(); d > 0 {
			a.setOutage(d)
			return exitOffline
		}
	}
}

// startSession runs Authorize → StatusNotification(Preparing) →
// StartTransaction → StatusNotification(Charging). It reports whether a
// transaction is now open.
func (a *Agent) startSession(idTag string) bool {
	ctx := a.runCtx

	var auth v16.AuthorizeResponse
	if err := a.call(ctx, v16.ActionAuthorize, v16.AuthorizeRequest{IdTag: idTag}, &auth); err != nil {
		a.log.Warn("authorize failed", zap.String("station_id", a.id), zap.Error(err))
		return false
	}
	if auth.IdTagInfo.Status != v16.AuthorizationAccepted {
		a.buf.Appendf("Authorization failed - %s (%s)", idTag, auth.IdTagInfo.Status)
		a.log.Info("authorization rejected",
			zap.String("station_id", a.id),
			zap.String("id_tag", idTag),
			zap.String("status", string(auth.IdTagInfo.Status)),
		)
		return false
	}
	a.buf.Appendf("Authorization successful - %s", idTag)

	a.sendStatus(ctx, v16.StatusPreparing)

	req := v16.StartTransactionRequest{
		ConnectorID: connectorID,
		IdTag:       idTag,
		MeterStart:  0,
		Timestamp:   v16.Timestamp(time.Now()),
	}
	var resp v16.StartTransactionResponse
	if err := a.call(ctx, v16.ActionStartTransaction, req, &resp); err != nil {
		a.log.Warn("start transaction failed", zap.String("station_id", a.id), zap.Error(err))
		a.sendStatus(ctx, v16.StatusAvailable)
		return false
	}
	if resp.IdTagInfo.Status != v16.AuthorizationAccepted {
		a.buf.Appendf("Transaction refused - %s (%s)", idTag, resp.IdTagInfo.Status)
		a.sendStatus(ctx, v16.StatusAvailable)
		return false
	}

	price := a.price.Load()
	a.mu.Lock()
	a.txID = resp.TransactionID
	a.txStarted = time.Now()
	a.idTag = idTag
	a.sessionWh = 0
	a.mode = domain.ControlModePolicy
	if a.profile.Battery != nil {
		a.battery = NewBattery(*a.profile.Battery)
	}
	a.mu.Unlock()

	a.sendStatus(ctx, v16.StatusCharging)
	a.buf.Appendf("Charging started (price: $%.2f, id_tag: %s)", price, idTag)
	a.log.Info("charging started",
		zap.String("station_id", a.id),
		zap.Int("transaction_id", resp.TransactionID),
		zap.String("id_tag", idTag),
		zap.Float64("price", price),
	)
	telemetry.ActiveTransactions.Inc()
	return true
}

// meterLoop advances the session one sample interval at a time. An installed
// charging profile caps the step with absolute precedence over the legacy
// policy; without one the policy decides, halving the step during allowed
// peak hours (never below the soft floor).
func (a *Agent) meterLoop(connDone chan struct{}) meterResult {
	maxWh := a.profile.MaxEnergyKWh * 1000
	for {
		interval := a.randDuration(a.profile.SampleMin, a.profile.SampleMax)
		if !a.wait(interval, connDone) {
			if a.stopRequested() {
				return meterResult{exit: exitStop}
			}
			return meterResult{exit: exitConnLost}
		}

		if rt, ok := a.takeReset(); ok {
			reason := v16.ReasonSoftReset
			if rt == v16.ResetHard {
				reason = v16.ReasonHardReset
			}
			return meterResult{reason: reason, reboot: true}
		}
		if a.takeRemoteStop() {
			return meterResult{reason: v16.ReasonRemote}
		}

		dt := interval.Seconds()
		step := a.randRange(a.profile.EnergyStepMinWh, a.profile.EnergyStepMaxWh)
		now := time.Now()
		mode := domain.ControlModePolicy

		if capW := a.profiles.GetCurrentLimit(connectorID, a.activeTransaction(), now); capW != nil {
			allowed := *capW * dt / 3600
			if allowed < step {
				step = allowed
			}
			mode = domain.ControlModeOCPPLimit
			a.buf.Appendf("OCPP limit: %.0fW → %.0fWh this interval", *capW, step)
		} else {
			tick := policy.EvaluateMeterTick(a.policyState(), a.rules, a.policyEnv(now), a.sessionEnergyWh(), maxWh)
			if tick.Action == policy.TickStop {
				a.buf.Appendf("%s - stopping", tick.Reason)
				a.log.Info("meter tick stop",
					zap.String("station_id", a.id),
					zap.String("reason", tick.Reason),
				)
				return meterResult{reason: v16.ReasonLocal}
			}
			if a.rules.AllowPeakHours && a.rules.InPeakHours(now.Hour()) {
				step /= 2
				if step < softFloorWh {
					step = softFloorWh
				}
			}
		}

		if b := a.currentBattery(); b != nil {
			step *= b.ChargeFactor()
			b.AddEnergy(step)
		}

		a.mu.Lock()
		if a.sessionWh+step > maxWh {
			step = maxWh - a.sessionWh
			if step < 0 {
				step = 0
			}
		}
		a.sessionWh += step
		a.meterWh += step
		a.usageKW = step * 3.6 / dt
		a.mode = mode
		sessionWh := a.sessionWh
		usageKW := a.usageKW
		txID := a.txID
		a.mu.Unlock()

		mv := v16.MeterValuesRequest{
			ConnectorID:   connectorID,
			TransactionID: &txID,
			MeterValue: []v16.MeterValue{{
				Timestamp: v16.Timestamp(now),
				SampledValue: []v16.SampledValue{
					{
						Value:     strconv.FormatFloat(sessionWh, 'f', 1, 64),
						Measurand: "Energy.Active.Import.Register",
						Unit:      "Wh",
					},
					{
						Value:     strconv.FormatFloat(usageKW*1000, 'f', 1, 64),
						Measurand: "Power.Active.Import",
						Unit:      "W",
					},
				},
			}},
		}
		if err := a.call(a.runCtx, v16.ActionMeterValues, mv, nil); err != nil {
			switch {
			case errors.Is(err, v16.ErrStationDisconnected):
				return meterResult{exit: exitConnLost}
			case errors.Is(err, v16.ErrCancelled):
				return meterResult{exit: exitStop}
			default:
				// Best effort, the session survives a lost sample.
				a.log.Warn("meter values failed", zap.String("station_id", a.id), zap.Error(err))
			}
		}

		if sessionWh >= maxWh {
			return meterResult{reason: v16.ReasonLocal}
		}
		if b := a.currentBattery(); b != nil && b.Full() {
			a.buf.Appendf("Battery reached %.0f%% - stopping", b.SoC())
			return meterResult{reason: v16.ReasonLocal}
		}
	}
}

// finishSession runs StopTransaction → StatusNotification(Finishing) →
// StatusNotification(Available).
func (a *Agent) finishSession(reason v16.Reason) {
	a.stopTransaction(a.runCtx, reason)
	a.sendStatus(a.runCtx, v16.StatusFinishing)
	a.sendStatus(a.runCtx, v16.StatusAvailable)
}

func (a *Agent) stopTransaction(ctx context.Context, reason v16.Reason) {
	a.mu.Lock()
	txID := a.txID
	idTag := a.idTag
	sessionWh := a.sessionWh
	a.mu.Unlock()
	if txID == 0 {
		return
	}

	req := v16.StopTransactionRequest{
		TransactionID: txID,
		IdTag:         idTag,
		MeterStop:     int(math.Round(sessionWh)),
		Timestamp:     v16.Timestamp(time.Now()),
		Reason:        reason,
	}
	var resp v16.StopTransactionResponse
	if err := a.call(ctx, v16.ActionStopTransaction, req, &resp); err != nil {
		a.log.Warn("stop transaction failed", zap.String("station_id", a.id), zap.Error(err))
	}

	a.mu.Lock()
	a.txID = 0
	a.idTag = ""
	a.usageKW = 0
	a.mode = domain.ControlModePolicy
	delivered := a.sessionWh
	a.mu.Unlock()

	telemetry.ActiveTransactions.Dec()
	a.buf.Appendf("Charging stopped (%.2f kWh delivered)", delivered/1000)
	a.log.Info("charging stopped",
		zap.String("station_id", a.id),
		zap.Int("transaction_id", txID),
		zap.Float64("energy_kwh", delivered/1000),
		zap.String("reason", string(reason)),
	)
}

func (a *Agent) sendStatus(ctx context.Context, status v16.ChargePointStatus) {
	req := v16.StatusNotificationRequest{
		ConnectorID: connectorID,
		ErrorCode:   v16.ErrorNoError,
		Status:      status,
		Timestamp:   v16.Timestamp(time.Now()),
	}
	if err := a.call(ctx, v16.ActionStatusNotification, req, nil); err != nil {
		a.log.Warn("status notification failed",
			zap.String("station_id", a.id),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()
	if status == v16.StatusAvailable {
		a.buf.Append("Connector available")
	}
}

// finalize performs the ordered shutdown: stop an active transaction over a
// still-usable link, close the socket with a normal close frame, and record
// the shutdown.
func (a *Agent) finalize(connDone chan struct{}) {
	if a.hasActiveTransaction() && a.connAlive() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownCallTimeout)
		a.stopTransaction(ctx, v16.ReasonHardReset)
		a.sendStatus(ctx, v16.StatusAvailable)
		cancel()
	}
	a.closeGracefully()
	if connDone != nil {
		select {
		case <-connDone:
		case <-time.After(time.Second):
		}
	}
	a.setTransport(domain.TransportDisconnected)
	a.buf.Append("Station shutting down")
	a.log.Info("station shutting down", zap.String("station_id", a.id))
}

// ---- wire plumbing ----

// call sends a CALL frame and waits for the matching CALLRESULT or
// CALLERROR. A CALLERROR reply surfaces as *v16.CallError; cancellation of
// ctx surfaces as ErrCancelled; a missing reply as ErrCallTimeout.
func (a *Agent) call(ctx context.Context, action string, req, out interface{}) error {
	a.mu.RLock()
	conn := a.conn
	a.mu.RUnlock()
	if conn == nil {
		return v16.ErrStationDisconnected
	}

	id := uuid.New().String()
	ch := make(chan *v16.Message, 1)
	a.pendingMu.Lock()
	a.pending[id] = ch
	a.pendingMu.Unlock()
	defer func() {
		a.pendingMu.Lock()
		delete(a.pending, id)
		a.pendingMu.Unlock()
	}()

	frame, err := v16.MarshalCall(id, action, req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", action, err)
	}
	if a.corruptNext.CompareAndSwap(true, false) {
		frame = frame[:len(frame)/2]
	}
	if a.dropNextSend.CompareAndSwap(true, false) {
		a.log.Warn("dropping outbound frame (injected fault)", zap.String("action", action))
	} else if err := a.writeFrame(conn, frame); err != nil {
		return fmt.Errorf("write %s: %w", action, err)
	}
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "sent").Inc()
	start := time.Now()

	timer := time.NewTimer(a.callTimeout)
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

func (a *Agent) writeFrame(conn *websocket.Conn, frame []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (a *Agent) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer a.wg.Done()
	defer close(done)
	defer a.failPending()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !a.stopRequested() {
				a.log.Debug("read loop ended", zap.String("station_id", a.id), zap.Error(err))
			}
			return
		}
		msg, err := v16.Decode(data)
		if err != nil {
			a.log.Warn("malformed frame from central system",
				zap.String("station_id", a.id),
				zap.Error(err),
			)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseProtocolError, "malformed frame"),
				time.Now().Add(time.Second))
			conn.Close()
			return
		}

		switch msg.Type {
		case v16.CallResultMessage, v16.CallErrorMessage:
			if a.dropNextReply.CompareAndSwap(true, false) {
				a.log.Warn("discarding reply (injected fault)", zap.String("unique_id", msg.UniqueID))
				continue
			}
			a.resolvePending(msg)
		case v16.CallMessage:
			telemetry.OCPPMessagesTotal.WithLabelValues(msg.Action, "received").Inc()
			a.dispatch(conn, msg)
		}
	}
}

func (a *Agent) resolvePending(msg *v16.Message) {
	a.pendingMu.Lock()
	ch, ok := a.pending[msg.UniqueID]
	if ok {
		delete(a.pending, msg.UniqueID)
	}
	a.pendingMu.Unlock()
	if !ok {
		a.log.Debug("reply for unknown call", zap.String("unique_id", msg.UniqueID))
		return
	}
	ch <- msg
}

// failPending closes every pending completion channel so blocked callers
// observe the lost connection instead of waiting out their timeout.
func (a *Agent) failPending() {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	for id, ch := range a.pending {
		close(ch)
		delete(a.pending, id)
	}
}

// ---- small state helpers ----

func (a *Agent) stopRequested() bool {
	select {
	case <-a.stopChan:
		return true
	default:
		return false
	}
}

// wait sleeps for d but returns early (false) on stop or connection loss. A
// nil connDone only observes stop.
func (a *Agent) wait(d time.Duration, connDone <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-a.stopChan:
		return false
	case <-connDone:
		return false
	}
}

func (a *Agent) setConn(conn *websocket.Conn) {
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
}

func (a *Agent) closeConn() {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (a *Agent) closeGracefully() {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()
	if conn == nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "station stopped"),
		deadline)
	conn.Close()
}

func (a *Agent) connAlive() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.conn != nil
}

func (a *Agent) setTransport(state domain.TransportState) {
	a.mu.Lock()
	a.transport = state
	a.mu.Unlock()
}

func (a *Agent) currentStatus() v16.ChargePointStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

func (a *Agent) hasActiveTransaction() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.txID != 0
}

func (a *Agent) activeTransaction() *profile.ActiveTransaction {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.txID == 0 {
		return nil
	}
	return &profile.ActiveTransaction{ID: a.txID, StartedAt: a.txStarted}
}

func (a *Agent) currentBattery() *Battery {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.battery
}

func (a *Agent) sessionEnergyWh() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionWh
}

func (a *Agent) policyState() policy.StationState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return policy.StationState{
		EnergyDispensedKWh: a.sessionWh / 1000,
		Charging:           a.txID != 0,
		SessionActive:      a.txID != 0,
	}
}

func (a *Agent) policyEnv(now time.Time) policy.Env {
	return policy.Env{CurrentPrice: a.price.Load(), Hour: now.Hour()}
}

func (a *Agent) heartbeatInterval() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.heartbeat
}

func (a *Agent) setHeartbeatInterval(d time.Duration) {
	a.mu.Lock()
	a.heartbeat = d
	a.mu.Unlock()
}

func (a *Agent) setOutage(d time.Duration) {
	a.mu.Lock()
	a.outage = d
	a.mu.Unlock()
}

func (a *Agent) takeOutage() time.Duration {
	a.mu.Lock()
	d := a.outage
	a.outage = 0
	a.mu.Unlock()
	return d
}

func (a *Agent) takeReset() (v16.ResetType, bool) {
	select {
	case rt := <-a.resetCh:
		return rt, true
	default:
		return "", false
	}
}

func (a *Agent) takeRemoteStop() bool {
	select {
	case <-a.remoteStopCh:
		return true
	default:
		return false
	}
}

func (a *Agent) maybeOffline() time.Duration {
	p := a.profile.OfflineProbability
	if p <= 0 {
		return 0
	}
	if a.randFloat() >= p {
		return 0
	}
	d := a.profile.OfflineDuration
	if d <= 0 {
		d = 30 * time.Second
	}
	return d
}

func (a *Agent) pickTag() string {
	tags := a.profile.IDTags
	if len(tags) == 0 {
		return "UNKNOWN"
	}
	return tags[a.randIntn(len(tags))]
}

func (a *Agent) randFloat() float64 {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return a.rng.Float64()
}

func (a *Agent) randIntn(n int) int {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return a.rng.Intn(n)
}

func (a *Agent) randRange(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + a.randFloat()*(max-min)
}

func (a *Agent) randDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(a.randFloat()*float64(max-min))
}
