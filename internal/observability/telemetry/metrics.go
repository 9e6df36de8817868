package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fleet metrics
	StationsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocppsim_stations_running",
		Help: "Number of station agents currently running",
	})

	ActiveTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocppsim_active_transactions",
		Help: "Number of charging transactions currently open",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocppsim_energy_delivered_kwh_total",
		Help: "Total energy delivered across the fleet in kWh",
	})

	FleetUsageKW = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocppsim_fleet_usage_kw",
		Help: "Instantaneous fleet-wide charging power in kW",
	})

	FleetEarnings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocppsim_fleet_earnings",
		Help: "Accumulated earnings (energy times price at delivery)",
	})

	// OCPP transport metrics
	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocppsim_ocpp_messages_total",
		Help: "Total OCPP messages by action and direction",
	}, []string{"action", "direction"})

	OCPPCallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocppsim_ocpp_call_errors_total",
		Help: "Total CALLERROR frames received by action and code",
	}, []string{"action", "code"})

	OCPPCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ocppsim_ocpp_call_roundtrip_seconds",
		Help:    "Round-trip latency of outgoing OCPP calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocppsim_reconnects_total",
		Help: "Total station reconnect attempts",
	})

	// Central-system metrics
	ConnectedStations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocppsim_csms_connected_stations",
		Help: "Number of stations with an open central-system session",
	})

	CSMSTransactionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocppsim_csms_transactions_total",
		Help: "Total transactions started on the central system",
	})

	// Security metrics
	SecurityEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocppsim_security_events_total",
		Help: "Total security events recorded by type",
	}, []string{"type", "severity"})
)
