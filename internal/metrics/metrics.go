// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package metrics holds the Prometheus collectors exported at /metrics.
//
// Collectors are package-level promauto vars; callers use the Record helpers
// so label sets stay consistent across packages.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion

	ObservationsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourguard_observations_ingested_total",
			Help: "Observations accepted into the pipeline, by transport",
		},
		[]string{"source"}, // http, nats, mqtt
	)

	ObservationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourguard_observations_rejected_total",
			Help: "Observations rejected at the boundary, by transport and reason",
		},
		[]string{"source", "reason"}, // reason: decode, validation
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tourguard_ingest_duration_seconds",
			Help:    "Time to store and evaluate one observation",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	// Detection

	DetectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tourguard_detector_duration_seconds",
			Help:    "Time spent in each detector",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
		[]string{"detector"},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourguard_detector_errors_total",
			Help: "Detector failures that were swallowed (no alert this cycle)",
		},
		[]string{"detector"},
	)

	AlertsCandidate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourguard_alerts_candidate_total",
			Help: "Alerts produced by detectors before deduplication",
		},
		[]string{"kind", "severity"},
	)

	AlertsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourguard_alerts_accepted_total",
			Help: "Alerts that passed the cooldown gate",
		},
		[]string{"kind", "severity"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourguard_alerts_suppressed_total",
			Help: "Alerts dropped by the per-entity cooldown",
		},
		[]string{"kind"},
	)

	// State

	TrackedEntities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tourguard_tracked_entities",
			Help: "Entity keys with in-memory state",
		},
	)

	RoutesRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tourguard_routes_registered_total",
			Help: "Route plans stored or replaced",
		},
	)

	// Geofence

	ZonesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tourguard_geofence_zones_loaded",
			Help: "Danger zones currently loaded",
		},
	)

	GeofenceDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tourguard_geofence_degraded",
			Help: "1 when the zone source failed and no zones are loaded",
		},
	)

	// Journal

	JournalAppends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tourguard_journal_appends_total",
			Help: "Observations appended to the durable journal",
		},
	)

	JournalAppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tourguard_journal_append_failures_total",
			Help: "Journal appends that failed (ingestion continued)",
		},
	)

	JournalAppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tourguard_journal_append_duration_seconds",
			Help:    "Journal append latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	JournalGCRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourguard_journal_gc_runs_total",
			Help: "Value-log GC passes by outcome",
		},
		[]string{"outcome"}, // reclaimed, nothing, error
	)

	// Anomaly model

	ModelTrainings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourguard_model_trainings_total",
			Help: "Anomaly model training runs by outcome",
		},
		[]string{"outcome"}, // trained, neutral, error
	)

	ModelTrainingRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tourguard_model_training_rows",
			Help: "Rows used by the active anomaly model",
		},
	)

	ModelTrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tourguard_model_training_duration_seconds",
			Help:    "Anomaly model training time",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// Dispatch

	NotifierSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourguard_notifier_sends_total",
			Help: "Alert deliveries by notifier and outcome",
		},
		[]string{"notifier", "outcome"}, // success, error
	)

	NotifierDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tourguard_notifier_duration_seconds",
			Help:    "Alert delivery latency by notifier",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"notifier"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tourguard_circuit_breaker_state",
			Help: "Breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"name"},
	)

	// Messaging

	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourguard_messages_consumed_total",
			Help: "Broker messages consumed by transport and outcome",
		},
		[]string{"transport", "outcome"}, // outcome: ingested, malformed, invalid, error
	)

	// HTTP

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourguard_api_requests_total",
			Help: "HTTP requests by method, route pattern and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tourguard_api_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tourguard_api_active_requests",
			Help: "In-flight HTTP requests",
		},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tourguard_websocket_connections",
			Help: "Connected websocket clients",
		},
	)

	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourguard_authz_decisions_total",
			Help: "Admin route authorization decisions by role and outcome",
		},
		[]string{"role", "decision"}, // decision: allow, deny, error
	)
)

// RecordIngest counts one accepted observation.
func RecordIngest(source string, duration time.Duration) {
	if source == "" {
		source = "unknown"
	}
	ObservationsIngested.WithLabelValues(source).Inc()
	IngestDuration.Observe(duration.Seconds())
}

// RecordRejected counts one observation refused at the boundary.
func RecordRejected(source, reason string) {
	if source == "" {
		source = "unknown"
	}
	ObservationsRejected.WithLabelValues(source, reason).Inc()
}

// RecordDetector records one detector invocation.
func RecordDetector(detector string, duration time.Duration, err error) {
	DetectorDuration.WithLabelValues(detector).Observe(duration.Seconds())
	if err != nil {
		DetectorErrors.WithLabelValues(detector).Inc()
	}
}

// RecordAlertCandidate counts an alert before the cooldown gate.
func RecordAlertCandidate(kind, severity string) {
	AlertsCandidate.WithLabelValues(kind, severity).Inc()
}

// RecordAlertDecision counts the outcome of the cooldown gate.
func RecordAlertDecision(kind, severity string, accepted bool) {
	if accepted {
		AlertsAccepted.WithLabelValues(kind, severity).Inc()
		return
	}
	AlertsSuppressed.WithLabelValues(kind).Inc()
}

// RecordJournalAppend records one journal write attempt.
func RecordJournalAppend(duration time.Duration, err error) {
	if err != nil {
		JournalAppendFailures.Inc()
		return
	}
	JournalAppends.Inc()
	JournalAppendDuration.Observe(duration.Seconds())
}

// RecordGeofenceLoad publishes the outcome of a zone load.
func RecordGeofenceLoad(zones int, degraded bool) {
	ZonesLoaded.Set(float64(zones))
	if degraded {
		GeofenceDegraded.Set(1)
	} else {
		GeofenceDegraded.Set(0)
	}
}

// RecordTraining records one training run.
func RecordTraining(outcome string, rows int, duration time.Duration) {
	ModelTrainings.WithLabelValues(outcome).Inc()
	if outcome != "error" {
		ModelTrainingRows.Set(float64(rows))
	}
	ModelTrainingDuration.Observe(duration.Seconds())
}

// RecordNotifierSend records one alert delivery attempt.
func RecordNotifierSend(notifier string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	NotifierSends.WithLabelValues(notifier, outcome).Inc()
	NotifierDuration.WithLabelValues(notifier).Observe(duration.Seconds())
}

// RecordMessage counts one consumed broker message.
func RecordMessage(transport, outcome string) {
	MessagesConsumed.WithLabelValues(transport, outcome).Inc()
}

// RecordAPIRequest records a completed HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAuthzDecision counts one authorization check.
func RecordAuthzDecision(role string, allowed bool, err error) {
	decision := "deny"
	switch {
	case err != nil:
		decision = "error"
	case allowed:
		decision = "allow"
	}
	AuthzDecisions.WithLabelValues(role, decision).Inc()
}
