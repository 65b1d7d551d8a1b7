// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAlertDecision(t *testing.T) {
	acceptedBefore := testutil.ToFloat64(AlertsAccepted.WithLabelValues("danger_zone", "high"))
	suppressedBefore := testutil.ToFloat64(AlertsSuppressed.WithLabelValues("anomaly"))

	RecordAlertDecision("danger_zone", "high", true)
	RecordAlertDecision("anomaly", "low", false)

	if got := testutil.ToFloat64(AlertsAccepted.WithLabelValues("danger_zone", "high")); got != acceptedBefore+1 {
		t.Errorf("accepted = %v, want %v", got, acceptedBefore+1)
	}
	if got := testutil.ToFloat64(AlertsSuppressed.WithLabelValues("anomaly")); got != suppressedBefore+1 {
		t.Errorf("suppressed = %v, want %v", got, suppressedBefore+1)
	}
}

func TestRecordJournalAppend(t *testing.T) {
	okBefore := testutil.ToFloat64(JournalAppends)
	failBefore := testutil.ToFloat64(JournalAppendFailures)

	RecordJournalAppend(time.Millisecond, nil)
	RecordJournalAppend(time.Millisecond, errors.New("disk full"))

	if got := testutil.ToFloat64(JournalAppends); got != okBefore+1 {
		t.Errorf("appends = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(JournalAppendFailures); got != failBefore+1 {
		t.Errorf("failures = %v, want %v", got, failBefore+1)
	}
}

func TestRecordGeofenceLoad(t *testing.T) {
	RecordGeofenceLoad(0, true)
	if got := testutil.ToFloat64(GeofenceDegraded); got != 1 {
		t.Errorf("degraded = %v, want 1", got)
	}
	RecordGeofenceLoad(3, false)
	if got := testutil.ToFloat64(GeofenceDegraded); got != 0 {
		t.Errorf("degraded = %v, want 0", got)
	}
	if got := testutil.ToFloat64(ZonesLoaded); got != 3 {
		t.Errorf("zones = %v, want 3", got)
	}
}

func TestRecordNotifierSend(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome string
	}{
		{"success", nil, "success"},
		{"failure", errors.New("timeout"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(NotifierSends.WithLabelValues("webhook", tt.outcome))
			RecordNotifierSend("webhook", 5*time.Millisecond, tt.err)
			if got := testutil.ToFloat64(NotifierSends.WithLabelValues("webhook", tt.outcome)); got != before+1 {
				t.Errorf("sends{%s} = %v, want %v", tt.outcome, got, before+1)
			}
		})
	}
}

func TestRecordIngestUnknownSource(t *testing.T) {
	before := testutil.ToFloat64(ObservationsIngested.WithLabelValues("unknown"))
	RecordIngest("", time.Millisecond)
	if got := testutil.ToFloat64(ObservationsIngested.WithLabelValues("unknown")); got != before+1 {
		t.Errorf("ingested{unknown} = %v, want %v", got, before+1)
	}
}

func TestRecordTrainingErrorKeepsRows(t *testing.T) {
	RecordTraining("trained", 120, time.Second)
	RecordTraining("error", 0, time.Second)
	if got := testutil.ToFloat64(ModelTrainingRows); got != 120 {
		t.Errorf("rows = %v, want 120", got)
	}
}
