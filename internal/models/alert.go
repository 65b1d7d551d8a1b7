// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertKind is the closed set of alert variants. Code that switches on it
// should handle all four kinds.
type AlertKind string

const (
	AlertRouteDeviation AlertKind = "route_deviation"
	AlertLongInactivity AlertKind = "long_inactivity"
	AlertDangerZone     AlertKind = "danger_zone"
	AlertAnomaly        AlertKind = "anomaly"
)

// AlertKinds lists every kind in detector evaluation order.
func AlertKinds() []AlertKind {
	return []AlertKind{AlertRouteDeviation, AlertLongInactivity, AlertDangerZone, AlertAnomaly}
}

// Valid reports whether k is one of the four kinds.
func (k AlertKind) Valid() bool {
	switch k {
	case AlertRouteDeviation, AlertLongInactivity, AlertDangerZone, AlertAnomaly:
		return true
	}
	return false
}

// Recipients every alert is addressed to.
const (
	RecipientTourist    = "tourist"
	RecipientAdminPanel = "admin_panel"
	RecipientFamily     = "family"
)

// DefaultRecipients returns a fresh copy of the fixed recipient list.
func DefaultRecipients() []string {
	return []string{RecipientTourist, RecipientAdminPanel, RecipientFamily}
}

// Alert is an accepted or candidate safety alert. Alerts are built only by the
// detection pipeline and are not modified after construction.
type Alert struct {
	ID         string            `json:"id"`
	TouristID  string            `json:"tourist_id"`
	TripID     string            `json:"trip_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Kind       AlertKind         `json:"alert_type"`
	Severity   RiskLevel         `json:"severity"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata"`
	Recipients []string          `json:"recipients"`
}

// NewAlert builds an alert for obs. The alert timestamp is the observation's.
func NewAlert(obs *Observation, kind AlertKind, severity RiskLevel, message string, metadata map[string]string) *Alert {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Alert{
		ID:         uuid.NewString(),
		TouristID:  obs.TouristID,
		TripID:     obs.TripID,
		Timestamp:  obs.Timestamp,
		Kind:       kind,
		Severity:   severity,
		Message:    message,
		Metadata:   metadata,
		Recipients: DefaultRecipients(),
	}
}

// Key returns the alert's entity key.
func (a *Alert) Key() EntityKey {
	return EntityKey{TouristID: a.TouristID, TripID: a.TripID}
}
