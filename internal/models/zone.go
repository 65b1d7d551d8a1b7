// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package models

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// RiskLevel grades both danger zones and alert severity.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is one of the three known levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// ParseRiskLevel parses a level case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return r, nil
}

// DangerZone is a named risk area. Geometry coordinates are lng/lat.
// Single polygons are stored as a one-element MultiPolygon.
type DangerZone struct {
	Name      string           `json:"name"`
	RiskLevel RiskLevel        `json:"risk_level"`
	Advisory  string           `json:"advisory"`
	Geometry  orb.MultiPolygon `json:"-"`
}
