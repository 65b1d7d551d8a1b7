// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package detection

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/geofence"
	"github.com/tomtom215/tourguard/internal/models"
)

// ZoneLookup finds the danger zone containing a point.
type ZoneLookup interface {
	Lookup(lat, lng float64) (*geofence.Match, bool)
}

// StatusStore receives the per-entity geofence status.
type StatusStore interface {
	UpdateGeofenceStatus(status models.GeofenceStatus)
}

// DangerZoneConfig holds the danger zone detector tunables.
type DangerZoneConfig struct {
	// MinRiskLevel suppresses alerts for zones below this level. The
	// geofence status is refreshed regardless.
	MinRiskLevel models.RiskLevel `json:"min_risk_level"`
}

func (c DangerZoneConfig) validate() error {
	if !c.MinRiskLevel.Valid() {
		return fmt.Errorf("min_risk_level must be low, medium or high, got %q", c.MinRiskLevel)
	}
	return nil
}

func riskRank(r models.RiskLevel) int {
	switch r {
	case models.RiskLow:
		return 1
	case models.RiskMedium:
		return 2
	case models.RiskHigh:
		return 3
	}
	return 0
}

// DangerZoneDetector refreshes the entity's geofence status and alerts when
// the observation lies inside a danger zone.
type DangerZoneDetector struct {
	toggle
	zones  ZoneLookup
	status StatusStore

	cfgMu sync.RWMutex
	cfg   DangerZoneConfig
}

// NewDangerZoneDetector creates an enabled danger zone detector that alerts
// on every zone.
func NewDangerZoneDetector(zones ZoneLookup, status StatusStore) *DangerZoneDetector {
	return &DangerZoneDetector{
		toggle: toggle{enabled: true},
		zones:  zones,
		status: status,
		cfg:    DangerZoneConfig{MinRiskLevel: models.RiskLow},
	}
}

func (d *DangerZoneDetector) Kind() models.AlertKind { return models.AlertDangerZone }

func (d *DangerZoneDetector) Check(_ context.Context, obs *models.Observation) (*models.Alert, error) {
	match, inside := d.track(obs)
	if !inside || riskRank(match.RiskLevel) < riskRank(d.current().MinRiskLevel) {
		return nil, nil
	}
	msg := fmt.Sprintf("Entered %s. %s", match.Name, match.Advisory)
	return models.NewAlert(obs, models.AlertDangerZone, match.RiskLevel, msg, map[string]string{
		"zone": match.Name,
	}), nil
}

// Track refreshes the entity's geofence status without alerting.
func (d *DangerZoneDetector) Track(obs *models.Observation) {
	d.track(obs)
}

func (d *DangerZoneDetector) track(obs *models.Observation) (*geofence.Match, bool) {
	match, inside := d.zones.Lookup(obs.Lat, obs.Lng)

	status := models.GeofenceStatus{
		TouristID:   obs.TouristID,
		TripID:      obs.TripID,
		InsideZone:  inside,
		Lat:         obs.Lat,
		Lng:         obs.Lng,
		LastUpdated: obs.Timestamp.UTC(),
	}
	if inside {
		name, risk, advisory := match.Name, match.RiskLevel, match.Advisory
		status.ZoneName = &name
		status.RiskLevel = &risk
		status.Advisory = &advisory
	}
	d.status.UpdateGeofenceStatus(status)
	return match, inside
}

func (d *DangerZoneDetector) current() DangerZoneConfig {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

func (d *DangerZoneDetector) Configure(raw json.RawMessage) error {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	next := d.cfg
	if err := decodeConfig(raw, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	d.cfg = next
	return nil
}

func (d *DangerZoneDetector) Config() any { return d.current() }
