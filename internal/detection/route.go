// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package detection

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/geo"
	"github.com/tomtom215/tourguard/internal/models"
)

// Route distance modes.
const (
	DistanceModeWaypoint = "waypoint"
	DistanceModeSegment  = "segment"
)

// RouteStore is the slice of the state store the route detector reads.
type RouteStore interface {
	GetRoute(key models.EntityKey) (*models.RoutePlan, bool)
}

// RouteDeviationConfig holds the route detector tunables.
type RouteDeviationConfig struct {
	DefaultThresholdM float64 `json:"default_threshold_m"`
	DistanceMode      string  `json:"distance_mode"`
}

func (c RouteDeviationConfig) validate() error {
	if c.DefaultThresholdM <= 0 || math.IsNaN(c.DefaultThresholdM) || math.IsInf(c.DefaultThresholdM, 0) {
		return fmt.Errorf("default_threshold_m must be a positive number, got %v", c.DefaultThresholdM)
	}
	if c.DistanceMode != DistanceModeWaypoint && c.DistanceMode != DistanceModeSegment {
		return fmt.Errorf("distance_mode must be %q or %q, got %q", DistanceModeWaypoint, DistanceModeSegment, c.DistanceMode)
	}
	return nil
}

// RouteDeviationDetector alerts when an observation is farther from the
// entity's planned route than the allowed deviation.
type RouteDeviationDetector struct {
	toggle
	store RouteStore

	cfgMu sync.RWMutex
	cfg   RouteDeviationConfig
}

// NewRouteDeviationDetector creates an enabled route detector.
func NewRouteDeviationDetector(store RouteStore, cfg RouteDeviationConfig) (*RouteDeviationDetector, error) {
	if cfg.DistanceMode == "" {
		cfg.DistanceMode = DistanceModeWaypoint
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &RouteDeviationDetector{
		toggle: toggle{enabled: true},
		store:  store,
		cfg:    cfg,
	}, nil
}

func (d *RouteDeviationDetector) Kind() models.AlertKind { return models.AlertRouteDeviation }

func (d *RouteDeviationDetector) Check(_ context.Context, obs *models.Observation) (*models.Alert, error) {
	plan, ok := d.store.GetRoute(obs.Key())
	if !ok || len(plan.Points) == 0 {
		return nil, nil
	}
	cfg := d.current()

	threshold := plan.Threshold(cfg.DefaultThresholdM)
	distance := RouteDistance(obs.Lat, obs.Lng, plan, cfg.DistanceMode)
	if distance <= threshold {
		return nil, nil
	}

	msg := fmt.Sprintf("Off planned route by %d m.", int64(distance))
	return models.NewAlert(obs, models.AlertRouteDeviation, models.RiskMedium, msg, map[string]string{
		"route_threshold_m": formatThreshold(threshold),
	}), nil
}

// RouteDistance returns the distance in meters from (lat, lng) to the plan.
// In waypoint mode it is the distance to the nearest listed point; in
// segment mode the distance to the nearest point on the polyline.
func RouteDistance(lat, lng float64, plan *models.RoutePlan, mode string) float64 {
	pts := plan.Points
	best := math.Inf(1)
	if mode == DistanceModeSegment && len(pts) > 1 {
		for i := 1; i < len(pts); i++ {
			a, b := pts[i-1], pts[i]
			best = math.Min(best, geo.SegmentDistanceM(lat, lng, a.Lat, a.Lng, b.Lat, b.Lng))
		}
		return best
	}
	for _, p := range pts {
		best = math.Min(best, geo.HaversineM(lat, lng, p.Lat, p.Lng))
	}
	return best
}

func (d *RouteDeviationDetector) current() RouteDeviationConfig {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// Configure merges the supplied fields into the current configuration.
func (d *RouteDeviationDetector) Configure(raw json.RawMessage) error {
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

func (d *RouteDeviationDetector) Config() any { return d.current() }
