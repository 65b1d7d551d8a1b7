// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package detection

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/tomtom215/tourguard/internal/geo"
	"github.com/tomtom215/tourguard/internal/geofence"
	"github.com/tomtom215/tourguard/internal/models"
	"github.com/tomtom215/tourguard/internal/state"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// degPerMeter converts meters along a meridian (or the equator) to degrees.
var degPerMeter = 180 / (math.Pi * geo.EarthRadiusM)

type stubScorer struct {
	score float64
	err   error
}

func (s stubScorer) Score([3]float64) (float64, error) { return s.score, s.err }

type recordingDispatcher struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (r *recordingDispatcher) Dispatch(_ context.Context, a *models.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingDispatcher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// square returns a closed ring around (lat, lng) with the given half-size in degrees.
func square(lat, lng, half float64) orb.MultiPolygon {
	return orb.MultiPolygon{{orb.Ring{
		{lng - half, lat - half},
		{lng + half, lat - half},
		{lng + half, lat + half},
		{lng - half, lat + half},
		{lng - half, lat - half},
	}}}
}

type fixture struct {
	store      *state.Store
	index      *geofence.Index
	dispatcher *recordingDispatcher
	pipeline   *Pipeline
}

func newFixture(t *testing.T, scorer stubScorer, opts state.Options, zones ...models.DangerZone) *fixture {
	t.Helper()
	store := state.New(opts)
	index := geofence.NewIndex()
	if _, err := index.Load(context.Background(), geofence.StaticSource(zones)); err != nil {
		t.Fatalf("load zones: %v", err)
	}
	detectors, err := NewDetectors(store, index, scorer, defaultSettings())
	if err != nil {
		t.Fatalf("NewDetectors: %v", err)
	}
	disp := &recordingDispatcher{}
	return &fixture{
		store:      store,
		index:      index,
		dispatcher: disp,
		pipeline:   NewPipeline(store, disp, detectors...),
	}
}

func defaultSettings() Settings {
	return Settings{
		Route:      RouteDeviationConfig{DefaultThresholdM: 120, DistanceMode: DistanceModeWaypoint},
		Inactivity: InactivityConfig{Threshold: 15 * time.Minute, MotionSpeedMPS: 0.4},
		Anomaly:    AnomalyConfig{Threshold: -0.1, DefaultBatteryPct: 50},
	}
}

func observation(tourist, trip string, at time.Time, lat, lng, speed float64) *models.Observation {
	return &models.Observation{
		TouristID: tourist,
		TripID:    trip,
		Timestamp: at,
		Lat:       lat,
		Lng:       lng,
		SpeedMPS:  speed,
		AccuracyM: 5,
	}
}

// twoPointRoute is a 200 m east-west route on the equator starting at (0, 0).
func twoPointRoute(tourist, trip string) *models.RoutePlan {
	return &models.RoutePlan{
		TouristID: tourist,
		TripID:    trip,
		Points: []models.RoutePoint{
			{Lat: 0, Lng: 0},
			{Lat: 0, Lng: 200 * degPerMeter},
		},
	}
}
