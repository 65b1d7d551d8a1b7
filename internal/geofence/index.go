// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package geofence answers "is this point inside a danger zone, and which one".
//
// Zones are loaded once from a ZoneSource and are read-only afterwards; a
// reload builds a new zone slice and swaps it in atomically, so Lookup never
// takes a lock. Lookup is a linear scan in load order with a bounding-box
// precheck per zone, which is adequate for hundreds of zones but is not a
// spatial index.
//
// Containment is strict: a point on a zone edge or vertex is outside the zone,
// and so is a point inside a hole.
package geofence

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/metrics"
	"github.com/tomtom215/tourguard/internal/models"
)

// Match is the zone found by Lookup.
type Match struct {
	Name      string
	RiskLevel models.RiskLevel
	Advisory  string

	// Position is the zone's index in load order.
	Position int
}

type zone struct {
	models.DangerZone
	bound orb.Bound
}

// Index is the loaded set of danger zones.
type Index struct {
	zones    atomic.Pointer[[]zone]
	degraded atomic.Bool
	loadedAt atomic.Pointer[time.Time]
	logger   zerolog.Logger
}

// NewIndex returns an empty index. Until Load succeeds, Lookup matches nothing.
func NewIndex() *Index {
	ix := &Index{logger: logging.WithComponent("geofence")}
	empty := []zone{}
	ix.zones.Store(&empty)
	return ix
}

// Load replaces the zone set with the zones from src.
//
// When src fails, the error is logged, the index is emptied and marked
// degraded, and the error is returned so the caller can report it. A degraded
// index is still usable: it simply never matches.
func (ix *Index) Load(ctx context.Context, src ZoneSource) (int, error) {
	dz, err := src.Zones(ctx)
	if err != nil {
		empty := []zone{}
		ix.zones.Store(&empty)
		ix.degraded.Store(true)
		metrics.RecordGeofenceLoad(0, true)
		ix.logger.Error().Err(err).Str("source", src.String()).
			Msg("danger zones unavailable; danger-zone alerts are disabled")
		return 0, err
	}

	zones := make([]zone, 0, len(dz))
	for i := range dz {
		zones = append(zones, zone{DangerZone: dz[i], bound: dz[i].Geometry.Bound()})
	}
	ix.zones.Store(&zones)
	ix.degraded.Store(false)
	now := time.Now().UTC()
	ix.loadedAt.Store(&now)
	metrics.RecordGeofenceLoad(len(zones), false)

	ix.logger.Info().Int("zones", len(zones)).Str("source", src.String()).Msg("danger zones loaded")
	return len(zones), nil
}

// Lookup returns the first zone, in load order, that strictly contains the
// point. Overlaps are resolved by load order only.
func (ix *Index) Lookup(lat, lng float64) (*Match, bool) {
	pt := orb.Point{lng, lat}
	zones := *ix.zones.Load()
	for i := range zones {
		z := &zones[i]
		if !z.bound.Contains(pt) {
			continue
		}
		if containsStrict(z.Geometry, pt) {
			return &Match{Name: z.Name, RiskLevel: z.RiskLevel, Advisory: z.Advisory, Position: i}, true
		}
	}
	return nil, false
}

// Len returns the number of loaded zones.
func (ix *Index) Len() int {
	return len(*ix.zones.Load())
}

// Degraded reports whether the last Load failed.
func (ix *Index) Degraded() bool {
	return ix.degraded.Load()
}

// LoadedAt returns when zones were last loaded successfully.
func (ix *Index) LoadedAt() (time.Time, bool) {
	t := ix.loadedAt.Load()
	if t == nil {
		return time.Time{}, false
	}
	return *t, true
}

// Zones returns the loaded zones in load order.
func (ix *Index) Zones() []models.DangerZone {
	zones := *ix.zones.Load()
	out := make([]models.DangerZone, len(zones))
	for i := range zones {
		out[i] = zones[i].DangerZone
	}
	return out
}
