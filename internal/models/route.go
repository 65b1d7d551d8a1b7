// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package models

import (
	"errors"
	"time"
)

// MinRoutePoints is the smallest number of points that makes a usable route.
const MinRoutePoints = 2

// ErrRouteTooShort is returned when a route plan has fewer than MinRoutePoints.
var ErrRouteTooShort = errors.New("route requires at least two points")

// RoutePoint is one planned waypoint.
type RoutePoint struct {
	Lat    float64    `json:"lat" validate:"finite,gte=-90,lte=90"`
	Lng    float64    `json:"lng" validate:"finite,gte=-180,lte=180"`
	ETAUTC *time.Time `json:"eta_utc,omitempty"`
}

// RoutePlan is the ordered waypoint sequence an entity is expected to follow.
// Registering a plan for a key replaces the previous one.
type RoutePlan struct {
	TouristID string       `json:"tourist_id" validate:"required,max=128"`
	TripID    string       `json:"trip_id" validate:"required,max=128"`
	Points    []RoutePoint `json:"points" validate:"min=2,dive"`

	// AllowableDeviationM overrides the global route deviation threshold.
	AllowableDeviationM *float64 `json:"allowable_deviation_m,omitempty" validate:"omitempty,finite,gt=0"`
}

// Key returns the plan's entity key.
func (p *RoutePlan) Key() EntityKey {
	return EntityKey{TouristID: p.TouristID, TripID: p.TripID}
}

// Threshold returns the plan override if set, else def.
func (p *RoutePlan) Threshold(def float64) float64 {
	if p.AllowableDeviationM != nil {
		return *p.AllowableDeviationM
	}
	return def
}

// Clone returns a deep copy so stored plans cannot be mutated by callers.
func (p *RoutePlan) Clone() *RoutePlan {
	c := *p
	c.Points = make([]RoutePoint, len(p.Points))
	copy(c.Points, p.Points)
	if p.AllowableDeviationM != nil {
		v := *p.AllowableDeviationM
		c.AllowableDeviationM = &v
	}
	return &c
}
