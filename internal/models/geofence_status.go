// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package models

import "time"

// GeofenceStatus is the cached zone-containment result for one entity,
// refreshed on every observation.
type GeofenceStatus struct {
	TouristID   string     `json:"tourist_id"`
	TripID      string     `json:"trip_id"`
	InsideZone  bool       `json:"inside_zone"`
	ZoneName    *string    `json:"zone_name"`
	RiskLevel   *RiskLevel `json:"risk_level"`
	Advisory    *string    `json:"advisory"`
	Lat         float64    `json:"lat"`
	Lng         float64    `json:"lng"`
	LastUpdated time.Time  `json:"last_updated"`
}

// Key returns the status's entity key.
func (s *GeofenceStatus) Key() EntityKey {
	return EntityKey{TouristID: s.TouristID, TripID: s.TripID}
}
