// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package models

// EntityKey identifies one tracked trip. All per-entity state is keyed by it.
type EntityKey struct {
	TouristID string `json:"tourist_id"`
	TripID    string `json:"trip_id"`
}

// String renders the key as tourist::trip.
func (k EntityKey) String() string {
	return k.TouristID + "::" + k.TripID
}

// Less orders keys by tourist then trip.
func (k EntityKey) Less(other EntityKey) bool {
	if k.TouristID != other.TouristID {
		return k.TouristID < other.TouristID
	}
	return k.TripID < other.TripID
}
