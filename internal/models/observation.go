// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package models

import "time"

// ObservationContext carries optional client-side flags.
type ObservationContext struct {
	ManualCheckIn bool    `json:"manual_check_in"`
	OnRoute       *bool   `json:"on_route,omitempty"`
	Notes         *string `json:"notes,omitempty" validate:"omitempty,max=1024"`
}

// Observation is one telemetry ping for an entity.
//
// Out-of-range values are rejected by validation, never clamped. Battery and
// heading are optional; detectors substitute documented defaults when absent.
type Observation struct {
	TouristID  string             `json:"tourist_id" validate:"required,max=128"`
	TripID     string             `json:"trip_id" validate:"required,max=128"`
	Timestamp  time.Time          `json:"timestamp" validate:"required"`
	Lat        float64            `json:"lat" validate:"finite,gte=-90,lte=90"`
	Lng        float64            `json:"lng" validate:"finite,gte=-180,lte=180"`
	SpeedMPS   float64            `json:"speed_mps" validate:"finite,gte=0"`
	AccuracyM  float64            `json:"accuracy_m" validate:"finite,gte=0"`
	BatteryPct *float64           `json:"battery_pct,omitempty" validate:"omitempty,finite,gte=0,lte=100"`
	HeadingDeg *float64           `json:"heading_deg,omitempty" validate:"omitempty,finite,gte=0,lt=360"`
	Context    ObservationContext `json:"context"`
}

// Key returns the observation's entity key.
func (o *Observation) Key() EntityKey {
	return EntityKey{TouristID: o.TouristID, TripID: o.TripID}
}

// Battery returns the battery percentage, or def when the client omitted it.
func (o *Observation) Battery(def float64) float64 {
	if o.BatteryPct == nil {
		return def
	}
	return *o.BatteryPct
}

// Features returns the anomaly feature vector [speed, accuracy, battery].
func (o *Observation) Features(defaultBattery float64) [3]float64 {
	return [3]float64{o.SpeedMPS, o.AccuracyM, o.Battery(defaultBattery)}
}
