// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package models defines the data types shared by every TourGuard package:
// observations, route plans, danger zones, alerts and geofence status, plus the
// JSON envelope used by the HTTP API.
//
// JSON field names match the wire format used by tracking clients
// (tourist_id, speed_mps, alert_type, ...). Validation tags are evaluated by
// internal/validation at every ingestion boundary; nothing in this package
// clamps or coerces values.
package models
