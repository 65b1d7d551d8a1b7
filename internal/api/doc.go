// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

/*
Package api exposes the TourGuard HTTP API on a chi router.

Routes (all JSON endpoints use the models.APIResponse envelope):

	GET  /api/v1/health
	POST /api/v1/routes
	POST /api/v1/observations
	GET  /api/v1/alerts/{trip_id}            ?narrate=true adds safety text
	GET  /api/v1/geofence-status
	GET  /api/v1/entities/{tourist_id}/{trip_id}/history?limit=N
	GET  /api/v1/ws                          websocket alert stream

Admin routes (bearer JWT when security.auth_mode=jwt):

	POST /api/v1/model/train                 alias POST /api/v1/train
	GET  /api/v1/journal/export              CSV
	GET  /api/v1/detectors
	PUT  /api/v1/detectors/{kind}

Prometheus metrics are served at /metrics outside the versioned tree.
*/
package api
