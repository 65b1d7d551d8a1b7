// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

/*
Package middleware provides the infrastructure HTTP middleware mounted on the
chi router in internal/api.

Key Components:

  - RequestID: honours or generates X-Request-ID and stores it in the logging context
  - PrometheusMetrics: per-route request counts, latency and in-flight gauge
  - BodyLimit: caps request bodies with http.MaxBytesReader

Middleware Stack:

The router mounts them outermost first:

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.PrometheusMetrics)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

PrometheusMetrics labels requests by chi route pattern (for example
/api/v1/alerts/{trip_id}) rather than the raw path, so trip and tourist ids
never become label values.
*/
package middleware
