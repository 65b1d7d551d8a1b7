// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/tourguard/internal/auth"
	"github.com/tomtom215/tourguard/internal/middleware"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Middleware   *ChiMiddlewareConfig
	MaxBodyBytes int64

	// JWT guards admin routes; nil leaves them open (auth mode "none").
	JWT       *auth.JWTManager
	AdminRole string

	// Authorizer replaces the single AdminRole check with per-route
	// permissions when set.
	Authorizer auth.Authorizer

	// WebSocket serves GET /api/v1/ws when set.
	WebSocket http.Handler
}

// NewRouter builds the chi router for h.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mw := NewChiMiddleware(cfg.Middleware)
	r := chi.NewRouter()

	// Global middleware, outermost first
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.PrometheusMetrics)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("no route for " + r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, r.Method+" not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

		r.Get("/health", h.Health)
		r.Post("/routes", h.CreateRoute)
		r.Post("/observations", h.IngestObservation)
		r.Get("/alerts/{trip_id}", h.TripAlerts)
		r.Get("/geofence-status", h.GeofenceStatus)
		r.Get("/entities/{tourist_id}/{trip_id}/history", h.EntityHistory)

		if cfg.WebSocket != nil {
			r.Handle("/ws", cfg.WebSocket)
		}

		// Admin
		r.Group(func(r chi.Router) {
			if cfg.Authorizer != nil {
				r.Use(auth.RequirePermission(cfg.JWT, cfg.Authorizer))
			} else {
				r.Use(auth.RequireRole(cfg.JWT, cfg.AdminRole))
			}

			r.Post("/model/train", h.TrainModel)
			r.Post("/train", h.TrainModel)
			r.Get("/journal/export", h.ExportJournal)
			r.Get("/detectors", h.ListDetectors)
			r.Put("/detectors/{kind}", h.UpdateDetector)
		})
	})

	return r
}
