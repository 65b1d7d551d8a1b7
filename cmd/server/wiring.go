// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package main

import (
	"github.com/tomtom215/tourguard/internal/anomaly"
	"github.com/tomtom215/tourguard/internal/api"
	"github.com/tomtom215/tourguard/internal/config"
	"github.com/tomtom215/tourguard/internal/geofence"
	"github.com/tomtom215/tourguard/internal/journal"
)

// zoneSource picks the danger zone source named by cfg.Source.
func zoneSource(cfg *config.GeofenceConfig) geofence.ZoneSource {
	if cfg.Source == "http" {
		return geofence.NewHTTPSource(cfg.URL, cfg.FetchTimeout, cfg.RetryCount)
	}
	return geofence.FileSource{Path: cfg.Path}
}

// trainingSources returns the journal (when open) followed by the optional
// historical dataset.
func trainingSources(cfg *config.Config, jrnl *journal.BadgerJournal) []anomaly.ObservationSource {
	var sources []anomaly.ObservationSource
	if jrnl != nil {
		sources = append(sources, jrnl)
	}
	if cfg.Anomaly.DatasetPath != "" {
		sources = append(sources, journal.CSVFileSource{Path: cfg.Anomaly.DatasetPath})
	}
	return sources
}

// middlewareConfig maps security settings onto the chi middleware.
func middlewareConfig(cfg *config.SecurityConfig) *api.ChiMiddlewareConfig {
	mw := api.DefaultChiMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.CORSOrigins
	mw.RateLimitDisabled = cfg.RateLimitDisabled
	if cfg.RateLimitRequests > 0 {
		mw.RateLimitRequests = cfg.RateLimitRequests
	}
	if cfg.RateLimitWindow > 0 {
		mw.RateLimitWindow = cfg.RateLimitWindow
	}
	return mw
}
