// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package alerthistory keeps the accepted alerts of each trip for the
// GET /alerts/{trip_id} endpoint, in memory or in Redis.
package alerthistory

import (
	"context"
	"sync"

	"github.com/tomtom215/tourguard/internal/models"
)

// DefaultLimit caps the alerts kept per trip.
const DefaultLimit = 500

// Reader returns a trip's alerts, oldest first.
type Reader interface {
	ByTrip(ctx context.Context, tripID string) ([]*models.Alert, error)
}

// Memory is the in-process history. It is registered as a recorder, so an
// alert is visible here before the ingest call returns.
type Memory struct {
	limit int

	mu     sync.RWMutex
	byTrip map[string][]*models.Alert
}

// NewMemory creates an in-memory history keeping at most limit alerts per
// trip; limit <= 0 uses DefaultLimit.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Memory{limit: limit, byTrip: make(map[string][]*models.Alert)}
}

func (m *Memory) Name() string { return "history" }

// Record appends alert to its trip, dropping the oldest past the limit.
func (m *Memory) Record(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.byTrip[alert.TripID], alert)
	if over := len(list) - m.limit; over > 0 {
		list = append([]*models.Alert(nil), list[over:]...)
	}
	m.byTrip[alert.TripID] = list
	return nil
}

// ByTrip returns a copy of the trip's alerts. An unknown trip yields an
// empty, non-nil slice.
func (m *Memory) ByTrip(_ context.Context, tripID string) ([]*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Alert, len(m.byTrip[tripID]))
	copy(out, m.byTrip[tripID])
	return out, nil
}

// Trips returns the number of trips with at least one alert.
func (m *Memory) Trips() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byTrip)
}
