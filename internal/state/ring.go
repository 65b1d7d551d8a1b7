// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package state

import "github.com/tomtom215/tourguard/internal/models"

// ring is a bounded FIFO of observations. The backing slice grows on demand
// up to capacity, then wraps and overwrites the oldest entry.
type ring struct {
	buf   []models.Observation
	start int
	cap   int
}

func newRing(capacity int) *ring {
	initial := capacity
	if initial > 16 {
		initial = 16
	}
	return &ring{buf: make([]models.Observation, 0, initial), cap: capacity}
}

func (r *ring) len() int { return len(r.buf) }

func (r *ring) push(obs models.Observation) {
	if len(r.buf) < r.cap {
		r.buf = append(r.buf, obs)
		return
	}
	r.buf[r.start] = obs
	r.start = (r.start + 1) % r.cap
}

// tail copies the newest limit entries in chronological order; limit <= 0 means all.
func (r *ring) tail(limit int) []models.Observation {
	n := len(r.buf)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Observation, limit)
	skip := n - limit
	for i := 0; i < limit; i++ {
		out[i] = r.buf[(r.start+skip+i)%n]
	}
	return out
}
