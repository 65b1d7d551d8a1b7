// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package detection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/models"
)

var (
	// ErrUnknownDetector is returned when no detector handles an alert kind.
	ErrUnknownDetector = errors.New("unknown detector")

	// ErrNaNScore is returned when the scorer yields NaN, as a forest
	// fitted on degenerate data does.
	ErrNaNScore = errors.New("anomaly scorer returned NaN")
)

// Detector evaluates one observation for one alert kind.
type Detector interface {
	// Kind returns the alert kind this detector produces.
	Kind() models.AlertKind

	// Check evaluates obs and returns a candidate alert, or nil. Check may
	// update entity state and is always called under the entity's lock.
	Check(ctx context.Context, obs *models.Observation) (*models.Alert, error)

	// Configure replaces the detector's tunables from JSON.
	Configure(config json.RawMessage) error

	// Config returns the current tunables.
	Config() any

	Enabled() bool
	SetEnabled(enabled bool)
}

// Tracker is implemented by detectors that keep per-entity state. The
// pipeline calls Track instead of Check while the detector is disabled, so
// the state stays current and re-enabling never acts on stale data.
type Tracker interface {
	Track(obs *models.Observation)
}

var (
	_ Tracker = (*InactivityDetector)(nil)
	_ Tracker = (*DangerZoneDetector)(nil)
)

// DetectorInfo describes a detector for the admin API.
type DetectorInfo struct {
	Kind    models.AlertKind `json:"kind"`
	Enabled bool             `json:"enabled"`
	Config  any              `json:"config"`
}

// toggle is the enabled flag shared by all detectors.
type toggle struct {
	mu      sync.RWMutex
	enabled bool
}

func (t *toggle) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func (t *toggle) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// formatThreshold renders v the way the alert history has always shown it:
// integral values keep one decimal ("120.0"), others use the shortest form.
func formatThreshold(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// decodeConfig decodes raw into dst, rejecting unknown fields. An empty
// payload leaves dst unchanged.
func decodeConfig(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid detector config: %w", err)
	}
	return nil
}
