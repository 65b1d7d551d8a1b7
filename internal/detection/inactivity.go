// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package detection

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/models"
)

// MotionStore holds the per-entity last-motion timestamp.
type MotionStore interface {
	LastMotion(key models.EntityKey) (time.Time, bool)
	SetLastMotion(key models.EntityKey, ts time.Time)
}

// InactivityConfig holds the inactivity detector tunables.
type InactivityConfig struct {
	Threshold      time.Duration
	MotionSpeedMPS float64
}

// inactivityJSON is the wire form; the threshold travels as minutes.
type inactivityJSON struct {
	ThresholdMinutes float64 `json:"threshold_minutes"`
	MotionSpeedMPS   float64 `json:"motion_speed_mps"`
}

func (c InactivityConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(inactivityJSON{
		ThresholdMinutes: c.Threshold.Minutes(),
		MotionSpeedMPS:   c.MotionSpeedMPS,
	})
}

func (c *InactivityConfig) UnmarshalJSON(data []byte) error {
	w := inactivityJSON{
		ThresholdMinutes: c.Threshold.Minutes(),
		MotionSpeedMPS:   c.MotionSpeedMPS,
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Threshold = time.Duration(w.ThresholdMinutes * float64(time.Minute))
	c.MotionSpeedMPS = w.MotionSpeedMPS
	return nil
}

func (c InactivityConfig) validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %v", c.Threshold)
	}
	if c.MotionSpeedMPS < 0 || math.IsNaN(c.MotionSpeedMPS) || math.IsInf(c.MotionSpeedMPS, 0) {
		return fmt.Errorf("motion_speed_mps must be a non-negative number, got %v", c.MotionSpeedMPS)
	}
	return nil
}

// InactivityDetector alerts when an entity has not moved faster than the
// motion speed for longer than the threshold.
type InactivityDetector struct {
	toggle
	store MotionStore

	cfgMu sync.RWMutex
	cfg   InactivityConfig
}

// NewInactivityDetector creates an enabled inactivity detector.
func NewInactivityDetector(store MotionStore, cfg InactivityConfig) (*InactivityDetector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &InactivityDetector{
		toggle: toggle{enabled: true},
		store:  store,
		cfg:    cfg,
	}, nil
}

func (d *InactivityDetector) Kind() models.AlertKind { return models.AlertLongInactivity }

func (d *InactivityDetector) Check(_ context.Context, obs *models.Observation) (*models.Alert, error) {
	cfg := d.current()
	last, moved := d.track(obs, cfg)
	if moved || obs.SpeedMPS > cfg.MotionSpeedMPS {
		return nil, nil
	}
	if obs.Timestamp.Sub(last) <= cfg.Threshold {
		return nil, nil
	}

	minutes := strconv.FormatFloat(cfg.Threshold.Minutes(), 'f', -1, 64)
	msg := fmt.Sprintf("No movement detected for %s+ minutes.", minutes)
	return models.NewAlert(obs, models.AlertLongInactivity, models.RiskMedium, msg, nil), nil
}

// Track updates last-motion without evaluating inactivity.
func (d *InactivityDetector) Track(obs *models.Observation) {
	d.track(obs, d.current())
}

// track returns the last-motion time before obs and whether obs moved it.
// The first observation seeds last-motion whatever its speed, so it never
// alerts. Out-of-order observations never move it backwards.
func (d *InactivityDetector) track(obs *models.Observation, cfg InactivityConfig) (time.Time, bool) {
	key := obs.Key()
	last, seen := d.store.LastMotion(key)
	if !seen || (obs.SpeedMPS > cfg.MotionSpeedMPS && obs.Timestamp.After(last)) {
		d.store.SetLastMotion(key, obs.Timestamp)
		return last, true
	}
	return last, false
}

func (d *InactivityDetector) current() InactivityConfig {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

func (d *InactivityDetector) Configure(raw json.RawMessage) error {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	next := d.cfg
	if err := decodeConfig(raw, &next); err != nil {
		return err
	}
	if err := next.validate(); err != nil {
		return err
	}
	d.cfg = next
	return nil
}

func (d *InactivityDetector) Config() any { return d.current() }
