// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package detection

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/anomaly"
	"github.com/tomtom215/tourguard/internal/models"
)

// AnomalyConfig holds the anomaly detector tunables.
type AnomalyConfig struct {
	// Threshold is the decision score below which an observation is anomalous.
	Threshold float64 `json:"threshold"`

	// DefaultBatteryPct stands in for a missing battery reading.
	DefaultBatteryPct float64 `json:"default_battery_pct"`
}

func (c AnomalyConfig) validate() error {
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("threshold must be finite, got %v", c.Threshold)
	}
	if c.DefaultBatteryPct < 0 || c.DefaultBatteryPct > 100 || math.IsNaN(c.DefaultBatteryPct) {
		return fmt.Errorf("default_battery_pct must be within [0, 100], got %v", c.DefaultBatteryPct)
	}
	return nil
}

// AnomalyDetector scores the motion features of each observation.
type AnomalyDetector struct {
	toggle
	scorer anomaly.Scorer

	cfgMu sync.RWMutex
	cfg   AnomalyConfig
}

// NewAnomalyDetector creates an enabled anomaly detector. scorer is usually
// an *anomaly.Holder so retraining takes effect without rebuilding the
// pipeline.
func NewAnomalyDetector(scorer anomaly.Scorer, cfg AnomalyConfig) (*AnomalyDetector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &AnomalyDetector{
		toggle: toggle{enabled: true},
		scorer: scorer,
		cfg:    cfg,
	}, nil
}

func (d *AnomalyDetector) Kind() models.AlertKind { return models.AlertAnomaly }

// Check returns the scorer's error unchanged; the pipeline logs it and moves
// on without an alert.
func (d *AnomalyDetector) Check(_ context.Context, obs *models.Observation) (*models.Alert, error) {
	cfg := d.current()
	score, err := d.scorer.Score(obs.Features(cfg.DefaultBatteryPct))
	if err != nil {
		return nil, fmt.Errorf("score observation: %w", err)
	}
	if math.IsNaN(score) {
		return nil, ErrNaNScore
	}
	if score >= cfg.Threshold {
		return nil, nil
	}
	msg := fmt.Sprintf("Unexpected motion pattern score=%.2f", score)
	return models.NewAlert(obs, models.AlertAnomaly, models.RiskLow, msg, nil), nil
}

func (d *AnomalyDetector) current() AnomalyConfig {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

func (d *AnomalyDetector) Configure(raw json.RawMessage) error {
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

func (d *AnomalyDetector) Config() any { return d.current() }
