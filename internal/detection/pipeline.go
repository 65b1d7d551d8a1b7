// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package detection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/anomaly"
	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/metrics"
	"github.com/tomtom215/tourguard/internal/models"
	"github.com/tomtom215/tourguard/internal/validation"
)

// EntityStore is the state the pipeline needs around the detectors.
type EntityStore interface {
	Lock(key models.EntityKey) (unlock func())
	AddObservation(ctx context.Context, obs *models.Observation)
	TryRegisterAlert(key models.EntityKey, ts time.Time) bool
}

// DetectorStore is everything the built-in detectors read or write.
type DetectorStore interface {
	RouteStore
	MotionStore
	StatusStore
}

// Settings configures the built-in detectors.
type Settings struct {
	Route      RouteDeviationConfig
	Inactivity InactivityConfig
	Anomaly    AnomalyConfig
}

// NewDetectors builds the four detectors in evaluation order: route
// deviation, inactivity, danger zone, anomaly.
func NewDetectors(store DetectorStore, zones ZoneLookup, scorer anomaly.Scorer, s Settings) ([]Detector, error) {
	route, err := NewRouteDeviationDetector(store, s.Route)
	if err != nil {
		return nil, fmt.Errorf("route deviation detector: %w", err)
	}
	inactivity, err := NewInactivityDetector(store, s.Inactivity)
	if err != nil {
		return nil, fmt.Errorf("inactivity detector: %w", err)
	}
	anomalyDetector, err := NewAnomalyDetector(scorer, s.Anomaly)
	if err != nil {
		return nil, fmt.Errorf("anomaly detector: %w", err)
	}
	return []Detector{route, inactivity, NewDangerZoneDetector(zones, store), anomalyDetector}, nil
}

// Pipeline runs every observation through the detectors and the per-entity
// cooldown gate, then hands accepted alerts to the dispatcher.
type Pipeline struct {
	store      EntityStore
	detectors  []Detector
	dispatcher Dispatcher
}

// NewPipeline creates a pipeline. Detectors run in the order given.
func NewPipeline(store EntityStore, dispatcher Dispatcher, detectors ...Detector) *Pipeline {
	return &Pipeline{
		store:      store,
		detectors:  detectors,
		dispatcher: dispatcher,
	}
}

// Ingest validates obs, records it, evaluates all enabled detectors and
// returns the alerts that passed the cooldown gate, in detector order.
// Only validation failures are returned as errors; the observation is not
// recorded in that case.
//
// The ingest source for metrics and logs is taken from the context
// (logging.ContextWithSource).
func (p *Pipeline) Ingest(ctx context.Context, obs *models.Observation) ([]*models.Alert, error) {
	start := time.Now()
	source := logging.SourceFromContext(ctx)

	if err := validation.ValidateObservation(obs); err != nil {
		metrics.RecordRejected(source, "validation")
		return nil, err
	}

	o := *obs
	o.Timestamp = o.Timestamp.UTC()

	accepted := p.evaluate(ctx, &o)

	if p.dispatcher != nil {
		for _, a := range accepted {
			p.dispatcher.Dispatch(ctx, a)
		}
	}

	metrics.RecordIngest(source, time.Since(start))
	logging.Ctx(ctx).Debug().
		Str("tourist_id", o.TouristID).
		Str("trip_id", o.TripID).
		Int("alerts", len(accepted)).
		Msg("observation ingested")
	return accepted, nil
}

// evaluate holds the entity lock for the history append, every detector
// state update and the cooldown decision.
func (p *Pipeline) evaluate(ctx context.Context, obs *models.Observation) []*models.Alert {
	key := obs.Key()
	unlock := p.store.Lock(key)
	defer unlock()

	p.store.AddObservation(ctx, obs)

	accepted := make([]*models.Alert, 0, 1)
	for _, d := range p.detectors {
		if !d.Enabled() {
			if t, ok := d.(Tracker); ok {
				t.Track(obs)
			}
			continue
		}
		kind := string(d.Kind())

		began := time.Now()
		alert, err := d.Check(ctx, obs)
		metrics.RecordDetector(kind, time.Since(began), err)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).
				Str("detector", kind).
				Str("tourist_id", obs.TouristID).
				Str("trip_id", obs.TripID).
				Msg("detector failed")
			continue
		}
		if alert == nil {
			continue
		}

		severity := string(alert.Severity)
		metrics.RecordAlertCandidate(kind, severity)
		ok := p.store.TryRegisterAlert(key, alert.Timestamp)
		metrics.RecordAlertDecision(kind, severity, ok)
		if ok {
			accepted = append(accepted, alert)
		}
	}
	return accepted
}

// Detectors describes every detector in evaluation order.
func (p *Pipeline) Detectors() []DetectorInfo {
	out := make([]DetectorInfo, 0, len(p.detectors))
	for _, d := range p.detectors {
		out = append(out, DetectorInfo{Kind: d.Kind(), Enabled: d.Enabled(), Config: d.Config()})
	}
	return out
}

// Detector returns the detector for kind.
func (p *Pipeline) Detector(kind models.AlertKind) (Detector, error) {
	for _, d := range p.detectors {
		if d.Kind() == kind {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDetector, kind)
}

// Reconfigure applies a runtime change to one detector. config is applied
// before enabled so a rejected config leaves the detector untouched.
func (p *Pipeline) Reconfigure(kind models.AlertKind, enabled *bool, config json.RawMessage) (DetectorInfo, error) {
	d, err := p.Detector(kind)
	if err != nil {
		return DetectorInfo{}, err
	}
	if len(config) > 0 {
		if err := d.Configure(config); err != nil {
			return DetectorInfo{}, err
		}
	}
	if enabled != nil {
		d.SetEnabled(*enabled)
	}
	logging.Info().
		Str("detector", string(kind)).
		Bool("enabled", d.Enabled()).
		Msg("detector reconfigured")
	return DetectorInfo{Kind: d.Kind(), Enabled: d.Enabled(), Config: d.Config()}, nil
}

// ApplyDisabled disables the listed kinds. Names are matched
// case-insensitively; unknown names are an error.
func (p *Pipeline) ApplyDisabled(kinds []string) error {
	for _, k := range kinds {
		d, err := p.Detector(models.AlertKind(strings.ToLower(strings.TrimSpace(k))))
		if err != nil {
			return err
		}
		d.SetEnabled(false)
	}
	return nil
}
