// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package ingest is the decode, validate and ingest path shared by the
// broker transports (NATS, MQTT).
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/logging"
	"github.com/tomtom215/tourguard/internal/metrics"
	"github.com/tomtom215/tourguard/internal/models"
	"github.com/tomtom215/tourguard/internal/validation"
)

// Message outcomes, also used as metric labels.
const (
	OutcomeIngested  = "ingested"
	OutcomeMalformed = "malformed"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// ErrMalformed wraps payloads that are not a JSON observation.
var ErrMalformed = errors.New("malformed observation payload")

// Ingester accepts one observation; detection.Pipeline implements it.
type Ingester interface {
	Ingest(ctx context.Context, obs *models.Observation) ([]*models.Alert, error)
}

// Decode parses a JSON observation.
func Decode(payload []byte) (*models.Observation, error) {
	var obs models.Observation
	if err := json.Unmarshal(payload, &obs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &obs, nil
}

// Handle decodes payload and ingests it, returning the outcome. Malformed and
// invalid payloads are logged and counted; redelivering them cannot succeed,
// so callers acknowledge every outcome except OutcomeError.
func Handle(ctx context.Context, in Ingester, transport string, payload []byte) (string, error) {
	ctx = logging.ContextWithSource(ctx, transport)
	log := logging.Ctx(ctx)

	obs, err := Decode(payload)
	if err != nil {
		metrics.RecordRejected(transport, OutcomeMalformed)
		metrics.RecordMessage(transport, OutcomeMalformed)
		log.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping malformed observation")
		return OutcomeMalformed, nil
	}

	alerts, err := in.Ingest(ctx, obs)
	if err != nil {
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			metrics.RecordMessage(transport, OutcomeInvalid)
			log.Warn().Err(err).
				Str("tourist_id", obs.TouristID).
				Str("trip_id", obs.TripID).
				Msg("dropping invalid observation")
			return OutcomeInvalid, nil
		}
		metrics.RecordMessage(transport, OutcomeError)
		return OutcomeError, err
	}

	metrics.RecordMessage(transport, OutcomeIngested)
	if len(alerts) > 0 {
		log.Info().
			Str("tourist_id", obs.TouristID).
			Str("trip_id", obs.TripID).
			Int("alerts", len(alerts)).
			Msg("observation raised alerts")
	}
	return OutcomeIngested, nil
}
