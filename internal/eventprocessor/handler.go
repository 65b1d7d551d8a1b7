// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package eventprocessor

import (
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/tourguard/internal/ingest"
)

// Transport labels NATS traffic in metrics and logs.
const Transport = "nats"

// ObservationHandler feeds each message to in. Malformed and invalid
// payloads are acked; a pipeline error is returned so the router retries.
func ObservationHandler(in ingest.Ingester) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		outcome, err := ingest.Handle(msg.Context(), in, Transport, msg.Payload)
		if outcome == ingest.OutcomeError {
			return err
		}
		return nil
	}
}
