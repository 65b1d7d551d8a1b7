// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package eventprocessor

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tourguard/internal/models"
)

// AlertPublisher is a detection notifier that publishes every accepted alert
// to <prefix>.<alert_type>.
type AlertPublisher struct {
	pub    *Publisher
	prefix string
}

// NewAlertPublisher creates an AlertPublisher.
func NewAlertPublisher(pub *Publisher, prefix string) *AlertPublisher {
	return &AlertPublisher{pub: pub, prefix: prefix}
}

func (a *AlertPublisher) Name() string { return "nats" }

func (a *AlertPublisher) Enabled() bool { return a.pub != nil }

// Topic returns the subject an alert of kind is published on.
func (a *AlertPublisher) Topic(kind models.AlertKind) string {
	return a.prefix + "." + string(kind)
}

// Send publishes alert as JSON, keyed by the alert id.
func (a *AlertPublisher) Send(ctx context.Context, alert *models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	msg := message.NewMessage(alert.ID, data)
	msg.Metadata.Set("tourist_id", alert.TouristID)
	msg.Metadata.Set("trip_id", alert.TripID)
	msg.Metadata.Set("severity", string(alert.Severity))
	msg.SetContext(ctx)
	return a.pub.PublishContext(ctx, a.Topic(alert.Kind), msg)
}
