// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

/*
Package eventprocessor carries observations in and alerts out over NATS using
Watermill.

Components:

  - EmbeddedServer: optional in-process nats-server for single-node deployments
  - EnsureStream: creates the JetStream stream when JetStream mode is on
  - Publisher: Watermill NATS publisher behind a circuit breaker
  - Subscriber: Watermill NATS subscriber (core NATS queue group, or a
    durable JetStream consumer bound to the stream)
  - Router: Watermill router with recoverer, retry, throttle and poison
    queue middleware
  - ObservationHandler: decodes, validates and ingests one message
  - AlertPublisher: detection notifier publishing each accepted alert to
    <alert_topic_prefix>.<alert_type>

Message flow:

	device -> tourguard.observations.<tourist_id> -> Router -> ObservationHandler
	       -> detection.Pipeline -> AlertPublisher -> tourguard.alerts.<alert_type>

Malformed and invalid observations are acknowledged and counted; only
pipeline failures are retried and, after the retries, sent to the poison
topic.
*/
package eventprocessor
