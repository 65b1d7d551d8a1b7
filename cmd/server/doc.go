// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

/*
Command server runs the TourGuard detection service.

TourGuard ingests tourist location observations over HTTP, NATS and MQTT,
evaluates each one against the trip's route plan, the loaded danger zones,
an inactivity timer and an isolation forest anomaly model, and fans accepted
alerts out to the configured sinks.

# Process Layout

	tourguard
	├── data-layer
	│   ├── journal-gc        (journal.enabled)
	│   └── model-trainer
	├── messaging-layer
	│   ├── ws-hub
	│   ├── nats-server       (nats.embedded_server)
	│   ├── nats-router       (nats.enabled)
	│   └── mqtt-subscriber   (mqtt.enabled)
	└── api-layer
	    └── http-server

Startup order:

 1. Configuration (koanf: defaults, YAML file, .env, environment)
 2. Logging (zerolog)
 3. Observation journal (BadgerDB)
 4. Entity state store and danger zone index
 5. Anomaly scorer holder and trainer
 6. Alert dispatcher and sinks (history, Redis, webhook, RabbitMQ, archive, NATS, WebSocket)
 7. Detection pipeline
 8. NATS and MQTT transports
 9. HTTP API
 10. Supervisor tree

# Configuration

Common environment variables:

	PORT=8080
	LOG_LEVEL=info
	GEOFENCE_PATH=./data/danger_zones.geojson
	JOURNAL_PATH=./data/journal
	AUTH_MODE=jwt
	JWT_SECRET=<32+ chars>
	RBAC_POLICY_PATH=./data/rbac_policy.csv
	NATS_ENABLED=true
	NATS_EMBEDDED_SERVER=true
	MQTT_ENABLED=true
	MQTT_BROKER_URL=tcp://localhost:1883

See internal/config for the full list.

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains in-flight
requests, in-flight alert notifications get ShutdownTimeout to finish, and
the journal and sink connections are closed last.
*/
package main
