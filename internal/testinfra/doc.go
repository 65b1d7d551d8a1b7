// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package testinfra starts real brokers and databases in Docker for
// integration tests of TourGuard's alert sinks and ingestion transports.
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/testinfra/...
//
// Tests call SkipIfNoDocker first, so the suite passes (as skipped) on
// machines without a Docker daemon.
//
// # Containers
//
//   - Postgres: the alert archive with the postgres driver
//   - Redis: the shared alert history
//   - RabbitMQ: the alert fanout publisher
//   - Mosquitto: the MQTT observation subscriber
//
// Example:
//
//	func TestArchive(t *testing.T) {
//	    SkipIfNoDocker(t)
//	    pg, err := NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer CleanupContainer(t, ctx, pg.Container)
//
//	    arch, err := archive.Open(ctx, archive.Config{Driver: "postgres", DSN: pg.DSN})
//	    // ...
//	}
package testinfra
