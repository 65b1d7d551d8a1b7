// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

/*
Package services provides suture.Service wrappers for TourGuard components
whose lifecycle is not already Serve(ctx) shaped.

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server, translating ListenAndServe/Shutdown to Serve

NATS Router (NATSRouterService):
  - Runs the Watermill router that consumes observation messages
  - A router cannot be restarted, so an unexpected exit is reported with
    suture.ErrDoNotRestart

Embedded NATS (EmbeddedNATSService):
  - Owns an already started in-process nats-server and shuts it down when
    the tree stops

Model Trainer (TrainerService):
  - Loads or trains the anomaly model on startup and retrains on an interval

Components that already implement Serve (websocket.Hub, mqtt.Subscriber,
journal.GCService) are added to the tree directly.
*/
package services
