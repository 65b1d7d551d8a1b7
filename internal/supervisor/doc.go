// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

/*
Package supervisor runs TourGuard's long-lived components under a suture v4
supervisor tree.

The tree has three layers below the root:

	tourguard
	├── data-layer       journal GC, anomaly model trainer
	├── messaging-layer  WebSocket hub, embedded NATS, observation router, MQTT
	└── api-layer        HTTP server

A failing service is restarted by its layer without touching its siblings.
When a layer exceeds FailureThreshold it backs off for FailureBackoff before
restarting. Supervisor events are logged through sutureslog.

Wrappers for components that do not already implement suture.Service live in
the services subpackage.
*/
package supervisor
