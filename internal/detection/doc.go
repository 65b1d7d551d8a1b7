// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

/*
Package detection runs the safety detectors against each ingested observation
and dispatches the alerts that survive the cooldown gate.

Detectors run in a fixed order:

 1. route_deviation: distance from the nearest route waypoint (or, opt-in,
    the nearest route segment) exceeds the plan's allowable deviation
 2. long_inactivity: no motion above the speed threshold for longer than the
    inactivity threshold
 3. danger_zone: the point lies strictly inside a loaded danger zone; the
    entity's geofence status is refreshed on every observation
 4. anomaly: the anomaly scorer rates the [speed, accuracy, battery] vector
    below the threshold

Every candidate alert passes through the entity's cooldown gate
(state.Store.TryRegisterAlert), which is keyed by entity and not by alert
kind: a burst of detectors firing on one observation yields at most one
accepted alert.

Ingest for one entity runs under that entity's lock, so observations for the
same (tourist, trip) are applied one at a time while different entities
proceed in parallel. Dispatch happens after the lock is released.

Accepted alerts go to an AlertDispatcher, which runs Recorders inline and
Notifiers (webhook, brokers, websocket, archive) asynchronously with a
per-notifier timeout.
*/
package detection
