// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

/*
Package websocket streams accepted alerts to connected dashboards.

The Hub owns the client set and runs as a supervised service. Each Client
has a read pump (client pings, pong deadline) and a write pump (hub
messages, server pings). A client whose send buffer is full is dropped
rather than allowed to stall the broadcast.

Clients may pass ?trip_id=<id> to receive only that trip's alerts.

Wire format:

	{"type":"alert","data":{...models.Alert...}}
	{"type":"pong","data":null}

The Hub is also a detection notifier, so the dispatcher pushes every
accepted alert to it.
*/
package websocket
