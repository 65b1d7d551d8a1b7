// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package geofence

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// boundaryEpsilon is the tolerance, in squared degrees, for a point to count
// as lying on an edge.
const boundaryEpsilon = 1e-12

// containsStrict reports whether pt is in the interior of mp. planar treats
// boundary points as inside, so edges and vertices are excluded first.
func containsStrict(mp orb.MultiPolygon, pt orb.Point) bool {
	for _, poly := range mp {
		if onPolygonBoundary(poly, pt) {
			continue
		}
		if planar.PolygonContains(poly, pt) {
			return true
		}
	}
	return false
}

func onPolygonBoundary(poly orb.Polygon, pt orb.Point) bool {
	for _, ring := range poly {
		for i := 0; i+1 < len(ring); i++ {
			if onSegment(ring[i], ring[i+1], pt) {
				return true
			}
		}
		// rings from GeoJSON are closed, but tolerate an open one
		if n := len(ring); n > 1 && ring[0] != ring[n-1] && onSegment(ring[n-1], ring[0], pt) {
			return true
		}
	}
	return false
}

func onSegment(a, b, p orb.Point) bool {
	cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
	if math.Abs(cross) > boundaryEpsilon {
		return false
	}
	return p[0] >= math.Min(a[0], b[0])-boundaryEpsilon && p[0] <= math.Max(a[0], b[0])+boundaryEpsilon &&
		p[1] >= math.Min(a[1], b[1])-boundaryEpsilon && p[1] <= math.Max(a[1], b[1])+boundaryEpsilon
}
