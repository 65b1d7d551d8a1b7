// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

package geo

import (
	"math"
	"testing"
)

const metersPerDegree = EarthRadiusM * math.Pi / 180

func TestHaversineM(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want, tol              float64
	}{
		{"same point", 41.38, 2.17, 41.38, 2.17, 0, 0},
		{"one degree of latitude", 0, 0, 1, 0, metersPerDegree, 1e-6},
		{"one degree of longitude at equator", 0, 0, 0, 1, metersPerDegree, 1e-6},
		{"antipodal", 0, 0, 0, 180, math.Pi * EarthRadiusM, 1e-3},
		{"paris to london", 48.8566, 2.3522, 51.5074, -0.1278, 343_500, 1_500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineM(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("HaversineM = %.3f, want %.3f ± %.3f", got, tt.want, tt.tol)
			}
		})
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := HaversineM(10, 20, -5, 33)
	b := HaversineM(-5, 33, 10, 20)
	if a != b {
		t.Errorf("distance not symmetric: %v vs %v", a, b)
	}
}

func TestSegmentDistanceM(t *testing.T) {
	// segment along the equator from lng 0 to lng 0.01 (~1.1 km)
	tests := []struct {
		name     string
		lat, lng float64
		want     float64
		tol      float64
	}{
		{"on segment interior", 0, 0.005, 0, 1e-6},
		{"perpendicular offset from midpoint", 0.001, 0.005, 0.001 * metersPerDegree, 0.05},
		{"beyond end clamps to endpoint b", 0, 0.02, 0.01 * metersPerDegree, 0.05},
		{"before start clamps to endpoint a", 0, -0.01, 0.01 * metersPerDegree, 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SegmentDistanceM(tt.lat, tt.lng, 0, 0, 0, 0.01)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("SegmentDistanceM = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestSegmentDistanceDegenerate(t *testing.T) {
	got := SegmentDistanceM(0, 0.001, 0, 0, 0, 0)
	want := HaversineM(0, 0.001, 0, 0)
	if got != want {
		t.Errorf("zero-length segment = %v, want %v", got, want)
	}
}

func TestSegmentNeverExceedsWaypoint(t *testing.T) {
	pts := [][2]float64{{41.3800, 2.1700}, {41.3900, 2.1800}, {41.3750, 2.1950}}
	lat, lng := 41.3850, 2.1720
	for _, p := range pts[:2] {
		wp := HaversineM(lat, lng, p[0], p[1])
		seg := SegmentDistanceM(lat, lng, pts[0][0], pts[0][1], pts[1][0], pts[1][1])
		if seg > wp+1e-6 {
			t.Errorf("segment distance %v exceeds waypoint distance %v", seg, wp)
		}
	}
}
