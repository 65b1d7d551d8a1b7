// TourGuard - Tourist Geolocation Safety Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourguard

// Package geo has the great-circle distance helpers used by route deviation.
package geo

import "math"

// EarthRadiusM is the IUGG mean Earth radius in meters.
const EarthRadiusM = 6371008.8

// HaversineM returns the great-circle distance between two lat/lng points in meters.
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// rounding can push a a hair past 1 for antipodal points
	a = math.Min(1, a)
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(a))
}

// SegmentDistanceM returns the distance from p to the closest point of the
// segment a-b. The closest point is found in a local equirectangular plane
// centred on p, then measured with HaversineM. Accurate for segments of a few
// kilometres; segments crossing the antimeridian are not handled.
func SegmentDistanceM(pLat, pLng, aLat, aLng, bLat, bLng float64) float64 {
	k := math.Cos(radians(pLat))
	ax, ay := (aLng-pLng)*k, aLat-pLat
	bx, by := (bLng-pLng)*k, bLat-pLat
	dx, dy := bx-ax, by-ay

	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return HaversineM(pLat, pLng, aLat, aLng)
	}

	t := -(ax*dx + ay*dy) / lenSq
	t = math.Max(0, math.Min(1, t))

	return HaversineM(pLat, pLng, aLat+t*(bLat-aLat), aLng+t*(bLng-aLng))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
