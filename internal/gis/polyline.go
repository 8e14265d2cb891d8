package gis

import (
	"math"

	"supmap-tracking/internal/navigation"
)

// EarthRadius in meters
const EarthRadius = 6378137

// Degrees to radians conversion
const degToRad = math.Pi / 180

// Haversine distance between two points in meters
func Haversine(a, b navigation.Point) float64 {
	dLat := (b.Lat - a.Lat) * degToRad
	dLon := (b.Lon - a.Lon) * degToRad

	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad

	sinDlat := math.Sin(dLat / 2)
	sinDlon := math.Sin(dLon / 2)

	aVal := sinDlat*sinDlat + sinDlon*sinDlon*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(aVal), math.Sqrt(1-aVal))
	return EarthRadius * c
}

// IsPointInPolyline returns true if given point is within tolerance distance (in metres) from the polyline.
func IsPointInPolyline(point navigation.Point, polyline []navigation.Point, tolerance float64) bool {
	if len(polyline) == 0 {
		return false
	}
	if len(polyline) == 1 {
		return Haversine(point, polyline[0]) <= tolerance
	}

	for i := 0; i < len(polyline)-1; i++ {
		if distanceToSegment(point, polyline[i], polyline[i+1]) <= tolerance {
			return true
		}
	}
	return false
}

// distanceToSegment calculates the minimum distance (in metres) from p to the segment [a, b]
// using an equirectangular projection around the segment's mean latitude.
func distanceToSegment(p, a, b navigation.Point) float64 {
	latRef := (a.Lat + b.Lat) / 2 * degToRad
	cosLatRef := math.Cos(latRef)

	project := func(pt navigation.Point) (float64, float64) {
		return pt.Lon * degToRad * EarthRadius * cosLatRef, pt.Lat * degToRad * EarthRadius
	}
	xA, yA := project(a)
	xB, yB := project(b)
	xP, yP := project(p)

	dx, dy := xB-xA, yB-yA

	// Degenerate segment
	if dx == 0 && dy == 0 {
		return math.Hypot(xP-xA, yP-yA)
	}

	t := ((xP-xA)*dx + (yP-yA)*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))

	return math.Hypot(xP-(xA+t*dx), yP-(yA+t*dy))
}
