// Package geo provides the pure distance and ETA math used by dispatch
// matching. Everything here is side-effect free.
package geo

import (
	"math"

	"github.com/example/ride-dispatch/internal/errs"
)

// EarthRadiusMiles is the mean Earth radius used for great-circle math.
const EarthRadiusMiles = 3959.0

// DefaultSpeedMPH is the constant-speed assumption behind ETA estimates.
const DefaultSpeedMPH = 30.0

// HaversineMiles returns the great-circle distance in miles between two
// points in decimal degrees. Symmetric; zero for identical points.
func HaversineMiles(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMiles * c
}

// ETAMinutes estimates travel time as ceil(distance/speed*60). A
// non-positive distance yields 0. A non-positive speed is rejected rather
// than letting the division produce Inf or NaN.
func ETAMinutes(distanceMiles, speedMPH float64) (int, error) {
	if speedMPH <= 0 || math.IsNaN(speedMPH) {
		return 0, &errs.ValidationError{Field: "speed_mph", Reason: "must be > 0"}
	}
	if distanceMiles <= 0 {
		return 0, nil
	}
	return int(math.Ceil(distanceMiles / speedMPH * 60)), nil
}

// ValidateCoords rejects out-of-range coordinates. Values are never
// clamped.
func ValidateCoords(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return &errs.ValidationError{Field: "lat", Reason: "must be within [-90, 90]"}
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return &errs.ValidationError{Field: "lng", Reason: "must be within [-180, 180]"}
	}
	return nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
