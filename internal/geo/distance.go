// Package geo provides great-circle distance math for site coordinates.
package geo

import "math"

// EarthRadiusKM is the mean Earth radius (IUGG) used for all distance math.
const EarthRadiusKM = 6371.0088

// Distance returns the haversine great-circle distance in kilometers
// between two points given in signed degrees. Inputs are assumed to be
// range-checked upstream; the function never fails.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lon1r := lon1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	lon2r := lon2 * math.Pi / 180

	dlat := lat2r - lat1r
	dlon := lon2r - lon1r

	sinLat := math.Sin(dlat / 2)
	sinLon := math.Sin(dlon / 2)
	a := sinLat*sinLat + math.Cos(lat1r)*math.Cos(lat2r)*sinLon*sinLon

	return EarthRadiusKM * 2 * math.Asin(math.Min(1, math.Sqrt(a)))
}
