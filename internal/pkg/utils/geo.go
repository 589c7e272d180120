package utils

import "math"

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000

// CalculateHaversineDistance returns the great-circle distance between two coordinates in meters.
func CalculateHaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1Rad)*math.Cos(lat2Rad)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// OffsetNorth returns the latitude reached by moving meters due north from lat.
// Handy for building fixtures at a known distance from an origin.
func OffsetNorth(lat, meters float64) float64 {
	return lat + toDegrees(meters/EarthRadiusMeters)
}

func toRadians(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}

func toDegrees(rad float64) float64 {
	return rad * (180.0 / math.Pi)
}
