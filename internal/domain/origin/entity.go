package origin

import "time"

// DefaultRadiusMeters applies when an administrator sets an origin without a radius.
const DefaultRadiusMeters = 10

// Origin is the office reference point used for geofencing.
type Origin struct {
	ID           string
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	UpdatedBy    *string
	UpdatedAt    time.Time
}
