package presence

import (
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/presence"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/utils"
)

// Evaluate computes the snapshot of sample against origin. Without an origin the
// snapshot reports distance 0 and outside, and OriginKnown stays false.
func Evaluate(sample presence.Sample, origin *presence.Origin) presence.Snapshot {
	snap := presence.Snapshot{Sample: sample}
	if origin == nil {
		return snap
	}

	snap.OriginKnown = true
	snap.DistanceMeters = utils.CalculateHaversineDistance(
		sample.Latitude, sample.Longitude,
		origin.Latitude, origin.Longitude,
	)
	snap.InsideZone = snap.DistanceMeters <= origin.RadiusMeters
	return snap
}
