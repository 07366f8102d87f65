package announce

import (
	"fleet-signage/internal/fleet"
	"fleet-signage/internal/geo"
)

// DefaultApproachMeters is the approach window: waypoints farther than this
// are never announced.
const DefaultApproachMeters = 500.0

type Match struct {
	Waypoint       fleet.Waypoint
	DistanceMeters float64
	Stage          fleet.Stage
}

type Classifier struct {
	ApproachMeters float64
}

// Classify returns the nearest waypoint inside the approach window. Ties go
// to the earliest waypoint in wps. Waypoints with non-finite coordinates
// never match.
func (c Classifier) Classify(lat, lng float64, wps []fleet.Waypoint) (Match, bool) {
	window := c.ApproachMeters
	if window <= 0 {
		window = DefaultApproachMeters
	}
	var (
		best  Match
		found bool
	)
	for _, w := range wps {
		if !geo.Finite(w.Lat) || !geo.Finite(w.Lng) {
			continue
		}
		d := geo.Haversine(lat, lng, w.Lat, w.Lng)
		if !(d <= window) {
			continue
		}
		if !found || d < best.DistanceMeters {
			best = Match{Waypoint: w, DistanceMeters: d}
			found = true
		}
	}
	if !found {
		return Match{}, false
	}
	best.Stage = fleet.StageApproaching
	if best.DistanceMeters <= best.Waypoint.EffectiveRadius() {
		best.Stage = fleet.StageReached
	}
	return best, true
}
