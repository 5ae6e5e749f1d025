package nav

import (
	"time"

	"github.com/convoylab/convoy/module/party"
	"github.com/convoylab/convoy/tools/geo"
)

// FreshnessThreshold is how old a position sample may be and still
// drive progress display. A sample exactly at the threshold is fresh.
const FreshnessThreshold = 30 * time.Second

// Progress is one follower's view of where they are along the route.
// It is a pure function of (route, position): no persisted state, safe
// to recompute redundantly on every subscriber and every sample.
type Progress struct {
	ClosestStepIndex   int
	RemainingDistanceM float64
	RemainingDurationS float64
}

// Compute matches the subject's position to the nearest step maneuver
// anchor and sums the remainder of the route from there.
//
// This is nearest-neighbor over step anchor points, not a projection
// onto the route polyline. On routes that backtrack or loop tightly it
// can pick a step the subject already passed; that is a known
// limitation of the anchor approach, traded for simplicity.
//
// Remaining distance counts the entire closest step even when the
// subject is partway through it. Steps are short relative to the route,
// so the overshoot is bounded and acceptable.
func Compute(st State, lat, lon float64) (Progress, bool) {
	if !st.Active || len(st.Steps) == 0 {
		return Progress{}, false
	}

	closest := 0
	best := geo.Haversine(lat, lon, st.Steps[0].Maneuver.Latitude, st.Steps[0].Maneuver.Longitude)
	for i := 1; i < len(st.Steps); i++ {
		d := geo.Haversine(lat, lon, st.Steps[i].Maneuver.Latitude, st.Steps[i].Maneuver.Longitude)
		if d < best {
			best = d
			closest = i
		}
	}

	p := Progress{ClosestStepIndex: closest}
	for _, step := range st.Steps[closest:] {
		p.RemainingDistanceM += step.DistanceM
		p.RemainingDurationS += step.DurationS
	}
	return p, true
}

// ComputeFromSample is Compute plus the freshness gate: a stale sample
// produces no progress at all rather than a misleading one.
func ComputeFromSample(st State, sample party.LocationSample, now time.Time) (Progress, bool) {
	if IsStale(sample, now) {
		return Progress{}, false
	}
	return Compute(st, sample.Latitude, sample.Longitude)
}

// IsStale reports whether the sample is too old to trust. The boundary
// is inclusive on the fresh side: age == threshold is still fresh.
func IsStale(sample party.LocationSample, now time.Time) bool {
	return now.Sub(sample.Timestamp) > FreshnessThreshold
}
