package nav

import "time"

// Coordinate is a lng/lat pair in degrees (route provider order).
type Coordinate struct {
	Longitude float64 `bson:"lng" json:"lng"`
	Latitude  float64 `bson:"lat" json:"lat"`
}

// Step is one maneuver of a published route. Immutable once part of a
// published State.
type Step struct {
	Instruction      string       `bson:"instruction" json:"instruction"`
	DistanceM        float64      `bson:"distance_m" json:"distanceM"`
	DurationS        float64      `bson:"duration_s" json:"durationS"`
	ManeuverType     string       `bson:"maneuver_type" json:"maneuverType"`
	ManeuverModifier string       `bson:"maneuver_modifier,omitempty" json:"maneuverModifier,omitempty"`
	Maneuver         Coordinate   `bson:"maneuver" json:"maneuver"`
	Geometry         []Coordinate `bson:"geometry,omitempty" json:"geometry,omitempty"`
	Lanes            []string     `bson:"lanes,omitempty" json:"lanes,omitempty"`
}

// State is the single authoritative navigation state of a party while
// guided mode is on. Replaced wholesale on every route change; never
// patched, so there is no merge ambiguity between leader devices.
type State struct {
	PartyID         string     `bson:"party_id" json:"partyId"`
	CreatedBy       string     `bson:"created_by" json:"createdBy"`
	DestinationName string     `bson:"destination_name" json:"destinationName"`
	Destination     Coordinate `bson:"destination" json:"destination"`
	Steps           []Step     `bson:"steps" json:"steps"`
	TotalDistanceM  float64    `bson:"total_distance_m" json:"totalDistanceM"`
	TotalDurationS  float64    `bson:"total_duration_s" json:"totalDurationS"`
	Active          bool       `bson:"active" json:"active"`
	Version         int64      `bson:"version" json:"version"`
	UpdatedAt       time.Time  `bson:"updated_at" json:"updatedAt"`
}

// SetRequest is the leader's payload for replacing the route.
type SetRequest struct {
	DestinationName string     `json:"destinationName"`
	Destination     Coordinate `json:"destination"`
	Steps           []Step     `json:"steps"`
	TotalDistanceM  float64    `json:"totalDistanceM"`
	TotalDurationS  float64    `json:"totalDurationS"`
}
