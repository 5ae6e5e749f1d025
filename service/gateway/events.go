package gateway

import (
	"encoding/json"
	"time"

	"github.com/convoylab/convoy/module/nav"
	"github.com/convoylab/convoy/module/party"
)

// Client -> gateway event names.
const (
	EvJoin            = "join"
	EvLeave           = "leave"
	EvLocationUpdate  = "location-update"
	EvNavigationSet   = "navigation-set"
	EvNavigationClear = "navigation-clear"
	EvMessage         = "message"
)

// Gateway -> client event names that never ride the bus. Everything
// party-scoped reuses the fanout event names.
const (
	EvJoined = "joined"
	EvError  = "error"
)

// ClientEvent is the inbound envelope. Payload stays untyped until the
// handler decodes it into its payload struct.
type ClientEvent struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

func ParseClientEvent(data []byte) (*ClientEvent, error) {
	var ev ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Inbound payload shapes. Range rules live in validator tags; the
// membership check happens after validation, in the handler.

type JoinPayload struct {
	Code string `json:"code" validate:"required"`
}

type LeavePayload struct {
	PartyID string `json:"partyId" validate:"required"`
}

type LocationPayload struct {
	PartyID   string   `json:"partyId" validate:"required"`
	Latitude  float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lte=360"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// Sample converts the wire payload into the canonical sample. Unknown
// speed/heading become -1 so they survive JSON round-trips unambiguously.
func (p LocationPayload) Sample(userID string, now time.Time) party.LocationSample {
	s := party.LocationSample{
		UserID:    userID,
		PartyID:   p.PartyID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Speed:     -1,
		Heading:   -1,
		Timestamp: now,
	}
	if p.Speed != nil && *p.Speed >= 0 {
		s.Speed = *p.Speed
	}
	if p.Heading != nil {
		s.Heading = *p.Heading
	}
	if p.Accuracy != nil {
		s.Accuracy = *p.Accuracy
	}
	return s
}

type NavigationSetPayload struct {
	PartyID         string         `json:"partyId" validate:"required"`
	DestinationName string         `json:"destinationName" validate:"required"`
	Destination     nav.Coordinate `json:"destination"`
	Steps           []nav.Step     `json:"steps" validate:"required,min=1"`
	TotalDistanceM  float64        `json:"totalDistanceM"`
	TotalDurationS  float64        `json:"totalDurationS"`
}

func (p NavigationSetPayload) toRequest() nav.SetRequest {
	return nav.SetRequest{
		DestinationName: p.DestinationName,
		Destination:     p.Destination,
		Steps:           p.Steps,
		TotalDistanceM:  p.TotalDistanceM,
		TotalDurationS:  p.TotalDurationS,
	}
}

type NavigationClearPayload struct {
	PartyID string `json:"partyId" validate:"required"`
}

type MessagePayload struct {
	PartyID string `json:"partyId" validate:"required"`
	Text    string `json:"text" validate:"required,max=2000"`
}

// Outbound payload shapes.

// LocationBroadcast is the location-update fan-out shape; the display
// name rides along so clients never need a directory lookup per sample.
type LocationBroadcast struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Speed       float64   `json:"speed"`
	Heading     float64   `json:"heading"`
	Accuracy    float64   `json:"accuracy"`
	Timestamp   time.Time `json:"timestamp"`
}

// MemberInfo is one row of the join snapshot's member list.
type MemberInfo struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Online      bool   `json:"online"`
}

// JoinedPayload is the snapshot a connection receives on join: the
// party, who is in it, everyone's last known position that has not
// expired, and the active navigation state (null outside guided mode).
type JoinedPayload struct {
	Party      party.Party            `json:"party"`
	Members    []MemberInfo           `json:"members"`
	Locations  []party.LocationSample `json:"locations"`
	Navigation *nav.State             `json:"navigation"`
}

// ErrorPayload mirrors errs.CodeError on the wire.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
