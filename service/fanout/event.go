package fanout

import "encoding/json"

// Event names shared by the bus and the client protocol. A gateway
// relays bus events to its local room members verbatim, so what rides
// the bus is exactly what a client receives.
const (
	EvMemberJoined    = "member-joined"
	EvMemberLeft      = "member-left"
	EvMemberOnline    = "member-online"
	EvMemberOffline   = "member-offline"
	EvLocationUpdate  = "location-update"
	EvNavigationState = "navigation-state"
	EvMessageReceived = "message-received"
)

// Event is the envelope for everything published on a party topic.
type Event struct {
	Name    string          `json:"event"`
	PartyID string          `json:"partyId"`
	From    string          `json:"from,omitempty"` // originating user, where meaningful
	Data    json.RawMessage `json:"data,omitempty"`
}

func NewEvent(name, partyID, from string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, PartyID: partyID, From: from, Data: raw}, nil
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
