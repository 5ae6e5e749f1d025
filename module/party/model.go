package party

import "time"

// Party is an ad-hoc group of users sharing location for a session.
// Owned by the membership service; the sync core holds it by ID for
// room scoping and leader checks.
type Party struct {
	ID        string    `bson:"party_id" json:"partyId"`
	Code      string    `bson:"code" json:"code"`     // human-enterable join code
	LeaderID  string    `bson:"leader_id" json:"leaderId"`
	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Member is one (party, user) membership record. A user belongs to at
// most one active party at a time; the membership service enforces that.
type Member struct {
	PartyID  string    `bson:"party_id" json:"partyId"`
	UserID   string    `bson:"user_id" json:"userId"`
	Online   bool      `bson:"online" json:"online"`
	LastSeen time.Time `bson:"last_seen" json:"lastSeen"`
	JoinedAt time.Time `bson:"joined_at" json:"joinedAt"`
}

// LocationSample is one position reading. Only the latest sample per
// user is ever addressable; there is no history.
type LocationSample struct {
	UserID    string    `bson:"user_id" json:"userId"`
	PartyID   string    `bson:"party_id" json:"partyId"`
	Latitude  float64   `bson:"latitude" json:"latitude"`
	Longitude float64   `bson:"longitude" json:"longitude"`
	Speed     float64   `bson:"speed" json:"speed"`     // m/s, <0 means unknown
	Heading   float64   `bson:"heading" json:"heading"` // degrees 0-360, <0 means unknown
	Accuracy  float64   `bson:"accuracy" json:"accuracy"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// SpeedKnown reports whether the source supplied an instantaneous speed.
func (s LocationSample) SpeedKnown() bool { return s.Speed >= 0 }

// PresenceEvent kinds.
const (
	PresenceJoined  = "joined"
	PresenceLeft    = "left"
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// PresenceEvent is transient: broadcast to the party, never persisted.
type PresenceEvent struct {
	PartyID   string    `json:"partyId"`
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessage is a party text message, persisted by the message log
// collaborator before broadcast.
type ChatMessage struct {
	ID        string    `bson:"msg_id" json:"id"`
	PartyID   string    `bson:"party_id" json:"partyId"`
	UserID    string    `bson:"user_id" json:"userId"`
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}
