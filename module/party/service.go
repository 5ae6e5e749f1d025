package party

import "context"

// Service is the membership collaborator consumed by the gateway. The
// sync core never owns party CRUD; it trusts whatever sits behind this
// interface (Mongo in this repo, anything elsewhere).
type Service interface {
	// ResolveCode finds an active party by its human-entered join code.
	ResolveCode(ctx context.Context, code string) (*Party, error)

	// Get returns the party by id.
	Get(ctx context.Context, partyID string) (*Party, error)

	// MembershipsOf lists the parties the user currently belongs to.
	MembershipsOf(ctx context.Context, userID string) ([]Member, error)

	// Members lists all members of a party.
	Members(ctx context.Context, partyID string) ([]Member, error)

	// IsMember reports whether the user belongs to the party.
	IsMember(ctx context.Context, partyID, userID string) (bool, error)

	// Join records membership; joining a party the user already belongs
	// to is a no-op and must not error.
	Join(ctx context.Context, partyID, userID string) (already bool, err error)

	// Leave removes membership.
	Leave(ctx context.Context, partyID, userID string) error
}

// Directory resolves user display names for broadcast payloads.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// MessageLog persists party chat messages before broadcast.
type MessageLog interface {
	Append(ctx context.Context, msg ChatMessage) error
}
