package errs

// Wire error codes. 1xxx connection/auth, 2xxx validation/authorization,
// 3xxx sampler-side, 5xxx transport/internal.
const (
	CodeAuthRequired     = 1001
	CodeAuthInvalid      = 1002
	CodeInvalidLocation  = 2001
	CodeNotInParty       = 2002
	CodeNotLeader        = 2003
	CodePartyNotFound    = 2004
	CodePartyInactive    = 2005
	CodeRateLimited      = 2006
	CodePermissionDenied = 3001
	CodeNotSupported     = 3002
	CodeUnavailable      = 3003
	CodeTimeout          = 3004
	CodeInternal         = 5000
)

var (
	ErrAuthRequired     = NewCodeError(CodeAuthRequired, "auth credential required")
	ErrAuthInvalid      = NewCodeError(CodeAuthInvalid, "auth credential invalid or expired")
	ErrInvalidLocation  = NewCodeError(CodeInvalidLocation, "latitude/longitude out of range")
	ErrNotInParty       = NewCodeError(CodeNotInParty, "user is not a member of this party")
	ErrNotLeader        = NewCodeError(CodeNotLeader, "only the party leader may change navigation")
	ErrPartyNotFound    = NewCodeError(CodePartyNotFound, "party not found")
	ErrPartyInactive    = NewCodeError(CodePartyInactive, "party is not active")
	ErrRateLimited      = NewCodeError(CodeRateLimited, "update rejected by rate limit")
	ErrPermissionDenied = NewCodeError(CodePermissionDenied, "position access denied")
	ErrNotSupported     = NewCodeError(CodeNotSupported, "position source not supported")
	ErrUnavailable      = NewCodeError(CodeUnavailable, "position unavailable")
	ErrTimeout          = NewCodeError(CodeTimeout, "operation timed out")
	ErrInternal         = NewCodeError(CodeInternal, "internal error")
)
