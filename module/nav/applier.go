package nav

import "sync"

// Applier is the follower-side version gate. Each consumer keeps its
// own; the state it guards is purely local. A received state with a
// version at or below the last applied one is a duplicate or a
// reordering artifact and is dropped.
type Applier struct {
	mu      sync.Mutex
	applied map[string]int64 // partyID -> last applied version
	current map[string]State
}

func NewApplier() *Applier {
	return &Applier{
		applied: make(map[string]int64),
		current: make(map[string]State),
	}
}

// Apply returns true when st is newer than everything seen for its
// party and has been taken as current.
func (a *Applier) Apply(st State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st.Version <= a.applied[st.PartyID] {
		return false
	}
	a.applied[st.PartyID] = st.Version
	a.current[st.PartyID] = st
	return true
}

// Current returns the locally applied state for the party, if any is
// active.
func (a *Applier) Current(partyID string) (State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.current[partyID]
	if !ok || !st.Active {
		return State{}, false
	}
	return st, true
}

// Forget drops local navigation state for a party the user has left.
func (a *Applier) Forget(partyID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.applied, partyID)
	delete(a.current, partyID)
}
