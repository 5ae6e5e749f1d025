package nav

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/convoylab/convoy/module/party"
	"github.com/convoylab/convoy/module/party/memstore"
	"github.com/convoylab/convoy/service/fanout"
	"github.com/convoylab/convoy/service/storage"
	"github.com/convoylab/convoy/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *memstore.Store, *fanout.MemoryBus) {
	t.Helper()
	parties := memstore.New()
	parties.AddParty(party.Party{ID: "p1", Code: "482913", LeaderID: "leader", Active: true})
	bus := fanout.NewMemoryBus()
	c := NewCoordinator(parties, NewMemoryRepo(), storage.NewMemoryVersionSource(), bus)
	return c, parties, bus
}

func collectStates(t *testing.T, bus *fanout.MemoryBus, partyID string) *[]State {
	t.Helper()
	var seen []State
	_, err := bus.Subscribe(fanout.PartyTopic(partyID), func(_ string, data []byte) {
		ev, err := fanout.DecodeEvent(data)
		require.NoError(t, err)
		require.Equal(t, fanout.EvNavigationState, ev.Name)
		var st State
		require.NoError(t, json.Unmarshal(ev.Data, &st))
		seen = append(seen, st)
	})
	require.NoError(t, err)
	return &seen
}

func TestSetDestinationLeaderGate(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	_, err := c.SetDestination(context.Background(), "p1", "follower", SetRequest{
		DestinationName: "Museum",
		Steps:           []Step{{Instruction: "go", DistanceM: 10}},
	})
	require.Error(t, err)
	assert.True(t, errs.ErrNotLeader.Is(err))

	st, err := c.Active(context.Background(), "p1")
	require.NoError(t, err)
	assert.Nil(t, st, "rejected write must not change state")
}

func TestSetDestinationVersionsAndPublishes(t *testing.T) {
	c, _, bus := newTestCoordinator(t)
	seen := collectStates(t, bus, "p1")

	first, err := c.SetDestination(context.Background(), "p1", "leader", SetRequest{
		DestinationName: "Museum",
		Steps:           []Step{{Instruction: "go", DistanceM: 10, DurationS: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)
	assert.True(t, first.Active)

	second, err := c.SetDestination(context.Background(), "p1", "leader", SetRequest{
		DestinationName: "Cafe",
		Steps:           []Step{{Instruction: "turn", DistanceM: 20}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)

	require.Len(t, *seen, 2)
	assert.Equal(t, "Museum", (*seen)[0].DestinationName)
	assert.Equal(t, "Cafe", (*seen)[1].DestinationName)

	active, err := c.Active(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "Cafe", active.DestinationName)
}

func TestClear(t *testing.T) {
	c, _, bus := newTestCoordinator(t)
	seen := collectStates(t, bus, "p1")

	_, err := c.SetDestination(context.Background(), "p1", "leader", SetRequest{
		DestinationName: "Museum",
		Steps:           []Step{{Instruction: "go", DistanceM: 10}},
	})
	require.NoError(t, err)

	_, err = c.Clear(context.Background(), "p1", "follower")
	assert.True(t, errs.ErrNotLeader.Is(err))

	cleared, err := c.Clear(context.Background(), "p1", "leader")
	require.NoError(t, err)
	assert.False(t, cleared.Active)
	assert.Equal(t, int64(2), cleared.Version)

	active, err := c.Active(context.Background(), "p1")
	require.NoError(t, err)
	assert.Nil(t, active)

	require.Len(t, *seen, 2)
	assert.False(t, (*seen)[1].Active)
}

func TestApplierVersionMonotonicity(t *testing.T) {
	a := NewApplier()

	v1 := State{PartyID: "p1", Version: 1, Active: true, DestinationName: "Museum"}
	v2 := State{PartyID: "p1", Version: 2, Active: true, DestinationName: "Cafe"}

	assert.True(t, a.Apply(v2), "first seen state applies")
	assert.False(t, a.Apply(v1), "older version arriving late is discarded")
	assert.False(t, a.Apply(v2), "duplicate delivery is discarded")

	cur, ok := a.Current("p1")
	require.True(t, ok)
	assert.Equal(t, "Cafe", cur.DestinationName)

	a.Forget("p1")
	_, ok = a.Current("p1")
	assert.False(t, ok)
}

func TestMemoryRepoRejectsStaleWrites(t *testing.T) {
	r := NewMemoryRepo()
	require.NoError(t, r.Upsert(context.Background(), &State{PartyID: "p1", Version: 3, DestinationName: "new"}))
	require.NoError(t, r.Upsert(context.Background(), &State{PartyID: "p1", Version: 2, DestinationName: "old"}))

	st, err := r.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "new", st.DestinationName)
	assert.Equal(t, int64(3), st.Version)
}

func TestCoordinatorClockInjection(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return fixed })

	st, err := c.SetDestination(context.Background(), "p1", "leader", SetRequest{
		DestinationName: "Museum",
		Steps:           []Step{{Instruction: "go"}},
	})
	require.NoError(t, err)
	assert.Equal(t, fixed, st.UpdatedAt)
}
