package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/convoylab/convoy/module/nav"
	"github.com/convoylab/convoy/module/party"
	"github.com/convoylab/convoy/module/party/memstore"
	"github.com/convoylab/convoy/service/fanout"
	"github.com/convoylab/convoy/service/storage"
	"github.com/convoylab/convoy/tools/errs"
	"github.com/convoylab/convoy/tools/ids"
	"github.com/convoylab/convoy/tools/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPartyCode = "482913"

// fixture stands up a full in-memory gateway: memory bus, memory
// stores, memory party service. Connections use a nil socket; events
// they would receive sit in their send queue for the test to read.
type fixture struct {
	srv     *Server
	parties *memstore.Store
	clock   *testClock
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	parties := memstore.New()
	parties.AddParty(party.Party{ID: "p1", Code: testPartyCode, LeaderID: "leader", Active: true, CreatedAt: clk.Now()})
	parties.SetDisplayName("leader", "Ana")
	parties.SetDisplayName("follower", "Ben")

	bus := fanout.NewMemoryBus()
	locations := storage.NewMemoryLocationStore()
	locations.Clock = clk.Now
	presence := storage.NewMemoryPresence()
	presence.Clock = clk.Now

	coordinator := nav.NewCoordinator(parties, nav.NewMemoryRepo(), storage.NewMemoryVersionSource(), bus)
	coordinator.SetClock(clk.Now)

	conns := NewConnManager("gw-test", ManagerConf{Clock: clk.Now})
	t.Cleanup(conns.Close)

	srv := NewServer(Deps{
		Conns:     conns,
		Bus:       bus,
		Locations: locations,
		Presence:  presence,
		Parties:   parties,
		Users:     parties,
		Messages:  parties,
		Nav:       coordinator,
		JWT:       security.DefaultOptions([]byte("test-secret")),
		Clock:     clk.Now,
	})
	return &fixture{srv: srv, parties: parties, clock: clk}
}

// connect registers a connection without a socket. No write pump runs;
// Enqueue fills the buffered send queue, which the test drains.
func (f *fixture) connect(userID string) *WsConn {
	c := newWsConn(ids.GenerateString(), userID, nil, f.clock.Now())
	f.srv.deps.Conns.Add(c)
	return c
}

func (f *fixture) dispatch(t *testing.T, c *WsConn, event string, payload map[string]any) error {
	t.Helper()
	return f.srv.HandleEvent(context.Background(), c, &ClientEvent{Event: event, Payload: payload})
}

func (f *fixture) join(t *testing.T, c *WsConn) {
	t.Helper()
	require.NoError(t, f.dispatch(t, c, EvJoin, map[string]any{"code": testPartyCode}))
}

func recvEvent(t *testing.T, c *WsConn) *fanout.Event {
	t.Helper()
	select {
	case raw := <-c.sendCh:
		ev, err := fanout.DecodeEvent(raw)
		require.NoError(t, err)
		return ev
	default:
		t.Fatal("expected a queued event, send queue is empty")
		return nil
	}
}

func assertQuiet(t *testing.T, c *WsConn) {
	t.Helper()
	select {
	case raw := <-c.sendCh:
		t.Fatalf("unexpected event in send queue: %s", raw)
	default:
	}
}

func decodePayload[T any](t *testing.T, ev *fanout.Event) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(ev.Data, &out))
	return out
}

func TestJoinEmptyParty(t *testing.T) {
	f := newFixture(t)
	leader := f.connect("leader")

	f.join(t, leader)

	ev := recvEvent(t, leader)
	assert.Equal(t, EvJoined, ev.Name)
	snap := decodePayload[JoinedPayload](t, ev)
	assert.Equal(t, "p1", snap.Party.ID)
	assert.Empty(t, snap.Members, "self is excluded from the roster")
	assert.Empty(t, snap.Locations)
	assert.Nil(t, snap.Navigation)

	// the joiner is in the room, so their own member-joined comes back
	ev = recvEvent(t, leader)
	assert.Equal(t, fanout.EvMemberJoined, ev.Name)
	assert.Equal(t, "leader", ev.From)
}

func TestJoinSnapshotHasRosterLocationsAndRoute(t *testing.T) {
	f := newFixture(t)
	leader := f.connect("leader")
	f.join(t, leader)
	drain(leader)

	require.NoError(t, f.dispatch(t, leader, EvLocationUpdate, map[string]any{
		"partyId": "p1", "latitude": 51.5, "longitude": -0.12,
	}))
	require.NoError(t, f.dispatch(t, leader, EvNavigationSet, map[string]any{
		"partyId":         "p1",
		"destinationName": "Museum",
		"steps":           []any{map[string]any{"instruction": "head north", "distanceM": 100.0}},
	}))
	drain(leader)

	follower := f.connect("follower")
	f.join(t, follower)

	ev := recvEvent(t, follower)
	require.Equal(t, EvJoined, ev.Name)
	snap := decodePayload[JoinedPayload](t, ev)

	require.Len(t, snap.Members, 1)
	assert.Equal(t, "leader", snap.Members[0].UserID)
	assert.Equal(t, "Ana", snap.Members[0].DisplayName)
	assert.True(t, snap.Members[0].Online)

	require.Len(t, snap.Locations, 1)
	assert.Equal(t, "leader", snap.Locations[0].UserID)
	assert.Equal(t, 51.5, snap.Locations[0].Latitude)

	require.NotNil(t, snap.Navigation)
	assert.Equal(t, "Museum", snap.Navigation.DestinationName)
	assert.Equal(t, int64(1), snap.Navigation.Version)

	// the leader hears the newcomer
	ev = recvEvent(t, leader)
	assert.Equal(t, fanout.EvMemberJoined, ev.Name)
	assert.Equal(t, "follower", ev.From)
}

func TestRejoinDoesNotDuplicateAnnouncement(t *testing.T) {
	f := newFixture(t)
	leader := f.connect("leader")
	follower := f.connect("follower")
	f.join(t, leader)
	f.join(t, follower)
	drain(leader)
	drain(follower)

	f.join(t, follower)

	ev := recvEvent(t, follower)
	assert.Equal(t, EvJoined, ev.Name, "rejoin still gets a fresh snapshot")
	assertQuiet(t, leader)

	members, err := f.parties.Members(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, members, 2, "membership rows stay unique")
}

func TestLocationBroadcastSkipsSender(t *testing.T) {
	f := newFixture(t)
	leader := f.connect("leader")
	follower := f.connect("follower")
	f.join(t, leader)
	f.join(t, follower)
	drain(leader)
	drain(follower)

	require.NoError(t, f.dispatch(t, follower, EvLocationUpdate, map[string]any{
		"partyId": "p1", "latitude": 48.85, "longitude": 2.35, "speed": 2.5,
	}))

	ev := recvEvent(t, leader)
	assert.Equal(t, fanout.EvLocationUpdate, ev.Name)
	bc := decodePayload[LocationBroadcast](t, ev)
	assert.Equal(t, "follower", bc.UserID)
	assert.Equal(t, "Ben", bc.DisplayName)
	assert.Equal(t, 48.85, bc.Latitude)
	assert.Equal(t, 2.5, bc.Speed)

	assertQuiet(t, follower)
}

func TestLocationRequiresMembership(t *testing.T) {
	f := newFixture(t)
	stranger := f.connect("stranger")

	err := f.dispatch(t, stranger, EvLocationUpdate, map[string]any{
		"partyId": "p1", "latitude": 1.0, "longitude": 1.0,
	})
	assert.True(t, errs.ErrNotInParty.Is(err))
}

func TestLocationValidation(t *testing.T) {
	f := newFixture(t)
	leader := f.connect("leader")
	f.join(t, leader)
	drain(leader)

	err := f.dispatch(t, leader, EvLocationUpdate, map[string]any{
		"partyId": "p1", "latitude": 91.0, "longitude": 0.0,
	})
	assert.True(t, errs.ErrInvalidLocation.Is(err))

	err = f.dispatch(t, leader, EvLocationUpdate, map[string]any{
		"partyId": "p1", "latitude": 0.0, "longitude": -180.5,
	})
	assert.True(t, errs.ErrInvalidLocation.Is(err))
}

func TestLocationRateLimitDropsSilently(t *testing.T) {
	f := newFixture(t)
	leader := f.connect("leader")
	follower := f.connect("follower")
	f.join(t, leader)
	f.join(t, follower)
	drain(leader)
	drain(follower)

	send := func(lat float64) error {
		return f.dispatch(t, leader, EvLocationUpdate, map[string]any{
			"partyId": "p1", "latitude": lat, "longitude": 0.0,
		})
	}

	require.NoError(t, send(10))
	assert.Equal(t, fanout.EvLocationUpdate, recvEvent(t, follower).Name)

	// inside the window: no error, no broadcast
	f.clock.Advance(300 * time.Millisecond)
	require.NoError(t, send(11))
	assertQuiet(t, follower)

	// one full second after the accepted update
	f.clock.Advance(700 * time.Millisecond)
	require.NoError(t, send(12))
	bc := decodePayload[LocationBroadcast](t, recvEvent(t, follower))
	assert.Equal(t, 12.0, bc.Latitude, "the dropped update is gone, not queued")
}

func TestNavigationLeaderGate(t *testing.T) {
	f := newFixture(t)
	leader := f.connect("leader")
	follower := f.connect("follower")
	f.join(t, leader)
	f.join(t, follower)
	drain(leader)
	drain(follower)

	err := f.dispatch(t, follower, EvNavigationSet, map[string]any{
		"partyId":         "p1",
		"destinationName": "Museum",
		"steps":           []any{map[string]any{"instruction": "go"}},
	})
	assert.True(t, errs.ErrNotLeader.Is(err))
	assertQuiet(t, leader)

	require.NoError(t, f.dispatch(t, leader, EvNavigationSet, map[string]any{
		"partyId":         "p1",
		"destinationName": "Museum",
		"steps": []any{
			map[string]any{"instruction": "head north", "distanceM": 100.0, "durationS": 60.0},
			map[string]any{"instruction": "arrive", "distanceM": 50.0, "durationS": 30.0},
		},
	}))

	// both room members receive the state, the leader included
	for _, c := range []*WsConn{leader, follower} {
		ev := recvEvent(t, c)
		require.Equal(t, fanout.EvNavigationState, ev.Name)
		st := decodePayload[nav.State](t, ev)
		assert.Equal(t, int64(1), st.Version)
		assert.True(t, st.Active)
		assert.Len(t, st.Steps, 2)
	}

	require.NoError(t, f.dispatch(t, leader, EvNavigationClear, map[string]any{"partyId": "p1"}))
	st := decodePayload[nav.State](t, recvEvent(t, follower))
	assert.False(t, st.Active)
	assert.Equal(t, int64(2), st.Version)
}

func TestLeave(t *testing.T) {
	f := newFixture(t)
	leader := f.connect("leader")
	follower := f.connect("follower")
	f.join(t, leader)
	f.join(t, follower)
	drain(leader)
	drain(follower)

	require.NoError(t, f.dispatch(t, follower, EvLeave, map[string]any{"partyId": "p1"}))

	ev := recvEvent(t, leader)
	assert.Equal(t, fanout.EvMemberLeft, ev.Name)
	assert.Equal(t, "follower", ev.From)

	err := f.dispatch(t, follower, EvLocationUpdate, map[string]any{
		"partyId": "p1", "latitude": 1.0, "longitude": 1.0,
	})
	assert.True(t, errs.ErrNotInParty.Is(err))

	ok, err := f.parties.IsMember(context.Background(), "p1", "follower")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTeardownAnnouncesOffline(t *testing.T) {
	f := newFixture(t)
	leader := f.connect("leader")
	follower := f.connect("follower")
	f.join(t, leader)
	f.join(t, follower)
	drain(leader)
	drain(follower)

	f.srv.Teardown(follower)

	ev := recvEvent(t, leader)
	assert.Equal(t, fanout.EvMemberOffline, ev.Name)
	assert.Equal(t, "follower", ev.From)

	_, online, err := f.srv.deps.Presence.Lookup(context.Background(), "p1", "follower")
	require.NoError(t, err)
	assert.False(t, online)

	// membership survives the disconnect; only presence drops
	ok, err := f.parties.IsMember(context.Background(), "p1", "follower")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, follower.Closed())
	_, found := f.srv.deps.Conns.Get(follower.ID)
	assert.False(t, found)
}

func TestMessageFlow(t *testing.T) {
	f := newFixture(t)
	leader := f.connect("leader")
	follower := f.connect("follower")
	f.join(t, leader)
	f.join(t, follower)
	drain(leader)
	drain(follower)

	require.NoError(t, f.dispatch(t, follower, EvMessage, map[string]any{
		"partyId": "p1", "text": "wait at the fork",
	}))

	ev := recvEvent(t, leader)
	assert.Equal(t, fanout.EvMessageReceived, ev.Name)
	msg := decodePayload[party.ChatMessage](t, ev)
	assert.Equal(t, "follower", msg.UserID)
	assert.Equal(t, "wait at the fork", msg.Text)

	logged := f.parties.Messages()
	require.Len(t, logged, 1)
	assert.Equal(t, "wait at the fork", logged[0].Text)
}

func TestJoinUnknownCode(t *testing.T) {
	f := newFixture(t)
	c := f.connect("leader")

	err := f.dispatch(t, c, EvJoin, map[string]any{"code": "000000"})
	assert.True(t, errs.ErrPartyNotFound.Is(err))

	f.parties.AddParty(party.Party{ID: "p2", Code: "111111", LeaderID: "x", Active: false})
	err = f.dispatch(t, c, EvJoin, map[string]any{"code": "111111"})
	assert.True(t, errs.ErrPartyInactive.Is(err))
}

func TestUnknownEventIgnored(t *testing.T) {
	f := newFixture(t)
	c := f.connect("leader")

	assert.NoError(t, f.dispatch(t, c, "selfie", map[string]any{}))
	assertQuiet(t, c)
}

func drain(c *WsConn) {
	for {
		select {
		case <-c.sendCh:
		default:
			return
		}
	}
}
