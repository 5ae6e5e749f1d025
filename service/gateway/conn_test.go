package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	c := newWsConn("c1", "u1", nil, time.Now())

	for i := 0; i < sendQueueSize; i++ {
		c.Enqueue([]byte("x"))
	}
	c.Enqueue([]byte("overflow")) // must not block

	assert.Len(t, c.sendCh, sendQueueSize)
}

func TestEnqueueAfterCloseIsNoop(t *testing.T) {
	c := newWsConn("c1", "u1", nil, time.Now())
	c.Close()
	c.Close() // idempotent

	c.Enqueue([]byte("late"))
	assert.True(t, c.Closed())
	assert.Empty(t, c.sendCh)
}

func TestConnPartyMembership(t *testing.T) {
	c := newWsConn("c1", "u1", nil, time.Now())

	assert.False(t, c.inParty("p1"))
	c.joinParty("p1")
	c.joinParty("p2")
	assert.True(t, c.inParty("p1"))
	assert.ElementsMatch(t, []string{"p1", "p2"}, c.partyList())

	c.leaveParty("p1")
	assert.False(t, c.inParty("p1"))
	assert.Equal(t, []string{"p2"}, c.partyList())
}

func TestConnManagerIndexes(t *testing.T) {
	m := NewConnManager("gw-1", ManagerConf{})
	defer m.Close()

	phone := newWsConn("c1", "u1", nil, time.Now())
	tablet := newWsConn("c2", "u1", nil, time.Now())
	other := newWsConn("c3", "u2", nil, time.Now())
	m.Add(phone)
	m.Add(tablet)
	m.Add(other)

	assert.Equal(t, 3, m.Count())
	assert.Len(t, m.ByUser("u1"), 2, "one user, several devices")

	got, ok := m.Get("c2")
	assert.True(t, ok)
	assert.Same(t, tablet, got)

	m.Remove("c1")
	assert.Len(t, m.ByUser("u1"), 1)
	m.Remove("c2")
	assert.Empty(t, m.ByUser("u1"))
	assert.Equal(t, 1, m.Count())
}

func TestConnManagerSweeperClosesStaleConns(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewConnManager("gw-1", ManagerConf{
		ConnTTL:    time.Minute,
		SweepEvery: 5 * time.Millisecond,
		Clock:      func() time.Time { return now.Add(10 * time.Minute) },
	})
	defer m.Close()

	stale := newWsConn("c1", "u1", nil, now)
	m.Add(stale)

	assert.Eventually(t, stale.Closed, time.Second, 5*time.Millisecond,
		"a connection with no heartbeat inside the TTL gets closed")
}
