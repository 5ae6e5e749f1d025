package gateway

import (
	"sync"
	"time"
)

// ManagerConf tunes connection bookkeeping.
type ManagerConf struct {
	ConnTTL    time.Duration    // idle TTL before the sweeper drops a connection
	SweepEvery time.Duration    // sweep period
	Clock      func() time.Time // injectable clock (tests); nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.ConnTTL <= 0 {
		c.ConnTTL = 2 * readTimeout
	}
}

// ConnManager indexes live connections by conn id and by user. A user
// may hold several connections (phone plus tablet); events addressed to
// the user go to all of them.
type ConnManager struct {
	mu     sync.RWMutex
	byID   map[string]*WsConn
	byUser map[string]map[string]*WsConn // userID -> (connID -> conn)

	conf     ManagerConf
	gwID     string
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewConnManager(gwID string, conf ManagerConf) *ConnManager {
	conf.norm()
	m := &ConnManager{
		byID:   make(map[string]*WsConn),
		byUser: make(map[string]map[string]*WsConn),
		conf:   conf,
		gwID:   gwID,
		stopCh: make(chan struct{}),
	}
	go m.sweeper()
	return m
}

func (m *ConnManager) GwID() string { return m.gwID }

func (m *ConnManager) Add(c *WsConn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.ID] = c
	if m.byUser[c.UserID] == nil {
		m.byUser[c.UserID] = make(map[string]*WsConn)
	}
	m.byUser[c.UserID][c.ID] = c
}

func (m *ConnManager) Remove(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[connID]
	if !ok {
		return
	}
	delete(m.byID, connID)
	if mm := m.byUser[c.UserID]; mm != nil {
		delete(mm, connID)
		if len(mm) == 0 {
			delete(m.byUser, c.UserID)
		}
	}
}

func (m *ConnManager) Get(connID string) (*WsConn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[connID]
	return c, ok
}

// ByUser returns every live connection of the user.
func (m *ConnManager) ByUser(userID string) []*WsConn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*WsConn, 0, len(m.byUser[userID]))
	for _, c := range m.byUser[userID] {
		out = append(out, c)
	}
	return out
}

func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		c.Close()
	}
	m.byID = make(map[string]*WsConn)
	m.byUser = make(map[string]map[string]*WsConn)
}

// sweeper closes connections whose heartbeat stopped; the read loop's
// own teardown handles room and presence cleanup when Close unblocks it.
func (m *ConnManager) sweeper() {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			deadline := m.conf.Clock().Add(-m.conf.ConnTTL)
			m.mu.RLock()
			var expired []*WsConn
			for _, c := range m.byID {
				if c.lastHeartbeat().Before(deadline) {
					expired = append(expired, c)
				}
			}
			m.mu.RUnlock()
			for _, c := range expired {
				c.Close()
			}
		}
	}
}
