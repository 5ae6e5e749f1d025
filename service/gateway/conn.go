package gateway

import (
	"sync"
	"time"

	"github.com/convoylab/convoy/logger"

	"github.com/gorilla/websocket"
)

const (
	sendQueueSize = 256
	writeTimeout  = 5 * time.Second
	pingInterval  = 30 * time.Second
	readTimeout   = 60 * time.Second
	readLimit     = 1 << 20 // 1MB
)

// WsConn is one authenticated client connection. All writes go through
// the send queue and a single writer goroutine, so handler goroutines
// and bus callbacks never block on a slow socket.
type WsConn struct {
	ID     string // snowflake conn id
	UserID string

	conn *websocket.Conn // nil for test sessions

	sendCh    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	parties   map[string]struct{} // rooms this connection has joined
	heartbeat time.Time
	createdAt time.Time
}

func newWsConn(id, userID string, conn *websocket.Conn, now time.Time) *WsConn {
	return &WsConn{
		ID:        id,
		UserID:    userID,
		conn:      conn,
		sendCh:    make(chan []byte, sendQueueSize),
		closeCh:   make(chan struct{}),
		parties:   make(map[string]struct{}),
		heartbeat: now,
		createdAt: now,
	}
}

// Enqueue queues data for the writer pump. A full queue drops the
// event: every payload in this system is superseded by a fresher one,
// so blocking the producer would be worse than the gap.
func (c *WsConn) Enqueue(data []byte) {
	if c.Closed() {
		return
	}
	select {
	case c.sendCh <- data:
	default:
		logger.Warnf("send queue full, dropping event conn=%s user=%s", c.ID, c.UserID)
	}
}

// Close is idempotent and unblocks the writer pump.
func (c *WsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *WsConn) Closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *WsConn) touch(now time.Time) {
	c.mu.Lock()
	c.heartbeat = now
	c.mu.Unlock()
}

func (c *WsConn) lastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeat
}

func (c *WsConn) joinParty(partyID string) {
	c.mu.Lock()
	c.parties[partyID] = struct{}{}
	c.mu.Unlock()
}

func (c *WsConn) leaveParty(partyID string) {
	c.mu.Lock()
	delete(c.parties, partyID)
	c.mu.Unlock()
}

func (c *WsConn) inParty(partyID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.parties[partyID]
	return ok
}

func (c *WsConn) partyList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.parties))
	for id := range c.parties {
		out = append(out, id)
	}
	return out
}

// writePump is the only goroutine allowed to write to the socket.
func (c *WsConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case data := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Infof("write failed conn=%s user=%s err=%v", c.ID, c.UserID, err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				c.Close()
				return
			}
		}
	}
}
