package gateway

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/convoylab/convoy/logger"
	"github.com/convoylab/convoy/module/nav"
	"github.com/convoylab/convoy/module/party"
	"github.com/convoylab/convoy/service/fanout"
	"github.com/convoylab/convoy/service/storage"
	"github.com/convoylab/convoy/tools/errs"
	"github.com/convoylab/convoy/tools/ids"
	"github.com/convoylab/convoy/tools/safe"
	"github.com/convoylab/convoy/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// presenceTTL bounds how long a member of a crashed gateway instance
// keeps looking online; refreshed on every pong.
const presenceTTL = 90 * time.Second

// Deps are the collaborators one Server instance bridges between. All
// of them are injected; nothing here is process-global, so tests can
// stand up isolated servers.
type Deps struct {
	Conns     *ConnManager
	Bus       fanout.Bus
	Locations storage.LocationStore
	Presence  storage.Presence
	Parties   party.Service
	Users     party.Directory
	Messages  party.MessageLog
	Nav       *nav.Coordinator
	JWT       security.Options
	Clock     func() time.Time // nil => time.Now
}

// Server terminates client connections and bridges their events onto
// the party-scoped fan-out topics.
type Server struct {
	deps     Deps
	rooms    *roomRegistry
	limiter  *rateLimiter
	validate *validator.Validate
	clock    func() time.Time
}

func NewServer(deps Deps) *Server {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Server{
		deps:     deps,
		rooms:    newRoomRegistry(deps.Bus),
		limiter:  newRateLimiter(locationWindow, clock),
		validate: validator.New(),
		clock:    clock,
	}
}

// HandleWS is the gin handler for the /ws endpoint. The credential is
// checked synchronously before the upgrade: no event is ever processed
// for an unauthenticated peer.
func (s *Server) HandleWS(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, errs.ErrAuthRequired)
		return
	}
	ident, err := security.Verify(s.deps.JWT, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errs.ErrAuthInvalid)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("upgrade websocket error: %v", err)
		return
	}

	conn := newWsConn(ids.GenerateString(), ident.UserID, ws, s.clock())
	s.deps.Conns.Add(conn)
	safe.Go(conn.writePump)

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		conn.touch(s.clock())
		s.refreshPresence(conn)
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	ctx := c.Request.Context()
	s.autoJoin(ctx, conn)

	logger.Info("connection open",
		zap.String("conn", conn.ID),
		zap.String("user", conn.UserID),
		zap.String("gateway", s.deps.Conns.GwID()))

	s.readLoop(conn, ws)
	s.Teardown(conn)
}

func (s *Server) readLoop(conn *WsConn, ws *websocket.Conn) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("peer closed conn=%s err=%v", conn.ID, err)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("read timeout conn=%s err=%v", conn.ID, err)
			} else {
				logger.Infof("read error conn=%s err=%v", conn.ID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		ev, err := ParseClientEvent(data)
		if err != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("bad frame conn=%s err=%v sample=%q", conn.ID, err, sample)
			continue
		}

		conn.touch(s.clock())
		if err := s.HandleEvent(context.Background(), conn, ev); err != nil {
			s.SendError(conn, err)
		}
	}
}

// HandleEvent dispatches one inbound event. Returned errors are
// reported to the sender only; they never close the connection or leak
// to other members.
func (s *Server) HandleEvent(ctx context.Context, conn *WsConn, ev *ClientEvent) error {
	switch ev.Event {
	case EvJoin:
		return s.handleJoin(ctx, conn, ev.Payload)
	case EvLeave:
		return s.handleLeave(ctx, conn, ev.Payload)
	case EvLocationUpdate:
		return s.handleLocation(ctx, conn, ev.Payload)
	case EvNavigationSet:
		return s.handleNavigationSet(ctx, conn, ev.Payload)
	case EvNavigationClear:
		return s.handleNavigationClear(ctx, conn, ev.Payload)
	case EvMessage:
		return s.handleMessage(ctx, conn, ev.Payload)
	default:
		logger.Infof("unknown event %q conn=%s", ev.Event, conn.ID)
		return nil
	}
}

// autoJoin subscribes the fresh connection to every party the user
// already belongs to and announces them online.
func (s *Server) autoJoin(ctx context.Context, conn *WsConn) {
	memberships, err := s.deps.Parties.MembershipsOf(ctx, conn.UserID)
	if err != nil {
		logger.Errorf("memberships lookup failed user=%s err=%v", conn.UserID, err)
		return
	}
	for _, m := range memberships {
		if err := s.enterRoom(ctx, conn, m.PartyID); err != nil {
			logger.Errorf("auto-join failed party=%s user=%s err=%v", m.PartyID, conn.UserID, err)
			continue
		}
		if err := s.publishPresence(ctx, fanout.EvMemberOnline, m.PartyID, conn.UserID); err != nil {
			logger.Errorf("presence broadcast failed party=%s err=%v", m.PartyID, err)
		}
	}
}

// enterRoom wires the connection into the party room and marks the
// member online.
func (s *Server) enterRoom(ctx context.Context, conn *WsConn, partyID string) error {
	if err := s.rooms.join(partyID, conn, s.onBusEvent); err != nil {
		return err
	}
	conn.joinParty(partyID)
	return s.deps.Presence.Online(ctx, partyID, conn.UserID, s.deps.Conns.GwID(), presenceTTL)
}

// Teardown runs once per connection when its read loop ends: one
// dropped connection is one offline transition, no grace period.
func (s *Server) Teardown(conn *WsConn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, partyID := range conn.partyList() {
		if err := s.deps.Presence.Offline(ctx, partyID, conn.UserID); err != nil {
			logger.Errorf("presence offline failed party=%s err=%v", partyID, err)
		}
		if err := s.publishPresence(ctx, fanout.EvMemberOffline, partyID, conn.UserID); err != nil {
			logger.Errorf("offline broadcast failed party=%s err=%v", partyID, err)
		}
		s.rooms.leave(partyID, conn.ID)
	}

	s.deps.Conns.Remove(conn.ID)
	if len(s.deps.Conns.ByUser(conn.UserID)) == 0 {
		s.limiter.Forget(conn.UserID)
	}
	conn.Close()

	logger.Info("connection closed",
		zap.String("conn", conn.ID),
		zap.String("user", conn.UserID))
}

// onBusEvent receives everything published on topics this instance
// subscribes to, including publishes from other gateway instances.
func (s *Server) onBusEvent(topic string, data []byte) {
	ev, err := fanout.DecodeEvent(data)
	if err != nil {
		logger.Warnf("bad bus event topic=%s err=%v", topic, err)
		return
	}
	s.rooms.deliver(ev, data)
}

func (s *Server) refreshPresence(conn *WsConn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, partyID := range conn.partyList() {
		if err := s.deps.Presence.Online(ctx, partyID, conn.UserID, s.deps.Conns.GwID(), presenceTTL); err != nil {
			logger.Warnf("presence refresh failed party=%s err=%v", partyID, err)
		}
	}
}

// publish wraps a payload in the bus envelope and publishes it on the
// party topic.
func (s *Server) publish(ctx context.Context, name, partyID, from string, payload any) error {
	ev, err := fanout.NewEvent(name, partyID, from, payload)
	if err != nil {
		return err
	}
	raw, err := ev.Encode()
	if err != nil {
		return err
	}
	return s.deps.Bus.Publish(ctx, fanout.PartyTopic(partyID), raw)
}

func (s *Server) publishPresence(ctx context.Context, name, partyID, userID string) error {
	return s.publish(ctx, name, partyID, userID, party.PresenceEvent{
		PartyID:   partyID,
		UserID:    userID,
		Kind:      presenceKind(name),
		Timestamp: s.clock(),
	})
}

func presenceKind(eventName string) string {
	switch eventName {
	case fanout.EvMemberJoined:
		return party.PresenceJoined
	case fanout.EvMemberLeft:
		return party.PresenceLeft
	case fanout.EvMemberOnline:
		return party.PresenceOnline
	default:
		return party.PresenceOffline
	}
}

// sendTo delivers an event to one connection only.
func (s *Server) sendTo(conn *WsConn, name, partyID string, payload any) {
	ev, err := fanout.NewEvent(name, partyID, "", payload)
	if err != nil {
		logger.Errorf("encode %s event failed: %v", name, err)
		return
	}
	raw, err := ev.Encode()
	if err != nil {
		logger.Errorf("encode %s event failed: %v", name, err)
		return
	}
	conn.Enqueue(raw)
}

// SendError reports a failure to the originating connection only.
func (s *Server) SendError(conn *WsConn, err error) {
	payload := ErrorPayload{Code: errs.Code(err), Message: errorMessage(err)}
	s.sendTo(conn, EvError, "", payload)
}

func errorMessage(err error) string {
	var ce errs.CodeError
	if stderrors.As(err, &ce) {
		return ce.Msg
	}
	return "internal error"
}

func bearerToken(c *gin.Context) string {
	if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
	}
	return strings.TrimSpace(c.Query("token"))
}
