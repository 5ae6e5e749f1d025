package gateway

import (
	"context"

	"github.com/convoylab/convoy/logger"
	"github.com/convoylab/convoy/module/party"
	"github.com/convoylab/convoy/service/fanout"
	"github.com/convoylab/convoy/service/storage"
	"github.com/convoylab/convoy/tools/decode"
	"github.com/convoylab/convoy/tools/errs"
	"github.com/convoylab/convoy/tools/ids"

	"go.uber.org/zap"
)

// handleJoin resolves the human-entered code, records membership, wires
// the connection into the room and replies with the snapshot. Joining a
// party the user already belongs to resends the snapshot but does not
// duplicate the member-joined broadcast.
func (s *Server) handleJoin(ctx context.Context, conn *WsConn, payload map[string]any) error {
	req, err := decode.Map[JoinPayload](payload)
	if err != nil {
		return errs.ErrInternal.WrapMsg("decode join", "err", err)
	}
	if err := s.validate.Struct(req); err != nil {
		return errs.ErrPartyNotFound.WrapMsg("empty code")
	}

	p, err := s.deps.Parties.ResolveCode(ctx, req.Code)
	if err != nil {
		return err
	}

	already, err := s.deps.Parties.Join(ctx, p.ID, conn.UserID)
	if err != nil {
		return err
	}
	if err := s.enterRoom(ctx, conn, p.ID); err != nil {
		return err
	}

	snapshot, err := s.buildSnapshot(ctx, *p, conn.UserID)
	if err != nil {
		return err
	}
	s.sendTo(conn, EvJoined, p.ID, snapshot)

	if !already {
		if err := s.publishPresence(ctx, fanout.EvMemberJoined, p.ID, conn.UserID); err != nil {
			return err
		}
	}

	logger.Info("member joined",
		zap.String("party", p.ID),
		zap.String("user", conn.UserID),
		zap.Bool("rejoin", already))
	return nil
}

// buildSnapshot gathers what a joining member needs to render the party
// immediately: the roster, everyone else's non-expired last position,
// and the active navigation state (nil outside guided mode).
func (s *Server) buildSnapshot(ctx context.Context, p party.Party, selfID string) (*JoinedPayload, error) {
	members, err := s.deps.Parties.Members(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	infos := make([]MemberInfo, 0, len(members))
	for _, m := range members {
		if m.UserID == selfID {
			continue
		}
		name, err := s.deps.Users.DisplayName(ctx, m.UserID)
		if err != nil {
			name = m.UserID
		}
		_, online, err := s.deps.Presence.Lookup(ctx, p.ID, m.UserID)
		if err != nil {
			online = false
		}
		infos = append(infos, MemberInfo{UserID: m.UserID, DisplayName: name, Online: online})
	}

	all, err := s.deps.Locations.GetAll(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	locations := make([]party.LocationSample, 0, len(all))
	for _, sample := range all {
		if sample.UserID == selfID {
			continue
		}
		locations = append(locations, sample)
	}

	st, err := s.deps.Nav.Active(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	return &JoinedPayload{
		Party:      p,
		Members:    infos,
		Locations:  locations,
		Navigation: st,
	}, nil
}

func (s *Server) handleLeave(ctx context.Context, conn *WsConn, payload map[string]any) error {
	req, err := decode.Map[LeavePayload](payload)
	if err != nil {
		return errs.ErrInternal.WrapMsg("decode leave", "err", err)
	}
	if err := s.validate.Struct(req); err != nil {
		return errs.ErrNotInParty.WrapMsg("missing partyId")
	}
	if !conn.inParty(req.PartyID) {
		return errs.ErrNotInParty.WrapMsg("party", req.PartyID)
	}

	if err := s.deps.Parties.Leave(ctx, req.PartyID, conn.UserID); err != nil {
		return err
	}
	if err := s.deps.Presence.Offline(ctx, req.PartyID, conn.UserID); err != nil {
		logger.Warnf("presence offline failed party=%s err=%v", req.PartyID, err)
	}
	if err := s.publishPresence(ctx, fanout.EvMemberLeft, req.PartyID, conn.UserID); err != nil {
		return err
	}

	s.rooms.leave(req.PartyID, conn.ID)
	conn.leaveParty(req.PartyID)

	logger.Info("member left",
		zap.String("party", req.PartyID),
		zap.String("user", conn.UserID))
	return nil
}

// handleLocation is the hot path: validate, rate-limit, write-through,
// broadcast. A rate-limited update is dropped without any reply; the
// sampler produces a fresher one inside the window regardless.
func (s *Server) handleLocation(ctx context.Context, conn *WsConn, payload map[string]any) error {
	req, err := decode.Map[LocationPayload](payload)
	if err != nil {
		return errs.ErrInvalidLocation.WrapMsg("decode", "err", err)
	}
	if err := s.validate.Struct(req); err != nil {
		return errs.ErrInvalidLocation.WrapMsg("lat", req.Latitude, "lon", req.Longitude)
	}
	if !conn.inParty(req.PartyID) {
		return errs.ErrNotInParty.WrapMsg("party", req.PartyID)
	}

	if !s.limiter.Allow(conn.UserID) {
		return nil // silent by design
	}

	sample := req.Sample(conn.UserID, s.clock())

	// write-through first: a broadcast nobody can re-read is worse than
	// a stored sample nobody saw, since late joiners read the store
	if err := s.deps.Locations.Put(ctx, req.PartyID, conn.UserID, sample, storage.DefaultLocationTTL); err != nil {
		return errs.ErrInternal.WrapMsg("store location", "err", err)
	}

	name, err := s.deps.Users.DisplayName(ctx, conn.UserID)
	if err != nil {
		name = conn.UserID
	}
	bc := LocationBroadcast{
		UserID:      sample.UserID,
		DisplayName: name,
		Latitude:    sample.Latitude,
		Longitude:   sample.Longitude,
		Speed:       sample.Speed,
		Heading:     sample.Heading,
		Accuracy:    sample.Accuracy,
		Timestamp:   sample.Timestamp,
	}
	if err := s.publish(ctx, fanout.EvLocationUpdate, req.PartyID, conn.UserID, bc); err != nil {
		return errs.ErrInternal.WrapMsg("publish location", "err", err)
	}
	return nil
}

func (s *Server) handleNavigationSet(ctx context.Context, conn *WsConn, payload map[string]any) error {
	req, err := decode.Map[NavigationSetPayload](payload)
	if err != nil {
		return errs.ErrInternal.WrapMsg("decode navigation-set", "err", err)
	}
	if err := s.validate.Struct(req); err != nil {
		return errs.ErrInternal.WrapMsg("navigation payload invalid")
	}
	if !conn.inParty(req.PartyID) {
		return errs.ErrNotInParty.WrapMsg("party", req.PartyID)
	}

	_, err = s.deps.Nav.SetDestination(ctx, req.PartyID, conn.UserID, req.toRequest())
	return err
}

func (s *Server) handleNavigationClear(ctx context.Context, conn *WsConn, payload map[string]any) error {
	req, err := decode.Map[NavigationClearPayload](payload)
	if err != nil {
		return errs.ErrInternal.WrapMsg("decode navigation-clear", "err", err)
	}
	if !conn.inParty(req.PartyID) {
		return errs.ErrNotInParty.WrapMsg("party", req.PartyID)
	}

	_, err = s.deps.Nav.Clear(ctx, req.PartyID, conn.UserID)
	return err
}

// handleMessage follows the same validate -> persist -> broadcast shape
// as location, with the message log as the persistence step.
func (s *Server) handleMessage(ctx context.Context, conn *WsConn, payload map[string]any) error {
	req, err := decode.Map[MessagePayload](payload)
	if err != nil {
		return errs.ErrInternal.WrapMsg("decode message", "err", err)
	}
	if err := s.validate.Struct(req); err != nil {
		return errs.ErrInternal.WrapMsg("message payload invalid")
	}
	if !conn.inParty(req.PartyID) {
		return errs.ErrNotInParty.WrapMsg("party", req.PartyID)
	}

	msg := party.ChatMessage{
		ID:        ids.GenerateString(),
		PartyID:   req.PartyID,
		UserID:    conn.UserID,
		Text:      req.Text,
		CreatedAt: s.clock(),
	}
	if err := s.deps.Messages.Append(ctx, msg); err != nil {
		return errs.ErrInternal.WrapMsg("persist message", "err", err)
	}
	return s.publish(ctx, fanout.EvMessageReceived, req.PartyID, conn.UserID, msg)
}
