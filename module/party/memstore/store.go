// Package memstore holds an in-memory party service used by tests and
// by single-process "solo" deployments that have no Mongo behind them.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/convoylab/convoy/module/party"
	"github.com/convoylab/convoy/tools/errs"
)

type memberKey struct{ partyID, userID string }

type Store struct {
	mu       sync.RWMutex
	parties  map[string]party.Party // id -> party
	byCode   map[string]string      // code -> id
	members  map[memberKey]party.Member
	names    map[string]string // userID -> display name
	messages []party.ChatMessage

	Clock func() time.Time
}

func New() *Store {
	return &Store{
		parties: make(map[string]party.Party),
		byCode:  make(map[string]string),
		members: make(map[memberKey]party.Member),
		names:   make(map[string]string),
		Clock:   time.Now,
	}
}

// Seed helpers, test-side only.

func (s *Store) AddParty(p party.Party) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parties[p.ID] = p
	s.byCode[p.Code] = p.ID
}

func (s *Store) SetDisplayName(userID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[userID] = name
}

func (s *Store) Messages() []party.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]party.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// party.Service

func (s *Store) ResolveCode(_ context.Context, code string) (*party.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, errs.ErrPartyNotFound.WrapMsg("code", code)
	}
	p := s.parties[id]
	if !p.Active {
		return nil, errs.ErrPartyInactive.WrapMsg("party", p.ID)
	}
	return &p, nil
}

func (s *Store) Get(_ context.Context, partyID string) (*party.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parties[partyID]
	if !ok {
		return nil, errs.ErrPartyNotFound.WrapMsg("party", partyID)
	}
	return &p, nil
}

func (s *Store) MembershipsOf(_ context.Context, userID string) ([]party.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []party.Member
	for k, m := range s.members {
		if k.userID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) Members(_ context.Context, partyID string) ([]party.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []party.Member
	for k, m := range s.members {
		if k.partyID == partyID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) IsMember(_ context.Context, partyID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[memberKey{partyID, userID}]
	return ok, nil
}

func (s *Store) Join(_ context.Context, partyID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey{partyID, userID}
	if m, ok := s.members[k]; ok {
		m.LastSeen = s.Clock()
		s.members[k] = m
		return true, nil
	}
	now := s.Clock()
	s.members[k] = party.Member{
		PartyID:  partyID,
		UserID:   userID,
		JoinedAt: now,
		LastSeen: now,
	}
	return false, nil
}

func (s *Store) Leave(_ context.Context, partyID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, memberKey{partyID, userID})
	return nil
}

// party.Directory

func (s *Store) DisplayName(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.names[userID]; ok {
		return n, nil
	}
	return userID, nil
}

// party.MessageLog

func (s *Store) Append(_ context.Context, msg party.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}
