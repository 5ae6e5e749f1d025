package storage

import (
	"context"
	"sync"
	"time"

	"github.com/convoylab/convoy/module/party"
)

// MemoryLocationStore mirrors the Redis store for tests and solo mode.
// Expiry is lazy: reads drop entries whose deadline has passed.
type MemoryLocationStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry // locationKey -> entry
	Clock   func() time.Time
}

type memoryEntry struct {
	sample   party.LocationSample
	expireAt time.Time
}

func NewMemoryLocationStore() *MemoryLocationStore {
	return &MemoryLocationStore{
		entries: make(map[string]memoryEntry),
		Clock:   time.Now,
	}
}

func (s *MemoryLocationStore) Put(_ context.Context, partyID, userID string, sample party.LocationSample, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultLocationTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[locationKey(partyID, userID)] = memoryEntry{
		sample:   sample,
		expireAt: s.Clock().Add(ttl),
	}
	return nil
}

func (s *MemoryLocationStore) Get(_ context.Context, partyID, userID string) (*party.LocationSample, error) {
	s.mu.RLock()
	e, ok := s.entries[locationKey(partyID, userID)]
	s.mu.RUnlock()
	if !ok || !s.Clock().Before(e.expireAt) {
		return nil, nil
	}
	sample := e.sample
	return &sample, nil
}

func (s *MemoryLocationStore) GetAll(_ context.Context, partyID string) ([]party.LocationSample, error) {
	prefix := locationPrefix(partyID)
	now := s.Clock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []party.LocationSample
	for k, e := range s.entries {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix && now.Before(e.expireAt) {
			out = append(out, e.sample)
		}
	}
	return out, nil
}

// MemoryPresence mirrors RedisPresence for tests and solo mode.
type MemoryPresence struct {
	mu      sync.RWMutex
	entries map[string]presenceEntry
	Clock   func() time.Time
}

type presenceEntry struct {
	gatewayID string
	expireAt  time.Time
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		entries: make(map[string]presenceEntry),
		Clock:   time.Now,
	}
}

func (p *MemoryPresence) Online(_ context.Context, partyID, userID, gatewayID string, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[presenceKey(partyID, userID)] = presenceEntry{
		gatewayID: gatewayID,
		expireAt:  p.Clock().Add(ttl),
	}
	return nil
}

func (p *MemoryPresence) Offline(_ context.Context, partyID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, presenceKey(partyID, userID))
	return nil
}

func (p *MemoryPresence) Lookup(_ context.Context, partyID, userID string) (string, bool, error) {
	p.mu.RLock()
	e, ok := p.entries[presenceKey(partyID, userID)]
	p.mu.RUnlock()
	if !ok || !p.Clock().Before(e.expireAt) {
		return "", false, nil
	}
	return e.gatewayID, true, nil
}

func (p *MemoryPresence) List(_ context.Context, partyID string) ([]string, error) {
	prefix := presencePrefix(partyID)
	now := p.Clock()

	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for k, e := range p.entries {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix && now.Before(e.expireAt) {
			out = append(out, k[len(prefix):])
		}
	}
	return out, nil
}
