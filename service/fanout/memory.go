package fanout

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryBus is a process-local Bus. Used in tests and in solo mode,
// where a party of one has no cross-instance distribution to do.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler // topic -> subID -> handler
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]Handler)}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, data []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New("bus closed")
	}
	hs := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	// Handlers run synchronously on the publisher goroutine; they are
	// expected to be quick (enqueue onto a connection send channel).
	for _, h := range hs {
		h(topic, data)
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("bus closed")
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.nextID++
	id := b.nextID
	b.subs[topic][id] = h
	return &memorySub{bus: b, topic: topic, id: id}, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[int]Handler)
	return nil
}

type memorySub struct {
	bus   *MemoryBus
	topic string
	id    int
	once  sync.Once
}

func (s *memorySub) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if m := s.bus.subs[s.topic]; m != nil {
			delete(m, s.id)
			if len(m) == 0 {
				delete(s.bus.subs, s.topic)
			}
		}
	})
	return nil
}
