package gateway

import (
	"sync"

	"github.com/convoylab/convoy/logger"
	"github.com/convoylab/convoy/service/fanout"
)

// room is the local face of one party: the set of this instance's
// connections that belong to the party, plus the single bus
// subscription shared by all of them. Other instances hold their own
// rooms on the same topic; the bus makes them one logical room.
type room struct {
	partyID string
	conns   map[string]*WsConn // connID -> conn
	sub     fanout.Subscription
}

type roomRegistry struct {
	mu    sync.Mutex
	rooms map[string]*room
	bus   fanout.Bus
}

func newRoomRegistry(bus fanout.Bus) *roomRegistry {
	return &roomRegistry{rooms: make(map[string]*room), bus: bus}
}

// join adds the connection to the party room, subscribing to the party
// topic when this is the first local member.
func (r *roomRegistry) join(partyID string, c *WsConn, onEvent fanout.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[partyID]
	if !ok {
		sub, err := r.bus.Subscribe(fanout.PartyTopic(partyID), onEvent)
		if err != nil {
			return err
		}
		rm = &room{partyID: partyID, conns: make(map[string]*WsConn), sub: sub}
		r.rooms[partyID] = rm
	}
	rm.conns[c.ID] = c
	return nil
}

// leave removes the connection; the last local member tears the topic
// subscription down so a dead socket can never receive events.
func (r *roomRegistry) leave(partyID string, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[partyID]
	if !ok {
		return
	}
	delete(rm.conns, connID)
	if len(rm.conns) == 0 {
		if err := rm.sub.Unsubscribe(); err != nil {
			logger.Warnf("unsubscribe party=%s err=%v", partyID, err)
		}
		delete(r.rooms, partyID)
	}
}

// deliver fans a bus event out to the local members of the party.
// Location echoes back to their producer are skipped; the sender's own
// position is already on their screen.
func (r *roomRegistry) deliver(ev *fanout.Event, raw []byte) {
	r.mu.Lock()
	rm, ok := r.rooms[ev.PartyID]
	if !ok {
		r.mu.Unlock()
		return
	}
	conns := make([]*WsConn, 0, len(rm.conns))
	for _, c := range rm.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		if ev.Name == fanout.EvLocationUpdate && ev.From == c.UserID {
			continue
		}
		c.Enqueue(raw)
	}
}

func (r *roomRegistry) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rm := range r.rooms {
		_ = rm.sub.Unsubscribe()
		delete(r.rooms, id)
	}
}
