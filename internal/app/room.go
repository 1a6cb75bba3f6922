package app

import (
	"sync"

	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/rs/zerolog/log"
)

// Room is a threadsafe in-memory group of participants sharing one pipeline.
// Its lifetime is managed by RoomManager.
type Room struct {
	name     domain.RoomName
	pipeline core.Pipeline

	mu           sync.RWMutex
	participants map[core.SessionID]*Participant
	retired      bool

	// guarded by RoomManager.mu
	holds  int
	closed bool
}

func newRoom(name domain.RoomName, pipeline core.Pipeline) *Room {
	return &Room{
		name:         name,
		pipeline:     pipeline,
		participants: make(map[core.SessionID]*Participant),
	}
}

func (r *Room) Name() domain.RoomName    { return r.name }
func (r *Room) Pipeline() core.Pipeline { return r.pipeline }

func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Add publishes p to the room and returns everyone already present.
// It fails once the room is retired.
func (r *Room) Add(p *Participant) ([]*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return nil, false
	}
	others := make([]*Participant, 0, len(r.participants))
	for sid, other := range r.participants {
		if sid != p.ID() {
			others = append(others, other)
		}
	}
	r.participants[p.ID()] = p
	log.Info().Str("module", "app.room").Str("room", string(r.name)).Str("sid", string(p.ID())).Msg("participant added")
	return others, true
}

// retire stops further Adds and snapshots who is still in the room.
func (r *Room) retire() []*Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retired = true
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

func (r *Room) Remove(sid core.SessionID) (*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[sid]
	if !ok {
		return nil, false
	}
	delete(r.participants, sid)
	log.Info().Str("module", "app.room").Str("room", string(r.name)).Str("sid", string(sid)).Msg("participant removed")
	return p, true
}

func (r *Room) Participant(sid core.SessionID) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[sid]
	return p, ok
}

func (r *Room) Participants() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// Others snapshots every participant except sid.
func (r *Room) Others(sid core.SessionID) []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Participant, 0, len(r.participants))
	for id, p := range r.participants {
		if id != sid {
			out = append(out, p)
		}
	}
	return out
}
