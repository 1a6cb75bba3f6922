package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/dkeye/VideoRooms/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// RoomManager maps room names to live rooms.
//
// A room is created on the first Acquire of its name and torn down, pipeline
// included, once it has no participants and no Acquire holds it. Creation is
// single-flighted per name so concurrent first joins share one pipeline.
type RoomManager struct {
	engine  *EngineClient
	metrics *metrics.Metrics

	mu       sync.Mutex
	rooms    map[domain.RoomName]*Room
	creating singleflight.Group
}

func NewRoomManager(engine *EngineClient, m *metrics.Metrics) *RoomManager {
	return &RoomManager{
		engine:  engine,
		metrics: m,
		rooms:   make(map[domain.RoomName]*Room),
	}
}

// Acquire returns the room called name, creating it if needed, and holds it
// open until Release.
func (m *RoomManager) Acquire(ctx context.Context, name domain.RoomName) (*Room, error) {
	for {
		m.mu.Lock()
		if room, ok := m.rooms[name]; ok {
			room.holds++
			m.mu.Unlock()
			return room, nil
		}
		m.mu.Unlock()

		ch := m.creating.DoChan(string(name), func() (any, error) {
			return m.create(context.WithoutCancel(ctx), name)
		})
		select {
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			// The room is registered now; loop to take the hold under the lock.
			// If it was torn down in between, a fresh one gets created.
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *RoomManager) create(ctx context.Context, name domain.RoomName) (*Room, error) {
	m.mu.Lock()
	if room, ok := m.rooms[name]; ok {
		m.mu.Unlock()
		return room, nil
	}
	m.mu.Unlock()

	engine, err := m.engine.Connect(ctx)
	if err != nil {
		return nil, err
	}
	pipeline, err := engine.CreatePipeline(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Str("room", string(name)).Msg("create pipeline failed")
		return nil, fmt.Errorf("%w: create pipeline: %w", domain.ErrEngineUnavailable, err)
	}

	room := newRoom(name, pipeline)
	m.mu.Lock()
	m.rooms[name] = room
	m.mu.Unlock()
	m.metrics.RoomOpened()
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Str("pipeline", pipeline.ID()).Msg("room created")
	return room, nil
}

// Release drops a hold taken by Acquire.
func (m *RoomManager) Release(room *Room) {
	m.mu.Lock()
	room.holds--
	m.mu.Unlock()
	m.Evict(room)
}

// Evict tears room down if nothing holds it and nobody is in it.
// It reports whether the room was torn down.
func (m *RoomManager) Evict(room *Room) bool {
	m.mu.Lock()
	if room.closed || room.holds > 0 || room.Len() > 0 {
		m.mu.Unlock()
		return false
	}
	room.closed = true
	if m.rooms[room.name] == room {
		delete(m.rooms, room.name)
	}
	m.mu.Unlock()

	if err := room.pipeline.Release(); err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Str("room", string(room.name)).Msg("release pipeline")
	}
	m.metrics.RoomClosed()
	log.Info().Str("module", "app.rooms").Str("room", string(room.name)).Msg("room torn down")
	return true
}

// Retire unlists the room called name so the next Acquire of that name gets
// a fresh room, and refuses further Adds to it. It returns the room and the
// participants still in it. The pipeline is released by Evict once the last
// participant and hold are gone.
func (m *RoomManager) Retire(name domain.RoomName) (*Room, []*Participant, bool) {
	m.mu.Lock()
	room, ok := m.rooms[name]
	if ok {
		delete(m.rooms, name)
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("room retired")
	return room, room.retire(), true
}

func (m *RoomManager) Get(name domain.RoomName) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[name]
	return room, ok
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for name, r := range m.rooms {
		out = append(out, core.RoomInfo{Name: name, Participants: r.Len()})
	}
	return out
}

// Shutdown releases every pipeline regardless of holds.
func (m *RoomManager) Shutdown() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for name, r := range m.rooms {
		r.closed = true
		rooms = append(rooms, r)
		delete(m.rooms, name)
	}
	m.mu.Unlock()
	for _, r := range rooms {
		if err := r.pipeline.Release(); err != nil {
			log.Error().Err(err).Str("module", "app.rooms").Str("room", string(r.name)).Msg("release pipeline")
		}
		m.metrics.RoomClosed()
	}
}
