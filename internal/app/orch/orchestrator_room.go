package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/VideoRooms/internal/app"
	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// JoinRoom creates the caller's outbound stream in roomName, publishes the
// participant, announces it to the room and lists the others back to it.
// Nothing is visible to other participants unless every engine call succeeded.
func (o *Orchestrator) JoinRoom(ctx context.Context, client core.SignalClient, userName, roomName string) error {
	sid := client.SessionID()
	name, err := domain.NewRoomName(roomName)
	if err != nil {
		return err
	}
	user, err := domain.NewUser(sid.UserID(), userName)
	if err != nil {
		return err
	}

	if current, ok := o.Registry.RoomOf(sid); ok {
		_ = o.LeaveRoom(ctx, sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(current)).Msg("left previous room")
	}

	room, err := o.Rooms.Acquire(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "join %q", name)
	}
	defer o.Rooms.Release(room)

	outbound, err := room.Pipeline().CreateStream(ctx)
	if err != nil {
		return fmt.Errorf("%w: create outbound stream in %q: %w", domain.ErrEngineUnavailable, name, err)
	}
	o.Metrics.StreamCreated("outbound")

	p := app.NewParticipant(*user, client, outbound)
	outbound.OnCandidateFound(func(c domain.Candidate) {
		o.send(client, core.NewCandidateMessage(user.ID, c))
	})

	others, ok := room.Add(p)
	if !ok {
		o.release(p.Close())
		return errors.Wrapf(domain.ErrRoomNotFound, "room %q was evicted during join", name)
	}
	o.Metrics.ParticipantJoined()
	if !o.Registry.UpdateRoom(sid, name) {
		// The connection went away while the stream was being created.
		o.removeParticipant(room, sid)
		return errors.Wrapf(domain.ErrParticipantNotFound, "session %s", sid)
	}
	if _, ok := room.Participant(sid); !ok {
		// Evicted between Add and UpdateRoom.
		o.Registry.ClearRoom(sid, name)
		return errors.Wrapf(domain.ErrRoomNotFound, "room %q was evicted during join", name)
	}
	p.DrainOwn()

	o.broadcast(others, core.NewParticipantArrived(*user))

	existing := make([]domain.User, 0, len(others))
	for _, other := range others {
		existing = append(existing, other.User())
	}
	o.send(client, core.NewExistingParticipants(user.ID, existing))

	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(name)).Int("existing", len(existing)).Msg("joined room")
	return nil
}

// LeaveRoom removes sid from its room and releases every stream it fed or owned.
func (o *Orchestrator) LeaveRoom(_ context.Context, sid core.SessionID) error {
	name, ok := o.Registry.RoomOf(sid)
	if !ok {
		return errors.Wrapf(domain.ErrRoomNotFound, "session %s is not in a room", sid)
	}
	o.Registry.ClearRoom(sid, name)
	room, ok := o.Rooms.Get(name)
	if !ok {
		return errors.Wrapf(domain.ErrRoomNotFound, "room %q", name)
	}
	o.removeParticipant(room, sid)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(name)).Msg("left room")
	return nil
}

// OnDisconnect is called once the signaling connection of sid is gone.
func (o *Orchestrator) OnDisconnect(ctx context.Context, sid core.SessionID) {
	if _, ok := o.Registry.RoomOf(sid); ok {
		_ = o.LeaveRoom(ctx, sid)
	}
	o.Registry.Unbind(sid)
}

// EvictRoom removes everyone from name and tears the room down. Joins still
// in flight on it fail, and the next join of name gets a fresh room.
func (o *Orchestrator) EvictRoom(_ context.Context, name domain.RoomName) bool {
	room, participants, ok := o.Rooms.Retire(name)
	if !ok {
		return false
	}
	for _, p := range participants {
		// Remove before ClearRoom so a join racing past Add either sees its
		// own removal or has its registry entry cleared here.
		o.removeParticipant(room, p.ID())
		o.Registry.ClearRoom(p.ID(), name)
		o.send(p.Client(), core.NewEvent(core.EventLeft))
	}
	o.Rooms.Evict(room)
	log.Info().Str("module", "orch").Str("room", string(name)).Int("evicted", len(participants)).Msg("room evicted")
	return true
}

func (o *Orchestrator) removeParticipant(room *app.Room, sid core.SessionID) {
	p, ok := room.Remove(sid)
	if !ok {
		return
	}
	streams := p.Close()
	others := room.Others(sid)
	for _, other := range others {
		if s, ok := other.DetachInbound(sid, nil); ok {
			streams = append(streams, s)
		}
	}
	o.release(streams)
	o.Metrics.ParticipantLeft()

	o.broadcast(others, core.NewParticipantLeft(sid.UserID()))
	o.Rooms.Evict(room)
}
