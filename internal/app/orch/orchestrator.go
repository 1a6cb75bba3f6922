// Package orch implements the signaling state machine that pairs room
// participants' media streams on the media engine.
package orch

import (
	"github.com/dkeye/VideoRooms/internal/app"
	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/dkeye/VideoRooms/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Policy   app.Policy
	Metrics  *metrics.Metrics
}

// send delivers msg and applies the backpressure policy if the client lags.
func (o *Orchestrator) send(client core.SignalClient, msg core.Message) {
	err := client.Send(msg)
	if err == nil {
		return
	}
	sid := client.SessionID()
	if !errors.Is(err, core.ErrBackpressure) || o.Policy == nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("event", msg.EventName()).Msg("send failed")
		return
	}
	switch o.Policy.OnBackPressure(client, msg) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("event", msg.EventName()).Msg("slow client, kicking")
		o.Registry.Cancel(sid)
	case app.DropMessage, app.NoAction:
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("event", msg.EventName()).Msg("dropped message")
	}
}

func (o *Orchestrator) broadcast(to []*app.Participant, msg core.Message) {
	for _, p := range to {
		o.send(p.Client(), msg)
	}
}

// release frees engine streams in parallel.
func (o *Orchestrator) release(streams []core.MediaStream) {
	var wg conc.WaitGroup
	for _, s := range streams {
		wg.Go(func() {
			if err := s.Release(); err != nil {
				log.Error().Err(err).Str("module", "orch").Str("stream", s.ID()).Msg("release stream")
			}
		})
	}
	wg.Wait()
}

// lookup resolves the room and the caller's participant in it.
func (o *Orchestrator) lookup(sid core.SessionID, roomName string) (*app.Room, *app.Participant, error) {
	room, ok := o.Rooms.Get(domain.RoomName(roomName))
	if !ok {
		return nil, nil, errors.Wrapf(domain.ErrRoomNotFound, "room %q", roomName)
	}
	p, ok := room.Participant(sid)
	if !ok {
		return nil, nil, errors.Wrapf(domain.ErrParticipantNotFound, "session %s in room %q", sid, roomName)
	}
	return room, p, nil
}
