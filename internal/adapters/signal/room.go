package signal

import (
	"context"

	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, client *wsClient, data []byte) {
	var p struct {
		UserName string `json:"userName"`
		RoomName string `json:"roomName"`
	}
	if err := decode(data, &p); err != nil {
		ctl.replyError(client, EventJoinRoom, err)
		return
	}
	if !ctl.limiter.Allow(client.sid) {
		ctl.replyError(client, EventJoinRoom, domain.ErrRateLimited)
		return
	}
	if p.UserName == "" {
		p.UserName = client.name
	}

	log.Info().Str("module", "signal").Str("sid", string(client.sid)).Str("room", p.RoomName).Msg("join")
	if err := ctl.Orch.JoinRoom(ctx, client, p.UserName, p.RoomName); err != nil {
		ctl.replyError(client, EventJoinRoom, err)
	}
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(ctx context.Context, client *wsClient) {
	log.Info().Str("module", "signal").Str("sid", string(client.sid)).Msg("leave")
	if err := ctl.Orch.LeaveRoom(ctx, client.sid); err != nil {
		ctl.replyError(client, EventLeaveRoom, err)
		return
	}
	ctl.reply(client, core.NewEvent(core.EventLeft))
}
