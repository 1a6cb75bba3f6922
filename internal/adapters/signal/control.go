package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Inbound event names.
const (
	EventJoinRoom         = "joinRoom"
	EventReceiveVideoFrom = "receiveVideoFrom"
	EventCandidate        = "candidate"
	EventLeaveRoom        = "leaveRoom"
	EventPing             = "ping"
)

// handleSignal dispatches one inbound frame. joinRoom and candidate run on
// the read loop so they apply in arrival order; receiveVideoFrom runs beside
// it so one slow negotiation does not stall the others.
func (ctl *SignalWSController) handleSignal(ctx context.Context, client *wsClient, data []byte) {
	var env struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.replyError(client, "", errors.Wrap(domain.ErrBadRequest, "malformed json"))
		return
	}

	switch env.Event {
	case EventJoinRoom:
		ctl.handleJoin(ctx, client, data)
	case EventReceiveVideoFrom:
		client.handlers.Go(func() {
			ctl.handleReceiveVideo(ctx, client, data)
		})
	case EventCandidate:
		ctl.handleCandidate(ctx, client, data)
	case EventLeaveRoom:
		ctl.handleLeave(ctx, client)
	case EventPing:
		ctl.handlePing(client)
	default:
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown signal")
		ctl.replyError(client, env.Event, errors.Wrapf(domain.ErrBadRequest, "unknown event %q", env.Event))
	}
}

func (ctl *SignalWSController) handlePing(client *wsClient) {
	ctl.reply(client, core.NewEvent(core.EventPong))
}

func (ctl *SignalWSController) reply(client *wsClient, msg core.Message) {
	if err := client.Send(msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(client.sid)).Str("event", msg.EventName()).Msg("reply dropped")
	}
}

// replyError reports err to the client that sent request, and only to it.
func (ctl *SignalWSController) replyError(client *wsClient, request string, err error) {
	msg := core.NewErrorMessage(request, err)
	ctl.Orch.Metrics.RequestFailed(request, msg.Kind)
	log.Warn().Err(err).Str("module", "signal").Str("sid", string(client.sid)).Str("request", request).Str("kind", msg.Kind).Msg("request failed")
	ctl.reply(client, msg)
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(domain.ErrBadRequest, err.Error())
	}
	return nil
}
