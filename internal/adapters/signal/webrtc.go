package signal

import (
	"context"

	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/pkg/errors"
)

func (ctl *SignalWSController) handleReceiveVideo(ctx context.Context, client *wsClient, data []byte) {
	var p struct {
		UserID   string `json:"userId"`
		RoomName string `json:"roomName"`
		SDPOffer string `json:"sdpOffer"`
	}
	if err := decode(data, &p); err != nil {
		ctl.replyError(client, EventReceiveVideoFrom, err)
		return
	}
	if err := ctl.Orch.ReceiveVideoFrom(ctx, client, p.UserID, p.RoomName, p.SDPOffer); err != nil {
		ctl.replyError(client, EventReceiveVideoFrom, err)
	}
}

func (ctl *SignalWSController) handleCandidate(ctx context.Context, client *wsClient, data []byte) {
	var p struct {
		UserID    string            `json:"userId"`
		RoomName  string            `json:"roomName"`
		Candidate *domain.Candidate `json:"candidate"`
	}
	if err := decode(data, &p); err != nil {
		ctl.replyError(client, EventCandidate, err)
		return
	}
	if p.Candidate == nil {
		ctl.replyError(client, EventCandidate, errors.Wrap(domain.ErrBadRequest, "missing candidate"))
		return
	}
	if err := ctl.Orch.AddIceCandidate(ctx, client, p.UserID, p.RoomName, *p.Candidate); err != nil {
		ctl.replyError(client, EventCandidate, err)
	}
}
