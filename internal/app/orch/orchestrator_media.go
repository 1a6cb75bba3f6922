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

// ReceiveVideoFrom negotiates sdpOffer on the stream that carries userID's
// media to the caller and sends the answer back. Asking for oneself
// negotiates the caller's own outbound stream.
func (o *Orchestrator) ReceiveVideoFrom(ctx context.Context, client core.SignalClient, userID, roomName, sdpOffer string) error {
	if sdpOffer == "" {
		return errors.Wrap(domain.ErrBadRequest, "empty sdp offer")
	}
	room, asker, err := o.lookup(client.SessionID(), roomName)
	if err != nil {
		return err
	}
	sender, ok := room.Participant(core.SessionID(userID))
	if !ok {
		return errors.Wrapf(domain.ErrParticipantNotFound, "sender %s in room %q", userID, roomName)
	}
	target := app.TargetFor(asker.ID(), sender.ID())
	if !target.IsOwn() {
		asker.BeginOffer(sender.ID())
	}

	stream, err := o.endpointFor(ctx, room, asker, sender, target)
	if err != nil {
		o.endOffer(asker, target, nil, false)
		return err
	}

	answer, err := stream.ProcessOffer(ctx, sdpOffer)
	if err != nil {
		o.endOffer(asker, target, stream, false)
		return fmt.Errorf("%w: process offer %s <- %s: %w", domain.ErrNegotiationFailed, asker.ID(), sender.ID(), err)
	}
	o.endOffer(asker, target, stream, true)
	o.send(asker.Client(), core.NewVideoAnswer(sender.User().ID, answer))

	go func() {
		if err := stream.GatherCandidates(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).
				Str("module", "orch").
				Str("sid", string(asker.ID())).
				Str("target", target.String()).
				Msg("gather candidates")
		}
	}()

	log.Info().Str("module", "orch").Str("sid", string(asker.ID())).Str("target", target.String()).Msg("answered offer")
	return nil
}

// endpointFor resolves the stream an offer from asker about sender negotiates on.
func (o *Orchestrator) endpointFor(
	ctx context.Context,
	room *app.Room,
	asker, sender *app.Participant,
	target app.StreamTarget,
) (core.MediaStream, error) {
	if target.IsOwn() {
		return asker.Outbound(), nil
	}

	if s, ok := asker.Inbound(sender.ID()); ok {
		if err := sender.Outbound().ConnectTo(ctx, s); err != nil {
			return nil, fmt.Errorf("%w: connect %s -> %s: %w", domain.ErrNegotiationFailed, sender.ID(), asker.ID(), err)
		}
		return s, nil
	}

	s, _, err := asker.Pair(ctx, sender.ID(), func(ctx context.Context) (core.MediaStream, error) {
		return o.createInbound(ctx, room, asker, sender)
	})
	return s, err
}

// createInbound builds the stream that carries sender's media to asker,
// applies candidates asker queued for it and wires sender into it.
func (o *Orchestrator) createInbound(ctx context.Context, room *app.Room, asker, sender *app.Participant) (core.MediaStream, error) {
	s, err := room.Pipeline().CreateStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create inbound stream %s <- %s: %w", domain.ErrEngineUnavailable, asker.ID(), sender.ID(), err)
	}
	o.Metrics.StreamCreated("inbound")

	askerClient, senderUID := asker.Client(), sender.User().ID
	s.OnCandidateFound(func(c domain.Candidate) {
		o.send(askerClient, core.NewCandidateMessage(senderUID, c))
	})

	drained, err := asker.AttachInbound(sender.ID(), s)
	if err != nil {
		o.release([]core.MediaStream{s})
		return nil, errors.Wrapf(err, "asker %s", asker.ID())
	}
	// The sender may have left while the stream was being created; its
	// departure only cleans up streams attached before it.
	if _, ok := room.Participant(sender.ID()); !ok {
		o.dropPairing(asker, sender.ID(), s)
		return nil, errors.Wrapf(domain.ErrParticipantNotFound, "sender %s left", sender.ID())
	}

	if err := sender.Outbound().ConnectTo(ctx, s); err != nil {
		o.dropPairing(asker, sender.ID(), s)
		return nil, fmt.Errorf("%w: connect %s -> %s: %w", domain.ErrNegotiationFailed, sender.ID(), asker.ID(), err)
	}

	log.Debug().
		Str("module", "orch").
		Str("sid", string(asker.ID())).
		Str("sender", string(sender.ID())).
		Str("stream", s.ID()).
		Int("drained", drained).
		Msg("inbound stream created")
	return s, nil
}

// endOffer closes the offer begun for target and releases the inbound stream
// if the failure left nobody negotiating on it.
func (o *Orchestrator) endOffer(asker *app.Participant, target app.StreamTarget, s core.MediaStream, ok bool) {
	peer, isPeer := target.PeerID()
	if !isPeer {
		return
	}
	if asker.EndOffer(peer, s, ok) {
		o.release([]core.MediaStream{s})
	}
}

// dropPairing tears down an inbound stream that could not be wired up so the
// next request builds a fresh one.
func (o *Orchestrator) dropPairing(asker *app.Participant, peer core.SessionID, s core.MediaStream) {
	// A failed detach means Close or a later pairing already owns s.
	if _, ok := asker.DetachInbound(peer, s); ok {
		o.release([]core.MediaStream{s})
	}
}

// AddIceCandidate applies a remote candidate from the caller to the stream it
// belongs to, or queues it until that stream exists. userID names the
// participant whose media the stream carries, which is the caller itself for
// its outbound stream.
func (o *Orchestrator) AddIceCandidate(_ context.Context, client core.SignalClient, userID, roomName string, c domain.Candidate) error {
	room, owner, err := o.lookup(client.SessionID(), roomName)
	if err != nil {
		return err
	}
	if userID == "" {
		return errors.Wrap(domain.ErrInvalidCandidateTarget, "candidate without userId")
	}
	target := app.TargetFor(owner.ID(), core.SessionID(userID))
	if peer, ok := target.PeerID(); ok {
		if _, ok := room.Participant(peer); !ok {
			return errors.Wrapf(domain.ErrParticipantNotFound, "candidate for %s in room %q", peer, roomName)
		}
	}

	queued, err := owner.ApplyOrQueue(target, c)
	if err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return err
		}
		return fmt.Errorf("%w: add candidate for %s: %w", domain.ErrNegotiationFailed, target, err)
	}
	if peer, ok := target.PeerID(); ok && queued {
		// The peer may have left after the check above; its departure
		// only drained what was queued before it.
		if _, ok := room.Participant(peer); !ok {
			owner.DropQueued(target)
			return errors.Wrapf(domain.ErrParticipantNotFound, "candidate for %s in room %q", peer, roomName)
		}
	}
	if queued {
		o.Metrics.CandidateQueued()
		log.Debug().Str("module", "orch").Str("sid", string(owner.ID())).Str("target", target.String()).Msg("candidate queued")
	}
	return nil
}
