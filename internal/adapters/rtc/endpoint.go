package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/VideoRooms/internal/app/sfu"
	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrForeignStream = errors.New("stream belongs to another pipeline")

// Endpoint is one server-side peer connection. As a source it feeds the
// relays keyed by its id; as a sink it owns the local tracks those relays
// write into.
type Endpoint struct {
	id       string
	pipeline *Pipeline
	pc       *webrtc.PeerConnection
	ctx      context.Context
	cancel   context.CancelFunc

	mu          sync.Mutex
	onCandidate func(domain.Candidate)
	gathering   bool
	local       []domain.Candidate        // found before GatherCandidates
	remote      []webrtc.ICECandidateInit // received before the offer
	remoteSet   bool
	sinks       map[string]struct{}
	closed      bool
}

func newEndpoint(p *Pipeline, pc *webrtc.PeerConnection) *Endpoint {
	ctx, cancel := context.WithCancel(p.ctx)
	e := &Endpoint{
		id:       uuid.NewString(),
		pipeline: p,
		pc:       pc,
		ctx:      ctx,
		cancel:   cancel,
		sinks:    make(map[string]struct{}),
	}
	e.start()
	return e
}

func (e *Endpoint) start() {
	e.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("stream", e.id).Str("ice_state", s.String()).Msg("ICE state")
	})

	e.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("stream", e.id).Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateDisconnected:
			e.pipeline.relays.SetSubscriberMuted(e.id, true)
		case webrtc.PeerConnectionStateConnected:
			e.pipeline.relays.SetSubscriberMuted(e.id, false)
		case webrtc.PeerConnectionStateFailed:
			// The sink side stays registered; the coordinator decides about teardown.
			e.pipeline.relays.StopSource(e.id)
		}
	})

	e.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		e.foundLocal(fromInit(c.ToJSON()))
	})

	e.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("stream", e.id).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("codec", track.Codec().MimeType).
			Msg("OnTrack received")
		e.pipeline.relays.StartRelay(e.ctx, sfu.RelayKey{Source: e.id, Kind: track.Kind()}, track)
	})
}

func (e *Endpoint) ID() string { return e.id }

// ProcessOffer applies a remote offer and returns the answer. Gathering
// starts right away but candidates are held back until GatherCandidates.
func (e *Endpoint) ProcessOffer(_ context.Context, offer string) (string, error) {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(offer)); err != nil {
		return "", errors.Wrap(err, "parse offer")
	}
	if len(parsed.MediaDescriptions) == 0 {
		return "", errors.New("offer has no media sections")
	}
	if e.isClosed() {
		return "", ErrStreamReleased
	}

	if err := e.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", errors.Wrap(err, "set remote description")
	}
	e.flushRemote()

	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", errors.Wrap(err, "create answer")
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return "", errors.Wrap(err, "set local description")
	}
	return e.pc.LocalDescription().SDP, nil
}

// AddCandidate applies a remote candidate, buffering it while no offer has
// been processed yet.
func (e *Endpoint) AddCandidate(c domain.Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrStreamReleased
	}
	if !e.remoteSet {
		e.remote = append(e.remote, toInit(c))
		return nil
	}
	return e.pc.AddICECandidate(toInit(c))
}

func (e *Endpoint) flushRemote() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remoteSet = true
	for _, c := range e.remote {
		if err := e.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "webrtc").Str("stream", e.id).Msg("buffered candidate rejected")
		}
	}
	e.remote = nil
}

// ConnectTo subscribes sink to every kind of media this endpoint receives.
func (e *Endpoint) ConnectTo(_ context.Context, sink core.MediaStream) error {
	dst, ok := sink.(*Endpoint)
	if !ok || dst.pipeline != e.pipeline {
		return ErrForeignStream
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrStreamReleased
	}
	if _, ok := e.sinks[dst.id]; ok {
		return nil
	}

	for _, kc := range []struct {
		kind  webrtc.RTPCodecType
		codec webrtc.RTPCodecCapability
	}{
		{webrtc.RTPCodecTypeAudio, audioCodec},
		{webrtc.RTPCodecTypeVideo, videoCodec},
	} {
		track, err := webrtc.NewTrackLocalStaticRTP(kc.codec, kc.kind.String(), e.id)
		if err != nil {
			return errors.Wrapf(err, "new %s track", kc.kind)
		}
		sender, err := dst.pc.AddTrack(track)
		if err != nil {
			return errors.Wrapf(err, "add %s track", kc.kind)
		}
		go drainRTCP(sender)
		e.pipeline.relays.AddSubscriber(sfu.RelayKey{Source: e.id, Kind: kc.kind}, dst.id, track)
	}
	e.sinks[dst.id] = struct{}{}
	log.Info().Str("module", "webrtc").Str("source", e.id).Str("sink", dst.id).Msg("streams connected")
	return nil
}

// drainRTCP reads RTCP so interceptors keep working; it ends with the sender.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (e *Endpoint) GatherCandidates(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrStreamReleased
	}
	e.gathering = true
	if e.onCandidate != nil {
		for _, c := range e.local {
			e.onCandidate(c)
		}
		e.local = nil
	}
	return nil
}

func (e *Endpoint) foundLocal(c domain.Candidate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if !e.gathering || e.onCandidate == nil {
		e.local = append(e.local, c)
		return
	}
	e.onCandidate(c)
}

func (e *Endpoint) OnCandidateFound(fn func(domain.Candidate)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCandidate = fn
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Release closes the peer connection and detaches it from every relay.
func (e *Endpoint) Release() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.pipeline.relays.StopSource(e.id)
	e.pipeline.relays.MarkSubscriberDelete(e.id)
	e.pipeline.forget(e.id)
	if err := e.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("stream", e.id).Msg("close error")
		return errors.Wrap(err, "close peer connection")
	}
	log.Info().Str("module", "webrtc").Str("stream", e.id).Msg("closed")
	return nil
}

func toInit(c domain.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromInit(c webrtc.ICECandidateInit) domain.Candidate {
	return domain.Candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
