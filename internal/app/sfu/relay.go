package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Relay copies RTP of one kind from a source stream to every subscribed sink.
// Sinks may subscribe before the source track arrives.
type Relay struct {
	Kind webrtc.RTPCodecType

	mu        sync.RWMutex
	src       *webrtc.TrackRemote
	outTracks map[string]*OutTrack

	cancel context.CancelFunc
}

func NewRelay(kind webrtc.RTPCodecType) *Relay {
	return &Relay{
		Kind:      kind,
		outTracks: make(map[string]*OutTrack),
	}
}

// loop reads RTP packets from the source track and forwards them to all OutTracks.
func (r *Relay) loop(ctx context.Context, src *webrtc.TrackRemote, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done")
			return
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("relay source ended")
			r.logForwarded(logger)
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for sink, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, sink)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("sink", sink).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, sink)
				continue
			}
			ot.forwarded.Add(1)
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) logForwarded(logger *zerolog.Logger) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sink, ot := range r.outTracks {
		logger.Debug().Str("sink", sink).Uint64("packets", ot.Forwarded()).Msg("relay totals")
	}
}

func (r *Relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sink := range dirty {
		if ot, ok := r.outTracks[sink]; ok && ot.GetState() == TrackStateDelete {
			delete(r.outTracks, sink)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

// attach swaps in a new source and returns the cancel func of the old loop.
func (r *Relay) attach(src *webrtc.TrackRemote, cancel context.CancelFunc) context.CancelFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.cancel
	r.src = src
	r.cancel = cancel
	return old
}

func (r *Relay) stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.markAllDelete()
}

func (r *Relay) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.src != nil && r.cancel != nil
}

func (r *Relay) AddOutTrack(sink string, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[sink] = ot
}

func (r *Relay) OutTrack(sink string) (*OutTrack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ot, ok := r.outTracks[sink]
	return ot, ok
}
