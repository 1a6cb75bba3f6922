package sfu

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	// TrackStateMuted skips writes while the sink is unreachable; a failed
	// write would otherwise drop the subscription for good.
	TrackStateMuted
	TrackStateDelete
)

// OutTrack is the local track on a sink stream that one relay writes into.
type OutTrack struct {
	Track     *webrtc.TrackLocalStaticRTP
	state     atomic.Int32
	forwarded atomic.Uint64
}

func NewOutTrack(track *webrtc.TrackLocalStaticRTP) *OutTrack {
	return &OutTrack{Track: track}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

// SetMuted toggles between Ok and Muted. A deleted track stays deleted.
func (ot *OutTrack) SetMuted(muted bool) {
	from, to := TrackStateOk, TrackStateMuted
	if !muted {
		from, to = to, from
	}
	ot.state.CompareAndSwap(int32(from), int32(to))
}

func (ot *OutTrack) MarkDelete() { ot.state.Store(int32(TrackStateDelete)) }

// Forwarded counts packets written into the track.
func (ot *OutTrack) Forwarded() uint64 { return ot.forwarded.Load() }
