package sfu

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// RelayKey identifies the relay for one kind of media from one source stream.
type RelayKey struct {
	Source string
	Kind   webrtc.RTPCodecType
}

type RelayManager struct {
	mu     sync.RWMutex
	relays map[RelayKey]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[RelayKey]*Relay),
	}
}

func (m *RelayManager) relay(key RelayKey) *Relay {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.relays[key]
	if !ok {
		r = NewRelay(key.Kind)
		m.relays[key] = r
	}
	return r
}

// StartRelay attaches the source track for key and starts forwarding it.
// A previous source for the same key is stopped; its subscribers carry over.
func (m *RelayManager) StartRelay(ctx context.Context, key RelayKey, track *webrtc.TrackRemote) {
	logger := log.With().
		Str("module", "relay").
		Str("source", key.Source).
		Str("kind", key.Kind.String()).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	r := m.relay(key)
	if old := r.attach(track, cancel); old != nil {
		logger.Info().Msg("replacing existing relay source")
		old()
	}

	logger.Info().Msg("starting relay loop")
	go r.loop(relayCtx, track, &logger)
}

// AddSubscriber routes key's media into localTrack owned by sink.
// It reports false if sink was already subscribed.
func (m *RelayManager) AddSubscriber(key RelayKey, sink string, localTrack *webrtc.TrackLocalStaticRTP) bool {
	r := m.relay(key)
	if ot, ok := r.OutTrack(sink); ok && ot.GetState() != TrackStateDelete {
		return false
	}
	r.AddOutTrack(sink, NewOutTrack(localTrack))
	return true
}

func (m *RelayManager) HasSubscriber(key RelayKey, sink string) bool {
	m.mu.RLock()
	r, ok := m.relays[key]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	ot, ok := r.OutTrack(sink)
	return ok && ot.GetState() != TrackStateDelete
}

// MarkSubscriberDelete detaches sink from every relay.
func (m *RelayManager) MarkSubscriberDelete(sink string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.relays {
		if ot, ok := r.OutTrack(sink); ok {
			ot.MarkDelete()
		}
	}
}

// SetSubscriberMuted pauses or resumes forwarding into sink on every relay.
func (m *RelayManager) SetSubscriberMuted(sink string, muted bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.relays {
		if ot, ok := r.OutTrack(sink); ok {
			ot.SetMuted(muted)
		}
	}
}

// StopSource stops every relay fed by source and forgets them.
func (m *RelayManager) StopSource(source string) {
	m.mu.Lock()
	stopped := make([]*Relay, 0, 2)
	for key, r := range m.relays {
		if key.Source == source {
			stopped = append(stopped, r)
			delete(m.relays, key)
		}
	}
	m.mu.Unlock()
	for _, r := range stopped {
		r.stop()
	}
}

// HasRelay reports whether a source track is being forwarded for key.
func (m *RelayManager) HasRelay(key RelayKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.relays[key]
	return ok && r.Running()
}

func (m *RelayManager) StopAll() {
	m.mu.Lock()
	relays := m.relays
	m.relays = make(map[RelayKey]*Relay)
	m.mu.Unlock()
	for _, r := range relays {
		r.stop()
	}
}
