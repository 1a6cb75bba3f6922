package app

import (
	"context"
	"sync"

	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Participant is one joined client: its outbound stream, the inbound stream
// per peer it watches, and the candidates waiting for streams not created yet.
type Participant struct {
	user     domain.User
	client   core.SignalClient
	outbound core.MediaStream

	mu      sync.Mutex
	inbound map[core.SessionID]core.MediaStream
	queue   candidateQueue
	closed  bool

	// offers counts in-flight offers per peer; answered holds the inbound
	// stream per peer that at least one offer succeeded on.
	offers   map[core.SessionID]int
	answered map[core.SessionID]core.MediaStream

	pairing singleflight.Group
}

func NewParticipant(user domain.User, client core.SignalClient, outbound core.MediaStream) *Participant {
	return &Participant{
		user:     user,
		client:   client,
		outbound: outbound,
		inbound:  make(map[core.SessionID]core.MediaStream),
		queue:    newCandidateQueue(),
		offers:   make(map[core.SessionID]int),
		answered: make(map[core.SessionID]core.MediaStream),
	}
}

func (p *Participant) ID() core.SessionID         { return core.SessionID(p.user.ID) }
func (p *Participant) User() domain.User          { return p.user }
func (p *Participant) Client() core.SignalClient  { return p.client }
func (p *Participant) Outbound() core.MediaStream { return p.outbound }

func (p *Participant) Inbound(peer core.SessionID) (core.MediaStream, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.inbound[peer]
	return s, ok
}

// streamFor must be called with p.mu held.
func (p *Participant) streamFor(t StreamTarget) core.MediaStream {
	if peer, ok := t.PeerID(); ok {
		return p.inbound[peer]
	}
	return p.outbound
}

// ApplyOrQueue hands c to the target stream, or buffers it until the stream
// is attached. Both paths run under the participant lock so candidates for one
// target keep their arrival order.
func (p *Participant) ApplyOrQueue(t StreamTarget, c domain.Candidate) (queued bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, domain.ErrParticipantNotFound
	}
	if s := p.streamFor(t); s != nil {
		return false, s.AddCandidate(c)
	}
	p.queue.Push(t, c)
	return true, nil
}

// AttachInbound records s as the inbound stream for peer and drains the
// candidates queued for it. It returns the number of candidates applied.
func (p *Participant) AttachInbound(peer core.SessionID, s core.MediaStream) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, domain.ErrParticipantNotFound
	}
	p.inbound[peer] = s
	return p.drainLocked(Peer(peer), s), nil
}

// DrainOwn applies candidates queued for the outbound stream.
func (p *Participant) DrainOwn() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outbound == nil {
		return 0
	}
	return p.drainLocked(Own(), p.outbound)
}

func (p *Participant) drainLocked(t StreamTarget, s core.MediaStream) int {
	cs := p.queue.Drain(t)
	for _, c := range cs {
		if err := s.AddCandidate(c); err != nil {
			log.Warn().Err(err).
				Str("module", "app.participant").
				Str("sid", string(p.ID())).
				Str("target", t.String()).
				Msg("queued candidate rejected")
		}
	}
	return len(cs)
}

// Queued reports how many candidates wait for t.
func (p *Participant) Queued(t StreamTarget) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len(t)
}

// DropQueued discards the candidates waiting for t.
func (p *Participant) DropQueued(t StreamTarget) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue.Drain(t))
}

// DetachInbound forgets the inbound stream for peer along with the candidates
// queued for it. When want is non-nil nothing changes unless the entry still
// holds that exact stream. It reports whether a stream was detached.
func (p *Participant) DetachInbound(peer core.SessionID, want core.MediaStream) (core.MediaStream, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detachLocked(peer, want)
}

func (p *Participant) detachLocked(peer core.SessionID, want core.MediaStream) (core.MediaStream, bool) {
	s, ok := p.inbound[peer]
	if want != nil && s != want {
		return nil, false
	}
	p.queue.Drain(Peer(peer))
	delete(p.answered, peer)
	if !ok {
		return nil, false
	}
	delete(p.inbound, peer)
	return s, true
}

// BeginOffer marks an offer about peer's media as in flight. Every call must
// be paired with EndOffer.
func (p *Participant) BeginOffer(peer core.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers[peer]++
}

// EndOffer finishes an offer started by BeginOffer. s is the inbound stream
// the offer was negotiated on, or nil if none was resolved. A failed offer
// detaches s only when no other offer on it is in flight and none succeeded,
// so callers sharing a stream never lose it to another caller's failure.
// It reports whether s was detached and must be released.
func (p *Participant) EndOffer(peer core.SessionID, s core.MediaStream, ok bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := p.offers[peer] - 1; n > 0 {
		p.offers[peer] = n
	} else {
		delete(p.offers, peer)
	}
	if s == nil || p.closed {
		return false
	}
	if ok {
		if p.inbound[peer] == s {
			p.answered[peer] = s
		}
		return false
	}
	if p.offers[peer] > 0 || p.answered[peer] == s {
		return false
	}
	_, detached := p.detachLocked(peer, s)
	return detached
}

// Pair returns the inbound stream for peer, creating it with create when
// absent. Concurrent callers for the same peer share one creation.
func (p *Participant) Pair(
	ctx context.Context,
	peer core.SessionID,
	create func(ctx context.Context) (core.MediaStream, error),
) (core.MediaStream, bool, error) {
	if s, ok := p.Inbound(peer); ok {
		return s, false, nil
	}
	ch := p.pairing.DoChan(string(peer), func() (any, error) {
		if s, ok := p.Inbound(peer); ok {
			return s, nil
		}
		return create(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(core.MediaStream), true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Close marks the participant gone and returns every stream it owned.
func (p *Participant) Close() []core.MediaStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	out := make([]core.MediaStream, 0, len(p.inbound)+1)
	if p.outbound != nil {
		out = append(out, p.outbound)
	}
	for peer, s := range p.inbound {
		out = append(out, s)
		delete(p.inbound, peer)
	}
	clear(p.answered)
	if n := p.queue.Reset(); n > 0 {
		log.Debug().Str("module", "app.participant").Str("sid", string(p.ID())).Int("dropped", n).Msg("dropped queued candidates")
	}
	return out
}
